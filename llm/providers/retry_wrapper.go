package providers

import (
	"context"

	"github.com/BaSui01/csescout/llm"
	"github.com/BaSui01/csescout/llm/retry"
	"go.uber.org/zap"
)

// RetryableProvider wraps an llm.Provider with exponential-backoff retry logic.
// Only errors marked Retryable (429, 5xx, transport failures) are retried.
type RetryableProvider struct {
	inner   llm.Provider
	retryer retry.Retryer
}

// NewRetryableProvider creates a retrying wrapper around the given provider.
func NewRetryableProvider(inner llm.Provider, policy *retry.RetryPolicy, logger *zap.Logger) *RetryableProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryableProvider{
		inner: inner,
		retryer: retry.NewBackoffRetryer(policy,
			logger.With(zap.String("component", "retry_provider"), zap.String("provider", inner.Name()))),
	}
}

// Compile-time interface check.
var _ llm.Provider = (*RetryableProvider)(nil)

func (p *RetryableProvider) Name() string                        { return p.inner.Name() }
func (p *RetryableProvider) SupportsNativeFunctionCalling() bool { return p.inner.SupportsNativeFunctionCalling() }
func (p *RetryableProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	return p.inner.HealthCheck(ctx)
}

// Completion performs a chat completion with retry on transient errors.
func (p *RetryableProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	return retry.DoWithResult(ctx, p.retryer, func() (*llm.ChatResponse, error) {
		return p.inner.Completion(ctx, req)
	})
}
