package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/csescout/types"
	"go.uber.org/zap"
)

// Handler processes a request and returns a response.
type Handler func(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

// Middleware wraps a handler with additional functionality.
type Middleware func(next Handler) Handler

// Chain represents a middleware chain.
type Chain struct {
	middlewares []Middleware
	mu          sync.RWMutex
}

// NewChain creates a new middleware chain.
func NewChain(middlewares ...Middleware) *Chain {
	return &Chain{middlewares: middlewares}
}

// Use adds middleware to the chain.
func (c *Chain) Use(m Middleware) *Chain {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.middlewares = append(c.middlewares, m)
	return c
}

// Then wraps a handler with all middleware. The first middleware is outermost.
func (c *Chain) Then(h Handler) Handler {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := len(c.middlewares) - 1; i >= 0; i-- {
		h = c.middlewares[i](h)
	}
	return h
}

// Len returns the number of middleware.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.middlewares)
}

// =============================================================================
// 🧩 内置中间件
// =============================================================================

// LoggingMiddleware 记录请求模型、消息数、工具数与耗时
func LoggingMiddleware(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			fields := []zap.Field{
				zap.String("model", req.Model),
				zap.Int("messages", len(req.Messages)),
				zap.Int("tools", len(req.Tools)),
				zap.Duration("duration", time.Since(start)),
			}
			if err != nil {
				logger.Warn("llm request failed", append(fields,
					zap.String("code", string(types.GetErrorCode(err))),
					zap.Error(err))...)
				return resp, err
			}
			logger.Debug("llm request completed", append(fields,
				zap.Int("total_tokens", resp.Usage.TotalTokens))...)
			return resp, nil
		}
	}
}

// TimeoutMiddleware adds timeout to requests. A request-level Timeout wins.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
			d := timeout
			if req.Timeout > 0 {
				d = req.Timeout
			}
			if d <= 0 {
				return next(ctx, req)
			}
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(ctx, req)
		}
	}
}

// RecoveryMiddleware recovers from panics.
func RecoveryMiddleware(onPanic func(any)) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *ChatRequest) (resp *ChatResponse, err error) {
			defer func() {
				if r := recover(); r != nil {
					if onPanic != nil {
						onPanic(r)
					}
					err = types.NewError(types.ErrInternalError, "llm provider panicked").
						WithCause(&PanicError{Value: r})
				}
			}()
			return next(ctx, req)
		}
	}
}

// PanicError represents a recovered panic.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic recovered: %v", e.Value)
}

// MetricsCollector defines metrics collection interface.
// *metrics.Collector implements it.
type MetricsCollector interface {
	ObserveLLMRequest(provider, model string, duration time.Duration, promptTokens, completionTokens int, err error)
}

// MetricsMiddleware collects request metrics.
func MetricsMiddleware(provider string, collector MetricsCollector) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
			start := time.Now()
			resp, err := next(ctx, req)

			model := req.Model
			var prompt, completion int
			if resp != nil {
				prompt, completion = resp.Usage.PromptTokens, resp.Usage.CompletionTokens
				if resp.Model != "" {
					model = resp.Model
				}
			}
			collector.ObserveLLMRequest(provider, model, time.Since(start), prompt, completion, err)
			return resp, err
		}
	}
}

// =============================================================================
// 🔌 Provider 包装
// =============================================================================

// middlewareProvider routes Completion through a middleware chain and
// delegates everything else to the wrapped provider.
type middlewareProvider struct {
	inner   Provider
	handler Handler
}

// WithMiddleware wraps p so that every Completion passes through chain.
func WithMiddleware(p Provider, chain *Chain) Provider {
	if chain == nil || chain.Len() == 0 {
		return p
	}
	return &middlewareProvider{inner: p, handler: chain.Then(p.Completion)}
}

func (p *middlewareProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	return p.handler(ctx, req)
}

func (p *middlewareProvider) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	return p.inner.HealthCheck(ctx)
}

func (p *middlewareProvider) Name() string { return p.inner.Name() }

func (p *middlewareProvider) SupportsNativeFunctionCalling() bool {
	return p.inner.SupportsNativeFunctionCalling()
}
