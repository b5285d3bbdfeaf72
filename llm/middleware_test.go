package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/csescout/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeProvider struct {
	complete func(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
}

func (f *fakeProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	return f.complete(ctx, req)
}

func (f *fakeProvider) HealthCheck(context.Context) (*HealthStatus, error) {
	return &HealthStatus{Healthy: true}, nil
}

func (f *fakeProvider) Name() string                        { return "fake" }
func (f *fakeProvider) SupportsNativeFunctionCalling() bool { return true }

type llmObservation struct {
	provider, model    string
	prompt, completion int
	err                error
}

type recordingCollector struct {
	mu  sync.Mutex
	obs []llmObservation
}

func (c *recordingCollector) ObserveLLMRequest(provider, model string, _ time.Duration, prompt, completion int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.obs = append(c.obs, llmObservation{provider, model, prompt, completion, err})
}

func TestChain_Order(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next Handler) Handler {
			return func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
				order = append(order, name)
				return next(ctx, req)
			}
		}
	}
	chain := NewChain(tag("a")).Use(tag("b"))
	assert.Equal(t, 2, chain.Len())

	h := chain.Then(func(context.Context, *ChatRequest) (*ChatResponse, error) {
		order = append(order, "handler")
		return &ChatResponse{}, nil
	})
	_, err := h(context.Background(), &ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "handler"}, order)
}

func TestTimeoutMiddleware(t *testing.T) {
	slow := func(ctx context.Context, _ *ChatRequest) (*ChatResponse, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
			return &ChatResponse{}, nil
		}
	}

	h := TimeoutMiddleware(10 * time.Millisecond)(slow)
	_, err := h(context.Background(), &ChatRequest{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// 请求级超时优先
	h = TimeoutMiddleware(time.Hour)(slow)
	_, err = h(context.Background(), &ChatRequest{Timeout: 10 * time.Millisecond})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRecoveryMiddleware(t *testing.T) {
	var recovered any
	h := RecoveryMiddleware(func(v any) { recovered = v })(func(context.Context, *ChatRequest) (*ChatResponse, error) {
		panic("boom")
	})

	resp, err := h(context.Background(), &ChatRequest{})
	assert.Nil(t, resp)
	require.Error(t, err)
	assert.Equal(t, types.ErrInternalError, types.GetErrorCode(err))
	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "boom", pe.Value)
	assert.Equal(t, "boom", recovered)
}

func TestWithMiddleware_RecordsMetrics(t *testing.T) {
	inner := &fakeProvider{complete: func(_ context.Context, req *ChatRequest) (*ChatResponse, error) {
		if req.Model == "broken" {
			return nil, types.NewError(types.ErrUpstreamError, "bad gateway")
		}
		return &ChatResponse{Model: "llama-3.3-70b-versatile", Usage: ChatUsage{PromptTokens: 12, CompletionTokens: 3, TotalTokens: 15}}, nil
	}}
	collector := &recordingCollector{}
	p := WithMiddleware(inner, NewChain(
		RecoveryMiddleware(nil),
		LoggingMiddleware(zaptest.NewLogger(t)),
		MetricsMiddleware(inner.Name(), collector),
	))

	assert.Equal(t, "fake", p.Name())
	assert.True(t, p.SupportsNativeFunctionCalling())
	hs, err := p.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, hs.Healthy)

	_, err = p.Completion(context.Background(), &ChatRequest{Model: "llama"})
	require.NoError(t, err)
	_, err = p.Completion(context.Background(), &ChatRequest{Model: "broken"})
	require.Error(t, err)

	require.Len(t, collector.obs, 2)
	assert.Equal(t, llmObservation{"fake", "llama-3.3-70b-versatile", 12, 3, nil}, collector.obs[0])
	assert.Equal(t, "broken", collector.obs[1].model)
	assert.True(t, errors.Is(collector.obs[1].err, err))
}

func TestWithMiddleware_EmptyChain(t *testing.T) {
	inner := &fakeProvider{}
	assert.Same(t, Provider(inner), WithMiddleware(inner, nil))
	assert.Same(t, Provider(inner), WithMiddleware(inner, NewChain()))
}
