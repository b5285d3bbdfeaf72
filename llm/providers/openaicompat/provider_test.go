package openaicompat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BaSui01/csescout/llm"
	"github.com/BaSui01/csescout/llm/providers"
	"github.com/BaSui01/csescout/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func boolPtr(b bool) *bool { return &b }

// ---------------------------------------------------------------------------
// New() constructor
// ---------------------------------------------------------------------------

func TestNew_Defaults(t *testing.T) {
	tests := []struct {
		name             string
		cfg              Config
		logger           *zap.Logger
		wantEndpoint     string
		wantModels       string
		wantToolsSupport bool
	}{
		{
			name:             "all defaults applied",
			cfg:              Config{ProviderName: "test"},
			wantEndpoint:     "/v1/chat/completions",
			wantModels:       "/v1/models",
			wantToolsSupport: true,
		},
		{
			name: "custom endpoint paths preserved",
			cfg: Config{
				ProviderName:   "custom",
				EndpointPath:   "/api/chat",
				ModelsEndpoint: "/api/models",
			},
			logger:           zap.NewNop(),
			wantEndpoint:     "/api/chat",
			wantModels:       "/api/models",
			wantToolsSupport: true,
		},
		{
			name:             "supports tools false",
			cfg:              Config{ProviderName: "no-tools", SupportsTools: boolPtr(false)},
			logger:           zap.NewNop(),
			wantEndpoint:     "/v1/chat/completions",
			wantModels:       "/v1/models",
			wantToolsSupport: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg, tt.logger)
			require.NotNil(t, p)
			assert.Equal(t, tt.wantEndpoint, p.Cfg.EndpointPath)
			assert.Equal(t, tt.wantModels, p.Cfg.ModelsEndpoint)
			assert.Equal(t, tt.cfg.ProviderName, p.Name())
			assert.Equal(t, tt.wantToolsSupport, p.SupportsNativeFunctionCalling())
			assert.NotNil(t, p.Client)
			assert.NotNil(t, p.Logger)
		})
	}
}

func TestNew_Timeout(t *testing.T) {
	assert.Equal(t, 30*time.Second, New(Config{ProviderName: "t"}, nil).Client.Timeout)
	assert.Equal(t, 10*time.Second, New(Config{ProviderName: "t", Timeout: 10 * time.Second}, nil).Client.Timeout)
}

// ---------------------------------------------------------------------------
// Completion
// ---------------------------------------------------------------------------

func TestProvider_Completion_ToolCalling(t *testing.T) {
	var captured providers.OpenAICompatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(providers.OpenAICompatResponse{
			ID:    "resp-1",
			Model: "llama-3.3-70b-versatile",
			Choices: []providers.OpenAICompatChoice{{
				FinishReason: "tool_calls",
				Message: providers.OpenAICompatMessage{
					Role: "assistant",
					ToolCalls: []providers.OpenAICompatToolCall{
						{ID: "a", Type: "function", Function: providers.OpenAICompatFunctionCall{Name: "get_cse_stock_price", Arguments: `{"ticker":"JKH"}`}},
						{ID: "b", Type: "function", Function: providers.OpenAICompatFunctionCall{Name: "get_cse_stock_price", Arguments: `{"ticker":"DIAL"}`}},
					},
				},
			}},
			Usage:   &providers.OpenAICompatUsage{PromptTokens: 5, CompletionTokens: 2, TotalTokens: 7},
			Created: 1700000000,
		})
	}))
	t.Cleanup(server.Close)

	p := New(Config{ProviderName: "groq", APIKey: "test-key", BaseURL: server.URL, DefaultModel: "llama-3.3-70b-versatile"}, zap.NewNop())

	resp, err := p.Completion(context.Background(), &llm.ChatRequest{
		Messages:          []llm.Message{{Role: llm.RoleUser, Content: "Compare JKH and DIAL"}},
		Tools:             []llm.ToolSchema{{Name: "get_cse_stock_price", Description: "price", Parameters: json.RawMessage(`{"type":"object"}`)}},
		ToolChoice:        llm.ToolChoiceAuto,
		ParallelToolCalls: boolPtr(true),
	})
	require.NoError(t, err)

	assert.Equal(t, "llama-3.3-70b-versatile", captured.Model)
	require.Len(t, captured.Tools, 1)
	assert.Equal(t, "get_cse_stock_price", captured.Tools[0].Function.Name)
	assert.Equal(t, "auto", captured.ToolChoice)
	require.NotNil(t, captured.ParallelToolCalls)
	assert.True(t, *captured.ParallelToolCalls)

	assert.Equal(t, "groq", resp.Provider)
	assert.Equal(t, 7, resp.Usage.TotalTokens)
	assert.False(t, resp.CreatedAt.IsZero())
	calls := resp.Choices[0].Message.ToolCalls
	require.Len(t, calls, 2)
	assert.JSONEq(t, `{"ticker":"DIAL"}`, string(calls[1].Arguments))
}

func TestProvider_Completion_HTTPError(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		wantCode   types.ErrorCode
		retryable  bool
	}{
		{"401 unauthorized", http.StatusUnauthorized, `{"error":{"message":"invalid key","type":"auth"}}`, types.ErrUnauthorized, false},
		{"429 rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, types.ErrRateLimit, true},
		{"500 server error", http.StatusInternalServerError, `{"error":{"message":"oops"}}`, types.ErrUpstreamError, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				fmt.Fprint(w, tt.body)
			}))
			t.Cleanup(server.Close)

			p := New(Config{ProviderName: "test", APIKey: "key", BaseURL: server.URL}, zap.NewNop())

			_, err := p.Completion(context.Background(), &llm.ChatRequest{
				Messages: []llm.Message{{Role: llm.RoleUser, Content: "Hi"}},
			})
			require.Error(t, err)
			var typedErr *types.Error
			require.ErrorAs(t, err, &typedErr)
			assert.Equal(t, tt.wantCode, typedErr.Code)
			assert.Equal(t, tt.retryable, typedErr.Retryable)
		})
	}
}

func TestProvider_Completion_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, "not json")
	}))
	t.Cleanup(server.Close)

	p := New(Config{ProviderName: "test", APIKey: "key", BaseURL: server.URL}, zap.NewNop())

	_, err := p.Completion(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "Hi"}},
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrUpstreamError, types.GetErrorCode(err))
}

func TestProvider_Completion_ToolsUnsupported(t *testing.T) {
	p := New(Config{ProviderName: "plain", SupportsTools: boolPtr(false)}, zap.NewNop())

	_, err := p.Completion(context.Background(), &llm.ChatRequest{
		Tools: []llm.ToolSchema{{Name: "route"}},
	})
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
}

func TestProvider_Completion_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body) // drain so the server notices client disconnect
		<-r.Context().Done()
	}))
	t.Cleanup(server.Close)

	p := New(Config{ProviderName: "test", BaseURL: server.URL}, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := p.Completion(ctx, &llm.ChatRequest{Messages: []llm.Message{{Role: llm.RoleUser, Content: "Hi"}}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestProvider_HealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	status, err := New(Config{ProviderName: "t", APIKey: "good", BaseURL: server.URL}, nil).HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Healthy)

	status, err = New(Config{ProviderName: "t", APIKey: "bad", BaseURL: server.URL}, nil).HealthCheck(context.Background())
	require.Error(t, err)
	assert.False(t, status.Healthy)
	assert.Equal(t, types.ErrUnauthorized, types.GetErrorCode(err))
}
