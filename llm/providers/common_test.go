package providers

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/BaSui01/csescout/llm"
	"github.com/BaSui01/csescout/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapHTTPError(t *testing.T) {
	tests := []struct {
		status    int
		msg       string
		wantCode  types.ErrorCode
		retryable bool
	}{
		{http.StatusUnauthorized, "bad key", types.ErrUnauthorized, false},
		{http.StatusForbidden, "denied", types.ErrForbidden, false},
		{http.StatusNotFound, "no such model", types.ErrModelNotFound, false},
		{http.StatusTooManyRequests, "slow down", types.ErrRateLimit, true},
		{http.StatusBadRequest, "insufficient quota", types.ErrQuotaExceeded, false},
		{http.StatusBadRequest, "context_length_exceeded", types.ErrContextTooLong, false},
		{http.StatusBadRequest, "invalid tool", types.ErrInvalidRequest, false},
		{http.StatusBadGateway, "bad gateway", types.ErrUpstreamError, true},
		{529, "overloaded", types.ErrModelOverloaded, true},
		{http.StatusInternalServerError, "boom", types.ErrUpstreamError, true},
		{418, "teapot", types.ErrUpstreamError, false},
	}

	for _, tt := range tests {
		err := MapHTTPError(tt.status, tt.msg, "groq")
		assert.Equal(t, tt.wantCode, err.Code, "status %d", tt.status)
		assert.Equal(t, tt.retryable, err.Retryable, "status %d", tt.status)
		assert.Equal(t, tt.status, err.HTTPStatus)
		assert.Equal(t, "groq", err.Provider)
	}
}

func TestReadErrorMessage(t *testing.T) {
	msg := ReadErrorMessage(strings.NewReader(`{"error":{"message":"Invalid API Key","type":"invalid_request_error"}}`))
	assert.Equal(t, "Invalid API Key (type: invalid_request_error)", msg)

	msg = ReadErrorMessage(strings.NewReader("plain failure\n"))
	assert.Equal(t, "plain failure", msg)
}

func TestConvertMessagesToOpenAI(t *testing.T) {
	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: "rules"},
		{Role: llm.RoleAssistant, Name: "analyst", ToolCalls: []llm.ToolCall{
			{ID: "c1", Name: "get_cse_stock_price", Arguments: json.RawMessage(`{"ticker":"JKH"}`)},
			{ID: "c2", Name: "get_market_overview"},
		}},
		{Role: llm.RoleTool, Name: "get_cse_stock_price", ToolCallID: "c1", Content: `{"price":190}`},
	}

	out := ConvertMessagesToOpenAI(msgs)
	require.Len(t, out, 3)
	assert.Equal(t, "analyst", out[1].Name)
	require.Len(t, out[1].ToolCalls, 2)
	assert.Equal(t, `{"ticker":"JKH"}`, out[1].ToolCalls[0].Function.Arguments)
	assert.Equal(t, "{}", out[1].ToolCalls[1].Function.Arguments)
	assert.Empty(t, out[2].Name)
	assert.Equal(t, "c1", out[2].ToolCallID)
}

func TestConvertToolChoice(t *testing.T) {
	assert.Nil(t, ConvertToolChoice(""))
	assert.Equal(t, "auto", ConvertToolChoice("auto"))
	assert.Equal(t, "required", ConvertToolChoice("required"))

	forced, ok := ConvertToolChoice("route").(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "function", forced["type"])
	assert.Equal(t, map[string]string{"name": "route"}, forced["function"])
}

func TestToLLMChatResponse(t *testing.T) {
	resp := ToLLMChatResponse(OpenAICompatResponse{
		ID:    "r1",
		Model: "llama-3.3-70b-versatile",
		Choices: []OpenAICompatChoice{{
			FinishReason: "tool_calls",
			Message: OpenAICompatMessage{
				Role: "assistant",
				ToolCalls: []OpenAICompatToolCall{{
					ID: "t1", Type: "function",
					Function: OpenAICompatFunctionCall{Name: "route", Arguments: `{"next":"FINISH"}`},
				}},
			},
		}},
		Usage: &OpenAICompatUsage{PromptTokens: 10, CompletionTokens: 3, TotalTokens: 13},
	}, "groq")

	assert.Equal(t, "groq", resp.Provider)
	assert.Equal(t, 13, resp.Usage.TotalTokens)
	require.Len(t, resp.Choices, 1)
	tc := resp.Choices[0].Message.ToolCalls[0]
	assert.Equal(t, "route", tc.Name)
	assert.JSONEq(t, `{"next":"FINISH"}`, string(tc.Arguments))
}
