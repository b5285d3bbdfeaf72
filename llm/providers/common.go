package providers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/BaSui01/csescout/llm"
	"github.com/BaSui01/csescout/types"
)

// MapHTTPError 将 HTTP 状态码映射为带有合适重试标记的 types.Error
func MapHTTPError(status int, msg string, provider string) *types.Error {
	newErr := func(code types.ErrorCode, retryable bool) *types.Error {
		return types.NewError(code, msg).
			WithHTTPStatus(status).
			WithRetryable(retryable).
			WithProvider(provider)
	}

	switch status {
	case http.StatusUnauthorized:
		return newErr(types.ErrUnauthorized, false)
	case http.StatusForbidden:
		return newErr(types.ErrForbidden, false)
	case http.StatusNotFound:
		return newErr(types.ErrModelNotFound, false)
	case http.StatusTooManyRequests:
		return newErr(types.ErrRateLimit, true)
	case http.StatusBadRequest:
		msgLower := strings.ToLower(msg)
		if strings.Contains(msgLower, "quota") ||
			strings.Contains(msgLower, "credit") {
			return newErr(types.ErrQuotaExceeded, false)
		}
		if strings.Contains(msgLower, "context_length") || strings.Contains(msgLower, "context length") {
			return newErr(types.ErrContextTooLong, false)
		}
		return newErr(types.ErrInvalidRequest, false)
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return newErr(types.ErrUpstreamError, true)
	case 529: // Model overloaded
		return newErr(types.ErrModelOverloaded, true)
	default:
		return newErr(types.ErrUpstreamError, status >= 500)
	}
}

// ReadErrorMessage 读取响应体中的错误消息
// 尝试解析 JSON 错误响应，失败则回退到原始文本
func ReadErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil {
		return "failed to read error response"
	}

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		if errResp.Error.Type != "" {
			return fmt.Sprintf("%s (type: %s)", errResp.Error.Message, errResp.Error.Type)
		}
		return errResp.Error.Message
	}

	return strings.TrimSpace(string(data))
}

// OpenAI 兼容 API 通用类型（Groq、DeepSeek 等均使用该格式）

// OpenAICompatMessage 表示 OpenAI 兼容的消息格式.
type OpenAICompatMessage struct {
	Role       string                 `json:"role"`
	Content    string                 `json:"content,omitempty"`
	Name       string                 `json:"name,omitempty"`
	ToolCalls  []OpenAICompatToolCall `json:"tool_calls,omitempty"`
	ToolCallID string                 `json:"tool_call_id,omitempty"`
}

// OpenAICompatToolCall 表示 OpenAI 兼容的工具调用.
type OpenAICompatToolCall struct {
	ID       string                   `json:"id"`
	Type     string                   `json:"type"`
	Function OpenAICompatFunctionCall `json:"function"`
}

// OpenAICompatFunctionCall 表示一次函数调用；arguments 在线上是 JSON 字符串.
type OpenAICompatFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// OpenAICompatFunctionDef 表示函数定义.
type OpenAICompatFunctionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// OpenAICompatTool 表示 OpenAI 兼容的工具定义.
type OpenAICompatTool struct {
	Type     string                  `json:"type"`
	Function OpenAICompatFunctionDef `json:"function"`
}

// OpenAICompatRequest 表示 OpenAI 兼容的聊天完成请求.
type OpenAICompatRequest struct {
	Model             string                `json:"model"`
	Messages          []OpenAICompatMessage `json:"messages"`
	Tools             []OpenAICompatTool    `json:"tools,omitempty"`
	ToolChoice        any                   `json:"tool_choice,omitempty"`
	ParallelToolCalls *bool                 `json:"parallel_tool_calls,omitempty"`
	MaxTokens         int                   `json:"max_tokens,omitempty"`
	Temperature       float32               `json:"temperature"`
	TopP              float32               `json:"top_p,omitempty"`
	Stop              []string              `json:"stop,omitempty"`
}

// OpenAICompatChoice 表示 OpenAI 兼容响应中的单个选项.
type OpenAICompatChoice struct {
	Index        int                 `json:"index"`
	FinishReason string              `json:"finish_reason"`
	Message      OpenAICompatMessage `json:"message"`
}

// OpenAICompatUsage 表示 OpenAI 兼容响应中的 token 用量.
type OpenAICompatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// OpenAICompatResponse 表示 OpenAI 兼容的聊天完成响应.
type OpenAICompatResponse struct {
	ID      string               `json:"id"`
	Model   string               `json:"model"`
	Choices []OpenAICompatChoice `json:"choices"`
	Usage   *OpenAICompatUsage   `json:"usage,omitempty"`
	Created int64                `json:"created,omitempty"`
}

// ConvertMessagesToOpenAI 将 llm.Message 切片转换为 OpenAI 兼容格式.
func ConvertMessagesToOpenAI(msgs []llm.Message) []OpenAICompatMessage {
	out := make([]OpenAICompatMessage, 0, len(msgs))
	for _, m := range msgs {
		oa := OpenAICompatMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		// OpenAI 只接受 user/assistant 的 name 字段；tool 消息依赖 tool_call_id
		if m.Role != llm.RoleTool {
			oa.Name = m.Name
		}
		if len(m.ToolCalls) > 0 {
			oa.ToolCalls = make([]OpenAICompatToolCall, 0, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				args := string(tc.Arguments)
				if args == "" {
					args = "{}"
				}
				oa.ToolCalls = append(oa.ToolCalls, OpenAICompatToolCall{
					ID:   tc.ID,
					Type: "function",
					Function: OpenAICompatFunctionCall{
						Name:      tc.Name,
						Arguments: args,
					},
				})
			}
		}
		out = append(out, oa)
	}
	return out
}

// ConvertToolsToOpenAI 将 llm.ToolSchema 切片转换为 OpenAI 兼容格式.
func ConvertToolsToOpenAI(tools []llm.ToolSchema) []OpenAICompatTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]OpenAICompatTool, 0, len(tools))
	for _, t := range tools {
		out = append(out, OpenAICompatTool{
			Type: "function",
			Function: OpenAICompatFunctionDef{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

// ConvertToolChoice 将 ToolChoice 字符串转换为线上格式：
// auto/none/required 原样透传，其他值视为强制调用指定函数。
func ConvertToolChoice(choice string) any {
	switch choice {
	case "":
		return nil
	case llm.ToolChoiceAuto, llm.ToolChoiceNone, llm.ToolChoiceRequired:
		return choice
	default:
		return map[string]any{
			"type":     "function",
			"function": map[string]string{"name": choice},
		}
	}
}

// ToLLMChatResponse 将 OpenAI 兼容的响应转换为 llm.ChatResponse.
func ToLLMChatResponse(oa OpenAICompatResponse, provider string) *llm.ChatResponse {
	choices := make([]llm.ChatChoice, 0, len(oa.Choices))
	for _, c := range oa.Choices {
		msg := llm.Message{
			Role:    llm.RoleAssistant,
			Content: c.Message.Content,
			Name:    c.Message.Name,
		}
		if len(c.Message.ToolCalls) > 0 {
			msg.ToolCalls = make([]llm.ToolCall, 0, len(c.Message.ToolCalls))
			for _, tc := range c.Message.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
					ID:        tc.ID,
					Name:      tc.Function.Name,
					Arguments: json.RawMessage(tc.Function.Arguments),
				})
			}
		}
		choices = append(choices, llm.ChatChoice{
			Index:        c.Index,
			FinishReason: c.FinishReason,
			Message:      msg,
		})
	}
	resp := &llm.ChatResponse{
		ID:       oa.ID,
		Provider: provider,
		Model:    oa.Model,
		Choices:  choices,
	}
	if oa.Usage != nil {
		resp.Usage = llm.ChatUsage{
			PromptTokens:     oa.Usage.PromptTokens,
			CompletionTokens: oa.Usage.CompletionTokens,
			TotalTokens:      oa.Usage.TotalTokens,
		}
	}
	return resp
}

// ChooseModel 根据请求和默认值选择模型
func ChooseModel(req *llm.ChatRequest, defaultModel, fallbackModel string) string {
	if req != nil && req.Model != "" {
		return req.Model
	}
	if defaultModel != "" {
		return defaultModel
	}
	return fallbackModel
}
