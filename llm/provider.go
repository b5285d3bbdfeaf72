package llm

import (
	"context"
	"time"

	"github.com/BaSui01/csescout/types"
)

// 消息与工具类型统一定义在 types 包中。
type (
	Role       = types.Role
	Message    = types.Message
	ToolCall   = types.ToolCall
	ToolSchema = types.ToolSchema
)

const (
	RoleSystem    = types.RoleSystem
	RoleUser      = types.RoleUser
	RoleAssistant = types.RoleAssistant
	RoleTool      = types.RoleTool
)

// 消息构造函数
var (
	NewSystemMessage    = types.NewSystemMessage
	NewUserMessage      = types.NewUserMessage
	NewAssistantMessage = types.NewAssistantMessage
	NewToolMessage      = types.NewToolMessage
)

// ToolChoice 取值
const (
	ToolChoiceAuto     = "auto"
	ToolChoiceNone     = "none"
	ToolChoiceRequired = "required"
)

type ChatRequest struct {
	TraceID     string            `json:"trace_id"`
	Model       string            `json:"model"`
	Messages    []Message         `json:"messages"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Temperature float32           `json:"temperature,omitempty"`
	TopP        float32           `json:"top_p,omitempty"`
	Stop        []string          `json:"stop,omitempty"`
	Tools       []ToolSchema      `json:"tools,omitempty"`
	ToolChoice  string            `json:"tool_choice,omitempty"` // auto/none/required/<tool name>
	Timeout     time.Duration     `json:"timeout,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`

	// ParallelToolCalls 为 nil 时使用上游默认值
	ParallelToolCalls *bool `json:"parallel_tool_calls,omitempty"`
}

type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

type ChatChoice struct {
	Index        int     `json:"index"`
	FinishReason string  `json:"finish_reason,omitempty"`
	Message      Message `json:"message"`
}

type ChatResponse struct {
	ID        string       `json:"id,omitempty"`
	Provider  string       `json:"provider,omitempty"`
	Model     string       `json:"model"`
	Choices   []ChatChoice `json:"choices"`
	Usage     ChatUsage    `json:"usage,omitempty"`
	CreatedAt time.Time    `json:"created_at,omitempty"`
}

// HealthStatus 表示 Provider 健康检查结果。
type HealthStatus struct {
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
}

// Provider 定义了统一的 LLM 适配接口。
// 工具调用通过 ChatRequest.Tools 参数传递，LLM 在响应中返回 ToolCalls，
// 具体的工具执行由 llm/tools 包负责。
type Provider interface {
	// Completion 发起同步聊天请求，返回完整响应
	Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// HealthCheck 执行轻量级健康检查
	HealthCheck(ctx context.Context) (*HealthStatus, error)

	// Name 返回 Provider 的唯一标识
	Name() string

	// SupportsNativeFunctionCalling 返回是否支持原生 Function Calling。
	// Supervisor 的结构化路由依赖该能力，返回 false 的 Provider 不能驱动编排。
	SupportsNativeFunctionCalling() bool
}
