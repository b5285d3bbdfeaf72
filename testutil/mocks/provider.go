// MockProvider 的 LLM 提供商测试模拟实现。
//
// 支持固定响应、按顺序的脚本响应、按请求路由的自定义函数与错误注入。
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/csescout/llm"
	"github.com/BaSui01/csescout/types"
)

// --- MockProvider 结构 ---

// MockProvider 是 LLM Provider 的模拟实现
type MockProvider struct {
	mu sync.Mutex

	name      string
	native    bool
	response  string
	toolCalls []types.ToolCall
	err       error
	delay     time.Duration

	// script 按调用顺序消费，耗尽后回退到固定响应
	script         []*llm.ChatResponse
	completionFunc func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)

	calls []MockProviderCall
}

// MockProviderCall 记录单次调用
type MockProviderCall struct {
	Request  *llm.ChatRequest
	Response *llm.ChatResponse
	Error    error
}

// --- 构造函数和 Builder 方法 ---

// NewMockProvider 创建新的 MockProvider
func NewMockProvider() *MockProvider {
	return &MockProvider{
		name:     "mock",
		native:   true,
		response: "Mock response",
	}
}

// WithName 设置 Provider 名称
func (m *MockProvider) WithName(name string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.name = name
	return m
}

// WithResponse 设置固定响应内容
func (m *MockProvider) WithResponse(response string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response = response
	return m
}

// WithToolCalls 设置固定工具调用响应
func (m *MockProvider) WithToolCalls(toolCalls []types.ToolCall) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.toolCalls = toolCalls
	return m
}

// WithError 设置返回错误
func (m *MockProvider) WithError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithDelay 设置响应延迟，期间响应 ctx 取消
func (m *MockProvider) WithDelay(d time.Duration) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithScript 追加按顺序返回的响应
func (m *MockProvider) WithScript(responses ...*llm.ChatResponse) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, responses...)
	return m
}

// WithCompletionFunc 设置自定义 Completion 函数，优先级最高
func (m *MockProvider) WithCompletionFunc(fn func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completionFunc = fn
	return m
}

// WithoutNativeFunctionCalling 模拟不支持原生函数调用的 Provider
func (m *MockProvider) WithoutNativeFunctionCalling() *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.native = false
	return m
}

// --- Provider 接口实现 ---

func (m *MockProvider) Name() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.name
}

func (m *MockProvider) SupportsNativeFunctionCalling() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.native
}

func (m *MockProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &llm.HealthStatus{Healthy: true, Latency: time.Millisecond}, nil
}

// Completion 生成响应
func (m *MockProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	m.mu.Lock()
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			m.record(req, nil, ctx.Err())
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		m.record(req, nil, err)
		return nil, err
	}

	m.mu.Lock()
	fn := m.completionFunc
	m.mu.Unlock()
	if fn != nil {
		resp, err := fn(ctx, req)
		m.record(req, resp, err)
		return resp, err
	}

	m.mu.Lock()
	var resp *llm.ChatResponse
	err := m.err
	if err == nil {
		if len(m.script) > 0 {
			resp = m.script[0]
			m.script = m.script[1:]
		} else {
			resp = NewResponse(types.Message{
				Role:      types.RoleAssistant,
				Content:   m.response,
				ToolCalls: m.toolCalls,
			})
		}
	}
	m.mu.Unlock()

	m.record(req, resp, err)
	return resp, err
}

func (m *MockProvider) record(req *llm.ChatRequest, resp *llm.ChatResponse, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockProviderCall{Request: req, Response: resp, Error: err})
}

// --- 调用记录 ---

// Calls 返回调用记录副本
func (m *MockProvider) Calls() []MockProviderCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockProviderCall(nil), m.calls...)
}

// CallCount 返回调用次数
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// LastRequest 返回最后一次请求
func (m *MockProvider) LastRequest() *llm.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	return m.calls[len(m.calls)-1].Request
}

// Reset 清空调用记录与脚本
func (m *MockProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.script = nil
}

// --- 响应构造 ---

// NewResponse 包装单条 assistant 消息
func NewResponse(msg types.Message) *llm.ChatResponse {
	finish := "stop"
	if len(msg.ToolCalls) > 0 {
		finish = "tool_calls"
	}
	if msg.Role == "" {
		msg.Role = types.RoleAssistant
	}
	return &llm.ChatResponse{
		ID:       "mock-response-id",
		Provider: "mock",
		Model:    "mock-model",
		Choices: []llm.ChatChoice{{
			Index:        0,
			FinishReason: finish,
			Message:      msg,
		}},
		Usage:     llm.ChatUsage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
		CreatedAt: time.Now(),
	}
}

// TextResponse 返回纯文本响应
func TextResponse(content string) *llm.ChatResponse {
	return NewResponse(types.NewAssistantMessage(content))
}

// ToolCallResponse 返回工具调用响应
func ToolCallResponse(calls ...types.ToolCall) *llm.ChatResponse {
	return NewResponse(types.Message{Role: types.RoleAssistant, ToolCalls: calls})
}

// ToolCall 构造工具调用
func ToolCall(id, name, args string) types.ToolCall {
	return types.ToolCall{ID: id, Name: name, Arguments: []byte(args)}
}
