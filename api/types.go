package api

import (
	"time"

	"github.com/BaSui01/csescout/agent"
)

// =============================================================================
// 查询类型
// =============================================================================

// QueryRequest 研究查询请求
// @Description 研究查询请求结构
type QueryRequest struct {
	// 用户的自然语言问题
	Query string `json:"query" example:"What is the price of JKH and what is the latest news?"`
	// 可选的运行 ID，为空时由服务端生成
	RunID string `json:"run_id,omitempty"`
	// 是否在响应中携带完整 trace
	IncludeTrace bool `json:"include_trace,omitempty"`
}

// QueryResponse 成功完成的研究运行
// @Description 研究查询响应结构
type QueryResponse struct {
	RunID      string             `json:"run_id"`
	Answer     string             `json:"answer"`
	Flagged    bool               `json:"flagged"`
	Matches    []string           `json:"matches,omitempty"`
	Steps      int                `json:"steps"`
	DurationMS int64              `json:"duration_ms"`
	Trace      []agent.TraceEvent `json:"trace,omitempty"`
}

// RunFailure 失败运行的结构化信息，作为错误响应的 details 返回
type RunFailure struct {
	RunID      string             `json:"run_id"`
	Outcome    string             `json:"outcome"`
	Code       string             `json:"code"`
	Message    string             `json:"message"`
	Steps      int                `json:"steps"`
	DurationMS int64              `json:"duration_ms"`
	Trace      []agent.TraceEvent `json:"trace,omitempty"`
}

// =============================================================================
// 流式类型
// =============================================================================

// StreamMessageType WebSocket 消息类型
type StreamMessageType string

const (
	StreamTrace  StreamMessageType = "trace"
	StreamAnswer StreamMessageType = "answer"
	StreamError  StreamMessageType = "error"
)

// StreamMessage 是 /api/v1/query/stream 上的一帧
type StreamMessage struct {
	Type   StreamMessageType `json:"type"`
	Event  *agent.TraceEvent `json:"event,omitempty"`
	Answer *QueryResponse    `json:"answer,omitempty"`
	Error  *RunFailure       `json:"error,omitempty"`
}

// =============================================================================
// 运行记录类型
// =============================================================================

// RunSummary 运行记录列表项
type RunSummary struct {
	ID         string    `json:"id"`
	Query      string    `json:"query"`
	Outcome    string    `json:"outcome"`
	ErrorCode  string    `json:"error_code,omitempty"`
	Flagged    bool      `json:"flagged"`
	Steps      int       `json:"steps"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// RunDetail 单条运行记录，包含答案与 trace
type RunDetail struct {
	RunSummary
	Answer string             `json:"answer,omitempty"`
	Trace  []agent.TraceEvent `json:"trace"`
}

// RunList 分页列表
type RunList struct {
	Runs   []RunSummary `json:"runs"`
	Total  int64        `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

// WorkerInfo 已注册的 Worker
type WorkerInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tools       []string `json:"tools"`
}
