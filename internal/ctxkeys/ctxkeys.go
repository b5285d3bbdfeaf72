// Package ctxkeys 集中定义跨包传递的 context 键。
package ctxkeys

import "context"

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	traceIDKey   contextKey = "trace_id"
	runIDKey     contextKey = "run_id"
	requestIDKey contextKey = "request_id"
	workerKey    contextKey = "worker"
	subjectKey   contextKey = "subject"
)

func withString(ctx context.Context, key contextKey, v string) context.Context {
	return context.WithValue(ctx, key, v)
}

func stringValue(ctx context.Context, key contextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithTraceID 设置 TraceID（OpenTelemetry trace）
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return withString(ctx, traceIDKey, traceID)
}

// TraceID 获取 TraceID
func TraceID(ctx context.Context) (string, bool) { return stringValue(ctx, traceIDKey) }

// WithRunID 设置编排运行 ID
func WithRunID(ctx context.Context, runID string) context.Context {
	return withString(ctx, runIDKey, runID)
}

// RunID 获取编排运行 ID
func RunID(ctx context.Context) (string, bool) { return stringValue(ctx, runIDKey) }

// WithRequestID 设置 HTTP 请求 ID
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return withString(ctx, requestIDKey, requestID)
}

// RequestID 获取 HTTP 请求 ID
func RequestID(ctx context.Context) (string, bool) { return stringValue(ctx, requestIDKey) }

// WithWorker 标记当前执行的 Worker 名称
func WithWorker(ctx context.Context, name string) context.Context {
	return withString(ctx, workerKey, name)
}

// Worker 获取当前 Worker 名称
func Worker(ctx context.Context) (string, bool) { return stringValue(ctx, workerKey) }

// WithSubject 设置已认证调用方（JWT sub）
func WithSubject(ctx context.Context, subject string) context.Context {
	return withString(ctx, subjectKey, subject)
}

// Subject 获取已认证调用方
func Subject(ctx context.Context) (string, bool) { return stringValue(ctx, subjectKey) }
