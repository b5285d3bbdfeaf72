package agent

import (
	"context"
	"time"
)

// TraceKind classifies a trace event.
type TraceKind string

const (
	TraceRunStarted         TraceKind = "run_started"
	TraceSupervisorDecision TraceKind = "supervisor_decision"
	TraceRoutingRetry       TraceKind = "routing_retry"
	TraceWorkerStarted      TraceKind = "worker_started"
	TraceToolCall           TraceKind = "tool_call"
	TraceToolResult         TraceKind = "tool_result"
	TraceWorkerCompleted    TraceKind = "worker_completed"
	TraceGuardrail          TraceKind = "guardrail"
	TraceRunCompleted       TraceKind = "run_completed"
	TraceRunFailed          TraceKind = "run_failed"
)

// TraceEvent is one entry of a run's observable trace. ID, RunID, Seq and
// Time are filled in by the recorder.
type TraceEvent struct {
	ID     string         `json:"id"`
	RunID  string         `json:"run_id"`
	Seq    int64          `json:"seq"`
	Kind   TraceKind      `json:"kind"`
	Actor  string         `json:"actor,omitempty"`
	Step   int            `json:"step,omitempty"`
	Tool   string         `json:"tool,omitempty"`
	Detail string         `json:"detail,omitempty"`
	Error  string         `json:"error,omitempty"`
	Data   map[string]any `json:"data,omitempty"`
	Time   time.Time      `json:"time"`
}

func (e *TraceEvent) Timestamp() time.Time { return e.Time }
func (e *TraceEvent) Type() EventType      { return EventTrace }

// Emitter records a trace event.
type Emitter func(TraceEvent)

type emitterKey struct{}

// WithEmitter attaches a trace emitter to ctx.
func WithEmitter(ctx context.Context, e Emitter) context.Context {
	return context.WithValue(ctx, emitterKey{}, e)
}

// Emit sends ev to the emitter in ctx, if any.
func Emit(ctx context.Context, ev TraceEvent) {
	if e, ok := ctx.Value(emitterKey{}).(Emitter); ok && e != nil {
		e(ev)
	}
}
