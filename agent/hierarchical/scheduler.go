package hierarchical

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/BaSui01/csescout/agent"
	"github.com/BaSui01/csescout/agent/guardrails"
	"github.com/BaSui01/csescout/internal/ctxkeys"
	"github.com/BaSui01/csescout/llm"
	"github.com/BaSui01/csescout/types"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const instrumentationName = "github.com/BaSui01/csescout/agent/hierarchical"

// Router decides the next routing step.
type Router interface {
	Route(ctx context.Context, state *SharedState) (RouteDecision, error)
}

// WorkerRunner executes one delegated subtask. *agent.Worker implements it.
type WorkerRunner interface {
	Name() string
	Run(ctx context.Context, subtask string) (*agent.Summary, error)
}

// Reviewer is the output guardrail. *guardrails.Guard implements it.
type Reviewer interface {
	Review(text string) guardrails.Verdict
}

// Observer receives per-run measurements.
type Observer interface {
	ObserveRun(outcome string, steps int, duration time.Duration)
	ObserveDecision(kind string, fanOut int)
	ObserveWorker(worker string, duration time.Duration, limitations int)
	ObserveGuardrail(flagged bool)
}

type noopObserver struct{}

func (noopObserver) ObserveRun(string, int, time.Duration)    {}
func (noopObserver) ObserveDecision(string, int)              {}
func (noopObserver) ObserveWorker(string, time.Duration, int) {}
func (noopObserver) ObserveGuardrail(bool)                    {}

// SchedulerConfig 调度器配置
type SchedulerConfig struct {
	// MaxSteps is the ceiling on supervisor→worker round trips.
	MaxSteps      int           `yaml:"max_steps" json:"max_steps"`
	WorkerTimeout time.Duration `yaml:"worker_timeout" json:"worker_timeout"`
	RunTimeout    time.Duration `yaml:"run_timeout" json:"run_timeout"`
}

// DefaultSchedulerConfig 默认配置
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		MaxSteps:      25,
		WorkerTimeout: 2 * time.Minute,
		RunTimeout:    5 * time.Minute,
	}
}

// Outcome is the terminal classification of a run.
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomeRoutingFailure Outcome = "routing_failure"
	OutcomeRecursionLimit Outcome = "recursion_limit"
	OutcomeCancelled      Outcome = "cancelled"
	OutcomeInternal       Outcome = "internal"
)

// FinalAnswer is the released result of a completed run.
type FinalAnswer struct {
	RunID    string             `json:"run_id"`
	Query    string             `json:"query"`
	Text     string             `json:"text"`
	Flagged  bool               `json:"flagged"`
	Matches  []string           `json:"matches,omitempty"`
	Steps    int                `json:"steps"`
	Duration time.Duration      `json:"duration"`
	Trace    []agent.TraceEvent `json:"trace"`
}

// RunError is the structured failure outcome of a run. Cause is always a
// *types.Error carrying one of the RUN_* codes.
type RunError struct {
	RunID    string             `json:"run_id"`
	Query    string             `json:"query"`
	Outcome  Outcome            `json:"outcome"`
	Steps    int                `json:"steps"`
	Duration time.Duration      `json:"duration"`
	Trace    []agent.TraceEvent `json:"trace"`
	Cause    error              `json:"-"`
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run %s ended with %s after %d steps: %v", e.RunID, e.Outcome, e.Steps, e.Cause)
}

func (e *RunError) Unwrap() error { return e.Cause }

// Code returns the RUN_* error code.
func (e *RunError) Code() types.ErrorCode { return types.GetErrorCode(e.Cause) }

// AsRunError extracts a *RunError from err.
func AsRunError(err error) (*RunError, bool) {
	var re *RunError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// Scheduler threads control between the supervisor and the workers and
// owns the shared state of each run.
type Scheduler struct {
	cfg      SchedulerConfig
	router   Router
	workers  map[string]WorkerRunner
	names    []string
	guard    Reviewer
	bus      agent.EventBus
	observer Observer
	tracer   trace.Tracer
	logger   *zap.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithEventBus publishes every trace event on bus.
func WithEventBus(bus agent.EventBus) Option {
	return func(s *Scheduler) { s.bus = bus }
}

// WithObserver 设置指标观察者
func WithObserver(o Observer) Option {
	return func(s *Scheduler) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithTracer overrides the global OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(s *Scheduler) {
		if t != nil {
			s.tracer = t
		}
	}
}

// NewScheduler 创建调度器
func NewScheduler(cfg SchedulerConfig, router Router, workers []WorkerRunner, guard Reviewer, logger *zap.Logger, opts ...Option) (*Scheduler, error) {
	if router == nil {
		return nil, fmt.Errorf("%w: scheduler needs a router", agent.ErrConfigInvalid)
	}
	if guard == nil {
		return nil, fmt.Errorf("%w: scheduler needs a guardrail", agent.ErrConfigInvalid)
	}
	if len(workers) == 0 {
		return nil, fmt.Errorf("%w: scheduler needs at least one worker", agent.ErrConfigInvalid)
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultSchedulerConfig().MaxSteps
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Scheduler{
		cfg:      cfg,
		router:   router,
		workers:  make(map[string]WorkerRunner, len(workers)),
		guard:    guard,
		observer: noopObserver{},
		tracer:   otel.Tracer(instrumentationName),
		logger:   logger.With(zap.String("component", "scheduler")),
	}
	for _, w := range workers {
		if w == nil || w.Name() == "" || w.Name() == Finish {
			return nil, fmt.Errorf("%w: invalid worker", agent.ErrConfigInvalid)
		}
		if _, dup := s.workers[w.Name()]; dup {
			return nil, fmt.Errorf("%w: duplicate worker %q", agent.ErrConfigInvalid, w.Name())
		}
		s.workers[w.Name()] = w
		s.names = append(s.names, w.Name())
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config returns the effective configuration.
func (s *Scheduler) Config() SchedulerConfig { return s.cfg }

// Workers returns the registered worker names in registration order.
func (s *Scheduler) Workers() []string { return append([]string(nil), s.names...) }

// RunOption configures one run.
type RunOption func(*runOptions)

type runOptions struct {
	runID   string
	handler func(agent.TraceEvent)
}

// WithRunID sets the run ID instead of generating one.
func WithRunID(id string) RunOption {
	return func(o *runOptions) {
		if id != "" {
			o.runID = id
		}
	}
}

// WithTraceHandler receives every trace event of the run synchronously, in order.
func WithTraceHandler(fn func(agent.TraceEvent)) RunOption {
	return func(o *runOptions) { o.handler = fn }
}

// run holds the per-query bookkeeping. It is discarded when RunQuery returns.
type run struct {
	id    string
	query string
	start time.Time
	state *SharedState
	rec   *recorder
	span  trace.Span
}

// RunQuery executes one query to completion. It returns a FinalAnswer, or a
// *RunError for routing failure, the step ceiling, cancellation or an
// internal fault. Panics below the scheduler are converted to RUN_INTERNAL.
func (s *Scheduler) RunQuery(ctx context.Context, query string, opts ...RunOption) (answer *FinalAnswer, err error) {
	o := runOptions{runID: uuid.NewString()}
	for _, opt := range opts {
		opt(&o)
	}

	r := &run{
		id:    o.runID,
		query: query,
		start: time.Now(),
		state: newSharedState(),
		rec:   newRecorder(o.runID, s.bus, o.handler),
	}

	if s.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RunTimeout)
		defer cancel()
	}
	ctx = ctxkeys.WithRunID(ctx, r.id)
	ctx = agent.WithEmitter(ctx, r.rec.emit)
	ctx, r.span = s.tracer.Start(ctx, "csescout.run", trace.WithAttributes(
		attribute.String("run.id", r.id),
		attribute.Int("run.max_steps", s.cfg.MaxSteps),
	))
	defer r.span.End()

	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("run panicked",
				zap.String("run_id", r.id),
				zap.Any("panic", p),
				zap.ByteString("stack", debug.Stack()))
			answer = nil
			err = s.fail(r, OutcomeInternal, types.NewError(types.ErrRunInternal, fmt.Sprintf("internal fault: %v", p)))
		}
	}()

	s.logger.Info("run started", zap.String("run_id", r.id), zap.Int("max_steps", s.cfg.MaxSteps))
	r.rec.emit(agent.TraceEvent{Kind: agent.TraceRunStarted, Detail: query})

	if err := r.state.transition(PhaseSupervisorTurn); err != nil {
		return nil, s.fail(r, OutcomeInternal, internalError(err))
	}
	r.state.append(llm.NewUserMessage(query))

	for {
		if ctx.Err() != nil {
			return nil, s.cancelled(r, ctx.Err())
		}

		decision, err := s.supervisorTurn(ctx, r.state)
		if err != nil {
			if ctx.Err() != nil {
				return nil, s.cancelled(r, ctx.Err())
			}
			return nil, s.fail(r, OutcomeRoutingFailure, asRoutingFailure(err))
		}
		s.observer.ObserveDecision(string(decision.Kind()), len(decision.Assignments()))

		if decision.IsFinish() {
			return s.finish(r, decision)
		}

		if r.state.Steps() >= s.cfg.MaxSteps {
			return nil, s.fail(r, OutcomeRecursionLimit, types.NewError(types.ErrRecursionLimit,
				fmt.Sprintf("step ceiling of %d reached with delegation to %v pending", s.cfg.MaxSteps, decision.Targets())))
		}

		assignments := decision.Assignments()
		if err := r.state.beginWorkerTurn(assignments); err != nil {
			return nil, s.fail(r, OutcomeInternal, internalError(err))
		}
		r.span.AddEvent("worker_turn", trace.WithAttributes(
			attribute.Int("run.step", r.state.Steps()),
			attribute.StringSlice("route.targets", decision.Targets()),
		))

		summaries, err := s.dispatch(ctx, r.state.Steps(), assignments)
		if err != nil {
			if ctx.Err() != nil {
				return nil, s.cancelled(r, ctx.Err())
			}
			return nil, s.fail(r, OutcomeInternal, internalError(err))
		}

		for _, sum := range summaries {
			r.state.append(summaryMessage(sum))
		}
		if err := r.state.transition(PhaseSupervisorTurn); err != nil {
			return nil, s.fail(r, OutcomeInternal, internalError(err))
		}
	}
}

func (s *Scheduler) supervisorTurn(ctx context.Context, state *SharedState) (RouteDecision, error) {
	ctx, span := s.tracer.Start(ctx, "csescout.supervisor", trace.WithAttributes(
		attribute.Int("run.step", state.Steps()),
	))
	defer span.End()

	decision, err := s.router.Route(ctx, state)
	if err == nil {
		err = s.checkDecision(decision)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return RouteDecision{}, err
	}
	span.SetAttributes(attribute.StringSlice("route.targets", decision.Targets()))
	return decision, nil
}

// checkDecision rejects decisions the router should never have produced.
func (s *Scheduler) checkDecision(d RouteDecision) error {
	switch d.Kind() {
	case DecisionFinish:
		return nil
	case DecisionDelegate:
		if len(d.assignments) == 0 {
			return types.NewError(types.ErrRoutingFailure, "delegate decision without assignments")
		}
		for _, a := range d.assignments {
			if _, ok := s.workers[a.Worker]; !ok {
				return types.NewError(types.ErrRoutingFailure, fmt.Sprintf("decision names unregistered worker %q", a.Worker))
			}
		}
		return nil
	default:
		return types.NewError(types.ErrRoutingFailure, "decision has no kind")
	}
}

// dispatch runs all assignments concurrently. Summaries are returned in
// assignment order. An error means the run must abort.
func (s *Scheduler) dispatch(ctx context.Context, step int, assignments []Assignment) ([]*agent.Summary, error) {
	results := make([]*agent.Summary, len(assignments))
	g, gctx := errgroup.WithContext(ctx)

	for i, a := range assignments {
		g.Go(func() (err error) {
			defer func() {
				if p := recover(); p != nil {
					s.logger.Error("worker panicked",
						zap.String("worker", a.Worker),
						zap.Any("panic", p),
						zap.ByteString("stack", debug.Stack()))
					err = types.NewError(types.ErrRunInternal, fmt.Sprintf("worker %s panicked: %v", a.Worker, p))
				}
			}()
			sum, err := s.runWorker(gctx, step, i, a)
			if err != nil {
				return err
			}
			results[i] = sum
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Scheduler) runWorker(ctx context.Context, step, index int, a Assignment) (*agent.Summary, error) {
	w := s.workers[a.Worker]

	wctx, span := s.tracer.Start(ctx, "csescout.worker", trace.WithAttributes(
		attribute.String("worker.name", a.Worker),
		attribute.Int("run.step", step),
		attribute.Int("worker.index", index),
	))
	defer span.End()
	if s.cfg.WorkerTimeout > 0 {
		var cancel context.CancelFunc
		wctx, cancel = context.WithTimeout(wctx, s.cfg.WorkerTimeout)
		defer cancel()
	}

	agent.Emit(ctx, agent.TraceEvent{
		Kind:   agent.TraceWorkerStarted,
		Actor:  a.Worker,
		Step:   step,
		Detail: a.Task,
		Data:   map[string]any{"index": index},
	})

	start := time.Now()
	sum, err := w.Run(wctx, a.Task)
	elapsed := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// 仅 Worker 自身超时：仍返回摘要，由 Supervisor 决定后续
		s.logger.Warn("worker did not finish", zap.String("worker", a.Worker), zap.Error(err))
		span.RecordError(err)
		sum = &agent.Summary{
			Worker:      a.Worker,
			Subtask:     a.Task,
			Text:        fmt.Sprintf("The %s did not finish this subtask.", a.Worker),
			Limitations: []string{fmt.Sprintf("%s stopped after %s: %v", a.Worker, elapsed.Round(time.Millisecond), err)},
		}
	}
	if sum == nil {
		sum = &agent.Summary{Worker: a.Worker, Subtask: a.Task, Text: fmt.Sprintf("The %s returned no findings.", a.Worker)}
	}
	if sum.Worker == "" {
		sum.Worker = a.Worker
	}

	s.observer.ObserveWorker(a.Worker, elapsed, len(sum.Limitations))
	agent.Emit(ctx, agent.TraceEvent{
		Kind:   agent.TraceWorkerCompleted,
		Actor:  a.Worker,
		Step:   step,
		Detail: sum.Text,
		Data: map[string]any{
			"index":       index,
			"steps":       sum.Steps,
			"tool_calls":  sum.ToolCalls,
			"limitations": sum.Limitations,
			"ambiguous":   sum.Ambiguous,
			"duration_ms": elapsed.Milliseconds(),
		},
	})
	return sum, nil
}

func (s *Scheduler) finish(r *run, decision RouteDecision) (*FinalAnswer, error) {
	if err := r.state.transition(PhaseGuardrail); err != nil {
		return nil, s.fail(r, OutcomeInternal, internalError(err))
	}
	verdict := s.guard.Review(decision.Answer())
	s.observer.ObserveGuardrail(verdict.Flagged)
	r.rec.emit(agent.TraceEvent{
		Kind:  agent.TraceGuardrail,
		Actor: "guardrail",
		Step:  r.state.Steps(),
		Data:  map[string]any{"flagged": verdict.Flagged, "matches": verdict.Matches},
	})

	msg := llm.NewAssistantMessage(verdict.Text)
	msg.Name = "supervisor"
	r.state.append(msg)
	if err := r.state.transition(PhaseDone); err != nil {
		return nil, s.fail(r, OutcomeInternal, internalError(err))
	}

	elapsed := time.Since(r.start)
	r.rec.emit(agent.TraceEvent{
		Kind:   agent.TraceRunCompleted,
		Step:   r.state.Steps(),
		Detail: verdict.Text,
		Data:   map[string]any{"duration_ms": elapsed.Milliseconds(), "flagged": verdict.Flagged},
	})
	s.observer.ObserveRun(string(OutcomeSuccess), r.state.Steps(), elapsed)
	r.span.SetAttributes(
		attribute.String("run.outcome", string(OutcomeSuccess)),
		attribute.Int("run.steps", r.state.Steps()),
		attribute.Bool("guardrail.flagged", verdict.Flagged),
	)
	r.span.SetStatus(codes.Ok, "")

	s.logger.Info("run completed",
		zap.String("run_id", r.id),
		zap.Int("steps", r.state.Steps()),
		zap.Bool("flagged", verdict.Flagged),
		zap.Duration("duration", elapsed))

	return &FinalAnswer{
		RunID:    r.id,
		Query:    r.query,
		Text:     verdict.Text,
		Flagged:  verdict.Flagged,
		Matches:  verdict.Matches,
		Steps:    r.state.Steps(),
		Duration: elapsed,
		Trace:    r.rec.snapshot(),
	}, nil
}

func (s *Scheduler) cancelled(r *run, cause error) *RunError {
	return s.fail(r, OutcomeCancelled, types.NewError(types.ErrCancelled, "run cancelled").WithCause(cause))
}

// fail moves the run to ERROR and builds the caller-facing outcome.
func (s *Scheduler) fail(r *run, outcome Outcome, cause *types.Error) *RunError {
	if !r.state.Terminal() {
		_ = r.state.transition(PhaseError)
	}
	elapsed := time.Since(r.start)

	r.rec.emit(agent.TraceEvent{
		Kind:  agent.TraceRunFailed,
		Step:  r.state.Steps(),
		Error: cause.Error(),
		Data:  map[string]any{"outcome": string(outcome), "code": string(cause.Code)},
	})
	s.observer.ObserveRun(string(outcome), r.state.Steps(), elapsed)
	r.span.SetAttributes(
		attribute.String("run.outcome", string(outcome)),
		attribute.Int("run.steps", r.state.Steps()),
	)
	r.span.RecordError(cause)
	r.span.SetStatus(codes.Error, string(cause.Code))

	s.logger.Warn("run failed",
		zap.String("run_id", r.id),
		zap.String("outcome", string(outcome)),
		zap.Int("steps", r.state.Steps()),
		zap.Error(cause))

	return &RunError{
		RunID:    r.id,
		Query:    r.query,
		Outcome:  outcome,
		Steps:    r.state.Steps(),
		Duration: elapsed,
		Trace:    r.rec.snapshot(),
		Cause:    cause,
	}
}

// summaryMessage renders a worker summary as the observation appended to
// the shared state.
func summaryMessage(sum *agent.Summary) types.Message {
	msg := llm.NewUserMessage(fmt.Sprintf("Report from %s (subtask: %s):\n%s", sum.Worker, sum.Subtask, sum.Render()))
	msg.Name = sum.Worker
	return msg
}

func asRoutingFailure(err error) *types.Error {
	if te, ok := types.AsError(err); ok && te.Code == types.ErrRoutingFailure {
		return te
	}
	return types.NewError(types.ErrRoutingFailure, "routing failed").WithCause(err)
}

func internalError(err error) *types.Error {
	if te, ok := types.AsError(err); ok && te.Code == types.ErrRunInternal {
		return te
	}
	return types.NewError(types.ErrRunInternal, "scheduler fault").WithCause(err)
}
