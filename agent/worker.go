package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/csescout/internal/ctxkeys"
	"github.com/BaSui01/csescout/llm"
	"github.com/BaSui01/csescout/llm/tokenizer"
	"github.com/BaSui01/csescout/llm/tools"
	"github.com/BaSui01/csescout/market"
	"github.com/BaSui01/csescout/types"
	"go.uber.org/zap"
)

// WorkerConfig 定义 Worker 的职责与约束
type WorkerConfig struct {
	Name         string        `yaml:"name" json:"name"`
	Description  string        `yaml:"description" json:"description"`
	Tools        []string      `yaml:"tools" json:"tools"`
	SystemPrompt string        `yaml:"system_prompt" json:"-"`
	Model        string        `yaml:"model" json:"model,omitempty"`
	Temperature  float32       `yaml:"temperature" json:"temperature"`
	MaxSteps     int           `yaml:"max_steps" json:"max_steps"`
	StepTimeout  time.Duration `yaml:"step_timeout" json:"step_timeout"`

	// MaxSummaryTokens caps Summary.Text; 0 means 400.
	MaxSummaryTokens int `yaml:"max_summary_tokens" json:"max_summary_tokens"`
	// MaxConcurrentTools bounds parallel tool calls within one step.
	MaxConcurrentTools int `yaml:"max_concurrent_tools" json:"max_concurrent_tools"`
}

// Worker executes one subtask at a time with a restricted tool set.
// A Worker holds no per-run state and may serve concurrent assignments.
type Worker struct {
	cfg       WorkerConfig
	provider  llm.Provider
	registry  tools.ToolRegistry
	executor  *tools.ScopedExecutor
	schemas   []llm.ToolSchema
	resolver  market.SymbolResolver
	tokenizer tokenizer.Tokenizer
	logger    *zap.Logger
}

// NewWorker 创建 Worker，工具白名单中的每个工具都必须已注册
func NewWorker(cfg WorkerConfig, provider llm.Provider, registry tools.ToolRegistry, resolver market.SymbolResolver, logger *zap.Logger) (*Worker, error) {
	if provider == nil {
		return nil, ErrProviderNotSet
	}
	if cfg.Name == "" {
		return nil, fmt.Errorf("%w: worker name is required", ErrConfigInvalid)
	}
	if len(cfg.Tools) == 0 {
		return nil, fmt.Errorf("%w: worker %s has no tools", ErrConfigInvalid, cfg.Name)
	}
	if registry == nil {
		return nil, fmt.Errorf("%w: worker %s has no tool registry", ErrConfigInvalid, cfg.Name)
	}
	schemas, err := registry.Schemas(cfg.Tools)
	if err != nil {
		return nil, fmt.Errorf("%w: worker %s: %v", ErrConfigInvalid, cfg.Name, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 4
	}
	if cfg.MaxSummaryTokens <= 0 {
		cfg.MaxSummaryTokens = 400
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = BuildSystemPrompt("You are a Colombo Stock Exchange research assistant.")
	}

	return &Worker{
		cfg:       cfg,
		provider:  provider,
		registry:  registry,
		executor:  tools.NewScopedExecutor(registry, cfg.Tools, cfg.MaxConcurrentTools, logger),
		schemas:   schemas,
		resolver:  resolver,
		tokenizer: tokenizer.ForModel(cfg.Model),
		logger:    logger.With(zap.String("component", "worker"), zap.String("worker", cfg.Name)),
	}, nil
}

// Name returns the worker's routing name.
func (w *Worker) Name() string { return w.cfg.Name }

// Description returns the capability description shown to the supervisor.
func (w *Worker) Description() string { return w.cfg.Description }

// Tools returns the whitelisted tool names.
func (w *Worker) Tools() []string { return append([]string(nil), w.cfg.Tools...) }

// Run executes the bounded reasoning loop for one subtask. It fails only when
// ctx is cancelled; every other problem is reported through the Summary.
func (w *Worker) Run(ctx context.Context, subtask string) (*Summary, error) {
	ctx = ctxkeys.WithWorker(ctx, w.cfg.Name)
	start := time.Now()
	summary := &Summary{Worker: w.cfg.Name, Subtask: subtask}

	messages := []llm.Message{
		llm.NewSystemMessage(w.cfg.SystemPrompt),
		llm.NewUserMessage(subtask),
	}

	var final string
	finished := false

	for summary.Steps < w.cfg.MaxSteps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		summary.Steps++

		msg, err := w.complete(ctx, messages, true)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			w.logger.Warn("inference failed", zap.Int("step", summary.Steps), zap.Error(err))
			summary.addLimitation(fmt.Sprintf("analysis incomplete, the language model failed: %s", shortError(err)))
			finished = true
			break
		}

		if len(msg.ToolCalls) == 0 {
			final = msg.Content
			finished = true
			break
		}

		messages = append(messages, msg)
		results := w.executeStep(ctx, summary, msg.ToolCalls)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, res := range results {
			messages = append(messages, res.ToMessage())
		}
	}

	if !finished {
		summary.addLimitation(fmt.Sprintf("step budget of %d exhausted before the subtask was complete", w.cfg.MaxSteps))
		messages = append(messages, llm.NewUserMessage(budgetExhaustedPrompt))
		msg, err := w.complete(ctx, messages, false)
		switch {
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			w.logger.Warn("final summary failed", zap.Error(err))
		default:
			final = msg.Content
		}
	}

	final = strings.TrimSpace(final)
	if final == "" {
		final = fmt.Sprintf("The %s could not produce findings for: %s", w.cfg.Name, subtask)
	}
	summary.Text = tokenizer.Clamp(w.tokenizer, final, w.cfg.MaxSummaryTokens)

	w.logger.Info("subtask completed",
		zap.Int("steps", summary.Steps),
		zap.Int("tool_calls", summary.ToolCalls),
		zap.Int("limitations", len(summary.Limitations)),
		zap.Duration("duration", time.Since(start)))

	return summary, nil
}

func (w *Worker) complete(ctx context.Context, messages []llm.Message, withTools bool) (llm.Message, error) {
	req := &llm.ChatRequest{
		Model:       w.cfg.Model,
		Messages:    messages,
		Temperature: w.cfg.Temperature,
		Timeout:     w.cfg.StepTimeout,
		Metadata:    map[string]string{"worker": w.cfg.Name},
	}
	if runID, ok := ctxkeys.RunID(ctx); ok {
		req.TraceID = runID
	}
	if withTools {
		parallel := true
		req.Tools = w.schemas
		req.ToolChoice = llm.ToolChoiceAuto
		req.ParallelToolCalls = &parallel
	}

	resp, err := w.provider.Completion(ctx, req)
	if err != nil {
		return llm.Message{}, err
	}
	choice, err := llm.FirstChoice(resp)
	if err != nil {
		return llm.Message{}, err
	}
	msg := choice.Message
	msg.Role = llm.RoleAssistant
	msg.Name = w.cfg.Name
	return msg, nil
}

// executeStep resolves symbol arguments, runs the permitted calls concurrently
// and folds failures into the summary. Results are in call order.
func (w *Worker) executeStep(ctx context.Context, summary *Summary, calls []llm.ToolCall) []types.ToolResult {
	results := make([]types.ToolResult, len(calls))
	pending := make([]llm.ToolCall, 0, len(calls))
	pendingIdx := make([]int, 0, len(calls))
	refs := make([]string, len(calls))

	for i, call := range calls {
		summary.ToolCalls++
		Emit(ctx, TraceEvent{
			Kind:   TraceToolCall,
			Actor:  w.cfg.Name,
			Step:   summary.Steps,
			Tool:   call.Name,
			Detail: string(call.Arguments),
		})

		resolved, ref, res := w.resolveSymbol(ctx, call)
		refs[i] = ref
		if res != nil {
			results[i] = *res
			continue
		}
		pending = append(pending, resolved)
		pendingIdx = append(pendingIdx, i)
	}

	for j, res := range w.executor.ExecuteAll(ctx, pending) {
		results[pendingIdx[j]] = res
	}

	for i, res := range results {
		ev := TraceEvent{
			Kind:  TraceToolResult,
			Actor: w.cfg.Name,
			Step:  summary.Steps,
			Tool:  res.Name,
			Data:  map[string]any{"duration_ms": res.Duration.Milliseconds()},
		}
		if res.IsError() {
			ev.Error = res.Error
			ev.Data["code"] = string(res.ErrorCode)
			switch {
			case res.ErrorCode == types.ErrAmbiguousSymbol && refs[i] != "":
				summary.addAmbiguous(refs[i])
				summary.addLimitation(fmt.Sprintf("could not resolve %q to a single listed CSE security", refs[i]))
			case ctx.Err() == nil:
				summary.addLimitation(describeLimitation(calls[i].Name, refs[i], res))
			}
		} else {
			ev.Detail = preview(string(res.Result), 200)
		}
		Emit(ctx, ev)
	}
	return results
}

// resolveSymbol rewrites the symbol argument of a data-retrieval call to its
// canonical ticker. A non-nil result means the call must not be executed.
func (w *Worker) resolveSymbol(ctx context.Context, call llm.ToolCall) (llm.ToolCall, string, *types.ToolResult) {
	if w.resolver == nil || !w.executor.Permits(call.Name) {
		return call, "", nil
	}
	_, meta, err := w.registry.Get(call.Name)
	if err != nil || meta.SymbolArgument == "" {
		return call, "", nil
	}

	var args map[string]any
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		return call, "", nil
	}
	ref, ok := args[meta.SymbolArgument].(string)
	if !ok {
		// Argument validation reports the type error.
		return call, "", nil
	}

	ticker, err := w.resolver.Resolve(ctx, ref)
	if err != nil {
		code := types.GetErrorCode(err)
		if code == "" {
			code = types.ErrAmbiguousSymbol
		}
		w.logger.Info("symbol not resolved", zap.String("ref", ref), zap.Error(err))
		return call, ref, &types.ToolResult{
			ToolCallID: call.ID,
			Name:       call.Name,
			Error:      err.Error(),
			ErrorCode:  code,
		}
	}
	if ticker == ref {
		return call, ticker, nil
	}

	args[meta.SymbolArgument] = ticker
	rewritten, err := json.Marshal(args)
	if err != nil {
		return call, ref, nil
	}
	call.Arguments = rewritten
	return call, ticker, nil
}

func describeLimitation(tool, ref string, res types.ToolResult) string {
	subject := ""
	if ref != "" {
		subject = " for " + ref
	}
	var what string
	switch tool {
	case tools.PriceToolName:
		what = "price data unavailable" + subject
	case tools.RSIToolName:
		what = "RSI unavailable" + subject
	case tools.OverviewToolName:
		what = "market overview unavailable"
	case tools.NewsToolName:
		what = "news search unavailable"
	default:
		what = fmt.Sprintf("tool %s failed%s", tool, subject)
	}
	return fmt.Sprintf("%s (%s)", what, res.ErrorCode)
}

func shortError(err error) string {
	if te, ok := types.AsError(err); ok {
		return fmt.Sprintf("%s %s", te.Code, te.Message)
	}
	return err.Error()
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
