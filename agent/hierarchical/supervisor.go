package hierarchical

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/csescout/agent"
	"github.com/BaSui01/csescout/llm"
	"github.com/BaSui01/csescout/types"
	"go.uber.org/zap"
)

// WorkerInfo is what the supervisor knows about a worker.
type WorkerInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// SupervisorConfig 监督者配置
type SupervisorConfig struct {
	Model       string        `yaml:"model" json:"model"`
	Temperature float32       `yaml:"temperature" json:"temperature"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
	// MaxFanOut bounds the assignments in one delegate decision.
	MaxFanOut int `yaml:"max_fan_out" json:"max_fan_out"`
}

// DefaultSupervisorConfig 默认配置
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		Timeout:   60 * time.Second,
		MaxFanOut: 4,
	}
}

const supervisorRole = `You are the Supervisor of a Colombo Stock Exchange (CSE) research team.
You never call market tools yourself. You decide who acts next by calling the route tool.

Team:
%s

Routing rules:
- Delegate one self-contained task per worker. Include the tickers or company names it needs.
- When subtasks are independent (for example the prices of two different tickers), put the first in next/task and the others in parallel so they run at the same time.
- Do not ask a worker again for something it has already reported.
- When the conversation holds enough information, call route with next=FINISH and write the final answer for the user in answer.
- If a worker reports an unresolved symbol, FINISH with a short clarifying question instead of guessing.`

// Supervisor decides the next routing step from the full shared state.
type Supervisor struct {
	cfg      SupervisorConfig
	provider llm.Provider
	workers  []WorkerInfo
	names    []string
	tool     llm.ToolSchema
	prompt   string
	logger   *zap.Logger
}

// NewSupervisor 创建监督者。Provider 必须支持原生 Function Calling
func NewSupervisor(cfg SupervisorConfig, provider llm.Provider, workers []WorkerInfo, logger *zap.Logger) (*Supervisor, error) {
	if provider == nil {
		return nil, agent.ErrProviderNotSet
	}
	if !provider.SupportsNativeFunctionCalling() {
		return nil, fmt.Errorf("%w: provider %s has no native function calling", agent.ErrConfigInvalid, provider.Name())
	}
	if len(workers) == 0 {
		return nil, fmt.Errorf("%w: supervisor needs at least one worker", agent.ErrConfigInvalid)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFanOut <= 0 {
		cfg.MaxFanOut = 4
	}

	names := make([]string, 0, len(workers))
	var team strings.Builder
	for _, w := range workers {
		if w.Name == "" || w.Name == Finish || contains(names, w.Name) {
			return nil, fmt.Errorf("%w: invalid or duplicate worker name %q", agent.ErrConfigInvalid, w.Name)
		}
		names = append(names, w.Name)
		fmt.Fprintf(&team, "- %s: %s\n", w.Name, w.Description)
	}

	return &Supervisor{
		cfg:      cfg,
		provider: provider,
		workers:  append([]WorkerInfo(nil), workers...),
		names:    names,
		tool:     RouteTool(names, cfg.MaxFanOut),
		prompt:   fmt.Sprintf(supervisorRole, strings.TrimRight(team.String(), "\n")) + "\n\n" + agent.MarketRules,
		logger:   logger.With(zap.String("component", "supervisor")),
	}, nil
}

// Workers returns the names the supervisor may route to.
func (s *Supervisor) Workers() []string { return append([]string(nil), s.names...) }

// Route asks the provider for one decision. An invalid decision is re-prompted
// once with the validation message; a second failure is RUN_ROUTING_FAILURE.
func (s *Supervisor) Route(ctx context.Context, state *SharedState) (RouteDecision, error) {
	messages := make([]llm.Message, 0, state.Len()+3)
	messages = append(messages, llm.NewSystemMessage(s.prompt))
	messages = append(messages, state.Messages()...)

	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		msg, err := s.complete(ctx, messages)
		if err != nil {
			if ctx.Err() != nil {
				return RouteDecision{}, ctx.Err()
			}
			s.logger.Warn("supervisor inference failed", zap.Int("attempt", attempt), zap.Error(err))
			return RouteDecision{}, types.NewError(types.ErrRoutingFailure, "supervisor inference failed").WithCause(err)
		}

		decision, callID, err := s.decode(msg)
		if err == nil {
			s.logger.Debug("route decision",
				zap.Strings("targets", decision.Targets()),
				zap.Int("attempt", attempt))
			raw, _ := json.Marshal(decision)
			agent.Emit(ctx, agent.TraceEvent{
				Kind:   agent.TraceSupervisorDecision,
				Actor:  "supervisor",
				Step:   state.Steps(),
				Detail: string(raw),
				Data: map[string]any{
					"kind":    string(decision.Kind()),
					"targets": decision.Targets(),
					"attempt": attempt,
				},
			})
			return decision, nil
		}

		lastErr = err
		s.logger.Info("invalid route decision", zap.Int("attempt", attempt), zap.Error(err))
		agent.Emit(ctx, agent.TraceEvent{
			Kind:  agent.TraceRoutingRetry,
			Actor: "supervisor",
			Step:  state.Steps(),
			Error: err.Error(),
			Data:  map[string]any{"attempt": attempt},
		})
		messages = append(messages, s.feedback(msg, callID, err)...)
	}

	return RouteDecision{}, types.NewError(types.ErrRoutingFailure,
		"supervisor produced no valid routing decision after re-prompt").WithCause(lastErr)
}

func (s *Supervisor) complete(ctx context.Context, messages []llm.Message) (llm.Message, error) {
	parallel := false
	req := &llm.ChatRequest{
		Model:             s.cfg.Model,
		Messages:          messages,
		Temperature:       s.cfg.Temperature,
		Timeout:           s.cfg.Timeout,
		Tools:             []llm.ToolSchema{s.tool},
		ToolChoice:        RouteToolName,
		ParallelToolCalls: &parallel,
		Metadata:          map[string]string{"role": "supervisor"},
	}
	resp, err := s.provider.Completion(ctx, req)
	if err != nil {
		return llm.Message{}, err
	}
	choice, err := llm.FirstChoice(resp)
	if err != nil {
		return llm.Message{}, err
	}
	msg := choice.Message
	msg.Role = llm.RoleAssistant
	return msg, nil
}

// decode extracts exactly one route call. A JSON object in the content is
// accepted when the model answered without a tool call.
func (s *Supervisor) decode(msg llm.Message) (RouteDecision, string, error) {
	var calls []llm.ToolCall
	for _, c := range msg.ToolCalls {
		if c.Name != RouteToolName {
			return RouteDecision{}, c.ID, routingInvalid(fmt.Sprintf("unknown tool %q, only %s may be called", c.Name, RouteToolName))
		}
		calls = append(calls, c)
	}
	switch len(calls) {
	case 1:
		d, err := ParseRouteDecision(calls[0].Arguments, s.names, s.cfg.MaxFanOut)
		return d, calls[0].ID, err
	case 0:
		content := stripCodeFence(msg.Content)
		if !strings.HasPrefix(content, "{") {
			return RouteDecision{}, "", routingInvalid("no routing decision: call the route tool")
		}
		d, err := ParseRouteDecision(json.RawMessage(content), s.names, s.cfg.MaxFanOut)
		return d, "", err
	default:
		return RouteDecision{}, calls[0].ID, routingInvalid(fmt.Sprintf("expected exactly one route call, got %d", len(calls)))
	}
}

// feedback builds the re-prompt messages for an invalid decision.
func (s *Supervisor) feedback(msg llm.Message, callID string, err error) []llm.Message {
	text := fmt.Sprintf("Invalid routing decision: %s. Call %s again with next set to one of %s.",
		validationMessage(err), RouteToolName, strings.Join(append(s.Workers(), Finish), ", "))
	if callID != "" && len(msg.ToolCalls) > 0 {
		out := []llm.Message{msg}
		for _, c := range msg.ToolCalls {
			out = append(out, llm.Message{
				Role:       llm.RoleTool,
				Name:       c.Name,
				ToolCallID: c.ID,
				Content:    text,
			})
		}
		return out
	}
	return []llm.Message{msg, llm.NewUserMessage(text)}
}

func validationMessage(err error) string {
	var te *types.Error
	if errors.As(err, &te) {
		return te.Message
	}
	return err.Error()
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
