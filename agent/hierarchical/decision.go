package hierarchical

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BaSui01/csescout/llm"
	"github.com/BaSui01/csescout/types"
)

// Finish is the routing target that ends a run.
const Finish = "FINISH"

// RouteToolName is the structured-output tool the supervisor must call.
const RouteToolName = "route"

// DecisionKind 路由决策类型
type DecisionKind string

const (
	DecisionDelegate DecisionKind = "delegate"
	DecisionFinish   DecisionKind = "finish"
)

// Assignment delegates one subtask to a named worker.
type Assignment struct {
	Worker string `json:"worker"`
	Task   string `json:"task"`
}

// RouteDecision is a closed variant: either Delegate with one or more
// assignments, or Finish with the final answer. Values are only built by
// Delegate, FinishWith or ParseRouteDecision.
type RouteDecision struct {
	kind        DecisionKind
	assignments []Assignment
	answer      string
}

// Delegate builds a delegate decision. The first assignment becomes "next".
func Delegate(assignments ...Assignment) RouteDecision {
	return RouteDecision{kind: DecisionDelegate, assignments: append([]Assignment(nil), assignments...)}
}

// FinishWith builds a finish decision.
func FinishWith(answer string) RouteDecision {
	return RouteDecision{kind: DecisionFinish, answer: answer}
}

func (d RouteDecision) Kind() DecisionKind { return d.kind }
func (d RouteDecision) IsFinish() bool     { return d.kind == DecisionFinish }
func (d RouteDecision) Answer() string     { return d.answer }

// Assignments returns the delegated subtasks in dispatch order.
func (d RouteDecision) Assignments() []Assignment {
	return append([]Assignment(nil), d.assignments...)
}

// Targets returns the worker names in dispatch order, or [FINISH].
func (d RouteDecision) Targets() []string {
	if d.IsFinish() {
		return []string{Finish}
	}
	out := make([]string, len(d.assignments))
	for i, a := range d.assignments {
		out[i] = a.Worker
	}
	return out
}

// routeArgs is the wire form of the route tool arguments.
type routeArgs struct {
	Next     string       `json:"next"`
	Task     string       `json:"task,omitempty"`
	Parallel []Assignment `json:"parallel,omitempty"`
	Answer   string       `json:"answer,omitempty"`
}

// MarshalJSON encodes the decision as route tool arguments.
func (d RouteDecision) MarshalJSON() ([]byte, error) {
	switch d.kind {
	case DecisionFinish:
		return json.Marshal(routeArgs{Next: Finish, Answer: d.answer})
	case DecisionDelegate:
		if len(d.assignments) == 0 {
			return nil, fmt.Errorf("delegate decision without assignments")
		}
		return json.Marshal(routeArgs{
			Next:     d.assignments[0].Worker,
			Task:     d.assignments[0].Task,
			Parallel: d.assignments[1:],
		})
	default:
		return nil, fmt.Errorf("route decision has no kind")
	}
}

// RouteSchema 描述路由工具的参数 schema，worker 名称以 enum 形式闭合
func RouteSchema(workers []string, maxFanOut int) *types.JSONSchema {
	names := append(append([]string(nil), workers...), Finish)

	assignment := types.NewObjectSchema().
		AddProperty("worker", types.NewEnumSchema(workers...)).
		AddProperty("task", types.NewStringSchema().WithLength(1, 2000)).
		AddRequired("worker", "task").
		Closed()

	parallel := types.NewArraySchema(assignment).
		WithDescription("Additional independent subtasks to run at the same time as next/task.")
	if maxFanOut > 0 {
		limit := maxFanOut - 1
		parallel.MaxItems = &limit
	}

	return types.NewObjectSchema().
		AddProperty("next", types.NewEnumSchema(names...).
			WithDescription("The worker to act next, or FINISH when the user's question is fully answered.")).
		AddProperty("task", types.NewStringSchema().WithLength(1, 2000).
			WithDescription("Self-contained subtask for the worker named in next.")).
		AddProperty("parallel", parallel).
		AddProperty("answer", types.NewStringSchema().
			WithDescription("Final answer for the user. Required with FINISH.")).
		AddRequired("next").
		Closed()
}

// RouteTool returns the tool schema offered to the supervisor.
func RouteTool(workers []string, maxFanOut int) llm.ToolSchema {
	return llm.ToolSchema{
		Name:        RouteToolName,
		Description: "Select the next worker(s) or FINISH with the final answer.",
		Parameters:  RouteSchema(workers, maxFanOut).MustJSON(),
	}
}

// ParseRouteDecision validates raw route arguments against the closed
// schema for the given workers. Any violation is a ROUTING_VALIDATION error.
func ParseRouteDecision(raw json.RawMessage, workers []string, maxFanOut int) (RouteDecision, error) {
	raw = json.RawMessage(bytes.TrimSpace(raw))
	if len(raw) == 0 {
		return RouteDecision{}, routingInvalid("empty routing decision")
	}
	if err := RouteSchema(workers, maxFanOut).Validate(raw); err != nil {
		return RouteDecision{}, routingInvalid(err.Error())
	}

	var args routeArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return RouteDecision{}, routingInvalid("malformed routing decision: " + err.Error())
	}

	if args.Next == Finish {
		if strings.TrimSpace(args.Answer) == "" {
			return RouteDecision{}, routingInvalid("FINISH requires a non-empty answer")
		}
		if args.Task != "" || len(args.Parallel) > 0 {
			return RouteDecision{}, routingInvalid("FINISH must not carry task or parallel assignments")
		}
		return FinishWith(args.Answer), nil
	}

	if strings.TrimSpace(args.Task) == "" {
		return RouteDecision{}, routingInvalid(fmt.Sprintf("next=%s requires a task", args.Next))
	}
	if args.Answer != "" {
		return RouteDecision{}, routingInvalid("answer is only allowed with FINISH")
	}
	assignments := make([]Assignment, 0, 1+len(args.Parallel))
	assignments = append(assignments, Assignment{Worker: args.Next, Task: args.Task})
	for i, a := range args.Parallel {
		if !contains(workers, a.Worker) {
			return RouteDecision{}, routingInvalid(fmt.Sprintf("parallel[%d]: unknown worker %q", i, a.Worker))
		}
		if strings.TrimSpace(a.Task) == "" {
			return RouteDecision{}, routingInvalid(fmt.Sprintf("parallel[%d] has an empty task", i))
		}
		assignments = append(assignments, a)
	}
	return Delegate(assignments...), nil
}

func routingInvalid(msg string) *types.Error {
	return types.NewError(types.ErrRoutingValidation, msg)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
