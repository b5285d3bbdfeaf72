package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/csescout/llm"
	"github.com/BaSui01/csescout/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ToolExecutor executes the tool calls of one reasoning step.
type ToolExecutor interface {
	// ExecuteAll runs all calls concurrently and returns results in call order.
	ExecuteAll(ctx context.Context, calls []llm.ToolCall) []types.ToolResult
}

// ScopedExecutor executes calls against a registry, restricted to a whitelist.
// Workers each own one, which is how capability partitioning is enforced.
type ScopedExecutor struct {
	registry       ToolRegistry
	allowed        map[string]struct{}
	maxConcurrency int
	logger         *zap.Logger
}

// NewScopedExecutor 创建带白名单的执行器；allowed 为空表示允许全部工具。
func NewScopedExecutor(registry ToolRegistry, allowed []string, maxConcurrency int, logger *zap.Logger) *ScopedExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	var set map[string]struct{}
	if len(allowed) > 0 {
		set = make(map[string]struct{}, len(allowed))
		for _, name := range allowed {
			set[name] = struct{}{}
		}
	}
	return &ScopedExecutor{
		registry:       registry,
		allowed:        set,
		maxConcurrency: maxConcurrency,
		logger:         logger.With(zap.String("component", "tool_executor")),
	}
}

// Permits reports whether the executor may invoke the named tool.
func (e *ScopedExecutor) Permits(name string) bool {
	if e.allowed == nil {
		return true
	}
	_, ok := e.allowed[name]
	return ok
}

func (e *ScopedExecutor) ExecuteAll(ctx context.Context, calls []llm.ToolCall) []types.ToolResult {
	results := make([]types.ToolResult, len(calls))

	var g errgroup.Group
	if e.maxConcurrency > 0 {
		g.SetLimit(e.maxConcurrency)
	}
	for i, call := range calls {
		g.Go(func() error {
			results[i] = e.ExecuteOne(ctx, call)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// ExecuteOne runs a single call and converts any failure into the result's error fields.
func (e *ScopedExecutor) ExecuteOne(ctx context.Context, call llm.ToolCall) types.ToolResult {
	start := time.Now()
	result := types.ToolResult{ToolCallID: call.ID, Name: call.Name}

	if !e.Permits(call.Name) {
		if e.registry.Has(call.Name) {
			result.ErrorCode = types.ErrToolNotPermitted
			result.Error = fmt.Sprintf("tool %q is outside this agent's capabilities", call.Name)
		} else {
			result.ErrorCode = types.ErrToolUnknown
			result.Error = fmt.Sprintf("tool %q is not registered", call.Name)
		}
		result.Duration = time.Since(start)
		e.logger.Warn("tool call rejected", zap.String("name", call.Name), zap.String("code", string(result.ErrorCode)))
		return result
	}

	res, err := e.registry.Invoke(ctx, call.Name, call.Arguments)
	result.Duration = time.Since(start)
	if err != nil {
		result.Error = err.Error()
		result.ErrorCode = types.GetErrorCode(err)
		if result.ErrorCode == "" && ctx.Err() != nil {
			result.ErrorCode = types.ErrCancelled
		}
		return result
	}
	result.Result = res
	return result
}
