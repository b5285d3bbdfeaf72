package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/BaSui01/csescout/llm"
	"github.com/BaSui01/csescout/types"
	"go.uber.org/zap"
)

// ToolFunc defines the tool function signature.
type ToolFunc func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

// ToolMetadata describes tool metadata.
type ToolMetadata struct {
	Schema     llm.ToolSchema    // Tool schema advertised to the model
	Parameters *types.JSONSchema // Parsed parameter schema used for argument validation
	Timeout    time.Duration     // Execution timeout (default 10s)
	Upstream   string            // External collaborator name, e.g. "cse" or "tavily"

	// SymbolArgument names the argument holding a ticker/company reference.
	// Workers resolve it to a canonical symbol before invoking the tool.
	SymbolArgument string
}

// ToolObserver receives one notification per invocation.
type ToolObserver interface {
	ObserveToolCall(tool string, code types.ErrorCode, duration time.Duration)
}

// ToolRegistry is the fixed catalog of named, schema-validated tools.
type ToolRegistry interface {
	Register(fn ToolFunc, metadata ToolMetadata) error
	Get(name string) (ToolFunc, ToolMetadata, error)
	List() []llm.ToolSchema
	Schemas(names []string) ([]llm.ToolSchema, error)
	Has(name string) bool
	Invoke(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error)
}

// ====== 实现：DefaultRegistry ======

// DefaultRegistry is populated at startup and read-only afterwards; Invoke
// holds no per-call state so Workers may call it concurrently.
type DefaultRegistry struct {
	mu       sync.RWMutex
	tools    map[string]ToolFunc
	metadata map[string]ToolMetadata
	observer ToolObserver
	logger   *zap.Logger
}

// NewDefaultRegistry 创建默认的工具注册中心。
func NewDefaultRegistry(logger *zap.Logger) *DefaultRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DefaultRegistry{
		tools:    make(map[string]ToolFunc),
		metadata: make(map[string]ToolMetadata),
		logger:   logger.With(zap.String("component", "tool_registry")),
	}
}

// SetObserver installs a metrics observer.
func (r *DefaultRegistry) SetObserver(o ToolObserver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observer = o
}

func (r *DefaultRegistry) Register(fn ToolFunc, metadata ToolMetadata) error {
	name := metadata.Schema.Name
	if name == "" {
		return errors.New("tool schema name is required")
	}
	if fn == nil {
		return fmt.Errorf("tool %s: nil function", name)
	}

	// 参数 Schema：优先使用结构化定义，否则从 Schema.Parameters 解析
	switch {
	case metadata.Parameters != nil && len(metadata.Schema.Parameters) == 0:
		data, err := metadata.Parameters.ToJSON()
		if err != nil {
			return fmt.Errorf("tool %s: marshal parameters: %w", name, err)
		}
		metadata.Schema.Parameters = data
	case metadata.Parameters == nil && len(metadata.Schema.Parameters) > 0:
		parsed, err := types.FromJSON(metadata.Schema.Parameters)
		if err != nil {
			return fmt.Errorf("tool %s: %w", name, err)
		}
		metadata.Parameters = parsed
	case metadata.Parameters == nil:
		metadata.Parameters = types.NewObjectSchema()
		metadata.Schema.Parameters = metadata.Parameters.MustJSON()
	}

	if metadata.Timeout == 0 {
		metadata.Timeout = 10 * time.Second
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	r.tools[name] = fn
	r.metadata[name] = metadata

	r.logger.Info("tool registered",
		zap.String("name", name),
		zap.String("version", metadata.Schema.Version),
		zap.Duration("timeout", metadata.Timeout))
	return nil
}

func (r *DefaultRegistry) Get(name string) (ToolFunc, ToolMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.tools[name]
	if !ok {
		return nil, ToolMetadata{}, types.NewError(types.ErrToolUnknown, fmt.Sprintf("tool %q is not registered", name))
	}
	return fn, r.metadata[name], nil
}

// List returns every schema sorted by name.
func (r *DefaultRegistry) List() []llm.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]llm.ToolSchema, 0, len(r.metadata))
	for _, meta := range r.metadata {
		schemas = append(schemas, meta.Schema)
	}
	sort.Slice(schemas, func(i, j int) bool { return schemas[i].Name < schemas[j].Name })
	return schemas
}

// Schemas returns the schemas of the named subset, in the given order.
// Unknown names are a configuration error.
func (r *DefaultRegistry) Schemas(names []string) ([]llm.ToolSchema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]llm.ToolSchema, 0, len(names))
	for _, name := range names {
		meta, ok := r.metadata[name]
		if !ok {
			return nil, types.NewError(types.ErrToolUnknown, fmt.Sprintf("tool %q is not registered", name))
		}
		out = append(out, meta.Schema)
	}
	return out, nil
}

func (r *DefaultRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Invoke runs one tool. Failures are always *types.Error with one of
// TOOL_UNKNOWN, TOOL_INVALID_ARGUMENTS or TOOL_UPSTREAM_FAILURE.
func (r *DefaultRegistry) Invoke(ctx context.Context, name string, args json.RawMessage) (result json.RawMessage, err error) {
	start := time.Now()
	defer func() {
		r.mu.RLock()
		observer := r.observer
		r.mu.RUnlock()
		if observer != nil {
			observer.ObserveToolCall(name, types.GetErrorCode(err), time.Since(start))
		}
	}()

	fn, meta, err := r.Get(name)
	if err != nil {
		r.logger.Warn("unknown tool requested", zap.String("name", name))
		return nil, err
	}

	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if verr := meta.Parameters.Validate(args); verr != nil {
		r.logger.Debug("invalid tool arguments", zap.String("name", name), zap.Error(verr))
		return nil, types.NewError(types.ErrToolInvalidArguments, fmt.Sprintf("invalid arguments for %s", name)).
			WithCause(verr)
	}

	execCtx, cancel := context.WithTimeout(ctx, meta.Timeout)
	defer cancel()

	// 使用带缓冲的 channel 防止 goroutine 泄漏
	type outcome struct {
		res json.RawMessage
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("tool panicked: %v", p)}
			}
		}()
		res, err := fn(execCtx, args)
		done <- outcome{res: res, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			r.logger.Warn("tool execution failed",
				zap.String("name", name),
				zap.Error(out.err),
				zap.Duration("duration", time.Since(start)))
			return nil, r.upstreamFailure(name, meta, out.err)
		}
		r.logger.Debug("tool executed",
			zap.String("name", name),
			zap.Duration("duration", time.Since(start)))
		return out.res, nil

	case <-execCtx.Done():
		if ctx.Err() != nil {
			// 调用方取消：原样传播，交由调度器转换为 Cancelled
			return nil, ctx.Err()
		}
		r.logger.Warn("tool execution timeout",
			zap.String("name", name),
			zap.Duration("timeout", meta.Timeout))
		return nil, types.NewError(types.ErrToolUpstreamFailure,
			fmt.Sprintf("%s timed out after %s", name, meta.Timeout)).
			WithProvider(meta.Upstream).
			WithCause(execCtx.Err())
	}
}

func (r *DefaultRegistry) upstreamFailure(name string, meta ToolMetadata, err error) error {
	if te, ok := types.AsError(err); ok {
		switch te.Code {
		case types.ErrToolUpstreamFailure, types.ErrToolInvalidArguments, types.ErrAmbiguousSymbol:
			return err
		}
	}
	return types.NewError(types.ErrToolUpstreamFailure, fmt.Sprintf("%s failed", name)).
		WithProvider(meta.Upstream).
		WithCause(err)
}
