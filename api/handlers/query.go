package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/BaSui01/csescout/agent"
	"github.com/BaSui01/csescout/agent/hierarchical"
	"github.com/BaSui01/csescout/api"
	"github.com/BaSui01/csescout/types"
	"go.uber.org/zap"
)

// =============================================================================
// 🔍 研究查询 Handler
// =============================================================================

// QueryRunner 执行一次研究运行。*hierarchical.Scheduler 实现该接口
type QueryRunner interface {
	RunQuery(ctx context.Context, query string, opts ...hierarchical.RunOption) (*hierarchical.FinalAnswer, error)
}

// QueryValidator 入口处的问题校验。*guardrails.QueryValidator 实现该接口
type QueryValidator interface {
	Validate(query string) error
}

// RunRecorder 持久化运行结果。*runstore.Store 实现该接口
type RunRecorder interface {
	SaveOutcome(ctx context.Context, ans *hierarchical.FinalAnswer, runErr error) error
}

// recordTimeout 持久化运行记录的上限，客户端断开后仍会写入
const recordTimeout = 5 * time.Second

// QueryHandler 研究查询处理器
type QueryHandler struct {
	runner    QueryRunner
	validator QueryValidator
	recorder  RunRecorder
	logger    *zap.Logger

	// originPatterns 允许的 WebSocket 跨域来源（host 模式）
	originPatterns []string
}

// QueryOption 配置 QueryHandler
type QueryOption func(*QueryHandler)

// WithValidator 设置问题校验器
func WithValidator(v QueryValidator) QueryOption {
	return func(h *QueryHandler) { h.validator = v }
}

// WithRecorder 设置运行记录存储
func WithRecorder(r RunRecorder) QueryOption {
	return func(h *QueryHandler) { h.recorder = r }
}

// WithOriginPatterns 设置流式接口允许的跨域来源
func WithOriginPatterns(patterns ...string) QueryOption {
	return func(h *QueryHandler) { h.originPatterns = patterns }
}

// NewQueryHandler 创建研究查询处理器
func NewQueryHandler(runner QueryRunner, logger *zap.Logger, opts ...QueryOption) *QueryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &QueryHandler{
		runner: runner,
		logger: logger.With(zap.String("handler", "query")),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleQuery 处理 POST /api/v1/query
// @Summary 研究查询
// @Description 执行一次完整的 supervisor/worker 运行并返回经过护栏的答案
// @Tags 查询
// @Accept json
// @Produce json
// @Param request body api.QueryRequest true "查询请求"
// @Success 200 {object} Response{data=api.QueryResponse} "运行成功"
// @Failure 400 {object} Response "无效请求"
// @Failure 502 {object} Response{data=api.RunFailure} "路由失败"
// @Failure 508 {object} Response{data=api.RunFailure} "达到步数上限"
// @Router /api/v1/query [post]
func (h *QueryHandler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.QueryRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if apiErr := h.validate(req.Query); apiErr != nil {
		WriteError(w, apiErr, h.logger)
		return
	}

	ans, err := h.run(r.Context(), req, nil)
	if err != nil {
		h.writeRunError(w, err, req.IncludeTrace)
		return
	}
	WriteSuccess(w, toQueryResponse(ans, req.IncludeTrace))
}

func (h *QueryHandler) validate(query string) *types.Error {
	if h.validator == nil {
		if query == "" {
			return types.NewError(types.ErrInvalidRequest, "query is required")
		}
		return nil
	}
	err := h.validator.Validate(query)
	if err == nil {
		return nil
	}
	if e, ok := types.AsError(err); ok {
		return e
	}
	return types.NewError(types.ErrInvalidRequest, err.Error())
}

// run 执行查询并写入运行记录
func (h *QueryHandler) run(ctx context.Context, req api.QueryRequest, onTrace func(agent.TraceEvent)) (*hierarchical.FinalAnswer, error) {
	var opts []hierarchical.RunOption
	if req.RunID != "" {
		opts = append(opts, hierarchical.WithRunID(req.RunID))
	}
	if onTrace != nil {
		opts = append(opts, hierarchical.WithTraceHandler(onTrace))
	}

	ans, err := h.runner.RunQuery(ctx, req.Query, opts...)
	h.record(ctx, ans, err)
	return ans, err
}

func (h *QueryHandler) record(ctx context.Context, ans *hierarchical.FinalAnswer, runErr error) {
	if h.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := h.recorder.SaveOutcome(ctx, ans, runErr); err != nil {
		h.logger.Error("failed to record run", zap.Error(err))
	}
}

func (h *QueryHandler) writeRunError(w http.ResponseWriter, err error, includeTrace bool) {
	failure, apiErr := toRunFailure(err, includeTrace)
	status := apiErr.HTTPStatus
	if status == 0 {
		status = mapErrorCodeToHTTPStatus(apiErr.Code)
	}
	h.logger.Warn("run failed",
		zap.String("run_id", failure.RunID),
		zap.String("outcome", failure.Outcome),
		zap.String("code", failure.Code),
		zap.Int("steps", failure.Steps),
	)
	WriteJSON(w, status, Response{
		Success: false,
		Data:    failure,
		Error: &ErrorInfo{
			Code:       string(apiErr.Code),
			Message:    apiErr.Message,
			Retryable:  apiErr.Retryable,
			HTTPStatus: status,
		},
		Timestamp: time.Now(),
	})
}

// =============================================================================
// 🔄 转换
// =============================================================================

func toQueryResponse(ans *hierarchical.FinalAnswer, includeTrace bool) *api.QueryResponse {
	resp := &api.QueryResponse{
		RunID:      ans.RunID,
		Answer:     ans.Text,
		Flagged:    ans.Flagged,
		Matches:    ans.Matches,
		Steps:      ans.Steps,
		DurationMS: ans.Duration.Milliseconds(),
	}
	if includeTrace {
		resp.Trace = ans.Trace
	}
	return resp
}

// toRunFailure 将运行错误转换为响应体与对应的 types.Error
func toRunFailure(err error, includeTrace bool) (*api.RunFailure, *types.Error) {
	re, ok := hierarchical.AsRunError(err)
	if !ok {
		apiErr := types.NewError(types.ErrRunInternal, "run failed").WithCause(err)
		return &api.RunFailure{
			Outcome: string(hierarchical.OutcomeInternal),
			Code:    string(apiErr.Code),
			Message: apiErr.Message,
		}, apiErr
	}

	apiErr, ok := types.AsError(re.Cause)
	if !ok {
		apiErr = types.NewError(types.ErrRunInternal, "run failed").WithCause(re.Cause)
	}
	failure := &api.RunFailure{
		RunID:      re.RunID,
		Outcome:    string(re.Outcome),
		Code:       string(apiErr.Code),
		Message:    apiErr.Message,
		Steps:      re.Steps,
		DurationMS: re.Duration.Milliseconds(),
	}
	if includeTrace {
		failure.Trace = re.Trace
	}
	return failure, apiErr
}
