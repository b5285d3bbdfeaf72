package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/BaSui01/csescout/api"
	"github.com/BaSui01/csescout/internal/runstore"
	"github.com/BaSui01/csescout/types"
	"go.uber.org/zap"
)

// =============================================================================
// 📜 运行记录 Handler
// =============================================================================

// RunReader 读取运行记录。*runstore.Store 实现该接口
type RunReader interface {
	Get(ctx context.Context, id string) (*runstore.RunRecord, error)
	List(ctx context.Context, opts runstore.ListOptions) ([]runstore.RunRecord, int64, error)
}

// RunsHandler 运行记录处理器
type RunsHandler struct {
	store  RunReader
	logger *zap.Logger
}

// NewRunsHandler 创建运行记录处理器
func NewRunsHandler(store RunReader, logger *zap.Logger) *RunsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunsHandler{store: store, logger: logger.With(zap.String("handler", "runs"))}
}

// HandleList 处理 GET /api/v1/runs?limit=&offset=&outcome=
// @Summary 运行记录列表
// @Tags 运行记录
// @Produce json
// @Param limit query int false "每页数量（默认 20，最大 100）"
// @Param offset query int false "偏移量"
// @Param outcome query string false "按结果过滤：success, routing_failure, recursion_limit, cancelled, internal"
// @Success 200 {object} Response{data=api.RunList}
// @Router /api/v1/runs [get]
func (h *RunsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := queryInt(q.Get("limit"))
	if err != nil {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "limit must be an integer", h.logger)
		return
	}
	offset, err := queryInt(q.Get("offset"))
	if err != nil {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "offset must be an integer", h.logger)
		return
	}

	opts := runstore.ListOptions{Limit: limit, Offset: offset, Outcome: q.Get("outcome")}
	records, total, err := h.store.List(r.Context(), opts)
	if err != nil {
		WriteError(w, types.NewError(types.ErrInternalError, "failed to list runs").WithCause(err), h.logger)
		return
	}

	out := api.RunList{Runs: make([]api.RunSummary, 0, len(records)), Total: total, Limit: limit, Offset: offset}
	for i := range records {
		out.Runs = append(out.Runs, toRunSummary(&records[i]))
	}
	WriteSuccess(w, out)
}

// HandleGet 处理 GET /api/v1/runs/{id}
// @Summary 运行记录详情
// @Tags 运行记录
// @Produce json
// @Param id path string true "运行 ID"
// @Success 200 {object} Response{data=api.RunDetail}
// @Failure 404 {object} Response
// @Router /api/v1/runs/{id} [get]
func (h *RunsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "run id is required", h.logger)
		return
	}

	rec, err := h.store.Get(r.Context(), id)
	if errors.Is(err, runstore.ErrNotFound) {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrNotFound, "run not found", h.logger)
		return
	}
	if err != nil {
		WriteError(w, types.NewError(types.ErrInternalError, "failed to load run").WithCause(err), h.logger)
		return
	}

	events, err := rec.Events()
	if err != nil {
		// trace 损坏时仍返回记录本身
		h.logger.Warn("corrupt run trace", zap.String("run_id", id), zap.Error(err))
	}
	WriteSuccess(w, api.RunDetail{
		RunSummary: toRunSummary(rec),
		Answer:     rec.Answer,
		Trace:      events,
	})
}

func toRunSummary(rec *runstore.RunRecord) api.RunSummary {
	return api.RunSummary{
		ID:         rec.ID,
		Query:      rec.Query,
		Outcome:    rec.Outcome,
		ErrorCode:  rec.ErrorCode,
		Flagged:    rec.Flagged,
		Steps:      rec.Steps,
		DurationMS: rec.DurationMS,
		CreatedAt:  rec.CreatedAt,
	}
}

func queryInt(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

// =============================================================================
// 👷 Worker 列表
// =============================================================================

// WorkerDescriber 描述一个已注册的 Worker。*agent.Worker 实现该接口
type WorkerDescriber interface {
	Name() string
	Description() string
	Tools() []string
}

// HandleWorkers 处理 GET /api/v1/workers
// @Summary Worker 列表
// @Tags 查询
// @Produce json
// @Success 200 {object} Response{data=[]api.WorkerInfo}
// @Router /api/v1/workers [get]
func HandleWorkers[W WorkerDescriber](workers []W) http.HandlerFunc {
	infos := make([]api.WorkerInfo, 0, len(workers))
	for _, w := range workers {
		infos = append(infos, api.WorkerInfo{Name: w.Name(), Description: w.Description(), Tools: w.Tools()})
	}
	return func(w http.ResponseWriter, _ *http.Request) {
		WriteSuccess(w, infos)
	}
}
