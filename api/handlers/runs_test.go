package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BaSui01/csescout/api"
	"github.com/BaSui01/csescout/internal/runstore"
	"github.com/BaSui01/csescout/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeRunStore struct {
	records  map[string]*runstore.RunRecord
	lastOpts runstore.ListOptions
	err      error
}

func (s *fakeRunStore) Get(_ context.Context, id string) (*runstore.RunRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	rec, ok := s.records[id]
	if !ok {
		return nil, runstore.ErrNotFound
	}
	return rec, nil
}

func (s *fakeRunStore) List(_ context.Context, opts runstore.ListOptions) ([]runstore.RunRecord, int64, error) {
	s.lastOpts = opts
	if s.err != nil {
		return nil, 0, s.err
	}
	var out []runstore.RunRecord
	for _, r := range s.records {
		if opts.Outcome == "" || r.Outcome == opts.Outcome {
			out = append(out, *r)
		}
	}
	return out, int64(len(out)), nil
}

func newRunsMux(store RunReader, t *testing.T) *http.ServeMux {
	h := NewRunsHandler(store, zaptest.NewLogger(t))
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/runs", h.HandleList)
	mux.HandleFunc("GET /api/v1/runs/{id}", h.HandleGet)
	return mux
}

func testRunStore() *fakeRunStore {
	created := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	return &fakeRunStore{records: map[string]*runstore.RunRecord{
		"ok": {
			ID: "ok", Query: "price of JKH", Outcome: "success", Answer: "LKR 198.50",
			Steps: 1, DurationMS: 900, CreatedAt: created,
			Trace: `[{"id":"e1","run_id":"ok","seq":1,"kind":"run_started","time":"2026-03-02T09:30:00Z"}]`,
		},
		"loop": {
			ID: "loop", Query: "loop", Outcome: "recursion_limit", ErrorCode: string(types.ErrRecursionLimit),
			Steps: 25, CreatedAt: created, Trace: "not json",
		},
	}}
}

func TestRunsHandler_List(t *testing.T) {
	store := testRunStore()
	mux := newRunsMux(store, t)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/runs?limit=5&offset=0&outcome=recursion_limit", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data api.RunList `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, runstore.ListOptions{Limit: 5, Outcome: "recursion_limit"}, store.lastOpts)
	assert.Equal(t, int64(1), resp.Data.Total)
	require.Len(t, resp.Data.Runs, 1)
	assert.Equal(t, "loop", resp.Data.Runs[0].ID)
	assert.Equal(t, 25, resp.Data.Runs[0].Steps)
}

func TestRunsHandler_ListBadParams(t *testing.T) {
	mux := newRunsMux(testRunStore(), t)
	for _, q := range []string{"limit=abc", "offset=1.5"} {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/runs?"+q, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestRunsHandler_Get(t *testing.T) {
	mux := newRunsMux(testRunStore(), t)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/runs/ok", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data api.RunDetail `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "LKR 198.50", resp.Data.Answer)
	require.Len(t, resp.Data.Trace, 1)
	assert.Equal(t, int64(1), resp.Data.Trace[0].Seq)

	// trace 损坏时仍返回记录
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/runs/loop", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/runs/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRunsHandler_StoreFailure(t *testing.T) {
	mux := newRunsMux(&fakeRunStore{err: errors.New("connection refused")}, t)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/runs/x", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHandleWorkers(t *testing.T) {
	h := HandleWorkers([]*stubWorker{{name: "analyst"}, {name: "researcher"}})
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/api/v1/workers", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []api.WorkerInfo `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "analyst", resp.Data[0].Name)
	assert.Equal(t, []string{"get_cse_stock_price"}, resp.Data[0].Tools)
}
