package runstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/BaSui01/csescout/agent"
	"github.com/BaSui01/csescout/agent/hierarchical"
	"github.com/BaSui01/csescout/internal/database"
	"github.com/BaSui01/csescout/internal/migration"
	"github.com/BaSui01/csescout/types"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// =============================================================================
// 🧪 测试辅助
// =============================================================================

// newSQLiteStore 在临时文件上执行真实迁移后打开 Store
func newSQLiteStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "runs.db")

	m, err := migration.NewMigratorFromDSN("sqlite", path, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.Up(context.Background()))
	require.NoError(t, m.Close())

	pool, err := database.Open("sqlite", path, database.PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })
	return New(pool, zap.NewNop())
}

func sampleTrace() []agent.TraceEvent {
	return []agent.TraceEvent{
		{Seq: 1, Kind: agent.TraceRunStarted, Detail: "What is JKH trading at?"},
		{Seq: 2, Kind: agent.TraceSupervisorDecision, Actor: "supervisor", Step: 1, Detail: "delegate market_data"},
		{Seq: 3, Kind: agent.TraceToolCall, Actor: "market_data", Tool: "get_stock_price"},
		{Seq: 4, Kind: agent.TraceRunCompleted},
	}
}

// =============================================================================
// 📋 记录构造
// =============================================================================

func TestFromAnswer(t *testing.T) {
	rec, err := FromAnswer(&hierarchical.FinalAnswer{
		RunID:    "run-1",
		Query:    "What is JKH trading at?",
		Text:     "JKH last traded at LKR 195.50.",
		Flagged:  true,
		Steps:    2,
		Duration: 1500 * time.Millisecond,
		Trace:    sampleTrace(),
	})
	require.NoError(t, err)

	assert.Equal(t, "run-1", rec.ID)
	assert.Equal(t, "success", rec.Outcome)
	assert.Empty(t, rec.ErrorCode)
	assert.True(t, rec.Flagged)
	assert.Equal(t, int64(1500), rec.DurationMS)

	events, err := rec.Events()
	require.NoError(t, err)
	assert.Len(t, events, 4)
	assert.Equal(t, "get_stock_price", events[2].Tool)
}

func TestFromRunError(t *testing.T) {
	rec, err := FromRunError(&hierarchical.RunError{
		RunID:   "run-2",
		Query:   "loop forever",
		Outcome: hierarchical.OutcomeRecursionLimit,
		Steps:   25,
		Cause:   types.NewError(types.ErrRecursionLimit, "step ceiling reached"),
	})
	require.NoError(t, err)

	assert.Equal(t, "recursion_limit", rec.Outcome)
	assert.Equal(t, string(types.ErrRecursionLimit), rec.ErrorCode)
	assert.Equal(t, "[]", rec.Trace)
	assert.Empty(t, rec.Answer)
}

func TestRunRecord_EventsCorrupt(t *testing.T) {
	rec := &RunRecord{ID: "x", Trace: "{not json"}
	_, err := rec.Events()
	assert.Error(t, err)

	events, err := (&RunRecord{}).Events()
	assert.NoError(t, err)
	assert.Nil(t, events)
}

// =============================================================================
// 🗄️ SQLite 集成
// =============================================================================

func TestStore_SaveAndGet(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	ans := &hierarchical.FinalAnswer{
		RunID: "run-1", Query: "JKH price", Text: "LKR 195.50", Steps: 1,
		Duration: time.Second, Trace: sampleTrace(),
	}
	require.NoError(t, store.SaveOutcome(ctx, ans, nil))

	got, err := store.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "JKH price", got.Query)
	assert.Equal(t, "LKR 195.50", got.Answer)
	assert.False(t, got.CreatedAt.IsZero())

	events, err := got.Events()
	require.NoError(t, err)
	assert.Len(t, events, 4)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Error(t, store.SaveOutcome(ctx, ans, nil), "duplicate run id")
}

func TestStore_SaveOutcome_Failures(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	runErr := &hierarchical.RunError{
		RunID: "run-err", Query: "q", Outcome: hierarchical.OutcomeCancelled,
		Cause: types.NewError(types.ErrCancelled, "cancelled"),
	}
	require.NoError(t, store.SaveOutcome(ctx, nil, runErr))

	got, err := store.Get(ctx, "run-err")
	require.NoError(t, err)
	assert.Equal(t, "cancelled", got.Outcome)
	assert.Equal(t, string(types.ErrCancelled), got.ErrorCode)

	// 非运行错误不落库
	require.NoError(t, store.SaveOutcome(ctx, nil, errors.New("query too long")))
	require.NoError(t, store.SaveOutcome(ctx, nil, nil))
	_, total, err := store.List(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	assert.Error(t, store.Save(ctx, &RunRecord{}))
}

func TestStore_ListAndPrune(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	for i, outcome := range []string{"success", "routing_failure", "success", "success"} {
		rec := &RunRecord{
			ID:        "run-" + string(rune('a'+i)),
			Query:     "q",
			Outcome:   outcome,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}
		require.NoError(t, store.Save(ctx, rec))
	}

	recs, total, err := store.List(ctx, ListOptions{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	require.Len(t, recs, 2)
	assert.Equal(t, "run-d", recs[0].ID, "newest first")
	assert.Equal(t, "run-c", recs[1].ID)
	assert.Empty(t, recs[0].Trace, "list omits trace")

	recs, total, err = store.List(ctx, ListOptions{Outcome: "success", Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, recs, 1)
	assert.Equal(t, "run-a", recs[0].ID)

	store.now = func() time.Time { return base.Add(150 * time.Minute) }
	deleted, err := store.Prune(ctx, 2*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = store.Get(ctx, "run-a")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, store.Ping(ctx))
}

func TestListOptions_Normalize(t *testing.T) {
	assert.Equal(t, defaultListLimit, ListOptions{}.normalize().Limit)
	assert.Equal(t, maxListLimit, ListOptions{Limit: 1000}.normalize().Limit)
	assert.Equal(t, 0, ListOptions{Offset: -5}.normalize().Offset)
}

// =============================================================================
// 🔄 重试（sqlmock）
// =============================================================================

func TestStore_SaveRetriesDeadlock(t *testing.T) {
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer mockDB.Close()

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB}), &gorm.Config{DisableAutomaticPing: true})
	require.NoError(t, err)
	pool, err := database.NewPoolManager(gormDB, database.PoolConfig{MaxOpenConns: 2, MaxIdleConns: 1}, zap.NewNop())
	require.NoError(t, err)
	store := New(pool, zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "run_records"`).WillReturnError(errors.New("ERROR: deadlock detected (SQLSTATE 40P01)"))
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "run_records"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = store.Save(context.Background(), &RunRecord{ID: "run-1", Query: "q", Outcome: "success"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
