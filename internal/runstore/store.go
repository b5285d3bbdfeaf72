package runstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/csescout/agent"
	"github.com/BaSui01/csescout/agent/hierarchical"
	"github.com/BaSui01/csescout/internal/database"
	"github.com/BaSui01/csescout/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrNotFound 运行记录不存在
var ErrNotFound = errors.New("run record not found")

const (
	defaultListLimit = 20
	maxListLimit     = 100
	saveRetries      = 3
)

// =============================================================================
// 📋 数据模型
// =============================================================================

// RunRecord 一次研究运行的持久化结果
type RunRecord struct {
	ID         string    `gorm:"primaryKey;size:64" json:"id"`
	Query      string    `gorm:"not null" json:"query"`
	Outcome    string    `gorm:"size:32;not null;index:idx_run_records_outcome" json:"outcome"`
	ErrorCode  string    `gorm:"size:64;not null" json:"error_code,omitempty"`
	Answer     string    `gorm:"not null" json:"answer,omitempty"`
	Flagged    bool      `gorm:"not null" json:"flagged"`
	Steps      int       `gorm:"not null" json:"steps"`
	DurationMS int64     `gorm:"column:duration_ms;not null" json:"duration_ms"`
	Trace      string    `gorm:"not null" json:"-"`
	CreatedAt  time.Time `gorm:"not null;index:idx_run_records_created_at" json:"created_at"`
}

// TableName 实现 gorm.Tabler
func (RunRecord) TableName() string { return "run_records" }

// Events 解码记录中的 trace
func (r *RunRecord) Events() ([]agent.TraceEvent, error) {
	if r.Trace == "" {
		return nil, nil
	}
	var events []agent.TraceEvent
	if err := json.Unmarshal([]byte(r.Trace), &events); err != nil {
		return nil, fmt.Errorf("decode trace of run %s: %w", r.ID, err)
	}
	return events, nil
}

// FromAnswer 由成功结果构造记录
func FromAnswer(ans *hierarchical.FinalAnswer) (*RunRecord, error) {
	trace, err := encodeTrace(ans.Trace)
	if err != nil {
		return nil, err
	}
	return &RunRecord{
		ID:         ans.RunID,
		Query:      ans.Query,
		Outcome:    string(hierarchical.OutcomeSuccess),
		Answer:     ans.Text,
		Flagged:    ans.Flagged,
		Steps:      ans.Steps,
		DurationMS: ans.Duration.Milliseconds(),
		Trace:      trace,
	}, nil
}

// FromRunError 由失败结果构造记录
func FromRunError(re *hierarchical.RunError) (*RunRecord, error) {
	trace, err := encodeTrace(re.Trace)
	if err != nil {
		return nil, err
	}
	return &RunRecord{
		ID:         re.RunID,
		Query:      re.Query,
		Outcome:    string(re.Outcome),
		ErrorCode:  string(re.Code()),
		Steps:      re.Steps,
		DurationMS: re.Duration.Milliseconds(),
		Trace:      trace,
	}, nil
}

func encodeTrace(events []agent.TraceEvent) (string, error) {
	if events == nil {
		events = []agent.TraceEvent{}
	}
	data, err := json.Marshal(events)
	if err != nil {
		return "", fmt.Errorf("encode trace: %w", err)
	}
	return string(data), nil
}

// =============================================================================
// 🗄️ Store
// =============================================================================

// Store 运行记录存储
type Store struct {
	pool   *database.PoolManager
	logger *zap.Logger
	now    func() time.Time
}

// New 创建 Store
func New(pool *database.PoolManager, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		pool:   pool,
		logger: logger.With(zap.String("component", "runstore")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Save 写入一条记录；死锁、SQLITE_BUSY 等瞬时错误会重试
func (s *Store) Save(ctx context.Context, rec *RunRecord) error {
	if rec == nil || rec.ID == "" {
		return types.NewError(types.ErrInvalidRequest, "run record needs an id")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	if rec.Trace == "" {
		rec.Trace = "[]"
	}
	err := s.pool.WithTransactionRetry(ctx, saveRetries, func(tx *gorm.DB) error {
		return tx.Create(rec).Error
	})
	if err != nil {
		return fmt.Errorf("save run %s: %w", rec.ID, err)
	}
	s.logger.Debug("run recorded",
		zap.String("run_id", rec.ID),
		zap.String("outcome", rec.Outcome),
		zap.Int("steps", rec.Steps),
	)
	return nil
}

// SaveOutcome 持久化 RunQuery 的返回值。非 RunError 的错误（如输入校验失败）不会被记录
func (s *Store) SaveOutcome(ctx context.Context, ans *hierarchical.FinalAnswer, runErr error) error {
	var (
		rec *RunRecord
		err error
	)
	switch {
	case ans != nil:
		rec, err = FromAnswer(ans)
	case runErr != nil:
		re, ok := hierarchical.AsRunError(runErr)
		if !ok {
			return nil
		}
		rec, err = FromRunError(re)
	default:
		return nil
	}
	if err != nil {
		return err
	}
	return s.Save(ctx, rec)
}

// Get 按 run id 查询
func (s *Store) Get(ctx context.Context, id string) (*RunRecord, error) {
	var rec RunRecord
	err := s.pool.DB().WithContext(ctx).Where("id = ?", id).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return &rec, nil
}

// ListOptions 列表查询参数
type ListOptions struct {
	Limit   int
	Offset  int
	Outcome string
}

func (o ListOptions) normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = defaultListLimit
	}
	if o.Limit > maxListLimit {
		o.Limit = maxListLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

// List 按创建时间倒序返回记录与总数。列表结果不含 trace
func (s *Store) List(ctx context.Context, opts ListOptions) ([]RunRecord, int64, error) {
	opts = opts.normalize()
	query := func() *gorm.DB {
		q := s.pool.DB().WithContext(ctx).Model(&RunRecord{})
		if opts.Outcome != "" {
			q = q.Where("outcome = ?", opts.Outcome)
		}
		return q
	}

	var total int64
	if err := query().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count runs: %w", err)
	}

	var recs []RunRecord
	err := query().Omit("trace").
		Order("created_at DESC").Order("id").
		Limit(opts.Limit).Offset(opts.Offset).
		Find(&recs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list runs: %w", err)
	}
	return recs, total, nil
}

// Prune 删除早于 maxAge 的记录
func (s *Store) Prune(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := s.now().Add(-maxAge)
	res := s.pool.DB().WithContext(ctx).Where("created_at < ?", cutoff).Delete(&RunRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune runs: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		s.logger.Info("pruned run records", zap.Int64("deleted", res.RowsAffected), zap.Time("cutoff", cutoff))
	}
	return res.RowsAffected, nil
}

// Ping 检查底层数据库
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }
