package migration

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BaSui01/csescout/internal/database"
	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

// =============================================================================
// 📦 内嵌迁移文件
// =============================================================================

//go:embed migrations
var migrationsFS embed.FS

// DefaultTableName 迁移版本表
const DefaultTableName = "schema_migrations"

// DatabaseType 数据库类型
type DatabaseType string

const (
	DatabaseTypePostgres DatabaseType = "postgres"
	DatabaseTypeMySQL    DatabaseType = "mysql"
	DatabaseTypeSQLite   DatabaseType = "sqlite"
)

// MigrationStatus 单个迁移的状态
type MigrationStatus struct {
	Version uint   `json:"version"`
	Name    string `json:"name"`
	Applied bool   `json:"applied"`
	Dirty   bool   `json:"dirty"`
}

// MigrationInfo 当前迁移状态摘要
type MigrationInfo struct {
	CurrentVersion    uint `json:"current_version"`
	Dirty             bool `json:"dirty"`
	TotalMigrations   int  `json:"total_migrations"`
	AppliedMigrations int  `json:"applied_migrations"`
	PendingMigrations int  `json:"pending_migrations"`
}

// Config 迁移器配置
type Config struct {
	DatabaseType DatabaseType

	// DSN 与 internal/database.Open 使用同一格式：
	//   - postgres: host=... port=... user=... dbname=... sslmode=...
	//   - mysql:    user:pass@tcp(host:port)/db?parseTime=true&multiStatements=true
	//   - sqlite:   文件路径
	DSN string

	TableName   string
	LockTimeout time.Duration
	Logger      *zap.Logger
}

// Migrator 数据库迁移接口
type Migrator interface {
	Up(ctx context.Context) error
	Down(ctx context.Context) error
	DownAll(ctx context.Context) error
	// Steps 正数前进 n 步，负数回滚 n 步
	Steps(ctx context.Context, n int) error
	Goto(ctx context.Context, version uint) error
	Force(ctx context.Context, version int) error
	Version(ctx context.Context) (uint, bool, error)
	Status(ctx context.Context) ([]MigrationStatus, error)
	Info(ctx context.Context) (*MigrationInfo, error)
	Close() error
}

// =============================================================================
// 🗄️ DefaultMigrator
// =============================================================================

// DefaultMigrator 基于 golang-migrate 的迁移器。连接通过 internal/database
// 打开，与运行记录存储使用同一套驱动。
type DefaultMigrator struct {
	config  *Config
	logger  *zap.Logger
	pool    *database.PoolManager
	migrate *migrate.Migrate
}

// NewMigrator 创建迁移器
func NewMigrator(cfg *Config) (*DefaultMigrator, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if cfg.DSN == "" {
		return nil, errors.New("database DSN is required")
	}
	if _, err := migrationsDir(cfg.DatabaseType); err != nil {
		return nil, err
	}
	if cfg.TableName == "" {
		cfg.TableName = DefaultTableName
	}
	if cfg.LockTimeout == 0 {
		cfg.LockTimeout = 15 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &DefaultMigrator{
		config: cfg,
		logger: logger.With(zap.String("component", "migrator"), zap.String("database", string(cfg.DatabaseType))),
	}
	if err := m.init(); err != nil {
		return nil, fmt.Errorf("failed to initialize migrator: %w", err)
	}
	return m, nil
}

func (m *DefaultMigrator) init() error {
	poolCfg := database.PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1}
	pool, err := database.Open(string(m.config.DatabaseType), m.config.DSN, poolCfg, m.logger)
	if err != nil {
		return err
	}
	m.pool = pool

	dbDriver, err := m.createDatabaseDriver()
	if err != nil {
		_ = pool.Close()
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	sourceDriver, err := m.createSourceDriver()
	if err != nil {
		_ = pool.Close()
		return fmt.Errorf("failed to create source driver: %w", err)
	}

	m.migrate, err = migrate.NewWithInstance("iofs", sourceDriver, string(m.config.DatabaseType), dbDriver)
	if err != nil {
		_ = pool.Close()
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.migrate.LockTimeout = m.config.LockTimeout
	m.migrate.Log = &zapMigrateLogger{logger: m.logger}
	return nil
}

func (m *DefaultMigrator) createDatabaseDriver() (migratedb.Driver, error) {
	db := m.pool.SQL()
	switch m.config.DatabaseType {
	case DatabaseTypePostgres:
		return postgres.WithInstance(db, &postgres.Config{MigrationsTable: m.config.TableName})
	case DatabaseTypeMySQL:
		return mysql.WithInstance(db, &mysql.Config{MigrationsTable: m.config.TableName})
	case DatabaseTypeSQLite:
		// sqlite3 驱动只用到 *sql.DB，底层连接来自纯 Go 的 glebarez 驱动
		return sqlite3.WithInstance(db, &sqlite3.Config{MigrationsTable: m.config.TableName})
	default:
		return nil, fmt.Errorf("unsupported database type: %s", m.config.DatabaseType)
	}
}

func (m *DefaultMigrator) createSourceDriver() (source.Driver, error) {
	dir, err := migrationsDir(m.config.DatabaseType)
	if err != nil {
		return nil, err
	}
	return iofs.New(migrationsFS, dir)
}

// =============================================================================
// 🎯 迁移操作
// =============================================================================

// run 执行一次迁移操作；ctx 取消时通知 golang-migrate 在当前迁移结束后停止
func (m *DefaultMigrator) run(ctx context.Context, op string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			select {
			case m.migrate.GracefulStop <- true:
			default:
			}
		case <-done:
		}
	}()

	start := time.Now()
	err := fn()
	if errors.Is(err, migrate.ErrNoChange) {
		m.logger.Info("no migration to apply", zap.String("op", op))
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration %s failed: %w", op, err)
	}
	m.logger.Info("migration applied", zap.String("op", op), zap.Duration("took", time.Since(start)))
	return nil
}

// Up 应用所有未执行的迁移
func (m *DefaultMigrator) Up(ctx context.Context) error {
	return m.run(ctx, "up", m.migrate.Up)
}

// Down 回滚最近一次迁移
func (m *DefaultMigrator) Down(ctx context.Context) error {
	return m.run(ctx, "down", func() error { return m.migrate.Steps(-1) })
}

// DownAll 回滚全部迁移
func (m *DefaultMigrator) DownAll(ctx context.Context) error {
	return m.run(ctx, "down all", m.migrate.Down)
}

func (m *DefaultMigrator) Steps(ctx context.Context, n int) error {
	return m.run(ctx, "steps", func() error { return m.migrate.Steps(n) })
}

func (m *DefaultMigrator) Goto(ctx context.Context, version uint) error {
	return m.run(ctx, "goto", func() error { return m.migrate.Migrate(version) })
}

// Force 只改写版本号，不执行 SQL。用于修复 dirty 状态
func (m *DefaultMigrator) Force(ctx context.Context, version int) error {
	if err := m.migrate.Force(version); err != nil {
		return fmt.Errorf("migration force failed: %w", err)
	}
	m.logger.Warn("migration version forced", zap.Int("version", version))
	return nil
}

// Version 返回当前版本；尚未迁移时返回 0
func (m *DefaultMigrator) Version(ctx context.Context) (uint, bool, error) {
	version, dirty, err := m.migrate.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get version: %w", err)
	}
	return version, dirty, nil
}

func (m *DefaultMigrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	current, dirty, err := m.Version(ctx)
	if err != nil {
		return nil, err
	}
	files, err := availableMigrations(m.config.DatabaseType)
	if err != nil {
		return nil, err
	}

	statuses := make([]MigrationStatus, 0, len(files))
	for _, f := range files {
		statuses = append(statuses, MigrationStatus{
			Version: f.version,
			Name:    f.name,
			Applied: f.version <= current,
			Dirty:   dirty && f.version == current,
		})
	}
	return statuses, nil
}

func (m *DefaultMigrator) Info(ctx context.Context) (*MigrationInfo, error) {
	current, dirty, err := m.Version(ctx)
	if err != nil {
		return nil, err
	}
	files, err := availableMigrations(m.config.DatabaseType)
	if err != nil {
		return nil, err
	}

	applied := 0
	for _, f := range files {
		if f.version <= current {
			applied++
		}
	}
	return &MigrationInfo{
		CurrentVersion:    current,
		Dirty:             dirty,
		TotalMigrations:   len(files),
		AppliedMigrations: applied,
		PendingMigrations: len(files) - applied,
	}, nil
}

// Close 释放迁移器持有的连接
func (m *DefaultMigrator) Close() error {
	var errs []error
	if m.migrate != nil {
		sourceErr, dbErr := m.migrate.Close()
		errs = append(errs, sourceErr, dbErr)
	}
	if m.pool != nil {
		errs = append(errs, m.pool.Close())
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to close migrator: %w", err)
	}
	return nil
}

// =============================================================================
// 📋 迁移文件
// =============================================================================

type migrationFile struct {
	version uint
	name    string
}

func migrationsDir(dbType DatabaseType) (string, error) {
	switch dbType {
	case DatabaseTypePostgres, DatabaseTypeMySQL, DatabaseTypeSQLite:
		return path.Join("migrations", string(dbType)), nil
	default:
		return "", fmt.Errorf("unsupported database type: %q", dbType)
	}
}

// availableMigrations 列出内嵌的迁移，按版本升序
func availableMigrations(dbType DatabaseType) ([]migrationFile, error) {
	dir, err := migrationsDir(dbType)
	if err != nil {
		return nil, err
	}
	entries, err := fs.ReadDir(migrationsFS, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var files []migrationFile
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		// 000001_create_run_records.up.sql
		prefix, rest, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		version, err := strconv.ParseUint(prefix, 10, 32)
		if err != nil {
			continue
		}
		files = append(files, migrationFile{
			version: uint(version),
			name:    strings.TrimSuffix(rest, ".up.sql"),
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].version < files[j].version })
	return files, nil
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// ParseDatabaseType 解析数据库类型字符串
func ParseDatabaseType(s string) (DatabaseType, error) {
	switch strings.ToLower(s) {
	case "postgres", "postgresql", "pg":
		return DatabaseTypePostgres, nil
	case "mysql", "mariadb":
		return DatabaseTypeMySQL, nil
	case "sqlite", "sqlite3":
		return DatabaseTypeSQLite, nil
	default:
		return "", fmt.Errorf("unsupported database type: %s", s)
	}
}

// zapMigrateLogger 把 golang-migrate 的日志接到 zap
type zapMigrateLogger struct {
	logger *zap.Logger
}

func (l *zapMigrateLogger) Printf(format string, v ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l *zapMigrateLogger) Verbose() bool {
	return l.logger.Core().Enabled(zap.DebugLevel)
}
