package migration

import (
	"fmt"
	"strings"

	"github.com/BaSui01/csescout/config"
	"go.uber.org/zap"
)

// NewMigratorFromConfig 从应用配置创建迁移器
func NewMigratorFromConfig(cfg *config.Config, logger *zap.Logger) (*DefaultMigrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	return NewMigratorFromDatabaseConfig(cfg.Database, logger)
}

// NewMigratorFromDatabaseConfig 从数据库配置创建迁移器
func NewMigratorFromDatabaseConfig(dbCfg config.DatabaseConfig, logger *zap.Logger) (*DefaultMigrator, error) {
	dbType, err := ParseDatabaseType(dbCfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("invalid database type: %w", err)
	}
	dbCfg.Driver = string(dbType)

	return NewMigrator(&Config{
		DatabaseType: dbType,
		DSN:          migrationDSN(dbType, dbCfg.DSN()),
		TableName:    DefaultTableName,
		Logger:       logger,
	})
}

// NewMigratorFromDSN 直接用类型与 DSN 创建迁移器，供 migrate 子命令的 --dsn 使用
func NewMigratorFromDSN(dbType, dsn string, logger *zap.Logger) (*DefaultMigrator, error) {
	dt, err := ParseDatabaseType(dbType)
	if err != nil {
		return nil, err
	}
	return NewMigrator(&Config{
		DatabaseType: dt,
		DSN:          migrationDSN(dt, dsn),
		TableName:    DefaultTableName,
		Logger:       logger,
	})
}

// migrationDSN 迁移文件含多条语句，MySQL 需要打开 multiStatements
func migrationDSN(dbType DatabaseType, dsn string) string {
	if dbType != DatabaseTypeMySQL || strings.Contains(dsn, "multiStatements=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&multiStatements=true"
	}
	return dsn + "?multiStatements=true"
}
