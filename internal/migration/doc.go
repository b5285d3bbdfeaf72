// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 管理运行记录表 run_records 的 Schema 版本，支持 PostgreSQL、
MySQL 与 SQLite，基于 golang-migrate 实现。

# 概述

各方言的 SQL 迁移文件通过 embed.FS 内嵌在二进制中。连接由
internal/database 打开，因此 SQLite 走纯 Go 的 glebarez 驱动，不依赖 CGO。

# 核心类型

  - Migrator：Up/Down/DownAll/Steps/Goto/Force/Version/Status/Info/Close。
  - DefaultMigrator：golang-migrate 实现，ctx 取消时优雅停止。
  - CLI：`csescout migrate <command>` 的输出层。

# 工厂函数

NewMigratorFromConfig / NewMigratorFromDatabaseConfig 使用 config.DatabaseConfig
生成 DSN；NewMigratorFromDSN 直接接收驱动名与 DSN。MySQL 会自动追加
multiStatements=true。
*/
package migration
