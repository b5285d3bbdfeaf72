// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供基于 GORM 的数据库连接池管理，支持 postgres、mysql
与纯 Go 的 sqlite 三种驱动。

# 核心类型

  - PoolManager：连接池管理器，持有 GORM DB 实例与底层 sql.DB，
    提供 DB()、SQL()、Ping()、GetStats()、Close() 等生命周期方法。
  - PoolConfig：连接池配置，包含最大空闲连接数、最大打开连接数、
    连接最大生命周期、空闲超时与健康检查间隔。

# 主要能力

  - Open / Dialector：按驱动名打开数据库。
  - 健康检查：后台定时探活，通过 WithStatsHook 导出连接池统计。
  - 事务管理：WithTransactionRetry 对死锁、序列化失败、
    SQLITE_BUSY 等瞬时错误做指数退避重试。
*/
package database
