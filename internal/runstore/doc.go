// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

// Package runstore 持久化研究运行的结果。
//
// 每次 RunQuery 结束（成功或失败）写入一条 run_records 记录，包括终态、步数、
// 耗时与完整的 trace。表结构由 internal/migration 管理。
package runstore
