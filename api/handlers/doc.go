// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 csescout HTTP API 的请求处理器实现。

# 概述

handlers 包实现研究查询、运行记录、Worker 列表与健康检查端点，
以及统一的响应/错误处理。所有 Handler 均遵循标准 net/http 接口。

# 核心类型

  - QueryHandler     — POST /api/v1/query 同步查询与 /api/v1/query/stream WebSocket 流式查询
  - RunsHandler      — 运行记录列表与详情
  - HealthHandler    — 服务健康检查（/health, /healthz, /ready）
  - Response         — 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo        — 结构化错误信息，含 code、message、retryable 标记
  - HealthCheck      — 可插拔健康检查接口（Database、Redis、LLM Provider）

# 错误映射

运行失败以 RunError 返回，RUN_* 错误码映射为 HTTP 状态码：

  - RUN_RECURSION_LIMIT → 508
  - RUN_ROUTING_FAILURE → 502
  - RUN_CANCELLED       → 504
  - RUN_INTERNAL        → 500

失败响应的 data 字段携带 api.RunFailure（run_id、outcome、steps）。

# 流式协议

客户端升级为 WebSocket 后发送一帧 api.QueryRequest；服务端按顺序推送
type=trace 帧，最后推送 type=answer 或 type=error 帧并正常关闭连接。
*/
package handlers
