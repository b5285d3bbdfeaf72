// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 csescout 服务端与命令行入口。

# 概述

cmd/csescout 装配监督者、analyst / researcher Worker、工具注册表与
风险护栏，对外提供 HTTP / WebSocket 查询接口，也可以在终端直接运行一次
查询并实时打印轨迹。

# 核心类型

  - App         — 一次进程生命周期内的组件集合（Provider、调度器、缓存、运行记录）
  - Server      — API 与 Metrics 双端口、配置热重载与优雅关闭
  - RateLimiter — 按客户端 IP 的令牌桶，速率可热更新

# 主要能力

  - 子命令：serve、ask、migrate、config、version、health
  - 中间件链：Recovery、RequestID、OTelTracing、Metrics、SecurityHeaders、
    RequestLogger、CORS、RateLimiter、JWTAuth（HS256）
  - 热重载：日志级别与限流参数无需重启
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
