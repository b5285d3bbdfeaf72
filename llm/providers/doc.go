// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 providers 是推理服务适配层的公共基础：OpenAI 兼容的请求/响应结构、
消息与工具格式转换、HTTP 错误映射，以及带退避重试的 Provider 包装。
具体服务商（groq）与通用适配器（openaicompat）位于子包中。

# 核心类型

  - BaseProviderConfig — 共享的基础配置（APIKey、BaseURL、Model、Timeout）
  - GroqConfig — Groq 专用配置
  - OpenAICompat* 系列 — Chat Completions 的请求/响应/工具调用结构体
  - RetryableProvider — 按 retry.RetryPolicy 重试 Completion 的包装器

# 核心函数

  - MapHTTPError — 将 HTTP 状态码映射为 types.Error（含 Retryable 标记）
  - ConvertMessagesToOpenAI / ConvertToolsToOpenAI / ConvertToolChoice — 格式转换
  - ToLLMChatResponse — OpenAI 兼容响应到 llm.ChatResponse 的转换
  - ChooseModel — 按优先级选择模型（请求 > 默认 > 兜底）
*/
package providers
