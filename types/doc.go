// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 CSE Scout 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 agent、llm、market、api
等上层模块提供统一的类型契约，避免循环依赖。

# 核心类型

  - Message / ToolCall — 对话消息与工具调用请求
  - ToolSchema         — 工具定义（name + description + JSON Schema parameters）
  - ToolResult         — 工具执行结果
  - Error / ErrorCode  — 结构化错误体系，覆盖 LLM、工具、路由与运行终止结果
  - JSONSchema         — JSON Schema 定义、构建器与参数校验
*/
package types
