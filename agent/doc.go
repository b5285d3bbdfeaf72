// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 agent 提供 CSE Scout 的 Worker 智能体与运行轨迹事件。

# 概述

Worker 是绑定了受限工具集的任务执行者。它接收 Supervisor 分配的子任务，
在有界的推理循环中调用 LLM 与工具，最终产出一段自包含的自然语言 Summary。
原始工具返回值不会离开 Worker，Supervisor 只看到摘要。

# 核心类型

  - [Worker]：执行子任务的推理循环，步数预算独立于调度器的全局步数上限。
  - [WorkerConfig]：名称、职责描述、工具白名单、系统提示词与步数预算。
  - [Summary]：Worker 的产出，附带局限说明与无法解析的代码引用。
  - [TraceEvent] / [EventBus]：只读的运行轨迹，用于日志、CLI 与 WebSocket 推送。

# 行为约定

  - 调用行情类工具前，参数中的代码或公司名称先经过 market.SymbolResolver 规范化；
    无法解析时记录 AMBIGUOUS_SYMBOL，不发起该次调用。
  - 工具错误折叠进 Summary.Limitations，不会中断 Worker。
  - 只有 context 取消会让 Run 返回错误。
*/
package agent
