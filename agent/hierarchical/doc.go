// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package hierarchical 实现 Supervisor-Worker 编排核心。

# 状态机

一次运行按以下阶段推进：

	INIT → SUPERVISOR_TURN → WORKER_TURN → SUPERVISOR_TURN … → GUARDRAIL → DONE

任何非终止阶段都可以进入 ERROR。[CanTransition] 校验每一次转换，
非法转换返回 [ErrInvalidTransition]。

# 路由

[Supervisor] 通过 route 工具输出闭合的 [RouteDecision]：委派给一个或多个
已注册的 Worker，或以 FINISH 结束并给出最终答案。校验失败会带着错误信息
重新提示一次，仍失败则以 RUN_ROUTING_FAILURE 结束。

# 扇出与顺序

同一决策中的多个委派并发执行，摘要按派发顺序（而非完成顺序）追加到
[SharedState]。

# 步数上限

每一次 Supervisor→Worker 往返消耗一步。步数达到 [SchedulerConfig].MaxSteps
后再收到委派决策，运行以 RUN_RECURSION_LIMIT 结束。
*/
package hierarchical
