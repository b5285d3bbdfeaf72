// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 guardrails 为编排结果提供确定性的安全防护。

# 概述

guardrails 聚焦于"在不破坏分析内容的前提下，降低合规风险"。
输出侧只做加法：命中风险词时追加固定免责声明，从不删除或拦截内容。

# 核心类型

  - [Guard]：输出护栏，扫描最终答案中的指令性投资用语
  - [Verdict]：一次审查的结果，包含最终文本、是否命中与命中词
  - [QueryValidator]：输入侧校验，限制查询长度并识别常见 Prompt Injection 模式

# 幂等

Guard.Review 对已带免责声明的文本原样返回，多次审查不会重复追加。
*/
package guardrails
