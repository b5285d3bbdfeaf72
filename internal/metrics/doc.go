// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集，覆盖 HTTP、研究运行编排、
工具调用、LLM、缓存与数据库。

# 核心类型

  - Collector：通过 promauto.With(reg) 注册到调用方提供的 Registry，
    测试中可使用独立的 prometheus.NewRegistry()。

# 接入点

Collector 以结构化接口的方式被各组件消费：

  - hierarchical.Observer：runs_total、run_duration_seconds、run_steps、
    supervisor_decisions_total、supervisor_fan_out、worker_*、guardrail_reviews_total。
  - tools.ToolObserver：tool_calls_total{tool,code}、tool_call_duration_seconds。
  - llm.MetricsCollector：llm_requests_total、llm_request_duration_seconds、
    llm_tokens_used_total。
  - cache.HitObserver：cache_hits_total、cache_misses_total。
  - database.WithStatsHook：db_connections_open/idle/in_use。
*/
package metrics
