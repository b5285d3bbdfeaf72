// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"strconv"
	"time"

	"github.com/BaSui01/csescout/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器。
//
// 同时实现 hierarchical.Observer、tools.ToolObserver、llm.MetricsCollector
// 与 cache.HitObserver，由 cmd 在装配时注入各组件。
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 编排指标
	runsTotal        *prometheus.CounterVec
	runDuration      *prometheus.HistogramVec
	runSteps         prometheus.Histogram
	decisionsTotal   *prometheus.CounterVec
	decisionFanOut   prometheus.Histogram
	workerRunsTotal  *prometheus.CounterVec
	workerDuration   *prometheus.HistogramVec
	workerLimitation *prometheus.CounterVec
	guardrailReviews *prometheus.CounterVec

	// 工具指标
	toolCallsTotal   *prometheus.CounterVec
	toolCallDuration *prometheus.HistogramVec

	// LLM 指标
	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec
	llmTokensUsed      *prometheus.CounterVec
	llmProviderHealthy *prometheus.GaugeVec

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// 数据库指标
	dbConnectionsOpen  *prometheus.GaugeVec
	dbConnectionsIdle  *prometheus.GaugeVec
	dbConnectionsInUse *prometheus.GaugeVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器。reg 为 nil 时注册到 prometheus.DefaultRegisterer
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	c.httpRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"method", "path"},
	)
	c.httpResponseSize = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
		},
		[]string{"method", "path"},
	)

	// 编排指标
	c.runsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of research runs by outcome",
		},
		[]string{"outcome"},
	)
	c.runDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Research run duration in seconds",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
		},
		[]string{"outcome"},
	)
	c.runSteps = f.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_steps",
			Help:      "Supervisor steps consumed per run",
			Buckets:   []float64{1, 2, 3, 4, 6, 8, 12, 16, 25},
		},
	)
	c.decisionsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "supervisor_decisions_total",
			Help:      "Supervisor routing decisions by kind",
		},
		[]string{"kind"},
	)
	c.decisionFanOut = f.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "supervisor_fan_out",
			Help:      "Number of workers targeted by one delegation",
			Buckets:   []float64{1, 2, 3, 4, 6, 8},
		},
	)
	c.workerRunsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_invocations_total",
			Help:      "Total number of worker invocations",
		},
		[]string{"worker"},
	)
	c.workerDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "worker_duration_seconds",
			Help:      "Worker turn duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"worker"},
	)
	c.workerLimitation = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_limitations_total",
			Help:      "Limitations reported in worker summaries",
		},
		[]string{"worker"},
	)
	c.guardrailReviews = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guardrail_reviews_total",
			Help:      "Output guardrail reviews by verdict",
		},
		[]string{"flagged"},
	)

	// 工具指标
	c.toolCallsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool and result code",
		},
		[]string{"tool", "code"},
	)
	c.toolCallDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "Tool invocation duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
		},
		[]string{"tool"},
	)

	// LLM 指标
	c.llmRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM requests",
		},
		[]string{"provider", "model", "status"},
	)
	c.llmRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "LLM request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)
	c.llmTokensUsed = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of tokens used",
		},
		[]string{"provider", "model", "type"}, // type: prompt, completion
	)
	c.llmProviderHealthy = f.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "llm_provider_healthy",
			Help:      "LLM provider health status (1 healthy, 0 unhealthy)",
		},
		[]string{"provider"},
	)

	// 缓存指标
	c.cacheHits = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache"},
	)
	c.cacheMisses = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache"},
	)

	// 数据库指标
	c.dbConnectionsOpen = f.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)
	c.dbConnectionsIdle = f.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)
	c.dbConnectionsInUse = f.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_in_use",
			Help:      "Number of database connections in use",
		},
		[]string{"database"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusClass(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🧭 编排指标记录
// =============================================================================

// ObserveRun 记录一次运行的终态
func (c *Collector) ObserveRun(outcome string, steps int, duration time.Duration) {
	c.runsTotal.WithLabelValues(outcome).Inc()
	c.runDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	c.runSteps.Observe(float64(steps))
}

// ObserveDecision 记录一次 Supervisor 决策
func (c *Collector) ObserveDecision(kind string, fanOut int) {
	c.decisionsTotal.WithLabelValues(kind).Inc()
	if fanOut > 0 {
		c.decisionFanOut.Observe(float64(fanOut))
	}
}

// ObserveWorker 记录一次 Worker 调用
func (c *Collector) ObserveWorker(worker string, duration time.Duration, limitations int) {
	c.workerRunsTotal.WithLabelValues(worker).Inc()
	c.workerDuration.WithLabelValues(worker).Observe(duration.Seconds())
	if limitations > 0 {
		c.workerLimitation.WithLabelValues(worker).Add(float64(limitations))
	}
}

func (c *Collector) ObserveGuardrail(flagged bool) {
	c.guardrailReviews.WithLabelValues(strconv.FormatBool(flagged)).Inc()
}

// ObserveToolCall 记录一次工具调用；成功时 code 为空
func (c *Collector) ObserveToolCall(tool string, code types.ErrorCode, duration time.Duration) {
	label := string(code)
	if label == "" {
		label = "ok"
	}
	c.toolCallsTotal.WithLabelValues(tool, label).Inc()
	c.toolCallDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// =============================================================================
// 🤖 LLM 指标记录
// =============================================================================

// ObserveLLMRequest 记录 LLM 请求
func (c *Collector) ObserveLLMRequest(provider, model string, duration time.Duration, promptTokens, completionTokens int, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	c.llmRequestsTotal.WithLabelValues(provider, model, status).Inc()
	c.llmRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	if promptTokens > 0 {
		c.llmTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		c.llmTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}

// ObserveProviderHealth 记录 Provider 健康检查结果
func (c *Collector) ObserveProviderHealth(provider string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1
	}
	c.llmProviderHealthy.WithLabelValues(provider).Set(v)
}

// =============================================================================
// 💾 缓存与数据库
// =============================================================================

func (c *Collector) ObserveCache(cache string, hit bool) {
	if hit {
		c.cacheHits.WithLabelValues(cache).Inc()
		return
	}
	c.cacheMisses.WithLabelValues(cache).Inc()
}

// RecordDBConnections 记录连接池状态
func (c *Collector) RecordDBConnections(database string, open, idle, inUse int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
	c.dbConnectionsInUse.WithLabelValues(database).Set(float64(inUse))
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusClass 将 HTTP 状态码归类为 2xx/3xx/4xx/5xx
func statusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
