package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/csescout/agent/hierarchical"
	"github.com/BaSui01/csescout/internal/cache"
	"github.com/BaSui01/csescout/llm"
	"github.com/BaSui01/csescout/llm/tools"
	"github.com/BaSui01/csescout/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	_ hierarchical.Observer = (*Collector)(nil)
	_ tools.ToolObserver    = (*Collector)(nil)
	_ llm.MetricsCollector  = (*Collector)(nil)
	_ cache.HitObserver     = (*Collector)(nil)
)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewCollector("csescout", reg, zap.NewNop()), reg
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector_RegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector("csescout", reg, nil)
	assert.Panics(t, func() { NewCollector("csescout", reg, nil) }, "duplicate registration must panic")
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordHTTPRequest("POST", "/api/v1/query", 200, 3*time.Second, 2048)
	c.RecordHTTPRequest("POST", "/api/v1/query", 201, time.Second, 512)
	c.RecordHTTPRequest("POST", "/api/v1/query", 504, time.Second, 64)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("POST", "/api/v1/query", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("POST", "/api/v1/query", "5xx")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.httpRequestDuration))
}

func TestCollector_ObserveRun(t *testing.T) {
	c, reg := newTestCollector(t)

	c.ObserveRun("success", 3, 12*time.Second)
	c.ObserveRun("success", 1, 4*time.Second)
	c.ObserveRun("recursion_limit", 25, 90*time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.runsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runsTotal.WithLabelValues("recursion_limit")))

	n, err := testutil.GatherAndCount(reg, "csescout_run_steps")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCollector_ObserveDecisionAndWorker(t *testing.T) {
	c, _ := newTestCollector(t)

	c.ObserveDecision("delegate", 2)
	c.ObserveDecision("finish", 0)
	c.ObserveWorker("market_data", 2*time.Second, 0)
	c.ObserveWorker("news", time.Second, 2)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.decisionsTotal.WithLabelValues("delegate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.decisionsTotal.WithLabelValues("finish")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.workerRunsTotal.WithLabelValues("news")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.workerLimitation.WithLabelValues("news")))
}

func TestCollector_ObserveGuardrail(t *testing.T) {
	c, _ := newTestCollector(t)
	c.ObserveGuardrail(true)
	c.ObserveGuardrail(false)
	c.ObserveGuardrail(false)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.guardrailReviews.WithLabelValues("true")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.guardrailReviews.WithLabelValues("false")))
}

func TestCollector_ObserveToolCall(t *testing.T) {
	c, _ := newTestCollector(t)
	c.ObserveToolCall("get_stock_price", "", 200*time.Millisecond)
	c.ObserveToolCall("get_stock_price", types.ErrToolUpstreamFailure, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.toolCallsTotal.WithLabelValues("get_stock_price", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.toolCallsTotal.WithLabelValues("get_stock_price", string(types.ErrToolUpstreamFailure))))
}

func TestCollector_ObserveLLMRequest(t *testing.T) {
	c, _ := newTestCollector(t)
	c.ObserveLLMRequest("groq", "llama-3.3-70b-versatile", 800*time.Millisecond, 100, 50, nil)
	c.ObserveLLMRequest("groq", "llama-3.3-70b-versatile", time.Second, 0, 0, errors.New("rate limited"))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.llmRequestsTotal.WithLabelValues("groq", "llama-3.3-70b-versatile", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.llmRequestsTotal.WithLabelValues("groq", "llama-3.3-70b-versatile", "error")))
	assert.Equal(t, 100.0, testutil.ToFloat64(c.llmTokensUsed.WithLabelValues("groq", "llama-3.3-70b-versatile", "prompt")))
	assert.Equal(t, 50.0, testutil.ToFloat64(c.llmTokensUsed.WithLabelValues("groq", "llama-3.3-70b-versatile", "completion")))

	c.ObserveProviderHealth("groq", false)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.llmProviderHealthy.WithLabelValues("groq")))
	c.ObserveProviderHealth("groq", true)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.llmProviderHealthy.WithLabelValues("groq")))
}

func TestCollector_CacheAndDB(t *testing.T) {
	c, _ := newTestCollector(t)
	c.ObserveCache("redis", true)
	c.ObserveCache("redis", false)
	c.ObserveCache("redis", true)
	c.RecordDBConnections("sqlite", 3, 2, 1)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.cacheHits.WithLabelValues("redis")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cacheMisses.WithLabelValues("redis")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.dbConnectionsOpen.WithLabelValues("sqlite")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.dbConnectionsIdle.WithLabelValues("sqlite")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.dbConnectionsInUse.WithLabelValues("sqlite")))
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	c, _ := newTestCollector(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				c.ObserveWorker("news", time.Millisecond, 0)
				c.ObserveToolCall("search_market_news", "", time.Millisecond)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1000.0, testutil.ToFloat64(c.workerRunsTotal.WithLabelValues("news")))
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(204))
	assert.Equal(t, "3xx", statusClass(302))
	assert.Equal(t, "4xx", statusClass(429))
	assert.Equal(t, "5xx", statusClass(503))
	assert.Equal(t, "unknown", statusClass(100))
}
