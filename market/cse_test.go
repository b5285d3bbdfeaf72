package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BaSui01/csescout/internal/cache"
	"github.com/BaSui01/csescout/llm/retry"
	"github.com/BaSui01/csescout/types"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testCSEConfig(baseURL string) CSEConfig {
	cfg := DefaultCSEConfig()
	cfg.BaseURL = baseURL
	cfg.RequestsPerSecond = 0
	cfg.QuoteTTL = 0
	cfg.Retry = &retry.RetryPolicy{MaxRetries: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
	return cfg
}

func TestCSEClient_Quote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/companyInfoSummery", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.Header.Get("User-Agent"), "Chrome/120")
		assert.Equal(t, "https://www.cse.lk/", r.Header.Get("Referer"))
		assert.Equal(t, "https://www.cse.lk", r.Header.Get("Origin"))
		assert.Equal(t, "application/x-www-form-urlencoded; charset=UTF-8", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "JKH.N0000", r.PostForm.Get("symbol"))

		_, _ = w.Write([]byte(`{"reqSymbolInfo":{"name":"JOHN KEELLS HOLDINGS PLC","lastTradedPrice":198.5,"change":-1.5,"changePercentage":-0.75,"tdyShareVolume":123456}}`))
	}))
	defer srv.Close()

	c := NewCSEClient(testCSEConfig(srv.URL), nil, zap.NewNop())
	q, err := c.Quote(context.Background(), "jkh")
	require.NoError(t, err)

	assert.Equal(t, "JKH", q.Symbol)
	assert.Equal(t, 198.5, q.Price)
	assert.Equal(t, -1.5, q.Change)
	assert.Equal(t, -0.75, q.ChangePercent)
	assert.Equal(t, int64(123456), q.Volume)
	assert.Equal(t, "LKR", q.Currency)
}

func TestCSEClient_QuoteFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `oops`},
		{name: "empty symbol info", status: http.StatusOK, body: `{"reqSymbolInfo":null}`},
		{name: "null price", status: http.StatusOK, body: `{"reqSymbolInfo":{"lastTradedPrice":null}}`},
		{name: "not json", status: http.StatusOK, body: `<html>blocked</html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewCSEClient(testCSEConfig(srv.URL), nil, zap.NewNop())
			q, err := c.Quote(context.Background(), "XYZ")
			assert.Nil(t, q, "no fabricated quote on failure")
			require.Error(t, err)
			assert.Equal(t, types.ErrToolUpstreamFailure, types.GetErrorCode(err))
		})
	}
}

func TestCSEClient_QuoteCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cc := cache.DefaultConfig()
	cc.Addr = mr.Addr()
	cc.HealthCheckInterval = 0
	mgr, err := cache.NewManager(cc, zap.NewNop())
	require.NoError(t, err)
	defer mgr.Close()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"reqSymbolInfo":{"lastTradedPrice":21.4}}`))
	}))
	defer srv.Close()

	cfg := testCSEConfig(srv.URL)
	cfg.QuoteTTL = time.Minute
	c := NewCSEClient(cfg, mgr, zap.NewNop())

	for i := 0; i < 3; i++ {
		q, err := c.Quote(context.Background(), "DIAL")
		require.NoError(t, err)
		assert.Equal(t, 21.4, q.Price)
	}
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, mr.Exists("csescout:quote:DIAL"))
}

func TestCSEClient_History(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chartData", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "COMB.N0000", r.PostForm.Get("symbol"))
		assert.Equal(t, "30", r.PostForm.Get("period"))
		_, _ = w.Write([]byte(`{"chartData":[{"p":100,"t":1},{"p":null,"t":2},{"p":101.5,"t":3}]}`))
	}))
	defer srv.Close()

	c := NewCSEClient(testCSEConfig(srv.URL), nil, zap.NewNop())
	closes, err := c.History(context.Background(), "COMB", 30)
	require.NoError(t, err)
	assert.Equal(t, []float64{100, 101.5}, closes)
}

func TestCSEClient_Overview(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/marketSummery":
			_, _ = w.Write([]byte(`{"tradeVolume":2450000000,"shareVolume":98000000,"trades":15234}`))
		case "/aspiData":
			_, _ = w.Write([]byte(`{"value":16234.12,"change":45.3,"percentage":0.28}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewCSEClient(testCSEConfig(srv.URL), nil, zap.NewNop())
	ov, err := c.Overview(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 16234.12, ov.ASPI)
	assert.Equal(t, 0.28, ov.ASPIChangePercent)
	assert.Equal(t, int64(15234), ov.Trades)
	assert.Equal(t, "LKR", ov.Currency)
}

func TestCSEClient_Cancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewCSEClient(testCSEConfig(srv.URL), nil, zap.NewNop())
	_, err := c.Quote(ctx, "JKH")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSecurityID(t *testing.T) {
	assert.Equal(t, "JKH.N0000", SecurityID(" jkh "))
	assert.Equal(t, "HNB.X0000", SecurityID("HNB.X0000"))
}
