package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/BaSui01/csescout/internal/tlsutil"
	"github.com/BaSui01/csescout/llm/providers"
	"github.com/BaSui01/csescout/llm/retry"
	"github.com/BaSui01/csescout/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// DefaultCSEBaseURL is the public CSE API root.
	DefaultCSEBaseURL = "https://www.cse.lk/api"

	// Currency of every CSE price.
	Currency = "LKR"

	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	securitySuffix   = ".N0000"
	upstreamName     = "cse"
)

// DataSource is the market-data collaborator used by the tools.
type DataSource interface {
	Quote(ctx context.Context, symbol string) (*Quote, error)
	History(ctx context.Context, symbol string, days int) ([]float64, error)
	Overview(ctx context.Context) (*Overview, error)
}

// Cache stores JSON snapshots. Any Get error is treated as a miss.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest any) error
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

// Quote is a last-traded snapshot for one security.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Name          string    `json:"name,omitempty"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change_amount"`
	ChangePercent float64   `json:"change_percent"`
	Volume        int64     `json:"volume"`
	Currency      string    `json:"currency"`
	AsOf          time.Time `json:"timestamp"`
}

// Overview summarises the whole exchange for the current session.
type Overview struct {
	ASPI              float64   `json:"aspi"`
	ASPIChange        float64   `json:"aspi_change"`
	ASPIChangePercent float64   `json:"aspi_change_percent"`
	Turnover          float64   `json:"turnover"`
	ShareVolume       int64     `json:"share_volume"`
	Trades            int64     `json:"trades"`
	Currency          string    `json:"currency"`
	AsOf              time.Time `json:"timestamp"`
}

// CSEConfig configures the CSE client.
type CSEConfig struct {
	BaseURL           string             `yaml:"base_url" json:"base_url"`
	Timeout           time.Duration      `yaml:"timeout" json:"timeout"`
	RequestsPerSecond float64            `yaml:"requests_per_second" json:"requests_per_second"`
	UserAgent         string             `yaml:"user_agent" json:"user_agent"`
	QuoteTTL          time.Duration      `yaml:"quote_ttl" json:"quote_ttl"`
	Retry             *retry.RetryPolicy `yaml:"-" json:"-"`
}

// DefaultCSEConfig returns the production defaults.
func DefaultCSEConfig() CSEConfig {
	return CSEConfig{
		BaseURL:           DefaultCSEBaseURL,
		Timeout:           5 * time.Second,
		RequestsPerSecond: 5,
		UserAgent:         defaultUserAgent,
		QuoteTTL:          30 * time.Second,
	}
}

// CSEClient talks to the cse.lk JSON endpoints.
type CSEClient struct {
	cfg     CSEConfig
	client  *http.Client
	limiter *rate.Limiter
	retryer retry.Retryer
	cache   Cache
	logger  *zap.Logger
	now     func() time.Time
}

// NewCSEClient creates a client. cache may be nil.
func NewCSEClient(cfg CSEConfig, cache Cache, logger *zap.Logger) *CSEClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultCSEConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &CSEClient{
		cfg:     cfg,
		client:  tlsutil.SecureHTTPClient(cfg.Timeout),
		limiter: limiter,
		retryer: retry.NewBackoffRetryer(cfg.Retry, logger),
		cache:   cache,
		logger:  logger.With(zap.String("component", "cse_client")),
		now:     time.Now,
	}
}

// SecurityID converts a ticker into the CSE security identifier (JKH → JKH.N0000).
func SecurityID(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if strings.Contains(s, ".") {
		return s
	}
	return s + securitySuffix
}

type companyInfoResponse struct {
	ReqSymbolInfo *struct {
		Name             string   `json:"name"`
		Symbol           string   `json:"symbol"`
		LastTradedPrice  *float64 `json:"lastTradedPrice"`
		Change           *float64 `json:"change"`
		ChangePercentage *float64 `json:"changePercentage"`
		TdyShareVolume   *float64 `json:"tdyShareVolume"`
	} `json:"reqSymbolInfo"`
}

// Quote fetches the last traded price for a canonical ticker.
func (c *CSEClient) Quote(ctx context.Context, symbol string) (*Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	cacheKey := "quote:" + symbol

	if c.cache != nil && c.cfg.QuoteTTL > 0 {
		var cached Quote
		if err := c.cache.GetJSON(ctx, cacheKey, &cached); err == nil {
			c.logger.Debug("quote cache hit", zap.String("symbol", symbol))
			return &cached, nil
		}
	}

	var resp companyInfoResponse
	if err := c.post(ctx, "companyInfoSummery", url.Values{"symbol": {SecurityID(symbol)}}, &resp); err != nil {
		return nil, err
	}
	info := resp.ReqSymbolInfo
	if info == nil || info.LastTradedPrice == nil {
		return nil, types.NewError(types.ErrToolUpstreamFailure,
			fmt.Sprintf("no quote returned for %s", SecurityID(symbol))).WithProvider(upstreamName)
	}

	q := &Quote{
		Symbol:        symbol,
		Name:          info.Name,
		Price:         *info.LastTradedPrice,
		Change:        deref(info.Change),
		ChangePercent: deref(info.ChangePercentage),
		Volume:        int64(deref(info.TdyShareVolume)),
		Currency:      Currency,
		AsOf:          c.now(),
	}

	if c.cache != nil && c.cfg.QuoteTTL > 0 {
		if err := c.cache.SetJSON(ctx, cacheKey, q, c.cfg.QuoteTTL); err != nil {
			c.logger.Debug("quote cache write skipped", zap.Error(err))
		}
	}
	return q, nil
}

type chartResponse struct {
	ChartData []struct {
		P *float64 `json:"p"`
		T int64    `json:"t"`
	} `json:"chartData"`
}

// History returns daily closes, oldest first.
func (c *CSEClient) History(ctx context.Context, symbol string, days int) ([]float64, error) {
	if days <= 0 {
		days = 90
	}
	form := url.Values{
		"symbol": {SecurityID(symbol)},
		"period": {strconv.Itoa(days)},
	}
	var resp chartResponse
	if err := c.post(ctx, "chartData", form, &resp); err != nil {
		return nil, err
	}

	closes := make([]float64, 0, len(resp.ChartData))
	for _, pt := range resp.ChartData {
		if pt.P != nil {
			closes = append(closes, *pt.P)
		}
	}
	if len(closes) == 0 {
		return nil, types.NewError(types.ErrToolUpstreamFailure,
			fmt.Sprintf("no price history returned for %s", SecurityID(symbol))).WithProvider(upstreamName)
	}
	return closes, nil
}

type marketSummaryResponse struct {
	TradeVolume *float64 `json:"tradeVolume"`
	ShareVolume *float64 `json:"shareVolume"`
	Trades      *float64 `json:"trades"`
}

type aspiResponse struct {
	Value      *float64 `json:"value"`
	Change     *float64 `json:"change"`
	Percentage *float64 `json:"percentage"`
}

// Overview combines the market summary and ASPI index endpoints.
func (c *CSEClient) Overview(ctx context.Context) (*Overview, error) {
	var summary marketSummaryResponse
	if err := c.post(ctx, "marketSummery", url.Values{}, &summary); err != nil {
		return nil, err
	}
	var aspi aspiResponse
	if err := c.post(ctx, "aspiData", url.Values{}, &aspi); err != nil {
		return nil, err
	}
	if aspi.Value == nil {
		return nil, types.NewError(types.ErrToolUpstreamFailure, "ASPI value missing from response").
			WithProvider(upstreamName)
	}

	return &Overview{
		ASPI:              *aspi.Value,
		ASPIChange:        deref(aspi.Change),
		ASPIChangePercent: deref(aspi.Percentage),
		Turnover:          deref(summary.TradeVolume),
		ShareVolume:       int64(deref(summary.ShareVolume)),
		Trades:            int64(deref(summary.Trades)),
		Currency:          Currency,
		AsOf:              c.now(),
	}, nil
}

// post sends a form request to one endpoint and decodes the JSON body.
// Errors are *types.Error with TOOL_UPSTREAM_FAILURE, except caller cancellation.
func (c *CSEClient) post(ctx context.Context, endpoint string, form url.Values, dest any) error {
	err := c.retryer.Do(ctx, func() error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		return c.doPost(ctx, endpoint, form, dest)
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	c.logger.Warn("cse request failed", zap.String("endpoint", endpoint), zap.Error(err))
	if te, ok := types.AsError(err); ok && te.Code == types.ErrToolUpstreamFailure {
		return err
	}
	return types.NewError(types.ErrToolUpstreamFailure, fmt.Sprintf("cse %s request failed", endpoint)).
		WithProvider(upstreamName).
		WithCause(err)
}

func (c *CSEClient) doPost(ctx context.Context, endpoint string, form url.Values, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/"+endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Referer", "https://www.cse.lk/")
	req.Header.Set("Origin", "https://www.cse.lk")
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return providers.MapHTTPError(resp.StatusCode, providers.ReadErrorMessage(resp.Body), upstreamName)
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}

	c.logger.Debug("cse request ok",
		zap.String("endpoint", endpoint),
		zap.Duration("latency", time.Since(start)))
	return nil
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
