package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/csescout/internal/tlsutil"
	"github.com/BaSui01/csescout/llm/providers"
	"github.com/BaSui01/csescout/llm/retry"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultTavilyURL is the Tavily search endpoint.
const DefaultTavilyURL = "https://api.tavily.com/search"

// TavilyConfig configures the Tavily search backend.
type TavilyConfig struct {
	APIKey  string        `json:"-" yaml:"api_key"`
	BaseURL string        `json:"base_url,omitempty" yaml:"base_url"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout"`
	// RequestsPerSecond 为 0 表示不限流
	RequestsPerSecond float64 `json:"requests_per_second,omitempty" yaml:"requests_per_second"`
	Retry             *retry.RetryPolicy `json:"-" yaml:"-"`
}

// TavilyProvider implements WebSearchProvider against the Tavily API.
type TavilyProvider struct {
	cfg     TavilyConfig
	client  *http.Client
	limiter *rate.Limiter
	retryer retry.Retryer
	logger  *zap.Logger
}

// NewTavilyProvider creates a Tavily search backend.
func NewTavilyProvider(cfg TavilyConfig, logger *zap.Logger) *TavilyProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultTavilyURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	policy := cfg.Retry
	if policy == nil {
		policy = retry.DefaultRetryPolicy()
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &TavilyProvider{
		cfg:     cfg,
		client:  tlsutil.SecureHTTPClient(cfg.Timeout),
		limiter: limiter,
		retryer: retry.NewBackoffRetryer(policy, logger),
		logger:  logger.With(zap.String("provider", "tavily")),
	}
}

func (p *TavilyProvider) Name() string { return "tavily" }

type tavilyRequest struct {
	APIKey      string `json:"api_key"`
	Query       string `json:"query"`
	Topic       string `json:"topic,omitempty"`
	SearchDepth string `json:"search_depth,omitempty"`
	MaxResults  int    `json:"max_results,omitempty"`
}

type tavilyResponse struct {
	Results []struct {
		Title         string  `json:"title"`
		URL           string  `json:"url"`
		Content       string  `json:"content"`
		Score         float64 `json:"score"`
		PublishedDate string  `json:"published_date"`
	} `json:"results"`
}

func (p *TavilyProvider) Search(ctx context.Context, query string, opts WebSearchOptions) ([]WebSearchResult, error) {
	if p.cfg.APIKey == "" {
		return nil, fmt.Errorf("tavily api key not configured")
	}
	body, err := json.Marshal(tavilyRequest{
		APIKey:      p.cfg.APIKey,
		Query:       query,
		Topic:       opts.Topic,
		SearchDepth: opts.SearchDepth,
		MaxResults:  opts.MaxResults,
	})
	if err != nil {
		return nil, err
	}

	return retry.DoWithResult(ctx, p.retryer, func() ([]WebSearchResult, error) {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		return p.do(ctx, body)
	})
}

func (p *TavilyProvider) do(ctx context.Context, body []byte) ([]WebSearchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := providers.ReadErrorMessage(resp.Body)
		return nil, providers.MapHTTPError(resp.StatusCode, msg, p.Name())
	}

	var tr tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("decode tavily response: %w", err)
	}

	results := make([]WebSearchResult, 0, len(tr.Results))
	for _, r := range tr.Results {
		results = append(results, WebSearchResult{
			Title:       strings.TrimSpace(r.Title),
			URL:         r.URL,
			Content:     strings.TrimSpace(r.Content),
			PublishedAt: r.PublishedDate,
			Score:       r.Score,
		})
	}
	p.logger.Debug("tavily search ok", zap.Int("results", len(results)))
	return results, nil
}
