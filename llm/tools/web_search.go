package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/csescout/llm"
	"github.com/BaSui01/csescout/types"
	"go.uber.org/zap"
)

// NewsToolName is the registered name of the market news tool.
const NewsToolName = "search_market_news"

// NoNewsFound is returned as the digest when the search backend has no hits.
const NoNewsFound = "No news found"

// WebSearchProvider defines the interface for web search backends.
type WebSearchProvider interface {
	Search(ctx context.Context, query string, opts WebSearchOptions) ([]WebSearchResult, error)
	Name() string
}

// WebSearchOptions configures a web search request.
type WebSearchOptions struct {
	MaxResults  int    `json:"max_results"`
	Topic       string `json:"topic,omitempty"`        // "news" or "general"
	SearchDepth string `json:"search_depth,omitempty"` // "basic" or "advanced"
}

// DefaultWebSearchOptions returns the options used for market news.
func DefaultWebSearchOptions() WebSearchOptions {
	return WebSearchOptions{
		MaxResults:  3,
		Topic:       "news",
		SearchDepth: "basic",
	}
}

// WebSearchResult represents a single search result.
type WebSearchResult struct {
	Title       string  `json:"title"`
	URL         string  `json:"url"`
	Content     string  `json:"content"`
	PublishedAt string  `json:"published_at,omitempty"`
	Score       float64 `json:"score,omitempty"`
}

// NewsToolConfig configures the market news tool.
type NewsToolConfig struct {
	Provider    WebSearchProvider
	DefaultOpts WebSearchOptions
	// QuerySuffix scopes every search to the local market.
	QuerySuffix string
	Timeout     time.Duration
}

// DefaultNewsToolConfig returns sensible defaults.
func DefaultNewsToolConfig() NewsToolConfig {
	return NewsToolConfig{
		DefaultOpts: DefaultWebSearchOptions(),
		QuerySuffix: "Sri Lanka stock market",
		Timeout:     15 * time.Second,
	}
}

type newsArgs struct {
	Query string `json:"query"`
}

type newsResponse struct {
	Query   string            `json:"query"`
	Results []WebSearchResult `json:"results"`
	Digest  string            `json:"digest"`
}

// NewsParameters is the argument schema of search_market_news.
func NewsParameters() *types.JSONSchema {
	return types.NewObjectSchema().
		AddProperty("query", types.NewStringSchema().
			WithLength(1, 200).
			WithDescription("Company, ticker or topic to search news for")).
		AddRequired("query").
		Closed()
}

// NewNewsTool creates the market news ToolFunc.
func NewNewsTool(config NewsToolConfig, logger *zap.Logger) (ToolFunc, ToolMetadata) {
	if logger == nil {
		logger = zap.NewNop()
	}

	fn := func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var params newsArgs
		if err := json.Unmarshal(args, &params); err != nil {
			return nil, types.NewError(types.ErrToolInvalidArguments, "invalid search_market_news arguments").WithCause(err)
		}
		if config.Provider == nil {
			return nil, types.NewError(types.ErrToolUpstreamFailure, "news search provider not configured")
		}

		query := strings.TrimSpace(params.Query)
		if config.QuerySuffix != "" {
			query = query + " " + config.QuerySuffix
		}

		start := time.Now()
		logger.Info("executing news search",
			zap.String("query", query),
			zap.String("provider", config.Provider.Name()))

		results, err := config.Provider.Search(ctx, query, config.DefaultOpts)
		if err != nil {
			logger.Error("news search failed", zap.String("query", query), zap.Error(err))
			return nil, types.NewError(types.ErrToolUpstreamFailure, "news search failed").
				WithProvider(config.Provider.Name()).
				WithCause(err)
		}
		if results == nil {
			results = []WebSearchResult{}
		}

		logger.Debug("news search completed",
			zap.Int("results", len(results)),
			zap.Duration("duration", time.Since(start)))

		return json.Marshal(newsResponse{
			Query:   query,
			Results: results,
			Digest:  FormatDigest(results),
		})
	}

	params := NewsParameters()
	meta := ToolMetadata{
		Schema: llm.ToolSchema{
			Name:        NewsToolName,
			Description: "Search recent Sri Lankan financial news about a listed company or the market.",
			Parameters:  params.MustJSON(),
			Version:     "1.0.0",
		},
		Parameters: params,
		Timeout:    config.Timeout,
		Upstream:   "tavily",
	}
	return fn, meta
}

// FormatDigest renders results one per line as "- title: content".
func FormatDigest(results []WebSearchResult) string {
	if len(results) == 0 {
		return NoNewsFound
	}
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- %s: %s", r.Title, r.Content)
	}
	return b.String()
}
