package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BaSui01/csescout/llm"
	"github.com/BaSui01/csescout/market"
	"github.com/BaSui01/csescout/types"
	"go.uber.org/zap"
)

// Market tool names.
const (
	PriceToolName    = "get_cse_stock_price"
	RSIToolName      = "calculate_rsi"
	OverviewToolName = "get_market_overview"
)

// MarketToolConfig configures the CSE-backed tools.
type MarketToolConfig struct {
	Source  market.DataSource
	Timeout time.Duration
	// HistoryDays is how many daily closes are fetched for indicator calculation.
	HistoryDays int
}

type tickerArgs struct {
	Ticker string `json:"ticker"`
	Period int    `json:"period,omitempty"`
}

type priceResponse struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name,omitempty"`
	Price         float64 `json:"price"`
	ChangeAmount  float64 `json:"change_amount"`
	ChangePercent float64 `json:"change_percent"`
	Volume        int64   `json:"volume"`
	Currency      string  `json:"currency"`
	MarketStatus  string  `json:"market_status"`
	Timestamp     string  `json:"timestamp"`
}

type rsiResponse struct {
	Symbol    string  `json:"symbol"`
	Period    int     `json:"period"`
	RSI       float64 `json:"rsi"`
	Signal    string  `json:"signal"`
	LastClose float64 `json:"last_close"`
	Currency  string  `json:"currency"`
	Samples   int     `json:"samples"`
}

func tickerSchema() *types.JSONSchema {
	return types.NewStringSchema().
		WithLength(1, 64).
		WithDescription("CSE ticker such as JKH or DIAL, or the listed company name")
}

// RegisterMarketTools registers the price, RSI and overview tools.
func RegisterMarketTools(r ToolRegistry, cfg MarketToolConfig, logger *zap.Logger) error {
	if cfg.Source == nil {
		return fmt.Errorf("market data source is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.HistoryDays <= 0 {
		cfg.HistoryDays = 90
	}
	logger = logger.With(zap.String("component", "market_tools"))

	for _, build := range []func(MarketToolConfig, *zap.Logger) (ToolFunc, ToolMetadata){
		NewPriceTool, NewRSITool, NewOverviewTool,
	} {
		fn, meta := build(cfg, logger)
		if err := r.Register(fn, meta); err != nil {
			return err
		}
	}
	return nil
}

// NewPriceTool creates get_cse_stock_price.
func NewPriceTool(cfg MarketToolConfig, logger *zap.Logger) (ToolFunc, ToolMetadata) {
	params := types.NewObjectSchema().
		AddProperty("ticker", tickerSchema()).
		AddRequired("ticker").
		Closed()

	fn := func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var in tickerArgs
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, types.NewError(types.ErrToolInvalidArguments, "invalid ticker argument").WithCause(err)
		}
		q, err := cfg.Source.Quote(ctx, in.Ticker)
		if err != nil {
			return nil, err
		}
		logger.Debug("quote fetched", zap.String("symbol", q.Symbol), zap.Float64("price", q.Price))
		return json.Marshal(priceResponse{
			Symbol:        market.SecurityID(q.Symbol),
			Name:          q.Name,
			Price:         q.Price,
			ChangeAmount:  q.Change,
			ChangePercent: q.ChangePercent,
			Volume:        q.Volume,
			Currency:      q.Currency,
			MarketStatus:  "Active (CSE Direct)",
			Timestamp:     q.AsOf.Format(time.DateTime),
		})
	}

	return fn, ToolMetadata{
		Schema: llm.ToolSchema{
			Name:        PriceToolName,
			Description: "Get the latest traded price (LKR), change and volume of a Colombo Stock Exchange security.",
			Version:     "1.0.0",
		},
		Parameters:     params,
		Timeout:        cfg.Timeout,
		Upstream:       "cse",
		SymbolArgument: "ticker",
	}
}

// NewRSITool creates calculate_rsi.
func NewRSITool(cfg MarketToolConfig, logger *zap.Logger) (ToolFunc, ToolMetadata) {
	params := types.NewObjectSchema().
		AddProperty("ticker", tickerSchema()).
		AddProperty("period", types.NewIntegerSchema().
			WithRange(2, 50).
			WithDescription("Look-back period, default 14")).
		AddRequired("ticker").
		Closed()

	fn := func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var in tickerArgs
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, types.NewError(types.ErrToolInvalidArguments, "invalid calculate_rsi arguments").WithCause(err)
		}
		if in.Period == 0 {
			in.Period = market.DefaultRSIPeriod
		}

		closes, err := cfg.Source.History(ctx, in.Ticker, cfg.HistoryDays)
		if err != nil {
			return nil, err
		}
		value, err := market.RSI(closes, in.Period)
		if err != nil {
			return nil, types.NewError(types.ErrToolUpstreamFailure,
				fmt.Sprintf("not enough price history for %s", in.Ticker)).
				WithProvider("cse").
				WithCause(err)
		}
		logger.Debug("rsi calculated", zap.String("symbol", in.Ticker), zap.Float64("rsi", value))

		return json.Marshal(rsiResponse{
			Symbol:    market.SecurityID(in.Ticker),
			Period:    in.Period,
			RSI:       value,
			Signal:    market.RSISignal(value),
			LastClose: closes[len(closes)-1],
			Currency:  market.Currency,
			Samples:   len(closes),
		})
	}

	return fn, ToolMetadata{
		Schema: llm.ToolSchema{
			Name:        RSIToolName,
			Description: "Calculate the Relative Strength Index of a CSE security from its daily closing prices.",
			Version:     "1.0.0",
		},
		Parameters:     params,
		Timeout:        cfg.Timeout,
		Upstream:       "cse",
		SymbolArgument: "ticker",
	}
}

// NewOverviewTool creates get_market_overview.
func NewOverviewTool(cfg MarketToolConfig, _ *zap.Logger) (ToolFunc, ToolMetadata) {
	fn := func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
		ov, err := cfg.Source.Overview(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(ov)
	}

	return fn, ToolMetadata{
		Schema: llm.ToolSchema{
			Name:        OverviewToolName,
			Description: "Get today's Colombo Stock Exchange summary: ASPI index level and change, turnover, share volume and trades.",
			Version:     "1.0.0",
		},
		Parameters: types.NewObjectSchema().Closed(),
		Timeout:    cfg.Timeout,
		Upstream:   "cse",
	}
}
