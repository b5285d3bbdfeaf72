package mocks

import (
	"context"
	"strings"
	"sync"

	"github.com/BaSui01/csescout/market"
	"github.com/BaSui01/csescout/types"
)

// MockResolver 基于固定映射的代码解析器，未知引用返回 AMBIGUOUS_SYMBOL
type MockResolver struct {
	mu      sync.Mutex
	symbols map[string]string
	calls   []string
}

// NewMockResolver 创建解析器，键不区分大小写
func NewMockResolver(symbols map[string]string) *MockResolver {
	m := &MockResolver{symbols: make(map[string]string, len(symbols))}
	for k, v := range symbols {
		m.symbols[strings.ToLower(k)] = v
	}
	return m
}

func (m *MockResolver) Resolve(_ context.Context, ref string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, ref)
	if t, ok := m.symbols[strings.ToLower(strings.TrimSpace(ref))]; ok {
		return t, nil
	}
	return "", types.NewError(types.ErrAmbiguousSymbol, "cannot resolve "+ref)
}

// Calls 返回解析过的引用
func (m *MockResolver) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// MockDataSource 内存行情数据源
type MockDataSource struct {
	mu       sync.Mutex
	Quotes   map[string]*market.Quote
	Closes   map[string][]float64
	Snapshot *market.Overview
	Err      error
	requests []string
}

// NewMockDataSource 创建空数据源
func NewMockDataSource() *MockDataSource {
	return &MockDataSource{
		Quotes: map[string]*market.Quote{},
		Closes: map[string][]float64{},
	}
}

// WithQuote 添加报价
func (m *MockDataSource) WithQuote(symbol string, price float64) *MockDataSource {
	m.Quotes[symbol] = &market.Quote{Symbol: symbol, Price: price, Currency: market.Currency}
	return m
}

func (m *MockDataSource) Quote(_ context.Context, symbol string) (*market.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, "quote:"+symbol)
	if m.Err != nil {
		return nil, m.Err
	}
	q, ok := m.Quotes[symbol]
	if !ok {
		return nil, types.NewError(types.ErrToolUpstreamFailure, "no quote returned for "+symbol)
	}
	return q, nil
}

func (m *MockDataSource) History(_ context.Context, symbol string, _ int) ([]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, "history:"+symbol)
	if m.Err != nil {
		return nil, m.Err
	}
	c, ok := m.Closes[symbol]
	if !ok {
		return nil, types.NewError(types.ErrToolUpstreamFailure, "no price history returned for "+symbol)
	}
	return c, nil
}

func (m *MockDataSource) Overview(context.Context) (*market.Overview, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, "overview")
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Snapshot == nil {
		return &market.Overview{ASPI: 16000, Currency: market.Currency}, nil
	}
	return m.Snapshot, nil
}

// Requests 返回请求记录
func (m *MockDataSource) Requests() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.requests...)
}
