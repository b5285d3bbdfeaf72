package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/csescout/llm"
	"github.com/BaSui01/csescout/llm/tools"
	"github.com/BaSui01/csescout/testutil"
	"github.com/BaSui01/csescout/testutil/mocks"
	"github.com/BaSui01/csescout/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticSearch struct{ results []tools.WebSearchResult }

func (s staticSearch) Search(context.Context, string, tools.WebSearchOptions) ([]tools.WebSearchResult, error) {
	return s.results, nil
}
func (s staticSearch) Name() string { return "static" }

type fixture struct {
	registry *tools.DefaultRegistry
	source   *mocks.MockDataSource
	resolver *mocks.MockResolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	src := mocks.NewMockDataSource().WithQuote("JKH", 198.5).WithQuote("COMB", 101)
	reg := tools.NewDefaultRegistry(zap.NewNop())
	require.NoError(t, tools.RegisterMarketTools(reg, tools.MarketToolConfig{Source: src}, zap.NewNop()))

	newsCfg := tools.DefaultNewsToolConfig()
	newsCfg.Provider = staticSearch{results: []tools.WebSearchResult{{Title: "JKH Q3", Content: "profit up"}}}
	fn, meta := tools.NewNewsTool(newsCfg, zap.NewNop())
	require.NoError(t, reg.Register(fn, meta))

	return &fixture{
		registry: reg,
		source:   src,
		resolver: mocks.NewMockResolver(map[string]string{
			"JKH": "JKH", "John Keells": "JKH", "DIAL": "DIAL", "Dialog": "DIAL", "COMB": "COMB",
		}),
	}
}

func (f *fixture) worker(t *testing.T, cfg WorkerConfig, p llm.Provider) *Worker {
	t.Helper()
	w, err := NewWorker(cfg, p, f.registry, f.resolver, zap.NewNop())
	require.NoError(t, err)
	return w
}

func TestNewWorker_Validation(t *testing.T) {
	f := newFixture(t)
	p := mocks.NewMockProvider()

	_, err := NewWorker(AnalystConfig(), nil, f.registry, f.resolver, nil)
	assert.ErrorIs(t, err, ErrProviderNotSet)

	_, err = NewWorker(WorkerConfig{Name: "x"}, p, f.registry, f.resolver, nil)
	assert.ErrorIs(t, err, ErrConfigInvalid)

	_, err = NewWorker(WorkerConfig{Name: "x", Tools: []string{"missing_tool"}}, p, f.registry, f.resolver, nil)
	assert.ErrorIs(t, err, ErrConfigInvalid)

	_, err = NewWorker(WorkerConfig{Tools: []string{tools.PriceToolName}}, p, f.registry, f.resolver, nil)
	assert.ErrorIs(t, err, ErrConfigInvalid)

	w, err := NewWorker(AnalystConfig(), p, f.registry, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, AnalystName, w.Name())
	assert.ElementsMatch(t, []string{tools.PriceToolName, tools.RSIToolName, tools.OverviewToolName}, w.Tools())
}

func TestWorker_Run_ResolvesSymbolBeforeCall(t *testing.T) {
	f := newFixture(t)
	p := mocks.NewMockProvider().WithScript(
		mocks.ToolCallResponse(mocks.ToolCall("c1", tools.PriceToolName, `{"ticker":"John Keells"}`)),
		mocks.TextResponse("JKH last traded at LKR 198.50."),
	)
	w := f.worker(t, AnalystConfig(), p)

	s, err := w.Run(testutil.TestContext(t), "Get the JKH price")
	require.NoError(t, err)

	assert.Equal(t, AnalystName, s.Worker)
	assert.Equal(t, "JKH last traded at LKR 198.50.", s.Text)
	assert.Equal(t, 2, s.Steps)
	assert.Equal(t, 1, s.ToolCalls)
	assert.Empty(t, s.Limitations)
	assert.Empty(t, s.Ambiguous)
	assert.Equal(t, []string{"quote:JKH"}, f.source.Requests())

	// 第二次请求携带工具结果，且工具结果只包含规范化后的代码
	calls := p.Calls()
	require.Len(t, calls, 2)
	first := calls[0].Request
	assert.Len(t, first.Tools, 3, "only whitelisted tools are advertised")
	msgs := calls[1].Request.Messages
	testutil.AssertRoles(t, msgs, types.RoleSystem, types.RoleUser, types.RoleAssistant, types.RoleTool)
	assert.Contains(t, msgs[3].Content, `"symbol":"JKH.N0000"`)
	assert.Contains(t, msgs[0].Content, "LKR")
}

func TestWorker_Run_AmbiguousSymbolSkipsCall(t *testing.T) {
	f := newFixture(t)
	p := mocks.NewMockProvider().WithScript(
		mocks.ToolCallResponse(mocks.ToolCall("c1", tools.PriceToolName, `{"ticker":"XYZCorp"}`)),
		mocks.TextResponse("I could not identify XYZCorp on the CSE."),
	)
	w := f.worker(t, AnalystConfig(), p)

	s, err := w.Run(context.Background(), "price of XYZCorp")
	require.NoError(t, err)

	assert.Equal(t, []string{"XYZCorp"}, s.Ambiguous)
	require.Len(t, s.Limitations, 1)
	assert.Contains(t, s.Limitations[0], `could not resolve "XYZCorp"`)
	assert.Empty(t, f.source.Requests(), "no data retrieval for an unresolved reference")

	toolMsg := p.Calls()[1].Request.Messages[3]
	assert.Contains(t, toolMsg.Content, string(types.ErrAmbiguousSymbol))
	assert.Contains(t, s.Render(), `Unresolved symbols: "XYZCorp".`)
}

func TestWorker_Run_ToolErrorsBecomeLimitations(t *testing.T) {
	f := newFixture(t)
	p := mocks.NewMockProvider().WithScript(
		mocks.ToolCallResponse(
			mocks.ToolCall("c1", tools.PriceToolName, `{"ticker":"DIAL"}`),
			mocks.ToolCall("c2", tools.RSIToolName, `{"ticker":"JKH","period":1}`),
			mocks.ToolCall("c3", tools.NewsToolName, `{"query":"JKH"}`),
		),
		mocks.TextResponse("Partial data only."),
	)
	w := f.worker(t, AnalystConfig(), p)

	s, err := w.Run(context.Background(), "analyse DIAL")
	require.NoError(t, err)

	require.Len(t, s.Limitations, 3)
	assert.Equal(t, "price data unavailable for DIAL (TOOL_UPSTREAM_FAILURE)", s.Limitations[0])
	assert.Equal(t, "RSI unavailable for JKH (TOOL_INVALID_ARGUMENTS)", s.Limitations[1])
	assert.Equal(t, "news search unavailable (TOOL_NOT_PERMITTED)", s.Limitations[2])
	assert.Equal(t, "Partial data only.", s.Text)

	// 工具结果顺序与调用顺序一致
	msgs := p.Calls()[1].Request.Messages
	require.Len(t, msgs, 6)
	assert.Equal(t, "c1", msgs[3].ToolCallID)
	assert.Equal(t, "c2", msgs[4].ToolCallID)
	assert.Equal(t, "c3", msgs[5].ToolCallID)
}

func TestWorker_Run_StepBudget(t *testing.T) {
	f := newFixture(t)
	p := mocks.NewMockProvider().WithCompletionFunc(func(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
		if len(req.Tools) == 0 {
			return mocks.TextResponse("JKH is at LKR 198.50; no further data."), nil
		}
		return mocks.ToolCallResponse(mocks.ToolCall("c", tools.PriceToolName, `{"ticker":"JKH"}`)), nil
	})
	cfg := AnalystConfig()
	cfg.MaxSteps = 2
	w := f.worker(t, cfg, p)

	s, err := w.Run(context.Background(), "keep checking JKH")
	require.NoError(t, err)

	assert.Equal(t, 2, s.Steps)
	assert.Equal(t, 2, s.ToolCalls)
	assert.Equal(t, 3, p.CallCount(), "two tool steps plus one closing summary")
	assert.Contains(t, s.Limitations, "step budget of 2 exhausted before the subtask was complete")
	assert.Equal(t, "JKH is at LKR 198.50; no further data.", s.Text)
}

func TestWorker_Run_ProviderFailure(t *testing.T) {
	f := newFixture(t)
	p := mocks.NewMockProvider().WithError(types.NewError(types.ErrUpstreamError, "groq down"))
	w := f.worker(t, ResearcherConfig(), p)

	s, err := w.Run(context.Background(), "news on JKH")
	require.NoError(t, err)
	require.Len(t, s.Limitations, 1)
	assert.Contains(t, s.Limitations[0], "UPSTREAM_ERROR groq down")
	assert.Contains(t, s.Text, "could not produce findings")
}

func TestWorker_Run_Cancelled(t *testing.T) {
	f := newFixture(t)
	p := mocks.NewMockProvider().WithDelay(time.Second)
	w := f.worker(t, AnalystConfig(), p)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	s, err := w.Run(ctx, "price of JKH")
	assert.Nil(t, s)
	assert.True(t, errors.Is(err, context.Canceled))

	_, err = w.Run(testutil.CancelledContext(), "price of JKH")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWorker_Run_EmitsTrace(t *testing.T) {
	f := newFixture(t)
	p := mocks.NewMockProvider().WithScript(
		mocks.ToolCallResponse(
			mocks.ToolCall("c1", tools.PriceToolName, `{"ticker":"JKH"}`),
			mocks.ToolCall("c2", tools.PriceToolName, `{"ticker":"COMB"}`),
		),
		mocks.TextResponse("done"),
	)
	w := f.worker(t, AnalystConfig(), p)

	var mu sync.Mutex
	var events []TraceEvent
	ctx := WithEmitter(context.Background(), func(ev TraceEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	})

	_, err := w.Run(ctx, "JKH and COMB prices")
	require.NoError(t, err)

	require.Len(t, events, 4)
	assert.Equal(t, TraceToolCall, events[0].Kind)
	assert.Equal(t, TraceToolCall, events[1].Kind)
	assert.Equal(t, TraceToolResult, events[2].Kind)
	assert.Equal(t, TraceToolResult, events[3].Kind)
	assert.Contains(t, events[2].Detail, "JKH.N0000")
	assert.Contains(t, events[3].Detail, "COMB.N0000")
	for _, ev := range events {
		assert.Equal(t, AnalystName, ev.Actor)
		assert.Equal(t, 1, ev.Step)
	}
}

func TestWorker_Run_SummaryIsCapped(t *testing.T) {
	f := newFixture(t)
	long := strings.Repeat("The Colombo market moved sideways today. ", 200)
	p := mocks.NewMockProvider().WithResponse(long)
	cfg := ResearcherConfig()
	cfg.MaxSummaryTokens = 50
	w := f.worker(t, cfg, p)

	s, err := w.Run(context.Background(), "market mood")
	require.NoError(t, err)
	assert.Less(t, len(s.Text), len(long))
	assert.True(t, strings.HasSuffix(s.Text, "…"))
}
