package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/BaSui01/csescout/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// --- mock WebSearchProvider ---

type mockWebSearchProvider struct {
	name      string
	results   []WebSearchResult
	err       error
	lastQuery string
	lastOpts  WebSearchOptions
}

func (m *mockWebSearchProvider) Search(_ context.Context, query string, opts WebSearchOptions) ([]WebSearchResult, error) {
	m.lastQuery = query
	m.lastOpts = opts
	if m.err != nil {
		return nil, m.err
	}
	return m.results, nil
}

func (m *mockWebSearchProvider) Name() string { return m.name }

// --- tests ---

func TestNewNewsTool_Metadata(t *testing.T) {
	t.Parallel()

	_, meta := NewNewsTool(DefaultNewsToolConfig(), zap.NewNop())
	assert.Equal(t, NewsToolName, meta.Schema.Name)
	assert.Equal(t, 15*time.Second, meta.Timeout)
	assert.Equal(t, "tavily", meta.Upstream)
	require.NotNil(t, meta.Parameters)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(meta.Schema.Parameters, &schema))
	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, false, schema["additionalProperties"])
}

func TestNewsTool_ScopesQueryAndFormatsDigest(t *testing.T) {
	t.Parallel()

	provider := &mockWebSearchProvider{
		name: "mock",
		results: []WebSearchResult{
			{Title: "JKH posts record profit", Content: "John Keells Holdings reported..."},
			{Title: "Dialog expands 5G", Content: "Dialog Axiata announced..."},
		},
	}
	cfg := DefaultNewsToolConfig()
	cfg.Provider = provider
	fn, _ := NewNewsTool(cfg, zap.NewNop())

	out, err := fn(context.Background(), json.RawMessage(`{"query":"JKH"}`))
	require.NoError(t, err)

	assert.Equal(t, "JKH Sri Lanka stock market", provider.lastQuery)
	assert.Equal(t, 3, provider.lastOpts.MaxResults)
	assert.Equal(t, "news", provider.lastOpts.Topic)
	assert.Equal(t, "basic", provider.lastOpts.SearchDepth)

	var resp newsResponse
	require.NoError(t, json.Unmarshal(out, &resp))
	assert.Len(t, resp.Results, 2)
	assert.Equal(t,
		"- JKH posts record profit: John Keells Holdings reported...\n- Dialog expands 5G: Dialog Axiata announced...",
		resp.Digest)
}

func TestNewsTool_NoResults(t *testing.T) {
	t.Parallel()

	cfg := DefaultNewsToolConfig()
	cfg.Provider = &mockWebSearchProvider{name: "mock"}
	fn, _ := NewNewsTool(cfg, zap.NewNop())

	out, err := fn(context.Background(), json.RawMessage(`{"query":"XYZ"}`))
	require.NoError(t, err)

	var resp newsResponse
	require.NoError(t, json.Unmarshal(out, &resp))
	assert.Empty(t, resp.Results)
	assert.Equal(t, NoNewsFound, resp.Digest)
}

func TestNewsTool_ProviderError(t *testing.T) {
	t.Parallel()

	cfg := DefaultNewsToolConfig()
	cfg.Provider = &mockWebSearchProvider{name: "mock", err: errors.New("boom")}
	fn, _ := NewNewsTool(cfg, zap.NewNop())

	_, err := fn(context.Background(), json.RawMessage(`{"query":"JKH"}`))
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrToolUpstreamFailure))
}

func TestNewsTool_NoProvider(t *testing.T) {
	t.Parallel()

	fn, _ := NewNewsTool(DefaultNewsToolConfig(), zap.NewNop())
	_, err := fn(context.Background(), json.RawMessage(`{"query":"JKH"}`))
	assert.True(t, types.IsErrorCode(err, types.ErrToolUpstreamFailure))
}

func TestFormatDigest(t *testing.T) {
	t.Parallel()

	assert.Equal(t, NoNewsFound, FormatDigest(nil))
	assert.Equal(t, "- a: b", FormatDigest([]WebSearchResult{{Title: "a", Content: "b"}}))
}
