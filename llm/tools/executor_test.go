package tools

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/BaSui01/csescout/llm"
	"github.com/BaSui01/csescout/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRegistry(t *testing.T) *DefaultRegistry {
	t.Helper()
	r := NewDefaultRegistry(zap.NewNop())
	for _, name := range []string{"price", "news"} {
		fn, meta := echoTool(name)
		require.NoError(t, r.Register(fn, meta))
	}
	_, slowMeta := echoTool("slow")
	require.NoError(t, r.Register(func(_ context.Context, args json.RawMessage) (json.RawMessage, error) {
		time.Sleep(30 * time.Millisecond)
		return args, nil
	}, slowMeta))
	return r
}

func TestScopedExecutor_PreservesCallOrder(t *testing.T) {
	t.Parallel()

	exec := NewScopedExecutor(newTestRegistry(t), nil, 0, zap.NewNop())
	calls := []llm.ToolCall{
		{ID: "1", Name: "slow", Arguments: json.RawMessage(`{"ticker":"JKH"}`)},
		{ID: "2", Name: "price", Arguments: json.RawMessage(`{"ticker":"DIAL"}`)},
		{ID: "3", Name: "news", Arguments: json.RawMessage(`{"ticker":"COMB"}`)},
	}

	results := exec.ExecuteAll(context.Background(), calls)
	require.Len(t, results, 3)
	for i, res := range results {
		assert.Equal(t, calls[i].ID, res.ToolCallID)
		assert.False(t, res.IsError())
		assert.JSONEq(t, string(calls[i].Arguments), string(res.Result))
	}
}

func TestScopedExecutor_Whitelist(t *testing.T) {
	t.Parallel()

	exec := NewScopedExecutor(newTestRegistry(t), []string{"price"}, 2, zap.NewNop())
	assert.True(t, exec.Permits("price"))
	assert.False(t, exec.Permits("news"))

	results := exec.ExecuteAll(context.Background(), []llm.ToolCall{
		{ID: "a", Name: "news", Arguments: json.RawMessage(`{"ticker":"JKH"}`)},
		{ID: "b", Name: "ghost", Arguments: json.RawMessage(`{}`)},
		{ID: "c", Name: "price", Arguments: json.RawMessage(`{"ticker":"JKH"}`)},
	})

	assert.Equal(t, types.ErrToolNotPermitted, results[0].ErrorCode)
	assert.Equal(t, types.ErrToolUnknown, results[1].ErrorCode)
	assert.Empty(t, results[2].ErrorCode)
}

func TestScopedExecutor_InvalidArgumentsBecomeResultErrors(t *testing.T) {
	t.Parallel()

	exec := NewScopedExecutor(newTestRegistry(t), nil, 0, zap.NewNop())
	res := exec.ExecuteOne(context.Background(), llm.ToolCall{ID: "x", Name: "price", Arguments: json.RawMessage(`{"ticker":1}`)})

	assert.True(t, res.IsError())
	assert.Equal(t, types.ErrToolInvalidArguments, res.ErrorCode)
	assert.Contains(t, res.ToMessage().Content, "Error:")
}
