package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstChoice(t *testing.T) {
	_, err := FirstChoice(nil)
	assert.Error(t, err)

	_, err = FirstChoice(&ChatResponse{})
	assert.ErrorContains(t, err, "empty choices")

	choice, err := FirstChoice(&ChatResponse{Choices: []ChatChoice{
		{Index: 0, Message: Message{Role: RoleAssistant, Content: "ok"}},
		{Index: 1, Message: Message{Role: RoleAssistant, Content: "ignored"}},
	}})
	require.NoError(t, err)
	assert.Equal(t, "ok", choice.Message.Content)
}

func TestFindToolCall(t *testing.T) {
	msg := Message{
		Role: RoleAssistant,
		ToolCalls: []ToolCall{
			{ID: "1", Name: "get_cse_stock_price", Arguments: json.RawMessage(`{"ticker":"JKH"}`)},
			{ID: "2", Name: "route", Arguments: json.RawMessage(`{"next":"FINISH"}`)},
		},
	}

	tc, ok := FindToolCall(msg, "route")
	require.True(t, ok)
	assert.Equal(t, "2", tc.ID)

	_, ok = FindToolCall(msg, "missing")
	assert.False(t, ok)
}
