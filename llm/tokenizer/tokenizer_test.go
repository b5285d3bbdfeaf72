package tokenizer

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenTokenizer struct{}

func (brokenTokenizer) CountTokens(string) (int, error)       { return 0, errors.New("no encoding") }
func (brokenTokenizer) Truncate(string, int) (string, error) { return "", errors.New("no encoding") }
func (brokenTokenizer) Name() string                          { return "broken" }

func TestEstimator_CountTokens(t *testing.T) {
	e := NewEstimatorTokenizer()

	n, err := e.CountTokens("")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, _ = e.CountTokens("JKH")
	assert.Equal(t, 1, n, "short text rounds up to one token")

	n, _ = e.CountTokens(strings.Repeat("a", 400))
	assert.Equal(t, 100, n)

	// 30 Sinhala runes weigh as 20 tokens.
	n, _ = e.CountTokens(strings.Repeat("ශ", 30))
	assert.Equal(t, 20, n)
}

func TestEstimator_Truncate(t *testing.T) {
	e := NewEstimatorTokenizer()

	short := "JKH closed at LKR 190.50"
	out, err := e.Truncate(short, 100)
	require.NoError(t, err)
	assert.Equal(t, short, out)

	long := strings.Repeat("price data for JKH ", 50)
	out, err = e.Truncate(long, 10)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(out, Ellipsis))
	assert.LessOrEqual(t, len(out), 40+len(Ellipsis))
	assert.False(t, strings.HasSuffix(strings.TrimSuffix(out, Ellipsis), " "))
}

func TestFallback(t *testing.T) {
	tk := WithFallback(brokenTokenizer{}, NewEstimatorTokenizer())

	n, err := tk.CountTokens(strings.Repeat("b", 40))
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, "broken|estimator", tk.Name())
}

func TestClamp(t *testing.T) {
	e := NewEstimatorTokenizer()
	text := strings.Repeat("word ", 100)

	assert.Equal(t, text, Clamp(e, text, 0))
	assert.Equal(t, text, Clamp(nil, text, 5))
	assert.Equal(t, text, Clamp(brokenTokenizer{}, text, 5))

	clamped := Clamp(e, text, 5)
	assert.Less(t, len(clamped), len(text))
}

func TestNewTiktokenTokenizer_Encoding(t *testing.T) {
	assert.Equal(t, "tiktoken[cl100k_base]", NewTiktokenTokenizer("llama-3.3-70b-versatile").Name())
	assert.Equal(t, "tiktoken[o200k_base]", NewTiktokenTokenizer("gpt-4o-mini").Name())
	assert.Equal(t, "tiktoken[cl100k_base]", NewTiktokenTokenizer("unknown").Name())
}
