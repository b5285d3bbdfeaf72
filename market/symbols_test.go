package market

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/csescout/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMapCache() *mapCache { return &mapCache{data: map[string][]byte{}} }

func (m *mapCache) GetJSON(_ context.Context, key string, dest any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return errors.New("miss")
	}
	return json.Unmarshal(v, dest)
}

func (m *mapCache) SetJSON(_ context.Context, key string, value any, _ time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = b
	return nil
}

func TestAliasResolver_Resolve(t *testing.T) {
	r := NewAliasResolver(DefaultResolverConfig(), nil, zap.NewNop())

	tests := []struct {
		ref  string
		want string
	}{
		{"JKH", "JKH"},
		{"jkh", "JKH"},
		{"DIAL.N0000", "DIAL"},
		{"dial.n0000", "DIAL"},
		{"John Keells Holdings PLC", "JKH"},
		{"john keells", "JKH"},
		{"Dialog Axiata", "DIAL"},
		{"Dialog Axiata PLC shares", "DIAL"},
		{"Commercial Bank of Ceylon PLC", "COMB"},
		{"'HNB'", "HNB"},
		{"ABAN", "ABAN"},
		{"ABAN.N0000", "ABAN"},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, err := r.Resolve(context.Background(), tt.ref)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAliasResolver_Ambiguous(t *testing.T) {
	r := NewAliasResolver(DefaultResolverConfig(), nil, zap.NewNop())

	for _, ref := range []string{"XYZCorp", "keells", "bank", "", "  ", "xy"} {
		t.Run(ref, func(t *testing.T) {
			_, err := r.Resolve(context.Background(), ref)
			require.Error(t, err)
			assert.Equal(t, types.ErrAmbiguousSymbol, types.GetErrorCode(err))
		})
	}

	_, err := r.Resolve(context.Background(), "keells")
	assert.Contains(t, err.Error(), "JKH, KHL")
}

func TestAliasResolver_StrictMode(t *testing.T) {
	r := NewAliasResolver(ResolverConfig{Aliases: map[string]string{"Abans": "aban"}}, nil, zap.NewNop())

	_, err := r.Resolve(context.Background(), "ZZZZ")
	assert.True(t, types.IsErrorCode(err, types.ErrAmbiguousSymbol))

	got, err := r.Resolve(context.Background(), "abans plc")
	require.NoError(t, err)
	assert.Equal(t, "ABAN", got)
}

func TestAliasResolver_Cache(t *testing.T) {
	c := newMapCache()
	r := NewAliasResolver(DefaultResolverConfig(), c, zap.NewNop())

	got, err := r.Resolve(context.Background(), "Sampath Bank")
	require.NoError(t, err)
	assert.Equal(t, "SAMP", got)
	assert.Contains(t, c.data, "symbol:sampath bank")

	// 缓存命中优先
	c.data["symbol:sampath bank"] = []byte(`"SAMPX"`)
	got, err = r.Resolve(context.Background(), "Sampath Bank")
	require.NoError(t, err)
	assert.Equal(t, "SAMPX", got)

	// 失败结果不缓存
	_, _ = r.Resolve(context.Background(), "XYZCorp")
	assert.NotContains(t, c.data, "symbol:xyzcorp")
}
