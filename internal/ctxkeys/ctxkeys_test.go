package ctxkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeys(t *testing.T) {
	ctx := context.Background()

	_, ok := RunID(ctx)
	assert.False(t, ok)

	ctx = WithRunID(ctx, "run-1")
	ctx = WithTraceID(ctx, "trace-1")
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithWorker(ctx, "analyst")

	v, ok := RunID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "run-1", v)

	v, _ = TraceID(ctx)
	assert.Equal(t, "trace-1", v)
	v, _ = RequestID(ctx)
	assert.Equal(t, "req-1", v)
	v, _ = Worker(ctx)
	assert.Equal(t, "analyst", v)

	_, ok = Subject(ctx)
	assert.False(t, ok)
	v, _ = Subject(WithSubject(ctx, "svc-dashboard"))
	assert.Equal(t, "svc-dashboard", v)

	_, ok = Worker(WithWorker(context.Background(), ""))
	assert.False(t, ok, "empty values are treated as absent")
}
