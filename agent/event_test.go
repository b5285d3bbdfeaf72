package agent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/csescout/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu     sync.Mutex
	events []*TraceEvent
}

func (c *collector) handle(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e.(*TraceEvent))
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestEventBus_OrderedDelivery(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()

	c := &collector{}
	bus.Subscribe(EventTrace, c.handle)

	for i := 1; i <= 100; i++ {
		bus.Publish(&TraceEvent{Seq: int64(i), Time: time.Now()})
	}

	testutil.AssertEventuallyTrue(t, func() bool { return c.len() == 100 }, 2*time.Second)
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, ev := range c.events {
		assert.Equal(t, int64(i+1), ev.Seq)
	}
}

func TestEventBus_WildcardAndUnsubscribe(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()

	typed, all := &collector{}, &collector{}
	id := bus.Subscribe(EventTrace, typed.handle)
	bus.Subscribe(EventAll, all.handle)

	bus.Publish(&TraceEvent{Seq: 1})
	testutil.AssertEventuallyTrue(t, func() bool { return typed.len() == 1 && all.len() == 1 }, time.Second)

	bus.Unsubscribe(id)
	bus.Publish(&TraceEvent{Seq: 2})
	testutil.AssertEventuallyTrue(t, func() bool { return all.len() == 2 }, time.Second)
	assert.Equal(t, 1, typed.len())
}

func TestEventBus_HandlerPanicIsContained(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()

	c := &collector{}
	bus.Subscribe(EventTrace, func(Event) { panic("boom") })
	bus.Subscribe(EventTrace, c.handle)

	bus.Publish(&TraceEvent{Seq: 1})
	bus.Publish(&TraceEvent{Seq: 2})
	testutil.AssertEventuallyTrue(t, func() bool { return c.len() == 2 }, time.Second)
}

func TestEventBus_PublishAfterStop(t *testing.T) {
	bus := NewEventBus()
	bus.Stop()
	bus.Stop()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			bus.Publish(&TraceEvent{Seq: int64(i)})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked after Stop")
	}
}

func TestEmit_WithoutEmitterIsNoop(t *testing.T) {
	require.NotPanics(t, func() {
		Emit(context.Background(), TraceEvent{Kind: TraceToolCall})
	})

	var got []TraceKind
	ctx := WithEmitter(context.Background(), func(ev TraceEvent) { got = append(got, ev.Kind) })
	Emit(ctx, TraceEvent{Kind: TraceToolCall})
	Emit(ctx, TraceEvent{Kind: TraceToolResult})
	assert.Equal(t, []TraceKind{TraceToolCall, TraceToolResult}, got)
}

func TestSummary_Render(t *testing.T) {
	s := &Summary{Text: "  JKH closed at LKR 198.50.  "}
	assert.Equal(t, "JKH closed at LKR 198.50.", s.Render())

	s.addAmbiguous("XYZCorp")
	s.addAmbiguous("XYZCorp")
	s.addLimitation("news search unavailable (TOOL_UPSTREAM_FAILURE)")
	s.addLimitation("news search unavailable (TOOL_UPSTREAM_FAILURE)")

	assert.Equal(t,
		"JKH closed at LKR 198.50.\n\nUnresolved symbols: \"XYZCorp\".\n\nLimitations:\n- news search unavailable (TOOL_UPSTREAM_FAILURE)",
		s.Render())
}
