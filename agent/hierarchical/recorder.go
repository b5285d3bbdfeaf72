package hierarchical

import (
	"sync"
	"time"

	"github.com/BaSui01/csescout/agent"
	"github.com/google/uuid"
)

// recorder assigns identity and order to a run's trace events, keeps them
// for the result and publishes them on the event bus. Workers emit from
// their own goroutines, so emit is serialised.
type recorder struct {
	runID   string
	bus     agent.EventBus
	handler func(agent.TraceEvent)

	mu     sync.Mutex
	seq    int64
	events []agent.TraceEvent
}

func newRecorder(runID string, bus agent.EventBus, handler func(agent.TraceEvent)) *recorder {
	return &recorder{runID: runID, bus: bus, handler: handler}
}

func (r *recorder) emit(ev agent.TraceEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	ev.ID = uuid.NewString()
	ev.RunID = r.runID
	ev.Seq = r.seq
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	r.events = append(r.events, ev)

	if r.handler != nil {
		r.deliver(ev)
	}
	if r.bus != nil {
		published := ev
		r.bus.Publish(&published)
	}
}

// deliver shields the run from a panicking trace handler.
func (r *recorder) deliver(ev agent.TraceEvent) {
	defer func() { _ = recover() }()
	r.handler(ev)
}

// snapshot returns a copy of the events recorded so far.
func (r *recorder) snapshot() []agent.TraceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]agent.TraceEvent(nil), r.events...)
}

// CountKind counts events of the given kind.
func CountKind(events []agent.TraceEvent, kind agent.TraceKind) int {
	n := 0
	for _, ev := range events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}
