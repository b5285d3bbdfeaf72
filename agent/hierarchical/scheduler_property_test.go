package hierarchical

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/BaSui01/csescout/agent"
	"pgregory.net/rapid"
)

// 步数上限：任意上限与任意委派次数下，终止时步数不超过上限
func TestProperty_Scheduler_StepCeiling(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ceiling := rapid.IntRange(1, 8).Draw(rt, "ceiling")
		delegations := rapid.IntRange(0, 12).Draw(rt, "delegations")

		decisions := make([]RouteDecision, 0, delegations+1)
		for i := 0; i < delegations; i++ {
			decisions = append(decisions, Delegate(Assignment{Worker: "analyst", Task: fmt.Sprintf("step %d", i)}))
		}
		decisions = append(decisions, FinishWith("done"))

		router := &scriptedRouter{decisions: decisions}
		cfg := DefaultSchedulerConfig()
		cfg.MaxSteps = ceiling
		s, err := NewScheduler(cfg, router, []WorkerRunner{&fakeWorker{name: "analyst"}}, newGuard(), nil)
		if err != nil {
			rt.Fatal(err)
		}

		out, err := s.RunQuery(context.Background(), "q")
		if delegations <= ceiling {
			if err != nil {
				rt.Fatalf("expected success with %d delegations under ceiling %d: %v", delegations, ceiling, err)
			}
			if out.Steps != delegations {
				rt.Fatalf("steps = %d, want %d", out.Steps, delegations)
			}
			return
		}

		re, ok := AsRunError(err)
		if !ok || re.Outcome != OutcomeRecursionLimit {
			rt.Fatalf("expected recursion limit, got %v", err)
		}
		if re.Steps != ceiling || CountKind(re.Trace, agent.TraceWorkerStarted) != ceiling {
			rt.Fatalf("steps = %d, worker turns = %d, ceiling = %d",
				re.Steps, CountKind(re.Trace, agent.TraceWorkerStarted), ceiling)
		}
	})
}

// 扇出合并按派发顺序：完成快慢不影响摘要顺序
func TestProperty_Scheduler_DispatchOrderJoin(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(2, 4).Draw(rt, "workers")
		workers := make([]WorkerRunner, n)
		assignments := make([]Assignment, n)
		for i := 0; i < n; i++ {
			name := fmt.Sprintf("w%d", i)
			delay := time.Duration(rapid.IntRange(0, 15).Draw(rt, "delay_"+name)) * time.Millisecond
			workers[i] = &fakeWorker{name: name, delay: delay}
			assignments[i] = Assignment{Worker: name, Task: "task " + name}
		}
		// 最后派发的 Worker 最先完成
		workers[n-1].(*fakeWorker).delay = 0
		workers[0].(*fakeWorker).delay = 20 * time.Millisecond

		router := &scriptedRouter{decisions: []RouteDecision{Delegate(assignments...), FinishWith("ok")}}
		s, err := NewScheduler(DefaultSchedulerConfig(), router, workers, newGuard(), nil)
		if err != nil {
			rt.Fatal(err)
		}
		if _, err := s.RunQuery(context.Background(), "q"); err != nil {
			rt.Fatal(err)
		}

		joined := router.seen[1][1:]
		if len(joined) != n {
			rt.Fatalf("joined %d summaries, want %d", len(joined), n)
		}
		for i, msg := range joined {
			if msg.Name != assignments[i].Worker {
				rt.Fatalf("summary %d is from %s, want %s", i, msg.Name, assignments[i].Worker)
			}
		}
	})
}
