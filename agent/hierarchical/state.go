package hierarchical

import (
	"errors"
	"fmt"

	"github.com/BaSui01/csescout/types"
)

// Phase 调度器状态
type Phase string

const (
	PhaseInit           Phase = "INIT"
	PhaseSupervisorTurn Phase = "SUPERVISOR_TURN"
	PhaseWorkerTurn     Phase = "WORKER_TURN"
	PhaseGuardrail      Phase = "GUARDRAIL"
	PhaseDone           Phase = "DONE"
	PhaseError          Phase = "ERROR"
)

// validTransitions 定义合法的状态转换
var validTransitions = map[Phase][]Phase{
	PhaseInit:           {PhaseSupervisorTurn, PhaseError},
	PhaseSupervisorTurn: {PhaseWorkerTurn, PhaseGuardrail, PhaseError},
	PhaseWorkerTurn:     {PhaseSupervisorTurn, PhaseError},
	PhaseGuardrail:      {PhaseDone, PhaseError},
	PhaseDone:           {},
	PhaseError:          {},
}

// ErrInvalidTransition is returned when the scheduler attempts a transition
// the state machine does not allow.
var ErrInvalidTransition = errors.New("invalid phase transition")

// CanTransition 检查状态转换是否合法
func CanTransition(from, to Phase) bool {
	for _, p := range validTransitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

// Terminal reports whether p ends a run.
func (p Phase) Terminal() bool { return p == PhaseDone || p == PhaseError }

// SharedState is the per-run record threaded through every step. Only the
// scheduler goroutine mutates it; readers receive copies.
type SharedState struct {
	phase    Phase
	messages []types.Message
	targets  []Assignment
	steps    int
}

func newSharedState() *SharedState {
	return &SharedState{phase: PhaseInit}
}

// Phase returns the current state-machine phase.
func (s *SharedState) Phase() Phase { return s.phase }

// Messages returns a copy of the conversation so far.
func (s *SharedState) Messages() []types.Message {
	return append([]types.Message(nil), s.messages...)
}

// Len returns the number of messages.
func (s *SharedState) Len() int { return len(s.messages) }

// Steps returns the number of supervisor→worker round trips taken.
func (s *SharedState) Steps() int { return s.steps }

// Targets returns the active routing target(s).
func (s *SharedState) Targets() []Assignment {
	return append([]Assignment(nil), s.targets...)
}

// Terminal reports whether the run has ended.
func (s *SharedState) Terminal() bool { return s.phase.Terminal() }

func (s *SharedState) transition(to Phase) error {
	if !CanTransition(s.phase, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.phase, to)
	}
	s.phase = to
	return nil
}

func (s *SharedState) append(msgs ...types.Message) {
	s.messages = append(s.messages, msgs...)
}

// beginWorkerTurn consumes one step and records the dispatched targets.
func (s *SharedState) beginWorkerTurn(targets []Assignment) error {
	if err := s.transition(PhaseWorkerTurn); err != nil {
		return err
	}
	s.steps++
	s.targets = append([]Assignment(nil), targets...)
	return nil
}
