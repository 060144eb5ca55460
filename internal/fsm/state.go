package fsm

import (
	"errors"
	"fmt"
)

// ============================================================================
// 錯誤定義
// ============================================================================

var (
	ErrNoTransition        = errors.New("transition id is NoTransition")
	ErrNoTarget            = errors.New("transition target is NoState")
	ErrDuplicateTransition = errors.New("transition already mapped to another state")
)

// StateID names a state. The zero value is NoState.
type StateID string

// Transition names an edge out of a state. The zero value is NoTransition.
type Transition string

const (
	NoState      StateID    = ""
	NoTransition Transition = ""
)

// Transitions is an embeddable transition table: transition → target state.
type Transitions struct {
	table map[Transition]StateID
}

// AddTransition maps t to target. NoTransition, NoState and transitions
// already mapped to a different state are rejected and leave the table
// unchanged. Mapping the same edge twice is a no-op.
func (ts *Transitions) AddTransition(t Transition, target StateID) error {
	if t == NoTransition {
		return ErrNoTransition
	}
	if target == NoState {
		return fmt.Errorf("%w: %q", ErrNoTarget, t)
	}
	if ts.table == nil {
		ts.table = make(map[Transition]StateID)
	}
	if existing, exists := ts.table[t]; exists {
		if existing != target {
			return fmt.Errorf("%w: %q → %q, kept %q", ErrDuplicateTransition, t, target, existing)
		}
		return nil
	}
	ts.table[t] = target
	return nil
}

// DeleteTransition removes t if present.
func (ts *Transitions) DeleteTransition(t Transition) {
	delete(ts.table, t)
}

// ClearTransitions empties the table.
func (ts *Transitions) ClearTransitions() {
	ts.table = nil
}

// OutputState returns the target of t, or NoState when t is not mapped.
func (ts *Transitions) OutputState(t Transition) StateID {
	if t == NoTransition {
		return NoState
	}
	return ts.table[t]
}

// State is one node of the machine.
type State interface {
	ID() StateID
	Enter()
	Exit()
	// Reason polls the state's reasons; the first one that fires wins.
	Reason()
	// Act performs the state's per-tick actions.
	Act()
	OutputState(t Transition) StateID
}

// BasicState owns ordered actions and reasons and registers every reason's
// transition in its table.
type BasicState struct {
	Transitions

	id       StateID
	actions  []Action
	reasons  []Reason
	parallel bool
	cursor   int
	err      error
}

// StateOption 設定 BasicState
type StateOption func(*BasicState)

// Parallel makes Act perform every action each tick instead of one action
// per tick in round-robin order.
func Parallel() StateOption {
	return func(s *BasicState) { s.parallel = true }
}

// NewState builds a state from its actions and reasons. Reasons whose
// transition cannot be registered are kept but can never fire; Err reports
// them and FSM.AddState logs them.
func NewState(id StateID, actions []Action, reasons []Reason, opts ...StateOption) *BasicState {
	s := &BasicState{id: id, actions: actions, reasons: reasons}
	for i, r := range reasons {
		if err := s.AddTransition(r.Transition(), r.Target()); err != nil {
			s.err = errors.Join(s.err, fmt.Errorf("state %q reason %d: %w", id, i, err))
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *BasicState) ID() StateID { return s.id }

// Err returns the transition setup errors collected by NewState.
func (s *BasicState) Err() error { return s.err }

func (s *BasicState) Enter() {
	s.cursor = 0
	for _, a := range s.actions {
		a.Enter()
	}
	for _, r := range s.reasons {
		r.Enter()
	}
}

func (s *BasicState) Exit() {
	for _, a := range s.actions {
		a.Exit()
	}
	for _, r := range s.reasons {
		r.Exit()
	}
}

func (s *BasicState) Reason() {
	for _, r := range s.reasons {
		if r.ChangeState() {
			return
		}
	}
}

func (s *BasicState) Act() {
	if len(s.actions) == 0 {
		return
	}
	if s.parallel {
		for _, a := range s.actions {
			a.PerformAction()
		}
		return
	}
	a := s.actions[s.cursor]
	s.cursor = (s.cursor + 1) % len(s.actions)
	a.PerformAction()
}

// Actions returns the state's actions.
func (s *BasicState) Actions() []Action { return s.actions }

// Reasons returns the state's reasons in evaluation order.
func (s *BasicState) Reasons() []Reason { return s.reasons }
