package fsm

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	stateA StateID = "a"
	stateB StateID = "b"
	stateC StateID = "c"

	toB   Transition = "to_b"
	toC   Transition = "to_c"
	entry Transition = "entry"
	bogus Transition = "bogus"
)

// spyAction counts its lifecycle calls and appends its name to a shared log.
type spyAction struct {
	name                 string
	log                  *[]string
	enters, exits, perfs int
}

func (a *spyAction) Enter()         { a.enters++; *a.log = append(*a.log, a.name+".enter") }
func (a *spyAction) Exit()          { a.exits++; *a.log = append(*a.log, a.name+".exit") }
func (a *spyAction) PerformAction() { a.perfs++; *a.log = append(*a.log, a.name) }

// spyReason fires when fire is set and counts evaluations.
type spyReason struct {
	BaseReason
	fire          bool
	evaluated     int
	enters, exits int
}

func newSpyReason(t Transition, target StateID, to Transitioner, fire bool) *spyReason {
	return &spyReason{BaseReason: NewBaseReason(string(t), t, target, to, zerolog.Nop()), fire: fire}
}

func (r *spyReason) Enter() { r.enters++ }
func (r *spyReason) Exit()  { r.exits++ }

func (r *spyReason) ChangeState() bool {
	r.evaluated++
	if !r.fire {
		return false
	}
	r.PerformTransition(true)
	return true
}

func TestAddStateFirstIsDefaultWithoutEnter(t *testing.T) {
	var log []string
	act := &spyAction{name: "a", log: &log}
	m := New()
	m.AddState(NewState(stateA, []Action{act}, nil))
	m.AddState(NewState(stateB, nil, nil))
	m.AddState(NewState(stateA, nil, nil))

	assert.Equal(t, stateA, m.CurrentStateID())
	assert.Equal(t, NoState, m.PreviousStateID())
	assert.Equal(t, 2, m.Len(), "duplicate id ignored")
	assert.Zero(t, act.enters)

	m.Reset()
	assert.Equal(t, 1, act.enters)
}

func TestResetAndTransitionScenario(t *testing.T) {
	m := New()
	a := NewState(stateA, []Action{NopAction{}}, []Reason{newSpyReason(entry, stateB, m, true)})
	b := NewState(stateB, []Action{NopAction{}}, []Reason{newSpyReason(entry, stateA, m, false)})
	m.AddState(a)
	m.AddState(b)

	m.Reset()
	assert.Equal(t, stateA, m.CurrentStateID())

	m.PerformTransition(entry)
	assert.Equal(t, stateB, m.CurrentStateID())
	assert.Equal(t, stateA, m.PreviousStateID())
	assert.Same(t, a, m.Previous())
	assert.Same(t, b, m.Current())
}

func TestUnknownTransitionIsNoOp(t *testing.T) {
	var log []string
	actA := &spyAction{name: "a", log: &log}
	actB := &spyAction{name: "b", log: &log}
	m := New()
	m.AddState(NewState(stateA, []Action{actA}, []Reason{newSpyReason(toB, stateB, m, false)}))
	m.AddState(NewState(stateB, []Action{actB}, nil))
	m.Reset()
	log = nil

	for _, tr := range []Transition{NoTransition, bogus, toC} {
		m.PerformTransition(tr)
		assert.Equal(t, stateA, m.CurrentStateID(), "transition %q", tr)
	}
	assert.Empty(t, log, "neither Exit nor Enter invoked")
	assert.Equal(t, 0, actA.exits)
	assert.Equal(t, 0, actB.enters)
}

func TestTransitionToUnregisteredStateIsNoOp(t *testing.T) {
	m := New()
	m.AddState(NewState(stateA, nil, []Reason{newSpyReason(toC, stateC, m, false)}))
	m.PerformTransition(toC)
	assert.Equal(t, stateA, m.CurrentStateID())
}

func TestTransitionOrderExitThenEnter(t *testing.T) {
	var log []string
	m := New()
	m.AddState(NewState(stateA, []Action{&spyAction{name: "a", log: &log}}, []Reason{newSpyReason(toB, stateB, m, false)}))
	m.AddState(NewState(stateB, []Action{&spyAction{name: "b", log: &log}}, nil))
	m.Reset()
	log = nil

	var seen []TransitionEvent
	m.OnTransition(func(e TransitionEvent) {
		seen = append(seen, e)
		log = append(log, "event")
	})
	m.PerformTransition(toB)

	assert.Equal(t, []string{"a.exit", "b.enter", "event"}, log)
	require.Len(t, seen, 1)
	assert.Equal(t, TransitionEvent{Transition: toB, From: stateA, To: stateB}, seen[0])
}

func TestFirstMatchingReasonWins(t *testing.T) {
	m := New()
	first := newSpyReason(toB, stateB, m, true)
	second := newSpyReason(toC, stateC, m, true)
	m.AddState(NewState(stateA, nil, []Reason{first, second}))
	m.AddState(NewState(stateB, nil, nil))
	m.AddState(NewState(stateC, nil, nil))
	m.Reset()

	m.Update()
	assert.Equal(t, stateB, m.CurrentStateID())
	assert.Equal(t, 1, first.evaluated)
	assert.Zero(t, second.evaluated, "second reason not evaluated")
}

func TestReasonLifecycleFollowsState(t *testing.T) {
	m := New()
	r := newSpyReason(toB, stateB, m, false)
	back := newSpyReason(toC, stateA, m, false)
	m.AddState(NewState(stateA, nil, []Reason{r}))
	m.AddState(NewState(stateB, nil, []Reason{back}))
	m.Reset()
	assert.Equal(t, 1, r.enters)

	m.PerformTransition(toB)
	assert.Equal(t, 1, r.exits)
	assert.Equal(t, 1, back.enters)

	m.Disable()
	assert.Equal(t, 1, back.exits)
}

func TestActParallelAndRoundRobin(t *testing.T) {
	tests := []struct {
		name string
		opts []StateOption
		want []string
	}{
		{name: "parallel", opts: []StateOption{Parallel()}, want: []string{"x", "y", "z", "x", "y", "z"}},
		{name: "round-robin", want: []string{"x", "y"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var log []string
			acts := []Action{&spyAction{name: "x", log: &log}, &spyAction{name: "y", log: &log}, &spyAction{name: "z", log: &log}}
			m := New()
			m.AddState(NewState(stateA, acts, nil, tt.opts...))
			m.Reset()
			log = nil

			m.Update()
			m.Update()
			assert.Equal(t, tt.want, log)
		})
	}
}

func TestEnterResetsRoundRobinCursor(t *testing.T) {
	var log []string
	m := New()
	acts := []Action{&spyAction{name: "x", log: &log}, &spyAction{name: "y", log: &log}}
	m.AddState(NewState(stateA, acts, nil))
	m.Reset()
	m.Update()
	m.Reset()
	log = nil

	m.Update()
	assert.Equal(t, []string{"x"}, log)
}

func TestSelfTransitionReenters(t *testing.T) {
	var log []string
	m := New()
	m.AddState(NewState(stateA, []Action{&spyAction{name: "a", log: &log}}, []Reason{newSpyReason(toB, stateA, m, false)}))
	m.Reset()
	log = nil

	m.PerformTransition(toB)
	assert.Equal(t, []string{"a.exit", "a.enter"}, log)
	assert.Equal(t, stateA, m.PreviousStateID())
}

func TestTransitionsTable(t *testing.T) {
	var ts Transitions
	assert.ErrorIs(t, ts.AddTransition(NoTransition, stateA), ErrNoTransition)
	assert.ErrorIs(t, ts.AddTransition(toB, NoState), ErrNoTarget)
	assert.Equal(t, NoState, ts.OutputState(NoTransition))
	assert.Equal(t, NoState, ts.OutputState(toB))

	require.NoError(t, ts.AddTransition(toB, stateB))
	assert.NoError(t, ts.AddTransition(toB, stateB), "same edge twice")
	assert.ErrorIs(t, ts.AddTransition(toB, stateC), ErrDuplicateTransition)
	assert.Equal(t, stateB, ts.OutputState(toB), "first mapping kept")

	ts.DeleteTransition(toB)
	assert.Equal(t, NoState, ts.OutputState(toB))

	require.NoError(t, ts.AddTransition(toC, stateC))
	ts.ClearTransitions()
	assert.Equal(t, NoState, ts.OutputState(toC))
}

func TestMisconfiguredReasonsAreReported(t *testing.T) {
	var buf bytes.Buffer
	m := New(WithName("misconfigured"), WithLogger(zerolog.New(&buf)))

	ok := NewState(stateA, nil, []Reason{newSpyReason(toB, stateB, m, false)})
	assert.NoError(t, ok.Err())

	bad := NewState(stateB, nil, []Reason{
		newSpyReason(NoTransition, stateA, m, false),
		newSpyReason(toC, NoState, m, false),
		newSpyReason(toB, stateA, m, false),
		newSpyReason(toB, stateC, m, false),
	})
	err := bad.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoTransition)
	assert.ErrorIs(t, err, ErrNoTarget)
	assert.ErrorIs(t, err, ErrDuplicateTransition)
	assert.Equal(t, stateA, bad.OutputState(toB))

	m.AddState(ok)
	assert.Empty(t, buf.String())
	m.AddState(bad)
	assert.Contains(t, buf.String(), "state has misconfigured transitions")
	assert.Contains(t, buf.String(), `"state":"b"`)
}

func TestDeleteAndClearStates(t *testing.T) {
	m := New()
	m.AddState(NewState(stateA, nil, []Reason{newSpyReason(toB, stateB, m, false)}))
	m.AddState(NewState(stateB, nil, nil))
	m.DeleteState(NoState)
	m.DeleteState(stateB)
	assert.Equal(t, 1, m.Len())

	m.PerformTransition(toB)
	assert.Equal(t, stateA, m.CurrentStateID())

	m.ClearStates()
	assert.Zero(t, m.Len())
	assert.Equal(t, NoState, m.CurrentStateID())
	m.Update()
	m.Reset()
}

func TestFuncReason(t *testing.T) {
	m := New()
	ready := false
	m.AddState(NewState(stateA, nil, []Reason{NewFuncReason("ready", toB, stateB, m, func() bool { return ready })}))
	m.AddState(NewState(stateB, nil, nil))
	m.Reset()

	m.Update()
	assert.Equal(t, stateA, m.CurrentStateID())
	ready = true
	m.Update()
	assert.Equal(t, stateB, m.CurrentStateID())
}
