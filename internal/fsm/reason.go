package fsm

import "github.com/rs/zerolog"

// Transitioner applies a transition on behalf of a reason. A level, or the
// FSM itself, implements it.
type Transitioner interface {
	SetTransition(t Transition)
}

// Reason owns one (transition, target) pair and decides each tick whether to
// fire it. A reason that fires calls its Transitioner before returning true.
type Reason interface {
	Transition() Transition
	Target() StateID
	Enter()
	Exit()
	ChangeState() bool
}

// Action is per-tick state behaviour.
type Action interface {
	Enter()
	Exit()
	PerformAction()
}

// NopAction does nothing; idle states use it.
type NopAction struct{}

func (NopAction) Enter()         {}
func (NopAction) Exit()          {}
func (NopAction) PerformAction() {}

// BaseReason carries the common reason fields. Concrete reasons embed it and
// implement ChangeState.
type BaseReason struct {
	name       string
	transition Transition
	target     StateID
	to         Transitioner
	log        zerolog.Logger
}

// NewBaseReason 建立 BaseReason；name 只用於紀錄
func NewBaseReason(name string, t Transition, target StateID, to Transitioner, log zerolog.Logger) BaseReason {
	return BaseReason{name: name, transition: t, target: target, to: to, log: log}
}

func (b *BaseReason) Transition() Transition { return b.transition }
func (b *BaseReason) Target() StateID        { return b.target }
func (b *BaseReason) Name() string           { return b.name }
func (b *BaseReason) Enter()                 {}
func (b *BaseReason) Exit()                  {}

// PerformTransition hands the transition to the Transitioner, logging the
// switch at debug level when log is set.
func (b *BaseReason) PerformTransition(log bool) {
	if log {
		b.log.Debug().
			Str("reason", b.name).
			Str("transition", string(b.transition)).
			Msgf("%s: switching state to: %s", b.name, b.target)
	}
	if b.to != nil {
		b.to.SetTransition(b.transition)
	}
}

// FuncReason fires whenever pred returns true.
type FuncReason struct {
	BaseReason
	pred func() bool
}

// NewFuncReason 以判斷函式建立 Reason
func NewFuncReason(name string, t Transition, target StateID, to Transitioner, pred func() bool) *FuncReason {
	return &FuncReason{BaseReason: NewBaseReason(name, t, target, to, zerolog.Nop()), pred: pred}
}

func (r *FuncReason) ChangeState() bool {
	if r.pred == nil || !r.pred() {
		return false
	}
	r.PerformTransition(true)
	return true
}
