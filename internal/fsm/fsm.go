// ============================================================================
// bounce 有限狀態機
// ============================================================================
//
// Package: internal/fsm
// 文件: fsm.go
// 功能: 宣告式狀態機，State 持有 Action（每 tick 執行）與 Reason（每 tick 判斷是否轉換）
//
// 轉換規則:
//   - 第一個加入的 State 同時是 current 與 default
//   - PerformTransition(NoTransition) 或 current 表中找不到的 transition：不做任何事
//   - 否則：current.Exit() → current = target → target.Enter()，中間不會處理任何 tick
//   - Reset()：回到 default 並重新 Enter
//
// 每 tick 驅動由擁有者負責：Update() = current.Reason() 之後 current.Act()
//
// ============================================================================

package fsm

import (
	"github.com/rs/zerolog"

	"github.com/ChuLiYu/bounce/internal/event"
)

// TransitionEvent is published after every applied transition.
type TransitionEvent struct {
	Transition Transition
	From       StateID
	To         StateID
}

// FSM holds the states and the current state. It is driven from the tick
// goroutine only.
type FSM struct {
	name     string
	states   []State
	current  State
	previous State
	def      State

	hub *event.Hub[TransitionEvent]
	log zerolog.Logger
}

// Option 設定 FSM
type Option func(*FSM)

// WithName 設定紀錄用名稱
func WithName(name string) Option {
	return func(m *FSM) { m.name = name }
}

// WithLogger 設定 logger
func WithLogger(l zerolog.Logger) Option {
	return func(m *FSM) { m.log = l }
}

// New 建立空的狀態機
func New(opts ...Option) *FSM {
	m := &FSM{hub: event.NewHub[TransitionEvent](), log: zerolog.Nop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddState adds s. The first state becomes current and default without
// being entered; states whose id is already present are ignored.
func (m *FSM) AddState(s State) {
	if s == nil {
		return
	}
	if v, ok := s.(interface{ Err() error }); ok && v.Err() != nil {
		m.log.Error().Err(v.Err()).Str("fsm", m.name).Str("state", string(s.ID())).Msg("state has misconfigured transitions")
	}
	if len(m.states) == 0 {
		m.states = append(m.states, s)
		m.current = s
		m.def = s
		return
	}
	if m.find(s.ID()) != nil {
		return
	}
	m.states = append(m.states, s)
}

// DeleteState removes the state with id. Current and default are kept.
func (m *FSM) DeleteState(id StateID) {
	if id == NoState {
		return
	}
	for i, s := range m.states {
		if s.ID() == id {
			m.states = append(m.states[:i:i], m.states[i+1:]...)
			return
		}
	}
}

// ClearStates forgets every state, including current and default.
func (m *FSM) ClearStates() {
	m.states = nil
	m.current = nil
	m.previous = nil
	m.def = nil
}

// SetTransition lets the FSM serve as the Transitioner of its own reasons.
func (m *FSM) SetTransition(t Transition) { m.PerformTransition(t) }

// PerformTransition applies t from the current state.
func (m *FSM) PerformTransition(t Transition) {
	if t == NoTransition || m.current == nil {
		return
	}
	id := m.current.OutputState(t)
	if id == NoState {
		return
	}
	next := m.find(id)
	if next == nil {
		m.log.Warn().Str("fsm", m.name).Str("state", string(id)).Msg("transition target not registered")
		return
	}
	m.previous = m.current
	m.previous.Exit()
	m.current = next
	m.current.Enter()

	m.log.Debug().
		Str("fsm", m.name).
		Str("transition", string(t)).
		Str("from", string(m.previous.ID())).
		Str("to", string(id)).
		Msg("state switched")
	m.hub.Publish(TransitionEvent{Transition: t, From: m.previous.ID(), To: id})
}

// Reset re-enters the default state.
func (m *FSM) Reset() {
	m.current = m.def
	if m.current != nil {
		m.current.Enter()
	}
}

// Disable exits the current state.
func (m *FSM) Disable() {
	if m.current != nil {
		m.current.Exit()
	}
}

// Update runs one tick: Reason then Act on whatever state is current.
func (m *FSM) Update() {
	if m.current == nil {
		return
	}
	m.current.Reason()
	if m.current != nil {
		m.current.Act()
	}
}

// OnTransition subscribes to applied transitions.
func (m *FSM) OnTransition(h func(TransitionEvent)) event.Token {
	return m.hub.Subscribe(h)
}

// OffTransition removes a subscription made with OnTransition.
func (m *FSM) OffTransition(tok event.Token) bool {
	return m.hub.Unsubscribe(tok)
}

func (m *FSM) find(id StateID) State {
	for _, s := range m.states {
		if s.ID() == id {
			return s
		}
	}
	return nil
}

func (m *FSM) Current() State  { return m.current }
func (m *FSM) Previous() State { return m.previous }

// CurrentStateID returns NoState when the machine is empty.
func (m *FSM) CurrentStateID() StateID {
	if m.current == nil {
		return NoState
	}
	return m.current.ID()
}

// PreviousStateID returns NoState before the first transition.
func (m *FSM) PreviousStateID() StateID {
	if m.previous == nil {
		return NoState
	}
	return m.previous.ID()
}

// Name 狀態機名稱，用於日誌與指標標籤
func (m *FSM) Name() string { return m.name }

// Len 已註冊的狀態數
func (m *FSM) Len() int { return len(m.states) }

// SwitchLogger returns a transition handler that logs every switch at info
// level.
func SwitchLogger(log zerolog.Logger, name string) func(TransitionEvent) {
	return func(e TransitionEvent) {
		log.Info().
			Str("fsm", name).
			Str("transition", string(e.Transition)).
			Msgf("%s: switching state to: %s", e.From, e.To)
	}
}
