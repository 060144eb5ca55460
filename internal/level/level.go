// ============================================================================
// bounce 關卡
// ============================================================================
//
// Package: internal/level
// 文件: level.go
// 功能: 單一關卡的形狀、擊中紀錄與狀態機
//
// 狀態機（每次 Enter 重新建構）:
//
//   Entry ──(EntryReason, 建構時即觸發)──▶ Start
//   Start ──(玩家 Fired)──▶ InProgress
//   InProgress:
//     1. 玩家 Placed                     ──▶ InProgress（重新進入，擊中的形狀重新出現）
//     2. 離開畫面且仍有形狀               ──▶ InProgress
//     3. 離開畫面且全部擊中               ──▶ Complete
//     4. 全部擊中持續 ClearedDelay        ──▶ Complete
//   Complete ──(EntryReason, 不會觸發)──▶ Entry；等待 Manager 載入下一關
//
// 每 tick 由 Manager 呼叫 Update()：Reason() 之後 Act()
//
// ============================================================================

package level

import (
	"github.com/rs/zerolog"

	"github.com/ChuLiYu/bounce/internal/audio"
	"github.com/ChuLiYu/bounce/internal/coroutine"
	"github.com/ChuLiYu/bounce/internal/event"
	"github.com/ChuLiYu/bounce/internal/fsm"
	"github.com/ChuLiYu/bounce/pkg/types"
)

// 狀態定義
const (
	StateEntry      fsm.StateID = "entry"
	StateStart      fsm.StateID = "start"
	StateInProgress fsm.StateID = "in_progress"
	StateComplete   fsm.StateID = "complete"
)

// 轉換定義
const (
	TransitionEntry               fsm.Transition = "entry"
	TransitionPlayerStatusChanged fsm.Transition = "player_status_changed"
	TransitionBallInPlay          fsm.Transition = "ball_in_play"
	TransitionBallOutOfPlay       fsm.Transition = "ball_out_of_play"
	TransitionAllConsumed         fsm.Transition = "all_consumable_shapes_consumed"
	TransitionExit                fsm.Transition = "exit"
)

// Level holds the shapes and state machine of one level.
type Level struct {
	id   int
	name string

	consumables []*Shape
	others      []*Shape
	consumed    []*Shape

	d       *coroutine.Dispatcher
	signals *event.Signals
	machine *fsm.FSM

	consumableAudio *audio.Collection
	otherAudio      *audio.Collection

	jobs      []*coroutine.Job
	completed bool
	active    bool
	log       zerolog.Logger
}

// New 建立關卡；形狀依種類分組
func New(id int, name string, shapes []*Shape, d *coroutine.Dispatcher, signals *event.Signals, log zerolog.Logger) *Level {
	l := &Level{
		id:      id,
		name:    name,
		d:       d,
		signals: signals,
		log:     log.With().Int("level", id).Logger(),
	}
	for _, s := range shapes {
		if s.Kind == Consumable {
			l.consumables = append(l.consumables, s)
		} else {
			l.others = append(l.others, s)
		}
	}
	l.machine = fsm.New(fsm.WithName("level"), fsm.WithLogger(l.log))
	l.consumableAudio = audio.NewCollection(nil, 0, nil)
	l.otherAudio = audio.NewCollection(nil, 0, nil)
	return l
}

// ============================================================================
// 生命週期
// ============================================================================

// Enter activates the level: audio collections are rebuilt, the consumed
// list cleared, the state machine constructed and the shape listeners set.
func (l *Level) Enter(manager Completer, consumableClips, otherClips []types.Clip) {
	l.active = true
	l.consumableAudio = audio.NewCollection(consumableClips, len(l.consumables), nil)
	l.otherAudio = audio.NewCollection(otherClips, len(l.others), nil)
	l.ClearConsumedShapes()
	l.construct(manager)
	for _, s := range l.consumables {
		s.SetListener(l.onConsumableHit)
	}
	for _, s := range l.others {
		s.SetListener(l.onOtherHit)
	}
	l.log.Info().Str("name", l.name).Msg("level entered")
}

// Exit deactivates the level, leaves the current state and kills the
// level's jobs.
func (l *Level) Exit() {
	l.active = false
	l.machine.Disable()
	for _, j := range l.jobs {
		j.Kill()
	}
	for _, s := range l.Shapes() {
		s.SetListener(nil)
		s.Disable()
	}
}

// Update runs one tick of the state machine.
func (l *Level) Update() {
	if !l.active {
		return
	}
	l.machine.Update()
}

// SetTransition applies t to the state machine.
func (l *Level) SetTransition(t fsm.Transition) {
	l.machine.PerformTransition(t)
}

func (l *Level) construct(manager Completer) {
	l.machine.ClearStates()
	hub := l.signals.PlayerStatus

	show := NewShowShapesAction(l.d, l.Shapes(), ShowShapesDelay)
	reshow := NewShowConsumedShapesAction(l.d, l, ShowConsumedShapesDelay)
	cleared := NewShapesClearedReason(l.d, l, l, ClearedDelay, StateComplete, l.log)
	l.jobs = []*coroutine.Job{show.Job(), reshow.Job(), cleared.Job()}

	l.machine.AddState(fsm.NewState(StateEntry,
		[]fsm.Action{show},
		[]fsm.Reason{NewEntryReason(TransitionEntry, l, true, StateStart, l.log)},
	))

	l.machine.AddState(fsm.NewState(StateStart,
		[]fsm.Action{IdleAction{}},
		[]fsm.Reason{NewStatusChangeReason(l, hub, types.StatusFired, StateInProgress, l.log)},
	))

	l.machine.AddState(fsm.NewState(StateInProgress,
		[]fsm.Action{reshow},
		[]fsm.Reason{
			NewStatusChangeReason(l, hub, types.StatusPlaced, StateInProgress, l.log),
			NewOffScreenReason(TransitionBallOutOfPlay, l, l, hub, true, StateInProgress, l.log),
			NewOffScreenReason(TransitionAllConsumed, l, l, hub, false, StateComplete, l.log),
			cleared,
		},
	))

	l.machine.AddState(fsm.NewState(StateComplete,
		[]fsm.Action{NewLevelCompleteAction(manager, l.others)},
		[]fsm.Reason{NewEntryReason(TransitionExit, l, false, StateEntry, l.log)},
	))
}

// ============================================================================
// 擊中處理
// ============================================================================

// HitShape hits the shape with id. It reports false for unknown or
// non-interactable shapes.
func (l *Level) HitShape(id string) bool {
	for _, s := range l.Shapes() {
		if s.ID == id {
			return s.Hit()
		}
	}
	return false
}

func (l *Level) onConsumableHit(s *Shape) {
	l.playNext(l.consumableAudio, s)
	l.AddShape(s)
	if l.AllConsumed() {
		l.log.Debug().Msg("all shapes consumed")
		l.signals.ShapesConsumed.Publish(struct{}{})
	}
}

func (l *Level) onOtherHit(s *Shape) {
	l.playNext(l.otherAudio, s)
}

func (l *Level) playNext(c *audio.Collection, s *Shape) {
	clip, ok := c.Current()
	if !ok {
		return
	}
	l.signals.SFX.Publish(types.SFXRequest{Clip: clip})
	c.Next()
	l.log.Trace().Str("shape", s.ID).Str("clip", clip.Name).Msg("shape hit")
}

// ============================================================================
// ConsumerListener
// ============================================================================

// ConsumedShapes returns a copy of the shapes hit since the last clear.
func (l *Level) ConsumedShapes() []*Shape {
	out := make([]*Shape, len(l.consumed))
	copy(out, l.consumed)
	return out
}

// AddShape records s once.
func (l *Level) AddShape(s *Shape) {
	for _, c := range l.consumed {
		if c == s {
			return
		}
	}
	l.consumed = append(l.consumed, s)
}

// AllConsumed reports whether every consumable shape was hit.
func (l *Level) AllConsumed() bool {
	return len(l.consumed) == len(l.consumables)
}

// ClearConsumedShapes empties the consumed list and rewinds both audio
// collections.
func (l *Level) ClearConsumedShapes() {
	l.consumed = nil
	l.consumableAudio.Reset()
	l.otherAudio.Reset()
}

// ============================================================================
// 查詢方法
// ============================================================================

func (l *Level) ID() int { return l.id }

func (l *Level) Name() string { return l.name }

func (l *Level) Completed() bool { return l.completed }

func (l *Level) SetCompleted(v bool) { l.completed = v }

func (l *Level) Active() bool { return l.active }

// SetActive 選單開關時切換；不改變狀態機
func (l *Level) SetActive(v bool) { l.active = v }

func (l *Level) State() fsm.StateID { return l.machine.CurrentStateID() }

// Machine 狀態機（供觀察轉換事件）
func (l *Level) Machine() *fsm.FSM { return l.machine }

// Shapes returns consumables first, then non-consumables.
func (l *Level) Shapes() []*Shape {
	out := make([]*Shape, 0, len(l.consumables)+len(l.others))
	out = append(out, l.consumables...)
	return append(out, l.others...)
}

// Remaining 尚未擊中的可消耗形狀數
func (l *Level) Remaining() int { return len(l.consumables) - len(l.consumed) }
