package level

import (
	"time"

	"github.com/ChuLiYu/bounce/internal/coroutine"
	"github.com/ChuLiYu/bounce/internal/fsm"
)

// 形狀逐一出現的間隔
const (
	ShowShapesDelay         = 100 * time.Millisecond
	ShowConsumedShapesDelay = 150 * time.Millisecond
)

// IdleAction does nothing.
type IdleAction = fsm.NopAction

// ShowShapesAction resets every shape one after another. The job starts as
// soon as the action is built, since the entry state is current without
// being entered.
type ShowShapesAction struct {
	fsm.NopAction
	job *coroutine.Job
}

// NewShowShapesAction 建立並立即啟動顯示形狀的 Job
func NewShowShapesAction(d *coroutine.Dispatcher, shapes []*Shape, delay time.Duration) *ShowShapesAction {
	job := coroutine.MustMake(d, func(yield func(coroutine.Instruction) bool) {
		for _, s := range shapes {
			s.Reset()
			if !yield(coroutine.WaitForSeconds(delay)) {
				return
			}
		}
	}, coroutine.WithID("show_shapes")).Repeatable()
	job.Start()
	return &ShowShapesAction{job: job}
}

func (a *ShowShapesAction) Enter() { a.job.Start() }

func (a *ShowShapesAction) Job() *coroutine.Job { return a.job }

// ShowConsumedShapesAction brings back the shapes hit during the last shot
// and clears the consumed list.
type ShowConsumedShapesAction struct {
	fsm.NopAction
	job *coroutine.Job
}

// NewShowConsumedShapesAction 建立重新顯示已擊中形狀的 action
func NewShowConsumedShapesAction(d *coroutine.Dispatcher, consumer ConsumerListener, delay time.Duration) *ShowConsumedShapesAction {
	job := coroutine.MustMake(d, func(yield func(coroutine.Instruction) bool) {
		shapes := consumer.ConsumedShapes()
		consumer.ClearConsumedShapes()
		for _, s := range shapes {
			s.Reset()
			if !yield(coroutine.WaitForSeconds(delay)) {
				return
			}
		}
	}, coroutine.WithID("show_consumed_shapes")).Repeatable()
	return &ShowConsumedShapesAction{job: job}
}

func (a *ShowConsumedShapesAction) Enter() { a.job.Start() }

func (a *ShowConsumedShapesAction) Job() *coroutine.Job { return a.job }

// Completer is told when the current level is complete.
type Completer interface {
	OnLevelComplete()
}

// LevelCompleteAction disables the non-consumable shapes and reports the
// completion when the complete state is entered.
type LevelCompleteAction struct {
	fsm.NopAction
	manager Completer
	others  []*Shape
}

// NewLevelCompleteAction 建立關卡完成 action
func NewLevelCompleteAction(manager Completer, others []*Shape) *LevelCompleteAction {
	return &LevelCompleteAction{manager: manager, others: others}
}

func (a *LevelCompleteAction) Enter() {
	for _, s := range a.others {
		s.Disable()
	}
	if a.manager != nil {
		a.manager.OnLevelComplete()
	}
}
