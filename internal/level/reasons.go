package level

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/ChuLiYu/bounce/internal/coroutine"
	"github.com/ChuLiYu/bounce/internal/event"
	"github.com/ChuLiYu/bounce/internal/fsm"
	"github.com/ChuLiYu/bounce/pkg/types"
)

// ClearedDelay is how long every consumable must stay consumed before the
// level completes.
const ClearedDelay = 2 * time.Second

// ConsumerListener tracks which consumable shapes were hit.
type ConsumerListener interface {
	ConsumedShapes() []*Shape
	AddShape(s *Shape)
	AllConsumed() bool
	ClearConsumedShapes()
}

// ============================================================================
// EntryReason
// ============================================================================

// EntryReason fires on its first evaluation when built armed. Entering the
// state disarms it, so a re-entered state never fires again.
type EntryReason struct {
	fsm.BaseReason
	armed bool
}

// NewEntryReason 建立 EntryReason；armed 為 true 時第一次判斷即轉換
func NewEntryReason(t fsm.Transition, to fsm.Transitioner, armed bool, target fsm.StateID, log zerolog.Logger) *EntryReason {
	return &EntryReason{BaseReason: fsm.NewBaseReason("EntryReason", t, target, to, log), armed: armed}
}

func (r *EntryReason) Enter() { r.armed = false }

func (r *EntryReason) ChangeState() bool {
	if !r.armed {
		return false
	}
	r.PerformTransition(true)
	return true
}

// ============================================================================
// StatusChangeReason
// ============================================================================

// StatusChangeReason fires when the player reports the desired status while
// the owning state is active.
type StatusChangeReason struct {
	fsm.BaseReason
	desired  types.PlayerStatus
	listener *event.StatusListener
}

// NewStatusChangeReason 建立玩家狀態轉換條件
func NewStatusChangeReason(to fsm.Transitioner, hub *event.Hub[types.PlayerStatus], desired types.PlayerStatus, target fsm.StateID, log zerolog.Logger) *StatusChangeReason {
	return &StatusChangeReason{
		BaseReason: fsm.NewBaseReason("StatusChangeReason("+desired.String()+")", TransitionPlayerStatusChanged, target, to, log),
		desired:    desired,
		listener:   event.NewStatusListener(hub),
	}
}

func (r *StatusChangeReason) Enter() { r.listener.StartListening() }
func (r *StatusChangeReason) Exit()  { r.listener.StopListening() }

func (r *StatusChangeReason) ChangeState() bool {
	if !r.listener.MatchesStatus(r.desired) {
		return false
	}
	r.PerformTransition(true)
	return true
}

// ============================================================================
// OffScreenReason
// ============================================================================

// OffScreenReason fires when the ball leaves the screen and the consumed
// state matches: with shapes remaining, or with every shape consumed.
type OffScreenReason struct {
	fsm.BaseReason
	consumed  ConsumerListener
	remaining bool
	listener  *event.StatusListener
}

// NewOffScreenReason 建立離開畫面的轉換條件
func NewOffScreenReason(t fsm.Transition, to fsm.Transitioner, consumed ConsumerListener, hub *event.Hub[types.PlayerStatus], remaining bool, target fsm.StateID, log zerolog.Logger) *OffScreenReason {
	name := "OffScreenReason(all consumed)"
	if remaining {
		name = "OffScreenReason(remaining)"
	}
	return &OffScreenReason{
		BaseReason: fsm.NewBaseReason(name, t, target, to, log),
		consumed:   consumed,
		remaining:  remaining,
		listener:   event.NewStatusListener(hub),
	}
}

func (r *OffScreenReason) Enter() { r.listener.StartListening() }
func (r *OffScreenReason) Exit()  { r.listener.StopListening() }

func (r *OffScreenReason) ChangeState() bool {
	offScreen := r.listener.MatchesStatus(types.StatusOffScreen)
	if !offScreen || r.remaining == r.consumed.AllConsumed() {
		return false
	}
	r.PerformTransition(true)
	return true
}

// ============================================================================
// ShapesClearedReason
// ============================================================================

// ShapesClearedReason fires once every consumable has stayed consumed for
// ClearedDelay. A timer job is started the first tick all shapes are
// consumed; leaving the state kills it.
type ShapesClearedReason struct {
	fsm.BaseReason
	consumed ConsumerListener
	job      *coroutine.Job
	ready    bool
}

// NewShapesClearedReason 建立全部清除後延遲轉換的條件
func NewShapesClearedReason(d *coroutine.Dispatcher, to fsm.Transitioner, consumed ConsumerListener, delay time.Duration, target fsm.StateID, log zerolog.Logger) *ShapesClearedReason {
	r := &ShapesClearedReason{
		BaseReason: fsm.NewBaseReason("ShapesClearedReason", TransitionAllConsumed, target, to, log),
		consumed:   consumed,
	}
	r.job = coroutine.MustMake(d, func(yield func(coroutine.Instruction) bool) {
		if !yield(coroutine.WaitForSeconds(delay)) {
			return
		}
		r.ready = true
	}, coroutine.WithID("shapes_cleared")).Repeatable()
	return r
}

func (r *ShapesClearedReason) Enter() { r.ready = false }
func (r *ShapesClearedReason) Exit()  { r.job.Kill() }

func (r *ShapesClearedReason) ChangeState() bool {
	if r.consumed.AllConsumed() && !r.job.Running() {
		r.job.Start()
	}
	if !r.ready {
		return false
	}
	r.PerformTransition(true)
	return true
}

// Job 計時用的 Job（測試用）
func (r *ShapesClearedReason) Job() *coroutine.Job { return r.job }
