// ============================================================================
// bounce 協程排程器 - Job
// ============================================================================
//
// Package: internal/coroutine
// 文件: job.go
// 功能: 可暫停、可終止、可重複、可帶子任務的協作式工作單元
//
// 生命週期:
//   idle ──Start()──▶ running ──(body 結束 + children 結束)──▶ complete
//                       │  ▲                                    │
//               Pause() │  │ Resume()              repeat 有效 ──┘──▶ 下一個 tick 重新開始
//                       ▼  │
//                      paused
//   Kill() 在任何狀態下立即結束（不重複、不計入執行次數）
//
// 每次 pump 的階段:
//   phaseStart    → 發出 Started，從 Routine 取得全新的迭代器
//   phaseBody     → 推進 body 直到遇到尚未就緒的指令
//   phaseChildren → 依序驅動子任務，每個子任務完全結束後才開始下一個
//   (完成)        → 計數、判斷重複、發出 Complete / FinishedRunning
//
// 事件:
//   Started, Paused, Resumed, Complete, ChildrenStarted, ChildrenComplete, FinishedRunning
//   FinishedRunning 是終止訊號，JobManager / JobQueue 以它判斷何時解除關聯。
//
// ============================================================================

package coroutine

import (
	"errors"
	"time"

	"github.com/ChuLiYu/bounce/internal/event"
)

// ============================================================================
// 錯誤定義
// ============================================================================

var (
	// 沒有提供 Routine
	ErrNilRoutine = errors.New("job routine is nil")
	// 沒有提供 Dispatcher
	ErrNilDispatcher = errors.New("job dispatcher is nil")
)

// ============================================================================
// 事件定義
// ============================================================================

// EventKind identifies a job notification.
type EventKind string

const (
	Started          EventKind = "started"
	Paused           EventKind = "paused"
	Resumed          EventKind = "resumed"
	Complete         EventKind = "complete"
	ChildrenStarted  EventKind = "children_started"
	ChildrenComplete EventKind = "children_complete"
	FinishedRunning  EventKind = "finished_running"
)

// JobEvent is the payload of every job notification.
type JobEvent struct {
	Kind     EventKind
	Job      *Job
	Children []*Job
}

type phase int

const (
	phaseStart phase = iota
	phaseBody
	phaseChildren
)

// ============================================================================
// 資料結構定義
// ============================================================================

// Job is a cooperatively scheduled unit of work. All methods except the
// *After variants must be called on the tick goroutine.
type Job struct {
	d       *Dispatcher
	id      string
	routine Routine

	children []*Job
	parent   *Job
	events   *event.Bus[EventKind, JobEvent]

	running bool
	paused  bool
	killed  bool

	repeating  bool
	limit      int
	repeatable bool
	times      int

	phase    phase
	stack    []*frame
	childIdx int
	// childIn marks that children[childIdx] has been entered.
	childIn bool

	stepping      bool
	killRequested bool
}

// Option 設定 Job
type Option func(*Job)

// WithID sets the job id.
func WithID(id string) Option {
	return func(j *Job) { j.id = id }
}

// Make builds an idle job around r.
func Make(d *Dispatcher, r Routine, opts ...Option) (*Job, error) {
	if d == nil {
		return nil, ErrNilDispatcher
	}
	if r == nil {
		return nil, ErrNilRoutine
	}
	j := &Job{
		d:       d,
		routine: r,
		events:  event.NewBus[EventKind, JobEvent](),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// MustMake is Make for static wiring; it panics on a nil routine or dispatcher.
func MustMake(d *Dispatcher, r Routine, opts ...Option) *Job {
	j, err := Make(d, r, opts...)
	if err != nil {
		panic(err)
	}
	return j
}

// Chain builds a job running first and then each of rest as a child.
func Chain(d *Dispatcher, first Routine, rest ...Routine) (*Job, error) {
	j, err := Make(d, first)
	if err != nil {
		return nil, err
	}
	for _, r := range rest {
		c, err := Make(d, r)
		if err != nil {
			return nil, err
		}
		j.AddChild(c)
	}
	return j, nil
}

// ============================================================================
// 生命週期控制
// ============================================================================

// Start registers the job with the dispatcher; the first step runs on the
// next tick. Starting a running job does nothing.
func (j *Job) Start() *Job {
	if j.running {
		return j
	}
	j.reset()
	j.running = true
	j.killed = false
	if j.parent == nil {
		j.d.register(j)
	}
	return j
}

// StartAfter starts the job once delay of real time has elapsed.
func (j *Job) StartAfter(delay time.Duration) *Job {
	j.d.After(delay, func() { j.Start() })
	return j
}

// Pause suspends stepping; the job stays running.
func (j *Job) Pause() *Job {
	j.paused = true
	j.emit(Paused)
	return j
}

// PauseAfter pauses the job once delay has elapsed.
func (j *Job) PauseAfter(delay time.Duration) *Job {
	j.d.After(delay, func() { j.Pause() })
	return j
}

// Resume continues a paused job.
func (j *Job) Resume() *Job {
	j.paused = false
	j.emit(Resumed)
	return j
}

// ResumeAfter resumes the job once delay has elapsed.
func (j *Job) ResumeAfter(delay time.Duration) *Job {
	j.d.After(delay, func() { j.Resume() })
	return j
}

// Kill stops the job immediately. The in-flight step is abandoned, the
// running child is killed too and the repeat policy is cleared. Complete and
// FinishedRunning are raised once. Killing an idle job only marks it killed.
func (j *Job) Kill() {
	if !j.running {
		j.killed = true
		j.paused = false
		return
	}
	if j.stepping {
		j.killRequested = true
		return
	}
	j.finishKilled()
}

// KillAfter kills the job once delay has elapsed.
func (j *Job) KillAfter(delay time.Duration) {
	j.d.After(delay, j.Kill)
}

// Repeat restarts the job after every natural completion until StopRepeat
// or Kill.
func (j *Job) Repeat() *Job {
	j.repeating = true
	j.limit = 0
	return j
}

// RepeatN runs the job n times in total, counted from this call.
func (j *Job) RepeatN(n int) *Job {
	if n <= 0 {
		return j.StopRepeat()
	}
	j.repeating = true
	j.limit = n
	j.times = 0
	return j
}

// StopRepeat clears the repeat policy; the current run finishes normally.
func (j *Job) StopRepeat() *Job {
	j.repeating = false
	j.limit = 0
	return j
}

// StopRepeatAfter clears the repeat policy once delay has elapsed.
func (j *Job) StopRepeatAfter(delay time.Duration) *Job {
	j.d.After(delay, func() { j.StopRepeat() })
	return j
}

// Repeatable marks the job as meant to be started again after it finishes.
// Every Start already runs a fresh copy of the routine; the flag only
// documents intent and does not affect manager bookkeeping.
func (j *Job) Repeatable() *Job {
	j.repeatable = true
	return j
}

// ============================================================================
// 子任務
// ============================================================================

// AddChild appends child; children run in order after the body finishes.
func (j *Job) AddChild(child *Job) *Job {
	if child == nil || child == j {
		return j
	}
	j.children = append(j.children, child)
	return j
}

// AddChildRoutine wraps r in a job and appends it.
func (j *Job) AddChildRoutine(r Routine) *Job {
	if c, err := Make(j.d, r); err == nil {
		j.children = append(j.children, c)
	}
	return j
}

// RemoveChild drops child if present.
func (j *Job) RemoveChild(child *Job) *Job {
	for i, c := range j.children {
		if c == child {
			j.children = append(j.children[:i:i], j.children[i+1:]...)
			break
		}
	}
	return j
}

// ============================================================================
// 複製
// ============================================================================

// Clone returns an idle job with the same id, routine, subscriptions and
// repeat policy, and fresh clones of every child.
func (j *Job) Clone() *Job {
	c := &Job{
		d:          j.d,
		id:         j.id,
		routine:    j.routine,
		events:     j.events.Clone(),
		repeating:  j.repeating,
		limit:      j.limit,
		repeatable: j.repeatable,
	}
	for _, child := range j.children {
		c.children = append(c.children, child.Clone())
	}
	return c
}

// CloneN returns n independent clones.
func (j *Job) CloneN(n int) []*Job {
	out := make([]*Job, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, j.Clone())
	}
	return out
}

// ============================================================================
// 事件訂閱
// ============================================================================

// On subscribes h to kind.
func (j *Job) On(kind EventKind, h func(JobEvent)) event.Token {
	return j.events.Subscribe(kind, h)
}

// Off removes a subscription made with On.
func (j *Job) Off(kind EventKind, tok event.Token) bool {
	return j.events.Unsubscribe(kind, tok)
}

func (j *Job) emit(kind EventKind) {
	if j.d.observer != nil {
		j.d.observer.ObserveJob(kind)
	}
	j.d.log.Trace().Str("job", j.id).Str("event", string(kind)).Msg("job event")
	j.events.Publish(kind, JobEvent{Kind: kind, Job: j, Children: j.Children()})
}

// ============================================================================
// 查詢方法
// ============================================================================

func (j *Job) ID() string { return j.id }

// SetID renames the job. Owners call it before registering the job.
func (j *Job) SetID(id string) { j.id = id }

func (j *Job) Running() bool { return j.running }

func (j *Job) Paused() bool { return j.paused }

// Killed reports whether the last run ended through Kill.
func (j *Job) Killed() bool { return j.killed }

func (j *Job) Repeating() bool { return j.repeating }

func (j *Job) IsRepeatable() bool { return j.repeatable }

// TimesExecuted counts natural completions since creation or the last RepeatN.
func (j *Job) TimesExecuted() int { return j.times }

func (j *Job) Dispatcher() *Dispatcher { return j.d }

// Children returns a copy of the child list.
func (j *Job) Children() []*Job {
	if len(j.children) == 0 {
		return nil
	}
	out := make([]*Job, len(j.children))
	copy(out, j.children)
	return out
}

// ============================================================================
// 執行
// ============================================================================

func (j *Job) reset() {
	closeFrames(j.stack)
	j.stack = nil
	j.phase = phaseStart
	j.childIdx = 0
	j.childIn = false
}

func (j *Job) halted() bool { return j.killRequested || !j.running }

// pump advances the job by one tick.
func (j *Job) pump() {
	if !j.running || j.paused {
		return
	}
	j.stepping = true
	done := j.advance()
	j.stepping = false

	if j.killRequested {
		j.killRequested = false
		if j.running {
			j.finishKilled()
		}
		return
	}
	if done && j.running {
		j.complete()
	}
}

func (j *Job) advance() bool {
	for {
		switch j.phase {
		case phaseStart:
			j.stack = []*frame{newFrame(j.routine)}
			j.phase = phaseBody
			j.emit(Started)
			if j.halted() || j.paused {
				return false
			}
		case phaseBody:
			if !runFrames(&j.stack, j.d.now, j.halted) {
				return false
			}
			j.stack = nil
			j.phase = phaseChildren
			j.childIdx = 0
			j.childIn = false
			if len(j.children) > 0 {
				j.emit(ChildrenStarted)
				if j.halted() {
					return false
				}
			}
		case phaseChildren:
			for j.childIdx < len(j.children) {
				c := j.children[j.childIdx]
				if !j.childIn {
					j.childIn = true
					c.parent = j
					if !c.running {
						c.Start()
					}
				}
				// 直接 Kill 的子工作視為結束，不重新啟動
				c.pump()
				if c.running {
					return false
				}
				c.parent = nil
				j.childIdx++
				j.childIn = false
				if j.halted() {
					return false
				}
			}
			if len(j.children) > 0 {
				j.emit(ChildrenComplete)
			}
			return true
		}
	}
}

// complete handles natural completion.
func (j *Job) complete() {
	j.running = false
	j.times++
	if j.repeating && j.limit > 0 && j.times >= j.limit {
		j.repeating = false
		j.limit = 0
	}
	j.reset()

	j.emit(Complete)
	if j.repeating && !j.killed {
		j.Start()
		return
	}
	j.emit(FinishedRunning)
}

func (j *Job) finishKilled() {
	j.running = false
	j.paused = false
	j.killed = true
	j.repeating = false
	j.limit = 0

	if j.phase == phaseChildren && j.childIdx < len(j.children) {
		if c := j.children[j.childIdx]; c.running && c.parent == j {
			c.Kill()
			c.parent = nil
		}
	}
	j.reset()

	j.emit(Complete)
	j.emit(FinishedRunning)
}
