// ============================================================================
// bounce 任務佇列 - 依序執行的 Job 管線
// ============================================================================
//
// Package: internal/jobqueue
// 文件: job_queue.go
// 功能: FIFO 佇列，一次只執行隊首的 Job，完成後才啟動下一個
//
// 處理流程:
//   Start() → 啟動隊首
//   隊首 Complete（repeating 中的 Job 略過）
//     → 移到 completed，發出 JobProcessed
//     → pending 非空：啟動新隊首
//     → pending 為空：cycle++，發出 QueueComplete
//         ├─ repeat 有效：以 completed 的 clone 依原順序重新入列並啟動
//         └─ 否則：非 continuous 模式時停止
//       無論如何清空 completed
//
// 被 Kill 的 Job 到達隊首時直接視為已處理，不會執行。
// KillAll 會讓本輪清空並且本輪不重複。
//
// Continuous 模式:
//   佇列閒置且為空時 Enqueue 的 Job 立即成為執行中的隊首。
//
// 並發安全:
//   與 Job 相同，只能在 tick goroutine 上使用；*After 方法經由 Dispatcher 延遲。
//
// ============================================================================

package jobqueue

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/ChuLiYu/bounce/internal/coroutine"
	"github.com/ChuLiYu/bounce/internal/event"
)

// ============================================================================
// 事件定義
// ============================================================================

// EventKind 佇列事件種類
type EventKind string

const (
	QueueStarted  EventKind = "queue_started"
	JobProcessed  EventKind = "job_processed"
	QueueComplete EventKind = "queue_complete"
)

// QueueEvent 佇列事件內容
type QueueEvent struct {
	Kind      EventKind
	Queue     *JobQueue
	Processed *coroutine.Job
	Pending   []*coroutine.Job
	Completed []*coroutine.Job
}

// ============================================================================
// 資料結構定義
// ============================================================================

// JobQueue runs its jobs one at a time in FIFO order.
type JobQueue struct {
	d         *coroutine.Dispatcher
	pending   []*coroutine.Job
	completed []*coroutine.Job
	tokens    map[*coroutine.Job]event.Token

	running    bool
	continuous bool
	repeating  bool
	limit      int
	times      int
	killingAll bool

	events *event.Bus[EventKind, QueueEvent]
	log    zerolog.Logger
}

// Option 設定 JobQueue
type Option func(*JobQueue)

// WithLogger 設定 logger
func WithLogger(l zerolog.Logger) Option {
	return func(q *JobQueue) { q.log = l }
}

// New 建立空佇列
func New(d *coroutine.Dispatcher, opts ...Option) *JobQueue {
	q := &JobQueue{
		d:      d,
		tokens: make(map[*coroutine.Job]event.Token),
		events: event.NewBus[EventKind, QueueEvent](),
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// ============================================================================
// 入列
// ============================================================================

// Enqueue appends jobs in order.
func (q *JobQueue) Enqueue(jobs ...*coroutine.Job) *JobQueue {
	for _, job := range jobs {
		if job == nil {
			continue
		}
		wasEmpty := len(q.pending) == 0
		q.tokens[job] = job.On(coroutine.Complete, q.onJobComplete)
		q.pending = append(q.pending, job)

		if q.continuous && wasEmpty {
			q.running = true
			q.advance()
		}
	}
	return q
}

// EnqueueRoutine wraps r in a job with id and enqueues it.
func (q *JobQueue) EnqueueRoutine(id string, r coroutine.Routine) (*coroutine.Job, error) {
	job, err := coroutine.Make(q.d, r, coroutine.WithID(id))
	if err != nil {
		return nil, err
	}
	q.Enqueue(job)
	return job, nil
}

// EnqueueQueue moves every pending job of other to the end of q.
func (q *JobQueue) EnqueueQueue(other *JobQueue) *JobQueue {
	if other == nil || other == q {
		return q
	}
	moved := other.pending
	for _, job := range moved {
		other.release(job)
	}
	other.pending = nil
	return q.Enqueue(moved...)
}

func (q *JobQueue) release(job *coroutine.Job) {
	if tok, ok := q.tokens[job]; ok {
		job.Off(coroutine.Complete, tok)
		delete(q.tokens, job)
	}
}

// ============================================================================
// 控制
// ============================================================================

// Start runs the head job. Starting a running queue does nothing.
func (q *JobQueue) Start() *JobQueue {
	if q.running {
		return q
	}
	q.running = true
	q.raise(QueueStarted, nil)
	if len(q.pending) > 0 {
		q.advance()
	}
	return q
}

// StartAfter starts the queue once delay has elapsed.
func (q *JobQueue) StartAfter(delay time.Duration) *JobQueue {
	q.d.After(delay, func() { q.Start() })
	return q
}

// Repeat replays the whole queue after every cycle.
func (q *JobQueue) Repeat() *JobQueue {
	q.repeating = true
	q.limit = 0
	return q
}

// RepeatN runs n cycles in total, counted from this call.
func (q *JobQueue) RepeatN(n int) *JobQueue {
	if n <= 0 {
		return q.StopRepeat()
	}
	q.repeating = true
	q.limit = n
	q.times = 0
	return q
}

// StopRepeat lets the current cycle be the last one.
func (q *JobQueue) StopRepeat() *JobQueue {
	q.repeating = false
	q.limit = 0
	return q
}

// StopRepeatAfter clears the repeat policy once delay has elapsed.
func (q *JobQueue) StopRepeatAfter(delay time.Duration) *JobQueue {
	q.d.After(delay, func() { q.StopRepeat() })
	return q
}

// Pause pauses the head job.
func (q *JobQueue) Pause() *JobQueue {
	if head := q.head(); head != nil {
		head.Pause()
	}
	return q
}

// PauseAfter pauses the head job once delay has elapsed.
func (q *JobQueue) PauseAfter(delay time.Duration) *JobQueue {
	q.d.After(delay, func() { q.Pause() })
	return q
}

// Resume resumes the head job.
func (q *JobQueue) Resume() *JobQueue {
	if head := q.head(); head != nil {
		head.Resume()
	}
	return q
}

// ResumeAfter resumes the head job once delay has elapsed.
func (q *JobQueue) ResumeAfter(delay time.Duration) *JobQueue {
	q.d.After(delay, func() { q.Resume() })
	return q
}

// ContinuousRunning keeps the queue running after a cycle so that later
// enqueues start immediately.
func (q *JobQueue) ContinuousRunning() *JobQueue {
	q.continuous = true
	return q
}

// StopContinuousRunning leaves continuous mode; an idle queue stops.
func (q *JobQueue) StopContinuousRunning() *JobQueue {
	q.continuous = false
	if len(q.pending) == 0 {
		q.running = false
	}
	return q
}

// KillCurrent kills the head job; the queue moves on to the next one.
func (q *JobQueue) KillCurrent() *JobQueue {
	if head := q.head(); head != nil {
		head.Kill()
	}
	return q
}

// KillCurrentAfter kills the head job once delay has elapsed.
func (q *JobQueue) KillCurrentAfter(delay time.Duration) *JobQueue {
	q.d.After(delay, func() { q.KillCurrent() })
	return q
}

// KillAll kills every pending job. The cycle drains without running the
// remaining jobs and is not repeated.
func (q *JobQueue) KillAll() *JobQueue {
	if len(q.pending) == 0 {
		return q
	}
	// completeCycle 消耗此旗標；head 在自身步驟中被 kill 時完成會延後
	q.killingAll = true

	jobs := make([]*coroutine.Job, len(q.pending))
	copy(jobs, q.pending)
	// tail first so that the head's completion sees the rest already killed
	for i := len(jobs) - 1; i >= 0; i-- {
		jobs[i].Kill()
	}
	return q
}

// KillAllAfter kills every pending job once delay has elapsed.
func (q *JobQueue) KillAllAfter(delay time.Duration) *JobQueue {
	q.d.After(delay, func() { q.KillAll() })
	return q
}

// ============================================================================
// 完成處理
// ============================================================================

func (q *JobQueue) onJobComplete(e coroutine.JobEvent) {
	if e.Job.Repeating() {
		return
	}
	if !q.remove(e.Job) {
		return
	}
	q.processed(e.Job)
	q.advance()
}

func (q *JobQueue) remove(job *coroutine.Job) bool {
	for i, j := range q.pending {
		if j == job {
			q.pending = append(q.pending[:i:i], q.pending[i+1:]...)
			q.release(job)
			return true
		}
	}
	return false
}

func (q *JobQueue) processed(job *coroutine.Job) {
	q.completed = append(q.completed, job)
	q.log.Debug().Str("job", job.ID()).Int("pending", len(q.pending)).Msg("job processed")
	q.raise(JobProcessed, job)
}

// advance starts the head, skipping killed jobs, and closes the cycle once
// pending is empty.
func (q *JobQueue) advance() {
	for {
		head := q.head()
		if head == nil {
			if len(q.completed) > 0 {
				q.completeCycle()
			}
			return
		}
		if head.Running() {
			return
		}
		if head.Killed() {
			q.remove(head)
			q.processed(head)
			continue
		}
		if q.running {
			head.Start()
		}
		return
	}
}

func (q *JobQueue) completeCycle() {
	q.times++
	q.raise(QueueComplete, nil)

	again := q.repeating && !q.killingAll
	q.killingAll = false
	if q.repeating && q.limit > 0 && q.times >= q.limit {
		q.repeating = false
		q.limit = 0
		again = false
	}

	done := q.completed
	q.completed = nil

	if again {
		for _, job := range done {
			q.Enqueue(job.Clone())
		}
		q.advance()
		return
	}
	if !q.continuous {
		q.running = false
	}
}

// ============================================================================
// 複製
// ============================================================================

// Clone returns an idle queue with fresh clones of the pending jobs, the same
// subscriptions and the same repeat policy.
func (q *JobQueue) Clone() *JobQueue {
	c := &JobQueue{
		d:         q.d,
		tokens:    make(map[*coroutine.Job]event.Token),
		events:    q.events.Clone(),
		repeating: q.repeating,
		limit:     q.limit,
		log:       q.log,
	}
	for _, job := range q.pending {
		jc := job.Clone()
		jc.Off(coroutine.Complete, q.tokens[job])
		c.Enqueue(jc)
	}
	c.completed = append(c.completed, q.completed...)
	return c
}

// CloneN returns n independent clones.
func (q *JobQueue) CloneN(n int) []*JobQueue {
	out := make([]*JobQueue, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, q.Clone())
	}
	return out
}

// ============================================================================
// 事件訂閱
// ============================================================================

// On 訂閱佇列事件
func (q *JobQueue) On(kind EventKind, h func(QueueEvent)) event.Token {
	return q.events.Subscribe(kind, h)
}

// Off 取消訂閱
func (q *JobQueue) Off(kind EventKind, tok event.Token) bool {
	return q.events.Unsubscribe(kind, tok)
}

func (q *JobQueue) raise(kind EventKind, processed *coroutine.Job) {
	q.events.Publish(kind, QueueEvent{
		Kind:      kind,
		Queue:     q,
		Processed: processed,
		Pending:   q.Pending(),
		Completed: q.Completed(),
	})
}

// ============================================================================
// 查詢方法
// ============================================================================

func (q *JobQueue) head() *coroutine.Job {
	if len(q.pending) == 0 {
		return nil
	}
	return q.pending[0]
}

// Current returns the head job or nil.
func (q *JobQueue) Current() *coroutine.Job { return q.head() }

func (q *JobQueue) Running() bool { return q.running }

func (q *JobQueue) Repeating() bool { return q.repeating }

func (q *JobQueue) IsContinuous() bool { return q.continuous }

// TimesExecuted counts completed cycles.
func (q *JobQueue) TimesExecuted() int { return q.times }

func (q *JobQueue) Len() int { return len(q.pending) }

// Pending returns a copy of the pending jobs, head first.
func (q *JobQueue) Pending() []*coroutine.Job {
	out := make([]*coroutine.Job, len(q.pending))
	copy(out, q.pending)
	return out
}

// Completed returns a copy of the jobs processed in the current cycle.
func (q *JobQueue) Completed() []*coroutine.Job {
	out := make([]*coroutine.Job, len(q.completed))
	copy(out, q.completed)
	return out
}
