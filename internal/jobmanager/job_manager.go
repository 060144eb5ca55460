// ============================================================================
// bounce 任務管理器 - 以 id 索引的 Job 集合
// ============================================================================
//
// Package: internal/jobmanager
// 文件: job_manager.go
// 功能: 持有一組彼此獨立執行的 Job，提供批次生命週期操作與成員事件
//
// 設計理念:
//   1. jobs map - id → Job，單一真實來源
//   2. order []string - 插入順序，批次操作依此順序套用，結果穩定
//   3. 每個 Job 加入時訂閱 FinishedRunning，非 repeating 的 Job 結束後自動移除
//
// 成員規則:
//   - AddJob: id 為空時自動產生；id 已存在時不覆寫（no-op）
//   - RemoveJob: 只解除關聯並取消訂閱，不會 Kill
//   - repeating 的 Job 永遠不會自動移除，必須明確 Kill 或 RemoveJob
//
// 批次操作:
//   StartAll / PauseAll / ResumeAll / KillAll 對所有 Job 套用後，
//   只發出一次對應的 All* 事件。
//
// 並發安全:
//   Job 本身只能在 tick goroutine 上操作；mu 保護的是集合本身，
//   讓 Stats / Len 可以從狀態回報的 goroutine 讀取。
//   呼叫 Job 方法前一律先釋放鎖，因為 Job 事件會同步回呼到 Manager。
//
// ============================================================================

package jobmanager

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ChuLiYu/bounce/internal/coroutine"
	"github.com/ChuLiYu/bounce/internal/event"
)

// ============================================================================
// 錯誤定義
// ============================================================================

var (
	// 任務 ID 重複錯誤
	ErrDuplicateJob = errors.New("job already exists")
)

// AutoIDPrefix 自動產生 id 的前綴
const AutoIDPrefix = "auto_generated_id: "

// ============================================================================
// 事件定義
// ============================================================================

// EventKind 管理器事件種類
type EventKind string

const (
	JobAdded   EventKind = "job_added"
	JobRemoved EventKind = "job_removed"
	AllStarted EventKind = "all_started"
	AllPaused  EventKind = "all_paused"
	AllResumed EventKind = "all_resumed"
	AllKilled  EventKind = "all_killed"
	AllCleared EventKind = "all_cleared"
)

// ManagerEvent 事件內容：目前持有、執行中、暫停中的 Job，以及被新增或移除的 Job
type ManagerEvent struct {
	Kind    EventKind
	Owned   []*coroutine.Job
	Running []*coroutine.Job
	Paused  []*coroutine.Job
	Edited  *coroutine.Job
}

// ============================================================================
// 資料結構定義
// ============================================================================

// JobManager 以 id 索引的 Job 集合
type JobManager struct {
	mu     sync.RWMutex
	d      *coroutine.Dispatcher
	jobs   map[string]*coroutine.Job // 所有持有的 Job
	order  []string                  // 插入順序
	tokens map[string]event.Token    // FinishedRunning 訂閱

	events *event.Bus[EventKind, ManagerEvent]
	log    zerolog.Logger
}

// Option 設定 JobManager
type Option func(*JobManager)

// WithLogger 設定 logger
func WithLogger(l zerolog.Logger) Option {
	return func(jm *JobManager) { jm.log = l }
}

// NewJobManager 建立新的任務管理器
//
// 參數說明：
//   - d: 所有 Job 共用的排程器，AddRoutine 以它建立 Job
//
// 使用範例：
//
//	jm := NewJobManager(d)
//	jm.AddJob(coroutine.MustMake(d, blink, coroutine.WithID("blink")))
//	jm.StartAll()
func NewJobManager(d *coroutine.Dispatcher, opts ...Option) *JobManager {
	jm := &JobManager{
		d:      d,
		jobs:   make(map[string]*coroutine.Job),
		order:  make([]string, 0),
		tokens: make(map[string]event.Token),
		events: event.NewBus[EventKind, ManagerEvent](),
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(jm)
	}
	return jm
}

// ============================================================================
// 成員管理
// ============================================================================

// AddJob 加入一或多個 Job
//
// 行為：
//   - id 為空時指派 "auto_generated_id: <uuid>"
//   - id 已存在時略過，不覆寫
//   - 每個成功加入的 Job 發出一次 JobAdded
func (jm *JobManager) AddJob(jobs ...*coroutine.Job) {
	for _, job := range jobs {
		if job == nil {
			continue
		}
		if job.ID() == "" {
			job.SetID(AutoIDPrefix + uuid.NewString())
		}
		id := job.ID()

		jm.mu.Lock()
		if _, exists := jm.jobs[id]; exists {
			jm.mu.Unlock()
			jm.log.Debug().Str("job", id).Msg("job already owned, skipping")
			continue
		}
		jm.jobs[id] = job
		jm.order = append(jm.order, id)
		jm.mu.Unlock()

		tok := job.On(coroutine.FinishedRunning, jm.onFinished)
		jm.mu.Lock()
		jm.tokens[id] = tok
		jm.mu.Unlock()

		jm.raise(JobAdded, job)
	}
}

// AddRoutine 以 r 建立 Job 並加入
//
// 錯誤處理：
//   - ErrDuplicateJob: id 已存在
//   - coroutine.ErrNilRoutine: r 為 nil
func (jm *JobManager) AddRoutine(id string, r coroutine.Routine) (*coroutine.Job, error) {
	if id != "" && jm.HasJob(id) {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateJob, id)
	}
	job, err := coroutine.Make(jm.d, r, coroutine.WithID(id))
	if err != nil {
		return nil, err
	}
	jm.AddJob(job)
	return job, nil
}

// RemoveJob 解除關聯（不 Kill）；不存在時 no-op
func (jm *JobManager) RemoveJob(id string) {
	jm.mu.Lock()
	job, exists := jm.jobs[id]
	if !exists {
		jm.mu.Unlock()
		return
	}
	delete(jm.jobs, id)
	for i, oid := range jm.order {
		if oid == id {
			jm.order = append(jm.order[:i:i], jm.order[i+1:]...)
			break
		}
	}
	tok := jm.tokens[id]
	delete(jm.tokens, id)
	jm.mu.Unlock()

	job.Off(coroutine.FinishedRunning, tok)
	jm.raise(JobRemoved, job)
}

// ClearJobs 解除所有 Job 的關聯（不 Kill），發出 AllCleared
func (jm *JobManager) ClearJobs() {
	jm.mu.Lock()
	jobs := jm.jobs
	tokens := jm.tokens
	jm.jobs = make(map[string]*coroutine.Job)
	jm.order = make([]string, 0)
	jm.tokens = make(map[string]event.Token)
	jm.mu.Unlock()

	for id, job := range jobs {
		job.Off(coroutine.FinishedRunning, tokens[id])
	}
	jm.raise(AllCleared, nil)
}

// onFinished 自動解除非 repeating Job 的關聯
func (jm *JobManager) onFinished(e coroutine.JobEvent) {
	if e.Job.Repeating() {
		return
	}
	id := e.Job.ID()
	jm.mu.RLock()
	owned := jm.jobs[id] == e.Job
	jm.mu.RUnlock()
	if owned {
		jm.RemoveJob(id)
	}
}

// ============================================================================
// 單一 Job 操作（未知 id 為 no-op）
// ============================================================================

func (jm *JobManager) StartJob(id string) {
	if job := jm.Job(id); job != nil {
		job.Start()
	}
}

func (jm *JobManager) KillJob(id string) {
	if job := jm.Job(id); job != nil {
		job.Kill()
	}
}

func (jm *JobManager) PauseJob(id string) {
	if job := jm.Job(id); job != nil {
		job.Pause()
	}
}

func (jm *JobManager) ResumeJob(id string) {
	if job := jm.Job(id); job != nil {
		job.Resume()
	}
}

// ============================================================================
// 批次操作
// ============================================================================

// StartAll 啟動所有 Job，發出一次 AllStarted
func (jm *JobManager) StartAll() { jm.applyAll(AllStarted, func(j *coroutine.Job) { j.Start() }) }

// PauseAll 暫停所有 Job，發出一次 AllPaused
func (jm *JobManager) PauseAll() { jm.applyAll(AllPaused, func(j *coroutine.Job) { j.Pause() }) }

// ResumeAll 繼續所有 Job，發出一次 AllResumed
func (jm *JobManager) ResumeAll() { jm.applyAll(AllResumed, func(j *coroutine.Job) { j.Resume() }) }

// KillAll 終止所有 Job，發出一次 AllKilled
//
// 執行中的 Job 被 Kill 後會發出 FinishedRunning 而自動移除；
// 尚未啟動的 Job 只被標記為 killed，仍留在集合中。
func (jm *JobManager) KillAll() { jm.applyAll(AllKilled, func(j *coroutine.Job) { j.Kill() }) }

func (jm *JobManager) StartAllAfter(delay time.Duration)  { jm.d.After(delay, jm.StartAll) }
func (jm *JobManager) PauseAllAfter(delay time.Duration)  { jm.d.After(delay, jm.PauseAll) }
func (jm *JobManager) ResumeAllAfter(delay time.Duration) { jm.d.After(delay, jm.ResumeAll) }
func (jm *JobManager) KillAllAfter(delay time.Duration)   { jm.d.After(delay, jm.KillAll) }

func (jm *JobManager) applyAll(kind EventKind, f func(*coroutine.Job)) {
	for _, job := range jm.Jobs() {
		f(job)
	}
	jm.raise(kind, nil)
}

// ============================================================================
// 事件訂閱
// ============================================================================

// On 訂閱管理器事件
func (jm *JobManager) On(kind EventKind, h func(ManagerEvent)) event.Token {
	return jm.events.Subscribe(kind, h)
}

// Off 取消訂閱
func (jm *JobManager) Off(kind EventKind, tok event.Token) bool {
	return jm.events.Unsubscribe(kind, tok)
}

func (jm *JobManager) raise(kind EventKind, edited *coroutine.Job) {
	owned := jm.Jobs()
	e := ManagerEvent{Kind: kind, Owned: owned, Edited: edited}
	for _, job := range owned {
		if job.Running() {
			e.Running = append(e.Running, job)
		}
		if job.Paused() {
			e.Paused = append(e.Paused, job)
		}
	}
	jm.log.Trace().Str("event", string(kind)).Int("owned", len(owned)).Msg("manager event")
	jm.events.Publish(kind, e)
}

// ============================================================================
// 查詢方法
// ============================================================================

// HasJob 是否持有 id
func (jm *JobManager) HasJob(id string) bool {
	jm.mu.RLock()
	defer jm.mu.RUnlock()
	_, exists := jm.jobs[id]
	return exists
}

// Job 取得 Job，不存在時回傳 nil
func (jm *JobManager) Job(id string) *coroutine.Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()
	return jm.jobs[id]
}

// IsRunning 指定 Job 是否執行中
func (jm *JobManager) IsRunning(id string) bool {
	job := jm.Job(id)
	return job != nil && job.Running()
}

// Jobs 依插入順序回傳所有 Job
func (jm *JobManager) Jobs() []*coroutine.Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()
	out := make([]*coroutine.Job, 0, len(jm.order))
	for _, id := range jm.order {
		out = append(out, jm.jobs[id])
	}
	return out
}

// IDs 依插入順序回傳所有 id
func (jm *JobManager) IDs() []string {
	jm.mu.RLock()
	defer jm.mu.RUnlock()
	out := make([]string, len(jm.order))
	copy(out, jm.order)
	return out
}

// Len 持有的 Job 數
func (jm *JobManager) Len() int {
	jm.mu.RLock()
	defer jm.mu.RUnlock()
	return len(jm.jobs)
}

// IsEmpty 是否沒有任何 Job
func (jm *JobManager) IsEmpty() bool { return jm.Len() == 0 }

// Stats 取得統計資訊
//
// 使用範例：
//
//	stats := jm.Stats()
//	log.Info().Int("owned", stats["owned"]).Int("running", stats["running"]).Msg("jobs")
func (jm *JobManager) Stats() map[string]int {
	stats := map[string]int{"owned": 0, "running": 0, "paused": 0}
	for _, job := range jm.Jobs() {
		stats["owned"]++
		if job.Running() {
			stats["running"]++
		}
		if job.Paused() {
			stats["paused"]++
		}
	}
	return stats
}
