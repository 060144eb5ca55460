// ============================================================================
// bounce 協程排程器 - Dispatcher
// ============================================================================
//
// Package: internal/coroutine
// 文件: dispatcher.go
// 功能: 以 tick 驅動所有 Job 的單一幫浦
//
// 執行模型:
//   Tick(dt) 依序執行：
//   1. 推進遊戲時鐘
//   2. 取出並執行 deferred 佇列中的指令（計時器回呼只會寫入此佇列）
//   3. 依註冊順序對每個 active job 執行一次 pump
//   4. 移除已停止的 job
//
//   deferred 指令啟動的 job 在同一個 tick 被 pump；pump 階段中新註冊的 job 從下一個 tick 開始。
//
// 並發安全:
//   只有 Defer / After 可以從其他 goroutine 呼叫；其餘方法只在 tick goroutine 上使用。
//
// ============================================================================

package coroutine

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrDispatcherClosed 排程器已關閉
	ErrDispatcherClosed = errors.New("dispatcher closed")
)

// Stopper is the handle returned by a timer; *time.Timer satisfies it.
type Stopper interface {
	Stop() bool
}

// TimerFunc arms a real-time timer that calls f once after d.
type TimerFunc func(d time.Duration, f func()) Stopper

// Observer receives scheduling telemetry. internal/metrics implements it.
type Observer interface {
	ObserveTick(active int, took time.Duration)
	ObserveJob(kind EventKind)
}

// Dispatcher pumps job continuations once per tick.
type Dispatcher struct {
	mu       sync.Mutex
	deferred []func()
	timers   map[*timer]struct{}
	closed   bool

	now    time.Duration
	ticks  uint64
	active []*Job
	known  map[*Job]struct{}

	afterFunc TimerFunc
	observer  Observer
	log       zerolog.Logger
}

type timer struct {
	d *Dispatcher
	s Stopper
}

// DispatcherOption 設定 Dispatcher
type DispatcherOption func(*Dispatcher)

// WithLogger sets the dispatcher logger; jobs log through it as well.
func WithLogger(l zerolog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.log = l }
}

// WithObserver attaches a telemetry observer.
func WithObserver(o Observer) DispatcherOption {
	return func(d *Dispatcher) { d.observer = o }
}

// WithTimerFunc replaces time.AfterFunc, mainly for tests.
func WithTimerFunc(f TimerFunc) DispatcherOption {
	return func(d *Dispatcher) { d.afterFunc = f }
}

// NewDispatcher 建立排程器
func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		timers: make(map[*timer]struct{}),
		known:  make(map[*Job]struct{}),
		log:    zerolog.Nop(),
		afterFunc: func(d time.Duration, f func()) Stopper {
			return time.AfterFunc(d, f)
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ============================================================================
// 跨 goroutine 入口
// ============================================================================

// Defer queues f to run at the start of the next tick. It is the only entry
// point safe to call from other goroutines.
func (d *Dispatcher) Defer(f func()) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	d.deferred = append(d.deferred, f)
	return nil
}

// After arms a real-time timer whose callback only defers f to the tick.
func (d *Dispatcher) After(delay time.Duration, f func()) Stopper {
	t := &timer{d: d}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return t
	}
	d.timers[t] = struct{}{}
	d.mu.Unlock()

	s := d.afterFunc(delay, func() {
		d.mu.Lock()
		delete(d.timers, t)
		d.mu.Unlock()
		if err := d.Defer(f); err != nil {
			d.log.Debug().Err(err).Msg("timer fired after close")
		}
	})
	d.mu.Lock()
	t.s = s
	d.mu.Unlock()
	return t
}

func (t *timer) Stop() bool {
	t.d.mu.Lock()
	s := t.s
	if t.d.timers != nil {
		delete(t.d.timers, t)
	}
	t.d.mu.Unlock()
	if s == nil {
		return false
	}
	return s.Stop()
}

// Close stops outstanding timers and rejects further deferred work.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	for t := range d.timers {
		if t.s != nil {
			t.s.Stop()
		}
	}
	d.timers = nil
	d.deferred = nil
}

// Pending 尚未執行的 deferred 指令數
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.deferred)
}

// ============================================================================
// tick goroutine
// ============================================================================

// Tick advances the game clock by dt, runs deferred commands and pumps every
// job registered before the pump phase once. Jobs started by other jobs
// during the pump phase wait for the next tick.
func (d *Dispatcher) Tick(dt time.Duration) {
	start := time.Now()
	d.now += dt
	d.ticks++

	d.mu.Lock()
	cmds := d.deferred
	d.deferred = nil
	d.mu.Unlock()
	for _, f := range cmds {
		f()
	}

	batch := make([]*Job, len(d.active))
	copy(batch, d.active)
	for _, j := range batch {
		if j.running && j.parent == nil {
			j.pump()
		}
	}

	kept := make([]*Job, 0, len(d.active))
	for _, j := range d.active {
		if j.running && j.parent == nil {
			kept = append(kept, j)
		} else {
			delete(d.known, j)
		}
	}
	d.active = kept

	if d.observer != nil {
		d.observer.ObserveTick(len(d.active), time.Since(start))
	}
}

func (d *Dispatcher) register(j *Job) {
	if _, ok := d.known[j]; ok {
		return
	}
	d.known[j] = struct{}{}
	d.active = append(d.active, j)
}

// Now 遊戲時鐘（所有 tick 的 dt 累計）
func (d *Dispatcher) Now() time.Duration { return d.now }

// Ticks 已執行的 tick 數
func (d *Dispatcher) Ticks() uint64 { return d.ticks }

// Active 目前由排程器直接驅動的 job 數
func (d *Dispatcher) Active() int { return len(d.active) }

// Logger 排程器使用的 logger
func (d *Dispatcher) Logger() zerolog.Logger { return d.log }
