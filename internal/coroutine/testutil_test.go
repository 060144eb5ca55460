package coroutine

import (
	"sync"
	"time"
)

const dt = 100 * time.Millisecond

type noopStopper struct{}

func (noopStopper) Stop() bool { return true }

// manualTimers collects timer callbacks so tests decide when they fire.
type manualTimers struct {
	mu  sync.Mutex
	fns []func()
}

func (m *manualTimers) after(_ time.Duration, f func()) Stopper {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fns = append(m.fns, f)
	return noopStopper{}
}

func (m *manualTimers) fireAll() {
	m.mu.Lock()
	fns := m.fns
	m.fns = nil
	m.mu.Unlock()
	for _, f := range fns {
		f()
	}
}

func tickN(d *Dispatcher, n int) {
	for i := 0; i < n; i++ {
		d.Tick(dt)
	}
}

// yieldN returns a routine that yields nil n times and counts its runs.
func yieldN(n int, runs *int) Routine {
	return func(yield func(Instruction) bool) {
		if runs != nil {
			*runs++
		}
		for i := 0; i < n; i++ {
			if !yield(nil) {
				return
			}
		}
	}
}

func record(log *[]string, name string, steps int) Routine {
	return func(yield func(Instruction) bool) {
		for i := 0; i < steps; i++ {
			*log = append(*log, name)
			if !yield(nil) {
				return
			}
		}
	}
}

func collect(j *Job, kinds ...EventKind) *[]EventKind {
	var got []EventKind
	for _, k := range kinds {
		k := k
		j.On(k, func(e JobEvent) { got = append(got, e.Kind) })
	}
	return &got
}

var allKinds = []EventKind{Started, Paused, Resumed, Complete, ChildrenStarted, ChildrenComplete, FinishedRunning}
