package coroutine

import (
	"iter"
	"time"
)

// Routine is the pristine, re-invocable body of a job. Each run pulls a fresh
// iterator from it, so a restart never continues a spent sequence.
type Routine = iter.Seq[Instruction]

// Instruction is what a routine yields to suspend itself. A nil Instruction
// resumes on the next tick.
type Instruction interface {
	// Ready reports whether the suspended routine may resume. It is polled
	// once per tick starting with the tick after the yield.
	Ready(now time.Duration) bool
}

// beginner is implemented by instructions that capture state when they
// become pending (deadlines, counters, started jobs).
type beginner interface {
	begin(now time.Duration)
}

// ============================================================================
// 內建指令
// ============================================================================

type waitSeconds struct {
	d     time.Duration
	until time.Duration
}

func (w *waitSeconds) begin(now time.Duration)      { w.until = now + w.d }
func (w *waitSeconds) Ready(now time.Duration) bool { return now >= w.until }

// WaitForSeconds suspends for d of dispatcher game time.
func WaitForSeconds(d time.Duration) Instruction {
	return &waitSeconds{d: d}
}

type waitTicks struct {
	n, seen int
}

func (w *waitTicks) begin(time.Duration) { w.seen = 0 }
func (w *waitTicks) Ready(time.Duration) bool {
	w.seen++
	return w.seen >= w.n
}

// WaitTicks suspends for n ticks. WaitTicks(1) behaves like yielding nil.
func WaitTicks(n int) Instruction {
	if n < 1 {
		n = 1
	}
	return &waitTicks{n: n}
}

type waitUntil struct {
	cond func() bool
}

func (w waitUntil) Ready(time.Duration) bool { return w.cond == nil || w.cond() }

// WaitUntil suspends until cond returns true. cond is evaluated on the tick
// goroutine.
func WaitUntil(cond func() bool) Instruction {
	return waitUntil{cond: cond}
}

// nested is expanded by the job into an inner frame.
type nested struct {
	r Routine
}

func (nested) Ready(time.Duration) bool { return true }

// Nested runs r to completion before the yielding routine resumes. r starts in
// the same tick it is yielded.
func Nested(r Routine) Instruction {
	return nested{r: r}
}

type await struct {
	job *Job
}

func (a await) begin(time.Duration) {
	if a.job != nil {
		a.job.Start()
	}
}

func (a await) Ready(time.Duration) bool { return a.job == nil || !a.job.Running() }

// Await starts job (if idle) and suspends until it stops running.
func Await(job *Job) Instruction {
	return await{job: job}
}

// ============================================================================
// frame：單一層的迭代器狀態
// ============================================================================

type frame struct {
	next    func() (Instruction, bool)
	stop    func()
	wait    Instruction
	waiting bool
}

func newFrame(r Routine) *frame {
	next, stop := iter.Pull(r)
	return &frame{next: next, stop: stop}
}

// runFrames advances the frame stack until it blocks or empties. It returns
// true when the outermost frame is exhausted. halt is consulted between
// steps so that a kill issued from inside the routine stops it promptly.
func runFrames(stack *[]*frame, now time.Duration, halt func() bool) bool {
	for {
		n := len(*stack)
		if n == 0 {
			return true
		}
		top := (*stack)[n-1]
		if top.waiting {
			if top.wait != nil && !top.wait.Ready(now) {
				return false
			}
			top.wait, top.waiting = nil, false
		}
		ins, ok := top.next()
		if halt() {
			return false
		}
		if !ok {
			top.stop()
			*stack = (*stack)[:n-1]
			continue
		}
		if nest, isNested := ins.(nested); isNested {
			top.waiting = true
			if nest.r != nil {
				*stack = append(*stack, newFrame(nest.r))
			}
			continue
		}
		if b, ok := ins.(beginner); ok {
			b.begin(now)
		}
		top.wait, top.waiting = ins, true
		return false
	}
}

func closeFrames(stack []*frame) {
	for i := len(stack) - 1; i >= 0; i-- {
		stack[i].stop()
	}
}
