package level

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/bounce/internal/coroutine"
	"github.com/ChuLiYu/bounce/internal/event"
	"github.com/ChuLiYu/bounce/internal/fsm"
	"github.com/ChuLiYu/bounce/pkg/types"
)

const tick = 100 * time.Millisecond

type completer struct{ calls int }

func (c *completer) OnLevelComplete() { c.calls++ }

type harness struct {
	d     *coroutine.Dispatcher
	sig   *event.Signals
	level *Level
	done  *completer
	sfx   []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{d: coroutine.NewDispatcher(), sig: event.NewSignals(), done: &completer{}}
	h.sig.SFX.Subscribe(func(r types.SFXRequest) { h.sfx = append(h.sfx, r.Clip.Name) })
	shapes := []*Shape{
		NewShape("a", Consumable, types.Vec2{X: -1}, nil),
		NewShape("b", Consumable, types.Vec2{X: 1}, nil),
		NewShape("drum", NonConsumable, types.Vec2{Y: 2}, nil),
	}
	h.level = New(1, "test", shapes, h.d, h.sig, zerolog.Nop())
	keys := []types.Clip{{Name: "c4"}, {Name: "d4"}}
	drums := []types.Clip{{Name: "kick"}}
	h.level.Enter(h.done, keys, drums)
	return h
}

func (h *harness) step(n int) {
	for i := 0; i < n; i++ {
		h.d.Tick(tick)
		h.level.Update()
	}
}

func (h *harness) status(s types.PlayerStatus) { h.sig.PlayerStatus.Publish(s) }

// fire moves the level from Start into InProgress and lets the consumed
// shapes job run once.
func (h *harness) fire(t *testing.T) {
	t.Helper()
	h.status(types.StatusPlaced)
	h.status(types.StatusFired)
	h.step(2)
	require.Equal(t, StateInProgress, h.level.State())
}

func TestEntryShowsShapesAndMovesToStart(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, StateEntry, h.level.State())
	for _, s := range h.level.Shapes() {
		assert.False(t, s.Visible())
	}

	h.step(1)
	assert.Equal(t, StateStart, h.level.State())

	h.step(4)
	for _, s := range h.level.Shapes() {
		assert.True(t, s.Visible(), s.ID)
		assert.True(t, s.Interactable(), s.ID)
	}
}

func TestStartWaitsForFired(t *testing.T) {
	h := newHarness(t)
	h.step(3)
	h.status(types.StatusPlaced)
	h.step(3)
	assert.Equal(t, StateStart, h.level.State())

	h.status(types.StatusFired)
	h.step(1)
	assert.Equal(t, StateInProgress, h.level.State())
}

func TestShapeHitPlaysRotatingAudio(t *testing.T) {
	h := newHarness(t)
	h.step(5)
	h.fire(t)

	assert.True(t, h.level.HitShape("drum"))
	assert.True(t, h.level.HitShape("a"))
	assert.False(t, h.level.HitShape("a"), "consumed shape is no longer interactable")
	assert.False(t, h.level.HitShape("missing"))

	assert.Equal(t, []string{"kick", "c4"}, h.sfx)
	assert.Equal(t, 1, h.level.Remaining())
	assert.False(t, h.level.AllConsumed())
}

func TestOffScreenWithShapesRemainingReshowsConsumed(t *testing.T) {
	h := newHarness(t)
	h.step(5)
	h.fire(t)

	var transitions []fsm.TransitionEvent
	h.level.Machine().OnTransition(func(e fsm.TransitionEvent) { transitions = append(transitions, e) })

	h.level.HitShape("a")
	h.status(types.StatusOffScreen)
	h.step(1)
	require.Len(t, transitions, 1)
	assert.Equal(t, TransitionBallOutOfPlay, transitions[0].Transition)
	assert.Equal(t, StateInProgress, h.level.State())

	h.step(2)
	assert.Empty(t, h.level.ConsumedShapes())
	assert.Equal(t, 2, h.level.Remaining())
	assert.True(t, h.level.Shapes()[0].Interactable(), "consumed shape shown again")
}

func TestPlacedRestartsShot(t *testing.T) {
	h := newHarness(t)
	h.step(5)
	h.fire(t)
	h.level.HitShape("a")

	h.status(types.StatusPlaced)
	h.step(3)
	assert.Equal(t, StateInProgress, h.level.State())
	assert.Empty(t, h.level.ConsumedShapes())
}

func TestAllConsumedOffScreenCompletes(t *testing.T) {
	h := newHarness(t)
	h.step(5)
	h.fire(t)

	var consumed int
	h.sig.ShapesConsumed.Subscribe(func(struct{}) { consumed++ })
	h.level.HitShape("a")
	h.level.HitShape("b")
	assert.Equal(t, 1, consumed)

	h.status(types.StatusOffScreen)
	h.step(1)
	assert.Equal(t, StateComplete, h.level.State())
	assert.Equal(t, 1, h.done.calls)
	assert.False(t, h.level.Shapes()[2].Visible(), "non-consumables disabled")

	h.step(50)
	assert.Equal(t, StateComplete, h.level.State(), "complete waits for the next load")
	assert.Equal(t, 1, h.done.calls)
}

func TestAllConsumedCompletesAfterDelay(t *testing.T) {
	h := newHarness(t)
	h.step(5)
	h.fire(t)
	h.level.HitShape("a")
	h.level.HitShape("b")

	h.step(10)
	assert.Equal(t, StateInProgress, h.level.State())
	h.step(15)
	assert.Equal(t, StateComplete, h.level.State())
	assert.Equal(t, 1, h.done.calls)
}

func TestExitStopsUpdates(t *testing.T) {
	h := newHarness(t)
	h.step(1)
	h.level.Exit()
	assert.False(t, h.level.Active())

	h.status(types.StatusFired)
	h.step(3)
	assert.Equal(t, StateStart, h.level.State())
	for _, s := range h.level.Shapes() {
		assert.False(t, s.Visible())
	}
}

func TestReenterRebuildsMachine(t *testing.T) {
	h := newHarness(t)
	h.step(5)
	h.fire(t)
	h.level.HitShape("a")
	h.level.Exit()

	h.level.Enter(h.done, nil, nil)
	assert.Equal(t, StateEntry, h.level.State())
	assert.Empty(t, h.level.ConsumedShapes())
	h.step(1)
	assert.Equal(t, StateStart, h.level.State())
}

func TestAddShapeOnce(t *testing.T) {
	h := newHarness(t)
	s := h.level.Shapes()[0]
	h.level.AddShape(s)
	h.level.AddShape(s)
	assert.Len(t, h.level.ConsumedShapes(), 1)
}
