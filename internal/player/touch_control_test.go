package player

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/bounce/internal/event"
	"github.com/ChuLiYu/bounce/pkg/types"
)

var screen = types.Rect{Min: types.Vec2{X: -5, Y: -5}, Max: types.Vec2{X: 5, Y: 5}}

func touch(phase types.TouchPhase, x, y float64) types.TouchData {
	p := types.Vec2{X: x, Y: y}
	return types.TouchData{Phase: phase, Screen: p, World: p}
}

type lineSpy struct {
	start, end types.Vec2
	shown      bool
}

func (l *lineSpy) SetStart(p types.Vec2) { l.start = p }
func (l *lineSpy) SetEnd(p types.Vec2)   { l.end = p }
func (l *lineSpy) Show()                 { l.shown = true }
func (l *lineSpy) Hide()                 { l.shown = false }

func setup(t *testing.T) (*TouchControl, *KinematicBody, *event.Signals, *[]types.PlayerStatus) {
	t.Helper()
	sig := event.NewSignals()
	body := NewKinematicBody(10, screen)
	var got []types.PlayerStatus
	sig.PlayerStatus.Subscribe(func(s types.PlayerStatus) { got = append(got, s) })
	return NewTouchControl(sig, body), body, sig, &got
}

func TestFireAfterLongDrag(t *testing.T) {
	c, body, _, got := setup(t)
	line := &lineSpy{}
	c.line = line

	c.Touch(touch(types.TouchBegan, 0, 0))
	assert.True(t, body.Visible())
	assert.Equal(t, types.Vec2{}, line.start)

	c.Touch(touch(types.TouchMoved, 1, 1))
	assert.True(t, line.shown)
	assert.Equal(t, types.Vec2{X: 1, Y: 1}, line.end)

	c.Touch(touch(types.TouchEnded, 3, 0))
	assert.Equal(t, []types.PlayerStatus{types.StatusPlaced, types.StatusFired}, *got)
	assert.True(t, body.Moving())
	assert.InDelta(t, 10, body.vel.X, 1e-9)
	assert.False(t, line.shown)
}

func TestShortDragHides(t *testing.T) {
	c, body, _, got := setup(t)
	c.Touch(touch(types.TouchBegan, 0, 0))
	c.Touch(touch(types.TouchEnded, 0.5, 0.5))

	assert.Equal(t, []types.PlayerStatus{types.StatusPlaced}, *got)
	assert.False(t, body.Visible())
	assert.False(t, body.Moving())
}

func TestSecondBeganIgnoredWhileDragging(t *testing.T) {
	c, _, _, got := setup(t)
	c.Touch(touch(types.TouchBegan, 0, 0))
	c.Touch(touch(types.TouchBegan, 1, 1))
	assert.Len(t, *got, 1)
}

func TestOffScreenRaisedOnce(t *testing.T) {
	c, body, _, got := setup(t)
	c.Touch(touch(types.TouchBegan, 0, 0))
	c.Touch(touch(types.TouchEnded, 0, 2))

	for i := 0; i < 10; i++ {
		body.Step(0.1)
		c.Update()
	}
	require.Equal(t, []types.PlayerStatus{types.StatusPlaced, types.StatusFired, types.StatusOffScreen}, *got)
	assert.False(t, body.Moving())
}

func TestStopsListeningWhenShapesConsumed(t *testing.T) {
	c, _, sig, got := setup(t)
	sig.ShapesConsumed.Publish(struct{}{})
	c.Touch(touch(types.TouchBegan, 0, 0))
	assert.Empty(t, *got)

	c.Listen()
	c.Touch(touch(types.TouchBegan, 0, 0))
	assert.Len(t, *got, 1)
}

func TestMenuVisibility(t *testing.T) {
	c, body, sig, got := setup(t)
	c.Touch(touch(types.TouchBegan, 0, 0))
	sig.Menu.Publish(types.MenuStatus{Visible: true})
	assert.False(t, c.Listening())
	assert.False(t, body.Visible())

	c.Touch(touch(types.TouchEnded, 3, 0))
	assert.Len(t, *got, 1)

	sig.Menu.Publish(types.MenuStatus{Visible: false})
	assert.True(t, c.Listening())
}

func TestCloseUnsubscribes(t *testing.T) {
	c, _, sig, _ := setup(t)
	c.Close()
	assert.Zero(t, sig.ShapesConsumed.Len())
	assert.Zero(t, sig.Menu.Len())
}
