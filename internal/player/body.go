package player

import "github.com/ChuLiYu/bounce/pkg/types"

// Body is the ball as seen by the touch control: movement plus visibility.
// Rendering and physics live behind it.
type Body interface {
	Place(pos types.Vec2)
	Launch(dir types.Vec2)
	Stop()
	Moving() bool
	Show()
	Hide()
	Visible() bool
}

// LineView draws the aiming line while dragging.
type LineView interface {
	SetStart(pos types.Vec2)
	SetEnd(pos types.Vec2)
	Show()
	Hide()
}

// KinematicBody moves in a straight line at a fixed speed and is visible
// while shown and inside its bounds. The headless runtime uses it in place
// of a physics body.
type KinematicBody struct {
	Speed  float64
	Bounds types.Rect

	pos   types.Vec2
	vel   types.Vec2
	shown bool
}

// NewKinematicBody 建立隱藏中的 body
func NewKinematicBody(speed float64, bounds types.Rect) *KinematicBody {
	return &KinematicBody{Speed: speed, Bounds: bounds}
}

func (b *KinematicBody) Place(pos types.Vec2) { b.pos = pos }

func (b *KinematicBody) Launch(dir types.Vec2) { b.vel = dir.Scale(b.Speed) }

func (b *KinematicBody) Stop() { b.vel = types.Vec2{} }

func (b *KinematicBody) Moving() bool { return b.vel != types.Vec2{} }

func (b *KinematicBody) Show() { b.shown = true }

func (b *KinematicBody) Hide() {
	b.shown = false
	b.vel = types.Vec2{}
}

func (b *KinematicBody) Visible() bool { return b.shown && b.Bounds.Contains(b.pos) }

// Step advances the position by dt seconds.
func (b *KinematicBody) Step(dt float64) { b.pos = b.pos.Add(b.vel.Scale(dt)) }

func (b *KinematicBody) Position() types.Vec2 { return b.pos }
