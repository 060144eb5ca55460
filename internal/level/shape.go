package level

import "github.com/ChuLiYu/bounce/pkg/types"

// ShapeKind 形狀種類
type ShapeKind string

const (
	// Consumable shapes must all be hit to clear a level.
	Consumable ShapeKind = "consumable"
	// NonConsumable shapes only play a sound when hit.
	NonConsumable ShapeKind = "non_consumable"
)

// View renders a shape. Every call is fire-and-forget.
type View interface {
	Show()
	Hide()
	PlayHitAnimation()
	PlayShowAnimation()
	SetInteractable(interactable bool)
}

type nopView struct{}

func (nopView) Show()                {}
func (nopView) Hide()                {}
func (nopView) PlayHitAnimation()    {}
func (nopView) PlayShowAnimation()   {}
func (nopView) SetInteractable(bool) {}

// Shape is one target of a level. It starts hidden and non-interactable
// until Reset.
type Shape struct {
	ID   string
	Kind ShapeKind
	Pos  types.Vec2

	view         View
	onHit        func(*Shape)
	visible      bool
	interactable bool
}

// NewShape 建立形狀；view 為 nil 時不轉送任何顯示呼叫
func NewShape(id string, kind ShapeKind, pos types.Vec2, view View) *Shape {
	if view == nil {
		view = nopView{}
	}
	return &Shape{ID: id, Kind: kind, Pos: pos, view: view}
}

// Reset shows the shape and makes it hittable again.
func (s *Shape) Reset() {
	s.visible = true
	s.interactable = true
	s.view.SetInteractable(true)
	s.view.Show()
	s.view.PlayShowAnimation()
}

// Disable hides the shape and stops it from being hit.
func (s *Shape) Disable() {
	s.visible = false
	s.interactable = false
	s.view.SetInteractable(false)
	s.view.Hide()
}

// Hit notifies the listener and plays the hit animation. A non-interactable
// shape ignores the hit and Hit returns false.
func (s *Shape) Hit() bool {
	if !s.interactable {
		return false
	}
	if s.onHit != nil {
		s.onHit(s)
	}
	s.view.PlayHitAnimation()
	s.AnimationStarted()
	s.AnimationFinished()
	return true
}

// AnimationStarted keeps the shape visible but no longer hittable.
func (s *Shape) AnimationStarted() {
	s.interactable = false
	s.view.Show()
	s.view.SetInteractable(false)
}

// AnimationFinished hides the shape.
func (s *Shape) AnimationFinished() {
	s.visible = false
	s.view.Hide()
}

// SetListener replaces the hit listener.
func (s *Shape) SetListener(f func(*Shape)) { s.onHit = f }

func (s *Shape) Visible() bool { return s.visible }

func (s *Shape) Interactable() bool { return s.interactable }
