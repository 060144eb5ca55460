// ============================================================================
// bounce 玩家 - 觸控控制
// ============================================================================
//
// Package: internal/player
// 文件: touch_control.go
// 功能: 將觸控事件轉成玩家狀態訊號
//
// 流程:
//   Began → 放置球、顯示 → 發出 Placed
//   Moved → 更新瞄準線
//   Ended → 拖曳距離 > 最小距離：發出 Fired 並朝拖曳方向發射
//           否則：隱藏球
//   Update → 球在移動且已不可見：隱藏 → 發出 OffScreen
//
// 監聽:
//   AllShapesConsumed → 停止接收觸控
//   選單顯示 → 停止接收觸控並隱藏；選單關閉 → 恢復
//   新關卡載入 → 恢復（由組裝處呼叫 Listen）
//
// ============================================================================

package player

import (
	"github.com/rs/zerolog"

	"github.com/ChuLiYu/bounce/internal/event"
	"github.com/ChuLiYu/bounce/pkg/types"
)

// DefaultMinTouchDistance 預設最小發射距離（世界座標）
const DefaultMinTouchDistance = 1.0

// TouchControl turns touches into player status signals.
type TouchControl struct {
	signals *event.Signals
	body    Body
	line    LineView
	minDist float64
	log     zerolog.Logger

	start      types.TouchData
	inProgress bool
	listening  bool

	consumedTok event.Token
	menuTok     event.Token
}

// Option 設定 TouchControl
type Option func(*TouchControl)

// WithMinTouchDistance 設定最小發射距離
func WithMinTouchDistance(d float64) Option {
	return func(c *TouchControl) { c.minDist = d }
}

// WithLineView 設定瞄準線
func WithLineView(v LineView) Option {
	return func(c *TouchControl) { c.line = v }
}

// WithLogger 設定 logger
func WithLogger(l zerolog.Logger) Option {
	return func(c *TouchControl) { c.log = l }
}

// NewTouchControl subscribes to the shapes-consumed and menu signals and
// starts listening for touches.
func NewTouchControl(signals *event.Signals, body Body, opts ...Option) *TouchControl {
	c := &TouchControl{
		signals: signals,
		body:    body,
		minDist: DefaultMinTouchDistance,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.body.Hide()
	c.consumedTok = signals.ShapesConsumed.Subscribe(func(struct{}) { c.StopListening() })
	c.menuTok = signals.Menu.Subscribe(c.onMenu)
	c.Listen()
	return c
}

// Close 取消所有訂閱
func (c *TouchControl) Close() {
	c.signals.ShapesConsumed.Unsubscribe(c.consumedTok)
	c.signals.Menu.Unsubscribe(c.menuTok)
	c.StopListening()
}

// Listen resumes touch handling.
func (c *TouchControl) Listen() { c.listening = true }

// StopListening ignores touches until Listen. A drag in progress is dropped.
func (c *TouchControl) StopListening() {
	c.listening = false
	c.inProgress = false
}

func (c *TouchControl) Listening() bool { return c.listening }

// Touch handles one input event.
func (c *TouchControl) Touch(td types.TouchData) {
	if !c.listening {
		return
	}
	switch td.Phase {
	case types.TouchBegan:
		c.began(td)
	case types.TouchMoved:
		c.moved(td)
	case types.TouchEnded:
		c.ended(td)
	default:
		c.log.Warn().Str("phase", string(td.Phase)).Msg("unknown touch phase")
	}
}

// Update raises OffScreen once the moving ball leaves the visible area.
func (c *TouchControl) Update() {
	if c.body.Moving() && !c.body.Visible() {
		c.hide()
		c.raise(types.StatusOffScreen)
	}
}

func (c *TouchControl) began(td types.TouchData) {
	if c.inProgress {
		return
	}
	c.inProgress = true
	c.start = td

	c.body.Stop()
	c.body.Place(td.World)
	c.body.Show()
	c.raise(types.StatusPlaced)
	if c.line != nil {
		c.line.SetStart(td.World)
	}
}

func (c *TouchControl) moved(td types.TouchData) {
	if !c.inProgress || c.line == nil {
		return
	}
	c.line.SetEnd(td.World)
	c.line.Show()
}

func (c *TouchControl) ended(td types.TouchData) {
	if !c.inProgress {
		return
	}
	c.inProgress = false

	heading := td.World.Sub(c.start.World)
	dist := heading.Len()
	c.log.Debug().Float64("distance", dist).Msg("touch ended")
	if dist > c.minDist {
		c.raise(types.StatusFired)
		c.body.Launch(heading.Scale(1 / dist))
	} else {
		c.hide()
	}
	if c.line != nil {
		c.line.Hide()
	}
}

func (c *TouchControl) onMenu(m types.MenuStatus) {
	if !m.Visible {
		c.Listen()
		return
	}
	c.StopListening()
	c.hide()
}

func (c *TouchControl) hide() {
	c.body.Hide()
	c.body.Stop()
}

func (c *TouchControl) raise(s types.PlayerStatus) {
	c.log.Debug().Stringer("status", s).Msg("player status changed")
	c.signals.PlayerStatus.Publish(s)
}
