// Package types 定義了 bounce 執行環境中共用的領域值型別
package types

import (
	"fmt"
	"math"
)

// Vec2 二維座標（螢幕或世界座標）
type Vec2 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Sub 回傳 v - o
func (v Vec2) Sub(o Vec2) Vec2 { return Vec2{X: v.X - o.X, Y: v.Y - o.Y} }

// Add 回傳 v + o
func (v Vec2) Add(o Vec2) Vec2 { return Vec2{X: v.X + o.X, Y: v.Y + o.Y} }

// Scale 回傳 v * k
func (v Vec2) Scale(k float64) Vec2 { return Vec2{X: v.X * k, Y: v.Y * k} }

// Len 向量長度
func (v Vec2) Len() float64 { return math.Hypot(v.X, v.Y) }

// Distance 兩點距離
func (v Vec2) Distance(o Vec2) float64 { return v.Sub(o).Len() }

func (v Vec2) String() string { return fmt.Sprintf("(%.2f, %.2f)", v.X, v.Y) }

// PlayerStatus 玩家狀態訊號
//
// 數值與遊戲原始設定一致，可直接寫入紀錄或指標標籤
type PlayerStatus int

// 定義玩家狀態常數
const (
	StatusNone      PlayerStatus = 0   // 無訊號：狀態已被消費
	StatusFired     PlayerStatus = 100 // 已發射：拖曳放開且超過最小距離
	StatusOffScreen PlayerStatus = 200 // 離開畫面
	StatusPlaced    PlayerStatus = 300 // 已放置：觸控開始
)

func (s PlayerStatus) String() string {
	switch s {
	case StatusNone:
		return "none"
	case StatusFired:
		return "fired"
	case StatusOffScreen:
		return "off_screen"
	case StatusPlaced:
		return "placed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// TouchPhase 觸控階段
type TouchPhase string

// 定義觸控階段常數
const (
	TouchBegan TouchPhase = "began" // 觸控開始
	TouchMoved TouchPhase = "moved" // 拖曳中
	TouchEnded TouchPhase = "ended" // 觸控結束
)

// TouchData 一次觸控事件，攜帶螢幕座標與換算後的世界座標
type TouchData struct {
	Phase  TouchPhase `json:"phase" yaml:"phase"`
	Screen Vec2       `json:"screen" yaml:"screen"`
	World  Vec2       `json:"world" yaml:"world"`
}

// Rect 軸對齊矩形，用於可視範圍判斷
type Rect struct {
	Min Vec2 `json:"min" yaml:"min"`
	Max Vec2 `json:"max" yaml:"max"`
}

// Contains 判斷點是否位於矩形內（含邊界）
func (r Rect) Contains(p Vec2) bool {
	return p.X >= r.Min.X && p.X <= r.Max.X && p.Y >= r.Min.Y && p.Y <= r.Max.Y
}

// Clip 音效片段的識別資料，實際播放由外部 Sink 負責
type Clip struct {
	Name string `json:"name" yaml:"name" validate:"required"`
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// SFXRequest 播放音效的請求；Position 為 nil 時以 2D 方式播放
type SFXRequest struct {
	Clip     Clip  `json:"clip"`
	Position *Vec2 `json:"position,omitempty"`
}

// MenuStatus 選單顯示狀態
//
// Additional 為 true 時（例如關卡選擇頁）遊戲暫停更新
type MenuStatus struct {
	Visible    bool `json:"visible"`
	Additional bool `json:"additional"`
}
