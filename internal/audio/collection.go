// ============================================================================
// bounce 音效 - 形狀音效集合
// ============================================================================
//
// Package: internal/audio
// 文件: collection.go
// 功能: 每次擊中形狀時依序輪替播放的音效片段
//
// 起始索引:
//   片段數 < 形狀數   → 從 0 開始
//   否則             → 在 [0, 片段數-形狀數-1) 之間隨機選一個起點，讓同一關每次聽起來不同
//   Reset() 回到本次的起點，而不是重新抽選
//
// ============================================================================

package audio

import (
	"math/rand/v2"

	"github.com/ChuLiYu/bounce/pkg/types"
)

// Collection rotates through a group of clips.
type Collection struct {
	clips   []types.Clip
	index   int
	initial int
}

// NewCollection picks the starting clip for a level with shapeCount shapes.
// A nil rng uses the global source.
func NewCollection(clips []types.Clip, shapeCount int, rng *rand.Rand) *Collection {
	c := &Collection{clips: clips}
	if span := len(clips) - shapeCount - 1; len(clips) >= shapeCount && span > 0 {
		if rng != nil {
			c.index = rng.IntN(span)
		} else {
			c.index = rand.IntN(span)
		}
	}
	c.initial = c.index
	return c
}

// Current returns the clip to play next; ok is false for an empty collection.
func (c *Collection) Current() (types.Clip, bool) {
	if len(c.clips) == 0 {
		return types.Clip{}, false
	}
	return c.clips[c.index], true
}

// Next advances the index, wrapping around.
func (c *Collection) Next() {
	if len(c.clips) == 0 {
		return
	}
	c.index = (c.index + 1) % len(c.clips)
}

// Reset returns to the starting clip chosen at construction.
func (c *Collection) Reset() { c.index = c.initial }

func (c *Collection) Index() int { return c.index }

func (c *Collection) Len() int { return len(c.clips) }
