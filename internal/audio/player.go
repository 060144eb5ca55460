// ============================================================================
// bounce 音效 - SFX 播放器
// ============================================================================
//
// Package: internal/audio
// 文件: player.go
// 功能: 收集 SFX 請求並每 tick 交給 Sink 播放一個
//
// 規則:
//   - 待播放佇列為固定大小的環狀緩衝
//   - 同名片段已在佇列中時忽略新的請求
//   - 佇列滿時丟棄新請求
//   - Stop() 取消訂閱，Resume() 重新訂閱
//
// ============================================================================

package audio

import (
	"github.com/rs/zerolog"

	"github.com/ChuLiYu/bounce/internal/event"
	"github.com/ChuLiYu/bounce/pkg/types"
)

// DefaultMaxPending 預設待播放上限
const DefaultMaxPending = 30

// Sink plays clips. Implementations must not block the tick goroutine.
type Sink interface {
	Play(clip types.Clip)
	PlayAt(clip types.Clip, pos types.Vec2)
}

// Player drains SFX requests to a Sink, one per Update.
type Player struct {
	hub  *event.Hub[types.SFXRequest]
	sink Sink
	log  zerolog.Logger

	pending    []types.SFXRequest
	head, tail int

	tok     event.Token
	playing bool
	dropped int
}

// PlayerOption 設定 Player
type PlayerOption func(*Player)

// WithMaxPending 設定環狀緩衝大小
func WithMaxPending(n int) PlayerOption {
	return func(p *Player) {
		if n > 1 {
			p.pending = make([]types.SFXRequest, n)
		}
	}
}

// WithPlayerLogger 設定 logger
func WithPlayerLogger(l zerolog.Logger) PlayerOption {
	return func(p *Player) { p.log = l }
}

// NewPlayer 建立播放器並開始接收請求
func NewPlayer(hub *event.Hub[types.SFXRequest], sink Sink, opts ...PlayerOption) *Player {
	p := &Player{
		hub:     hub,
		sink:    sink,
		log:     zerolog.Nop(),
		pending: make([]types.SFXRequest, DefaultMaxPending),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.Resume()
	return p
}

// Stop 停止接收請求；已排入的請求保留
func (p *Player) Stop() {
	if !p.playing {
		return
	}
	p.hub.Unsubscribe(p.tok)
	p.playing = false
}

// Resume 重新接收請求
func (p *Player) Resume() {
	if p.playing {
		return
	}
	p.tok = p.hub.Subscribe(p.enqueue)
	p.playing = true
}

// ShouldPlay reports whether the player is receiving requests.
func (p *Player) ShouldPlay() bool { return p.playing }

// Update plays the oldest pending request.
func (p *Player) Update() {
	if p.head == p.tail {
		return
	}
	req := p.pending[p.head]
	p.pending[p.head] = types.SFXRequest{}
	p.head = (p.head + 1) % len(p.pending)

	if req.Position != nil {
		p.sink.PlayAt(req.Clip, *req.Position)
		return
	}
	p.sink.Play(req.Clip)
}

// Pending 目前待播放數
func (p *Player) Pending() int {
	return (p.tail - p.head + len(p.pending)) % len(p.pending)
}

// Dropped 因佇列已滿而丟棄的請求數
func (p *Player) Dropped() int { return p.dropped }

func (p *Player) enqueue(req types.SFXRequest) {
	if req.Clip.Name == "" {
		return
	}
	for i := p.head; i != p.tail; i = (i + 1) % len(p.pending) {
		if p.pending[i].Clip.Name == req.Clip.Name {
			return
		}
	}
	next := (p.tail + 1) % len(p.pending)
	if next == p.head {
		p.dropped++
		p.log.Debug().Str("clip", req.Clip.Name).Msg("sfx queue full, request dropped")
		return
	}
	p.pending[p.tail] = req
	p.tail = next
}

// LogSink writes every played clip to a logger. The headless runtime uses it
// in place of an audio device.
type LogSink struct {
	Log zerolog.Logger
}

func (s LogSink) Play(clip types.Clip) {
	s.Log.Debug().Str("clip", clip.Name).Msg("play sfx")
}

func (s LogSink) PlayAt(clip types.Clip, pos types.Vec2) {
	s.Log.Debug().Str("clip", clip.Name).Stringer("pos", pos).Msg("play sfx at point")
}
