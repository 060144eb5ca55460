package event

import "github.com/ChuLiYu/bounce/pkg/types"

// Signals groups the game-wide notifications shared by the player, level
// and audio components. One instance is built by the composition root and
// passed to every collaborator that raises or observes them.
type Signals struct {
	PlayerStatus   *Hub[types.PlayerStatus]
	ShapesConsumed *Hub[struct{}]
	SFX            *Hub[types.SFXRequest]
	Menu           *Hub[types.MenuStatus]
}

// NewSignals 建立空的訊號集合
func NewSignals() *Signals {
	return &Signals{
		PlayerStatus:   NewHub[types.PlayerStatus](),
		ShapesConsumed: NewHub[struct{}](),
		SFX:            NewHub[types.SFXRequest](),
		Menu:           NewHub[types.MenuStatus](),
	}
}

// StatusListener latches the most recent player status while listening.
// MatchesStatus consumes the latched value on a match.
type StatusListener struct {
	hub       *Hub[types.PlayerStatus]
	tok       Token
	status    types.PlayerStatus
	listening bool
}

// NewStatusListener 建立尚未開始監聽的 listener
func NewStatusListener(hub *Hub[types.PlayerStatus]) *StatusListener {
	return &StatusListener{hub: hub}
}

// StartListening subscribes to the hub. Calling it twice keeps one subscription.
func (l *StatusListener) StartListening() {
	if l.listening {
		return
	}
	l.tok = l.hub.Subscribe(func(s types.PlayerStatus) { l.status = s })
	l.listening = true
}

// StopListening unsubscribes; the latched status is kept.
func (l *StatusListener) StopListening() {
	if !l.listening {
		return
	}
	l.hub.Unsubscribe(l.tok)
	l.listening = false
}

// Listening 是否正在監聽
func (l *StatusListener) Listening() bool { return l.listening }

// MatchesStatus reports whether the latched status equals s and resets it to
// StatusNone when it does.
func (l *StatusListener) MatchesStatus(s types.PlayerStatus) bool {
	if l.status != s {
		return false
	}
	l.status = types.StatusNone
	return true
}
