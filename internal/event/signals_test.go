package event

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ChuLiYu/bounce/pkg/types"
)

func TestStatusListenerLatches(t *testing.T) {
	sig := NewSignals()
	l := NewStatusListener(sig.PlayerStatus)

	// 尚未監聽時忽略
	sig.PlayerStatus.Publish(types.StatusFired)
	assert.False(t, l.MatchesStatus(types.StatusFired))

	l.StartListening()
	l.StartListening()
	assert.True(t, l.Listening())
	assert.Equal(t, 1, sig.PlayerStatus.Len(), "a second StartListening keeps one subscription")

	sig.PlayerStatus.Publish(types.StatusPlaced)
	sig.PlayerStatus.Publish(types.StatusFired)
	assert.False(t, l.MatchesStatus(types.StatusPlaced), "only the latest status is latched")
	assert.True(t, l.MatchesStatus(types.StatusFired))
	assert.False(t, l.MatchesStatus(types.StatusFired), "a match consumes the status")
}

func TestStatusListenerStopKeepsLatch(t *testing.T) {
	sig := NewSignals()
	l := NewStatusListener(sig.PlayerStatus)
	l.StartListening()

	sig.PlayerStatus.Publish(types.StatusOffScreen)
	l.StopListening()
	assert.False(t, l.Listening())
	assert.Zero(t, sig.PlayerStatus.Len())

	sig.PlayerStatus.Publish(types.StatusFired)
	assert.True(t, l.MatchesStatus(types.StatusOffScreen))
}

func TestStatusListenersAreIndependent(t *testing.T) {
	sig := NewSignals()
	a := NewStatusListener(sig.PlayerStatus)
	b := NewStatusListener(sig.PlayerStatus)
	a.StartListening()
	b.StartListening()

	sig.PlayerStatus.Publish(types.StatusOffScreen)
	assert.True(t, a.MatchesStatus(types.StatusOffScreen))
	assert.True(t, b.MatchesStatus(types.StatusOffScreen), "each listener holds its own latch")
}
