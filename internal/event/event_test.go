package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubPublishOrder(t *testing.T) {
	h := NewHub[int]()
	var got []string
	h.Subscribe(func(v int) { got = append(got, "a") })
	h.Subscribe(func(v int) { got = append(got, "b") })

	h.Publish(1)

	assert.Equal(t, []string{"a", "b"}, got)
	assert.Equal(t, 2, h.Len())
}

func TestHubUnsubscribe(t *testing.T) {
	h := NewHub[string]()
	calls := 0
	tok := h.Subscribe(func(string) { calls++ })

	require.True(t, h.Unsubscribe(tok))
	assert.False(t, h.Unsubscribe(tok), "second unsubscribe is a miss")

	h.Publish("x")
	assert.Zero(t, calls)
}

func TestHubUnsubscribeDuringPublish(t *testing.T) {
	h := NewHub[int]()
	var tok Token
	calls := 0
	tok = h.Subscribe(func(int) {
		calls++
		h.Unsubscribe(tok)
	})
	h.Subscribe(func(int) { calls++ })

	h.Publish(0)
	assert.Equal(t, 2, calls, "handlers snapshot taken before dispatch")

	h.Publish(0)
	assert.Equal(t, 3, calls)
}

func TestHubNilHandler(t *testing.T) {
	h := NewHub[int]()
	assert.Equal(t, Token(0), h.Subscribe(nil))
	assert.Zero(t, h.Len())
}

func TestHubCloneKeepsTokens(t *testing.T) {
	h := NewHub[int]()
	calls := 0
	tok := h.Subscribe(func(int) { calls++ })

	c := h.Clone()
	require.Equal(t, 1, c.Len())
	require.True(t, c.Unsubscribe(tok))

	h.Publish(0)
	c.Publish(0)
	assert.Equal(t, 1, calls, "original keeps its subscription")
}

func TestBusTopics(t *testing.T) {
	b := NewBus[string, int]()
	var a, z int
	ta := b.Subscribe("a", func(v int) { a += v })
	b.Subscribe("z", func(v int) { z += v })

	b.Publish("a", 2)
	b.Publish("z", 5)
	b.Publish("missing", 1)

	assert.Equal(t, 2, a)
	assert.Equal(t, 5, z)
	assert.Equal(t, 1, b.Len("a"))
	assert.Zero(t, b.Len("missing"))

	assert.True(t, b.Unsubscribe("a", ta))
	assert.False(t, b.Unsubscribe("missing", ta))
	b.Publish("a", 2)
	assert.Equal(t, 2, a)
}

func TestBusCloneIsIndependent(t *testing.T) {
	b := NewBus[string, int]()
	calls := 0
	b.Subscribe("t", func(int) { calls++ })

	c := b.Clone()
	c.Subscribe("t", func(int) { calls += 10 })

	b.Publish("t", 0)
	assert.Equal(t, 1, calls)
	c.Publish("t", 0)
	assert.Equal(t, 12, calls)

	b.Clear()
	assert.Zero(t, b.Len("t"))
	assert.Equal(t, 2, c.Len("t"))
}
