// ============================================================================
// bounce 事件中樞 - 同步觀察者
// ============================================================================
//
// Package: internal/event
// 文件: event.go
// 功能: 以訂閱憑證 (Token) 管理的同步事件分派
//
// 設計理念:
//   1. Hub[T] - 單一事件種類的有序觀察者列表
//   2. Bus[K, T] - 以主題鍵分組的多個 Hub
//   3. Subscribe 回傳 Token，取消訂閱只需 Token，不需比對 handler 本身
//
// 執行模型:
//   Publish 在呼叫者的 goroutine 上依訂閱順序同步呼叫 handler。
//   遊戲狀態只在 tick goroutine 上修改，因此事件也必須在該 goroutine 上送達。
//   Publish 前先複製 handler 列表，handler 內可以安全地訂閱或取消訂閱。
//
// ============================================================================

package event

import (
	"sync"
	"sync/atomic"
)

// Token 訂閱憑證，全域唯一
type Token uint64

var nextToken atomic.Uint64

func newToken() Token {
	return Token(nextToken.Add(1))
}

type entry[T any] struct {
	token   Token
	handler func(T)
}

// Hub 單一事件種類的觀察者列表
type Hub[T any] struct {
	mu      sync.RWMutex
	entries []entry[T]
}

// NewHub 建立空的 Hub
func NewHub[T any]() *Hub[T] {
	return &Hub[T]{}
}

// Subscribe 加入 handler，回傳可用於取消的 Token
func (h *Hub[T]) Subscribe(handler func(T)) Token {
	if handler == nil {
		return 0
	}
	tok := newToken()
	h.mu.Lock()
	h.entries = append(h.entries, entry[T]{token: tok, handler: handler})
	h.mu.Unlock()
	return tok
}

// Unsubscribe 移除 Token 對應的 handler；不存在時回傳 false
func (h *Hub[T]) Unsubscribe(tok Token) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, e := range h.entries {
		if e.token == tok {
			h.entries = append(h.entries[:i:i], h.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Publish 依訂閱順序同步呼叫所有 handler
func (h *Hub[T]) Publish(v T) {
	h.mu.RLock()
	handlers := make([]entry[T], len(h.entries))
	copy(handlers, h.entries)
	h.mu.RUnlock()

	for _, e := range handlers {
		e.handler(v)
	}
}

// Len 目前的訂閱數
func (h *Hub[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// Clear 移除所有訂閱
func (h *Hub[T]) Clear() {
	h.mu.Lock()
	h.entries = nil
	h.mu.Unlock()
}

// Clone 複製訂閱列表（保留原 Token）
func (h *Hub[T]) Clone() *Hub[T] {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c := &Hub[T]{entries: make([]entry[T], len(h.entries))}
	copy(c.entries, h.entries)
	return c
}

// ============================================================================
// Bus：以主題分組
// ============================================================================

// Bus 以主題鍵分組的事件中樞
type Bus[K comparable, T any] struct {
	mu   sync.RWMutex
	hubs map[K]*Hub[T]
}

// NewBus 建立空的 Bus
func NewBus[K comparable, T any]() *Bus[K, T] {
	return &Bus[K, T]{hubs: make(map[K]*Hub[T])}
}

func (b *Bus[K, T]) hub(topic K, create bool) *Hub[T] {
	if !create {
		b.mu.RLock()
		defer b.mu.RUnlock()
		return b.hubs[topic]
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	h, ok := b.hubs[topic]
	if !ok {
		h = NewHub[T]()
		b.hubs[topic] = h
	}
	return h
}

// Subscribe 訂閱主題
func (b *Bus[K, T]) Subscribe(topic K, handler func(T)) Token {
	return b.hub(topic, true).Subscribe(handler)
}

// Unsubscribe 取消主題上的訂閱
func (b *Bus[K, T]) Unsubscribe(topic K, tok Token) bool {
	h := b.hub(topic, false)
	if h == nil {
		return false
	}
	return h.Unsubscribe(tok)
}

// Publish 發佈到主題；沒有訂閱者時不做任何事
func (b *Bus[K, T]) Publish(topic K, v T) {
	if h := b.hub(topic, false); h != nil {
		h.Publish(v)
	}
}

// Len 主題上的訂閱數
func (b *Bus[K, T]) Len(topic K) int {
	h := b.hub(topic, false)
	if h == nil {
		return 0
	}
	return h.Len()
}

// Clone 複製所有主題的訂閱
func (b *Bus[K, T]) Clone() *Bus[K, T] {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c := &Bus[K, T]{hubs: make(map[K]*Hub[T], len(b.hubs))}
	for k, h := range b.hubs {
		c.hubs[k] = h.Clone()
	}
	return c
}

// Clear 移除所有主題的訂閱
func (b *Bus[K, T]) Clear() {
	b.mu.Lock()
	b.hubs = make(map[K]*Hub[T])
	b.mu.Unlock()
}
