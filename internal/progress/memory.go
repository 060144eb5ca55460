package progress

import (
	"slices"
	"sync"
)

// Memory keeps values in a map.
type Memory struct {
	mu     sync.RWMutex
	values map[string]int
}

// NewMemory 建立空的記憶體儲存
func NewMemory() *Memory {
	return &Memory{values: make(map[string]int)}
}

func (m *Memory) GetInt(key string, def int) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.values[key]; ok {
		return v, nil
	}
	return def, nil
}

func (m *Memory) SetInt(key string, value int) error {
	m.mu.Lock()
	m.values[key] = value
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	delete(m.values, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Keys() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys, nil
}

func (m *Memory) Close() error { return nil }
