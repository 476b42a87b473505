package store

import (
	"context"
	"sync"
)

// Memory is the in-process tier: last-resort reads when every backend
// is down. It also satisfies Backend, which keeps tests honest.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) set(key string, val []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(val))
	copy(cp, val)
	m.data[key] = cp
}

func (m *Memory) get(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.get(key)
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (m *Memory) Put(_ context.Context, key string, val []byte) error {
	m.set(key, val)
	return nil
}

func (m *Memory) Name() string { return "memory" }
func (m *Memory) Close() error { return nil }
