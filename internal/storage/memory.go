package storage

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type memoryData struct {
	mu     sync.RWMutex
	values map[string][]byte
	subs   *registry
}

// Memory is an in-process Repository. Handles created with Attach share the
// same values and see each other's changes, like two tabs of one browser.
type Memory struct {
	data   *memoryData
	origin string
}

func NewMemory() *Memory {
	return &Memory{
		data: &memoryData{
			values: map[string][]byte{},
			subs:   newRegistry(),
		},
		origin: uuid.NewString(),
	}
}

func (m *Memory) Attach() *Memory {
	return &Memory{
		data:   m.data,
		origin: uuid.NewString(),
	}
}

func (m *Memory) Origin() string {
	return m.origin
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.data.mu.RLock()
	defer m.data.mu.RUnlock()

	v, ok := m.data.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.data.mu.Lock()
	m.data.values[key] = append([]byte(nil), value...)
	m.data.mu.Unlock()

	m.data.subs.dispatch(Change{Key: key, Origin: m.origin})
	return nil
}

func (m *Memory) Clear(_ context.Context, key string) error {
	m.data.mu.Lock()
	_, existed := m.data.values[key]
	delete(m.data.values, key)
	m.data.mu.Unlock()

	if existed {
		m.data.subs.dispatch(Change{Key: key, Origin: m.origin})
	}
	return nil
}

func (m *Memory) Subscribe(key string, fn func(Change)) func() {
	return m.data.subs.add(key, m.origin, fn)
}
