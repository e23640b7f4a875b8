package callers

import (
	"context"
	"sync"
)

// MemoryStorage keeps callers for the process lifetime only.
type MemoryStorage struct {
	mux     sync.Mutex
	callers map[string]*Caller
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{callers: make(map[string]*Caller)}
}

func (m *MemoryStorage) Load(ctx context.Context) (map[string]*Caller, error) {
	m.mux.Lock()
	defer m.mux.Unlock()

	out := make(map[string]*Caller, len(m.callers))
	for id, c := range m.callers {
		out[id] = c.Clone()
	}
	return out, nil
}

func (m *MemoryStorage) Save(ctx context.Context, callers map[string]*Caller) error {
	m.mux.Lock()
	defer m.mux.Unlock()

	m.callers = make(map[string]*Caller, len(callers))
	for id, c := range callers {
		m.callers[id] = c.Clone()
	}
	return nil
}
