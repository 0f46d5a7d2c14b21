package memstore

import (
	"context"
	"sync"

	"github.com/comptamaroc/webclient/storage"
)

var _ storage.Store = (*MemStore)(nil)

// MemStore keeps values in process memory.
type MemStore struct {
	values map[string]string
	lock   sync.RWMutex
}

func New() *MemStore {
	return &MemStore{
		values: make(map[string]string),
	}
}

func (m *MemStore) Get(_ context.Context, key string) (string, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

func (m *MemStore) Set(_ context.Context, key, value string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemStore) Remove(_ context.Context, key string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.values, key)
	return nil
}

// Len reports how many keys are stored.
func (m *MemStore) Len() int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return len(m.values)
}

// Snapshot returns a copy of the stored values.
func (m *MemStore) Snapshot() map[string]string {
	m.lock.RLock()
	defer m.lock.RUnlock()
	out := make(map[string]string, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}
