package testing

import (
	"errors"
	"sync"
)

// ErrStoreFailure is returned by [MemoryKV] when failures are switched on.
var ErrStoreFailure = errors.New("store failure")

// MemoryKV is an in-memory key/value store satisfying repositories.KVStore.
type MemoryKV struct {
	mu         sync.Mutex
	data       map[string]string
	writes     int
	FailReads  bool
	FailWrites bool
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string]string)}
}

func (m *MemoryKV) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailReads {
		return "", false, ErrStoreFailure
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryKV) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites {
		return ErrStoreFailure
	}
	m.data[key] = value
	m.writes++
	return nil
}

func (m *MemoryKV) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites {
		return ErrStoreFailure
	}
	delete(m.data, key)
	return nil
}

// Writes counts successful Set calls.
func (m *MemoryKV) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}
