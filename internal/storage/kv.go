package storage

import (
	"errors"
	"sync"
)

var (
	// ErrQuotaExceeded is returned when a write would push the store past
	// its size limit. Nothing is written.
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("storage closed")
)

// KV is a string key-value store. Implementations are safe for concurrent use.
type KV interface {
	// Get returns the value for key and whether it was present.
	Get(key string) (string, bool, error)
	// Set stores value under key, replacing any previous value.
	Set(key, value string) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error
	// Close releases the store.
	Close() error
}

// MemoryKV keeps values in memory. A quota of zero means unlimited.
type MemoryKV struct {
	mu     sync.Mutex
	values map[string]string
	quota  int
	closed bool
}

// NewMemoryKV creates an empty in-memory store.
func NewMemoryKV(quota int) *MemoryKV {
	return &MemoryKV{
		values: make(map[string]string),
		quota:  quota,
	}
}

// Get implements KV.
func (m *MemoryKV) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", false, ErrClosed
	}
	v, ok := m.values[key]
	return v, ok, nil
}

// Set implements KV.
func (m *MemoryKV) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.quota > 0 {
		used := len(value)
		for k, v := range m.values {
			if k != key {
				used += len(v)
			}
		}
		if used > m.quota {
			return ErrQuotaExceeded
		}
	}
	m.values[key] = value
	return nil
}

// Delete implements KV.
func (m *MemoryKV) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.values, key)
	return nil
}

// Close implements KV.
func (m *MemoryKV) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

var _ KV = (*MemoryKV)(nil)
