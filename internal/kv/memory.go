package kv

import (
	"context"
	"sync"
)

// MemoryStore keeps values in a map. Lock only serializes holders inside this process.
type MemoryStore struct {
	mu     sync.RWMutex
	lockMu sync.Mutex
	values map[string][]byte
	closed bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string][]byte)}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	v, ok := m.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.values[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	delete(m.values, key)
	return nil
}

func (m *MemoryStore) Lock(ctx context.Context) (func() error, error) {
	done := make(chan struct{})
	go func() {
		m.lockMu.Lock()
		close(done)
	}()

	select {
	case <-done:
		return func() error {
			m.lockMu.Unlock()
			return nil
		}, nil
	case <-ctx.Done():
		// release the lock once the pending acquire goes through
		go func() {
			<-done
			m.lockMu.Unlock()
		}()
		return nil, ctx.Err()
	}
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.values = make(map[string][]byte)
	return nil
}

var (
	_ Store  = (*MemoryStore)(nil)
	_ Locker = (*MemoryStore)(nil)
)
