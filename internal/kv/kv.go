// Package kv is the key-value persistence port used by the session store.
//
// Three backends are provided: an in-memory map for tests, a JSON file guarded by an
// advisory file lock, and an SQLite table. All of them are safe for concurrent use.
package kv

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
)

var (
	ErrNotFound       = errors.New("kv: key not found")
	ErrClosed         = errors.New("kv: store closed")
	ErrUnknownBackend = errors.New("kv: unknown backend")
)

const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSqlite = "sqlite"
)

// Store is the narrow surface the session layer needs.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Locker is implemented by stores that can serialize a critical section across
// every holder of the same store, including other processes when the backend is on disk.
type Locker interface {
	Lock(ctx context.Context) (unlock func() error, err error)
}

// Open returns the store for the named backend rooted at dir.
func Open(backend string, dir string) (Store, error) {
	switch backend {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendFile, "":
		return NewFileStore(filepath.Join(dir, "session.json"))
	case BackendSqlite:
		return NewSqliteStore(WithPath(filepath.Join(dir, "session.db")))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}
