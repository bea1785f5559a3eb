package kv

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofrs/flock"
	"github.com/openmined/docbox/internal/utils"
)

const lockRetryDelay = 50 * time.Millisecond

// FileStore persists every key into a single JSON document.
// The file is re-read on each Get so writes from other processes are observed.
type FileStore struct {
	path  string
	flock *flock.Flock
	mu    sync.Mutex
}

func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("kv: file path is empty")
	}

	resolved, err := utils.ResolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("kv: resolve %q: %w", path, err)
	}

	if err := utils.EnsureParent(resolved); err != nil {
		return nil, fmt.Errorf("kv: ensure parent of %q: %w", resolved, err)
	}

	return &FileStore{
		path:  resolved,
		flock: flock.New(resolved + ".lock"),
	}, nil
}

// Path returns the location of the backing file.
func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.read()
	if err != nil {
		return nil, err
	}

	v, ok := values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (f *FileStore) Set(_ context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.read()
	if err != nil {
		return err
	}
	values[key] = value
	return f.write(values)
}

func (f *FileStore) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.read()
	if err != nil {
		return err
	}
	if _, ok := values[key]; !ok {
		return nil
	}
	delete(values, key)
	return f.write(values)
}

// Lock takes the advisory lock next to the store file. It blocks until the lock is
// acquired or ctx is done.
func (f *FileStore) Lock(ctx context.Context) (func() error, error) {
	locked, err := f.flock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("kv: lock %q: %w", f.flock.Path(), err)
	}
	if !locked {
		return nil, fmt.Errorf("kv: lock %q: not acquired", f.flock.Path())
	}
	return f.flock.Unlock, nil
}

func (f *FileStore) Close() error {
	if f.flock.Locked() {
		return f.flock.Unlock()
	}
	return nil
}

func (f *FileStore) read() (map[string][]byte, error) {
	values := make(map[string][]byte)

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return values, nil
	} else if err != nil {
		return nil, fmt.Errorf("kv: read %q: %w", f.path, err)
	}

	if len(data) == 0 {
		return values, nil
	}

	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("kv: decode %q: %w", f.path, err)
	}
	return values, nil
}

func (f *FileStore) write(values map[string][]byte) error {
	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("kv: encode: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("kv: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("kv: write temp file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("kv: chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("kv: close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("kv: replace %q: %w", f.path, err)
	}
	return nil
}

var (
	_ Store  = (*FileStore)(nil)
	_ Locker = (*FileStore)(nil)
)
