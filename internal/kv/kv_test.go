package kv

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()

	fileStore, err := NewFileStore(filepath.Join(t.TempDir(), "nested", "session.json"))
	require.NoError(t, err)

	sqliteStore, err := NewSqliteStore(WithPath(filepath.Join(t.TempDir(), "session.db")))
	require.NoError(t, err)

	stores := map[string]Store{
		BackendMemory: NewMemoryStore(),
		BackendFile:   fileStore,
		BackendSqlite: sqliteStore,
	}
	t.Cleanup(func() {
		for _, s := range stores {
			s.Close()
		}
	})
	return stores
}

func TestStore_SetGetDelete(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()

			_, err := store.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, store.Set(ctx, "docbox.session", []byte(`{"a":1}`)))
			got, err := store.Get(ctx, "docbox.session")
			require.NoError(t, err)
			assert.Equal(t, `{"a":1}`, string(got))

			require.NoError(t, store.Set(ctx, "docbox.session", []byte(`{"a":2}`)))
			got, err = store.Get(ctx, "docbox.session")
			require.NoError(t, err)
			assert.Equal(t, `{"a":2}`, string(got))

			require.NoError(t, store.Delete(ctx, "docbox.session"))
			_, err = store.Get(ctx, "docbox.session")
			assert.ErrorIs(t, err, ErrNotFound)

			// deleting an absent key is not an error
			assert.NoError(t, store.Delete(ctx, "docbox.session"))
		})
	}
}

func TestFileStore_SharedAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")

	a, err := NewFileStore(path)
	require.NoError(t, err)
	b, err := NewFileStore(path)
	require.NoError(t, err)

	require.NoError(t, a.Set(t.Context(), "k", []byte("v1")))

	got, err := b.Get(t.Context(), "k")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(got))
}

func TestFileStore_LockExcludesOtherInstance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")

	a, err := NewFileStore(path)
	require.NoError(t, err)
	b, err := NewFileStore(path)
	require.NoError(t, err)

	unlock, err := a.Lock(t.Context())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(t.Context(), 150*time.Millisecond)
	defer cancel()
	_, err = b.Lock(ctx)
	assert.Error(t, err, "second holder must wait while the lock is taken")

	require.NoError(t, unlock())

	unlockB, err := b.Lock(t.Context())
	require.NoError(t, err)
	assert.NoError(t, unlockB())
}

func TestMemoryStore_LockIsExclusive(t *testing.T) {
	m := NewMemoryStore()

	unlock, err := m.Lock(t.Context())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	_, err = m.Lock(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, unlock())

	unlock2, err := m.Lock(t.Context())
	require.NoError(t, err)
	assert.NoError(t, unlock2())
}

func TestSqliteStore_Keys(t *testing.T) {
	s, err := NewSqliteStore()
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Set(t.Context(), "b", []byte("2")))
	require.NoError(t, s.Set(t.Context(), "a", []byte("1")))

	keys, err := s.Keys(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open("redis", t.TempDir())
	assert.ErrorIs(t, err, ErrUnknownBackend)
}
