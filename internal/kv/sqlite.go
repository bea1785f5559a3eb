package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/flock"
	"github.com/jmoiron/sqlx"
	"github.com/openmined/docbox/internal/utils"
)

const sqlitePragma = `
PRAGMA journal_mode=WAL;
PRAGMA busy_timeout=5000;
PRAGMA temp_store=MEMORY;
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv (
    key TEXT PRIMARY KEY,
    value BLOB NOT NULL,
    updated_at TEXT NOT NULL -- RFC3339
);
`

type sqliteConfig struct {
	path    string
	pragmas string
}

// SqliteOption configures NewSqliteStore.
type SqliteOption func(*sqliteConfig)

// WithPath sets the database file. ":memory:" keeps everything in memory.
func WithPath(path string) SqliteOption {
	return func(c *sqliteConfig) {
		c.path = path
	}
}

// WithPragmas replaces the default pragmas.
func WithPragmas(pragmas string) SqliteOption {
	return func(c *sqliteConfig) {
		c.pragmas = pragmas
	}
}

type kvRow struct {
	Key       string `db:"key"`
	Value     []byte `db:"value"`
	UpdatedAt string `db:"updated_at"`
}

// SqliteStore keeps values in a single table of an SQLite database.
type SqliteStore struct {
	db    *sqlx.DB
	path  string
	flock *flock.Flock
}

func NewSqliteStore(opts ...SqliteOption) (*SqliteStore, error) {
	cfg := &sqliteConfig{
		path:    ":memory:",
		pragmas: sqlitePragma,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	dsn := ":memory:"
	var lock *flock.Flock
	if cfg.path != ":memory:" {
		if err := utils.EnsureParent(cfg.path); err != nil {
			return nil, fmt.Errorf("kv: ensure parent directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_txlock=immediate&mode=rwc", cfg.path)
		lock = flock.New(cfg.path + ".lock")
	}

	slog.Debug("kv sqlite", "driver", driverID, "path", cfg.path)
	db, err := sqlx.Connect(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("kv: connect: %w", err)
	}
	// a single connection keeps ":memory:" databases shared across calls
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(cfg.pragmas); err != nil {
		db.Close()
		return nil, fmt.Errorf("kv: set pragmas: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("kv: init schema: %w", err)
	}

	return &SqliteStore{db: db, path: cfg.path, flock: lock}, nil
}

func (s *SqliteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var row kvRow
	err := s.db.GetContext(ctx, &row, "SELECT key, value, updated_at FROM kv WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("kv: get %q: %w", key, err)
	}
	return row.Value, nil
}

func (s *SqliteStore) Set(ctx context.Context, key string, value []byte) error {
	row := kvRow{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	}

	query := `INSERT OR REPLACE INTO kv (key, value, updated_at) VALUES (:key, :value, :updated_at)`
	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("kv: set %q: %w", key, err)
	}
	return nil
}

func (s *SqliteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("kv: delete %q: %w", key, err)
	}
	return nil
}

// Keys lists every stored key, sorted.
func (s *SqliteStore) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	if err := s.db.SelectContext(ctx, &keys, "SELECT key FROM kv ORDER BY key"); err != nil {
		return nil, fmt.Errorf("kv: list keys: %w", err)
	}
	return keys, nil
}

// Lock serializes holders of the same database file. In-memory databases are
// private to the process, so the returned unlock is a no-op.
func (s *SqliteStore) Lock(ctx context.Context) (func() error, error) {
	if s.flock == nil {
		return func() error { return nil }, nil
	}

	locked, err := s.flock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("kv: lock %q: %w", s.flock.Path(), err)
	}
	if !locked {
		return nil, fmt.Errorf("kv: lock %q: not acquired", s.flock.Path())
	}
	return s.flock.Unlock, nil
}

func (s *SqliteStore) Close() error {
	if err := s.db.Close(); err != nil {
		slog.Error("kv sqlite close", "path", s.path, "error", err)
		return err
	}
	return nil
}

var (
	_ Store  = (*SqliteStore)(nil)
	_ Locker = (*SqliteStore)(nil)
)
