package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mistakeknot/concord/internal/storage"
)

//go:embed schema.sql
var schema string

// Compile-time interface check.
var _ storage.Store = (*Store)(nil)

// Store is the SQLite-backed coordination store. The only synchronization
// primitive it relies on is the conditional single-statement write: an
// UPDATE whose WHERE clause carries the preconditions, or an INSERT under
// a uniqueness constraint. Affected-row counts decide success.
type Store struct {
	db      dbHandle
	now     func() time.Time
	lockTTL time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithLockDuration sets the edit-lock lease length (default 15 minutes).
func WithLockDuration(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.lockTTL = d
		}
	}
}

// WithClock overrides the time source. Test hook.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New opens (creating if necessary) a file-backed store. WAL mode and a
// single write connection keep SQLite's single-writer model honest under
// concurrent request handlers.
func New(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("db path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("wal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("busy timeout: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return newStore(db, opts...), nil
}

// NewInMemory opens a ":memory:" store for single-connection tests.
func NewInMemory(opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return newStore(db, opts...), nil
}

func newStore(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:      &queryLogger{inner: db},
		now:     func() time.Time { return time.Now().UTC() },
		lockTTL: 15 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Ping reports whether the store can execute a statement.
func (s *Store) Ping(ctx context.Context) error {
	row := s.db.QueryRowContext(ctx, "SELECT 1")
	var one int
	if err := row.Scan(&one); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const timeFormat = time.RFC3339Nano

func formatTime(t time.Time) string { return t.UTC().Format(timeFormat) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeFormat, s)
	return t
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}
