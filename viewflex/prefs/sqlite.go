package prefs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/viewflex/dbopen"
	"github.com/hazyhaar/viewflex/watch"
)

const schema = `CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	rev        INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);`

// SQLiteStore keeps values in a kv table. Every write bumps a global
// revision, which Watch polls.
type SQLiteStore struct {
	db           *sql.DB
	pollInterval time.Duration
	logger       *slog.Logger
}

// SQLiteOption customises a SQLiteStore.
type SQLiteOption func(*SQLiteStore)

// WithPollInterval sets how often Watch checks for writes. Default: 500ms.
func WithPollInterval(d time.Duration) SQLiteOption {
	return func(s *SQLiteStore) { s.pollInterval = d }
}

// WithLogger sets the logger used by Watch.
func WithLogger(l *slog.Logger) SQLiteOption {
	return func(s *SQLiteStore) { s.logger = l }
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string, opts ...SQLiteOption) (*SQLiteStore, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(schema))
	if err != nil {
		return nil, fmt.Errorf("prefs: open sqlite: %w", err)
	}
	return newSQLiteStore(db, opts...), nil
}

// NewSQLiteStore uses an already opened database, creating the table if
// needed. Close closes db.
func NewSQLiteStore(db *sql.DB, opts ...SQLiteOption) (*SQLiteStore, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("prefs: create schema: %w", err)
	}
	return newSQLiteStore(db, opts...), nil
}

func newSQLiteStore(db *sql.DB, opts ...SQLiteOption) *SQLiteStore {
	s := &SQLiteStore{db: db, pollInterval: 500 * time.Millisecond, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("prefs: get %s: %w", key, err)
	}
	return json.RawMessage(v), true, nil
}

func (s *SQLiteStore) Update(ctx context.Context, key string, fn func(json.RawMessage, bool) (json.RawMessage, error)) error {
	return dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		var (
			old string
			ok  = true
		)
		err := tx.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&old)
		if errors.Is(err, sql.ErrNoRows) {
			ok = false
		} else if err != nil {
			return fmt.Errorf("prefs: read %s: %w", key, err)
		}

		v, err := fn(json.RawMessage(old), ok)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO kv (key, value, rev, updated_at)
			VALUES (?, ?, (SELECT COALESCE(MAX(rev), 0) + 1 FROM kv), ?)
			ON CONFLICT(key) DO UPDATE SET
				value = excluded.value, rev = excluded.rev, updated_at = excluded.updated_at`,
			key, string(v), time.Now().UnixMilli())
		if err != nil {
			return fmt.Errorf("prefs: write %s: %w", key, err)
		}
		return nil
	})
}

// Watch polls the revision column, which moves on writes from this process
// and from any other process sharing the file.
func (s *SQLiteStore) Watch(ctx context.Context, onChange func()) error {
	w := watch.New(s.db, watch.Options{
		Interval: s.pollInterval,
		Detector: watch.MaxColumnDetector("kv", "rev"),
		Seeded:   func(int64) { onChange() },
		Logger:   s.logger,
	})
	w.OnChange(ctx, func(int64) error {
		onChange()
		return nil
	})
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
