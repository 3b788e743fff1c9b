// Package watch polls a SQLite database for a version token and runs an
// action when it moves. viewflex uses it to notice preference writes made by
// another process, such as `viewflex width set` while the daemon runs.
//
//	w := watch.New(db, watch.Options{Detector: watch.MaxColumnDetector("kv", "rev")})
//	go w.OnChange(ctx, func(int64) error { return reload() })
package watch

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// Detector reads a version token. Two different values mean a change.
type Detector func(ctx context.Context, db *sql.DB) (int64, error)

// Options tunes a Watcher.
type Options struct {
	// Interval between polls. Default: 500ms.
	Interval time.Duration
	// Debounce waits for this quiet period after a change before running the
	// action. 0 runs it on the poll that saw the change.
	Debounce time.Duration
	// Detector defaults to PragmaDataVersion.
	Detector Detector
	// Seeded, when set, runs once the first poll has stored its version.
	// Changes after that point are reported to the action.
	Seeded func(version int64)
	Logger *slog.Logger
}

// Watcher runs an action whenever the detected version changes.
type Watcher struct {
	db      *sql.DB
	opts    Options
	version atomic.Int64
	changes atomic.Int64
}

// New creates a Watcher. Nothing runs until OnChange.
func New(db *sql.DB, opts Options) *Watcher {
	if opts.Interval <= 0 {
		opts.Interval = 500 * time.Millisecond
	}
	if opts.Detector == nil {
		opts.Detector = PragmaDataVersion
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Watcher{db: db, opts: opts}
}

// Version is the last version whose action succeeded.
func (w *Watcher) Version() int64 { return w.version.Load() }

// Changes counts the changes seen so far.
func (w *Watcher) Changes() int64 { return w.changes.Load() }

// OnChange blocks until ctx is done. The first poll only seeds the version.
// When action fails the version is kept, so the next poll retries it.
func (w *Watcher) OnChange(ctx context.Context, action func(version int64) error) {
	log := w.opts.Logger
	if v, err := w.opts.Detector(ctx, w.db); err == nil {
		w.version.Store(v)
	} else {
		log.Warn("watch: initial version check failed", "error", err)
	}
	if w.opts.Seeded != nil {
		w.opts.Seeded(w.version.Load())
	}

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	var debounce <-chan time.Time
	var timer *time.Timer
	pending := int64(-1)

	fire := func() {
		if err := action(pending); err != nil {
			log.Warn("watch: action failed", "version", pending, "error", err)
		} else {
			w.version.Store(pending)
		}
		pending = -1
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case <-ticker.C:
			cur, err := w.opts.Detector(ctx, w.db)
			if err != nil {
				if ctx.Err() == nil {
					log.Warn("watch: version check failed", "error", err)
				}
				continue
			}
			if cur == w.version.Load() || cur == pending {
				continue
			}
			w.changes.Add(1)
			pending = cur
			if w.opts.Debounce <= 0 {
				fire()
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.opts.Debounce)
			debounce = timer.C

		case <-debounce:
			debounce = nil
			if pending >= 0 {
				fire()
			}
		}
	}
}

// PragmaDataVersion changes when another connection commits to the database
// file. Writes made through the polling connection itself are not seen.
func PragmaDataVersion(ctx context.Context, db *sql.DB) (int64, error) {
	var v int64
	err := db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&v)
	return v, err
}

// MaxColumnDetector polls MAX(column) of table. With a column bumped on every
// write it sees changes from any connection, including the polling one.
func MaxColumnDetector(table, column string) Detector {
	q := "SELECT COALESCE(MAX(" + quoteIdent(column) + "), 0) FROM " + quoteIdent(table)
	return func(ctx context.Context, db *sql.DB) (int64, error) {
		var v int64
		err := db.QueryRowContext(ctx, q).Scan(&v)
		return v, err
	}
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
