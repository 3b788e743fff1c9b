package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/hazyhaar/viewflex/viewflex/dom"
)

// State of a Watcher.
type State int32

const (
	Inactive State = iota
	Active
	Stopped
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Stopped:
		return "stopped"
	default:
		return "inactive"
	}
}

// StatusElementID is the id of the optional on-page diagnostic element.
const StatusElementID = "log"

// Status is the diagnostic state refreshed after work that changed the page.
type Status struct {
	Active        bool
	Modifications int64
	Width         int
}

// Line is the text written to the on-page diagnostic element.
func (s Status) Line() string {
	state := "disconnected"
	if s.Active {
		state = "active"
	}
	return fmt.Sprintf("observer status: %s; total modifications: %d", state, s.Modifications)
}

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	Document dom.Document
	Scanner  *Scanner
	// OnStatus is called from the watcher goroutine after each status refresh.
	OnStatus func(Status)
	// QueueSize bounds the batches waiting for the loop. Default: 256.
	QueueSize int
	Logger    *slog.Logger
}

type queued struct {
	batch dom.Batch
	sync  chan struct{}
}

// Watcher keeps a document styled: once the document is ready it subscribes
// to insertions under the body, runs one full scan and then processes every
// batch of inserted nodes and every rescan request, one at a time, on a
// single goroutine.
type Watcher struct {
	doc      dom.Document
	scanner  *Scanner
	onStatus func(Status)
	logger   *slog.Logger

	queue  chan queued
	rescan chan struct{}
	state  atomic.Int32
}

// NewWatcher creates an inactive Watcher.
func NewWatcher(cfg WatcherConfig) *Watcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	return &Watcher{
		doc:      cfg.Document,
		scanner:  cfg.Scanner,
		onStatus: cfg.OnStatus,
		logger:   cfg.Logger,
		queue:    make(chan queued, cfg.QueueSize),
		rescan:   make(chan struct{}, 1),
	}
}

// State returns the current state.
func (w *Watcher) State() State { return State(w.state.Load()) }

// Run activates the watcher and processes work until ctx is done. It returns
// nil on cancellation and an error only when the subscription cannot be made.
func (w *Watcher) Run(ctx context.Context) error {
	select {
	case <-w.doc.Ready():
	case <-ctx.Done():
		w.state.Store(int32(Stopped))
		return nil
	}

	body := w.doc.Body()
	if body == nil {
		return fmt.Errorf("engine: document has no body")
	}
	sub, err := w.doc.Observe(ctx, body, func(b dom.Batch) { w.enqueue(ctx, b) })
	if err != nil {
		return fmt.Errorf("engine: observe body: %w", err)
	}
	defer sub.Close()

	w.state.Store(int32(Active))
	n := w.scanner.FullScan(w.doc)
	w.logger.Info("engine: watcher active",
		"site", w.scanner.prefs.Site(), "location", w.doc.Location(), "applied", n)
	w.refresh()

	w.loop(ctx)

	w.state.Store(int32(Stopped))
	w.refresh()
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case q := <-w.queue:
			if q.sync != nil {
				select {
				case <-w.rescan:
					if w.scanner.Rescan(w.doc) > 0 {
						w.refresh()
					}
				default:
				}
				close(q.sync)
				continue
			}
			if w.handleBatch(q.batch) > 0 {
				w.refresh()
			}

		case <-w.rescan:
			if w.scanner.Rescan(w.doc) > 0 {
				w.refresh()
			}
		}
	}
}

// handleBatch styles every added node and the targets nested below it.
func (w *Watcher) handleBatch(b dom.Batch) int {
	applied := 0
	for _, rec := range b {
		for _, node := range rec.Added {
			applied += w.scanner.ApplySubtree(node)
		}
	}
	return applied
}

// enqueue is the subscription callback. It blocks when the queue is full so
// no batch is dropped.
func (w *Watcher) enqueue(ctx context.Context, b dom.Batch) {
	if len(b) == 0 {
		return
	}
	select {
	case w.queue <- queued{batch: b}:
	case <-ctx.Done():
	}
}

// RequestRescan asks the loop for a full rescan with the current
// preferences. Requests made while one is pending coalesce.
func (w *Watcher) RequestRescan() {
	select {
	case w.rescan <- struct{}{}:
	default:
	}
}

// Sync waits until every batch queued and every rescan requested before the
// call has been processed.
func (w *Watcher) Sync(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case w.queue <- queued{sync: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns the current diagnostic state.
func (w *Watcher) Status() Status {
	return Status{
		Active:        w.State() == Active,
		Modifications: w.scanner.counter.Load(),
		Width:         w.scanner.prefs.Width(),
	}
}

// refresh rewrites the diagnostic element, when the page has one, and
// notifies OnStatus.
func (w *Watcher) refresh() {
	st := w.Status()
	if el, ok := w.doc.ElementByID(StatusElementID); ok {
		if err := el.SetTextContent(st.Line()); err != nil {
			w.logger.Debug("engine: status element update failed", "error", err)
		}
	}
	if w.onStatus != nil {
		w.onStatus(st)
	}
}
