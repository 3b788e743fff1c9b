// Package viewflex widens the conversation column of AI chat pages. A
// Session keeps one page styled; a Daemon owns the browser, the preference
// store and the sessions, and serves the control API and MCP tools.
package viewflex

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/viewflex/idgen"
	"github.com/hazyhaar/viewflex/viewflex/dom"
	"github.com/hazyhaar/viewflex/viewflex/engine"
	"github.com/hazyhaar/viewflex/viewflex/internal/report"
	"github.com/hazyhaar/viewflex/viewflex/messaging"
	"github.com/hazyhaar/viewflex/viewflex/prefs"
	"github.com/hazyhaar/viewflex/viewflex/site"
	"github.com/hazyhaar/viewflex/viewflex/targets"
)

// SessionConfig configures a Session.
type SessionConfig struct {
	// ID defaults to a fresh "ses_" id.
	ID       string
	Document dom.Document
	// Bridge supplies the stored width and live store changes. Nil keeps
	// the default width.
	Bridge *prefs.Bridge
	// Descriptors default to targets.Builtin().
	Descriptors []engine.Descriptor
	// Reporter receives status, width and lifecycle events. Optional.
	Reporter  report.Reporter
	QueueSize int
	InboxSize int
	Logger    *slog.Logger
}

// SessionInfo is the externally visible state of a session.
type SessionInfo struct {
	ID            string    `json:"id"`
	URL           string    `json:"url"`
	Site          site.Site `json:"site"`
	State         string    `json:"state"`
	Modifications int64     `json:"modifications"`
	Width         int       `json:"width"`
}

// Session keeps one document widened: it runs the watcher, loads the stored
// width, follows store changes and answers updateWidth messages.
type Session struct {
	id       string
	site     site.Site
	doc      dom.Document
	bridge   *prefs.Bridge
	prefs    *engine.Preferences
	watcher  *engine.Watcher
	inbox    *messaging.Local
	reporter report.Reporter
	events   chan report.Event
	logger   *slog.Logger
}

// NewSession builds a session for cfg.Document. The site is detected from
// the document location.
func NewSession(cfg SessionConfig) *Session {
	if cfg.ID == "" {
		cfg.ID = idgen.Session()
	}
	if cfg.Descriptors == nil {
		cfg.Descriptors = targets.Builtin()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Session{
		id:       cfg.ID,
		site:     site.Detect(cfg.Document.Location()),
		doc:      cfg.Document,
		bridge:   cfg.Bridge,
		inbox:    messaging.NewLocal(cfg.InboxSize),
		reporter: cfg.Reporter,
		events:   make(chan report.Event, 64),
	}
	s.logger = cfg.Logger.With("session", s.id, "site", s.site)
	s.prefs = engine.NewPreferences(s.site)

	reg := engine.NewRegistry(s.site, cfg.Descriptors, s.logger)
	scanner := engine.NewScanner(reg, s.prefs, nil, s.logger)
	s.watcher = engine.NewWatcher(engine.WatcherConfig{
		Document:  s.doc,
		Scanner:   scanner,
		OnStatus:  s.onStatus,
		QueueSize: cfg.QueueSize,
		Logger:    s.logger,
	})
	return s
}

func (s *Session) ID() string                       { return s.id }
func (s *Session) Site() site.Site                  { return s.site }
func (s *Session) Document() dom.Document           { return s.doc }
func (s *Session) Watcher() *engine.Watcher         { return s.watcher }
func (s *Session) Inbox() *messaging.Local          { return s.inbox }
func (s *Session) Width() int                       { return s.prefs.Width() }
func (s *Session) Preferences() *engine.Preferences { return s.prefs }

// Deliver hands msg to the session without blocking.
func (s *Session) Deliver(ctx context.Context, msg messaging.Message) bool {
	return s.inbox.TrySend(ctx, msg)
}

// Info snapshots the session state.
func (s *Session) Info() SessionInfo {
	st := s.watcher.Status()
	return SessionInfo{
		ID:            s.id,
		URL:           s.doc.Location(),
		Site:          s.site,
		State:         s.watcher.State().String(),
		Modifications: st.Modifications,
		Width:         st.Width,
	}
}

// Run blocks until ctx is done or the watcher cannot start. The inbox is
// closed on return.
func (s *Session) Run(ctx context.Context) error {
	defer s.inbox.Close()

	s.report(context.Background(), report.Event{Kind: report.KindStarted})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.watcher.Run(gctx) })
	g.Go(func() error { s.loadWidth(gctx); return nil })
	g.Go(func() error { s.readInbox(gctx); return nil })
	g.Go(func() error { s.pumpEvents(gctx); return nil })
	if s.bridge != nil {
		g.Go(func() error {
			err := s.bridge.Watch(gctx, s.site, func(w int) { s.setWidth(w, "store") })
			if err != nil && gctx.Err() == nil {
				s.logger.Warn("viewflex: store watch stopped", "error", err)
			}
			return nil
		})
	}
	err := g.Wait()

	ev := report.Event{Kind: report.KindStopped}
	if err != nil {
		ev.Error = err.Error()
		s.logger.Error("viewflex: session failed", "error", err)
	}
	rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.report(rctx, ev)
	return err
}

// loadWidth applies the stored width once. A failing store leaves the
// default in place; a load that outlives the session is discarded.
func (s *Session) loadWidth(ctx context.Context) {
	if s.bridge == nil {
		return
	}
	w, stored, err := s.bridge.Load(ctx, s.site)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		s.logger.Warn("viewflex: load width failed, keeping default", "error", err)
		return
	}
	if stored {
		s.setWidth(w, "load")
	}
}

func (s *Session) readInbox(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-s.inbox.Messages():
			if !ok {
				return
			}
			s.handle(msg)
		}
	}
}

func (s *Session) handle(msg messaging.Message) {
	switch msg.Action {
	case messaging.ActionUpdateWidth:
		if err := prefs.Validate(msg.Width); err != nil {
			s.logger.Debug("viewflex: invalid width in message", "width", msg.Width)
			return
		}
		s.setWidth(msg.Width, "message")
	default:
		s.logger.Debug("viewflex: unknown message ignored", "action", msg.Action)
	}
}

// setWidth stores w and asks the watcher for a rescan.
func (s *Session) setWidth(w int, source string) {
	s.prefs.SetWidth(w)
	s.watcher.RequestRescan()
	s.logger.Info("viewflex: width updated", "width", w, "source", source)
	s.publish(report.Event{Kind: report.KindWidth, Width: w, Status: source})
}

func (s *Session) onStatus(st engine.Status) {
	s.publish(report.Event{
		Kind:          report.KindStatus,
		Active:        st.Active,
		Modifications: st.Modifications,
		Width:         st.Width,
		Status:        st.Line(),
	})
}

// publish queues ev for the reporter. It never blocks the caller, which
// may be the watcher loop; events are dropped when the queue is full.
func (s *Session) publish(ev report.Event) {
	if s.reporter == nil {
		return
	}
	select {
	case s.events <- ev:
	default:
		s.logger.Debug("viewflex: report queue full, event dropped", "kind", ev.Kind)
	}
}

func (s *Session) pumpEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.events:
			s.report(ctx, ev)
		}
	}
}

func (s *Session) report(ctx context.Context, ev report.Event) {
	if s.reporter == nil {
		return
	}
	ev.ID = idgen.Event()
	ev.SessionID = s.id
	ev.URL = s.doc.Location()
	ev.Site = s.site.String()
	if err := s.reporter.Report(ctx, ev); err != nil {
		s.logger.Warn("viewflex: report failed", "kind", ev.Kind, "error", err)
	}
}
