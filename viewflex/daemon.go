package viewflex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/viewflex/viewflex/dom"
	"github.com/hazyhaar/viewflex/viewflex/engine"
	"github.com/hazyhaar/viewflex/viewflex/internal/browser"
	"github.com/hazyhaar/viewflex/viewflex/internal/cdpdom"
	"github.com/hazyhaar/viewflex/viewflex/internal/config"
	"github.com/hazyhaar/viewflex/viewflex/internal/report"
	"github.com/hazyhaar/viewflex/viewflex/messaging"
	"github.com/hazyhaar/viewflex/viewflex/prefs"
	"github.com/hazyhaar/viewflex/viewflex/site"
	"github.com/hazyhaar/viewflex/viewflex/targets"
)

// ErrSessionNotFound is returned for an unknown session id.
var ErrSessionNotFound = errors.New("viewflex: session not found")

// Options configures a Daemon.
type Options struct {
	Config *config.Config
	// Store overrides the store described by Config.Store.
	Store     prefs.Store
	Reporters []report.Reporter
	Logger    *slog.Logger
}

type running struct {
	s      *Session
	page   string
	tab    *browser.Tab
	cancel context.CancelFunc
	done   chan struct{}
}

// Daemon owns the preference store, the browser, the sessions and the
// message hub that routes width updates to them.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	store  prefs.Store
	bridge *prefs.Bridge
	hub    *messaging.Hub
	router *report.Router
	descs  []engine.Descriptor
	mgr    *browser.Manager
	ep     endpoints

	mu       sync.Mutex
	sessions map[string]*running
	wg       sync.WaitGroup
}

// New opens the store and prepares the daemon. Nothing runs before Run or
// Attach.
func New(opts Options) (*Daemon, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store := opts.Store
	if store == nil {
		var err error
		store, err = OpenStore(cfg.Store, logger)
		if err != nil {
			return nil, err
		}
	}

	descs, errs := targets.Table(cfg.Targets)
	for _, err := range errs {
		logger.Warn("viewflex: target ignored", "error", err)
	}

	router := report.NewRouter(logger, opts.Reporters...)
	for _, rc := range cfg.Reporters {
		switch rc.Type {
		case "stdout":
			router.Add(report.NewStdout(os.Stdout))
		case "webhook":
			router.Add(report.NewWebhook(rc.URL, report.WithWebhookLogger(logger)))
		}
	}

	mode, err := browser.ParseMode(cfg.Browser.Stealth)
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		cfg:    cfg,
		logger: logger,
		store:  store,
		bridge: prefs.NewBridge(store, logger),
		hub:    messaging.NewHub(logger),
		router: router,
		descs:  descs,
		mgr: browser.NewManager(browser.Config{
			RemoteURL:        cfg.Browser.Remote,
			Mode:             mode,
			MemoryLimit:      cfg.Browser.MemoryLimit,
			RecycleInterval:  cfg.Browser.RecycleInterval,
			ResourceBlocking: cfg.Browser.ResourceBlocking,
			XvfbDisplay:      cfg.Browser.XvfbDisplay,
			NavigateTimeout:  cfg.Browser.NavigateTimeout,
			Logger:           logger,
		}),
		sessions: make(map[string]*running),
	}
	d.ep = d.newEndpoints()
	return d, nil
}

// OpenStore opens the store described by sc.
func OpenStore(sc config.StoreConfig, logger *slog.Logger) (prefs.Store, error) {
	switch sc.Driver {
	case "file":
		return prefs.NewFileStore(sc.Path, logger), nil
	case "sqlite", "":
		st, err := prefs.OpenSQLite(sc.Path, prefs.WithPollInterval(sc.PollInterval), prefs.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("viewflex: open store: %w", err)
		}
		return st, nil
	}
	return nil, fmt.Errorf("viewflex: unknown store driver %q", sc.Driver)
}

func (d *Daemon) Bridge() *prefs.Bridge { return d.bridge }
func (d *Daemon) Hub() *messaging.Hub   { return d.hub }

// Attach starts a session on doc. It runs until ctx is done or the daemon
// closes.
func (d *Daemon) Attach(ctx context.Context, doc dom.Document) *Session {
	return d.attach(ctx, doc, "", nil)
}

func (d *Daemon) attach(ctx context.Context, doc dom.Document, page string, tab *browser.Tab) *Session {
	s := NewSession(SessionConfig{
		Document:    doc,
		Bridge:      d.bridge,
		Descriptors: d.descs,
		Reporter:    d.router,
		QueueSize:   d.cfg.Watcher.QueueSize,
		Logger:      d.logger,
	})
	sctx, cancel := context.WithCancel(ctx)
	r := &running{s: s, page: page, tab: tab, cancel: cancel, done: make(chan struct{})}

	d.mu.Lock()
	d.sessions[s.ID()] = r
	d.mu.Unlock()
	d.hub.Register(s.ID(), s.Site().String(), s.Inbox())

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer close(r.done)
		_ = s.Run(sctx)

		d.hub.Unregister(s.ID())
		d.mu.Lock()
		delete(d.sessions, s.ID())
		d.mu.Unlock()
		if tab != nil {
			if err := tab.Close(); err != nil {
				d.logger.Debug("viewflex: close tab", "page", page, "error", err)
			}
		}
	}()
	return s
}

// Session returns a running session.
func (d *Daemon) Session(id string) (*Session, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.sessions[id]
	if !ok {
		return nil, false
	}
	return r.s, true
}

// Sessions lists running sessions ordered by id.
func (d *Daemon) Sessions() []SessionInfo {
	d.mu.Lock()
	list := make([]*Session, 0, len(d.sessions))
	for _, r := range d.sessions {
		list = append(list, r.s)
	}
	d.mu.Unlock()

	out := make([]SessionInfo, 0, len(list))
	for _, s := range list {
		out = append(out, s.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetWidth saves width for s and notifies the running sessions of that site.
// It reports whether any session took the message.
func (d *Daemon) SetWidth(ctx context.Context, s site.Site, width int) (bool, error) {
	if err := d.bridge.Save(ctx, s, width); err != nil {
		return false, err
	}
	return d.hub.SendToSite(ctx, s.String(), messaging.UpdateWidth(width)), nil
}

// Run launches the browser when pages are configured, opens a session per
// page and serves the control API. It returns once ctx is done and every
// session has stopped.
func (d *Daemon) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if len(d.cfg.Pages) > 0 {
		if _, err := d.mgr.Start(gctx); err != nil {
			return fmt.Errorf("viewflex: start browser: %w", err)
		}
		d.mgr.OnRecycle(func(*rod.Browser) { d.reopenPages(gctx) })
		d.openPages(gctx)
	}

	if d.cfg.API.Addr != "" {
		srv := &http.Server{
			Addr:              d.cfg.API.Addr,
			Handler:           d.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			d.logger.Info("viewflex: api listening", "addr", d.cfg.API.Addr, "mcp", d.cfg.API.MCP)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("viewflex: api: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	err := g.Wait()
	d.stopSessions()
	return err
}

func (d *Daemon) openPages(ctx context.Context) {
	for _, p := range d.cfg.Pages {
		tab, err := d.mgr.OpenTab(ctx, p.ID, p.URL)
		if err != nil {
			d.logger.Error("viewflex: open page failed", "page", p.ID, "url", p.URL, "error", err)
			continue
		}
		doc := cdpdom.New(ctx, tab.Page, cdpdom.Options{
			Window:   d.cfg.Watcher.BatchWindow,
			MaxBatch: d.cfg.Watcher.MaxBatch,
			Logger:   d.logger.With("page", p.ID),
		})
		s := d.attach(ctx, doc, p.ID, tab)
		d.logger.Info("viewflex: page attached", "page", p.ID, "session", s.ID(), "site", s.Site())
	}
}

// reopenPages stops the sessions bound to tabs of the recycled browser and
// opens the configured pages again.
func (d *Daemon) reopenPages(ctx context.Context) {
	d.mu.Lock()
	var stale []*running
	for _, r := range d.sessions {
		if r.tab != nil {
			stale = append(stale, r)
		}
	}
	d.mu.Unlock()

	for _, r := range stale {
		r.cancel()
		<-r.done
	}
	if ctx.Err() == nil {
		d.openPages(ctx)
	}
}

func (d *Daemon) stopSessions() {
	d.mu.Lock()
	for _, r := range d.sessions {
		r.cancel()
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// Close stops every session and releases the browser, reporters and store.
func (d *Daemon) Close() error {
	d.stopSessions()

	var errs []error
	if err := d.mgr.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := d.router.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := d.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
