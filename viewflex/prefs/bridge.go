package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/hazyhaar/viewflex/viewflex/engine"
	"github.com/hazyhaar/viewflex/viewflex/site"
)

// Width bounds accepted by Save, in rem.
const (
	MinWidth = 20
	MaxWidth = 200
)

// ErrWidthOutOfRange is returned for widths outside MinWidth..MaxWidth.
var ErrWidthOutOfRange = errors.New("prefs: width out of range")

// Validate checks a width against the accepted range.
func Validate(width int) error {
	if width < MinWidth || width > MaxWidth {
		return fmt.Errorf("%w: %d not in %d..%d", ErrWidthOutOfRange, width, MinWidth, MaxWidth)
	}
	return nil
}

// Settings is the value stored under Key.
type Settings map[site.Site]int

// Bridge reads and writes widths by site.
type Bridge struct {
	store  Store
	logger *slog.Logger
}

func NewBridge(store Store, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{store: store, logger: logger}
}

// Store returns the underlying store.
func (b *Bridge) Store() Store { return b.store }

// Settings returns every stored width.
func (b *Bridge) Settings(ctx context.Context) (Settings, error) {
	raw, ok, err := b.store.Get(ctx, Key)
	if err != nil {
		return nil, err
	}
	return decode(raw, ok)
}

func decode(raw json.RawMessage, ok bool) (Settings, error) {
	s := Settings{}
	if !ok || len(raw) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("prefs: decode %s: %w", Key, err)
	}
	return s, nil
}

// Load returns the width stored for s. stored is false, and the width is
// engine.DefaultWidth, when no value exists or the stored value is out of
// range.
func (b *Bridge) Load(ctx context.Context, s site.Site) (width int, stored bool, err error) {
	all, err := b.Settings(ctx)
	if err != nil {
		return engine.DefaultWidth, false, err
	}
	w, ok := b.usable(all, s)
	return w, ok, nil
}

// usable returns the stored width of s when it passes Validate.
func (b *Bridge) usable(all Settings, s site.Site) (int, bool) {
	w, ok := all[s]
	if !ok {
		return engine.DefaultWidth, false
	}
	if err := Validate(w); err != nil {
		b.logger.Warn("prefs: ignoring stored width", "site", s, "error", err)
		return engine.DefaultWidth, false
	}
	return w, true
}

// Save validates width and stores it for s, keeping the widths of other
// sites.
func (b *Bridge) Save(ctx context.Context, s site.Site, width int) error {
	if err := Validate(width); err != nil {
		return err
	}
	err := b.store.Update(ctx, Key, func(old json.RawMessage, ok bool) (json.RawMessage, error) {
		all, err := decode(old, ok)
		if err != nil {
			// A corrupt value is replaced rather than blocking every save.
			b.logger.Warn("prefs: discarding unreadable settings", "error", err)
			all = Settings{}
		}
		all[s] = width
		return json.Marshal(all)
	})
	if err != nil {
		return fmt.Errorf("prefs: save %s: %w", s, err)
	}
	b.logger.Info("prefs: width saved", "site", s, "width", width)
	return nil
}

// Entry is one row of List.
type Entry struct {
	Site        site.Site `json:"site"`
	DisplayName string    `json:"display_name"`
	Width       int       `json:"width"`
	Stored      bool      `json:"stored"`
}

// List returns every known site with its effective width, plus any unknown
// site present in the store.
func (b *Bridge) List(ctx context.Context) ([]Entry, error) {
	all, err := b.Settings(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(site.All))
	seen := map[site.Site]bool{}
	for _, s := range site.All {
		w, ok := b.usable(all, s)
		out = append(out, Entry{Site: s, DisplayName: s.DisplayName(), Width: w, Stored: ok})
		seen[s] = true
	}
	var extra []site.Site
	for s := range all {
		if !seen[s] {
			extra = append(extra, s)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	for _, s := range extra {
		w, ok := b.usable(all, s)
		out = append(out, Entry{Site: s, DisplayName: s.DisplayName(), Width: w, Stored: ok})
	}
	return out, nil
}

// Watch calls fn with the width of s each time a stored value for s appears
// or changes. The baseline is read before the store watch is armed and
// checked again once it is, so no write in between is lost. It blocks until
// ctx is done. Stores that cannot report writes
// make Watch return immediately.
func (b *Bridge) Watch(ctx context.Context, s site.Site, fn func(width int)) error {
	w, ok := b.store.(Watchable)
	if !ok {
		return nil
	}
	last, stored, err := b.Load(ctx, s)
	if err != nil || !stored {
		last = -1
	}
	return w.Watch(ctx, func() {
		width, stored, err := b.Load(ctx, s)
		if err != nil {
			b.logger.Warn("prefs: reload after change failed", "site", s, "error", err)
			return
		}
		if !stored || width == last {
			return
		}
		last = width
		fn(width)
	})
}
