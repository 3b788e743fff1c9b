// Package cdpdom implements dom.Document over a live Chrome tab driven by
// rod. Queries and style writes run as Runtime calls on the page; insertions
// come from CDP DOM.childNodeInserted events, coalesced into batches.
package cdpdom

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/viewflex/viewflex/dom"
)

// Options tunes event batching.
type Options struct {
	// Window is how long insertions accumulate before a batch is delivered,
	// measured from the first pending insertion. Default: 50ms.
	Window time.Duration
	// MaxBatch delivers immediately once this many nodes are pending.
	// Default: 500.
	MaxBatch int
	// ReadyPoll is the document.readyState polling period. Default: 100ms.
	ReadyPoll time.Duration
	Logger    *slog.Logger
}

func (o *Options) defaults() {
	if o.Window <= 0 {
		o.Window = 50 * time.Millisecond
	}
	if o.MaxBatch <= 0 {
		o.MaxBatch = 500
	}
	if o.ReadyPoll <= 0 {
		o.ReadyPoll = 100 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Document is a rod page seen through the dom interfaces.
type Document struct {
	page *rod.Page
	opts Options
	log  *slog.Logger

	ready     chan struct{}
	readyOnce sync.Once
}

// New wraps page. A goroutine polls document.readyState until the page is
// interactive or ctx is done.
func New(ctx context.Context, page *rod.Page, opts Options) *Document {
	opts.defaults()
	d := &Document{
		page:  page,
		opts:  opts,
		log:   opts.Logger,
		ready: make(chan struct{}),
	}
	go d.pollReady(ctx)
	return d
}

func (d *Document) pollReady(ctx context.Context) {
	t := time.NewTicker(d.opts.ReadyPoll)
	defer t.Stop()
	for {
		if s := d.readyState(ctx); s == dom.Interactive || s == dom.Complete {
			d.readyOnce.Do(func() { close(d.ready) })
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (d *Document) readyState(ctx context.Context) dom.ReadyState {
	res, err := d.page.Context(ctx).Eval(`() => document.readyState`)
	if err != nil {
		return dom.Loading
	}
	return dom.ReadyState(res.Value.Str())
}

// Page returns the underlying rod page.
func (d *Document) Page() *rod.Page { return d.page }

// Location implements dom.Document.
func (d *Document) Location() string {
	info, err := d.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// ReadyState implements dom.Document.
func (d *Document) ReadyState() dom.ReadyState {
	return d.readyState(context.Background())
}

// Ready implements dom.Document.
func (d *Document) Ready() <-chan struct{} { return d.ready }

// Body implements dom.Document.
func (d *Document) Body() dom.Element {
	el, err := d.page.Sleeper(rod.NotFoundSleeper).ElementByJS(rod.Eval(`() => document.body`))
	if err != nil {
		return nil
	}
	return d.wrap(el)
}

// ElementByID implements dom.Document.
func (d *Document) ElementByID(id string) (dom.Element, bool) {
	els, err := d.page.Elements("[id=" + strconv.Quote(id) + "]")
	if err != nil || len(els) == 0 {
		return nil, false
	}
	return d.wrap(els.First()), true
}

// QueryAll implements dom.Queryable.
func (d *Document) QueryAll(selector string) ([]dom.Element, error) {
	els, err := d.page.Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("cdpdom: query %q: %w", selector, err)
	}
	return d.wrapAll(els), nil
}

func (d *Document) wrap(el *rod.Element) *Element {
	return &Element{doc: d, el: el}
}

func (d *Document) wrapAll(els rod.Elements) []dom.Element {
	out := make([]dom.Element, 0, len(els))
	for _, el := range els {
		out = append(out, d.wrap(el))
	}
	return out
}
