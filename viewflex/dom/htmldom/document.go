// Package htmldom is an in-memory dom.Document backed by golang.org/x/net/html.
// Queries go through cascadia/goquery. Insertions made through Append or
// Mutate are reported to observers as child-list batches, one batch per call,
// which is how tests and the offline apply command drive the engine without
// a browser.
package htmldom

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/viewflex/viewflex/dom"
)

// Document is a mutex-guarded HTML tree.
type Document struct {
	mu       sync.Mutex
	root     *html.Node
	location string
	state    dom.ReadyState
	ready    chan struct{}
	elems    map[*html.Node]*Element

	// deliverMu keeps batches from concurrent Mutate calls in order.
	deliverMu sync.Mutex
	subMu     sync.Mutex
	subs      map[int]*subscription
	nextSub   int
}

// Parse reads a complete document. Its ready state is "complete".
func Parse(r io.Reader, location string) (*Document, error) {
	return parse(r, location, dom.Complete)
}

// ParseLoading reads a document whose ready state stays "loading" until
// SetReadyState is called, like a page still being parsed.
func ParseLoading(r io.Reader, location string) (*Document, error) {
	return parse(r, location, dom.Loading)
}

// ParseString is Parse over a string.
func ParseString(markup, location string) (*Document, error) {
	return Parse(strings.NewReader(markup), location)
}

func parse(r io.Reader, location string, state dom.ReadyState) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("htmldom: parse: %w", err)
	}
	d := &Document{
		root:     root,
		location: location,
		ready:    make(chan struct{}),
		elems:    make(map[*html.Node]*Element),
		subs:     make(map[int]*subscription),
	}
	d.setState(state)
	return d, nil
}

// Location implements dom.Document.
func (d *Document) Location() string { return d.location }

// ReadyState implements dom.Document.
func (d *Document) ReadyState() dom.ReadyState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Ready implements dom.Document.
func (d *Document) Ready() <-chan struct{} { return d.ready }

// SetReadyState advances the ready state. Leaving "loading" closes Ready.
func (d *Document) SetReadyState(s dom.ReadyState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.setState(s)
}

func (d *Document) setState(s dom.ReadyState) {
	if d.state != dom.Loading && d.state != "" {
		// Already ready, the channel is closed.
		d.state = s
		return
	}
	d.state = s
	if s != dom.Loading {
		close(d.ready)
	}
}

// Body implements dom.Document.
func (d *Document) Body() dom.Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := findFirst(d.root, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.DataAtom == atom.Body
	})
	if n == nil {
		return nil
	}
	return d.elementLocked(n)
}

// ElementByID implements dom.Document.
func (d *Document) ElementByID(id string) (dom.Element, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := findFirst(d.root, func(n *html.Node) bool {
		return n.Type == html.ElementNode && attr(n, "id") == id
	})
	if n == nil {
		return nil, false
	}
	return d.elementLocked(n), true
}

// QueryAll implements dom.Queryable over the whole document.
func (d *Document) QueryAll(selector string) ([]dom.Element, error) {
	return d.query(d.root, selector)
}

// Render writes the current tree as HTML.
func (d *Document) Render(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return html.Render(w, d.root)
}

// String renders the document, mostly for test failure output.
func (d *Document) String() string {
	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		return "<render error: " + err.Error() + ">"
	}
	return buf.String()
}

func (d *Document) query(scope *html.Node, selector string) ([]dom.Element, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("htmldom: compile selector %q: %w", selector, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	found := goquery.NewDocumentFromNode(scope).FindMatcher(sel)
	out := make([]dom.Element, 0, found.Length())
	for _, n := range found.Nodes {
		out = append(out, d.elementLocked(n))
	}
	return out, nil
}

// elementLocked returns the stable wrapper for n. d.mu must be held.
func (d *Document) elementLocked(n *html.Node) *Element {
	if el, ok := d.elems[n]; ok {
		return el
	}
	el := &Element{doc: d, n: n}
	d.elems[n] = el
	return el
}

func (d *Document) wrapLocked(n *html.Node) dom.Node {
	switch n.Type {
	case html.ElementNode:
		return d.elementLocked(n)
	case html.TextNode:
		return leaf(dom.TextNode)
	case html.CommentNode:
		return leaf(dom.CommentNode)
	default:
		return leaf(dom.NodeType(0))
	}
}

// leaf is a non-element node as seen by observers.
type leaf dom.NodeType

func (l leaf) NodeType() dom.NodeType { return dom.NodeType(l) }

func findFirst(n *html.Node, pred func(*html.Node) bool) *html.Node {
	if pred(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if m := findFirst(c, pred); m != nil {
			return m
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func isAncestorOrSelf(anc, n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == anc {
			return true
		}
	}
	return false
}

// subscription is an active Observe call.
type subscription struct {
	doc  *Document
	id   int
	root *html.Node
	fn   dom.ObserveFunc
	once sync.Once
	done chan struct{}
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		s.doc.subMu.Lock()
		delete(s.doc.subs, s.id)
		s.doc.subMu.Unlock()
		close(s.done)
	})
	return nil
}

// Observe implements dom.Document. The subscription ends when ctx is done
// or Close is called.
func (d *Document) Observe(ctx context.Context, root dom.Element, fn dom.ObserveFunc) (dom.Subscription, error) {
	el, ok := root.(*Element)
	if !ok || el.doc != d {
		return nil, fmt.Errorf("htmldom: observe root does not belong to this document")
	}

	d.subMu.Lock()
	d.nextSub++
	s := &subscription{doc: d, id: d.nextSub, root: el.n, fn: fn, done: make(chan struct{})}
	d.subs[s.id] = s
	d.subMu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()
	return s, nil
}

// pending is a record not yet delivered, with the parent it was added under.
type pending struct {
	parent *html.Node
	added  []dom.Node
}

type delivery struct {
	fn    dom.ObserveFunc
	batch dom.Batch
}

// routeLocked splits recs per subscription, keeping only records under each
// subscription root. d.mu must be held.
func (d *Document) routeLocked(recs []pending) []delivery {
	if len(recs) == 0 {
		return nil
	}
	d.subMu.Lock()
	defer d.subMu.Unlock()

	var out []delivery
	for _, s := range d.subs {
		var batch dom.Batch
		for _, r := range recs {
			if isAncestorOrSelf(s.root, r.parent) {
				batch = append(batch, dom.Record{Added: r.added})
			}
		}
		if len(batch) > 0 {
			out = append(out, delivery{fn: s.fn, batch: batch})
		}
	}
	return out
}
