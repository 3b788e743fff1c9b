package htmldom

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/viewflex/viewflex/dom"
)

// Element wraps an element node of a Document. Wrappers are stable: the same
// node always yields the same *Element.
type Element struct {
	doc *Document
	n   *html.Node
}

func (e *Element) NodeType() dom.NodeType { return dom.ElementNode }

func (e *Element) TagName() string {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return strings.ToLower(e.n.Data)
}

func (e *Element) ID() string {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return attr(e.n, "id")
}

func (e *Element) ClassName() string {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return attr(e.n, "class")
}

func (e *Element) HasClass(token string) bool {
	for _, c := range strings.Fields(e.ClassName()) {
		if c == token {
			return true
		}
	}
	return false
}

func (e *Element) QueryAll(selector string) ([]dom.Element, error) {
	return e.doc.query(e.n, selector)
}

func (e *Element) StyleProperty(name string) string {
	e.doc.mu.Lock()
	raw := attr(e.n, "style")
	e.doc.mu.Unlock()

	return dom.ParseStyle(raw).Get(name)
}

func (e *Element) SetStyleProperty(name, value string) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	setAttr(e.n, "style", dom.ParseStyle(attr(e.n, "style")).Set(name, value).String())
	return nil
}

func (e *Element) SetTextContent(text string) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	for c := e.n.FirstChild; c != nil; {
		next := c.NextSibling
		e.n.RemoveChild(c)
		c = next
	}
	e.n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	return nil
}

// Text returns the concatenated text below the element.
func (e *Element) Text() string {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(e.n)
	return b.String()
}

// Mutator inserts markup inside a Mutate call. Every insertion made through
// one Mutator is delivered to observers as a single batch.
type Mutator struct {
	d    *Document
	recs []pending
}

// Append parses markup in the context of parent and appends the resulting
// nodes as its last children. It returns the directly added nodes.
func (m *Mutator) Append(parent dom.Element, markup string) ([]dom.Node, error) {
	p, ok := parent.(*Element)
	if !ok || p.doc != m.d {
		return nil, fmt.Errorf("htmldom: append parent does not belong to this document")
	}
	nodes, err := html.ParseFragment(strings.NewReader(markup), p.n)
	if err != nil {
		return nil, fmt.Errorf("htmldom: parse fragment: %w", err)
	}

	added := make([]dom.Node, 0, len(nodes))
	for _, n := range nodes {
		p.n.AppendChild(n)
		added = append(added, m.d.wrapLocked(n))
	}
	m.recs = append(m.recs, pending{parent: p.n, added: added})
	return added, nil
}

// Mutate runs fn with the document locked and then delivers the collected
// insertions as one batch per observer. fn must only use the Mutator: calling
// Element or Document methods from inside fn deadlocks.
func (d *Document) Mutate(fn func(m *Mutator) error) error {
	d.deliverMu.Lock()
	defer d.deliverMu.Unlock()

	d.mu.Lock()
	m := &Mutator{d: d}
	err := fn(m)
	deliveries := d.routeLocked(m.recs)
	d.mu.Unlock()

	for _, dl := range deliveries {
		dl.fn(dl.batch)
	}
	return err
}

// Append is Mutate with a single insertion.
func (d *Document) Append(parent dom.Element, markup string) ([]dom.Node, error) {
	var added []dom.Node
	err := d.Mutate(func(m *Mutator) error {
		var err error
		added, err = m.Append(parent, markup)
		return err
	})
	return added, err
}
