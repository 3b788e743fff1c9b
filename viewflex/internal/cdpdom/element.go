package cdpdom

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/viewflex/viewflex/dom"
)

// Element is a remote element handle. Attribute reads go to the page on
// every call except the tag name, which cannot change.
type Element struct {
	doc *Document
	el  *rod.Element

	tagOnce sync.Once
	tag     string
}

func (e *Element) NodeType() dom.NodeType { return dom.ElementNode }

// Rod returns the underlying rod element.
func (e *Element) Rod() *rod.Element { return e.el }

func (e *Element) TagName() string {
	e.tagOnce.Do(func() {
		n, err := e.el.Describe(0, false)
		if err != nil {
			return
		}
		name := n.LocalName
		if name == "" {
			name = n.NodeName
		}
		e.tag = strings.ToLower(name)
	})
	return e.tag
}

func (e *Element) attr(name string) string {
	v, err := e.el.Attribute(name)
	if err != nil || v == nil {
		return ""
	}
	return *v
}

func (e *Element) ID() string        { return e.attr("id") }
func (e *Element) ClassName() string { return e.attr("class") }

func (e *Element) HasClass(token string) bool {
	for _, c := range strings.Fields(e.ClassName()) {
		if c == token {
			return true
		}
	}
	return false
}

func (e *Element) QueryAll(selector string) ([]dom.Element, error) {
	els, err := e.el.Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("cdpdom: query %q: %w", selector, err)
	}
	return e.doc.wrapAll(els), nil
}

func (e *Element) StyleProperty(name string) string {
	res, err := e.el.Eval(`function (n) { return this.style.getPropertyValue(n) }`, name)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

func (e *Element) SetStyleProperty(name, value string) error {
	if _, err := e.el.Eval(`function (n, v) { this.style.setProperty(n, v) }`, name, value); err != nil {
		return fmt.Errorf("cdpdom: set %s: %w", name, err)
	}
	return nil
}

func (e *Element) SetTextContent(text string) error {
	if _, err := e.el.Eval(`function (t) { this.textContent = t }`, text); err != nil {
		return fmt.Errorf("cdpdom: set text: %w", err)
	}
	return nil
}

// leaf is a non-element node reported by an insertion event.
type leaf dom.NodeType

func (l leaf) NodeType() dom.NodeType { return dom.NodeType(l) }
