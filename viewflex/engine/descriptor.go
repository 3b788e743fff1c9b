// Package engine finds the chat containers of a page and keeps their width
// overridden while the page keeps rendering.
//
// A Registry holds the ordered target descriptors, Matches decides whether a
// node qualifies for one, a Scanner sweeps a document or subtree and applies
// the descriptor actions, and a Watcher re-runs that work for every batch of
// inserted nodes. Preferences carry the width every action reads at
// invocation time.
package engine

import (
	"fmt"
	"strings"

	"github.com/hazyhaar/viewflex/viewflex/dom"
	"github.com/hazyhaar/viewflex/viewflex/site"
)

// Descriptor pairs a DOM pattern with the mutation applied to each match.
type Descriptor struct {
	Name   string
	Site   site.Site
	Match  Match
	Action Action

	enabled bool
	valid   bool
}

// Enabled reports whether the descriptor belongs to the detected site. Only
// descriptors obtained from a Registry can be enabled.
func (d *Descriptor) Enabled() bool { return d.enabled && d.valid }

// Match selects elements. It is either Simple or Custom.
type Match interface {
	isMatch()
}

// Simple matches on an optional tag (case-insensitive) and a set of class
// tokens that must all be present.
type Simple struct {
	Tag     string
	Classes []string
}

// Custom delegates matching to Predicate. A full-document scan only offers
// it elements whose tag is CandidateTag ("div" when empty).
type Custom struct {
	Predicate    func(dom.Element) bool
	CandidateTag string
}

func (Simple) isMatch() {}
func (Custom) isMatch() {}

func (c Custom) candidateTag() string {
	if c.CandidateTag == "" {
		return "div"
	}
	return c.CandidateTag
}

// ClassContains returns a predicate that is true when the element's class
// attribute contains substr anywhere, including inside a token.
func ClassContains(substr string) func(dom.Element) bool {
	return func(el dom.Element) bool {
		return strings.Contains(el.ClassName(), substr)
	}
}

// problem returns why the descriptor cannot select anything, or "".
func (d *Descriptor) problem() string {
	switch m := d.Match.(type) {
	case nil:
		return "no match rule"
	case Simple:
		if m.Tag == "" && len(m.Classes) == 0 {
			return "neither tag nor classes"
		}
		for _, c := range m.Classes {
			if strings.TrimSpace(c) == "" || strings.ContainsAny(c, " \t\n") {
				return fmt.Sprintf("invalid class token %q", c)
			}
		}
	case Custom:
		if m.Predicate == nil {
			return "custom match without predicate"
		}
	default:
		return fmt.Sprintf("unsupported match %T", m)
	}
	if d.Action == nil {
		return "no action"
	}
	return ""
}

// selector is the query that retrieves the candidates of d.
func (d *Descriptor) selector() string {
	switch m := d.Match.(type) {
	case Simple:
		var b strings.Builder
		if m.Tag != "" {
			b.WriteString(cssIdent(strings.ToLower(m.Tag)))
		}
		for _, c := range m.Classes {
			b.WriteByte('.')
			b.WriteString(cssIdent(c))
		}
		return b.String()
	case Custom:
		return cssIdent(strings.ToLower(m.candidateTag()))
	}
	return ""
}

// cssIdent escapes s for use as a CSS identifier, so Tailwind tokens such as
// "md:max-w-3xl" survive selector construction.
func cssIdent(s string) string {
	var b strings.Builder
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_', r == '-', r >= 0x80:
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 || (i == 1 && s[0] == '-') {
				fmt.Fprintf(&b, "\\%x ", r)
			} else {
				b.WriteRune(r)
			}
		default:
			b.WriteByte('\\')
			b.WriteRune(r)
		}
	}
	return b.String()
}
