package engine

import (
	"strings"

	"github.com/hazyhaar/viewflex/viewflex/dom"
)

// Matches reports whether node qualifies for d. Disabled or malformed
// descriptors and non-element nodes never match.
func Matches(node dom.Node, d *Descriptor) bool {
	if d == nil || !d.Enabled() {
		return false
	}
	el, ok := dom.AsElement(node)
	if !ok {
		return false
	}

	switch m := d.Match.(type) {
	case Custom:
		return m.Predicate(el)
	case Simple:
		if m.Tag != "" && !strings.EqualFold(el.TagName(), m.Tag) {
			return false
		}
		for _, c := range m.Classes {
			if !el.HasClass(c) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
