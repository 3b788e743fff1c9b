package engine

import (
	"fmt"

	"github.com/hazyhaar/viewflex/viewflex/dom"
)

// Action mutates a matched element. It must be safe to call repeatedly on the
// same element: setting the same property twice leaves the same state.
type Action func(el dom.Element, p *Preferences) error

// Value computes a style value when an action runs.
type Value func(p *Preferences) string

// WidthRem is the current preference width, "<w>rem".
func WidthRem() Value {
	return func(p *Preferences) string { return fmt.Sprintf("%drem", p.Width()) }
}

// Fixed is a constant value independent of preferences.
func Fixed(v string) Value {
	return func(*Preferences) string { return v }
}

// SetStyle overrides one inline style property.
func SetStyle(property string, v Value) Action {
	return func(el dom.Element, p *Preferences) error {
		if err := el.SetStyleProperty(property, v(p)); err != nil {
			return fmt.Errorf("engine: set %s: %w", property, err)
		}
		return nil
	}
}
