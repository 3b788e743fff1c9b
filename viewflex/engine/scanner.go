package engine

import (
	"log/slog"

	"github.com/hazyhaar/viewflex/viewflex/dom"
)

// Scanner applies the enabled descriptors of a Registry to a document or a
// subtree of it.
type Scanner struct {
	reg     *Registry
	prefs   *Preferences
	counter *Counter
	logger  *slog.Logger
}

// NewScanner wires a scanner. counter may be nil.
func NewScanner(reg *Registry, prefs *Preferences, counter *Counter, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	if counter == nil {
		counter = &Counter{}
	}
	return &Scanner{reg: reg, prefs: prefs, counter: counter, logger: logger}
}

// Counter returns the modification counter the scanner increments.
func (s *Scanner) Counter() *Counter { return s.counter }

// Preferences returns the preferences actions read.
func (s *Scanner) Preferences() *Preferences { return s.prefs }

// FullScan queries root for the candidates of every enabled descriptor,
// re-validates each with Matches and applies the action. A query failure for
// one descriptor is logged and the others still run. It returns the number of
// successful applications.
func (s *Scanner) FullScan(root dom.Queryable) int {
	applied := 0
	for _, d := range s.reg.Enabled() {
		sel := d.selector()
		els, err := root.QueryAll(sel)
		if err != nil {
			s.logger.Warn("engine: descriptor query failed",
				"descriptor", d.Name, "selector", sel, "error", err)
			continue
		}
		for _, el := range els {
			if Matches(el, d) && s.apply(el, d) {
				applied++
			}
		}
	}
	return applied
}

// Rescan is FullScan run after a width change. Actions are idempotent, so
// applying them again with the new width is all a rescan needs.
func (s *Scanner) Rescan(root dom.Queryable) int {
	n := s.FullScan(root)
	s.logger.Debug("engine: rescan", "width", s.prefs.Width(), "applied", n)
	return n
}

// ApplyNode tests node itself against every enabled descriptor.
func (s *Scanner) ApplyNode(node dom.Node) int {
	applied := 0
	for _, d := range s.reg.Enabled() {
		if Matches(node, d) {
			el, _ := dom.AsElement(node)
			if s.apply(el, d) {
				applied++
			}
		}
	}
	return applied
}

// ApplySubtree is ApplyNode followed, for elements, by a FullScan rooted at
// the node, so targets nested anywhere below an inserted node are found.
func (s *Scanner) ApplySubtree(node dom.Node) int {
	n := s.ApplyNode(node)
	if el, ok := dom.AsElement(node); ok {
		n += s.FullScan(el)
	}
	return n
}

func (s *Scanner) apply(el dom.Element, d *Descriptor) bool {
	if err := d.Action(el, s.prefs); err != nil {
		s.logger.Debug("engine: action failed", "descriptor", d.Name, "error", err)
		return false
	}
	s.counter.Inc()
	return true
}
