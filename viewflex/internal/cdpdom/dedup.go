package cdpdom

import (
	"time"

	"github.com/go-rod/rod/lib/proto"
)

// deduper drops insertions of a node already reported within tolerance.
// Frameworks that detach and reattach the same node produce such pairs and
// the second application would be a no-op.
type deduper struct {
	tolerance time.Duration
	maxRecent int
	recent    map[proto.DOMBackendNodeID]time.Time
}

func newDeduper() *deduper {
	return &deduper{
		tolerance: 50 * time.Millisecond,
		maxRecent: 4096,
		recent:    make(map[proto.DOMBackendNodeID]time.Time),
	}
}

// seen records id at and reports whether it was already recorded within
// the tolerance.
func (d *deduper) seen(id proto.DOMBackendNodeID, at time.Time) bool {
	if id == 0 {
		return false
	}
	if prev, ok := d.recent[id]; ok && at.Sub(prev) <= d.tolerance && at.Sub(prev) >= 0 {
		return true
	}
	if len(d.recent) >= d.maxRecent {
		d.prune(at)
	}
	d.recent[id] = at
	return false
}

func (d *deduper) prune(now time.Time) {
	cutoff := now.Add(-d.tolerance)
	for id, t := range d.recent {
		if t.Before(cutoff) {
			delete(d.recent, id)
		}
	}
	if len(d.recent) >= d.maxRecent {
		clear(d.recent)
	}
}

func (d *deduper) reset() { clear(d.recent) }
