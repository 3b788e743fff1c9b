package engine

import (
	"sync/atomic"

	"github.com/hazyhaar/viewflex/viewflex/site"
)

// DefaultWidth is used until a stored preference is loaded, and whenever none
// exists.
const DefaultWidth = 80

// Preferences is the state every action reads. It is shared by pointer between
// the scanner, the watcher and whatever delivers preference updates.
type Preferences struct {
	site  site.Site
	width atomic.Int64
}

// NewPreferences starts at DefaultWidth for the detected site.
func NewPreferences(s site.Site) *Preferences {
	p := &Preferences{site: s}
	p.width.Store(DefaultWidth)
	return p
}

// Site is fixed for the lifetime of the page.
func (p *Preferences) Site() site.Site { return p.site }

// Width in rem.
func (p *Preferences) Width() int { return int(p.width.Load()) }

// SetWidth replaces the width. Actions run afterwards use the new value.
func (p *Preferences) SetWidth(w int) { p.width.Store(int64(w)) }

// Counter counts successful action applications. Diagnostics only.
type Counter struct {
	n atomic.Int64
}

func (c *Counter) Inc()        { c.n.Add(1) }
func (c *Counter) Load() int64 { return c.n.Load() }
