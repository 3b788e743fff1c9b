package engine

import (
	"log/slog"

	"github.com/hazyhaar/viewflex/viewflex/site"
)

// Registry is the ordered descriptor table of one page. Enablement is decided
// once, from the site detected for that page.
type Registry struct {
	site    site.Site
	all     []*Descriptor
	enabled []*Descriptor
}

// NewRegistry copies descs in order. Descriptors that cannot select anything
// and duplicate names are logged and kept inert; they never match.
func NewRegistry(active site.Site, descs []Descriptor, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{site: active}
	seen := make(map[string]bool, len(descs))

	for i := range descs {
		d := descs[i]
		d.enabled = d.Site == active
		d.valid = true

		if p := d.problem(); p != "" {
			logger.Warn("engine: malformed descriptor ignored", "name", d.Name, "problem", p)
			d.valid = false
		} else if seen[d.Name] {
			logger.Warn("engine: duplicate descriptor name ignored", "name", d.Name)
			d.valid = false
		}
		if d.valid {
			seen[d.Name] = true
		}

		r.all = append(r.all, &d)
		if d.Enabled() {
			r.enabled = append(r.enabled, &d)
		}
	}
	return r
}

// Site the registry was built for.
func (r *Registry) Site() site.Site { return r.site }

// All descriptors in declaration order, inert ones included.
func (r *Registry) All() []*Descriptor { return r.all }

// Enabled descriptors in declaration order.
func (r *Registry) Enabled() []*Descriptor { return r.enabled }
