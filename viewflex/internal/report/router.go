package report

import (
	"context"
	"log/slog"
)

// Router fans events out to every reporter. A failing reporter does not stop
// the others; the first error is returned.
type Router struct {
	reporters []Reporter
	logger    *slog.Logger
}

func NewRouter(logger *slog.Logger, reporters ...Reporter) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{reporters: reporters, logger: logger}
}

// Add appends a reporter. Not safe once events flow.
func (r *Router) Add(rep Reporter) { r.reporters = append(r.reporters, rep) }

// Len is the number of reporters.
func (r *Router) Len() int { return len(r.reporters) }

func (r *Router) Report(ctx context.Context, ev Event) error {
	ev.Stamp()
	var first error
	for _, rep := range r.reporters {
		if err := rep.Report(ctx, ev); err != nil {
			r.logger.Warn("report: delivery failed", "kind", ev.Kind, "session", ev.SessionID, "error", err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

func (r *Router) Close() error {
	var first error
	for _, rep := range r.reporters {
		if err := rep.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
