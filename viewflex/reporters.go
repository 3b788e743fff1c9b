package viewflex

import (
	"context"
	"io"
	"log/slog"

	"github.com/hazyhaar/viewflex/viewflex/internal/report"
)

// Reporter receives session events.
type Reporter = report.Reporter

// Event is a session event.
type Event = report.Event

// NewStdoutReporter writes events as JSON lines.
func NewStdoutReporter(w io.Writer) Reporter {
	return report.NewStdout(w)
}

// NewWebhookReporter POSTs events to url, retrying with backoff.
func NewWebhookReporter(url string, logger *slog.Logger) Reporter {
	return report.NewWebhook(url, report.WithWebhookLogger(logger))
}

// NewCallbackReporter hands events to fn in process.
func NewCallbackReporter(fn func(ctx context.Context, ev Event) error) Reporter {
	return report.NewCallback(fn)
}
