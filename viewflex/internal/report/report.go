// Package report publishes session events (status refreshes, width changes,
// session start and stop) to stdout, webhooks or in-process callbacks.
package report

import (
	"context"
	"time"
)

// Kind of an Event.
type Kind string

const (
	KindStatus  Kind = "status"
	KindWidth   Kind = "width"
	KindStarted Kind = "session_started"
	KindStopped Kind = "session_stopped"
)

// Event is one published record. Fields not relevant to Kind are zero.
type Event struct {
	ID            string `json:"id"`
	Kind          Kind   `json:"kind"`
	SessionID     string `json:"session_id"`
	URL           string `json:"url,omitempty"`
	Site          string `json:"site,omitempty"`
	Active        bool   `json:"active"`
	Modifications int64  `json:"modifications"`
	Width         int    `json:"width,omitempty"`
	Status        string `json:"status,omitempty"`
	Error         string `json:"error,omitempty"`
	Timestamp     int64  `json:"ts"`
}

// Stamp fills Timestamp when it is unset.
func (e *Event) Stamp() {
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().UnixMilli()
	}
}

// Reporter is an event destination.
type Reporter interface {
	Report(ctx context.Context, ev Event) error
	Close() error
}
