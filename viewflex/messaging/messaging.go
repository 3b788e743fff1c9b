// Package messaging carries live preference updates to running page
// sessions. Delivery is best effort: TrySend reports whether a receiver took
// the message and never fails otherwise, so callers are free to ignore it.
package messaging

import (
	"context"
	"log/slog"
	"sync"
)

// ActionUpdateWidth asks a session to adopt Width and rescan.
const ActionUpdateWidth = "updateWidth"

// Message is the inbound shape understood by sessions.
type Message struct {
	Action string `json:"action"`
	Width  int    `json:"width,omitempty"`
}

// UpdateWidth builds an updateWidth message.
func UpdateWidth(width int) Message {
	return Message{Action: ActionUpdateWidth, Width: width}
}

// Sender delivers a message to one or more sessions.
type Sender interface {
	TrySend(ctx context.Context, msg Message) bool
}

// Local is the inbox of one session.
type Local struct {
	mu     sync.Mutex
	ch     chan Message
	closed bool
}

// NewLocal creates an inbox holding up to buffer undelivered messages.
func NewLocal(buffer int) *Local {
	if buffer <= 0 {
		buffer = 16
	}
	return &Local{ch: make(chan Message, buffer)}
}

// TrySend enqueues msg without blocking. It fails when the inbox is full or
// closed.
func (l *Local) TrySend(_ context.Context, msg Message) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	select {
	case l.ch <- msg:
		return true
	default:
		return false
	}
}

// Messages is the receiving side.
func (l *Local) Messages() <-chan Message { return l.ch }

// Close stops accepting messages and closes Messages.
func (l *Local) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.ch)
	}
}

// Hub routes messages to registered inboxes, by session id or by site.
type Hub struct {
	mu      sync.RWMutex
	inboxes map[string]hubEntry
	logger  *slog.Logger
}

type hubEntry struct {
	site  string
	inbox *Local
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{inboxes: make(map[string]hubEntry), logger: logger}
}

// Register adds an inbox. A later registration under the same id replaces
// the earlier one.
func (h *Hub) Register(id, site string, inbox *Local) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.inboxes[id] = hubEntry{site: site, inbox: inbox}
}

// Unregister removes id.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.inboxes, id)
}

// Session returns a Sender for one session.
func (h *Hub) Session(id string) Sender { return sessionSender{h: h, id: id} }

// Site returns a Sender reaching every session of site.
func (h *Hub) Site(site string) Sender { return siteSender{h: h, site: site} }

// SendToSession delivers to one session.
func (h *Hub) SendToSession(ctx context.Context, id string, msg Message) bool {
	h.mu.RLock()
	e, ok := h.inboxes[id]
	h.mu.RUnlock()
	if !ok {
		h.logger.Debug("messaging: no such session", "session", id, "action", msg.Action)
		return false
	}
	return e.inbox.TrySend(ctx, msg)
}

// SendToSite delivers to every session of site. It reports whether at least
// one session accepted the message.
func (h *Hub) SendToSite(ctx context.Context, site string, msg Message) bool {
	h.mu.RLock()
	var targets []*Local
	for _, e := range h.inboxes {
		if e.site == site {
			targets = append(targets, e.inbox)
		}
	}
	h.mu.RUnlock()

	delivered := false
	for _, in := range targets {
		if in.TrySend(ctx, msg) {
			delivered = true
		}
	}
	if !delivered {
		h.logger.Debug("messaging: no receiver", "site", site, "action", msg.Action)
	}
	return delivered
}

type sessionSender struct {
	h  *Hub
	id string
}

func (s sessionSender) TrySend(ctx context.Context, msg Message) bool {
	return s.h.SendToSession(ctx, s.id, msg)
}

type siteSender struct {
	h    *Hub
	site string
}

func (s siteSender) TrySend(ctx context.Context, msg Message) bool {
	return s.h.SendToSite(ctx, s.site, msg)
}
