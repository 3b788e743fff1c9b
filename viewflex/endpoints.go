package viewflex

import (
	"context"
	"errors"
	"fmt"

	"github.com/hazyhaar/viewflex/kit"
	"github.com/hazyhaar/viewflex/viewflex/messaging"
	"github.com/hazyhaar/viewflex/viewflex/prefs"
	"github.com/hazyhaar/viewflex/viewflex/site"
)

// errNotDelivered means no session accepted a message.
var errNotDelivered = errors.New("viewflex: message not delivered")

var errNoTarget = errors.New("viewflex: message needs a session or a site")

type siteReq struct {
	Site string `json:"site"`
}

type setWidthReq struct {
	Site  string `json:"site"`
	Width int    `json:"width"`
}

type messageReq struct {
	SessionID string            `json:"session_id,omitempty"`
	Site      string            `json:"site,omitempty"`
	Message   messaging.Message `json:"message"`
}

// WidthInfo is the answer of the width operations.
type WidthInfo struct {
	Site        site.Site `json:"site"`
	DisplayName string    `json:"display_name"`
	Width       int       `json:"width"`
	Stored      bool      `json:"stored"`
	// Notified is set by a save: whether a running session took the update.
	Notified *bool `json:"notified,omitempty"`
}

// endpoints are the operations shared by the HTTP API and the MCP tools.
type endpoints struct {
	sites    kit.Endpoint
	getWidth kit.Endpoint
	setWidth kit.Endpoint
	sessions kit.Endpoint
	message  kit.Endpoint
}

func (d *Daemon) newEndpoints() endpoints {
	wrap := func(op string, ep kit.Endpoint) kit.Endpoint {
		return kit.Chain(kit.Logging(d.logger, op))(ep)
	}
	return endpoints{
		sites:    wrap("sites", d.sitesEndpoint),
		getWidth: wrap("get_width", d.getWidthEndpoint),
		setWidth: wrap("set_width", d.setWidthEndpoint),
		sessions: wrap("sessions", d.sessionsEndpoint),
		message:  wrap("message", d.messageEndpoint),
	}
}

func (d *Daemon) sitesEndpoint(ctx context.Context, _ any) (any, error) {
	return d.bridge.List(ctx)
}

func (d *Daemon) getWidthEndpoint(ctx context.Context, req any) (any, error) {
	r := req.(*siteReq)
	s, err := site.Parse(r.Site)
	if err != nil {
		return nil, err
	}
	w, stored, err := d.bridge.Load(ctx, s)
	if err != nil {
		return nil, err
	}
	return WidthInfo{Site: s, DisplayName: s.DisplayName(), Width: w, Stored: stored}, nil
}

func (d *Daemon) setWidthEndpoint(ctx context.Context, req any) (any, error) {
	r := req.(*setWidthReq)
	s, err := site.Parse(r.Site)
	if err != nil {
		return nil, err
	}
	notified, err := d.SetWidth(ctx, s, r.Width)
	if err != nil {
		return nil, err
	}
	return WidthInfo{Site: s, DisplayName: s.DisplayName(), Width: r.Width, Stored: true, Notified: &notified}, nil
}

func (d *Daemon) sessionsEndpoint(_ context.Context, _ any) (any, error) {
	return d.Sessions(), nil
}

func (d *Daemon) messageEndpoint(ctx context.Context, req any) (any, error) {
	r := req.(*messageReq)
	var ok bool
	switch {
	case r.SessionID != "":
		if _, found := d.Session(r.SessionID); !found {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, r.SessionID)
		}
		ok = d.hub.SendToSession(ctx, r.SessionID, r.Message)
	case r.Site != "":
		s, err := site.Parse(r.Site)
		if err != nil {
			return nil, err
		}
		ok = d.hub.SendToSite(ctx, s.String(), r.Message)
	default:
		return nil, errNoTarget
	}
	if !ok {
		return nil, errNotDelivered
	}
	return map[string]bool{"delivered": true}, nil
}

// isBadRequest reports errors caused by the caller's input.
func isBadRequest(err error) bool {
	return errors.Is(err, prefs.ErrWidthOutOfRange) || errors.Is(err, errNoTarget)
}
