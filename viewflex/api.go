package viewflex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/viewflex/kit"
	"github.com/hazyhaar/viewflex/shield"
	"github.com/hazyhaar/viewflex/viewflex/messaging"
	"github.com/hazyhaar/viewflex/viewflex/site"
)

const maxBody = 64 << 10

// Handler is the control API. The MCP endpoint is mounted at /mcp when
// enabled in the configuration.
func (d *Daemon) Handler() http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.Stack(maxBody) {
		r.Use(mw)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": len(d.Sessions())})
	})

	r.Get("/api/sites", d.serve(d.ep.sites, http.StatusOK, func(*http.Request) (any, error) {
		return nil, nil
	}))

	r.Route("/api/sites/{site}", func(r chi.Router) {
		r.Get("/width", d.serve(d.ep.getWidth, http.StatusOK, func(r *http.Request) (any, error) {
			return &siteReq{Site: chi.URLParam(r, "site")}, nil
		}))
		r.Put("/width", d.serve(d.ep.setWidth, http.StatusOK, func(r *http.Request) (any, error) {
			var body struct {
				Width *int `json:"width"`
			}
			if err := decodeBody(r, &body); err != nil {
				return nil, err
			}
			if body.Width == nil {
				return nil, errors.New("width is required")
			}
			return &setWidthReq{Site: chi.URLParam(r, "site"), Width: *body.Width}, nil
		}))
		r.Post("/messages", d.serve(d.ep.message, http.StatusAccepted, func(r *http.Request) (any, error) {
			var msg messaging.Message
			if err := decodeBody(r, &msg); err != nil {
				return nil, err
			}
			return &messageReq{Site: chi.URLParam(r, "site"), Message: msg}, nil
		}))
	})

	r.Get("/api/sessions", d.serve(d.ep.sessions, http.StatusOK, func(*http.Request) (any, error) {
		return nil, nil
	}))
	r.Post("/api/sessions/{id}/messages", d.serve(d.ep.message, http.StatusAccepted, func(r *http.Request) (any, error) {
		var msg messaging.Message
		if err := decodeBody(r, &msg); err != nil {
			return nil, err
		}
		return &messageReq{SessionID: chi.URLParam(r, "id"), Message: msg}, nil
	}))

	if d.cfg.API.MCP {
		r.Handle("/mcp", d.MCPHandler())
	}
	return r
}

// serve adapts an endpoint: decode errors are 400s, endpoint errors are
// mapped by kind.
func (d *Daemon) serve(ep kit.Endpoint, okCode int, decode func(*http.Request) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decode(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		ctx := kit.WithTransport(r.Context(), "http")
		resp, err := ep(ctx, req)
		if err != nil {
			writeError(w, statusOf(err), err)
			return
		}
		writeJSON(w, okCode, resp)
	}
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, site.ErrUnknownSite), errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound
	case isBadRequest(err):
		return http.StatusBadRequest
	case errors.Is(err, errNotDelivered):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
