// Package shield is the HTTP middleware put in front of the viewflex control
// API: HEAD handling, response headers for a JSON API, body size limits and
// per-request ids with a request-scoped logger.
package shield

import "net/http"

// Stack returns the middlewares for the control API in application order.
func Stack(maxBody int64) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(DefaultHeaders()),
		MaxBody(maxBody),
		RequestID,
	}
}
