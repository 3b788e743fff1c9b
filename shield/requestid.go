package shield

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/viewflex/idgen"
	"github.com/hazyhaar/viewflex/kit"
)

type contextKey string

// LoggerKey holds the request-scoped logger.
const LoggerKey contextKey = "shield_logger"

// RequestHeader carries a caller supplied request id; it is echoed back.
const RequestHeader = "X-Request-ID"

var newRequestID = idgen.Prefixed("req_", idgen.UUIDv7())

// RequestID tags each request with an id (the caller's X-Request-ID or a
// fresh one), stores it with kit.WithRequestID and attaches a logger that
// carries it.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestHeader)
		if id == "" || len(id) > 128 {
			id = newRequestID()
		}
		w.Header().Set(RequestHeader, id)

		ctx := kit.WithRequestID(r.Context(), id)
		ctx = kit.WithRemoteAddr(ctx, r.RemoteAddr)
		logger := slog.Default().With("request_id", id, "method", r.Method, "path", r.URL.Path)
		ctx = context.WithValue(ctx, LoggerKey, logger)
		logger.Debug("shield: request", "remote_addr", r.RemoteAddr)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetLogger returns the request logger, slog.Default() outside a request.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
