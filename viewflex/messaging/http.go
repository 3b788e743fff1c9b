package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPSender posts messages to a running daemon's control API. Failures,
// including an unreachable daemon, only produce a debug log.
type HTTPSender struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

// NewSiteHTTPSender targets every session of site on the daemon at baseURL.
func NewSiteHTTPSender(baseURL, site string, logger *slog.Logger) *HTTPSender {
	return newHTTPSender(baseURL, "/api/sites/"+url.PathEscape(site)+"/messages", logger)
}

// NewSessionHTTPSender targets one session on the daemon at baseURL.
func NewSessionHTTPSender(baseURL, sessionID string, logger *slog.Logger) *HTTPSender {
	return newHTTPSender(baseURL, "/api/sessions/"+url.PathEscape(sessionID)+"/messages", logger)
}

func newHTTPSender(baseURL, path string, logger *slog.Logger) *HTTPSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPSender{
		endpoint: strings.TrimRight(baseURL, "/") + path,
		client:   &http.Client{Timeout: 3 * time.Second},
		logger:   logger,
	}
}

func (s *HTTPSender) TrySend(ctx context.Context, msg Message) bool {
	body, err := json.Marshal(msg)
	if err != nil {
		s.logger.Debug("messaging: marshal", "error", err)
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		s.logger.Debug("messaging: new request", "error", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Debug("messaging: post failed", "endpoint", s.endpoint, "error", err)
		return false
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.logger.Debug("messaging: not delivered", "endpoint", s.endpoint, "status", resp.StatusCode)
		return false
	}
	return true
}
