package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStdout_JSONLines(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdout(&buf)
	require.NoError(t, s.Report(context.Background(), Event{ID: "1", Kind: KindStatus, SessionID: "s", Active: true, Modifications: 3, Timestamp: 5}))
	require.NoError(t, s.Report(context.Background(), Event{ID: "2", Kind: KindStopped, SessionID: "s", Timestamp: 6}))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	var ev Event
	require.NoError(t, json.Unmarshal(lines[0], &ev))
	assert.Equal(t, KindStatus, ev.Kind)
	assert.EqualValues(t, 3, ev.Modifications)
}

func TestRouter_FanOutAndFirstError(t *testing.T) {
	var a, b atomic.Int64
	boom := errors.New("boom")
	r := NewRouter(nil,
		NewCallback(func(context.Context, Event) error { a.Add(1); return boom }),
		NewCallback(func(_ context.Context, ev Event) error {
			b.Add(1)
			assert.NotZero(t, ev.Timestamp, "router stamps events")
			return nil
		}),
		NewCallback(nil),
	)
	assert.Equal(t, 3, r.Len())
	err := r.Report(context.Background(), Event{Kind: KindWidth})
	assert.ErrorIs(t, err, boom)
	assert.EqualValues(t, 1, a.Load())
	assert.EqualValues(t, 1, b.Load())
	assert.NoError(t, r.Close())
}

func TestWebhook_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var ev Event
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&ev))
		assert.Equal(t, "sess", ev.SessionID)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, WithBackoff(time.Millisecond))
	require.NoError(t, wh.Report(context.Background(), Event{Kind: KindStatus, SessionID: "sess"}))
	assert.EqualValues(t, 3, calls.Load())
}

func TestWebhook_Exhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, WithRetries(1), WithBackoff(time.Millisecond))
	err := wh.Report(context.Background(), Event{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestWebhook_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	wh := NewWebhook(srv.URL, WithBackoff(time.Hour))
	go func() { time.Sleep(20 * time.Millisecond); cancel() }()
	assert.ErrorIs(t, wh.Report(ctx, Event{}), context.Canceled)
}
