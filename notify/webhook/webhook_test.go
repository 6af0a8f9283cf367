package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nomis52/ciwatch/notify"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requiredAlert() notify.Alert {
	return notify.Alert{
		Type:     notify.TypeRequiredFailure,
		Workflow: "CI",
		Job:      "unit-test (amd64)",
		RunID:    "5",
		Branch:   "main",
		URL:      "https://github.com/containers/urunc/actions/runs/5",
		Duration: "Failing for 2 days",
	}
}

func ciAlert() notify.Alert {
	return notify.Alert{
		Type:     notify.TypeCIFailure,
		Workflow: "Nightly Build",
		Job:      "e2e (fedora)",
		RunID:    "9",
		Branch:   "main",
		URL:      "https://github.com/containers/urunc/actions/runs/9",
	}
}

func TestText_Golden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	g.Assert(t, "text_required", []byte(Text(requiredAlert())))
	g.Assert(t, "text_ci", []byte(Text(ciAlert())))
}

func TestSink_PostsJSONText(t *testing.T) {
	var got map[string]string
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		contentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := New(Config{Endpoint: srv.URL})
	require.True(t, s.Enabled())
	require.NoError(t, s.Notify(context.Background(), requiredAlert()))

	assert.Equal(t, "application/json", contentType)
	require.Len(t, got, 1)
	assert.Equal(t, Text(requiredAlert()), got["text"])
}

func TestSink_AcceptsAny2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	assert.NoError(t, New(Config{Endpoint: srv.URL}).Notify(context.Background(), ciAlert()))
}

func TestSink_Non2xxIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid_token", http.StatusForbidden)
	}))
	defer srv.Close()

	err := New(Config{Endpoint: srv.URL}).Notify(context.Background(), ciAlert())

	require.Error(t, err)
	assert.ErrorIs(t, err, notify.ErrTransientDelivery)
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "invalid_token")
}

func TestSink_UnreachableIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := New(Config{Endpoint: url}).Notify(context.Background(), ciAlert())
	assert.ErrorIs(t, err, notify.ErrTransientDelivery)
}

func TestSink_TimeoutIsTransient(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	err := New(Config{Endpoint: srv.URL, Timeout: 50 * time.Millisecond}).Notify(context.Background(), ciAlert())
	assert.ErrorIs(t, err, notify.ErrTransientDelivery)
}

func TestSink_RetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := New(Config{Endpoint: srv.URL, RetryLimit: 2}).Notify(context.Background(), ciAlert())

	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSink_RetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := New(Config{Endpoint: srv.URL, RetryLimit: 1}).Notify(context.Background(), ciAlert())

	assert.ErrorIs(t, err, notify.ErrTransientDelivery)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSink_NoEndpointIsNoOpWithWarning(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	s := New(Config{Endpoint: "  ", Logger: logger})

	assert.False(t, s.Enabled())
	assert.NoError(t, s.Notify(context.Background(), ciAlert()))
	assert.Contains(t, logs.String(), "level=WARN")
	assert.Contains(t, logs.String(), "webhook endpoint not configured")
}

func TestSink_DrainsSuccessfulResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	assert.NoError(t, New(Config{Endpoint: srv.URL}).Notify(context.Background(), requiredAlert()))
}
