package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qmsolve/mrscf/internal/scf"
)

func newTestServer(t *testing.T, opts ...Option) (*Server, *httptest.Server) {
	t.Helper()
	reg := prometheus.NewRegistry()
	srv := New("127.0.0.1:0", reg, opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t, WithHealth(func() HealthStatus {
		return HealthStatus{Status: "ok", State: scf.Iterating.String(), Iterations: 4}
	}))

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, scf.Iterating.String(), body["state"])
	assert.Equal(t, float64(4), body["iterations"])
	assert.Contains(t, body, "timestamp")
}

func TestHealthz_MethodNotAllowed(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/healthz", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestMetrics(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t)

	// First request increments the counter; the second one sees it.
	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "mrscf_http_requests_total")
	assert.True(t, strings.Contains(string(raw), "mrscf_http_requests_total 1") ||
		strings.Contains(string(raw), "mrscf_http_requests_total 2"))
}

func TestMetrics_SharedRegistry(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	obs := scf.NewPrometheusObserver(reg)
	obs.IterationDone(scf.IterationUpdate{Iter: 1, OrbitalError: 1e-3, Precision: 1e-4})

	srv := New("127.0.0.1:0", reg)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "mrscf_iterations_total")
}

func TestServe_GracefulShutdown(t *testing.T) {
	reg := prometheus.NewRegistry()
	srv := New("127.0.0.1:0", reg, WithTimeouts(Timeouts{
		Read:     time.Second,
		Write:    time.Second,
		Idle:     time.Second,
		Shutdown: time.Second,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	// Give the listener a moment, then ask for shutdown.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
