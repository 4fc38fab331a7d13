package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/archon-run/orchestrator-pipeline/internal/webhook"
)

type fakeHealthChecker struct {
	err error
}

func (f *fakeHealthChecker) HealthCheck(ctx context.Context) error {
	return f.err
}

func newTestServer(db HealthChecker, dispatch webhook.DispatchFunc) *Server {
	return New(Config{Host: "127.0.0.1", Port: 0, ReadTimeout: time.Second, WriteTimeout: time.Second, ShutdownTimeout: time.Second},
		db, nil, dispatch, prometheus.NewRegistry(), zap.NewNop())
}

func TestHealthzAlwaysOK(t *testing.T) {
	s := newTestServer(&fakeHealthChecker{}, func(webhook.Event) {})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestReadyzReflectsHealthCheck(t *testing.T) {
	s := newTestServer(&fakeHealthChecker{err: errors.New("db down")}, func(webhook.Event) {})

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestReadyzOKWhenHealthy(t *testing.T) {
	s := newTestServer(&fakeHealthChecker{}, func(webhook.Event) {})

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	s := newTestServer(&fakeHealthChecker{}, func(webhook.Event) {})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestWebhookEndpointDispatchesSupportedEvent(t *testing.T) {
	dispatched := make(chan webhook.Event, 1)
	s := newTestServer(&fakeHealthChecker{}, func(e webhook.Event) { dispatched <- e })

	body := `{"action":"opened","issue":{"number":7,"title":"t","body":"b"},"repository":{"name":"widgets","owner":{"login":"acme"}}}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", strings.NewReader(body))
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	select {
	case e := <-dispatched:
		assert.Equal(t, 7, e.Number)
	case <-time.After(time.Second):
		t.Fatal("webhook was not dispatched")
	}
}
