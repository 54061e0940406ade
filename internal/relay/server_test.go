package relay

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

// newTestRelay wires a relay against a fake upstream that accepts every
// event. MaxItems is 1 so each submit flushes immediately.
func newTestRelay(t *testing.T) *Relay {
	t.Helper()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var items []batchItem
		require.NoError(t, json.NewDecoder(r.Body).Decode(&items))
		statuses := make([]ItemStatus, 0, len(items))
		for _, it := range items {
			statuses = append(statuses, ItemStatus{ID: it.ID, Status: http.StatusOK})
		}
		writeJSON(w, http.StatusOK, statuses)
	}))
	t.Cleanup(upstream.Close)

	cfg := &Config{UpstreamURL: upstream.URL}
	cfg.Batch.MaxItems = 1
	cfg.Batch.SendInterval = 50 * time.Millisecond
	cfg.applyDefaults()
	require.NoError(t, cfg.Validate())

	r, err := New(cfg, discardLogger(), prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

func TestRelay_Server_SubmitReturnsPerEventOutcome(t *testing.T) {
	t.Parallel()

	r := newTestRelay(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/events",
		strings.NewReader(`{"dest":"orders","payload":{"sku":"x"}}`))
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var status ItemStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	require.Equal(t, http.StatusOK, status.Status)
}

func TestRelay_Server_RejectsMalformedEvents(t *testing.T) {
	t.Parallel()

	r := newTestRelay(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader(`not json`))
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader(`{"payload":{}}`))
	rec = httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRelay_Server_UpstreamFailureSurfacesAsBadGateway(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	t.Cleanup(upstream.Close)

	cfg := &Config{UpstreamURL: upstream.URL}
	cfg.Batch.MaxItems = 1
	cfg.applyDefaults()
	cfg.Sender.MaxRetries = 1

	r, err := New(cfg, discardLogger(), prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(r.Close)

	req := httptest.NewRequest(http.MethodPost, "/v1/events",
		strings.NewReader(`{"dest":"orders","payload":{}}`))
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestRelay_Server_ShutdownRejectsNewEvents(t *testing.T) {
	t.Parallel()

	r := newTestRelay(t)
	r.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/events",
		strings.NewReader(`{"dest":"orders","payload":{}}`))
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRelay_Server_Healthz(t *testing.T) {
	t.Parallel()

	r := newTestRelay(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
