// Package relay implements an HTTP event relay built on the batching engine.
// Events are accepted one at a time over HTTP, batched per destination, and
// forwarded to an upstream endpoint as single batch calls; each caller gets
// the upstream's per-event outcome back on its own request.
package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Clarence404/batchkit/pkg/batch"
)

// Event is one unit of work accepted by the relay: an opaque JSON payload
// bound for a named destination. The destination is the batch key.
type Event struct {
	Dest    string          `json:"dest"`
	Payload json.RawMessage `json:"payload"`
}

// Relay owns the batcher and the HTTP surface in front of it.
type Relay struct {
	log     *slog.Logger
	batcher *batch.Batcher[Event, ItemStatus, []ItemStatus]
}

// New wires a Relay from config: an upstream sender, and a batcher whose
// partitions are the event destinations.
func New(cfg *Config, log *slog.Logger, reg prometheus.Registerer) (*Relay, error) {
	if log == nil {
		log = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	sender, err := NewSender(cfg.UpstreamURL,
		WithSenderLogger(log),
		WithMaxConcurrency(cfg.Sender.MaxConcurrency),
		WithMaxRetries(cfg.Sender.MaxRetries),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sender: %w", err)
	}

	batcher, err := batch.New(batch.Config[Event, ItemStatus, []ItemStatus]{
		BatchKey:     func(ev Event) string { return ev.Dest },
		EstimateSize: func(ev Event) int { return len(ev.Payload) },
		Send:         sender.Send,
		MapResponse:  mapReply,

		MaxBatchItems: cfg.Batch.MaxItems,
		MaxBatchBytes: cfg.Batch.MaxBytes,
		MaxBufferSize: cfg.Batch.MaxBufferSize,
		MaxBatchKeys:  cfg.Batch.MaxKeys,
		SendInterval:  cfg.Batch.SendInterval,

		Logger:  log,
		Metrics: batch.NewMetrics(reg),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create batcher: %w", err)
	}

	return &Relay{log: log, batcher: batcher}, nil
}

// Handler returns the relay's HTTP routes.
func (r *Relay) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/events", r.handleSubmit)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// Close drains the batcher. Events still buffered are sent in final batches;
// callers disconnected mid-wait get their outcome dropped.
func (r *Relay) Close() {
	r.batcher.Close()
}

func (r *Relay) handleSubmit(w http.ResponseWriter, req *http.Request) {
	var ev Event
	if err := json.NewDecoder(req.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid event body")
		return
	}
	if ev.Dest == "" {
		writeError(w, http.StatusBadRequest, "dest is required")
		return
	}

	handle := r.batcher.Submit(ev)
	status, err := handle.Wait(req.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, status)
	case errors.Is(err, req.Context().Err()) && req.Context().Err() != nil:
		// Caller went away; the event itself is still in flight.
		writeError(w, http.StatusGatewayTimeout, "timed out waiting for batch outcome")
	case errors.Is(err, batch.ErrBufferFull) || errors.Is(err, batch.ErrTooManyKeys):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, batch.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "relay is shutting down")
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
