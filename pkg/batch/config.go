package batch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
)

// Defaults applied by New for zero-valued Config knobs.
const (
	DefaultMaxBatchItems = 10
	DefaultMaxBatchKeys  = 100
	DefaultMaxBufferSize = 500
	DefaultSendInterval  = 200 * time.Millisecond
)

// Entry is one identified request inside a dispatched batch. The ID is the
// request's partition-scoped sequence id; the batch response must reference
// it so the per-request outcome can be routed back.
type Entry[Q any] struct {
	ID   string
	Item Q
}

// ItemOutcome is the per-request outcome carried by a successful batch
// response: either Resp or Err, keyed by the Entry ID it answers.
type ItemOutcome[R any] struct {
	ID   string
	Resp R
	Err  error
}

// Config carries the collaborators and limits of a Batcher. Q is the request
// type, R the per-request response type, B the downstream batch response.
type Config[Q, R, B any] struct {
	// BatchKey derives the partition key for a request. Requests sharing a
	// key may be combined into one downstream call. Must be deterministic
	// and side-effect free. Required.
	BatchKey func(item Q) string

	// Send performs the downstream batch call. It is invoked on a goroutine
	// owned by the batcher with the batcher's lifetime context; it must
	// return the batch response or an error, and must not retain entries.
	// Required.
	Send func(ctx context.Context, entries []Entry[Q], key string) (B, error)

	// MapResponse splits a batch response into per-request outcomes covering
	// exactly the submitted entry ids. Required.
	MapResponse func(resp B) []ItemOutcome[R]

	// EstimateSize returns a request's estimated on-wire byte size. Required
	// when MaxBatchBytes is set; unused otherwise.
	EstimateSize func(item Q) int

	// MaxBatchItems is the per-flush item ceiling.
	MaxBatchItems int
	// MaxBatchBytes is the per-flush cumulative byte ceiling. 0 disables
	// byte-based flushing.
	MaxBatchBytes int
	// MaxBufferSize is the per-partition pending-request ceiling.
	MaxBufferSize int
	// MaxBatchKeys is the distinct-partition ceiling.
	MaxBatchKeys int
	// SendInterval is the scheduled-flush period, re-anchored to the most
	// recent flush of each partition.
	SendInterval time.Duration

	Clock   clockwork.Clock
	Logger  *slog.Logger
	Metrics *Metrics
}

func (c *Config[Q, R, B]) withDefaults() {
	if c.MaxBatchItems == 0 {
		c.MaxBatchItems = DefaultMaxBatchItems
	}
	if c.MaxBatchKeys == 0 {
		c.MaxBatchKeys = DefaultMaxBatchKeys
	}
	if c.MaxBufferSize == 0 {
		c.MaxBufferSize = DefaultMaxBufferSize
	}
	if c.SendInterval == 0 {
		c.SendInterval = DefaultSendInterval
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	if c.Metrics == nil {
		c.Metrics = NewMetrics(nil)
	}
}

func (c *Config[Q, R, B]) Validate() error {
	if c.BatchKey == nil {
		return errors.New("batch key function is required")
	}
	if c.Send == nil {
		return errors.New("send function is required")
	}
	if c.MapResponse == nil {
		return errors.New("map response function is required")
	}
	if c.MaxBatchItems <= 0 {
		return errors.New("max batch items must be greater than 0")
	}
	if c.MaxBatchBytes < 0 {
		return errors.New("max batch bytes must not be negative")
	}
	if c.MaxBatchBytes > 0 && c.EstimateSize == nil {
		return errors.New("estimate size function is required when max batch bytes is set")
	}
	if c.MaxBufferSize <= 0 {
		return errors.New("max buffer size must be greater than 0")
	}
	if c.MaxBatchKeys <= 0 {
		return errors.New("max batch keys must be greater than 0")
	}
	if c.SendInterval <= 0 {
		return errors.New("send interval must be greater than 0")
	}
	return nil
}
