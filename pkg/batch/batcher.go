package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Batcher accepts individual requests, buffers them per batch key, and
// coalesces each partition into downstream batch calls. See the package
// documentation for the flush model.
type Batcher[Q, R, B any] struct {
	cfg   Config[Q, R, B]
	log   *slog.Logger
	sched scheduler
	table *table[Q, R]

	// Lifetime context handed to downstream sends; cancelled at Close for
	// best-effort cancellation of batch calls still in flight.
	ctx    context.Context
	cancel context.CancelFunc

	// closeMu makes Submit and Close mutually exclusive so a request can
	// never slip into the table after the final drain.
	closeMu sync.RWMutex
	closed  bool

	mu      sync.Mutex
	pending map[*Result[R]]struct{}

	// inflight tracks dispatched batch calls so Close can let completed
	// sends finish routing before cancelling what is left.
	inflight sync.WaitGroup
}

// New creates a Batcher from cfg. Zero-valued limits take the package
// defaults; collaborator functions are required.
func New[Q, R, B any](cfg Config[Q, R, B]) (*Batcher[Q, R, B], error) {
	cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid batcher config: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	policy := flushPolicy{maxItems: cfg.MaxBatchItems, maxBytes: cfg.MaxBatchBytes}
	return &Batcher[Q, R, B]{
		cfg:     cfg,
		log:     cfg.Logger,
		sched:   scheduler{clock: cfg.Clock},
		table:   newTable[Q, R](cfg.MaxBatchKeys, cfg.MaxBufferSize, policy),
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[*Result[R]]struct{}),
	}, nil
}

// Submit enqueues one request for batching and returns its result handle.
// Submit never blocks on I/O and never returns an error: capacity failures,
// downstream failures, and shutdown all surface on the handle.
func (b *Batcher[Q, R, B]) Submit(item Q) *Result[R] {
	handle := newResult[R]()
	b.register(handle)

	b.closeMu.RLock()
	defer b.closeMu.RUnlock()
	if b.closed {
		b.fail(handle, ErrClosed)
		return handle
	}
	b.cfg.Metrics.SubmittedTotal.Inc()

	key := b.cfg.BatchKey(item)
	size := 0
	if b.cfg.EstimateSize != nil {
		size = b.cfg.EstimateSize(item)
	}

	// Byte-ceiling overflow is handled before the insert so the incoming
	// request starts a fresh batch instead of oversizing the resident one.
	if b.cfg.MaxBatchBytes > 0 && b.table.contains(key) {
		if entries := b.table.flushableBeforeAdd(key, size); len(entries) > 0 {
			b.manualFlush(key, entries, triggerPreAdd)
		}
	}

	if err := b.table.add(key, func() *flushTask { return b.scheduleFlush(key) }, item, size, handle); err != nil {
		b.cfg.Metrics.RejectedTotal.Inc()
		b.fail(handle, err)
		return handle
	}

	if entries := b.table.flushable(key); len(entries) > 0 {
		b.manualFlush(key, entries, triggerReactive)
	}
	return handle
}

// manualFlush dispatches a size- or byte-triggered flush. The partition's
// timer is cancelled first and replaced after, so the scheduled-flush
// interval is anchored to this flush rather than to wall-clock ticks since
// the partition was created.
func (b *Batcher[Q, R, B]) manualFlush(key string, entries []*entry[Q, R], trigger string) {
	b.table.cancelTask(key)
	b.dispatch(key, entries, trigger)
	b.table.setTask(key, b.scheduleFlush(key))
}

func (b *Batcher[Q, R, B]) scheduleFlush(key string) *flushTask {
	return b.sched.every(b.cfg.SendInterval, func() {
		b.scheduledFlush(key)
	})
}

// scheduledFlush is the timer path: whatever the partition holds is flushed,
// capped at the item ceiling, so idle-but-nonempty buffers cannot hold
// requests indefinitely.
func (b *Batcher[Q, R, B]) scheduledFlush(key string) {
	if entries := b.table.scheduledFlushable(key, b.cfg.MaxBatchItems); len(entries) > 0 {
		b.dispatch(key, entries, triggerScheduled)
	}
}

func (b *Batcher[Q, R, B]) dispatch(key string, entries []*entry[Q, R], trigger string) {
	b.cfg.Metrics.FlushesTotal.WithLabelValues(trigger).Inc()
	b.cfg.Metrics.BatchSize.Observe(float64(len(entries)))
	b.log.Debug("flushing batch", "key", key, "trigger", trigger, "entries", len(entries))
	b.inflight.Add(1)
	go func() {
		defer b.inflight.Done()
		b.sendAndRoute(key, entries)
	}()
}

// sendAndRoute performs the downstream call for one flushed entry set and
// routes the response back onto the entries' handles. Every handle in the
// set is completed by exactly one path: a whole-batch failure fails them
// all, otherwise each mapped outcome settles the handle it references.
func (b *Batcher[Q, R, B]) sendAndRoute(key string, entries []*entry[Q, R]) {
	byID := make(map[string]*Result[R], len(entries))
	identified := make([]Entry[Q], 0, len(entries))
	for _, e := range entries {
		byID[e.id] = e.handle
		identified = append(identified, Entry[Q]{ID: e.id, Item: e.item})
	}

	resp, err := b.cfg.Send(b.ctx, identified, key)
	if err != nil {
		b.cfg.Metrics.SendFailuresTotal.Inc()
		b.log.Error("batch send failed", "key", key, "entries", len(entries), "error", err)
		for _, h := range byID {
			b.fail(h, err)
		}
		return
	}

	for _, out := range b.cfg.MapResponse(resp) {
		h, ok := byID[out.ID]
		if !ok {
			b.log.Warn("batch response references unknown entry id", "key", key, "id", out.ID)
			continue
		}
		delete(byID, out.ID)
		if out.Err != nil {
			b.fail(h, out.Err)
		} else {
			b.complete(h, out.Resp)
		}
	}
	// A response violating the covering contract must not leave callers
	// waiting forever.
	for id, h := range byID {
		b.fail(h, fmt.Errorf("batch response missing entry %s", id))
	}
}

// Close drains and shuts down the batcher. Each partition's timer is
// cancelled and its residual requests are sent in final batches; batch calls
// still in flight after the drain are cancelled best-effort, and any handle
// left pending fails with ErrClosed. Close is idempotent, and Submit after
// Close fails the returned handle with ErrClosed.
func (b *Batcher[Q, R, B]) Close() {
	b.closeMu.Lock()
	defer b.closeMu.Unlock()
	if b.closed {
		return
	}
	b.closed = true

	b.table.forEach(func(key string, buf *buffer[Q, R]) {
		buf.cancelTask()
		for {
			entries := b.table.scheduledFlushable(key, b.cfg.MaxBatchItems)
			if len(entries) == 0 {
				break
			}
			b.cfg.Metrics.FlushesTotal.WithLabelValues(triggerDrain).Inc()
			b.cfg.Metrics.BatchSize.Observe(float64(len(entries)))
			b.log.Debug("draining batch", "key", key, "entries", len(entries))
			b.sendAndRoute(key, entries)
		}
	})

	// Cancel batch calls still in flight, then let their goroutines finish
	// routing whatever they already got back. Send honors the context, so
	// this converges promptly.
	b.cancel()
	b.inflight.Wait()

	b.mu.Lock()
	remaining := make([]*Result[R], 0, len(b.pending))
	for h := range b.pending {
		remaining = append(remaining, h)
	}
	b.mu.Unlock()
	for _, h := range remaining {
		b.fail(h, ErrClosed)
	}

	b.table.clear()
}

func (b *Batcher[Q, R, B]) register(h *Result[R]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending[h] = struct{}{}
}

func (b *Batcher[Q, R, B]) deregister(h *Result[R]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pending, h)
}

func (b *Batcher[Q, R, B]) complete(h *Result[R], value R) {
	if h.settle(value, nil) {
		b.cfg.Metrics.CompletedTotal.Inc()
	}
	b.deregister(h)
}

func (b *Batcher[Q, R, B]) fail(h *Result[R], err error) {
	var zero R
	if h.settle(zero, err) {
		b.cfg.Metrics.FailedTotal.Inc()
	}
	b.deregister(h)
}
