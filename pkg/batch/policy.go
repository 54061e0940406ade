package batch

// bufferState is the read-only view of a partition buffer that flush
// decisions are made against.
type bufferState interface {
	len() int
	bytes() int
	empty() bool
}

// flushPolicy decides when a buffer is due for a flush and how many entries a
// flush should take. It is stateless; every decision is recomputed against
// the buffer's current state.
type flushPolicy struct {
	maxItems int
	maxBytes int // 0 disables byte-based flushing
}

// shouldFlush reports whether the buffer is due for a flush right now: the
// item ceiling has been reached, or byte accounting is enabled and the
// buffered payload exceeds the byte ceiling.
func (p flushPolicy) shouldFlush(buf bufferState) bool {
	return buf.len() >= p.maxItems ||
		(p.maxBytes > 0 && buf.bytes() > p.maxBytes)
}

// shouldFlushBeforeAdd reports whether the buffer must be flushed before an
// incoming request of the given estimated size is admitted. A near-limit
// batch is flushed first so the incoming request starts a fresh one instead
// of pushing the batch over the byte ceiling.
func (p flushPolicy) shouldFlushBeforeAdd(buf bufferState, incomingBytes int) bool {
	if p.maxBytes <= 0 || buf.empty() {
		return false
	}
	return buf.bytes()+incomingBytes > p.maxBytes
}

// flushableCount returns how many entries a due flush should take. Always
// capped at the per-batch item ceiling; the downstream call has its own
// item-count limit regardless of byte accounting.
func (p flushPolicy) flushableCount(buf bufferState) int {
	return min(buf.len(), p.maxItems)
}
