package batch

// extractor turns flush decisions into entry extraction. All three paths
// return nil when no flush is due; an empty result is the universal "nothing
// to do" signal, never an error.
type extractor[Q, R any] struct {
	policy flushPolicy
}

// flushable is the reactive path, checked right after an insert.
func (x extractor[Q, R]) flushable(buf *buffer[Q, R]) []*entry[Q, R] {
	if buf == nil || buf.empty() {
		return nil
	}
	if x.policy.shouldFlush(buf) {
		return buf.extract(x.policy.flushableCount(buf))
	}
	return nil
}

// flushableBeforeAdd is the pre-insert path: flush the resident batch first
// when admitting a request of the given size would exceed the byte ceiling.
func (x extractor[Q, R]) flushableBeforeAdd(buf *buffer[Q, R], incomingBytes int) []*entry[Q, R] {
	if buf == nil {
		return nil
	}
	if x.policy.shouldFlushBeforeAdd(buf, incomingBytes) {
		return buf.extract(x.policy.flushableCount(buf))
	}
	return nil
}

// scheduledFlushable is the timer path: byte limits are ignored and whatever
// is present is taken, capped at maxItems, so a buffer that never reaches a
// threshold still cannot hold requests indefinitely.
func (x extractor[Q, R]) scheduledFlushable(buf *buffer[Q, R], maxItems int) []*entry[Q, R] {
	if buf == nil || buf.empty() {
		return nil
	}
	return buf.extract(min(maxItems, x.policy.flushableCount(buf)))
}
