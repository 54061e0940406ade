package batch

import (
	"fmt"
	"sync"
)

// table maps batch keys to their partition buffers. It owns the distinct-key
// limit; buffers are created on first use of a key and dropped only by clear.
type table[Q, R any] struct {
	mu        sync.Mutex
	byKey     map[string]*buffer[Q, R]
	maxKeys   int
	maxBuffer int
	extractor extractor[Q, R]
}

func newTable[Q, R any](maxKeys, maxBuffer int, policy flushPolicy) *table[Q, R] {
	return &table[Q, R]{
		byKey:     make(map[string]*buffer[Q, R]),
		maxKeys:   maxKeys,
		maxBuffer: maxBuffer,
		extractor: extractor[Q, R]{policy: policy},
	}
}

// add puts a request into the buffer for key, creating the buffer on first
// use. newTask is invoked only when a buffer is actually created, so timers
// never exist for keys that never saw traffic.
func (t *table[Q, R]) add(key string, newTask func() *flushTask, item Q, size int, handle *Result[R]) error {
	t.mu.Lock()
	buf, ok := t.byKey[key]
	if !ok {
		if len(t.byKey) == t.maxKeys {
			t.mu.Unlock()
			return fmt.Errorf("%w: %d partitions", ErrTooManyKeys, t.maxKeys)
		}
		buf = newBuffer[Q, R](t.maxBuffer, newTask())
		t.byKey[key] = buf
	}
	t.mu.Unlock()
	return buf.put(item, size, handle)
}

func (t *table[Q, R]) get(key string) *buffer[Q, R] {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.byKey[key]
}

func (t *table[Q, R]) contains(key string) bool {
	return t.get(key) != nil
}

// flushable returns the entries due for a reactive flush of key, or nil.
func (t *table[Q, R]) flushable(key string) []*entry[Q, R] {
	return t.extractor.flushable(t.get(key))
}

// flushableBeforeAdd returns the entries that must be flushed before a
// request of the given size is admitted to key, or nil.
func (t *table[Q, R]) flushableBeforeAdd(key string, incomingBytes int) []*entry[Q, R] {
	return t.extractor.flushableBeforeAdd(t.get(key), incomingBytes)
}

// scheduledFlushable returns the entries a timer flush of key should take,
// capped at maxItems, or nil.
func (t *table[Q, R]) scheduledFlushable(key string, maxItems int) []*entry[Q, R] {
	return t.extractor.scheduledFlushable(t.get(key), maxItems)
}

// setTask installs a new scheduled-flush task on key's buffer. No-op if the
// partition was cleared concurrently.
func (t *table[Q, R]) setTask(key string, task *flushTask) {
	if buf := t.get(key); buf != nil {
		buf.setTask(task)
	} else if task != nil {
		task.cancel()
	}
}

// cancelTask cancels key's scheduled-flush task. No-op if the partition was
// cleared concurrently.
func (t *table[Q, R]) cancelTask(key string) {
	if buf := t.get(key); buf != nil {
		buf.cancelTask()
	}
}

// forEach runs fn over a snapshot of the current partitions.
func (t *table[Q, R]) forEach(fn func(key string, buf *buffer[Q, R])) {
	t.mu.Lock()
	snapshot := make(map[string]*buffer[Q, R], len(t.byKey))
	for k, v := range t.byKey {
		snapshot[k] = v
	}
	t.mu.Unlock()
	for k, v := range snapshot {
		fn(k, v)
	}
}

// clear drops every buffer. Handles left in the buffers are not completed;
// the caller owns them.
func (t *table[Q, R]) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, buf := range t.byKey {
		buf.clear()
	}
	clear(t.byKey)
}
