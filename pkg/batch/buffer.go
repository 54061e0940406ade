package batch

import (
	"fmt"
	"math"
	"strconv"
	"sync"
)

// entry is one buffered request: the request itself, its cached byte-size
// estimate, and the handle its response will be delivered on, keyed by the
// sequence id assigned at admission.
type entry[Q, R any] struct {
	id     string
	item   Q
	size   int
	handle *Result[R]
}

// buffer is the ordered store of pending requests for a single batch key.
// Sequence ids are assigned by a monotonically increasing write cursor and
// extracted by an independent read cursor, so entries leave the buffer in
// exactly the order they arrived and a flush can never skip or duplicate one.
// Both cursors wrap to 0 at math.MaxInt32.
type buffer[Q, R any] struct {
	mu      sync.Mutex
	byID    map[string]*entry[Q, R]
	maxSize int
	nextID  int // next sequence id to assign
	nextOut int // next sequence id to extract
	task    *flushTask
}

func newBuffer[Q, R any](maxSize int, task *flushTask) *buffer[Q, R] {
	return &buffer[Q, R]{
		byID:    make(map[string]*entry[Q, R]),
		maxSize: maxSize,
		task:    task,
	}
}

// put admits a request under the next sequence id. Fails with ErrBufferFull
// at capacity. A wraparound collision with a resident entry would need 2^31
// entries in one partition; it is asserted against rather than misrouting.
func (b *buffer[Q, R]) put(item Q, size int, handle *Result[R]) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.byID) == b.maxSize {
		return fmt.Errorf("%w: %d pending requests", ErrBufferFull, b.maxSize)
	}
	if b.nextID == math.MaxInt32 {
		b.nextID = 0
	}
	id := strconv.Itoa(b.nextID)
	if _, taken := b.byID[id]; taken {
		return fmt.Errorf("sequence id %s wrapped onto a resident entry", id)
	}
	b.nextID++
	b.byID[id] = &entry[Q, R]{id: id, item: item, size: size, handle: handle}
	return nil
}

// extract removes and returns up to maxEntries entries in sequence order,
// starting at the read cursor. It stops early if the next expected id is
// absent or the cap is reached.
func (b *buffer[Q, R]) extract(maxEntries int) []*entry[Q, R] {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*entry[Q, R]
	for len(out) < maxEntries {
		if b.nextOut == math.MaxInt32 {
			b.nextOut = 0
		}
		id := strconv.Itoa(b.nextOut)
		e, ok := b.byID[id]
		if !ok {
			break
		}
		delete(b.byID, id)
		out = append(out, e)
		b.nextOut++
	}
	return out
}

func (b *buffer[Q, R]) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.byID)
}

func (b *buffer[Q, R]) empty() bool {
	return b.len() == 0
}

// bytes returns the summed byte-size estimates of all resident entries.
func (b *buffer[Q, R]) bytes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := 0
	for _, e := range b.byID {
		total += e.size
	}
	return total
}

// handles returns a snapshot of every resident result handle. Used at
// shutdown to cancel whatever a final drain could not deliver.
func (b *buffer[Q, R]) handles() []*Result[R] {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Result[R], 0, len(b.byID))
	for _, e := range b.byID {
		out = append(out, e.handle)
	}
	return out
}

// clear drops all entries without completing their handles; the caller owns
// completion.
func (b *buffer[Q, R]) clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.byID)
}

// setTask replaces the owned scheduled-flush task.
func (b *buffer[Q, R]) setTask(task *flushTask) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.task = task
}

// cancelTask cancels the owned scheduled-flush task, if any. An already
// running scheduled flush is allowed to finish.
func (b *buffer[Q, R]) cancelTask() {
	b.mu.Lock()
	task := b.task
	b.mu.Unlock()
	if task != nil {
		task.cancel()
	}
}
