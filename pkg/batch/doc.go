// Package batch implements an automatic request-batching engine. Callers
// submit individual requests from any number of goroutines; the engine groups
// them by a caller-supplied batch key, coalesces each group into a single
// downstream batch call when a size or byte threshold is reached or a
// per-partition timer fires, and routes the batch response back to the
// per-request result handles.
//
// The engine is transport-agnostic. The downstream call, the batch key
// function, and the optional per-request byte size estimate are supplied
// through Config; the engine only decides when to flush and guarantees that
// every submitted request completes exactly once, in per-partition
// submission order.
package batch
