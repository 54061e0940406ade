package batch

import "errors"

var (
	// ErrBufferFull is reported on a result handle when the request's
	// partition already holds MaxBufferSize pending requests.
	ErrBufferFull = errors.New("batch buffer full")

	// ErrTooManyKeys is reported on a result handle when admitting the
	// request would create a partition beyond MaxBatchKeys.
	ErrTooManyKeys = errors.New("too many batch keys")

	// ErrClosed is reported on result handles that are still pending when
	// the batcher shuts down, and on submissions after Close.
	ErrClosed = errors.New("batcher closed")
)
