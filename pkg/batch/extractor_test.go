package batch

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBatch_Extractor_NothingDueReturnsEmpty(t *testing.T) {
	t.Parallel()

	x := extractor[string, string]{policy: flushPolicy{maxItems: 10}}
	require.Empty(t, x.flushable(nil))
	require.Empty(t, x.flushableBeforeAdd(nil, 100))
	require.Empty(t, x.scheduledFlushable(nil, 10))

	buf := newBuffer[string, string](1000, nil)
	require.Empty(t, x.flushable(buf))
	require.Empty(t, x.scheduledFlushable(buf, 10))

	require.NoError(t, buf.put("request", 0, newResult[string]()))
	require.Empty(t, x.flushable(buf), "one entry under a 10-item ceiling is not due")
	require.Equal(t, 1, buf.len())
}

func TestBatch_Extractor_ReactiveTakesExactlyMaxItemsAndEmptiesBuffer(t *testing.T) {
	t.Parallel()

	x := extractor[string, string]{policy: flushPolicy{maxItems: 5}}
	buf := newBuffer[string, string](1000, nil)
	for i := 0; i < 5; i++ {
		require.NoError(t, buf.put("request", 0, newResult[string]()))
	}

	entries := x.flushable(buf)
	require.Equal(t, []string{"0", "1", "2", "3", "4"}, entryIDs(entries))
	require.True(t, buf.empty())
}

func TestBatch_Extractor_SingleItemPolicyFlushesFirstEntry(t *testing.T) {
	t.Parallel()

	x := extractor[string, string]{policy: flushPolicy{maxItems: 1}}
	buf := newBuffer[string, string](1000, nil)
	require.NoError(t, buf.put("request", 0, newResult[string]()))

	entries := x.flushable(buf)
	require.Len(t, entries, 1)
	require.Equal(t, "0", entries[0].id)
}

func TestBatch_Extractor_BeforeAddSmallIncomingDoesNotFlush(t *testing.T) {
	t.Parallel()

	x := extractor[string, string]{policy: flushPolicy{maxItems: 5, maxBytes: 256_000}}
	buf := newBuffer[string, string](1000, nil)
	for i := 0; i < 5; i++ {
		require.NoError(t, buf.put("request", 10, newResult[string]()))
	}

	require.Empty(t, x.flushableBeforeAdd(buf, len("Hi")))
	require.Equal(t, 5, buf.len())
}

func TestBatch_Extractor_BeforeAddOversizedResidentFlushes(t *testing.T) {
	t.Parallel()

	x := extractor[string, string]{policy: flushPolicy{maxItems: 5, maxBytes: 256_000}}
	buf := newBuffer[string, string](1000, nil)
	large := strings.Repeat("a", 245_760)
	require.NoError(t, buf.put(large, len(large), newResult[string]()))

	entries := x.flushableBeforeAdd(buf, 16_000)
	require.Len(t, entries, 1)
	require.True(t, buf.empty())
}

func TestBatch_Extractor_BeforeAddCumulativeOverflowFlushesAllResident(t *testing.T) {
	t.Parallel()

	x := extractor[string, string]{policy: flushPolicy{maxItems: 5, maxBytes: 256_000}}
	buf := newBuffer[string, string](1000, nil)
	for i := 0; i < 2; i++ {
		require.NoError(t, buf.put("large", 130_000, newResult[string]()))
	}

	// 260 000 resident bytes already exceed the ceiling, so any incoming
	// request flushes both.
	entries := x.flushableBeforeAdd(buf, len("x"))
	require.Len(t, entries, 2)
	require.True(t, buf.empty())
}

func TestBatch_Extractor_ScheduledIgnoresByteLimitAndCapsAtMaxItems(t *testing.T) {
	t.Parallel()

	x := extractor[string, string]{policy: flushPolicy{maxItems: 10, maxBytes: 100}}
	buf := newBuffer[string, string](1000, nil)
	for i := 0; i < 7; i++ {
		require.NoError(t, buf.put("request", 1_000, newResult[string]()))
	}

	entries := x.scheduledFlushable(buf, 4)
	require.Equal(t, []string{"0", "1", "2", "3"}, entryIDs(entries))
	require.Equal(t, 3, buf.len())
}
