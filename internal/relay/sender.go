package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/cenkalti/backoff/v4"

	"github.com/Clarence404/batchkit/pkg/batch"
)

// batchItem is one identified event on the wire to the upstream.
type batchItem struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// ItemStatus is the upstream's per-event outcome. Error is set when the
// upstream rejected that event inside an otherwise successful batch.
type ItemStatus struct {
	ID     string `json:"id"`
	Status int    `json:"status"`
	Error  string `json:"error,omitempty"`
}

type SenderOption func(*Sender)

// WithHTTPClient sets the client used for upstream calls.
func WithHTTPClient(client *http.Client) SenderOption {
	return func(s *Sender) {
		s.client = client
	}
}

// WithSenderLogger sets the logger.
func WithSenderLogger(logger *slog.Logger) SenderOption {
	return func(s *Sender) {
		s.log = logger
	}
}

// WithMaxConcurrency bounds the number of upstream calls in flight at once.
func WithMaxConcurrency(n int) SenderOption {
	return func(s *Sender) {
		s.maxConcurrency = n
	}
}

// WithMaxRetries bounds retries of transient upstream failures per batch.
func WithMaxRetries(n uint64) SenderOption {
	return func(s *Sender) {
		s.maxRetries = n
	}
}

// Sender posts finished batches to the upstream endpoint. Transient failures
// (network errors, 5xx) are retried with exponential backoff; the batching
// engine itself never retries, so this is the only retry layer.
type Sender struct {
	upstream       string
	client         *http.Client
	log            *slog.Logger
	maxConcurrency int
	maxRetries     uint64
	pool           pond.ResultPool[[]ItemStatus]
}

func NewSender(upstream string, opts ...SenderOption) (*Sender, error) {
	u, err := url.Parse(upstream)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("upstream url %q is not a valid absolute URL", upstream)
	}

	s := &Sender{
		upstream:       upstream,
		client:         &http.Client{Timeout: 30 * time.Second},
		maxConcurrency: defaultMaxConcurrency,
		maxRetries:     defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	s.pool = pond.NewResultPool[[]ItemStatus](s.maxConcurrency)
	return s, nil
}

// Send posts one batch to the upstream, bounded by the sender's concurrency
// pool. It satisfies the batch engine's Send contract.
func (s *Sender) Send(ctx context.Context, entries []batch.Entry[Event], dest string) ([]ItemStatus, error) {
	task := s.pool.SubmitErr(func() ([]ItemStatus, error) {
		return s.post(ctx, entries, dest)
	})
	return task.Wait()
}

func (s *Sender) post(ctx context.Context, entries []batch.Entry[Event], dest string) ([]ItemStatus, error) {
	items := make([]batchItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, batchItem{ID: e.ID, Payload: e.Item.Payload})
	}
	body, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("failed to encode batch: %w", err)
	}

	var statuses []ItemStatus
	op := func() error {
		st, err := s.postOnce(ctx, body, dest)
		if err != nil {
			s.log.Warn("upstream batch post failed", "dest", dest, "items", len(items), "error", err)
			return err
		}
		statuses = st
		return nil
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), s.maxRetries), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return nil, fmt.Errorf("upstream batch post to %q failed: %w", dest, err)
	}
	return statuses, nil
}

func (s *Sender) postOnce(ctx context.Context, body []byte, dest string) ([]ItemStatus, error) {
	endpoint := s.upstream + "/v1/batch/" + url.PathEscape(dest)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return nil, fmt.Errorf("upstream returned %d", resp.StatusCode)
	default:
		// Client errors will not heal on retry.
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return nil, backoff.Permanent(fmt.Errorf("upstream returned %d", resp.StatusCode))
	}

	var statuses []ItemStatus
	if err := json.NewDecoder(resp.Body).Decode(&statuses); err != nil {
		return nil, fmt.Errorf("failed to decode upstream response: %w", err)
	}
	return statuses, nil
}

// mapReply converts upstream per-item statuses into engine outcomes.
func mapReply(statuses []ItemStatus) []batch.ItemOutcome[ItemStatus] {
	out := make([]batch.ItemOutcome[ItemStatus], 0, len(statuses))
	for _, st := range statuses {
		if st.Error != "" || st.Status >= 400 {
			out = append(out, batch.ItemOutcome[ItemStatus]{
				ID:  st.ID,
				Err: fmt.Errorf("upstream rejected event: status %d: %s", st.Status, st.Error),
			})
			continue
		}
		out = append(out, batch.ItemOutcome[ItemStatus]{ID: st.ID, Resp: st})
	}
	return out
}
