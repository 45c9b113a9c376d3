package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	defaultFetchTimeout    = 30 * time.Second
	defaultMaxElapsed      = 20 * time.Second
	defaultMaxDownloadSize = 64 << 20
)

// ErrTooLarge is returned by [Fetcher.Fetch] when the response body exceeds
// the configured size limit.
var ErrTooLarge = errors.New("staging: download exceeds size limit")

// StatusError is returned when the remote responds with a non-2xx status
// after all retries are exhausted (or immediately for non-retryable codes).
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("staging: unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("staging: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Fetcher downloads staged objects over plain HTTP GET with exponential
// backoff. It is shared by every Store implementation whose transformed
// variants are served from a public URL. Safe for concurrent use.
type Fetcher struct {
	client     *http.Client
	maxElapsed time.Duration
	maxSize    int64
}

// FetcherOption is a functional option for [NewFetcher].
type FetcherOption func(*Fetcher)

// WithHTTPClient overrides the HTTP client used for downloads.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// WithMaxElapsed bounds the total time spent retrying a single download.
// Zero disables retries.
func WithMaxElapsed(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if d >= 0 {
			f.maxElapsed = d
		}
	}
}

// WithMaxSize caps the number of bytes a download may return.
func WithMaxSize(n int64) FetcherOption {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxSize = n
		}
	}
}

// NewFetcher returns a Fetcher with sensible defaults.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client:     &http.Client{Timeout: defaultFetchTimeout},
		maxElapsed: defaultMaxElapsed,
		maxSize:    defaultMaxDownloadSize,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fetch downloads url, retrying transport errors, 5xx responses and 423
// (the transformation is still being generated). Other 4xx responses fail
// immediately.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	bo.MaxElapsedTime = f.maxElapsed
	var policy backoff.BackOff = bo
	if f.maxElapsed == 0 {
		policy = &backoff.StopBackOff{}
	}

	return backoff.RetryWithData[[]byte](func() ([]byte, error) {
		return f.fetchOnce(ctx, url)
	}, backoff.WithContext(policy, ctx))
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("staging: build request: %w", err))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, fmt.Errorf("staging: GET: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		serr := &StatusError{StatusCode: resp.StatusCode, Body: string(snippet)}
		if retryable(resp.StatusCode) {
			return nil, serr
		}
		return nil, backoff.Permanent(serr)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("staging: read body: %w", err)
	}
	if int64(len(data)) > f.maxSize {
		return nil, backoff.Permanent(ErrTooLarge)
	}
	return data, nil
}

func retryable(status int) bool {
	return status >= 500 || status == http.StatusLocked || status == http.StatusTooManyRequests
}
