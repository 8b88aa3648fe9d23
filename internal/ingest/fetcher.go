package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/shopfeed/shopfeed/internal/catalog"
	"github.com/shopfeed/shopfeed/internal/platform/retry"
)

// Classified terminal fetch failures. The orchestrator's ledger message
// depends on telling "no response" apart from "non-2xx" apart from "too
// slow", so each origin gets its own error.
var (
	ErrUnreachable = errors.New("ingest: merchant endpoint unreachable")
	ErrTimeout     = errors.New("ingest: merchant endpoint timed out")
)

// HTTPStatusError reports a non-2xx upstream response.
type HTTPStatusError struct {
	Status int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("ingest: merchant endpoint returned HTTP %d", e.Status)
}

const maxCatalogBytes = 32 << 20

// FetcherConfig controls the retry budget and pacing of catalog fetches.
type FetcherConfig struct {
	Attempts       int
	BackoffBase    time.Duration
	AttemptTimeout time.Duration
	RatePerSecond  float64
}

// Fetcher downloads merchant catalogs with a bounded retry budget and
// exponential backoff. The backoff sleep holds no locks or transactions.
type Fetcher struct {
	client         *http.Client
	policy         retry.Policy
	limiter        *rate.Limiter
	attemptTimeout time.Duration
}

// NewFetcher constructs a Fetcher. Zero config fields fall back to the
// default three attempts, one second base delay and thirty second attempt
// timeout.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 30 * time.Second
	}
	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}
	return &Fetcher{
		// The per-attempt deadline comes from the request context; the
		// client itself stays unbounded.
		client:         &http.Client{},
		policy:         retry.Policy{MaxAttempts: cfg.Attempts, BaseDelay: cfg.BackoffBase},
		limiter:        limiter,
		attemptTimeout: cfg.AttemptTimeout,
	}
}

// Fetch performs a GET against the merchant's catalog endpoint and returns
// the raw payload. Transient network failures are retried internally; the
// returned error is always a terminal, classified cause.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	err := retry.Do(ctx, f.policy, func(ctx context.Context) error {
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				return retry.Permanent(err)
			}
		}
		raw, err := f.attempt(ctx, url)
		if err != nil {
			return err
		}
		body = raw
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (f *Fetcher) attempt(ctx context.Context, url string) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, f.attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("%w: %s", ErrUnreachable, err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPStatusError{Status: resp.StatusCode}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxCatalogBytes))
	if err != nil {
		return nil, classifyTransportError(err)
	}
	if len(raw) == 0 || !json.Valid(raw) {
		// A broken payload will not heal on immediate retry; the
		// submitter or upstream has to fix it.
		return nil, retry.Permanent(fmt.Errorf("%w: response body is not json", catalog.ErrMalformed))
	}
	return raw, nil
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrTimeout, err)
	}
	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return fmt.Errorf("%w: %s", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %s", ErrUnreachable, err)
}
