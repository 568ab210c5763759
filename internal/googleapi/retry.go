package googleapi

import (
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"
	"sync"
	"time"
)

const (
	defaultMaxRetries      = 3
	defaultBaseDelay       = 500 * time.Millisecond
	maxRetryDelay          = 30 * time.Second
	breakerThreshold       = 5
	breakerCooldown        = 30 * time.Second
	maxDrainedResponseBody = 64 << 10
)

// RetryTransport retries rate-limited and server-failed calls with
// exponential backoff and jitter, honoring Retry-After. Non-idempotent
// requests are retried on 429 only: a 5xx on a batch update does not prove the
// batch was not applied.
type RetryTransport struct {
	Base       http.RoundTripper
	MaxRetries int
	BaseDelay  time.Duration

	sleep   func(*http.Request, time.Duration) error
	now     func() time.Time
	breaker circuitBreaker
}

func NewRetryTransport(base http.RoundTripper) *RetryTransport {
	return &RetryTransport{
		Base:       base,
		MaxRetries: defaultMaxRetries,
		BaseDelay:  defaultBaseDelay,
	}
}

func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	now := t.clock()
	if until, open := t.breaker.openUntil(now()); open {
		return nil, &CircuitBreakerError{Until: until}
	}

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			body, err := rewindBody(req)
			if err != nil {
				return nil, err
			}

			req.Body = body
		}

		resp, err := base.RoundTrip(req)
		if err != nil {
			return nil, err
		}

		t.breaker.record(resp.StatusCode >= 500, now())

		if attempt >= t.MaxRetries || !retryable(req, resp.StatusCode) {
			return resp, nil
		}

		delay := t.backoff(attempt, resp.Header.Get("Retry-After"))

		slog.Debug("retrying google api call", "method", req.Method, "url", req.URL.Redacted(), "status", resp.StatusCode, "attempt", attempt+1, "delay", delay)

		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainedResponseBody))
		_ = resp.Body.Close()

		if err := t.wait(req, delay); err != nil {
			return nil, err
		}
	}
}

func retryable(req *http.Request, status int) bool {
	if req.Body != nil && req.GetBody == nil {
		return false
	}

	if status == http.StatusTooManyRequests {
		return true
	}

	if status < 500 {
		return false
	}

	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}

	return false
}

func rewindBody(req *http.Request) (io.ReadCloser, error) {
	if req.GetBody == nil {
		return req.Body, nil
	}

	return req.GetBody()
}

func (t *RetryTransport) backoff(attempt int, retryAfter string) time.Duration {
	if secs, err := strconv.Atoi(retryAfter); err == nil && secs >= 0 {
		return min(time.Duration(secs)*time.Second, maxRetryDelay)
	}

	if when, err := http.ParseTime(retryAfter); err == nil {
		return min(max(when.Sub(t.clock()()), 0), maxRetryDelay)
	}

	base := t.BaseDelay
	if base <= 0 {
		base = defaultBaseDelay
	}

	d := base << attempt
	d += rand.N(d/2 + 1) //nolint:gosec // jitter

	return min(d, maxRetryDelay)
}

func (t *RetryTransport) wait(req *http.Request, d time.Duration) error {
	if t.sleep != nil {
		return t.sleep(req, d)
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-req.Context().Done():
		return req.Context().Err()
	}
}

func (t *RetryTransport) clock() func() time.Time {
	if t.now != nil {
		return t.now
	}

	return time.Now
}

// circuitBreaker opens after breakerThreshold consecutive server errors and
// lets traffic through again after breakerCooldown.
type circuitBreaker struct {
	mu       sync.Mutex
	failures int
	until    time.Time
}

func (b *circuitBreaker) openUntil(now time.Time) (time.Time, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.until.IsZero() {
		return time.Time{}, false
	}

	if now.Before(b.until) {
		return b.until, true
	}

	b.until = time.Time{}
	b.failures = 0

	return time.Time{}, false
}

func (b *circuitBreaker) record(serverError bool, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !serverError {
		b.failures = 0
		return
	}

	b.failures++
	if b.failures >= breakerThreshold {
		b.until = now.Add(breakerCooldown)
	}
}
