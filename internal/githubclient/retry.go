package githubclient

import (
	"bytes"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// retryableStatus lists the GitHub REST status codes worth a retry.
var retryableStatus = map[int]bool{
	http.StatusRequestTimeout:     true,
	http.StatusTooManyRequests:    true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:         true,
	http.StatusServiceUnavailable: true,
	http.StatusGatewayTimeout:     true,
}

// retryBaseDelay and retryMaxDelay are vars, not consts, so tests can
// shrink them instead of waiting on real backoff timers.
var (
	retryBaseDelay = time.Second
	retryMaxDelay  = 60 * time.Second
)

// defaultMaxRetries is used when a Config leaves RetryAttempts unset.
const defaultMaxRetries = 3

// retryTransport is an http.RoundTripper that retries transient failures
// with full-jitter exponential backoff.
type retryTransport struct {
	next       http.RoundTripper
	logger     *zap.Logger
	maxRetries int
}

func newRetryTransport(next http.RoundTripper, logger *zap.Logger, maxRetries int) *retryTransport {
	if next == nil {
		next = http.DefaultTransport
	}
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	return &retryTransport{next: next, logger: logger, maxRetries: maxRetries}
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = retryBaseDelay
	bo.MaxInterval = retryMaxDelay
	bo.MaxElapsedTime = 0 // bounded by t.maxRetries below, not wall time
	// Jitter is applied below, over the whole interval.
	bo.RandomizationFactor = 0

	var bodyBytes []byte
	if req.Body != nil {
		b, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("buffer request body for retry: %w", err)
		}
		req.Body.Close()
		bodyBytes = b
	}

	var resp *http.Response
	var lastErr error

	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		if attempt > 0 {
			delay := bo.NextBackOff()
			if delay == backoff.Stop {
				break
			}
			// Full jitter: wait a uniform random duration in [0, delay].
			delay = time.Duration(rand.Int63n(int64(delay) + 1))
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		if bodyBytes != nil {
			req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}

		resp, lastErr = t.next.RoundTrip(req)
		if lastErr != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			t.logf("github transport error, retrying", attempt, lastErr)
			continue
		}

		if rle := t.checkRateLimit(resp); rle != nil {
			resp.Body.Close()
			return nil, rle
		}

		if !retryableStatus[resp.StatusCode] {
			return resp, nil
		}

		if attempt == t.maxRetries {
			return resp, nil
		}

		t.logf(fmt.Sprintf("github request returned retryable status %d, retrying", resp.StatusCode), attempt, nil)
		resp.Body.Close()
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return resp, nil
}

func (t *retryTransport) checkRateLimit(resp *http.Response) error {
	if resp.StatusCode != http.StatusForbidden && resp.StatusCode != http.StatusTooManyRequests {
		return nil
	}
	remaining := resp.Header.Get("x-ratelimit-remaining")
	if remaining != "0" && resp.StatusCode != http.StatusTooManyRequests {
		return nil
	}

	resetAt := time.Now().Add(time.Minute)
	if resetHeader := resp.Header.Get("x-ratelimit-reset"); resetHeader != "" {
		if secs, err := strconv.ParseInt(resetHeader, 10, 64); err == nil {
			resetAt = time.Unix(secs, 0)
		}
	}
	if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
		if secs, err := strconv.Atoi(retryAfter); err == nil {
			resetAt = time.Now().Add(time.Duration(secs) * time.Second)
		}
	}

	return &RateLimitError{ResetAt: resetAt}
}

func (t *retryTransport) logf(msg string, attempt int, err error) {
	if t.logger == nil {
		return
	}
	fields := []zap.Field{zap.Int("attempt", attempt)}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	t.logger.Warn(msg, fields...)
}
