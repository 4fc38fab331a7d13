package githubclient

import (
	"fmt"
	"time"
)

// RateLimitError is surfaced when the client observes a 429, or a 403 with
// x-ratelimit-remaining == 0. The caller decides whether to sleep until
// ResetAt and retry or abort.
type RateLimitError struct {
	ResetAt time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("github rate limit exceeded, resets at %s", e.ResetAt.Format(time.RFC3339))
}

// NotFoundError wraps a 404 response.
type NotFoundError struct {
	URL string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("github: not found: %s", e.URL) }

// AccessDeniedError wraps a 401/403 response that isn't a rate-limit.
type AccessDeniedError struct {
	URL string
}

func (e *AccessDeniedError) Error() string { return fmt.Sprintf("github: access denied: %s", e.URL) }

// APIError wraps any other >=400 response.
type APIError struct {
	StatusCode int
	Body       string
	URL        string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github api error: status=%d url=%s body=%s", e.StatusCode, e.URL, e.Body)
}
