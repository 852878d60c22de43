package http

import (
	"fmt"
	"time"
)

// RateLimitError describes a throttled response (429, or 403 with a quota reason).
type RateLimitError struct {
	StatusCode int
	// RetryAfter is the pause the server or the limiter asked for.
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (status %d): retry after %v", e.StatusCode, e.RetryAfter)
	}
	return fmt.Sprintf("rate limited (status %d)", e.StatusCode)
}

// HTTPError describes a non-success response seen by the transport.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http error: status %d", e.StatusCode)
}
