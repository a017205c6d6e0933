package client

import (
	"fmt"
	"time"
)

// NetworkError is a transient transport failure that persisted through the
// retry budget.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// RateLimitedError is surfaced only after the rate governor's backoff and
// retry budget is exhausted.
type RateLimitedError struct {
	ResetAt time.Time
}

func (e *RateLimitedError) Error() string {
	if e.ResetAt.IsZero() {
		return "rate limited by GitHub"
	}
	return fmt.Sprintf("rate limited by GitHub until %s", e.ResetAt.Format(time.RFC3339))
}

// AuthExpiredError is surfaced after a credential refresh attempt fails
type AuthExpiredError struct {
	Err error
}

func (e *AuthExpiredError) Error() string {
	return fmt.Sprintf("authentication expired: %v", e.Err)
}

func (e *AuthExpiredError) Unwrap() error {
	return e.Err
}

// APIError is a non-2xx response outside the retryable taxonomy (404, 422,
// a plain 403, or a 5xx that persisted through retries).
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("GitHub API error: status %d", e.StatusCode)
}
