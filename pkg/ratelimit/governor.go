// Package ratelimit tracks GitHub's request budget and schedules outbound
// requests so the client stays clear of 403/429 responses.
package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/lazyhub/lazyhub/pkg/logging"
)

// Budget is the most recently observed rate-limit state
type Budget struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

// Known reports whether any rate-limit headers have been observed yet
func (b Budget) Known() bool {
	return !b.Reset.IsZero()
}

// Governor gates request dispatch on the remaining rate-limit budget and
// derives retry delays from server timing headers. Updates are keyed writes
// under a single mutex; no caller holds it across a network call.
type Governor struct {
	mu        sync.Mutex
	budget    Budget
	threshold int
	fallback  Strategy
	maxDelay  time.Duration
	logger    *logging.Logger
	now       func() time.Time
}

// NewGovernor creates a Governor. threshold is the minimum safe remaining
// budget; fallback supplies delays when the server sends no timing
// information; maxDelay caps any server-specified wait.
func NewGovernor(threshold int, fallback Strategy, maxDelay time.Duration, logger *logging.Logger) *Governor {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Governor{
		threshold: threshold,
		fallback:  fallback,
		maxDelay:  maxDelay,
		logger:    logger.WithComponent("ratelimit"),
		now:       time.Now,
	}
}

// BeforeDispatch returns how long the caller must wait before firing a
// request. Zero means proceed. When the remaining budget is at or below the
// safe threshold the wait runs until the budget resets.
func (g *Governor) BeforeDispatch() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.budget.Known() || g.budget.Remaining > g.threshold {
		return 0
	}

	wait := g.budget.Reset.Sub(g.now())
	if wait <= 0 {
		// The window rolled over; assume a renewed budget until the next
		// response says otherwise
		g.budget.Remaining = g.budget.Limit
		return 0
	}

	g.logger.Warn("rate budget exhausted, deferring dispatch",
		"remaining", g.budget.Remaining, "wait", wait)
	return wait
}

// Record updates the budget from a response's rate-limit headers. Called
// for every response, success or failure.
func (g *Governor) Record(resp *http.Response) {
	remaining, okRemaining := headerInt(resp.Header, "X-RateLimit-Remaining")
	resetUnix, okReset := headerInt(resp.Header, "X-RateLimit-Reset")
	if !okRemaining || !okReset {
		return
	}

	reset := time.Unix(int64(resetUnix), 0)

	g.mu.Lock()
	defer g.mu.Unlock()

	// Responses can complete out of order; within one window only a lower
	// remaining count is news
	if g.budget.Known() && reset.Equal(g.budget.Reset) && remaining > g.budget.Remaining {
		return
	}

	if limit, ok := headerInt(resp.Header, "X-RateLimit-Limit"); ok {
		g.budget.Limit = limit
	}
	g.budget.Remaining = remaining
	g.budget.Reset = reset
}

// RetryDelay returns how long to wait before retrying a rate-limited
// response. Retry-After is honored when present (clock skew and secondary
// abuse limits bypass the budget check); otherwise the wait runs to the
// budget reset, or falls back to exponential backoff.
func (g *Governor) RetryDelay(resp *http.Response, attempt int) time.Duration {
	if delay, ok := parseRetryAfter(resp.Header, g.now()); ok {
		return g.cap(delay)
	}

	if resetUnix, ok := headerInt(resp.Header, "X-RateLimit-Reset"); ok {
		if remaining, okRem := headerInt(resp.Header, "X-RateLimit-Remaining"); okRem && remaining == 0 {
			if wait := time.Unix(int64(resetUnix), 0).Sub(g.now()); wait > 0 {
				return g.cap(wait)
			}
		}
	}

	return g.cap(g.fallback.Delay(attempt))
}

// Snapshot returns the current budget
func (g *Governor) Snapshot() Budget {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.budget
}

func (g *Governor) cap(delay time.Duration) time.Duration {
	if g.maxDelay > 0 && delay > g.maxDelay {
		return g.maxDelay
	}
	return delay
}

// IsRateLimited reports whether a response is a rate-limit rejection.
// GitHub signals primary limits with 403 + an exhausted budget and
// secondary limits with 429 or a Retry-After header.
func IsRateLimited(resp *http.Response) bool {
	if resp.StatusCode == http.StatusTooManyRequests {
		return true
	}
	if resp.StatusCode != http.StatusForbidden {
		return false
	}
	if resp.Header.Get("Retry-After") != "" {
		return true
	}
	remaining, ok := headerInt(resp.Header, "X-RateLimit-Remaining")
	return ok && remaining == 0
}

// parseRetryAfter handles both delta-seconds and HTTP-date forms
func parseRetryAfter(header http.Header, now time.Time) (time.Duration, bool) {
	value := header.Get("Retry-After")
	if value == "" {
		return 0, false
	}

	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}

	if at, err := http.ParseTime(value); err == nil {
		if wait := at.Sub(now); wait > 0 {
			return wait, true
		}
	}
	return 0, false
}

func headerInt(header http.Header, name string) (int, bool) {
	value := header.Get(name)
	if value == "" {
		return 0, false
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return n, true
}
