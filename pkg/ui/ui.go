// Package ui renders fetch progress and session statistics to the
// terminal. It writes human-readable lines, not structured logs; the
// structured log stream stays on stderr via the logging package.
package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Reporter handles status reporting and terminal output
type Reporter struct {
	writer io.Writer
	quiet  bool
}

// SessionStats tracks statistics across one command's fetches. Record
// methods are safe for concurrent use; background page look-ahead reports
// from its own goroutine.
type SessionStats struct {
	mu            sync.Mutex
	Fetches       int
	Items         int
	Requests      int
	CacheHits     int
	Revalidations int
	RateWaits     int
	TotalDuration time.Duration
	startTime     time.Time
}

// NewReporter creates a new status reporter
func NewReporter(writer io.Writer) *Reporter {
	return &Reporter{
		writer: writer,
		quiet:  false,
	}
}

// SetQuiet enables or disables quiet mode (suppresses progress messages)
func (r *Reporter) SetQuiet(quiet bool) {
	r.quiet = quiet
}

// FetchStart reports the start of a named fetch
func (r *Reporter) FetchStart(name string) {
	if r.quiet {
		return
	}
	fmt.Fprintf(r.writer, "[lazyhub] Fetching %s...\n", name)
}

// FetchDone reports a completed fetch with its item count and elapsed time
func (r *Reporter) FetchDone(name string, items int, elapsed time.Duration) {
	if r.quiet {
		return
	}
	fmt.Fprintf(r.writer, "[lazyhub] Fetched %s: %d items in %s.\n", name, items, r.formatDuration(elapsed))
}

// FetchFailed reports a failed fetch with its reason
func (r *Reporter) FetchFailed(name string, reason string) {
	if r.quiet {
		return
	}
	fmt.Fprintf(r.writer, "[lazyhub] Fetch %s failed (%s).\n", name, reason)
}

// FetchCancelled reports a cancelled fetch
func (r *Reporter) FetchCancelled(name string) {
	if r.quiet {
		return
	}
	fmt.Fprintf(r.writer, "[lazyhub] Fetch %s cancelled.\n", name)
}

// RateLimitWait reports a pause imposed by the rate budget
func (r *Reporter) RateLimitWait(delay time.Duration) {
	if r.quiet {
		return
	}
	fmt.Fprintf(r.writer, "[lazyhub] Rate limit low, waiting %s before next request.\n", r.formatDuration(delay))
}

// FinalSummary reports the session statistics
func (r *Reporter) FinalSummary(stats *SessionStats) {
	stats.mu.Lock()
	defer stats.mu.Unlock()

	fmt.Fprintf(r.writer, "\nSession Statistics:\n")
	fmt.Fprintf(r.writer, "  Fetches: %d\n", stats.Fetches)
	fmt.Fprintf(r.writer, "  Items: %d\n", stats.Items)
	fmt.Fprintf(r.writer, "  Requests: %d\n", stats.Requests)
	fmt.Fprintf(r.writer, "  Cache Hits: %d\n", stats.CacheHits)
	fmt.Fprintf(r.writer, "  Revalidations: %d\n", stats.Revalidations)
	if stats.RateWaits > 0 {
		fmt.Fprintf(r.writer, "  Rate Limit Waits: %d\n", stats.RateWaits)
	}
	fmt.Fprintf(r.writer, "  Total Duration: %s\n", r.formatDuration(stats.TotalDuration))
}

// formatDuration formats a duration in a human-readable way
func (r *Reporter) formatDuration(d time.Duration) string {
	if d == 0 {
		return "0s"
	}

	if d < time.Second {
		return fmt.Sprintf("%.1fs", float64(d)/float64(time.Second))
	}

	if d < time.Minute {
		seconds := float64(d) / float64(time.Second)
		if seconds == float64(int(seconds)) {
			return fmt.Sprintf("%.0fs", seconds)
		}
		formatted := fmt.Sprintf("%.2f", seconds)
		formatted = strings.TrimRight(formatted, "0")
		formatted = strings.TrimRight(formatted, ".")
		return formatted + "s"
	}

	hours := d / time.Hour
	minutes := (d % time.Hour) / time.Minute
	seconds := (d % time.Minute) / time.Second

	if hours > 0 {
		if minutes > 0 && seconds > 0 {
			return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
		} else if minutes > 0 {
			return fmt.Sprintf("%dh%dm", hours, minutes)
		} else if seconds > 0 {
			return fmt.Sprintf("%dh%ds", hours, seconds)
		}
		return fmt.Sprintf("%dh", hours)
	}

	if minutes > 0 {
		if seconds > 0 {
			return fmt.Sprintf("%dm%ds", minutes, seconds)
		}
		return fmt.Sprintf("%dm", minutes)
	}

	return fmt.Sprintf("%ds", seconds)
}

// NewSessionStats creates a new session statistics tracker
func NewSessionStats() *SessionStats {
	return &SessionStats{
		startTime: time.Now(),
	}
}

// RecordFetch records one completed fetch operation and its item count
func (s *SessionStats) RecordFetch(items int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fetches++
	s.Items += items
}

// RecordRequest records one network dispatch
func (s *SessionStats) RecordRequest() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Requests++
}

// RecordCacheHit records a lookup served without a network call
func (s *SessionStats) RecordCacheHit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CacheHits++
}

// RecordRevalidation records a conditional request answered with 304
func (s *SessionStats) RecordRevalidation() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Revalidations++
}

// RecordRateWait records a pause imposed by the rate budget
func (s *SessionStats) RecordRateWait() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RateWaits++
}

// Finalize calculates the total duration
func (s *SessionStats) Finalize() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TotalDuration = time.Since(s.startTime)
}
