package ratelimit

import (
	"math"
	"math/rand"
	"time"
)

// Strategy defines the interface for backoff strategies
type Strategy interface {
	// Delay returns the duration to wait before the next attempt
	// attempt is 1-based (1 for first retry, 2 for second retry, etc.)
	Delay(attempt int) time.Duration
}

// Exponential implements an exponential backoff strategy
type Exponential struct {
	BaseDelay  time.Duration
	Multiplier float64
	MaxDelay   time.Duration
}

// NewExponential creates a new Exponential backoff strategy.
// maxDelay caps the delay (0 means no cap).
func NewExponential(baseDelay time.Duration, multiplier float64, maxDelay time.Duration) *Exponential {
	return &Exponential{
		BaseDelay:  baseDelay,
		Multiplier: multiplier,
		MaxDelay:   maxDelay,
	}
}

// Delay returns baseDelay * multiplier^(attempt-1), capped at MaxDelay
func (e *Exponential) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return e.BaseDelay
	}

	delay := float64(e.BaseDelay) * math.Pow(e.Multiplier, float64(attempt-1))
	result := time.Duration(delay)

	if e.MaxDelay > 0 && result > e.MaxDelay {
		result = e.MaxDelay
	}
	return result
}

// Jitter implements full-jitter exponential backoff: a random delay between
// zero and the exponential delay for the attempt. Spreads concurrent
// retries so they do not re-trip a secondary abuse limit together.
type Jitter struct {
	BaseDelay  time.Duration
	Multiplier float64
	MaxDelay   time.Duration
}

// NewJitter creates a new Jitter backoff strategy
func NewJitter(baseDelay time.Duration, multiplier float64, maxDelay time.Duration) *Jitter {
	return &Jitter{
		BaseDelay:  baseDelay,
		Multiplier: multiplier,
		MaxDelay:   maxDelay,
	}
}

// Delay returns a random delay between 0 and the exponential delay
func (j *Jitter) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return time.Duration(rand.Float64() * float64(j.BaseDelay))
	}

	exponentialDelay := float64(j.BaseDelay) * math.Pow(j.Multiplier, float64(attempt-1))

	if j.MaxDelay > 0 && time.Duration(exponentialDelay) > j.MaxDelay {
		exponentialDelay = float64(j.MaxDelay)
	}

	return time.Duration(rand.Float64() * exponentialDelay)
}
