// Package retry provides the bounded exponential-backoff retry used by the
// AI Analyzer Client, CAPTCHA Solver Client, and admin heartbeat loop.
// Generalized from the teacher's internal/services/crawler/retry.go.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"time"

	"github.com/ternarybob/arbor"
)

// Policy defines retry behavior with exponential backoff and jitter.
type Policy struct {
	MaxAttempts          int
	InitialBackoff       time.Duration
	MaxBackoff           time.Duration
	BackoffMultiplier    float64
	RetryableStatusCodes []int
}

// NewPolicy returns the default retry policy: 3 attempts, 1s initial
// backoff doubling to a 30s cap, retrying the usual transient HTTP codes.
func NewPolicy() *Policy {
	return &Policy{
		MaxAttempts:       3,
		InitialBackoff:    time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
		RetryableStatusCodes: []int{
			408, 429, 500, 502, 503, 504,
		},
	}
}

// ShouldRetry reports whether another attempt should be made given the
// attempt index (0-based), status code (0 if not HTTP), and error.
func (p *Policy) ShouldRetry(attempt int, statusCode int, err error) bool {
	if attempt >= p.MaxAttempts-1 {
		return false
	}

	if statusCode > 0 {
		if p.isRetryableStatusCode(statusCode) {
			return true
		}
		if statusCode >= 400 && statusCode < 500 && statusCode != 408 && statusCode != 429 {
			return false
		}
	}

	if err != nil {
		return isRetryableError(err)
	}

	return false
}

// CalculateBackoff returns the backoff duration for attempt (0-based) with
// +/-25% jitter.
func (p *Policy) CalculateBackoff(attempt int) time.Duration {
	backoff := float64(p.InitialBackoff) * pow(p.BackoffMultiplier, float64(attempt))
	if backoff > float64(p.MaxBackoff) {
		backoff = float64(p.MaxBackoff)
	}

	jitter := backoff * 0.25 * (rand.Float64()*2 - 1)
	backoff += jitter
	if backoff < 0 {
		backoff = float64(p.InitialBackoff)
	}

	return time.Duration(backoff)
}

// Do runs fn, retrying per the policy. fn returns an HTTP status code (0 if
// not applicable) and an error; Do stops on ctx cancellation.
func (p *Policy) Do(ctx context.Context, logger arbor.ILogger, fn func() (int, error)) (int, error) {
	var lastErr error
	var statusCode int

	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		statusCode, lastErr = fn()

		if lastErr == nil && !p.isRetryableStatusCode(statusCode) {
			return statusCode, nil
		}

		if !p.ShouldRetry(attempt, statusCode, lastErr) {
			return statusCode, lastErr
		}

		backoff := p.CalculateBackoff(attempt)
		if logger != nil {
			logger.Debug().
				Int("attempt", attempt+1).
				Int("status_code", statusCode).
				Err(lastErr).
				Dur("backoff", backoff).
				Msg("retrying after backoff")
		}

		select {
		case <-ctx.Done():
			return statusCode, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return statusCode, lastErr
}

func (p *Policy) isRetryableStatusCode(statusCode int) bool {
	for _, code := range p.RetryableStatusCodes {
		if statusCode == code {
			return true
		}
	}
	return false
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return false
}

func pow(base, exp float64) float64 {
	result := 1.0
	for i := 0; i < int(exp); i++ {
		result *= base
	}
	return result
}

// OnBusy retries fn a small bounded number of times when the error text
// indicates storage contention, mirroring the teacher's retryOnBusy helper
// in internal/jobs/manager.go. Used by badgerhold-backed repositories
// around transaction conflicts.
func OnBusy(fn func() error) error {
	const maxRetries = 5
	const baseDelay = 50 * time.Millisecond

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isBusyError(lastErr) {
			return lastErr
		}
		time.Sleep(baseDelay * time.Duration(1<<uint(attempt)))
	}
	return lastErr
}

func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return containsFold(msg, "conflict") || containsFold(msg, "busy") || containsFold(msg, "locked")
}

func containsFold(s, substr string) bool {
	sl, subl := []rune(s), []rune(substr)
	if len(subl) == 0 {
		return true
	}
	for i := 0; i+len(subl) <= len(sl); i++ {
		match := true
		for j := range subl {
			a, b := sl[i+j], subl[j]
			if a >= 'A' && a <= 'Z' {
				a += 'a' - 'A'
			}
			if b >= 'A' && b <= 'Z' {
				b += 'a' - 'A'
			}
			if a != b {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
