package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_ShouldRetry(t *testing.T) {
	p := NewPolicy()

	tests := []struct {
		name       string
		attempt    int
		statusCode int
		err        error
		want       bool
	}{
		{"retryable status code", 0, 503, nil, true},
		{"non-retryable client error", 0, 400, nil, false},
		{"rate limited", 0, 429, nil, true},
		{"exhausted attempts", 2, 503, nil, false},
		{"context deadline exceeded", 0, 0, context.DeadlineExceeded, true},
		{"no error no retry", 0, 200, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.ShouldRetry(tt.attempt, tt.statusCode, tt.err))
		})
	}
}

func TestPolicy_CalculateBackoff(t *testing.T) {
	p := NewPolicy()
	p.InitialBackoff = 100 * time.Millisecond
	p.MaxBackoff = 1 * time.Second
	p.BackoffMultiplier = 2.0

	for attempt := 0; attempt < 5; attempt++ {
		backoff := p.CalculateBackoff(attempt)
		assert.GreaterOrEqual(t, backoff, time.Duration(0))
		assert.LessOrEqual(t, backoff, p.MaxBackoff+p.MaxBackoff/4)
	}
}

func TestPolicy_Do_SucceedsAfterRetries(t *testing.T) {
	p := NewPolicy()
	p.InitialBackoff = time.Millisecond
	p.MaxBackoff = 5 * time.Millisecond

	attempts := 0
	status, err := p.Do(context.Background(), nil, func() (int, error) {
		attempts++
		if attempts < 3 {
			return 503, errors.New("unavailable")
		}
		return 200, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 200, status)
	assert.Equal(t, 3, attempts)
}

func TestPolicy_Do_StopsOnContextCancel(t *testing.T) {
	p := NewPolicy()
	p.InitialBackoff = 50 * time.Millisecond
	p.MaxBackoff = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Do(ctx, nil, func() (int, error) {
		return 503, errors.New("unavailable")
	})

	require.Error(t, err)
}

func TestOnBusy_RetriesOnConflict(t *testing.T) {
	attempts := 0
	err := OnBusy(func() error {
		attempts++
		if attempts < 2 {
			return errors.New("transaction conflict")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestOnBusy_DoesNotRetryOtherErrors(t *testing.T) {
	attempts := 0
	err := OnBusy(func() error {
		attempts++
		return errors.New("validation failed")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}
