package blob

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(retry RetryPolicy) *s3Store {
	return &s3Store{retry: retry, logger: zerolog.Nop()}
}

func TestWithRetrySucceedsAfterTransientFailure(t *testing.T) {
	s := testStore(RetryPolicy{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: 10 * time.Millisecond})

	attempts := 0
	err := s.withRetry(context.Background(), "upload", "k", func(context.Context) error {
		attempts++
		if attempts < 2 {
			return errors.New("connection reset")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestWithRetryNoBackoffSleepAfterFinalAttempt(t *testing.T) {
	backoff := 200 * time.Millisecond
	s := testStore(RetryPolicy{MaxRetries: 2, InitialBackoff: backoff, MaxBackoff: time.Second})

	attempts := 0
	start := time.Now()
	err := s.withRetry(context.Background(), "download", "k", func(context.Context) error {
		attempts++
		return errors.New("still down")
	})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Equal(t, 2, attempts)
	// One sleep between the two attempts; none after the last.
	assert.GreaterOrEqual(t, elapsed, backoff)
	assert.Less(t, elapsed, 2*backoff)
}

func TestWithRetryHonorsContextCancellation(t *testing.T) {
	s := testStore(RetryPolicy{MaxRetries: 5, InitialBackoff: time.Hour, MaxBackoff: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := s.withRetry(ctx, "upload", "k", func(context.Context) error {
		return errors.New("nope")
	})
	assert.ErrorIs(t, err, context.Canceled)
}
