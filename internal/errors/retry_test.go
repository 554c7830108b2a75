package errors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     20 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetry_SucceedsAfterTransientError(t *testing.T) {
	// Given: a function that fails twice then succeeds
	attempts := 0
	fn := func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient error")
		}
		return nil
	}

	// When: retrying
	err := Retry(context.Background(), fastRetryConfig(), fn)

	// Then: succeeds after 3 attempts
	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_FailsAfterMaxRetries(t *testing.T) {
	// Given: a function that always fails
	attempts := 0
	fn := func() error {
		attempts++
		return errors.New("persistent error")
	}

	// When: retrying with two retries
	cfg := fastRetryConfig()
	cfg.MaxRetries = 2
	err := Retry(context.Background(), cfg, fn)

	// Then: fails with wrapped error after initial + 2 attempts
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 retries")
	assert.Equal(t, 3, attempts)
}

func TestRetry_StopsOnNonRetryableError(t *testing.T) {
	// Given: the default policy and a validation failure
	attempts := 0
	fn := func() error {
		attempts++
		return ValidationError("top_k must not be negative", nil)
	}

	cfg := DefaultRetryConfig()
	cfg.InitialDelay = time.Millisecond

	// When: retrying
	err := Retry(context.Background(), cfg, fn)

	// Then: the error is returned after one attempt, unwrapped
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.True(t, IsValidation(err))
	assert.NotContains(t, err.Error(), "retries")
}

func TestRetry_RetriesEmbeddingFailureWithDefaultPolicy(t *testing.T) {
	// Given: an embedding failure that clears on the second attempt
	attempts := 0
	fn := func() error {
		attempts++
		if attempts == 1 {
			return EmbeddingError("gateway timeout", nil)
		}
		return nil
	}

	cfg := DefaultRetryConfig()
	cfg.InitialDelay = time.Millisecond

	// When: retrying
	err := Retry(context.Background(), cfg, fn)

	// Then: the second attempt succeeds
	assert.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestRetry_RespectsContextCancellation(t *testing.T) {
	// Given: a context cancelled while waiting between attempts
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	cfg := fastRetryConfig()
	cfg.InitialDelay = 500 * time.Millisecond
	cfg.MaxDelay = time.Second

	// When: retrying an always-failing function
	start := time.Now()
	err := Retry(ctx, cfg, func() error { return errors.New("error") })

	// Then: returns the context error quickly
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 400*time.Millisecond)
}

func TestRetry_CapsAtMaxDelay(t *testing.T) {
	// Given: a function that records timing
	var timestamps []time.Time
	fn := func() error {
		timestamps = append(timestamps, time.Now())
		if len(timestamps) < 5 {
			return errors.New("error")
		}
		return nil
	}

	cfg := RetryConfig{
		MaxRetries:   10,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     15 * time.Millisecond,
		Multiplier:   4.0,
	}

	// When: retrying
	require.NoError(t, Retry(context.Background(), cfg, fn))

	// Then: no gap grows far past the cap
	for i := 1; i < len(timestamps); i++ {
		assert.LessOrEqual(t, timestamps[i].Sub(timestamps[i-1]).Milliseconds(), int64(60))
	}
}

func TestRetryWithResult_ReturnsValue(t *testing.T) {
	// Given: a function that returns a value on its second call
	attempts := 0
	fn := func() (int, error) {
		attempts++
		if attempts < 2 {
			return 0, errors.New("error")
		}
		return 42, nil
	}

	// When: retrying
	result, err := RetryWithResult(context.Background(), fastRetryConfig(), fn)

	// Then: returns the value
	assert.NoError(t, err)
	assert.Equal(t, 42, result)
}

func TestRetryWithResult_ReturnsZeroOnFailure(t *testing.T) {
	// Given: a function that always fails with a partial value
	fn := func() (string, error) {
		return "partial", errors.New("error")
	}

	cfg := fastRetryConfig()
	cfg.MaxRetries = 1

	// When: retrying
	result, err := RetryWithResult(context.Background(), cfg, fn)

	// Then: returns zero value and error
	assert.Error(t, err)
	assert.Equal(t, "", result)
}

func TestDefaultRetryConfig_HasSensibleDefaults(t *testing.T) {
	cfg := DefaultRetryConfig()

	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 1*time.Second, cfg.InitialDelay)
	assert.Equal(t, 16*time.Second, cfg.MaxDelay)
	assert.Equal(t, 2.0, cfg.Multiplier)
	assert.NotNil(t, cfg.ShouldRetry)
}
