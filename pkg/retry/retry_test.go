package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errTransient = errors.New("transient")

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}
}

func alwaysRetry(error) bool { return true }

func TestDoSucceedsFirstTry(t *testing.T) {
	h := New(fastConfig(4), alwaysRetry)

	calls := 0
	err := h.Do(context.Background(), func() error {
		calls++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	h := New(fastConfig(3), alwaysRetry)

	calls := 0
	err := h.Do(context.Background(), func() error {
		calls++
		return errTransient
	})

	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnNonRetriable(t *testing.T) {
	h := New(fastConfig(5), func(err error) bool { return errors.Is(err, errTransient) })

	calls := 0
	err := h.Do(context.Background(), func() error {
		calls++
		return errors.New("fatal")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRecoversMidway(t *testing.T) {
	h := New(fastConfig(5), alwaysRetry)

	calls := 0
	err := h.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoNeverRetriesContextErrors(t *testing.T) {
	h := New(fastConfig(5), alwaysRetry)

	calls := 0
	err := h.Do(context.Background(), func() error {
		calls++
		return context.DeadlineExceeded
	})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, calls)
}

func TestDoStopsWhenContextCancelled(t *testing.T) {
	h := New(Config{MaxAttempts: 5, InitialBackoff: 50 * time.Millisecond}, alwaysRetry)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	calls := 0
	err := h.Do(ctx, func() error {
		calls++
		return errTransient
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestNilClassifierNeverRetries(t *testing.T) {
	h := New(fastConfig(5), nil)

	calls := 0
	err := h.Do(context.Background(), func() error {
		calls++
		return errTransient
	})

	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 1, calls)
}

func TestSingleAttemptConfig(t *testing.T) {
	h := New(fastConfig(1), alwaysRetry)

	calls := 0
	_ = h.Do(context.Background(), func() error {
		calls++
		return errTransient
	})
	assert.Equal(t, 1, calls)
}
