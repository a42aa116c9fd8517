// Package retry executes operations against flaky backends with exponential
// backoff. Callers supply the classifier: the queue proxy, the LLM proxy and
// the brokerage gateway each have their own idea of what is transient.
package retry

import (
	"context"
	"errors"
	"time"
)

const (
	defaultMaxAttempts    = 4 // first try plus three retries
	defaultInitialBackoff = 200 * time.Millisecond
	defaultMaxBackoff     = 3 * time.Second
	defaultMultiplier     = 2.0
)

// Classifier reports whether an error is worth another attempt. Context
// cancellation is handled by the handler itself and never reaches the
// classifier.
type Classifier func(error) bool

// Config bounds the retry schedule.
type Config struct {
	// MaxAttempts counts the first try, so 1 disables retries entirely.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = defaultInitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = defaultMaxBackoff
	}
	if c.Multiplier <= 1 {
		c.Multiplier = defaultMultiplier
	}
	return c
}

// Handler retries operations whose errors the classifier accepts.
type Handler struct {
	cfg       Config
	retriable Classifier
}

// New constructs a handler. A nil classifier retries nothing.
func New(cfg Config, retriable Classifier) *Handler {
	return &Handler{cfg: cfg.withDefaults(), retriable: retriable}
}

// Do runs fn until it succeeds, the classifier rejects its error, attempts
// run out, or ctx ends. The last error from fn is returned on exhaustion.
func (h *Handler) Do(ctx context.Context, fn func() error) error {
	backoff := h.cfg.InitialBackoff

	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if attempt >= h.cfg.MaxAttempts || h.retriable == nil || !h.retriable(err) {
			return err
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * h.cfg.Multiplier)
		if backoff > h.cfg.MaxBackoff {
			backoff = h.cfg.MaxBackoff
		}
	}
}
