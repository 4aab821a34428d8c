// Package retry provides bounded exponential backoff for transient provider
// failures.
package retry

import (
	"context"
	"math"
	"time"
)

// Config bounds the retry behavior.
type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultConfig retries three times: 1s, 2s, 4s.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// Func is one attempt. Returning retryable=false stops further attempts.
type Func func(ctx context.Context, attempt int) (retryable bool, err error)

// WithBackoff runs fn until it succeeds, becomes non-retryable, exhausts
// attempts or ctx ends. The error of the last attempt is returned together
// with the number of attempts made.
func WithBackoff(ctx context.Context, cfg Config, fn Func) (int, error) {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		retryable, err := fn(ctx, attempt)
		if err == nil {
			return attempt, nil
		}
		lastErr = err
		if !retryable || attempt == cfg.MaxAttempts {
			return attempt, lastErr
		}
		select {
		case <-time.After(Delay(cfg, attempt)):
		case <-ctx.Done():
			return attempt, ctx.Err()
		}
	}
	return cfg.MaxAttempts, lastErr
}

// Delay computes the backoff before the given attempt's retry.
func Delay(cfg Config, attempt int) time.Duration {
	if cfg.InitialDelay <= 0 {
		return 0
	}
	multiplier := cfg.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	d := time.Duration(float64(cfg.InitialDelay) * math.Pow(multiplier, float64(attempt-1)))
	if cfg.MaxDelay > 0 && d > cfg.MaxDelay {
		return cfg.MaxDelay
	}
	return d
}
