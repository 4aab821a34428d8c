package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig(maxAttempts int) Config {
	return Config{MaxAttempts: maxAttempts, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

func TestWithBackoffSucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	attempts, err := WithBackoff(context.Background(), fastConfig(5), func(ctx context.Context, attempt int) (bool, error) {
		calls++
		if calls < 3 {
			return true, errors.New("transient")
		}
		return false, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 || calls != 3 {
		t.Fatalf("attempts = %d calls = %d, want 3", attempts, calls)
	}
}

func TestWithBackoffStopsOnPermanentFailure(t *testing.T) {
	permanent := errors.New("permanent")
	calls := 0
	attempts, err := WithBackoff(context.Background(), fastConfig(5), func(ctx context.Context, attempt int) (bool, error) {
		calls++
		return false, permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("want permanent error, got %v", err)
	}
	if attempts != 1 || calls != 1 {
		t.Fatalf("attempts = %d calls = %d, want 1", attempts, calls)
	}
}

func TestWithBackoffExhaustsAttempts(t *testing.T) {
	transient := errors.New("transient")
	attempts, err := WithBackoff(context.Background(), fastConfig(3), func(ctx context.Context, attempt int) (bool, error) {
		return true, transient
	})
	if !errors.Is(err, transient) {
		t.Fatalf("want transient error, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestWithBackoffHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{MaxAttempts: 10, InitialDelay: time.Minute, Multiplier: 2}
	go cancel()
	_, err := WithBackoff(ctx, cfg, func(ctx context.Context, attempt int) (bool, error) {
		return true, errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestDelayCaps(t *testing.T) {
	cfg := Config{InitialDelay: time.Second, MaxDelay: 4 * time.Second, Multiplier: 2}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 4 * time.Second},
	}
	for _, tt := range tests {
		if got := Delay(cfg, tt.attempt); got != tt.want {
			t.Fatalf("Delay(attempt=%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
