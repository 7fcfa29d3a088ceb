package retry

import (
	"context"
	"math"
	"time"
)

// Config controls retry behavior. MaxRetries counts retries after the first attempt.
type Config struct {
	MaxRetries int
	BaseDelay  time.Duration
	// Multiplier scales the delay after each failed attempt. Zero means doubling.
	Multiplier float64
	MaxDelay   time.Duration
	// OnRetry is called before sleeping, with the 1-based attempt that just failed.
	OnRetry func(attempt int, err error)
}

// Attempts returns a Config that runs fn at most n times with exponential backoff from base.
func Attempts(n int, base time.Duration) Config {
	return Config{MaxRetries: n - 1, BaseDelay: base}
}

// Do runs fn until it succeeds, the retry budget is exhausted or ctx is done.
// The last error from fn is returned when the budget runs out.
func Do(ctx context.Context, cfg Config, fn func(context.Context) error) error {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 100 * time.Millisecond
	}

	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= cfg.MaxRetries {
			return err
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err)
		}

		timer := time.NewTimer(cfg.Backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Backoff returns the delay after the given 0-based failed attempt.
func (cfg Config) Backoff(attempt int) time.Duration {
	multiplier := cfg.Multiplier
	if multiplier == 0 {
		multiplier = 2
	}
	delay := float64(cfg.BaseDelay) * math.Pow(multiplier, float64(attempt))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	return time.Duration(delay)
}
