package store

import (
	"context"
	"fmt"
	"math"
	"time"

	"ghg-data-pipeline/internal/model"
)

// RetryConfig defines how connection attempts back off.
type RetryConfig struct {
	MaxAttempts       int           `json:"max_attempts"`
	InitialDelay      time.Duration `json:"initial_delay"`
	MaxDelay          time.Duration `json:"max_delay"`
	BackoffMultiplier float64       `json:"backoff_multiplier"`
}

// DefaultRetryConfig suits a database that may still be starting.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:       5,
	InitialDelay:      500 * time.Millisecond,
	MaxDelay:          10 * time.Second,
	BackoffMultiplier: 2.0,
}

// Delay returns the wait before the given retry (1-based), with exponential backoff capped
// at MaxDelay.
func (c RetryConfig) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := c.BackoffMultiplier
	if mult < 1 {
		mult = 1
	}
	delay := time.Duration(float64(c.InitialDelay) * math.Pow(mult, float64(attempt-1)))
	if c.MaxDelay > 0 && delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	return delay
}

// Retry calls op until it succeeds, ctx ends or attempts run out. Configuration errors
// are returned at once.
func Retry(ctx context.Context, cfg RetryConfig, op func() error) error {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = op(); err == nil || model.IsConfiguration(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		timer := time.NewTimer(cfg.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("gave up after %d attempt(s): %w", attempt, ctx.Err())
		case <-timer.C:
		}
	}
	return fmt.Errorf("gave up after %d attempt(s): %w", attempts, err)
}

// OpenWithRetry is Open retried under cfg.
func OpenWithRetry(ctx context.Context, driver, dsn string, cfg RetryConfig) (*Store, error) {
	var s *Store
	err := Retry(ctx, cfg, func() error {
		var err error
		s, err = Open(driver, dsn)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}
