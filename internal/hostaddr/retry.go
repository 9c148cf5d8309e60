package hostaddr

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig controls lookup retries.
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// DefaultRetryConfig returns the lookup retry policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2,
	}
}

func normalizeRetryConfig(cfg RetryConfig) RetryConfig {
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = 500 * time.Millisecond
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = 5 * time.Second
	}
	if cfg.Multiplier == 0 {
		cfg.Multiplier = 2
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return cfg
}

// permanent marks an error that retrying cannot fix.
type permanent struct{ err error }

func (p permanent) Error() string { return p.err.Error() }
func (p permanent) Unwrap() error { return p.err }

func isRetryable(err error) bool {
	var p permanent
	return !errors.As(err, &p)
}

// doWithRetry runs fn until it succeeds, fails permanently, or retries run out.
func doWithRetry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	cfg = normalizeRetryConfig(cfg)

	backoffCfg := backoff.NewExponentialBackOff()
	backoffCfg.InitialInterval = cfg.InitialInterval
	backoffCfg.MaxInterval = cfg.MaxInterval
	backoffCfg.Multiplier = cfg.Multiplier
	backoffCfg.MaxElapsedTime = 0

	attempts := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || !isRetryable(err) || attempts >= cfg.MaxRetries {
			return err
		}
		attempts++

		wait := backoffCfg.NextBackOff()
		if wait == backoff.Stop {
			return err
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return ctx.Err()
		case <-timer.C:
		}
	}
}
