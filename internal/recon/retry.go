package recon

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// RetryConfig controls how often a failed scan is repeated.
type RetryConfig struct {
	Attempts    int
	Warmup      time.Duration
	BackoffUnit time.Duration
}

// DefaultRetryConfig returns three attempts, a two second warm-up and a one
// second linear backoff step.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts:    3,
		Warmup:      2 * time.Second,
		BackoffUnit: time.Second,
	}
}

// RetryScanner repeats a Scanner until one attempt finds a host. The first
// attempt waits out a warm-up delay for the local advertisement daemon.
type RetryScanner struct {
	scanner Scanner
	cfg     RetryConfig
	logger  *zap.Logger
}

// Compile-time interface guard.
var _ Scanner = (*RetryScanner)(nil)

// NewRetryScanner wraps scanner with retry. Non-positive Attempts means one.
func NewRetryScanner(scanner Scanner, cfg RetryConfig, logger *zap.Logger) *RetryScanner {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 1
	}
	return &RetryScanner{scanner: scanner, cfg: cfg, logger: logger}
}

// Scan succeeds as soon as any attempt succeeds. Otherwise it returns
// ErrScanExhausted wrapping every attempt's error.
func (r *RetryScanner) Scan(ctx context.Context, out chan<- string) error {
	if r.cfg.Warmup > 0 {
		timer := time.NewTimer(r.cfg.Warmup)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %w", ErrScanExhausted, ctx.Err())
		case <-timer.C:
		}
	}

	var (
		attempt int
		errs    error
	)
	operation := func() error {
		attempt++
		r.logger.Info("starting discovery scan attempt",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", r.cfg.Attempts),
		)
		if err := r.scanner.Scan(ctx, out); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("attempt %d: %w", attempt, err))
			return err
		}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		r.logger.Warn("discovery scan attempt failed",
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", wait),
			zap.Error(err),
		)
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(&linearBackOff{unit: r.cfg.BackoffUnit}, uint64(r.cfg.Attempts-1)),
		ctx,
	)
	if err := backoff.RetryNotify(operation, b, notify); err != nil {
		r.logger.Error("discovery scan failed",
			zap.Int("attempts", attempt),
			zap.Error(errs),
		)
		return fmt.Errorf("%w after %d attempt(s): %w", ErrScanExhausted, attempt, errs)
	}

	r.logger.Info("discovery scan succeeded", zap.Int("attempts", attempt))
	return nil
}

// linearBackOff waits n*unit before the n-th retry.
type linearBackOff struct {
	unit time.Duration
	n    int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	return time.Duration(b.n) * b.unit
}

func (b *linearBackOff) Reset() { b.n = 0 }
