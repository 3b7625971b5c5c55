package recon

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{Attempts: attempts, Warmup: 0, BackoffUnit: 10 * time.Millisecond}
}

func TestRetryScannerSucceedsFirstAttempt(t *testing.T) {
	f := &fakeScanner{hosts: [][]string{{"a.local"}}}
	r := NewRetryScanner(f, fastRetry(3), zap.NewNop())

	hosts, err := collect(t, func(out chan<- string) error {
		return r.Scan(context.Background(), out)
	})
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if got := f.attempts.Load(); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
	if len(hosts) != 1 || hosts[0] != "a.local" {
		t.Errorf("hosts = %v, want [a.local]", hosts)
	}
}

func TestRetryScannerRetriesUntilSuccess(t *testing.T) {
	f := &fakeScanner{
		hosts:  [][]string{nil, nil, {"c.local"}},
		failOn: map[int]bool{1: true, 2: true},
	}
	r := NewRetryScanner(f, fastRetry(3), zap.NewNop())

	hosts, err := collect(t, func(out chan<- string) error {
		return r.Scan(context.Background(), out)
	})
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if got := f.attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
	if len(hosts) != 1 || hosts[0] != "c.local" {
		t.Errorf("hosts = %v, want [c.local]", hosts)
	}
}

func TestRetryScannerExhausted(t *testing.T) {
	f := &fakeScanner{failOn: map[int]bool{1: true, 2: true, 3: true, 4: true}}
	r := NewRetryScanner(f, fastRetry(3), zap.NewNop())

	_, err := collect(t, func(out chan<- string) error {
		return r.Scan(context.Background(), out)
	})
	if !errors.Is(err, ErrScanExhausted) {
		t.Fatalf("Scan() error = %v, want ErrScanExhausted", err)
	}
	if !errors.Is(err, ErrNoHosts) {
		t.Errorf("Scan() error = %v, want it to wrap the attempt errors", err)
	}
	if got := f.attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want exactly 3", got)
	}
}

func TestRetryScannerLinearBackoff(t *testing.T) {
	f := &fakeScanner{failOn: map[int]bool{1: true, 2: true, 3: true}}
	unit := 50 * time.Millisecond
	r := NewRetryScanner(f, RetryConfig{Attempts: 3, BackoffUnit: unit}, zap.NewNop())

	_, _ = collect(t, func(out chan<- string) error {
		return r.Scan(context.Background(), out)
	})

	starts := f.startTimes()
	if len(starts) != 3 {
		t.Fatalf("attempts = %d, want 3", len(starts))
	}
	// Gaps are 1x then 2x the unit.
	if gap := starts[1].Sub(starts[0]); gap < unit {
		t.Errorf("first backoff = %v, want >= %v", gap, unit)
	}
	if gap := starts[2].Sub(starts[1]); gap < 2*unit {
		t.Errorf("second backoff = %v, want >= %v", gap, 2*unit)
	}
}

func TestRetryScannerWarmup(t *testing.T) {
	f := &fakeScanner{hosts: [][]string{{"a.local"}}}
	warmup := 100 * time.Millisecond
	r := NewRetryScanner(f, RetryConfig{Attempts: 1, Warmup: warmup}, zap.NewNop())

	start := time.Now()
	_, err := collect(t, func(out chan<- string) error {
		return r.Scan(context.Background(), out)
	})
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	starts := f.startTimes()
	if len(starts) != 1 {
		t.Fatalf("attempts = %d, want 1", len(starts))
	}
	if d := starts[0].Sub(start); d < warmup {
		t.Errorf("first attempt began after %v, want >= %v", d, warmup)
	}
}

func TestRetryScannerWarmupCancelled(t *testing.T) {
	f := &fakeScanner{hosts: [][]string{{"a.local"}}}
	r := NewRetryScanner(f, RetryConfig{Attempts: 3, Warmup: time.Hour}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := collect(t, func(out chan<- string) error {
		return r.Scan(ctx, out)
	})
	if !errors.Is(err, ErrScanExhausted) || !errors.Is(err, context.Canceled) {
		t.Errorf("Scan() error = %v, want ErrScanExhausted wrapping context.Canceled", err)
	}
	if got := f.attempts.Load(); got != 0 {
		t.Errorf("attempts = %d, want 0", got)
	}
}

func TestLinearBackOff(t *testing.T) {
	b := &linearBackOff{unit: time.Second}
	for i, want := range []time.Duration{time.Second, 2 * time.Second, 3 * time.Second} {
		if got := b.NextBackOff(); got != want {
			t.Errorf("NextBackOff() #%d = %v, want %v", i+1, got, want)
		}
	}
	b.Reset()
	if got := b.NextBackOff(); got != time.Second {
		t.Errorf("NextBackOff() after Reset = %v, want 1s", got)
	}
}
