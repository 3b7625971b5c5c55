package recon

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeScanner emits a fixed host list per attempt and fails attempts whose
// index is in failOn.
type fakeScanner struct {
	mu       sync.Mutex
	hosts    [][]string
	failOn   map[int]bool
	delay    time.Duration
	block    bool
	attempts atomic.Int32
	starts   []time.Time
}

func (f *fakeScanner) Scan(ctx context.Context, out chan<- string) error {
	n := int(f.attempts.Add(1))
	f.mu.Lock()
	f.starts = append(f.starts, time.Now())
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.failOn[n] {
		return ErrNoHosts
	}

	var batch []string
	if len(f.hosts) > 0 {
		batch = f.hosts[min(n, len(f.hosts))-1]
	}
	for _, h := range batch {
		select {
		case out <- h:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.block {
		<-ctx.Done()
	}
	if len(batch) == 0 {
		return ErrNoHosts
	}
	return nil
}

func (f *fakeScanner) startTimes() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.starts...)
}

func collect(t *testing.T, run func(chan<- string) error) ([]string, error) {
	t.Helper()
	out := make(chan string, 32)
	err := run(out)
	close(out)
	var hosts []string
	for h := range out {
		hosts = append(hosts, h)
	}
	return hosts, err
}
