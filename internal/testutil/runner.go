package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Response is a scripted reply for FakeRunner.
type Response struct {
	Out   string
	Err   error
	Delay time.Duration
	// IgnoreContext makes Delay run to completion even after ctx is done,
	// like a backend that cannot be interrupted.
	IgnoreContext bool
}

// Call records one FakeRunner invocation.
type Call struct {
	Host    string
	Command string
}

// FakeRunner is a scripted, thread-safe stand-in for a remote command runner.
// Replies are matched by host and command first, then by command alone.
// Unmatched commands fail.
type FakeRunner struct {
	mu        sync.Mutex
	responses map[string]Response
	calls     []Call
}

// NewFakeRunner returns an empty FakeRunner.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{responses: make(map[string]Response)}
}

// On scripts the reply to command on any host.
func (f *FakeRunner) On(command string, r Response) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[command] = r
	return f
}

// OnHost scripts the reply to command on host.
func (f *FakeRunner) OnHost(host, command string, r Response) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[host+"\x00"+command] = r
	return f
}

// Run records the call and plays back the scripted reply.
func (f *FakeRunner) Run(ctx context.Context, host, command string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Host: host, Command: command})
	r, ok := f.responses[host+"\x00"+command]
	if !ok {
		r, ok = f.responses[command]
	}
	f.mu.Unlock()

	if !ok {
		return "", fmt.Errorf("testutil: unexpected command %q on %s", command, host)
	}

	if r.Delay > 0 {
		if r.IgnoreContext {
			time.Sleep(r.Delay)
		} else {
			timer := time.NewTimer(r.Delay)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
	return r.Out, r.Err
}

// Calls returns a copy of every recorded call in arrival order.
func (f *FakeRunner) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount returns the number of recorded calls.
func (f *FakeRunner) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}
