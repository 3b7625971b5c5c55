package recon

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/fleetscope/pkg/models"
)

// CoordinatorConfig bounds a supervised scan.
type CoordinatorConfig struct {
	// OverallTimeout caps the whole scan including retries.
	OverallTimeout time.Duration
	// Grace is how long the caller that starts a scan waits before taking
	// its first snapshot.
	Grace time.Duration
	// Buffer sizes the channel between the scanner and the coordinator.
	Buffer int
}

// DefaultCoordinatorConfig returns a 30 second scan cap and a 3 second grace.
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		OverallTimeout: 30 * time.Second,
		Grace:          3 * time.Second,
		Buffer:         16,
	}
}

// Coordinator owns the discovery state shared by every caller and turns the
// scanner's host stream into pollable snapshots. At most one scan runs at a
// time. The lock guards field reads and writes only and is never held across
// I/O.
type Coordinator struct {
	scanner Scanner
	cfg     CoordinatorConfig
	logger  *zap.Logger

	mu         sync.Mutex
	inProgress bool
	completed  bool
	closed     bool
	hosts      []string
	seen       map[string]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCoordinator creates a coordinator that scans with scanner.
func NewCoordinator(scanner Scanner, cfg CoordinatorConfig, logger *zap.Logger) *Coordinator {
	d := DefaultCoordinatorConfig()
	if cfg.OverallTimeout <= 0 {
		cfg.OverallTimeout = d.OverallTimeout
	}
	if cfg.Grace < 0 {
		cfg.Grace = 0
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = d.Buffer
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		scanner: scanner,
		cfg:     cfg,
		logger:  logger,
		seen:    make(map[string]struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// GetOrStartScan starts a scan when nothing has been discovered and none is
// running, then returns the current snapshot. The caller that starts a scan
// waits the grace delay first; everyone else returns immediately and is
// expected to poll until ScanComplete.
func (c *Coordinator) GetOrStartScan(ctx context.Context) models.DiscoveryResult {
	if c.tryStart() {
		go c.supervise()

		timer := time.NewTimer(c.cfg.Grace)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}
	return c.Snapshot()
}

// Snapshot returns a copy of the current state.
func (c *Coordinator) Snapshot() models.DiscoveryResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	hosts := make([]string, len(c.hosts))
	copy(hosts, c.hosts)
	return models.DiscoveryResult{
		Hosts:        hosts,
		ScanComplete: c.completed,
		InProgress:   c.inProgress,
	}
}

// Reset forgets a finished scan so the next poll starts a fresh one. It
// returns false, changing nothing, while a scan is running.
func (c *Coordinator) Reset() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inProgress {
		return false
	}
	c.hosts = nil
	c.seen = make(map[string]struct{})
	c.completed = false
	return true
}

// Close stops any running scan and waits for it to finish. No scan starts
// after Close.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

// tryStart performs the check and the claim in one critical section so two
// concurrent callers cannot both start a scan.
func (c *Coordinator) tryStart() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.inProgress || len(c.hosts) > 0 {
		return false
	}
	c.inProgress = true
	c.completed = false
	c.wg.Add(1)
	return true
}

func (c *Coordinator) supervise() {
	defer c.wg.Done()

	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.OverallTimeout)
	defer cancel()

	c.logger.Info("network scan started", zap.Duration("timeout", c.cfg.OverallTimeout))
	start := time.Now()

	found := make(chan string, c.cfg.Buffer)
	done := make(chan error, 1)
	go func() {
		err := c.scanner.Scan(ctx, found)
		close(found)
		done <- err
	}()

drain:
	for {
		select {
		case host, ok := <-found:
			if !ok {
				break drain
			}
			c.add(host)
		case <-ctx.Done():
			c.logger.Warn("network scan deadline reached", zap.Error(ctx.Err()))
			break drain
		}
	}

	// Stop the scanner, join it, then keep whatever it had already buffered.
	cancel()
	scanErr := <-done
	for host := range found {
		c.add(host)
	}

	c.mu.Lock()
	c.inProgress = false
	c.completed = len(c.hosts) > 0
	total := len(c.hosts)
	c.mu.Unlock()

	if scanErr != nil {
		c.logger.Error("network scan failed", zap.Error(scanErr))
	}
	c.logger.Info("network scan finished",
		zap.Int("hosts", total),
		zap.Duration("elapsed", time.Since(start)),
	)
}

// add appends host unless it is already known.
func (c *Coordinator) add(host string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.seen[host]; dup {
		return
	}
	c.seen[host] = struct{}{}
	c.hosts = append(c.hosts, host)
}
