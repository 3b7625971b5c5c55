// Package dispatch runs one command across many hosts concurrently and
// reports an ordered outcome per host.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/HerbHall/fleetscope/internal/remote"
	"github.com/HerbHall/fleetscope/pkg/models"
)

// Maintenance commands.
const (
	PingCommand       = "echo 'Connection test'"
	ClearCacheCommand = "sudo rm -rf ~/Library/Caches/* && sudo rm -rf /Library/Caches/* && echo 'Cache cleared successfully'"
	cacheClearedMark  = "Cache cleared successfully"
)

// ErrNoOutput is reported when output is required and the command printed
// nothing.
var ErrNoOutput = errors.New("command execution returned no output")

// Config bounds a dispatcher.
type Config struct {
	// Timeout applies to each host separately.
	Timeout time.Duration
	// Concurrency caps hosts in flight; zero means one goroutine per host.
	Concurrency int
	// Rate and Burst throttle session starts. Rate zero disables throttling.
	Rate  float64
	Burst int
}

// DefaultConfig returns a 5 second per-host timeout, 32 hosts in flight and
// 10 session starts per second with a burst of 5.
func DefaultConfig() Config {
	return Config{Timeout: 5 * time.Second, Concurrency: 32, Rate: 10, Burst: 5}
}

// keptProgress is how many batches Progress remembers.
const keptProgress = 64

// ErrUnknownRun is returned by Progress for a run ID it does not know.
var ErrUnknownRun = errors.New("unknown dispatch run")

// Options tune one batch.
type Options struct {
	// ID names the run. Empty means a fresh uuid. A caller that polls
	// Progress while the batch runs supplies its own.
	ID string
	// RequireOutput turns an empty stdout into an error outcome.
	RequireOutput bool
	// OnProgress is called after each host completes with the number done
	// and the batch size. Calls may come from several goroutines.
	OnProgress func(done, total int)
}

// Dispatcher fans a command out over hosts through a remote.Commander.
type Dispatcher struct {
	runner  remote.Commander
	cfg     Config
	limiter *rate.Limiter
	metrics *Metrics
	audit   AuditLog
	logger  *zap.Logger

	mu       sync.Mutex
	progress map[string]*batchProgress
	order    []string // run IDs, oldest first
}

// batchProgress counts completed hosts of one batch.
type batchProgress struct {
	done  atomic.Int64
	total int
}

// Progress is the completion state of one batch.
type Progress struct {
	RunID string `json:"run_id"`
	Done  int    `json:"done"`
	Total int    `json:"total"`
}

// New creates a Dispatcher. metrics and audit may be nil.
func New(runner remote.Commander, cfg Config, metrics *Metrics, audit AuditLog, logger *zap.Logger) *Dispatcher {
	d := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = d.Timeout
	}
	if cfg.Concurrency < 0 {
		cfg.Concurrency = 0
	}
	limit := rate.Inf
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
		if cfg.Burst <= 0 {
			cfg.Burst = 1
		}
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if audit == nil {
		audit = nopAudit{}
	}
	return &Dispatcher{
		runner:   runner,
		cfg:      cfg,
		limiter:  rate.NewLimiter(limit, cfg.Burst),
		metrics:  metrics,
		audit:    audit,
		logger:   logger,
		progress: make(map[string]*batchProgress),
	}
}

// Dispatch runs command on every host and returns one outcome per host in
// input order. Host failures never abort the batch.
func (d *Dispatcher) Dispatch(ctx context.Context, hosts []string, command string) []models.CommandOutcome {
	return d.Run(ctx, hosts, command, Options{}).Outcomes
}

// Run is Dispatch with options. The returned run carries a fresh ID and is
// recorded in the audit log.
func (d *Dispatcher) Run(ctx context.Context, hosts []string, command string, opts Options) models.DispatchRun {
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	run := models.DispatchRun{
		ID:        id,
		Command:   command,
		StartedAt: time.Now().UTC(),
		Outcomes:  make([]models.CommandOutcome, len(hosts)),
	}
	log := d.logger.With(zap.String("run_id", run.ID))
	log.Info("dispatch started", zap.Int("hosts", len(hosts)), zap.String("command", command))

	progress := d.track(run.ID, len(hosts))
	d.metrics.Batches.Inc()

	var g errgroup.Group
	if d.cfg.Concurrency > 0 {
		g.SetLimit(d.cfg.Concurrency)
	}
	for i, host := range hosts {
		g.Go(func() error {
			run.Outcomes[i] = d.runOne(ctx, host, command, opts)
			done := int(progress.done.Add(1))
			if opts.OnProgress != nil {
				opts.OnProgress(done, len(hosts))
			}
			return nil
		})
	}
	_ = g.Wait()

	run.EndedAt = time.Now().UTC()
	log.Info("dispatch finished",
		zap.Int("hosts", len(hosts)),
		zap.Int("failed", run.FailedCount()),
		zap.Duration("elapsed", run.EndedAt.Sub(run.StartedAt)),
	)

	// The batch's own ctx may be done; the record is still written.
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := d.audit.Record(auditCtx, run); err != nil {
		log.Error("failed to record dispatch run", zap.Error(err))
	}
	return run
}

// Progress reports the batch named runID, or the most recently started one
// when runID is empty. Batches run concurrently keep separate counts.
func (d *Dispatcher) Progress(runID string) (Progress, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if runID == "" {
		if len(d.order) == 0 {
			return Progress{}, nil
		}
		runID = d.order[len(d.order)-1]
	}
	p, ok := d.progress[runID]
	if !ok {
		return Progress{}, fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}
	return Progress{RunID: runID, Done: int(p.done.Load()), Total: p.total}, nil
}

// track registers a batch, forgetting the oldest beyond keptProgress.
func (d *Dispatcher) track(runID string, total int) *batchProgress {
	p := &batchProgress{total: total}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, dup := d.progress[runID]; !dup {
		d.order = append(d.order, runID)
	}
	d.progress[runID] = p
	for len(d.order) > keptProgress {
		delete(d.progress, d.order[0])
		d.order = d.order[1:]
	}
	return p
}

// Ping checks that host accepts a session.
func (d *Dispatcher) Ping(ctx context.Context, host string) error {
	o := d.runOne(ctx, host, PingCommand, Options{})
	if o.Failed() {
		return fmt.Errorf("ping %s: %s", host, o.Error)
	}
	return nil
}

// ClearCache empties the user and system cache directories on host.
func (d *Dispatcher) ClearCache(ctx context.Context, host string) (string, error) {
	o := d.runOne(ctx, host, ClearCacheCommand, Options{})
	if o.Failed() {
		return "", fmt.Errorf("clear cache on %s: %s", host, o.Error)
	}
	if !strings.Contains(o.Stdout, cacheClearedMark) {
		return "", fmt.Errorf("failed to clear cache on %s: %s", host, o.Stdout)
	}
	return cacheClearedMark, nil
}

func (d *Dispatcher) runOne(ctx context.Context, host, command string, opts Options) models.CommandOutcome {
	outcome := models.CommandOutcome{Host: host}

	if err := d.limiter.Wait(ctx); err != nil {
		outcome.Error = "dispatch cancelled: " + err.Error()
		d.metrics.observe(resultError, 0)
		return outcome
	}

	d.metrics.InFlight.Inc()
	defer d.metrics.InFlight.Dec()

	hctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	start := time.Now()
	out, err := d.runner.Run(hctx, host, command)
	outcome.Duration = time.Since(start)
	deadlineHit := errors.Is(hctx.Err(), context.DeadlineExceeded)
	cancel()

	// The elapsed check also catches backends that ignore ctx.
	switch {
	case outcome.Duration > d.cfg.Timeout || (err != nil && deadlineHit):
		outcome.Error = fmt.Sprintf("operation timed out after %s", d.cfg.Timeout)
		d.metrics.observe(resultTimeout, outcome.Duration)
	case err != nil:
		outcome.Error = err.Error()
		d.metrics.observe(resultError, outcome.Duration)
	case opts.RequireOutput && strings.TrimSpace(out) == "":
		outcome.Error = ErrNoOutput.Error()
		d.metrics.observe(resultError, outcome.Duration)
	default:
		outcome.Stdout = out
		d.metrics.observe(resultOK, outcome.Duration)
	}

	if outcome.Failed() {
		d.logger.Warn("host command failed",
			zap.String("host", host),
			zap.Duration("elapsed", outcome.Duration),
			zap.String("error", outcome.Error),
		)
	}
	return outcome
}
