// Package inventory assembles a hardware and software record for a host from
// a fixed battery of diagnostic commands.
package inventory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/HerbHall/fleetscope/internal/remote"
	"github.com/HerbHall/fleetscope/pkg/models"
)

// ConnectivityError reports a host that failed the initial connection test. The
// diagnostic battery is never run against such a host.
type ConnectivityError struct {
	Host string
	Err  error
}

func (e *ConnectivityError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("host %s: connectivity check returned an unexpected response", e.Host)
	}
	return fmt.Sprintf("host %s: connectivity check failed: %v", e.Host, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// Resolver builds inventory records through a remote.Commander.
type Resolver struct {
	runner remote.Commander
	logger *zap.Logger
}

// NewResolver creates a Resolver.
func NewResolver(runner remote.Commander, logger *zap.Logger) *Resolver {
	return &Resolver{runner: runner, logger: logger}
}

// Resolve tests the connection to host, then runs the battery concurrently and merges every
// parser's fields into one record. The first battery failure cancels the
// rest and fails the resolution.
func (r *Resolver) Resolve(ctx context.Context, host string) (*models.InventoryRecord, error) {
	start := time.Now()
	r.logger.Info("resolving host inventory", zap.String("host", host))

	out, err := r.runner.Run(ctx, host, connTestCommand)
	if err != nil {
		r.logger.Warn("connectivity check failed", zap.String("host", host), zap.Error(err))
		return nil, &ConnectivityError{Host: host, Err: err}
	}
	if !strings.Contains(out, connTestMarker) {
		r.logger.Warn("connectivity check returned unexpected output",
			zap.String("host", host),
			zap.String("output", out),
		)
		return nil, &ConnectivityError{Host: host}
	}

	var mu sync.Mutex
	rec := models.NewInventoryRecord()

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range battery {
		g.Go(func() error {
			output, err := r.runner.Run(gctx, host, p.command)
			if err != nil {
				r.logger.Warn("diagnostic command failed",
					zap.String("host", host),
					zap.String("collector", p.name),
					zap.Error(err),
				)
				return fmt.Errorf("%s diagnostics on %s: %w", p.name, host, err)
			}
			mu.Lock()
			defer mu.Unlock()
			p.parse(rec, output, r.logger.With(zap.String("host", host), zap.String("collector", p.name)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rec.NetworkName = host
	r.logger.Info("host inventory resolved",
		zap.String("host", host),
		zap.Duration("elapsed", time.Since(start)),
	)
	return rec, nil
}
