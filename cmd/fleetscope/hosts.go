package main

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/fleetscope/internal/config"
	"github.com/HerbHall/fleetscope/internal/recon"
)

var errNoHosts = errors.New("no hosts given and none discovered")

// targetHosts returns args, or the discovered hosts when args is empty and
// discover is set.
func targetHosts(ctx context.Context, cfg *config.Config, logger *zap.Logger, args []string, discover bool) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	if !discover {
		return nil, errNoHosts
	}

	coordinator, err := recon.NewCoordinatorFromConfig(cfg.Section("discovery"), logger)
	if err != nil {
		return nil, err
	}
	defer coordinator.Close()

	result := coordinator.GetOrStartScan(ctx)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for result.InProgress {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
		result = coordinator.Snapshot()
	}
	if len(result.Hosts) == 0 {
		return nil, errNoHosts
	}
	return result.Hosts, nil
}
