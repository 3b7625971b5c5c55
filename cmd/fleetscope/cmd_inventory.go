package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/HerbHall/fleetscope/internal/inventory"
	"github.com/HerbHall/fleetscope/internal/remote"
	"github.com/HerbHall/fleetscope/pkg/models"
)

// inventoryResult pairs a host with its record or failure.
type inventoryResult struct {
	Host   string                  `json:"host"`
	Record *models.InventoryRecord `json:"record,omitempty"`
	Error  string                  `json:"error,omitempty"`
}

func runInventory(args []string) {
	fs := flag.NewFlagSet("inventory", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	discover := fs.Bool("discover", false, "discover hosts when none are given")
	parallel := fs.Int("parallel", 8, "hosts inventoried at once")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, logger := setup(*configPath)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hosts, err := targetHosts(ctx, cfg, logger, fs.Args(), *discover)
	if err != nil {
		fatal(logger, "no targets", err)
	}

	runner, err := remote.NewRunnerFromConfig(cfg, logger)
	if err != nil {
		fatal(logger, "failed to create remote runner", err)
	}
	resolver := inventory.NewResolver(runner, logger)

	results := make([]inventoryResult, len(hosts))
	var g errgroup.Group
	g.SetLimit(max(*parallel, 1))
	for i, host := range hosts {
		g.Go(func() error {
			results[i].Host = host
			rec, err := resolver.Resolve(ctx, host)
			if err != nil {
				logger.Warn("inventory failed", zap.String("host", host), zap.Error(err))
				results[i].Error = err.Error()
				return nil
			}
			results[i].Record = rec
			return nil
		})
	}
	_ = g.Wait()

	printJSON(results)
}
