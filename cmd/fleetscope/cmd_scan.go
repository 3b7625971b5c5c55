package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HerbHall/fleetscope/internal/recon"
)

// pollInterval is how often scan re-reads the coordinator snapshot.
const pollInterval = 250 * time.Millisecond

func runScan(args []string) {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	backend := fs.String("backend", "", "discovery backend: dnssd or mdns (overrides discovery.backend)")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, logger := setup(*configPath)
	defer logger.Sync()

	if *backend != "" {
		cfg.Viper().Set("discovery.backend", *backend)
	}

	coordinator, err := recon.NewCoordinatorFromConfig(cfg.Section("discovery"), logger)
	if err != nil {
		fatal(logger, "failed to create scanner", err)
	}
	defer coordinator.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result := coordinator.GetOrStartScan(ctx)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for result.InProgress {
		select {
		case <-ctx.Done():
			printJSON(coordinator.Snapshot())
			return
		case <-ticker.C:
		}
		result = coordinator.Snapshot()
	}
	printJSON(result)
}
