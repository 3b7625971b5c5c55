package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/HerbHall/fleetscope/internal/license"
	"github.com/HerbHall/fleetscope/internal/remote"
	"github.com/HerbHall/fleetscope/pkg/models"
)

func runLicense(args []string) {
	fs := flag.NewFlagSet("license", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	path := fs.String("path", "", "license file path (overrides license.path)")
	discover := fs.Bool("discover", false, "discover hosts when none are given")
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

	licensePath := *path
	if licensePath == "" {
		licensePath = cfg.Section("license").String("path", license.DefaultPath)
	}
	inspector := license.NewInspector(runner, logger, license.WithPath(licensePath))

	results := make([]models.LicenseStatus, len(hosts))
	var g errgroup.Group
	g.SetLimit(16)
	for i, host := range hosts {
		g.Go(func() error {
			results[i] = inspector.Check(ctx, host)
			return nil
		})
	}
	_ = g.Wait()

	printJSON(results)
}
