package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/HerbHall/fleetscope/internal/config"
	"github.com/HerbHall/fleetscope/internal/dispatch"
	"github.com/HerbHall/fleetscope/internal/inventory"
	"github.com/HerbHall/fleetscope/internal/license"
	"github.com/HerbHall/fleetscope/internal/plugin"
	"github.com/HerbHall/fleetscope/internal/recon"
	"github.com/HerbHall/fleetscope/internal/remote"
	"github.com/HerbHall/fleetscope/internal/server"
	"github.com/HerbHall/fleetscope/internal/vault"
)

// defaultAddr keeps the API on loopback unless configured otherwise.
const defaultAddr = "127.0.0.1:8080"

// serverAuth builds the token authenticator from server.auth_secret. An
// empty secret yields nil, which leaves protected routes answering 503.
func serverAuth(cfg *config.Config) (*server.Authenticator, error) {
	secret := cfg.String("server.auth_secret", "")
	if secret == "" {
		return nil, nil
	}
	return server.NewAuthenticator(secret)
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	addr := fs.String("addr", "", "listen address (overrides server.addr)")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, logger := setup(*configPath)
	defer logger.Sync()

	logger.Info("fleetscope server starting")

	runner, err := remote.NewRunnerFromConfig(cfg, logger)
	if err != nil {
		fatal(logger, "failed to create remote runner", err)
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	registry := plugin.NewRegistry(logger)

	// Compile-time composition.
	credEnv := cfg.Section("credential").String("env", vault.DefaultEnvVar)
	plugins := []plugin.Plugin{
		recon.New(),
		inventory.New(runner),
		license.New(runner),
		dispatch.NewModule(runner, promReg),
		vault.New(vault.NewEnvSource(credEnv)),
	}
	for _, p := range plugins {
		if err := registry.Register(p); err != nil {
			fatal(logger, "failed to register plugin", err)
		}
	}

	if err := registry.InitAll(cfg); err != nil {
		fatal(logger, "failed to initialize plugins", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := registry.StartAll(ctx); err != nil {
		fatal(logger, "failed to start plugins", err)
	}

	listen := *addr
	if listen == "" {
		listen = cfg.String("server.addr", defaultAddr)
	}
	auth, err := serverAuth(cfg)
	if err != nil {
		fatal(logger, "invalid server.auth_secret", err)
	}
	if auth == nil {
		logger.Warn("server.auth_secret is not set; remote execution routes are disabled")
	}
	srv := server.New(listen, registry, promReg, logger, server.WithAuth(auth))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	logger.Info("fleetscope server ready", zap.String("addr", listen))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", zap.Error(err))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	registry.StopAll()

	logger.Info("fleetscope server stopped")
}
