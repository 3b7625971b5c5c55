package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/HerbHall/fleetscope/internal/config"
	"github.com/HerbHall/fleetscope/internal/dispatch"
	"github.com/HerbHall/fleetscope/internal/remote"
	"github.com/HerbHall/fleetscope/internal/store"
	"github.com/HerbHall/fleetscope/internal/vault"
)

func runExec(args []string) {
	fs := flag.NewFlagSet("exec", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	command := fs.String("c", "", "command to run on every host (required)")
	requireOutput := fs.Bool("require-output", false, "treat empty output as a failure")
	passwordStdin := fs.Bool("password-stdin", false, "read the SSH password from stdin")
	discover := fs.Bool("discover", false, "discover hosts when none are given")
	noAudit := fs.Bool("no-audit", false, "do not record the run in dispatch.audit_db")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if *command == "" {
		fmt.Fprintln(os.Stderr, "exec: -c is required")
		fs.Usage()
		os.Exit(2)
	}

	cfg, logger := setup(*configPath)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner, err := execRunner(cfg, logger, *passwordStdin)
	if err != nil {
		fatal(logger, "failed to create remote runner", err)
	}

	hosts, err := targetHosts(ctx, cfg, logger, fs.Args(), *discover)
	if err != nil {
		fatal(logger, "no targets", err)
	}

	section := cfg.Section("dispatch")
	var audit dispatch.AuditLog
	if path := section.String("audit_db", ""); path != "" && !*noAudit {
		db, err := store.New(path)
		if err != nil {
			fatal(logger, "failed to open audit database", err)
		}
		defer db.Close()
		if audit, err = dispatch.NewSQLiteAudit(ctx, db); err != nil {
			fatal(logger, "failed to prepare audit database", err)
		}
	}

	d := dispatch.New(runner, dispatch.LoadConfig(section), nil, audit, logger)
	run := d.Run(ctx, hosts, *command, dispatch.Options{
		RequireOutput: *requireOutput,
		OnProgress: func(done, total int) {
			logger.Debug("dispatch progress", zap.Int("done", done), zap.Int("total", total))
		},
	})
	printJSON(run)

	if run.FailedCount() > 0 {
		_ = logger.Sync()
		os.Exit(1)
	}
}

// execRunner builds the runner for exec. With passwordStdin the secret is
// the first line of stdin instead of the configured environment variable.
func execRunner(cfg *config.Config, logger *zap.Logger, passwordStdin bool) (*remote.Runner, error) {
	if !passwordStdin {
		return remote.NewRunnerFromConfig(cfg, logger)
	}

	sshCfg := cfg.Section("ssh")
	user := sshCfg.String("user", "")
	if user == "" {
		return nil, errors.New("ssh.user is not configured")
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return nil, fmt.Errorf("read password from stdin: %w", err)
	}

	executor, err := remote.New(remote.LoadConfig(sshCfg), logger)
	if err != nil {
		return nil, err
	}
	return remote.NewRunner(executor, user, vault.StaticSource(strings.TrimRight(line, "\r\n")), logger), nil
}
