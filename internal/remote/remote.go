// Package remote runs commands on fleet hosts over authenticated SSH sessions
// and classifies transport and authentication failures.
package remote

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/fleetscope/internal/config"
	"github.com/HerbHall/fleetscope/internal/vault"
)

// Executor runs one command on one host and returns its stdout. Failures are
// *Error values classified as connection, authentication or I/O.
type Executor interface {
	Execute(ctx context.Context, host, username, credential, command string) (string, error)
}

// Commander runs a command on a host with credentials already bound. It is
// the dependency of every component that talks to hosts.
type Commander interface {
	Run(ctx context.Context, host, command string) (string, error)
}

// Backends accepted in Config.Backend.
const (
	BackendNative = "native"
	BackendHelper = "helper"
)

// Config selects and tunes an Executor.
type Config struct {
	Backend               string
	Port                  int
	ConnectTimeout        time.Duration
	CommandTimeout        time.Duration
	KnownHostsFile        string
	InsecureIgnoreHostKey bool
	HelperCommand         []string
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Backend:        BackendNative,
		Port:           22,
		ConnectTimeout: 10 * time.Second,
		CommandTimeout: 30 * time.Second,
		KnownHostsFile: "~/.ssh/known_hosts",
		HelperCommand:  []string{"expect", "-f", "-"},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Backend == "" {
		c.Backend = d.Backend
	}
	if c.Port == 0 {
		c.Port = d.Port
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.CommandTimeout == 0 {
		c.CommandTimeout = d.CommandTimeout
	}
	if c.KnownHostsFile == "" {
		c.KnownHostsFile = d.KnownHostsFile
	}
	if len(c.HelperCommand) == 0 {
		c.HelperCommand = d.HelperCommand
	}
	return c
}

// New builds the Executor named by cfg.Backend.
func New(cfg Config, logger *zap.Logger) (Executor, error) {
	cfg = cfg.withDefaults()
	if cfg.InsecureIgnoreHostKey {
		logger.Warn("host key verification disabled; every host key is trusted",
			zap.String("backend", cfg.Backend),
		)
	}
	switch cfg.Backend {
	case BackendNative:
		return NewNativeExecutor(cfg, logger)
	case BackendHelper:
		return NewHelperExecutor(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown ssh backend %q", cfg.Backend)
	}
}

// Runner binds an Executor to a login name and a credential source.
type Runner struct {
	exec   Executor
	user   string
	creds  vault.Source
	logger *zap.Logger
}

// Compile-time interface guard.
var _ Commander = (*Runner)(nil)

// NewRunner creates a Runner that logs in as user with secrets from creds.
func NewRunner(exec Executor, user string, creds vault.Source, logger *zap.Logger) *Runner {
	return &Runner{exec: exec, user: user, creds: creds, logger: logger}
}

// Run fetches the credential and executes command on host. A missing
// credential fails before any connection is attempted.
func (r *Runner) Run(ctx context.Context, host, command string) (string, error) {
	secret, err := r.creds.Credential()
	if err != nil {
		return "", fmt.Errorf("run on %s: %w", host, err)
	}

	start := time.Now()
	out, err := r.exec.Execute(ctx, host, r.user, secret, command)
	if err != nil {
		r.logger.Debug("remote command failed",
			zap.String("host", host),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return "", withHost(err, host)
	}
	r.logger.Debug("remote command finished",
		zap.String("host", host),
		zap.Int("stdout_bytes", len(out)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}

// LoadConfig reads an "ssh" config section. Unset keys keep their defaults.
func LoadConfig(c *config.Config) Config {
	d := DefaultConfig()
	cfg := Config{
		Backend:               c.String("backend", d.Backend),
		Port:                  c.Int("port", d.Port),
		ConnectTimeout:        c.Duration("connect_timeout", d.ConnectTimeout),
		CommandTimeout:        c.Duration("command_timeout", d.CommandTimeout),
		KnownHostsFile:        c.String("known_hosts", d.KnownHostsFile),
		InsecureIgnoreHostKey: c.GetBool("insecure_ignore_host_key"),
		HelperCommand:         c.GetStringSlice("helper_command"),
	}
	return cfg.withDefaults()
}

// NewRunnerFromConfig builds the executor named by the "ssh" section and
// binds it to ssh.user and the credential variable named by credential.env.
func NewRunnerFromConfig(root *config.Config, logger *zap.Logger) (*Runner, error) {
	sshCfg := root.Section("ssh")
	exec, err := New(LoadConfig(sshCfg), logger)
	if err != nil {
		return nil, err
	}
	user := sshCfg.String("user", "")
	if user == "" {
		return nil, fmt.Errorf("ssh.user is not configured")
	}
	creds := vault.NewEnvSource(root.Section("credential").String("env", vault.DefaultEnvVar))
	return NewRunner(exec, user, creds, logger), nil
}
