package vault

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/HerbHall/fleetscope/internal/config"
	"github.com/HerbHall/fleetscope/internal/plugin"
	"github.com/HerbHall/fleetscope/internal/server"
)

// Compile-time interface guard.
var _ plugin.Plugin = (*Module)(nil)

// Module reports whether the session credential is available.
type Module struct {
	source Source
	logger *zap.Logger
}

// New creates the vault module. A nil source is replaced in Init by an
// EnvSource named by the section's env key.
func New(source Source) *Module {
	return &Module{source: source}
}

func (m *Module) Name() string        { return "vault" }
func (m *Module) Version() string     { return "0.1.0" }
func (m *Module) Description() string { return "Session credential status" }

func (m *Module) Init(cfg *config.Config, logger *zap.Logger) error {
	m.logger = logger
	if m.source == nil {
		m.source = NewEnvSource(cfg.String("env", DefaultEnvVar))
	}
	if _, err := m.source.Credential(); err != nil {
		logger.Warn("no session credential configured; remote commands will fail", zap.Error(err))
	}
	return nil
}

func (m *Module) Start(_ context.Context) error { return nil }
func (m *Module) Stop() error                   { return nil }

func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "GET", Path: "/status", Handler: m.handleStatus},
	}
}

// Status is the credential report. The secret itself is never exposed.
type Status struct {
	Configured bool   `json:"configured"`
	Source     string `json:"source"`
	Error      string `json:"error,omitempty"`
}

// Describe inspects source without returning the secret.
func Describe(source Source) Status {
	st := Status{Source: "static"}
	if env, ok := source.(*EnvSource); ok {
		st.Source = "env:" + env.Name()
	}
	if _, err := source.Credential(); err != nil {
		st.Error = err.Error()
		return st
	}
	st.Configured = true
	return st
}

func (m *Module) handleStatus(w http.ResponseWriter, _ *http.Request) {
	server.WriteJSON(w, http.StatusOK, Describe(m.source))
}
