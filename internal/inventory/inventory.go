package inventory

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/HerbHall/fleetscope/internal/config"
	"github.com/HerbHall/fleetscope/internal/plugin"
	"github.com/HerbHall/fleetscope/internal/remote"
	"github.com/HerbHall/fleetscope/internal/server"
)

// Compile-time interface guard.
var _ plugin.Plugin = (*Module)(nil)

// Module serves inventory records over HTTP.
type Module struct {
	runner   remote.Commander
	resolver *Resolver
	logger   *zap.Logger
}

// New creates the inventory module around runner.
func New(runner remote.Commander) *Module {
	return &Module{runner: runner}
}

func (m *Module) Name() string        { return "inventory" }
func (m *Module) Version() string     { return "0.1.0" }
func (m *Module) Description() string { return "Hardware and software inventory of fleet hosts" }

func (m *Module) Init(_ *config.Config, logger *zap.Logger) error {
	m.logger = logger
	m.resolver = NewResolver(m.runner, logger)
	return nil
}

func (m *Module) Start(_ context.Context) error { return nil }
func (m *Module) Stop() error                   { return nil }

func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "GET", Path: "/hosts/{host}", Handler: m.handleResolve, Protected: true},
	}
}

// handleResolve returns the inventory record for one host.
func (m *Module) handleResolve(w http.ResponseWriter, r *http.Request) {
	host := r.PathValue("host")
	if host == "" {
		server.BadRequest(w, "host is required", r.URL.Path)
		return
	}

	rec, err := m.resolver.Resolve(r.Context(), host)
	if err != nil {
		var connErr *ConnectivityError
		switch {
		case errors.As(err, &connErr), remote.KindOf(err) != 0:
			server.RemoteFailure(w, err.Error(), r.URL.Path)
		default:
			m.logger.Error("inventory resolution failed", zap.String("host", host), zap.Error(err))
			server.InternalError(w, err.Error(), r.URL.Path)
		}
		return
	}
	server.WriteJSON(w, http.StatusOK, rec)
}
