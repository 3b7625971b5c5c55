package license

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/HerbHall/fleetscope/internal/config"
	"github.com/HerbHall/fleetscope/internal/plugin"
	"github.com/HerbHall/fleetscope/internal/remote"
	"github.com/HerbHall/fleetscope/internal/server"
	"github.com/HerbHall/fleetscope/pkg/models"
)

// maxBatchChecks bounds concurrent checks in one batch request.
const maxBatchChecks = 16

// Compile-time interface guard.
var _ plugin.Plugin = (*Module)(nil)

// Module serves license checks over HTTP.
type Module struct {
	runner    remote.Commander
	opts      []Option
	inspector *Inspector
	logger    *zap.Logger
}

// New creates the license module. opts are applied after the configured
// path, so tests can pin the clock.
func New(runner remote.Commander, opts ...Option) *Module {
	return &Module{runner: runner, opts: opts}
}

func (m *Module) Name() string        { return "license" }
func (m *Module) Version() string     { return "0.1.0" }
func (m *Module) Description() string { return "Plug-in license expiry checks" }

func (m *Module) Init(cfg *config.Config, logger *zap.Logger) error {
	m.logger = logger
	opts := append([]Option{WithPath(cfg.String("path", DefaultPath))}, m.opts...)
	m.inspector = NewInspector(m.runner, logger, opts...)
	return nil
}

func (m *Module) Start(_ context.Context) error { return nil }
func (m *Module) Stop() error                   { return nil }

func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "GET", Path: "/hosts/{host}", Handler: m.handleCheck, Protected: true},
		{Method: "GET", Path: "/hosts/{host}/software", Handler: m.handleSoftware, Protected: true},
		{Method: "POST", Path: "/check", Handler: m.handleBatch, Protected: true},
	}
}

func (m *Module) handleCheck(w http.ResponseWriter, r *http.Request) {
	server.WriteJSON(w, http.StatusOK, m.inspector.Check(r.Context(), r.PathValue("host")))
}

func (m *Module) handleSoftware(w http.ResponseWriter, r *http.Request) {
	server.WriteJSON(w, http.StatusOK, m.inspector.SoftwareInfo(r.Context(), r.PathValue("host")))
}

// batchRequest is the JSON body for POST /check.
type batchRequest struct {
	Hosts []string `json:"hosts"`
}

// handleBatch checks several hosts concurrently, answering in request order.
func (m *Module) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.BadRequest(w, "invalid JSON body: "+err.Error(), r.URL.Path)
		return
	}
	if len(req.Hosts) == 0 {
		server.BadRequest(w, "hosts must not be empty", r.URL.Path)
		return
	}

	results := make([]models.LicenseStatus, len(req.Hosts))
	var g errgroup.Group
	g.SetLimit(maxBatchChecks)
	for i, host := range req.Hosts {
		g.Go(func() error {
			results[i] = m.inspector.Check(r.Context(), host)
			return nil
		})
	}
	_ = g.Wait()

	server.WriteJSON(w, http.StatusOK, results)
}
