package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/HerbHall/fleetscope/internal/config"
	"github.com/HerbHall/fleetscope/internal/plugin"
	"github.com/HerbHall/fleetscope/internal/remote"
	"github.com/HerbHall/fleetscope/internal/server"
	"github.com/HerbHall/fleetscope/internal/store"
)

// Compile-time interface guard.
var _ plugin.Plugin = (*Module)(nil)

// Module exposes the dispatcher over HTTP and keeps its audit trail.
type Module struct {
	runner remote.Commander
	reg    prometheus.Registerer
	db     *store.SQLiteStore
	ownsDB bool

	dispatcher *Dispatcher
	audit      AuditLog
	logger     *zap.Logger
}

// ModuleOption customizes a Module.
type ModuleOption func(*Module)

// WithStore records runs in db instead of opening dispatch.audit_db. The
// caller keeps ownership of db.
func WithStore(db *store.SQLiteStore) ModuleOption {
	return func(m *Module) { m.db = db }
}

// NewModule creates the dispatch module. Metrics are registered with reg
// when it is non-nil.
func NewModule(runner remote.Commander, reg prometheus.Registerer, opts ...ModuleOption) *Module {
	m := &Module{runner: runner, reg: reg}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Module) Name() string        { return "dispatch" }
func (m *Module) Version() string     { return "0.1.0" }
func (m *Module) Description() string { return "Concurrent command dispatch across hosts" }

func (m *Module) Init(cfg *config.Config, logger *zap.Logger) error {
	m.logger = logger

	if m.db == nil {
		if path := cfg.String("audit_db", ""); path != "" {
			db, err := store.New(path)
			if err != nil {
				return fmt.Errorf("open dispatch audit: %w", err)
			}
			m.db, m.ownsDB = db, true
		}
	}

	m.audit = nopAudit{}
	if m.db != nil {
		audit, err := NewSQLiteAudit(context.Background(), m.db)
		if err != nil {
			return err
		}
		m.audit = audit
	}

	m.dispatcher = New(m.runner, LoadConfig(cfg), NewMetrics(m.reg), m.audit, logger)
	return nil
}

func (m *Module) Start(_ context.Context) error { return nil }

func (m *Module) Stop() error {
	if m.ownsDB && m.db != nil {
		return m.db.Close()
	}
	return nil
}

// Dispatcher returns the module's dispatcher once Init has run.
func (m *Module) Dispatcher() *Dispatcher { return m.dispatcher }

func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "POST", Path: "/run", Handler: m.handleRun, Protected: true},
		{Method: "GET", Path: "/runs", Handler: m.handleRuns, Protected: true},
		{Method: "GET", Path: "/progress", Handler: m.handleProgress, Protected: true},
		{Method: "POST", Path: "/hosts/{host}/ping", Handler: m.handlePing, Protected: true},
		{Method: "POST", Path: "/hosts/{host}/clear-cache", Handler: m.handleClearCache, Protected: true},
	}
}

// LoadConfig reads the dispatch section, falling back to DefaultConfig.
func LoadConfig(c *config.Config) Config {
	d := DefaultConfig()
	cfg := Config{
		Timeout:     c.Duration("timeout", d.Timeout),
		Concurrency: c.Int("concurrency", d.Concurrency),
		Rate:        d.Rate,
		Burst:       c.Int("burst", d.Burst),
	}
	if c.IsSet("rate") {
		cfg.Rate = c.GetFloat64("rate")
	}
	return cfg
}

// runRequest is the JSON body for POST /run. RunID, when given, must be a
// UUID; it lets the caller poll /progress?run= while the batch runs.
type runRequest struct {
	RunID         string   `json:"run_id"`
	Hosts         []string `json:"hosts"`
	Command       string   `json:"command"`
	RequireOutput bool     `json:"require_output"`
}

func (m *Module) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.BadRequest(w, "invalid JSON body: "+err.Error(), r.URL.Path)
		return
	}
	if len(req.Hosts) == 0 {
		server.BadRequest(w, "hosts must not be empty", r.URL.Path)
		return
	}
	if req.Command == "" {
		server.BadRequest(w, "command is required", r.URL.Path)
		return
	}
	if req.RunID != "" {
		id, err := uuid.Parse(req.RunID)
		if err != nil {
			server.BadRequest(w, "run_id must be a UUID", r.URL.Path)
			return
		}
		if _, err := m.dispatcher.Progress(id.String()); err == nil {
			server.Conflict(w, "run_id already used", r.URL.Path)
			return
		}
		req.RunID = id.String()
	}

	run := m.dispatcher.Run(r.Context(), req.Hosts, req.Command, Options{
		ID:            req.RunID,
		RequireOutput: req.RequireOutput,
	})
	server.WriteJSON(w, http.StatusOK, run)
}

func (m *Module) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			server.BadRequest(w, "limit must be a positive integer", r.URL.Path)
			return
		}
		limit = n
	}
	runs, err := m.audit.Recent(r.Context(), limit)
	if err != nil {
		m.logger.Error("failed to list dispatch runs", zap.Error(err))
		server.InternalError(w, "failed to list dispatch runs", r.URL.Path)
		return
	}
	server.WriteJSON(w, http.StatusOK, runs)
}

// handleProgress reports the batch named by ?run=, or the latest one.
func (m *Module) handleProgress(w http.ResponseWriter, r *http.Request) {
	p, err := m.dispatcher.Progress(r.URL.Query().Get("run"))
	if errors.Is(err, ErrUnknownRun) {
		server.NotFound(w, err.Error(), r.URL.Path)
		return
	}
	server.WriteJSON(w, http.StatusOK, p)
}

type maintenanceResponse struct {
	Host    string `json:"host"`
	Message string `json:"message"`
}

func (m *Module) handlePing(w http.ResponseWriter, r *http.Request) {
	host := r.PathValue("host")
	if err := m.dispatcher.Ping(r.Context(), host); err != nil {
		server.RemoteFailure(w, err.Error(), r.URL.Path)
		return
	}
	server.WriteJSON(w, http.StatusOK, maintenanceResponse{Host: host, Message: "Connection test"})
}

func (m *Module) handleClearCache(w http.ResponseWriter, r *http.Request) {
	host := r.PathValue("host")
	msg, err := m.dispatcher.ClearCache(r.Context(), host)
	if err != nil {
		server.RemoteFailure(w, err.Error(), r.URL.Path)
		return
	}
	server.WriteJSON(w, http.StatusOK, maintenanceResponse{Host: host, Message: msg})
}
