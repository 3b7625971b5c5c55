// Package recon discovers SSH-reachable hosts on the local network and
// coordinates a single shared scan for every caller.
package recon

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/HerbHall/fleetscope/internal/config"
	"github.com/HerbHall/fleetscope/internal/plugin"
	"github.com/HerbHall/fleetscope/internal/server"
)

// Backend names accepted by the "backend" key.
const (
	BackendDNSSD = "dnssd"
	BackendMDNS  = "mdns"
)

// Compile-time interface guard.
var _ plugin.Plugin = (*Module)(nil)

// Module exposes the scan coordinator over HTTP.
type Module struct {
	logger      *zap.Logger
	coordinator *Coordinator
}

// New creates the discovery module. Init builds the coordinator from config.
func New() *Module {
	return &Module{}
}

// NewWithCoordinator creates a module around an existing coordinator.
func NewWithCoordinator(c *Coordinator, logger *zap.Logger) *Module {
	return &Module{coordinator: c, logger: logger}
}

func (m *Module) Name() string        { return "discovery" }
func (m *Module) Version() string     { return "0.1.0" }
func (m *Module) Description() string { return "Finds hosts advertising SSH on the local network" }

func (m *Module) Init(cfg *config.Config, logger *zap.Logger) error {
	m.logger = logger
	if m.coordinator != nil {
		return nil
	}
	c, err := NewCoordinatorFromConfig(cfg, logger)
	if err != nil {
		return err
	}
	m.coordinator = c
	m.logger.Info("discovery module initialized", zap.String("backend", cfg.String("backend", BackendDNSSD)))
	return nil
}

func (m *Module) Start(_ context.Context) error {
	m.logger.Info("discovery module started")
	return nil
}

func (m *Module) Stop() error {
	if m.coordinator != nil {
		m.coordinator.Close()
	}
	m.logger.Info("discovery module stopped")
	return nil
}

func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "GET", Path: "/hosts", Handler: m.handleHosts},
		{Method: "POST", Path: "/rescan", Handler: m.handleRescan},
	}
}

// handleHosts starts a scan when none has found anything yet and returns the
// current snapshot. Clients poll until scan_complete is true.
func (m *Module) handleHosts(w http.ResponseWriter, r *http.Request) {
	server.WriteJSON(w, http.StatusOK, m.coordinator.GetOrStartScan(r.Context()))
}

// handleRescan discards the last finished scan so the next poll starts over.
func (m *Module) handleRescan(w http.ResponseWriter, r *http.Request) {
	if !m.coordinator.Reset() {
		server.Conflict(w, "a discovery scan is already in progress", r.URL.Path)
		return
	}
	m.logger.Info("discovery results cleared")
	server.WriteJSON(w, http.StatusAccepted, m.coordinator.Snapshot())
}

// NewScannerFromConfig builds the retrying scanner described by a discovery
// config section.
func NewScannerFromConfig(cfg *config.Config, logger *zap.Logger) (Scanner, error) {
	service := cfg.String("service", DefaultService)
	scanTimeout := cfg.Duration("scan_timeout", 0)

	var base Scanner
	switch backend := cfg.String("backend", BackendDNSSD); backend {
	case BackendDNSSD:
		base = NewDNSSDScanner(DNSSDConfig{
			Service:  service,
			MaxLines: cfg.Int("max_lines", 0),
			Timeout:  scanTimeout,
			Command:  cfg.GetStringSlice("command"),
		}, logger)
	case BackendMDNS:
		base = NewMDNSScanner(service, scanTimeout, logger)
	default:
		return nil, fmt.Errorf("unknown discovery backend %q", backend)
	}

	d := DefaultRetryConfig()
	retry := RetryConfig{
		Attempts:    cfg.Int("attempts", d.Attempts),
		Warmup:      d.Warmup,
		BackoffUnit: cfg.Duration("backoff_unit", d.BackoffUnit),
	}
	if cfg.IsSet("warmup") {
		retry.Warmup = cfg.GetDuration("warmup")
	}
	return NewRetryScanner(base, retry, logger), nil
}

// NewCoordinatorFromConfig builds a coordinator and its scanner from a
// discovery config section.
func NewCoordinatorFromConfig(cfg *config.Config, logger *zap.Logger) (*Coordinator, error) {
	scanner, err := NewScannerFromConfig(cfg, logger)
	if err != nil {
		return nil, err
	}
	d := DefaultCoordinatorConfig()
	cc := CoordinatorConfig{
		OverallTimeout: cfg.Duration("overall_timeout", d.OverallTimeout),
		Grace:          d.Grace,
	}
	if cfg.IsSet("grace") {
		cc.Grace = cfg.GetDuration("grace")
	}
	return NewCoordinator(scanner, cc, logger), nil
}
