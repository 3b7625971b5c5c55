package plugin

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/HerbHall/fleetscope/internal/config"
)

// Route represents an HTTP route exposed by a plugin. Protected routes
// require a bearer token.
type Route struct {
	Method    string
	Path      string
	Handler   http.HandlerFunc
	Protected bool
}

// Info describes a plugin for the /plugins listing.
type Info struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
	Enabled     bool   `json:"enabled"`
}

// Plugin defines the interface that all fleetscope modules must implement.
type Plugin interface {
	// Name returns the plugin's unique identifier and config section
	// (e.g., "discovery", "dispatch").
	Name() string

	// Version returns the plugin's semantic version.
	Version() string

	// Description is a one-line summary.
	Description() string

	// Init initializes the plugin with its config section and logger.
	Init(cfg *config.Config, logger *zap.Logger) error

	// Start begins the plugin's background operations.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the plugin.
	Stop() error

	// Routes returns the HTTP routes this plugin exposes.
	Routes() []Route
}
