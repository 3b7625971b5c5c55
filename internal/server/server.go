package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/HerbHall/fleetscope/internal/plugin"
	"github.com/HerbHall/fleetscope/internal/version"
)

// Server is the fleetscope HTTP server.
type Server struct {
	httpServer *http.Server
	registry   *plugin.Registry
	gatherer   prometheus.Gatherer
	logger     *zap.Logger
	mux        *http.ServeMux
	auth       *Authenticator
}

// Option customizes a Server.
type Option func(*Server)

// WithAuth guards routes marked Protected with bearer tokens from a.
// Without it those routes answer 503.
func WithAuth(a *Authenticator) Option {
	return func(s *Server) { s.auth = a }
}

// New creates a Server. gatherer backs /metrics; nil uses the default
// Prometheus registry.
func New(addr string, reg *plugin.Registry, gatherer prometheus.Gatherer, logger *zap.Logger, opts ...Option) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:        addr,
			Handler:     mux,
			ReadTimeout: 15 * time.Second,
			// Discovery and dispatch requests hold the connection while
			// remote sessions run.
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		registry: reg,
		gatherer: gatherer,
		logger:   logger,
		mux:      mux,
	}
	for _, o := range opts {
		o(s)
	}

	s.registerCoreRoutes()
	s.mountPluginRoutes()

	return s
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// registerCoreRoutes sets up routes that are always available.
func (s *Server) registerCoreRoutes() {
	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/v1/plugins", s.handlePlugins)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
}

// mountPluginRoutes registers all plugin routes under /api/v1/{plugin}/.
func (s *Server) mountPluginRoutes() {
	for pluginName, routes := range s.registry.AllRoutes() {
		for _, route := range routes {
			pattern := fmt.Sprintf("%s /api/v1/%s%s", route.Method, pluginName, route.Path)
			handler := route.Handler
			if route.Protected {
				handler = requireToken(s.auth, handler)
			}
			s.mux.HandleFunc(pattern, handler)
			s.logger.Debug("mounted route",
				zap.String("plugin", pluginName),
				zap.String("pattern", pattern),
				zap.Bool("protected", route.Protected),
			)
		}
	}
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("X-Fleetscope-Version", version.Short())
	WriteJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "fleetscope",
		"version": version.Get(),
	})
}

// handlePlugins returns the list of registered plugins.
func (s *Server) handlePlugins(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("X-Fleetscope-Version", version.Short())
	WriteJSON(w, http.StatusOK, s.registry.All())
}
