package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/HerbHall/fleetscope/internal/config"
	"github.com/HerbHall/fleetscope/internal/plugin"
)

type echoPlugin struct{}

func (echoPlugin) Name() string { return "echo" }
func (echoPlugin) Version() string { return "0.1.0" }
func (echoPlugin) Description() string { return "echoes" }
func (echoPlugin) Init(*config.Config, *zap.Logger) error { return nil }
func (echoPlugin) Start(context.Context) error { return nil }
func (echoPlugin) Stop() error { return nil }
func (echoPlugin) Routes() []plugin.Route {
	echo := func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"host": r.PathValue("host")})
	}
	return []plugin.Route{
		{Method: "GET", Path: "/ping/{host}", Handler: echo},
		{Method: "POST", Path: "/run/{host}", Handler: echo, Protected: true},
	}
}

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	reg := plugin.NewRegistry(zap.NewNop())
	if err := reg.Register(echoPlugin{}); err != nil {
		t.Fatal(err)
	}
	if err := reg.InitAll(config.New(viper.New())); err != nil {
		t.Fatal(err)
	}

	promReg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "fleetscope_test_total", Help: "test"})
	promReg.MustRegister(counter)
	counter.Inc()

	return New(":0", reg, promReg, zap.NewNop(), opts...)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["service"] != "fleetscope" {
		t.Errorf("service = %v, want fleetscope", body["service"])
	}
}

func TestPluginsListing(t *testing.T) {
	s := newTestServer(t)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/plugins", nil))

	var infos []plugin.Info
	if err := json.NewDecoder(w.Body).Decode(&infos); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(infos) != 1 || infos[0].Name != "echo" || !infos[0].Enabled {
		t.Errorf("plugins = %+v, want one enabled echo plugin", infos)
	}
}

func TestPluginRouteMounted(t *testing.T) {
	s := newTestServer(t)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/echo/ping/mac.local", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"mac.local"`) {
		t.Errorf("body = %s, want host echoed", w.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "fleetscope_test_total 1") {
		t.Errorf("metrics body missing counter:\n%s", w.Body.String())
	}
}

func TestProtectedRoute(t *testing.T) {
	auth, err := NewAuthenticator(testSecret)
	if err != nil {
		t.Fatal(err)
	}
	valid, err := auth.Issue("ops", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		opts   []Option
		header string
		want   int
	}{
		{"no authenticator", nil, "Bearer " + valid, http.StatusServiceUnavailable},
		{"missing header", []Option{WithAuth(auth)}, "", http.StatusUnauthorized},
		{"wrong scheme", []Option{WithAuth(auth)}, "Basic " + valid, http.StatusUnauthorized},
		{"garbage token", []Option{WithAuth(auth)}, "Bearer not-a-jwt", http.StatusUnauthorized},
		{"valid token", []Option{WithAuth(auth)}, "Bearer " + valid, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, tt.opts...)
			req := httptest.NewRequest("POST", "/api/v1/echo/run/mac.local", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
			if tt.want == http.StatusUnauthorized && w.Header().Get("WWW-Authenticate") == "" {
				t.Error("401 without WWW-Authenticate challenge")
			}
		})
	}
}

func TestUnprotectedRouteIgnoresAuth(t *testing.T) {
	auth, err := NewAuthenticator(testSecret)
	if err != nil {
		t.Fatal(err)
	}
	s := newTestServer(t, WithAuth(auth))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/echo/ping/mac.local", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}
