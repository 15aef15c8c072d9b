// Package api provides the HTTP control surface of the hotplug daemon.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tutu-network/hotplug/internal/domain"
	"github.com/tutu-network/hotplug/internal/health"
	"github.com/tutu-network/hotplug/internal/infra/hotplug"
	"github.com/tutu-network/hotplug/internal/infra/sqlite"
)

// Controller is the part of the hotplug controller the API drives.
type Controller interface {
	Status() domain.Status
	IsEnabled() bool
	SetEnabled(enabled bool)
	Settings() *hotplug.Settings
}

// Store persists settings and serves the transition journal.
type Store interface {
	ListEvents(ctx context.Context, f sqlite.EventFilter) ([]domain.HotplugEvent, error)
	CountEvents(ctx context.Context) (map[domain.Action]int, error)
	SaveTunables(ctx context.Context, t domain.Tunables) error
	SaveEnabled(ctx context.Context, enabled bool) error
}

// HealthReporter exposes the latest health check results.
type HealthReporter interface {
	Statuses() []health.Status
	IsHealthy() bool
}

// Server is the hotplug HTTP API server.
type Server struct {
	ctrl           Controller
	store          Store          // nil disables /api/events and persistence
	health         HealthReporter // nil reports ok
	log            logr.Logger
	version        string
	metricsEnabled bool
	onChange       func()
}

// NewServer creates a new API server.
func NewServer(ctrl Controller, log logr.Logger) *Server {
	return &Server{ctrl: ctrl, log: log.WithName("api"), version: "dev"}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetStore sets the settings and journal store.
func (s *Server) SetStore(st Store) { s.store = st }

// SetHealth sets the health reporter behind /health.
func (s *Server) SetHealth(h HealthReporter) { s.health = h }

// SetVersion sets the version reported by /api/version.
func (s *Server) SetVersion(v string) { s.version = v }

// OnChange registers a callback run after every accepted change to the
// settings or the enabled state.
func (s *Server) OnChange(fn func()) { s.onChange = fn }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
		})
		r.Get("/status", s.handleStatus)
		r.Put("/enabled", s.handleSetEnabled)
		r.Get("/bounds", s.handleGetBounds)
		r.Put("/bounds", s.handleSetBounds)
		r.Get("/thresholds", s.handleGetThresholds)
		r.Put("/thresholds", s.handleSetThresholds)
		r.Get("/tunables", s.handleGetTunables)
		r.Put("/tunables", s.handleSetTunables)
		r.Get("/events", s.handleListEvents)
		r.Get("/events/summary", s.handleEventSummary)
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
		return
	}
	status, code := "ok", http.StatusOK
	if !s.health.IsHealthy() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status": status,
		"checks": s.health.Statuses(),
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    "error",
		},
	})
}

// corsMiddleware adds CORS headers for local dashboards.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
