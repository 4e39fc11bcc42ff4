// Package api provides the HTTP API server for the staffing demand
// forecaster: the forecast and override endpoints the scheduling UI
// calls, the observation ingestion endpoint, and the admin listings.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"staffcast/forecast"
	"staffcast/pkg/platform"
)

var version = "0.1.0"

// ForecastService is the orchestration surface the handlers consume.
type ForecastService interface {
	GetForecast(ctx context.Context, key forecast.SeriesKey, start time.Time, horizonDays int) ([]forecast.Point, error)
	SetOverride(ctx context.Context, key forecast.SeriesKey, day time.Time, value float64, actor, reason string) (*forecast.Override, error)
	ClearOverride(ctx context.Context, key forecast.SeriesKey, day time.Time) error
}

// ObservationStore is the ingestion and audit surface.
type ObservationStore interface {
	RecordObservations(ctx context.Context, observations []forecast.Observation) error
	ListRecentPredictions(ctx context.Context, propertyID int64, limit int) ([]forecast.PredictionRecord, error)
}

// Pinger reports backing-store connectivity for readiness checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds server configuration.
type Config struct {
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestSize int64
	CORSOrigins    []string
	IngestAPIKey   string
}

// DefaultConfig returns default server configuration. The request size
// cap is a deployment knob that never surfaces as a CLI flag.
func DefaultConfig() *Config {
	return &Config{
		Port:           8080,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   60 * time.Second,
		MaxRequestSize: int64(platform.GetEnvInt("STAFFCAST_MAX_REQUEST_BYTES", 4*1024*1024)),
		CORSOrigins:    []string{"*"},
	}
}

// Server is the HTTP API server.
type Server struct {
	httpServer   *http.Server
	svc          ForecastService
	observations ObservationStore
	registry     forecast.ModelRegistry
	pingers      []Pinger
	logger       zerolog.Logger
	config       *Config
}

// NewServer creates a new API server. pingers feed the readiness
// endpoint; pass every required backing store.
func NewServer(svc ForecastService, observations ObservationStore, registry forecast.ModelRegistry, pingers []Pinger, logger zerolog.Logger, config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	return &Server{
		svc:          svc,
		observations: observations,
		registry:     registry,
		pingers:      pingers,
		logger:       logger,
		config:       config,
	}
}

// Router builds the route tree. Split from Start so tests can drive
// the handlers through httptest.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(s.corsMiddleware)

	r.Get("/health", s.handleHealth)
	r.Get("/health/live", s.handleLiveness)
	r.Get("/health/ready", s.handleReadiness)
	r.Get("/version", s.handleVersion)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1/forecast", func(r chi.Router) {
		r.Get("/forecast", s.handleGetForecast)
		r.Post("/override", s.handleSetOverride)
		r.Delete("/override", s.handleClearOverride)
		r.With(platform.APIKeyMiddleware(s.config.IngestAPIKey)).
			Post("/observations", s.handleIngestObservations)
		r.Get("/models", s.handleListModels)
		r.Get("/predictions", s.handleListPredictions)
	})

	return r
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.Router(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info().Int("port", s.config.Port).Str("version", version).Msg("staffcast API server starting")
	return s.httpServer.ListenAndServe()
}

// StartWithGracefulShutdown starts the server and drains connections
// on SIGINT/SIGTERM.
func (s *Server) StartWithGracefulShutdown() error {
	errChan := make(chan error, 1)
	go func() {
		if err := s.Start(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case <-quit:
		s.logger.Info().Msg("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Str("remote", r.RemoteAddr).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		allowed := false
		for _, o := range s.config.CORSOrigins {
			if o == "*" || o == origin {
				allowed = true
				break
			}
		}

		if allowed {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Actor, X-API-Key")
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// HEALTH ENDPOINTS
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "staffcast",
		"version": version,
	})
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	for _, p := range s.pingers {
		if err := p.Ping(ctx); err != nil {
			s.jsonError(w, http.StatusServiceUnavailable, "backing store not ready")
			return
		}
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"version": version})
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) jsonError(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{
		"error": message,
	})
}
