// Package server exposes the read-only monitor surface: process health,
// provider enablement and Prometheus metrics. It binds local-only unless
// configured otherwise.
package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tickerlens/tickerlens/internal/cache"
	"github.com/tickerlens/tickerlens/internal/finance"
	"github.com/tickerlens/tickerlens/internal/metrics"
	"github.com/tickerlens/tickerlens/internal/providers"
)

type ctxKey string

const requestIDKey ctxKey = "request_id"

// Config holds server timeouts and the bind address.
type Config struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
}

// DefaultConfig binds to localhost only.
func DefaultConfig() Config {
	return Config{
		Addr:           "127.0.0.1:8090",
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    60 * time.Second,
		RequestTimeout: 5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Addr == "" {
		c.Addr = d.Addr
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = d.IdleTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	return c
}

// Deps carries the read-only views the endpoints serve from.
type Deps struct {
	Registry *providers.Registry
	Cache    *cache.Cache
	Metrics  *metrics.Set
	Logger   zerolog.Logger
	Version  string
}

// Server is the monitor HTTP server.
type Server struct {
	router *mux.Router
	server *http.Server
	deps   Deps
	cfg    Config
	start  time.Time
}

// New builds the server and its routes.
func New(cfg Config, deps Deps) *Server {
	cfg = cfg.withDefaults()

	s := &Server{
		router: mux.NewRouter(),
		deps:   deps,
		cfg:    cfg,
		start:  time.Now(),
	}
	s.routes()
	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func (s *Server) routes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.timeoutMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/providers", s.handleProviders).Methods(http.MethodGet)
	if reg := s.deps.Metrics.Registry(); reg != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	s.router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
}

// Handler exposes the router for httptest.
func (s *Server) Handler() http.Handler { return s.router }

// Addr reports the configured bind address.
func (s *Server) Addr() string { return s.cfg.Addr }

// Start verifies the port is free and serves until Shutdown.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.deps.Logger.Info().Str("addr", s.cfg.Addr).Msg("monitor server listening")
	return s.server.Serve(listener)
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.deps.Logger.Info().Msg("monitor server shutting down")
	return s.server.Shutdown(ctx)
}

type healthResponse struct {
	Status        string       `json:"status"`
	Version       string       `json:"version,omitempty"`
	UptimeSeconds float64      `json:"uptime_seconds"`
	Providers     healthCounts `json:"providers"`
	Cache         *cache.Stats `json:"cache,omitempty"`
}

type healthCounts struct {
	Enabled int `json:"enabled"`
	Total   int `json:"total"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:        "ok",
		Version:       s.deps.Version,
		UptimeSeconds: time.Since(s.start).Seconds(),
	}
	if s.deps.Registry != nil {
		for _, p := range s.deps.Registry.All() {
			resp.Providers.Total++
			if p.Enabled() {
				resp.Providers.Enabled++
			}
		}
	}
	if s.deps.Cache != nil {
		stats := s.deps.Cache.Stats()
		resp.Cache = &stats
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type providerStatus struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"display_name"`
	Intents     []string `json:"intents"`
	Enabled     bool     `json:"enabled"`
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	out := []providerStatus{}
	if s.deps.Registry != nil {
		for _, p := range s.deps.Registry.All() {
			status := providerStatus{
				ID:          p.ID(),
				DisplayName: p.DisplayName(),
				Enabled:     p.Enabled(),
				Intents:     []string{},
			}
			for _, intent := range finance.Intents() {
				if p.Supports(intent) {
					status.Intents = append(status.Intents, string(intent))
				}
			}
			out = append(out, status)
		}
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "not found",
		"path":  r.URL.Path,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.deps.Logger.Warn().Err(err).Msg("monitor response encode failed")
	}
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()[:8]
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		requestID, _ := r.Context().Value(requestIDKey).(string)
		s.deps.Logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.status).
			Dur("elapsed", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg("monitor request")
	})
}

func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}
