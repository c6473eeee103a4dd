// Package server provides the HTTP surface of Argus. It is a thin
// layer over the module services: handlers parse, delegate, and map
// errors onto status codes.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/argusquant/argus/internal/upstream"
)

// Config holds server configuration.
type Config struct {
	Log     zerolog.Logger
	Port    int
	DevMode bool

	API    *API
	System *SystemHandlers
}

// Server is the HTTP server.
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
}

func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "server").Logger(),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes(cfg.API, cfg.System)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes(api *API, system *SystemHandlers) {
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Get("/recommendations", api.Recommendations)
		r.Get("/analyze/{kind}/{code}", api.Analyze)
		r.Get("/factors/{kind}/{code}", api.Factors)

		r.Route("/performance", func(r chi.Router) {
			r.Get("/stats", api.PerformanceStats)
			r.Get("/records", api.PerformanceRecords)
		})

		r.Get("/valuation/{code}", api.IntradayValuation)
		r.Get("/indices", api.Indices)

		r.Route("/compute", func(r chi.Router) {
			r.Post("/{kind}", api.StartCompute)
			r.Get("/progress", api.ComputeProgress)
			r.Post("/cancel", api.CancelCompute)
			r.Get("/runs", api.ComputeRuns)
			r.Get("/stream", api.StreamCompute)
		})

		r.Route("/settings", func(r chi.Router) {
			r.Get("/", api.AllSettings)
			r.Put("/{key}", api.PutSetting)
		})
		r.Route("/profile", func(r chi.Router) {
			r.Get("/", api.GetProfile)
			r.Put("/", api.PutProfile)
		})

		if system != nil {
			r.Get("/system/status", system.Status)
		}
	})
}

// Start blocks serving until Shutdown.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("http server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.server.Shutdown(ctx)
}

// Router exposes the handler tree for tests.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, err error) {
	respondJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

func badRequest(w http.ResponseWriter, format string, args ...interface{}) {
	respondJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf(format, args...)})
}

// statusFor maps upstream error classes onto HTTP status codes.
func statusFor(err error) int {
	switch upstream.ClassOf(err) {
	case upstream.ClassNotFound:
		return http.StatusNotFound
	case upstream.ClassInvalidArgument:
		return http.StatusBadRequest
	case upstream.ClassRateLimited:
		return http.StatusTooManyRequests
	case upstream.ClassUnavailable, upstream.ClassNoKeyAvailable:
		return http.StatusServiceUnavailable
	case upstream.ClassDeadline:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
