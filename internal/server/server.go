// Package server provides the HTTP server and routing for the analytics
// engine. It is a thin presentation adapter: handlers fetch price series,
// invoke the computation modules, and serialize their outputs.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/quantcockpit/engine/internal/config"
	"github.com/quantcockpit/engine/internal/modules/history"
	"github.com/quantcockpit/engine/internal/modules/optimization"
	"github.com/quantcockpit/engine/internal/modules/simulation"
	"github.com/quantcockpit/engine/internal/modules/statistics"
)

// HealthChecker reports the readiness of a backing store.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Config holds server configuration
type Config struct {
	Log        zerolog.Logger
	Port       int
	Engine     config.EngineConfig
	Health     HealthChecker
	Provider   history.PriceProvider
	Calculator *statistics.Calculator
	Optimizer  *optimization.Optimizer
	Simulator  *simulation.Simulator
}

// Server represents the HTTP server
type Server struct {
	router     *chi.Mux
	server     *http.Server
	log        zerolog.Logger
	engine     config.EngineConfig
	health     HealthChecker
	provider   history.PriceProvider
	calculator *statistics.Calculator
	optimizer  *optimization.Optimizer
	simulator  *simulation.Simulator
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		log:        cfg.Log.With().Str("component", "server").Logger(),
		engine:     cfg.Engine,
		health:     cfg.Health,
		provider:   cfg.Provider,
		calculator: cfg.Calculator,
		optimizer:  cfg.Optimizer,
		simulator:  cfg.Simulator,
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/tickers", s.handleTickers)
		r.Post("/statistics", s.handleStatistics)
		r.Post("/optimize", s.handleOptimize)
		r.Post("/frontier", s.handleFrontier)
		r.Post("/simulate", s.handleSimulate)
	})

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	return s
}

// Router exposes the chi router, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start begins listening for HTTP requests. Blocks until shutdown.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
