package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/access"
	"github.com/michaelpento.lv/flasharb/engine"
	"github.com/michaelpento.lv/flasharb/flashloan"
	"github.com/michaelpento.lv/flasharb/simulator"
	"github.com/michaelpento.lv/flasharb/types"
)

// Engine is the read side of the arbitrage engine the server exposes
type Engine interface {
	Address() common.Address
	Owner() common.Address
	State() engine.State
	Paused() bool
	ProfitPolicy() engine.ProfitPolicy
	Gateway() flashloan.Gateway
	Registry() *access.Registry
	Results() []*types.ArbitrageResult
	Result(id string) (*types.ArbitrageResult, bool)
	CalculateProfit(ctx context.Context, req *types.ArbitrageRequest) (*engine.Quote, error)
}

type Simulator interface {
	SimulateRequest(ctx context.Context, caller common.Address, req *types.ArbitrageRequest) (*simulator.SimulationResult, error)
}

// Server provides HTTP endpoints for health, metrics and engine inspection.
type Server struct {
	server *http.Server
	logger *zap.Logger
}

// Config holds server configuration.
type Config struct {
	Addr      string
	Logger    *zap.Logger
	Engine    Engine
	Simulator Simulator
	// Gatherer backs /metrics; nil uses the default registry
	Gatherer prometheus.Gatherer
	// DefaultTTL is the deadline given to quote and simulate requests that carry none
	DefaultTTL time.Duration
	Now        func() time.Time
}

// New creates a new HTTP server.
func New(cfg *Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(cfg),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{
		server: server,
		logger: cfg.Logger,
	}
}

// NewRouter builds the route tree; cfg must already carry its defaults
func NewRouter(cfg *Config) http.Handler {
	h := &handlers{
		engine:     cfg.Engine,
		simulator:  cfg.Simulator,
		logger:     cfg.Logger,
		defaultTTL: cfg.DefaultTTL,
		now:        cfg.Now,
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}).ServeHTTP)
	r.Get("/health", h.health)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/registry", h.registry)
		r.Get("/results", h.results)
		r.Get("/results/{id}", h.result)
		r.Post("/quote", h.quote)
		if cfg.Simulator != nil {
			r.Post("/simulate", h.simulate)
		}
	})

	return r
}

// Handler returns the server's root handler
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server.
// This is a blocking call that returns when the server stops or encounters an error.
func (s *Server) Start() error {
	s.logger.Info("http-server-starting", zap.String("addr", s.server.Addr))

	err := s.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen and serve: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http-server-shutting-down")

	err := s.server.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("http-server-shutdown-complete")
	return nil
}
