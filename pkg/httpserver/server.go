package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/pvpbtc/btcbattle/internal/identity"
	"github.com/pvpbtc/btcbattle/internal/market"
	"github.com/pvpbtc/btcbattle/internal/matchmaking"
	"github.com/pvpbtc/btcbattle/internal/notify"
	"github.com/pvpbtc/btcbattle/internal/store"
	"github.com/pvpbtc/btcbattle/pkg/healthprobe"
	"go.uber.org/zap"
)

// Server provides the HTTP API plus metrics and health endpoints.
type Server struct {
	server *http.Server
	logger *zap.Logger
}

// Config holds server configuration.
type Config struct {
	Port          string
	Logger        *zap.Logger
	HealthChecker *healthprobe.HealthChecker
	Market        *market.Market
	Matchmaking   *matchmaking.Service
	Store         store.Store
	Identity      *identity.Middleware
	Hub           *notify.Hub
	Bus           notify.Bus
	Prices        PriceSource
}

// New creates a new HTTP server.
func New(cfg *Config) *Server {
	r := NewRouter(cfg)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
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

// NewRouter builds the route tree. Exposed separately so handler tests can
// run against the full middleware stack without binding a port.
func NewRouter(cfg *Config) chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	// Operational routes
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/health", cfg.HealthChecker.Health())
	r.Get("/ready", cfg.HealthChecker.Ready())

	marketHandler := NewMarketHandler(cfg.Market, cfg.Prices, cfg.Bus, cfg.Logger)
	predictionHandler := NewPredictionHandler(cfg.Matchmaking, cfg.Store, cfg.Prices, cfg.Logger)
	battleHandler := NewBattleHandler(cfg.Matchmaking, cfg.Store, cfg.Logger)
	userHandler := NewUserHandler(cfg.Store, cfg.Logger)

	r.Route("/api", func(r chi.Router) {
		r.Use(cfg.Identity.Resolve)

		r.Get("/market", marketHandler.HandleSnapshot)
		r.Get("/leaderboard", userHandler.HandleLeaderboard)
		r.Get("/users/{id}", userHandler.HandleGet)

		if cfg.Hub != nil {
			r.Get("/ws", func(w http.ResponseWriter, req *http.Request) {
				userID := ""
				if u := identity.UserFromContext(req.Context()); u != nil {
					userID = u.ID
				}
				cfg.Hub.HandleWS(w, req, userID)
			})
		}

		// Everything below acts on behalf of the caller.
		r.Group(func(r chi.Router) {
			r.Use(identity.Require)

			r.Post("/market/stakes", marketHandler.HandleStake)

			r.Post("/predictions", predictionHandler.HandleCreate)
			r.Get("/predictions", predictionHandler.HandleList)
			r.Delete("/predictions/{id}", predictionHandler.HandleCancel)

			r.Get("/battles", battleHandler.HandleList)
			r.Get("/battles/history", battleHandler.HandleHistory)
			r.Get("/battles/{id}", battleHandler.HandleGet)
			r.Post("/battles/{id}/accept", battleHandler.HandleAccept)
			r.Post("/battles/{id}/decline", battleHandler.HandleDecline)
			r.Post("/battles/{id}/resolve", battleHandler.HandleResolve)
		})
	})

	return r
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
