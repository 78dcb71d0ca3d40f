// Package app wires the collaborators together: store, cache, event bus,
// market, matchmaking, sweeper, simulators, and the HTTP server.
package app

import (
	"context"
	"sync"

	"github.com/pvpbtc/btcbattle/internal/market"
	"github.com/pvpbtc/btcbattle/internal/matchmaking"
	"github.com/pvpbtc/btcbattle/internal/notify"
	"github.com/pvpbtc/btcbattle/internal/simulation"
	"github.com/pvpbtc/btcbattle/internal/store"
	"github.com/pvpbtc/btcbattle/internal/sweeper"
	"github.com/pvpbtc/btcbattle/pkg/config"
	"github.com/pvpbtc/btcbattle/pkg/healthprobe"
	"github.com/pvpbtc/btcbattle/pkg/httpserver"
	"go.uber.org/zap"
)

// App is the main application orchestrator.
type App struct {
	cfg           *config.Config
	logger        *zap.Logger
	healthChecker *healthprobe.HealthChecker
	httpServer    *httpserver.Server
	store         store.Store
	bus           notify.Bus
	hub           *notify.Hub
	market        *market.Market
	matchmaking   *matchmaking.Service
	sweeper       *sweeper.Sweeper
	priceFeed     *simulation.PriceFeed
	betSimulator  *simulation.BetSimulator
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// Options holds application options.
type Options struct {
	// Simulate enables the demo bet stream against the pool market.
	Simulate bool
}
