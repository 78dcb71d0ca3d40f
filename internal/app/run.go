package app

import (
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Run starts the application and blocks until shutdown.
func (a *App) Run() error {
	a.logger.Info("application-starting",
		zap.String("storage-mode", a.cfg.StorageMode),
		zap.String("notify-mode", a.cfg.NotifyMode),
		zap.String("log-level", a.cfg.LogLevel))

	a.startComponents()

	// Mark as ready
	a.healthChecker.SetReady(true)

	a.logger.Info("application-ready",
		zap.String("http-addr", ":"+a.cfg.HTTPPort))

	// Wait for shutdown signal
	return a.waitForShutdown()
}

func (a *App) startComponents() {
	// Start HTTP server
	a.wg.Add(1)
	go a.runHTTPServer()

	// Give HTTP server a moment to start
	time.Sleep(100 * time.Millisecond)

	// Start WebSocket hub
	a.wg.Add(1)
	go a.runHub()

	// Start expiry sweeper
	a.wg.Add(1)
	go a.runSweeper()

	// Start simulated price feed
	a.wg.Add(1)
	go a.runPriceFeed()

	// Start bet simulator when enabled
	if a.betSimulator != nil {
		a.wg.Add(1)
		go a.runBetSimulator()
	}
}

func (a *App) runHTTPServer() {
	defer a.wg.Done()
	err := a.httpServer.Start()
	if err != nil {
		a.logger.Error("http-server-error", zap.Error(err))
	}
}

func (a *App) runHub() {
	defer a.wg.Done()
	err := a.hub.Run(a.ctx)
	if err != nil && !errors.Is(err, a.ctx.Err()) {
		a.logger.Error("ws-hub-error", zap.Error(err))
	}
}

func (a *App) runSweeper() {
	defer a.wg.Done()
	a.sweeper.Start(a.ctx)
}

func (a *App) runPriceFeed() {
	defer a.wg.Done()
	a.priceFeed.Start(a.ctx)
}

func (a *App) runBetSimulator() {
	defer a.wg.Done()
	a.betSimulator.Start(a.ctx)
}

func (a *App) waitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		a.logger.Info("shutdown-signal-received", zap.String("signal", sig.String()))
	case <-a.ctx.Done():
		a.logger.Info("context-cancelled")
	}

	return a.Shutdown()
}
