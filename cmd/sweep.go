package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/pvpbtc/btcbattle/internal/store"
	"github.com/pvpbtc/btcbattle/pkg/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

//nolint:gochecknoglobals // Cobra boilerplate
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Expire stale searching predictions once and exit",
	Long: `Runs a single expiry pass against the configured store: searching
predictions older than PREDICTION_MAX_AGE are cancelled. Useful as a cron
fallback when the long-running sweeper is not deployed.`,
	RunE: runSweep,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.StorageMode != "postgres" {
		return fmt.Errorf("sweep requires STORAGE_MODE=postgres, got %q", cfg.StorageMode)
	}

	logger, err := config.NewLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	pg, err := store.NewPostgresStore(&store.PostgresConfig{
		Host:     cfg.PostgresHost,
		Port:     cfg.PostgresPort,
		User:     cfg.PostgresUser,
		Password: cfg.PostgresPass,
		Database: cfg.PostgresDB,
		SSLMode:  cfg.PostgresSSL,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("create postgres store: %w", err)
	}
	defer func() {
		_ = pg.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-cfg.PredictionMaxAge)
	swept, err := pg.ExpireSearching(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("expire predictions: %w", err)
	}

	logger.Info("sweep-complete",
		zap.Int64("swept", swept),
		zap.Time("cutoff", cutoff))

	return nil
}
