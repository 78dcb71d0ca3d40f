package cmd

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/pvpbtc/btcbattle/internal/app"
	"github.com/pvpbtc/btcbattle/pkg/config"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the battle backend",
	Long: `Starts the backend, which will:
1. Open the pari-mutuel pool market with the configured target and deadline
2. Serve the prediction, battle, and market API over HTTP
3. Fan lifecycle events out to WebSocket clients
4. Sweep stale searching predictions on a timer

Use --simulate to also generate a demo bet stream against the pool.`,
	RunE: runServer,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Bool("simulate", false, "Generate random demo bets against the pool market")
}

func runServer(cmd *cobra.Command, args []string) error {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := config.NewLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	simulate, _ := cmd.Flags().GetBool("simulate")

	application, err := app.New(cfg, logger, &app.Options{
		Simulate: simulate,
	})
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}

	err = application.Run()
	if err != nil {
		return fmt.Errorf("run app: %w", err)
	}

	return nil
}
