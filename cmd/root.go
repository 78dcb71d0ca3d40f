package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var rootCmd = &cobra.Command{
	Use:   "btcbattle",
	Short: "BTC battle backend",
	Long: `BTC battle backend serving two wagering modes over one HTTP API:

A pari-mutuel pool market where stakes go above or below a target BTC price
and odds follow the pool balance, and head-to-head battles where opposite
equal-stake predictions are paired, mutually accepted, and settled against
the final price.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
