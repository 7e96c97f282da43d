package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/strixlabs/strix-anomaly/internal/config"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "strix-anomaly",
	Short: "Strix UEBA anomaly scoring service",
	Long: `strix-anomaly scores user behavior from security log events.

It builds per-user feature vectors from a trusted baseline window, trains a
low-rank reconstruction model on that baseline, scores the most recent window
against it, and turns flagged users into explainable threat records for the
Strix dashboard.`,
	Version: "0.1.0",
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: built-in defaults + STRIX_* env)")
}

func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: could not load config: %v\n", err)
		os.Exit(1)
	}
}
