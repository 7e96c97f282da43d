package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/strixlabs/strix-anomaly/internal/cache"
	"github.com/strixlabs/strix-anomaly/internal/eventstore"
	"github.com/strixlabs/strix-anomaly/internal/features"
	"github.com/strixlabs/strix-anomaly/internal/logging"
	"github.com/strixlabs/strix-anomaly/internal/service"
)

var runEventsFile string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a single scoring run and print the outcome",
	Long: `Run the pipeline once and print the resulting snapshot and threat
records as JSON. With --events the run reads newline-delimited JSON event
records from a file instead of the configured event index, which makes a
seeded demo fully self-contained:

  strix-anomaly seed --out events.ndjson
  strix-anomaly run --events events.ndjson`,
	RunE: runOnce,
}

func init() {
	runCmd.Flags().StringVar(&runEventsFile, "events", "", "read events from an NDJSON file instead of the event index")
	rootCmd.AddCommand(runCmd)
}

func runOnce(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil)).With(logging.Component("run"))

	var source eventstore.Source
	if runEventsFile != "" {
		source = &eventstore.FileSource{Path: runEventsFile}
	} else {
		osSource, err := eventstore.NewOpenSearchSource(eventstore.Config{
			URL:           cfg.OpenSearch.URL,
			Username:      cfg.OpenSearch.Username,
			Password:      cfg.OpenSearch.Password,
			TLSSkipVerify: cfg.OpenSearch.Insecure,
			Index:         cfg.OpenSearch.Index,
			MaxEvents:     cfg.OpenSearch.MaxEvents,
		})
		if err != nil {
			return fmt.Errorf("event source: %w", err)
		}
		source = osSource
	}

	store := cache.NewStore()
	runner, err := service.NewRunner(service.Options{
		Source:         source,
		Cache:          store,
		Builder:        features.NewBuilder(loadIndicatorTable(logger)),
		Scorer:         newScorer(cfg),
		Logger:         logger,
		Aggregation:    cfg.Pipeline.Aggregation,
		BaselineWindow: time.Duration(cfg.Pipeline.BaselineDays) * 24 * time.Hour,
		TargetWindow:   time.Duration(cfg.Pipeline.LookbackHours) * time.Hour,
	})
	if err != nil {
		return err
	}

	if err := runner.RunOnce(cmd.Context()); err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(store.Latest())
}
