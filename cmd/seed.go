package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/strixlabs/strix-anomaly/internal/seeder"
)

var (
	seedOut      string
	seedUsers    int
	seedPerUser  int
	seedSpread   string
	seedBadUser  string
	seedBurst    int
	seedRandSeed int64
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Generate a demo event population",
	Long: `Generate a realistic event population as newline-delimited JSON:
benign activity for a set of users across the window, plus one noisy account
with failed logons, LOLBin executions, and suspicious command lines.`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().StringVar(&seedOut, "out", "-", "output file, - for stdout")
	seedCmd.Flags().IntVar(&seedUsers, "users", 20, "number of benign users")
	seedCmd.Flags().IntVar(&seedPerUser, "events-per-user", 120, "benign events per user")
	seedCmd.Flags().StringVar(&seedSpread, "spread", "168h", "time window the events span")
	seedCmd.Flags().StringVar(&seedBadUser, "anomalous-user", "eve.adversary", "account receiving the burst, empty to disable")
	seedCmd.Flags().IntVar(&seedBurst, "burst", 80, "burst events for the anomalous account")
	seedCmd.Flags().Int64Var(&seedRandSeed, "seed", 0, "random seed, 0 for time-based")
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	spread, err := time.ParseDuration(seedSpread)
	if err != nil {
		return fmt.Errorf("parse --spread: %w", err)
	}

	seedCfg := seeder.Config{
		Users:         seedUsers,
		EventsPerUser: seedPerUser,
		TimeSpread:    spread,
		Seed:          seedRandSeed,
		AnomalousUser: seedBadUser,
		BurstEvents:   seedBurst,
	}
	if seedCfg.Seed == 0 {
		seedCfg.Seed = time.Now().UnixNano()
	}

	out := os.Stdout
	if seedOut != "-" && seedOut != "" {
		f, err := os.Create(seedOut)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	enc := json.NewEncoder(out)
	for _, event := range seeder.Generate(seedCfg) {
		if err := enc.Encode(event); err != nil {
			return fmt.Errorf("write event: %w", err)
		}
	}
	return nil
}
