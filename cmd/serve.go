package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/strixlabs/strix-anomaly/internal/anomaly"
	"github.com/strixlabs/strix-anomaly/internal/cache"
	"github.com/strixlabs/strix-anomaly/internal/config"
	"github.com/strixlabs/strix-anomaly/internal/eventstore"
	"github.com/strixlabs/strix-anomaly/internal/features"
	"github.com/strixlabs/strix-anomaly/internal/logging"
	"github.com/strixlabs/strix-anomaly/internal/natsbus"
	"github.com/strixlabs/strix-anomaly/internal/repository"
	"github.com/strixlabs/strix-anomaly/internal/server"
	"github.com/strixlabs/strix-anomaly/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scoring loop and the read API",
	Long: `Start the scheduled scoring pipeline against the configured event
index and serve the read-only API (snapshot, anomalies, threats, metrics).`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With(logging.Component("serve"))

	source, err := eventstore.NewOpenSearchSource(eventstore.Config{
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

	var repo repository.Repository
	if cfg.Database.Enabled {
		connString := cfg.Database.Postgres.ConnString()

		logger.Info("running database migrations")
		m, err := migrate.New("file://migrations", connString)
		if err != nil {
			return fmt.Errorf("init migrations: %w", err)
		}
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("run migrations: %w", err)
		}

		pg, err := repository.NewPostgresRepository(cmd.Context(), connString)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pg.Close()
		repo = pg
	}

	var mirror *cache.Mirror
	if cfg.Redis.Enabled {
		redisOpts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		mirror = cache.NewMirror(redis.NewClient(redisOpts), cfg.Redis.TTL)
	}

	var bus *natsbus.Publisher
	if cfg.NATS.Enabled {
		natsCfg := natsbus.DefaultConfig()
		natsCfg.URL = cfg.NATS.URL
		bus, err = natsbus.Connect(natsCfg)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer bus.Close()
	}

	store := cache.NewStore()
	runner, err := service.NewRunner(service.Options{
		Source:         source,
		Cache:          store,
		Builder:        features.NewBuilder(loadIndicatorTable(logger)),
		Scorer:         newScorer(cfg),
		Repo:           repo,
		Mirror:         mirror,
		Bus:            bus,
		Logger:         logger,
		Aggregation:    cfg.Pipeline.Aggregation,
		BaselineWindow: time.Duration(cfg.Pipeline.BaselineDays) * 24 * time.Hour,
		TargetWindow:   time.Duration(cfg.Pipeline.LookbackHours) * time.Hour,
	})
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	go runner.Run(runCtx, cfg.Pipeline.Interval)

	var verifier *server.TokenVerifier
	if cfg.Auth.Enabled {
		verifier = server.NewTokenVerifier(cfg.Auth.JWTSecret)
	}
	handler := server.NewHandler(store, repo, logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.NewRouter(handler, verifier),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("read API listening", slog.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-stop:
		logger.Info("shutting down")
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

func loadIndicatorTable(logger *slog.Logger) features.IndicatorTable {
	if cfg.Pipeline.IndicatorTablePath == "" {
		return features.DefaultTable()
	}
	table, err := features.LoadTable(cfg.Pipeline.IndicatorTablePath)
	if err != nil {
		logger.Warn("indicator table load failed, using defaults", logging.Err(err))
	}
	return table
}

func newScorer(cfg *config.Config) *anomaly.Scorer {
	scorer := anomaly.NewScorer()
	scorer.Percentile = cfg.Pipeline.Percentile
	return scorer
}
