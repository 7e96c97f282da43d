// Package service orchestrates the scoring pipeline: fetch both windows,
// build features, score, publish the snapshot, explain, and persist.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/strixlabs/strix-anomaly/internal/anomaly"
	"github.com/strixlabs/strix-anomaly/internal/cache"
	"github.com/strixlabs/strix-anomaly/internal/eventstore"
	"github.com/strixlabs/strix-anomaly/internal/features"
	"github.com/strixlabs/strix-anomaly/internal/logging"
	"github.com/strixlabs/strix-anomaly/internal/metrics"
	"github.com/strixlabs/strix-anomaly/internal/models"
	"github.com/strixlabs/strix-anomaly/internal/natsbus"
	"github.com/strixlabs/strix-anomaly/internal/repository"
	"github.com/strixlabs/strix-anomaly/internal/threats"
)

// Aggregation modes for feature building.
const (
	AggregationHourly = "hourly"
	AggregationWindow = "window"
)

// Options configures a Runner. Source, Cache, Builder, and Scorer are
// required; Repo, Mirror, and Bus are optional and skipped when nil.
type Options struct {
	Source  eventstore.Source
	Cache   *cache.Store
	Builder *features.Builder
	Scorer  *anomaly.Scorer

	Repo   repository.Repository
	Mirror *cache.Mirror
	Bus    *natsbus.Publisher

	Logger *slog.Logger

	// Aggregation selects the feature mode, default hourly.
	Aggregation string

	// BaselineWindow is the trusted reference period preceding the target.
	BaselineWindow time.Duration

	// TargetWindow is the period being evaluated.
	TargetWindow time.Duration

	// Now overrides the clock, used by tests.
	Now func() time.Time
}

// Runner executes scoring runs. Each run is synchronous and sequential; the
// only shared state it touches is the snapshot store, replaced atomically at
// the end of a run.
type Runner struct {
	opts Options
}

// NewRunner validates the options and builds a Runner.
func NewRunner(opts Options) (*Runner, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("runner requires an event source")
	}
	if opts.Cache == nil {
		return nil, fmt.Errorf("runner requires a snapshot store")
	}
	if opts.Builder == nil {
		return nil, fmt.Errorf("runner requires a feature builder")
	}
	if opts.Scorer == nil {
		return nil, fmt.Errorf("runner requires a scorer")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Aggregation == "" {
		opts.Aggregation = AggregationHourly
	}
	if opts.BaselineWindow <= 0 {
		opts.BaselineWindow = 7 * 24 * time.Hour
	}
	if opts.TargetWindow <= 0 {
		opts.TargetWindow = 24 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Runner{opts: opts}, nil
}

// RunOnce performs a single scoring run. Insufficient data and dimensionality
// mismatches degrade to a benign zeroed snapshot rather than failing the run;
// only infrastructure errors (event fetch, persistence) are returned.
func (r *Runner) RunOnce(ctx context.Context) error {
	runID := uuid.NewString()
	started := r.opts.Now()
	log := r.opts.Logger.With(logging.Component("runner"), logging.RunID(runID))

	targetFrom := started.Add(-r.opts.TargetWindow)
	baselineFrom := targetFrom.Add(-r.opts.BaselineWindow)

	baselineEvents, err := r.opts.Source.FetchEvents(ctx, baselineFrom, targetFrom)
	if err != nil {
		metrics.RunsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("fetch baseline events: %w", err)
	}
	targetEvents, err := r.opts.Source.FetchEvents(ctx, targetFrom, started)
	if err != nil {
		metrics.RunsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("fetch target events: %w", err)
	}

	// The hourly extractor's lookback must reach the start of each window.
	baselineRows := r.buildRows(baselineEvents, r.opts.BaselineWindow+r.opts.TargetWindow)
	targetRows := r.buildRows(targetEvents, r.opts.TargetWindow)
	metrics.BaselineRows.Set(float64(len(baselineRows)))
	metrics.TargetRows.Set(float64(len(targetRows)))

	// The scorer normalizes rows in place, so the raw centroid and the raw
	// target vectors used for explanations are captured first.
	baselineMean := anomaly.MeanVector(baselineRows)
	rowIndex := make(map[string]models.FeatureRow, len(targetRows))
	for _, row := range targetRows {
		raw := make([]float64, len(row.Features))
		copy(raw, row.Features)
		rowIndex[row.Key] = models.FeatureRow{Key: row.Key, Features: raw}
	}

	outcome, err := r.opts.Scorer.Run(baselineRows, targetRows)
	if err != nil {
		if errors.Is(err, anomaly.ErrDimensionMismatch) {
			metrics.DimensionMismatches.Inc()
			log.Warn("scoring degraded, feature rows disagree on dimensionality", logging.Err(err))
		} else {
			metrics.RunsTotal.WithLabelValues("error").Inc()
			return fmt.Errorf("score target: %w", err)
		}
	}
	metrics.ThresholdGauge.Set(outcome.Threshold)

	snap := r.opts.Cache.Publish(outcome.Results, rowIndex, baselineMean)
	if err := r.opts.Mirror.Publish(ctx, snap); err != nil {
		log.Warn("snapshot mirror failed", logging.Err(err))
	}

	for _, res := range outcome.Results {
		if !res.IsAnomaly {
			continue
		}
		log.Info("entity flagged",
			logging.EntityKey(res.Key),
			slog.Float64("score", res.Score),
			logging.Threshold(outcome.Threshold),
		)
	}

	records := threats.Build(outcome.Results, rowIndex, baselineMean, started)
	flagged := len(records)
	metrics.AnomaliesFlagged.Add(float64(flagged))

	if r.opts.Repo != nil {
		if err := r.opts.Repo.SaveThreats(ctx, records); err != nil {
			metrics.RunsTotal.WithLabelValues("error").Inc()
			return fmt.Errorf("persist threats: %w", err)
		}
	}

	if err := r.opts.Bus.PublishThreats(ctx, records); err != nil {
		log.Warn("threat publish failed", logging.Err(err))
	}
	if err := r.opts.Bus.PublishRun(ctx, natsbus.RunSummary{
		RunID:        runID,
		BaselineRows: len(baselineRows),
		TargetRows:   len(targetRows),
		Flagged:      flagged,
		Threshold:    outcome.Threshold,
		CompletedAt:  r.opts.Now().UTC(),
	}); err != nil {
		log.Warn("run publish failed", logging.Err(err))
	}

	elapsed := time.Since(started)
	metrics.RunDuration.Observe(elapsed.Seconds())
	metrics.RunsTotal.WithLabelValues("ok").Inc()
	log.Info("scoring run completed",
		slog.Int("baseline_rows", len(baselineRows)),
		slog.Int("target_rows", len(targetRows)),
		slog.Int("flagged", flagged),
		logging.Threshold(outcome.Threshold),
		logging.Duration(elapsed.Milliseconds()),
	)
	return nil
}

// Run executes scoring runs on the given interval until the context ends.
// The first run happens immediately.
func (r *Runner) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log := r.opts.Logger.With(logging.Component("runner"))
	log.Info("scoring loop started", slog.Duration("interval", interval))

	if err := r.RunOnce(ctx); err != nil {
		log.Error("scoring run failed", logging.Err(err))
	}

	for {
		select {
		case <-ctx.Done():
			log.Info("scoring loop stopped")
			return
		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil {
				log.Error("scoring run failed", logging.Err(err))
			}
		}
	}
}

func (r *Runner) buildRows(events []models.EventRecord, lookback time.Duration) []models.FeatureRow {
	if r.opts.Aggregation == AggregationWindow {
		return r.opts.Builder.BuildPerUser(events)
	}
	return r.opts.Builder.BuildPerUserHourly(events, lookback)
}
