package anomaly

import (
	"fmt"
	"math"
	"sort"

	"github.com/strixlabs/strix-anomaly/internal/models"
)

// Defaults for the scorer. MinBaselineRows is the point below which a
// baseline is treated as insufficient data rather than trained on.
const (
	DefaultRank       = 3
	DefaultPercentile = 0.99
	DefaultSeed       = 1
	MinBaselineRows   = 10
	minFallbackRows   = 3
)

// Scorer fits a low-rank reconstruction model on a baseline window and scores
// a target window against it. A Scorer carries no state between runs;
// construct one per run or share freely, every call is independent.
type Scorer struct {
	Rank       int
	Percentile float64
	Seed       int64
}

// NewScorer returns a Scorer with the default rank, percentile, and seed.
func NewScorer() *Scorer {
	return &Scorer{
		Rank:       DefaultRank,
		Percentile: DefaultPercentile,
		Seed:       DefaultSeed,
	}
}

// Outcome is the full result of one scoring run.
type Outcome struct {
	Results []models.AnomalyResult

	// Threshold is the baseline-derived detection cutoff. Zero when the run
	// degraded to an insufficient-data pass-through.
	Threshold float64

	// Trained reports whether a model was actually fitted.
	Trained bool
}

// Run trains on the baseline rows and scores the target rows.
//
// With fewer than MinBaselineRows baseline rows, or an empty target, every
// target row comes back with score zero and no anomaly flag: insufficient
// data, not an error. Otherwise both sets are normalized against baseline
// statistics, the model is fitted on the normalized baseline only, and the
// detection threshold is the configured percentile of the baseline's own
// score distribution, so it never depends on the window being evaluated.
// Target rows strictly above the threshold are flagged; when nothing is
// flagged and the target has at least three rows, the single highest-scoring
// row is flagged so downstream consumers always have a lead to show.
//
// Results are sorted by descending score. A dimensionality mismatch degrades
// to zeroed results and reports ErrDimensionMismatch; rows keep raw values.
func (s *Scorer) Run(baseline, target []models.FeatureRow) (Outcome, error) {
	if len(baseline) < MinBaselineRows || len(target) == 0 {
		return Outcome{Results: zeroResults(target)}, nil
	}

	if err := NormalizeReference(baseline, target); err != nil {
		return Outcome{Results: zeroResults(target)}, fmt.Errorf("normalize: %w", err)
	}

	matrix := make([][]float64, len(baseline))
	for i, r := range baseline {
		matrix[i] = r.Features
	}
	model := fitPCA(matrix, s.Rank, s.Seed)

	baselineScores := make([]float64, len(baseline))
	for i, r := range baseline {
		baselineScores[i] = sanitizeScore(model.score(r.Features))
	}
	threshold := Percentile(baselineScores, s.Percentile)

	results := make([]models.AnomalyResult, len(target))
	for i, r := range target {
		score := sanitizeScore(model.score(r.Features))
		results[i] = models.AnomalyResult{
			Key:       r.Key,
			Score:     score,
			IsAnomaly: score > threshold,
		}
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	if len(results) >= minFallbackRows && !anyFlagged(results) {
		results[0].IsAnomaly = true
	}

	return Outcome{Results: results, Threshold: threshold, Trained: true}, nil
}

// ScoreTarget scores the target window and returns only the sorted results.
func (s *Scorer) ScoreTarget(baseline, target []models.FeatureRow) ([]models.AnomalyResult, error) {
	outcome, err := s.Run(baseline, target)
	return outcome.Results, err
}

// ScoreTargetDefault is the backward-compatible entry point using the default
// 0.99 baseline percentile.
func ScoreTargetDefault(baseline, target []models.FeatureRow) ([]models.AnomalyResult, error) {
	return NewScorer().ScoreTarget(baseline, target)
}

// Percentile returns the value at rank round((n-1)*p) of the sorted input,
// with p clamped to [0,1]. Percentile(v, 0) is the minimum and
// Percentile(v, 1) the maximum. An empty input yields zero. The input slice
// is not modified.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	idx := int(math.Round(float64(len(sorted)-1) * p))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func sanitizeScore(score float64) float64 {
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0
	}
	return score
}

func anyFlagged(results []models.AnomalyResult) bool {
	for _, r := range results {
		if r.IsAnomaly {
			return true
		}
	}
	return false
}

func zeroResults(target []models.FeatureRow) []models.AnomalyResult {
	results := make([]models.AnomalyResult, len(target))
	for i, r := range target {
		results[i] = models.AnomalyResult{Key: r.Key}
	}
	return results
}
