package anomaly

import (
	"errors"

	"github.com/strixlabs/strix-anomaly/internal/models"
)

// ErrDimensionMismatch reports that feature rows passed to one call disagreed
// on vector dimensionality. Rows are left untouched when it is returned.
var ErrDimensionMismatch = errors.New("feature rows have mismatched dimensionality")

// Ranges below this are treated as degenerate and normalize to exactly zero.
const degenerateRange = 1e-6

// NormalizeReference rescales both row sets to [0,1] per dimension using
// min/max statistics computed only from the baseline set, so the target
// distribution can never shift the scale between runs. Values are mutated in
// place. An empty baseline is a no-op. Dimensions whose baseline range is
// below 1e-6 normalize to exactly zero in both sets.
func NormalizeReference(baseline, target []models.FeatureRow) error {
	if len(baseline) == 0 {
		return nil
	}

	dims := len(baseline[0].Features)
	if err := checkDims(baseline, dims); err != nil {
		return err
	}
	if err := checkDims(target, dims); err != nil {
		return err
	}

	min := make([]float64, dims)
	max := make([]float64, dims)
	copy(min, baseline[0].Features)
	copy(max, baseline[0].Features)
	for _, r := range baseline[1:] {
		for j, v := range r.Features {
			if v < min[j] {
				min[j] = v
			}
			if v > max[j] {
				max[j] = v
			}
		}
	}

	scale := func(rows []models.FeatureRow) {
		for _, r := range rows {
			for j := range r.Features {
				denom := max[j] - min[j]
				if denom < degenerateRange {
					r.Features[j] = 0
					continue
				}
				r.Features[j] = (r.Features[j] - min[j]) / denom
			}
		}
	}
	scale(baseline)
	scale(target)
	return nil
}

func checkDims(rows []models.FeatureRow, dims int) error {
	for _, r := range rows {
		if len(r.Features) != dims {
			return ErrDimensionMismatch
		}
	}
	return nil
}

// MeanVector computes the per-dimension mean of a row set. It is computed
// from raw (pre-normalization) rows and used only for explanation, never for
// training. Returns nil for an empty or mismatched set.
func MeanVector(rows []models.FeatureRow) []float64 {
	if len(rows) == 0 {
		return nil
	}
	dims := len(rows[0].Features)
	if checkDims(rows, dims) != nil {
		return nil
	}
	mean := make([]float64, dims)
	for _, r := range rows {
		for j, v := range r.Features {
			mean[j] += v
		}
	}
	for j := range mean {
		mean[j] /= float64(len(rows))
	}
	return mean
}
