package threats

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/strixlabs/strix-anomaly/internal/models"
)

// Fixed tags marking records that originate from the anomaly model rather
// than a rule-based detection.
const (
	SourceML   = "ML"
	Technique  = "ML"
	ThreatName = "ML: Unusual activity"
	Tactic     = "Anomaly Detection"
)

// highSeverityScore is the single severity boundary: at or above is High.
const highSeverityScore = 0.8

// maxReasons bounds the feature-deviation lines per explanation.
const maxReasons = 3

const fallbackReason = "No strong feature deviation from baseline (score-based anomaly)."

// featureNames is the human-readable name per hourly feature index. The first
// six entries also describe the whole-window layout.
var featureNames = []string{
	"Total events", "Failed logons", "Errors/Failures", "Warnings",
	"Unique processes", "Unique sources",
	"Sysmon Proc Create (EID 1)", "Sysmon Network (EID 3)",
	"LOLBin executions", "Suspicious command lines",
	"Security 4625", "Sysmon File Create (EID 11)",
}

// Build converts flagged anomalies into threat records for the presentation
// layer. rows maps entity keys to the feature rows that produced the scores,
// and baselineMean is the raw baseline centroid; both are used only to rank
// feature deviations for the explanation text. Results that are not flagged
// produce nothing. Missing rows or a mean of mismatched dimensionality fall
// back to a generic explanation, never a dropped record.
func Build(scored []models.AnomalyResult, rows map[string]models.FeatureRow, baselineMean []float64, now time.Time) []models.ThreatRecord {
	out := make([]models.ThreatRecord, 0)

	for _, a := range scored {
		if !a.IsAnomaly {
			continue
		}

		severity := models.SeverityMedium
		if a.Score >= highSeverityScore {
			severity = models.SeverityHigh
		}

		details := fmt.Sprintf("ML anomaly score: %.3f\n", a.Score)
		row, ok := rows[a.Key]
		if ok && len(baselineMean) == len(row.Features) {
			reasons := Reasons(row.Features, baselineMean)
			details += "\nReasons:\n- " + strings.Join(reasons, "\n- ")
		} else {
			details += "\nReasons: (no feature breakdown available)"
		}

		out = append(out, models.ThreatRecord{
			ID:        uuid.NewString(),
			Time:      now,
			EntityKey: a.Key,
			Source:    SourceML,
			Technique: Technique,
			Name:      ThreatName,
			Tactic:    Tactic,
			Severity:  severity,
			Details:   details,
		})
	}

	return out
}

// Reasons ranks per-dimension deviations of a row against the baseline mean
// and renders up to three lines for the dimensions most above baseline.
// Dimensions at or below their baseline mean never appear. When nothing is
// above baseline the fixed fallback sentence is returned alone.
func Reasons(features, mean []float64) []string {
	type deviation struct {
		index int
		delta float64
		value float64
	}

	devs := make([]deviation, 0, len(features))
	for i, v := range features {
		devs = append(devs, deviation{index: i, delta: v - mean[i], value: v})
	}
	sort.SliceStable(devs, func(i, j int) bool { return devs[i].delta > devs[j].delta })

	reasons := make([]string, 0, maxReasons)
	for _, d := range devs {
		if len(reasons) == maxReasons {
			break
		}
		if d.delta <= 0 {
			break
		}
		reasons = append(reasons, fmt.Sprintf("%s is higher than baseline (value %s).",
			featureName(d.index), formatValue(d.value)))
	}

	if len(reasons) == 0 {
		reasons = append(reasons, fallbackReason)
	}
	return reasons
}

func featureName(i int) string {
	if i >= 0 && i < len(featureNames) {
		return featureNames[i]
	}
	return fmt.Sprintf("Feature %d", i)
}

// formatValue renders with up to three decimal places, trailing zeros trimmed.
func formatValue(v float64) string {
	return strconv.FormatFloat(math.Round(v*1000)/1000, 'f', -1, 64)
}
