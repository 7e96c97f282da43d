package features

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/strixlabs/strix-anomaly/internal/models"
)

// Vector dimensionality per aggregation mode. Every row produced by one
// builder call shares the mode's dimensionality.
const (
	WindowDims = 6
	HourlyDims = 12
)

// Windows Security event IDs and Sysmon event IDs the hourly extractor counts.
const (
	EventIDFailedLogon    = 4625
	EventIDProcessCreate  = 1
	EventIDNetworkConnect = 3
	EventIDFileCreate     = 11
)

// Event channels recognized by the extractors.
const (
	ChannelSecurity = "Security"
	ChannelSysmon   = "Sysmon"
)

// DefaultLookback bounds the hourly aggregation window.
const DefaultLookback = 24 * time.Hour

// Builder turns ordered event sequences into per-entity feature rows.
// The zero value is not usable; construct with NewBuilder.
type Builder struct {
	table    IndicatorTable
	lookback time.Duration
	now      func() time.Time
}

// Option configures a Builder.
type Option func(*Builder)

// WithLookback overrides the hourly-mode lookback window.
func WithLookback(d time.Duration) Option {
	return func(b *Builder) {
		if d > 0 {
			b.lookback = d
		}
	}
}

// WithClock overrides the time source, used by tests for fixed windows.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBuilder constructs a Builder using the given indicator table.
func NewBuilder(table IndicatorTable, opts ...Option) *Builder {
	b := &Builder{
		table:    table,
		lookback: DefaultLookback,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BuildPerUser aggregates the whole window into one 6-dimensional row per
// user. Events without an identifiable user are dropped. Rows come back
// sorted by key so repeated runs over the same input are identical.
//
// Layout: total events, failed-text events, errors/failures, warnings,
// distinct processes, distinct sources.
func (b *Builder) BuildPerUser(events []models.EventRecord) []models.FeatureRow {
	groups := make(map[string][]models.EventRecord)
	for _, e := range events {
		user := strings.TrimSpace(e.User)
		if user == "" {
			continue
		}
		groups[user] = append(groups[user], e)
	}

	rows := make([]models.FeatureRow, 0, len(groups))
	for user, evs := range groups {
		var failed, errors, warnings float64
		procs := make(map[string]struct{})
		sources := make(map[string]struct{})

		for _, e := range evs {
			if strings.Contains(strings.ToLower(e.Details), "failed") {
				failed++
			}
			if isErrorSeverity(e.Severity) {
				errors++
			}
			if strings.EqualFold(e.Severity, "Warning") {
				warnings++
			}
			if p := strings.TrimSpace(e.Process); p != "" {
				procs[p] = struct{}{}
			}
			if s := strings.TrimSpace(e.Source); s != "" {
				sources[s] = struct{}{}
			}
		}

		rows = append(rows, models.FeatureRow{
			Key: user,
			Features: []float64{
				float64(len(evs)),
				failed,
				errors,
				warnings,
				float64(len(procs)),
				float64(len(sources)),
			},
		})
	}

	sortRows(rows)
	return rows
}

// BuildPerUserHourly aggregates events into 12-dimensional rows keyed by
// (user, hour bucket). Events whose timestamp fails to parse or falls before
// now minus the lookback window are discarded; a non-positive lookback uses
// the builder default. Unlike whole-window mode,
// events without a user are kept under the "Unknown" entity so bursts from
// unattributed activity still surface.
//
// Layout: total, failed logons, errors/failures, warnings, distinct
// processes, distinct sources, process creates, network connections, LOLBin
// executions, suspicious command lines, Security 4625, file creates. The
// failed-logon condition is counted at two indices on purpose; downstream
// consumers depend on the layout.
func (b *Builder) BuildPerUserHourly(events []models.EventRecord, lookback time.Duration) []models.FeatureRow {
	if lookback <= 0 {
		lookback = b.lookback
	}
	cutoff := b.now().Add(-lookback)

	type bucketKey struct {
		user   string
		bucket time.Time
	}
	groups := make(map[bucketKey][]models.EventRecord)

	for _, e := range events {
		ts, ok := parseEventTime(e.Time)
		if !ok || ts.Before(cutoff) {
			continue
		}
		user := strings.TrimSpace(e.User)
		if user == "" {
			user = "Unknown"
		}
		k := bucketKey{user: user, bucket: ts.Truncate(time.Hour)}
		groups[k] = append(groups[k], e)
	}

	rows := make([]models.FeatureRow, 0, len(groups))
	for k, evs := range groups {
		var failedLogons, errors, warnings float64
		var procCreates, netConnects, fileCreates float64
		var lolbins, suspicious float64
		procs := make(map[string]struct{})
		sources := make(map[string]struct{})

		for _, e := range evs {
			if strings.EqualFold(e.Channel, ChannelSecurity) && e.EventID == EventIDFailedLogon {
				failedLogons++
			}
			if isErrorSeverity(e.Severity) {
				errors++
			}
			if strings.EqualFold(e.Severity, "Warning") {
				warnings++
			}
			if p := strings.TrimSpace(e.Process); p != "" {
				procs[p] = struct{}{}
			}
			if s := strings.TrimSpace(e.Source); s != "" {
				sources[s] = struct{}{}
			}
			if strings.EqualFold(e.Channel, ChannelSysmon) {
				switch e.EventID {
				case EventIDProcessCreate:
					procCreates++
				case EventIDNetworkConnect:
					netConnects++
				case EventIDFileCreate:
					fileCreates++
				}
			}
			if ContainsAny(imageText(e)+" "+commandText(e), b.table.LOLBins) {
				lolbins++
			}
			if ContainsAny(commandText(e), b.table.SuspiciousPatterns) {
				suspicious++
			}
		}

		rows = append(rows, models.FeatureRow{
			Key: HourlyKey(k.user, k.bucket),
			Features: []float64{
				float64(len(evs)),
				failedLogons,
				errors,
				warnings,
				float64(len(procs)),
				float64(len(sources)),
				procCreates,
				netConnects,
				lolbins,
				suspicious,
				failedLogons,
				fileCreates,
			},
		})
	}

	sortRows(rows)
	return rows
}

// HourlyKey formats the entity key for one (user, hour bucket) row.
func HourlyKey(user string, bucket time.Time) string {
	return fmt.Sprintf("%s | %s:00", user, bucket.Format("01-02 15"))
}

func isErrorSeverity(severity string) bool {
	return strings.EqualFold(severity, "Error") ||
		strings.EqualFold(severity, "Critical") ||
		strings.Contains(strings.ToLower(severity), "failure")
}

// imageText prefers the Sysmon image path, falling back to the provider name.
func imageText(e models.EventRecord) string {
	if e.Image != "" {
		return e.Image
	}
	return e.Process
}

// commandText prefers the Sysmon command line, falling back to details.
func commandText(e models.EventRecord) string {
	if e.CommandLine != "" {
		return e.CommandLine
	}
	return e.Details
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"01/02/2006 15:04:05",
}

func parseEventTime(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func sortRows(rows []models.FeatureRow) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })
}
