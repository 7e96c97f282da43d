package features

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// IndicatorTable holds the case-insensitive substring indicators used by the
// hourly feature extractor. The table is versionable and can be loaded from
// YAML so detection content can change without a rebuild.
type IndicatorTable struct {
	Version string `yaml:"version"`

	// LOLBins are living-off-the-land binary names matched against the
	// combined image path and command line of an event.
	LOLBins []string `yaml:"lolbins"`

	// SuspiciousPatterns are matched against the command line (or details
	// text when no command line is present).
	SuspiciousPatterns []string `yaml:"suspicious_patterns"`
}

// DefaultTable returns the built-in indicator table.
func DefaultTable() IndicatorTable {
	return IndicatorTable{
		Version: "builtin",
		LOLBins: []string{
			"powershell", "pwsh", "rundll32", "regsvr32", "mshta",
			"certutil", "bitsadmin", "schtasks", "wmic",
		},
		SuspiciousPatterns: []string{
			"encodedcommand", "frombase64string", "downloadstring",
			"executionpolicy bypass", " -w hidden", "http://", "https://",
			"--strix-demo",
		},
	}
}

// LoadTable reads an indicator table from a YAML file. Missing sections fall
// back to the built-in defaults so a partial table stays usable.
func LoadTable(path string) (IndicatorTable, error) {
	table := DefaultTable()

	data, err := os.ReadFile(path)
	if err != nil {
		return table, fmt.Errorf("read indicator table: %w", err)
	}
	if err := yaml.Unmarshal(data, &table); err != nil {
		return DefaultTable(), fmt.Errorf("parse indicator table: %w", err)
	}

	if len(table.LOLBins) == 0 {
		table.LOLBins = DefaultTable().LOLBins
	}
	if len(table.SuspiciousPatterns) == 0 {
		table.SuspiciousPatterns = DefaultTable().SuspiciousPatterns
	}
	return table, nil
}

// ContainsAny reports whether haystack contains any of the needles,
// case-insensitively. Empty or blank haystacks never match.
func ContainsAny(haystack string, needles []string) bool {
	if strings.TrimSpace(haystack) == "" {
		return false
	}
	lower := strings.ToLower(haystack)
	for _, n := range needles {
		if n == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(n)) {
			return true
		}
	}
	return false
}
