package models

import "time"

// EventRecord is one observed log event as produced by the ingestion layer.
// Records are immutable once handed to the pipeline.
type EventRecord struct {
	Time     string `json:"time"`
	Channel  string `json:"channel"` // Security/System/Application/Sysmon
	Severity string `json:"severity"`
	User     string `json:"user"`

	Process string `json:"process"` // provider/source executable, not always a process
	Details string `json:"details"`
	Source  string `json:"source"`

	EventID int `json:"event_id"`

	// Sysmon-style extended attributes, optional.
	Image           string `json:"image,omitempty"`
	CommandLine     string `json:"command_line,omitempty"`
	ParentImage     string `json:"parent_image,omitempty"`
	DestinationIP   string `json:"destination_ip,omitempty"`
	DestinationPort string `json:"destination_port,omitempty"`
}

// FeatureRow pairs an entity key with its numeric feature vector.
// The key is a user name in window mode, or "user | MM-DD HH:00" in hourly mode.
type FeatureRow struct {
	Key      string    `json:"key"`
	Features []float64 `json:"features"`
}

// AnomalyResult is the scored outcome for one feature row.
// Score is always finite; non-finite model output is sanitized to zero upstream.
type AnomalyResult struct {
	Key       string  `json:"key"`
	Score     float64 `json:"score"`
	IsAnomaly bool    `json:"is_anomaly"`
}

// ThreatRecord is a structured detection handed to the presentation layer.
type ThreatRecord struct {
	ID        string    `json:"id"`
	Time      time.Time `json:"time"`
	EntityKey string    `json:"entity_key"`
	Source    string    `json:"source"`
	Technique string    `json:"technique"`
	Name      string    `json:"name"`
	Tactic    string    `json:"tactic"`
	Severity  string    `json:"severity"`
	Details   string    `json:"details"`
}

// Severity tiers emitted by the anomaly explainer.
const (
	SeverityHigh   = "High"
	SeverityMedium = "Medium"
)
