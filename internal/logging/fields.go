package logging

import "log/slog"

// Common field names for consistent logging across the service.
const (
	FieldComponent = "component"
	FieldEntityKey = "entity_key"
	FieldRunID     = "run_id"
	FieldDuration  = "duration_ms"
	FieldError     = "error"
	FieldThreshold = "threshold"
)

// Component returns a slog attribute for the emitting component.
func Component(name string) slog.Attr {
	return slog.String(FieldComponent, name)
}

// EntityKey returns a slog attribute for the scored entity.
func EntityKey(key string) slog.Attr {
	return slog.String(FieldEntityKey, key)
}

// RunID returns a slog attribute for the pipeline run identifier.
func RunID(id string) slog.Attr {
	return slog.String(FieldRunID, id)
}

// Duration returns a slog attribute for duration in milliseconds.
func Duration(ms int64) slog.Attr {
	return slog.Int64(FieldDuration, ms)
}

// Err returns a slog attribute for an error value.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}

// Threshold returns a slog attribute for the active anomaly threshold.
func Threshold(v float64) slog.Attr {
	return slog.Float64(FieldThreshold, v)
}
