// Package eventstore provides access to the event history written by the
// ingestion layer. The pipeline only ever reads; persistence of events is
// owned elsewhere.
package eventstore

import (
	"context"
	"time"

	"github.com/strixlabs/strix-anomaly/internal/models"
)

// Source fetches the ordered event records for a time window.
type Source interface {
	FetchEvents(ctx context.Context, from, to time.Time) ([]models.EventRecord, error)
}
