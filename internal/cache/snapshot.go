package cache

import (
	"sync/atomic"
	"time"

	"github.com/strixlabs/strix-anomaly/internal/models"
)

// Snapshot is the complete output of one scoring run. A published snapshot is
// never mutated; Publish always installs a fresh one, so readers holding an
// old pointer keep a consistent view.
type Snapshot struct {
	Results      []models.AnomalyResult       `json:"results"`
	Rows         map[string]models.FeatureRow `json:"rows"`
	BaselineMean []float64                    `json:"baseline_mean"`
	UpdatedAt    time.Time                    `json:"updated_at"`
}

// Store holds the most recent snapshot for the process. The four fields of a
// run replace each other as one unit via a single pointer swap; concurrent
// readers observe either the previous complete snapshot or the new one, never
// a mix.
type Store struct {
	current atomic.Pointer[Snapshot]
}

// NewStore returns a Store seeded with an empty snapshot so readers never see
// nil before the first run.
func NewStore() *Store {
	s := &Store{}
	s.current.Store(&Snapshot{
		Rows: map[string]models.FeatureRow{},
	})
	return s
}

// Publish installs the outputs of a completed run as the latest snapshot,
// stamped with the current UTC time.
func (s *Store) Publish(results []models.AnomalyResult, rows map[string]models.FeatureRow, baselineMean []float64) *Snapshot {
	if rows == nil {
		rows = map[string]models.FeatureRow{}
	}
	snap := &Snapshot{
		Results:      results,
		Rows:         rows,
		BaselineMean: baselineMean,
		UpdatedAt:    time.Now().UTC(),
	}
	s.current.Store(snap)
	return snap
}

// Latest returns the most recently published snapshot.
func (s *Store) Latest() *Snapshot {
	return s.current.Load()
}
