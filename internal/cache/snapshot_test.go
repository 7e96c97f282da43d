package cache_test

import (
	"sync"
	"testing"
	"time"

	"github.com/strixlabs/strix-anomaly/internal/cache"
	"github.com/strixlabs/strix-anomaly/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreStartsEmpty(t *testing.T) {
	store := cache.NewStore()

	snap := store.Latest()
	require.NotNil(t, snap)
	assert.Empty(t, snap.Results)
	assert.NotNil(t, snap.Rows)
	assert.True(t, snap.UpdatedAt.IsZero())
}

func TestStorePublishReplacesWholeSnapshot(t *testing.T) {
	store := cache.NewStore()

	results := []models.AnomalyResult{{Key: "alice", Score: 1.5, IsAnomaly: true}}
	rows := map[string]models.FeatureRow{
		"alice": {Key: "alice", Features: []float64{50, 6, 6, 6, 9, 9}},
	}
	mean := []float64{10, 0, 0, 0, 2, 1}

	before := time.Now().UTC()
	published := store.Publish(results, rows, mean)
	after := time.Now().UTC()

	snap := store.Latest()
	assert.Same(t, published, snap)
	assert.Equal(t, results, snap.Results)
	assert.Equal(t, rows, snap.Rows)
	assert.Equal(t, mean, snap.BaselineMean)
	assert.False(t, snap.UpdatedAt.Before(before))
	assert.False(t, snap.UpdatedAt.After(after))
}

func TestStorePublishNilRows(t *testing.T) {
	store := cache.NewStore()
	snap := store.Publish(nil, nil, nil)
	assert.NotNil(t, snap.Rows)
}

// Readers racing a writer must always observe a snapshot whose fields belong
// to the same run, never a mix of two runs.
func TestStoreConcurrentReadersSeeConsistentSnapshots(t *testing.T) {
	store := cache.NewStore()

	const writes = 500
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < writes; i++ {
			key := "run"
			results := []models.AnomalyResult{{Key: key, Score: float64(i)}}
			rows := map[string]models.FeatureRow{
				key: {Key: key, Features: []float64{float64(i)}},
			}
			store.Publish(results, rows, []float64{float64(i)})
		}
	}()

	for reader := 0; reader < 4; reader++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < writes; i++ {
				snap := store.Latest()
				if len(snap.Results) == 0 {
					continue
				}
				score := snap.Results[0].Score
				row, ok := snap.Rows[snap.Results[0].Key]
				assert.True(t, ok)
				assert.Equal(t, score, row.Features[0])
				assert.Equal(t, score, snap.BaselineMean[0])
			}
		}()
	}

	wg.Wait()
}
