package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNoSnapshot is returned by Mirror.Latest when no run has been mirrored yet.
var ErrNoSnapshot = errors.New("no snapshot mirrored")

const defaultMirrorKey = "strix:anomaly:snapshot"

// Mirror copies published snapshots into Redis so sibling dashboard processes
// can read the latest run without talking to this service. The mirror is
// optional; a nil client disables it.
type Mirror struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewMirror creates a snapshot mirror. ttl of zero keeps snapshots until the
// next run overwrites them.
func NewMirror(client *redis.Client, ttl time.Duration) *Mirror {
	return &Mirror{
		client: client,
		key:    defaultMirrorKey,
		ttl:    ttl,
	}
}

// Enabled reports whether the mirror has a backing client.
func (m *Mirror) Enabled() bool {
	return m != nil && m.client != nil
}

// Publish writes the snapshot JSON to Redis. Disabled mirrors are a no-op so
// callers can publish unconditionally.
func (m *Mirror) Publish(ctx context.Context, snap *Snapshot) error {
	if !m.Enabled() || snap == nil {
		return nil
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := m.client.Set(ctx, m.key, data, m.ttl).Err(); err != nil {
		return fmt.Errorf("mirror snapshot: %w", err)
	}
	return nil
}

// Latest reads the last mirrored snapshot back from Redis.
func (m *Mirror) Latest(ctx context.Context) (*Snapshot, error) {
	if !m.Enabled() {
		return nil, ErrNoSnapshot
	}
	data, err := m.client.Get(ctx, m.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("read mirrored snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}
