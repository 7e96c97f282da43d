// Package natsbus publishes pipeline outcomes to NATS so sibling services
// (alerting, dashboards) can react without polling the read API.
package natsbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/strixlabs/strix-anomaly/internal/models"
)

// Subjects for pipeline announcements.
const (
	SubjectRunCompleted = "strix.anomaly.run.completed"
	SubjectThreats      = "strix.anomaly.threats"
)

// RunSummary is published after every completed scoring run.
type RunSummary struct {
	RunID        string    `json:"run_id"`
	BaselineRows int       `json:"baseline_rows"`
	TargetRows   int       `json:"target_rows"`
	Flagged      int       `json:"flagged"`
	Threshold    float64   `json:"threshold"`
	CompletedAt  time.Time `json:"completed_at"`
}

// Config holds NATS connection settings.
type Config struct {
	URL           string
	Name          string
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Name:          "strix-anomaly",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// Publisher is a thin NATS publisher for pipeline announcements. A nil
// Publisher is valid and drops everything, so wiring stays unconditional.
type Publisher struct {
	conn *nats.Conn
}

// Connect establishes the NATS connection.
func Connect(cfg Config) (*Publisher, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &Publisher{conn: conn}, nil
}

// PublishRun announces a completed scoring run.
func (p *Publisher) PublishRun(ctx context.Context, summary RunSummary) error {
	return p.publish(ctx, SubjectRunCompleted, summary)
}

// PublishThreats publishes the flagged threat records of a run.
func (p *Publisher) PublishThreats(ctx context.Context, threats []models.ThreatRecord) error {
	if len(threats) == 0 {
		return nil
	}
	return p.publish(ctx, SubjectThreats, threats)
}

func (p *Publisher) publish(ctx context.Context, subject string, payload interface{}) error {
	if p == nil || p.conn == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", subject, err)
	}
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Close drains the connection, letting in-flight messages finish.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	_ = p.conn.Drain()
}
