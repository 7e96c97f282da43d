package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/strixlabs/strix-anomaly/internal/models"
)

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a repository backed by a pgx connection pool.
func NewPostgresRepository(ctx context.Context, connString string) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// SaveThreats inserts the threat records of one run in a single transaction.
func (r *PostgresRepository) SaveThreats(ctx context.Context, threats []models.ThreatRecord) error {
	if len(threats) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO threats (id, time, entity_key, source, technique, name, tactic, severity, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	for _, t := range threats {
		if _, err := tx.Exec(ctx, query,
			t.ID, t.Time, t.EntityKey, t.Source, t.Technique,
			t.Name, t.Tactic, t.Severity, t.Details,
		); err != nil {
			return fmt.Errorf("insert threat: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit threats: %w", err)
	}
	return nil
}

// GetThreatByID retrieves one threat record.
func (r *PostgresRepository) GetThreatByID(ctx context.Context, id string) (*models.ThreatRecord, error) {
	query := `
		SELECT id, time, entity_key, source, technique, name, tactic, severity, details
		FROM threats
		WHERE id = $1
	`

	t := &models.ThreatRecord{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&t.ID, &t.Time, &t.EntityKey, &t.Source, &t.Technique,
		&t.Name, &t.Tactic, &t.Severity, &t.Details,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrThreatNotFound
		}
		return nil, fmt.Errorf("get threat: %w", err)
	}
	return t, nil
}

// ListThreats returns the most recent threat records, newest first.
func (r *PostgresRepository) ListThreats(ctx context.Context, limit int) ([]models.ThreatRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, time, entity_key, source, technique, name, tactic, severity, details
		FROM threats
		ORDER BY time DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list threats: %w", err)
	}
	defer rows.Close()

	threats := make([]models.ThreatRecord, 0, limit)
	for rows.Next() {
		var t models.ThreatRecord
		if err := rows.Scan(
			&t.ID, &t.Time, &t.EntityKey, &t.Source, &t.Technique,
			&t.Name, &t.Tactic, &t.Severity, &t.Details,
		); err != nil {
			return nil, fmt.Errorf("scan threat: %w", err)
		}
		threats = append(threats, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate threats: %w", err)
	}
	return threats, nil
}

// Close releases the connection pool.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}
