package repository

import (
	"context"
	"errors"

	"github.com/strixlabs/strix-anomaly/internal/models"
)

// ErrThreatNotFound is returned when a threat record does not exist.
var ErrThreatNotFound = errors.New("threat not found")

// Repository persists threat records produced by the explainer.
type Repository interface {
	SaveThreats(ctx context.Context, threats []models.ThreatRecord) error
	GetThreatByID(ctx context.Context, id string) (*models.ThreatRecord, error)
	ListThreats(ctx context.Context, limit int) ([]models.ThreatRecord, error)
	Close() error
}
