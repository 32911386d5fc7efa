package repositories

import (
	"context"

	"github.com/anonto42/nano-midea/engine/internal/models"
	"gorm.io/gorm"
)

// FailureJournal defines the interface for recording swallowed fan-out failures
type FailureJournal interface {
	Record(ctx context.Context, failure *models.FanoutFailure) error
	Recent(ctx context.Context, limit int) ([]models.FanoutFailure, error)
}

// PostgresFailureJournal implements FailureJournal for PostgreSQL
type PostgresFailureJournal struct {
	db *gorm.DB
}

// NewPostgresFailureJournal creates a new PostgresFailureJournal
func NewPostgresFailureJournal(db *gorm.DB) *PostgresFailureJournal {
	return &PostgresFailureJournal{db: db}
}

// Migrate creates or updates the journal table
func (r *PostgresFailureJournal) Migrate() error {
	return r.db.AutoMigrate(&models.FanoutFailure{})
}

func (r *PostgresFailureJournal) Record(ctx context.Context, failure *models.FanoutFailure) error {
	return r.db.WithContext(ctx).Create(failure).Error
}

// Recent returns the newest journal rows first
func (r *PostgresFailureJournal) Recent(ctx context.Context, limit int) ([]models.FanoutFailure, error) {
	var rows []models.FanoutFailure
	err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}
