package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"stock-opportunity-engine/internal/entity"
	"stock-opportunity-engine/internal/screener/rules"

	"gorm.io/gorm"
)

// RunRepository defines the interface for scan run data operations.
type RunRepository interface {
	Create(ctx context.Context, runType string, rulesSnapshot *rules.Rules) (int64, error)
	Complete(ctx context.Context, runID int64, summary entity.RunSummary) error
	Fail(ctx context.Context, runID int64, errorText string) error
	FindByID(ctx context.Context, runID int64) (*entity.Run, error)
	FindLatest(ctx context.Context) (*entity.Run, error)
	FindAll(ctx context.Context, limit int) ([]entity.Run, error)
}

// NewRunRepository creates a new GORM-based run repository.
func NewRunRepository(db *gorm.DB) RunRepository {
	return &runRepository{db: db}
}

type runRepository struct {
	db *gorm.DB
}

// Create inserts a run row with status running before any provider work
// starts, so every attempt is recorded even when the provider fails.
func (r *runRepository) Create(ctx context.Context, runType string, rulesSnapshot *rules.Rules) (int64, error) {
	snapshot, err := json.Marshal(rulesSnapshot)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal rules snapshot: %w", err)
	}

	run := entity.Run{
		RunType:       runType,
		StartedAt:     time.Now().UTC(),
		Status:        entity.RunStatusRunning,
		RulesSnapshot: snapshot,
	}
	if err := r.db.WithContext(ctx).Create(&run).Error; err != nil {
		return 0, err
	}
	return run.ID, nil
}

// Complete marks a run completed and stores its summary counts.
func (r *runRepository) Complete(ctx context.Context, runID int64, summary entity.RunSummary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal run summary: %w", err)
	}
	return r.db.WithContext(ctx).Model(&entity.Run{}).Where("id = ?", runID).Updates(map[string]interface{}{
		"status":       entity.RunStatusCompleted,
		"completed_at": time.Now().UTC(),
		"summary":      payload,
	}).Error
}

// Fail marks a run failed with the captured error text.
func (r *runRepository) Fail(ctx context.Context, runID int64, errorText string) error {
	return r.db.WithContext(ctx).Model(&entity.Run{}).Where("id = ?", runID).Updates(map[string]interface{}{
		"status":       entity.RunStatusFailed,
		"completed_at": time.Now().UTC(),
		"error_text":   sql.NullString{String: errorText, Valid: true},
	}).Error
}

// FindByID retrieves a run by its ID.
func (r *runRepository) FindByID(ctx context.Context, runID int64) (*entity.Run, error) {
	var run entity.Run
	if err := r.db.WithContext(ctx).First(&run, runID).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// FindLatest retrieves the most recently started run, if any.
func (r *runRepository) FindLatest(ctx context.Context) (*entity.Run, error) {
	var run entity.Run
	err := r.db.WithContext(ctx).Order("id DESC").First(&run).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}

// FindAll retrieves recent runs, newest first.
func (r *runRepository) FindAll(ctx context.Context, limit int) ([]entity.Run, error) {
	var runs []entity.Run
	if err := r.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}
