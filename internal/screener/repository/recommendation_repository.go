package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"stock-opportunity-engine/internal/entity"

	"gorm.io/gorm"
)

// RecommendationRepository defines the interface for recommendation data operations.
type RecommendationRepository interface {
	BulkInsert(ctx context.Context, runID int64, ranked []entity.ScoredStock) error
	FindByRunID(ctx context.Context, runID int64) ([]entity.Recommendation, error)
}

// NewRecommendationRepository creates a new GORM-based recommendation repository.
func NewRecommendationRepository(db *gorm.DB) RecommendationRepository {
	return &recommendationRepository{db: db}
}

type recommendationRepository struct {
	db *gorm.DB
}

// BulkInsert persists the ranked scored stocks for a run. Rank is 1-based
// and follows the slice order.
func (r *recommendationRepository) BulkInsert(ctx context.Context, runID int64, ranked []entity.ScoredStock) error {
	if len(ranked) == 0 {
		return nil
	}

	rows := make([]entity.Recommendation, 0, len(ranked))
	for i, s := range ranked {
		breakdown, err := json.Marshal(s.ScoreBreakdown)
		if err != nil {
			return fmt.Errorf("failed to marshal score breakdown for %s: %w", s.Symbol, err)
		}
		reasons, err := json.Marshal(s.Reasons)
		if err != nil {
			return fmt.Errorf("failed to marshal reasons for %s: %w", s.Symbol, err)
		}
		metrics := s.Metrics
		if metrics == nil {
			metrics = map[string]float64{}
		}
		metricsJSON, err := json.Marshal(metrics)
		if err != nil {
			return fmt.Errorf("failed to marshal metrics for %s: %w", s.Symbol, err)
		}

		rows = append(rows, entity.Recommendation{
			RunID:          runID,
			Rank:           i + 1,
			Symbol:         s.Symbol,
			Name:           s.Name,
			Exchange:       s.Exchange,
			Sector:         s.Sector,
			MarketCapCr:    s.MarketCapCr,
			PE:             s.PE,
			FinalScore:     s.FinalScore,
			ScoreBreakdown: breakdown,
			Reasons:        reasons,
			EventCount:     s.EventCount,
			Metrics:        metricsJSON,
		})
	}

	return r.db.WithContext(ctx).Create(&rows).Error
}

// FindByRunID retrieves the recommendations of a run ordered by rank.
func (r *recommendationRepository) FindByRunID(ctx context.Context, runID int64) ([]entity.Recommendation, error) {
	var rows []entity.Recommendation
	err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("rank ASC, final_score DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
