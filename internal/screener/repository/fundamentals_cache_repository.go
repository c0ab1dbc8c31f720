package repository

import (
	"context"
	"time"

	"stock-opportunity-engine/internal/entity"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FundamentalsCacheRepository defines the age-bounded fundamentals store.
type FundamentalsCacheRepository interface {
	Get(ctx context.Context, symbols []string, maxAgeDays int) (map[string]entity.StockFundamentalsCache, error)
	Upsert(ctx context.Context, entries []entity.StockFundamentalsCache) error
}

// NewFundamentalsCacheRepository creates a new GORM-based fundamentals cache repository.
func NewFundamentalsCacheRepository(db *gorm.DB) FundamentalsCacheRepository {
	return &fundamentalsCacheRepository{db: db}
}

type fundamentalsCacheRepository struct {
	db *gorm.DB
}

// Get returns cached entries for the given symbols whose fetched_at falls
// within maxAgeDays of now. Rows with a missing timestamp are treated as
// stale and omitted, forcing a refetch. The SQL predicate pre-filters; the
// in-process pass owns the window semantics.
func (r *fundamentalsCacheRepository) Get(ctx context.Context, symbols []string, maxAgeDays int) (map[string]entity.StockFundamentalsCache, error) {
	if len(symbols) == 0 {
		return map[string]entity.StockFundamentalsCache{}, nil
	}

	now := time.Now().UTC()

	var rows []entity.StockFundamentalsCache
	err := r.db.WithContext(ctx).
		Where("symbol IN ?", symbols).
		Where("fetched_at IS NOT NULL AND fetched_at >= ?", freshnessCutoff(now, maxAgeDays)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	return freshEntries(rows, now, maxAgeDays), nil
}

// freshnessCutoff is the oldest fetched_at still considered fresh.
func freshnessCutoff(now time.Time, maxAgeDays int) time.Time {
	return now.AddDate(0, 0, -maxAgeDays)
}

// freshEntries keys entries by symbol, dropping any that are older than the
// freshness window or carry no fetch timestamp at all.
func freshEntries(rows []entity.StockFundamentalsCache, now time.Time, maxAgeDays int) map[string]entity.StockFundamentalsCache {
	cutoff := freshnessCutoff(now, maxAgeDays)
	result := make(map[string]entity.StockFundamentalsCache, len(rows))
	for _, row := range rows {
		if row.FetchedAt.IsZero() || row.FetchedAt.Before(cutoff) {
			continue
		}
		result[row.Symbol] = row
	}
	return result
}

// Upsert inserts or replaces entries keyed by symbol, refreshing fetched_at
// on every write.
func (r *fundamentalsCacheRepository) Upsert(ctx context.Context, entries []entity.StockFundamentalsCache) error {
	if len(entries) == 0 {
		return nil
	}

	now := time.Now().UTC()
	for i := range entries {
		entries[i].FetchedAt = now
		if entries[i].Metrics == nil {
			entries[i].Metrics = []byte("{}")
		}
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}},
		UpdateAll: true,
	}).Create(&entries).Error
}
