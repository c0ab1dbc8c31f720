package provider

import (
	"context"

	"stock-opportunity-engine/internal/entity"
	"stock-opportunity-engine/internal/screener/progress"
	"stock-opportunity-engine/internal/screener/repository"
	"stock-opportunity-engine/internal/screener/rules"
	"stock-opportunity-engine/pkg/logger"
)

// DataProvider is the capability the pipeline consumes: stock snapshots and
// recent corporate events. Implementations may perform network I/O; a
// single bad symbol degrades to a skip, never a batch failure.
type DataProvider interface {
	GetStockSnapshots(ctx context.Context) ([]entity.StockSnapshot, error)
	GetRecentEvents(ctx context.Context, lookbackDays int) ([]entity.StockEvent, error)
}

// Deps carries the collaborators live providers need.
type Deps struct {
	CacheRepo repository.FundamentalsCacheRepository
	Tracker   progress.Tracker
	Logger    *logger.Logger
}

// Build returns the provider selected by the rules file. Unknown types fall
// back to the mock provider.
func Build(r *rules.Rules, deps Deps) DataProvider {
	switch r.DataProvider.Type {
	case "india_live":
		return NewLiveProvider(r.DataProvider, deps)
	default:
		return NewMockProvider("data/sample_stocks.csv", "data/sample_events.csv")
	}
}
