package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"stock-opportunity-engine/internal/entity"
	"stock-opportunity-engine/internal/screener/progress"
	"stock-opportunity-engine/internal/screener/provider"
	"stock-opportunity-engine/internal/screener/repository"
	"stock-opportunity-engine/internal/screener/rules"
	"stock-opportunity-engine/pkg/logger"
	"stock-opportunity-engine/pkg/telegram"
)

// ErrScanInProgress is returned when a scan trigger arrives while another
// scan is still running. The shared progress tracker supports one active
// scan at a time.
var ErrScanInProgress = errors.New("a scan is already in progress")

// ScanResult is the outcome of one completed scan.
type ScanResult struct {
	Run             *entity.Run             `json:"run"`
	Recommendations []entity.Recommendation `json:"recommendations"`
	Summary         entity.RunSummary       `json:"summary"`
}

// PipelineService orchestrates one scan: rules, provider, filters, scoring,
// persistence, and progress reporting.
type PipelineService interface {
	RunScan(ctx context.Context, runType string) (*ScanResult, error)
}

// ProviderFactory builds a data provider for the rules in effect this run.
type ProviderFactory func(r *rules.Rules) provider.DataProvider

// NewPipelineService creates a new pipeline service.
func NewPipelineService(
	rulesRepo rules.Repository,
	runRepo repository.RunRepository,
	recRepo repository.RecommendationRepository,
	providerFactory ProviderFactory,
	tracker progress.Tracker,
	notifier telegram.Notifier,
	log *logger.Logger,
) PipelineService {
	return &pipelineService{
		rulesRepo:       rulesRepo,
		runRepo:         runRepo,
		recRepo:         recRepo,
		providerFactory: providerFactory,
		tracker:         tracker,
		notifier:        notifier,
		logger:          log,
	}
}

type pipelineService struct {
	rulesRepo       rules.Repository
	runRepo         repository.RunRepository
	recRepo         repository.RecommendationRepository
	providerFactory ProviderFactory
	tracker         progress.Tracker
	notifier        telegram.Notifier
	logger          *logger.Logger

	mu       sync.Mutex
	scanning bool
}

// RunScan executes one synchronous scan. The run row is created with status
// running before any provider call, so every attempt leaves a record. Any
// failure after that point marks the run failed and is returned to the
// caller; background invokers must install their own error boundary.
func (s *pipelineService) RunScan(ctx context.Context, runType string) (*ScanResult, error) {
	if !s.tryAcquire() {
		return nil, ErrScanInProgress
	}
	defer s.release()

	r, err := s.rulesRepo.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	dataProvider := s.providerFactory(r)

	runID, err := s.runRepo.Create(ctx, runType, r)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	s.logger.Info("Scan started", logger.Field("run_id", runID), logger.StringField("run_type", runType))

	result, err := s.execute(ctx, runID, runType, r, dataProvider)
	if err != nil {
		if failErr := s.runRepo.Fail(ctx, runID, err.Error()); failErr != nil {
			s.logger.Error("Failed to mark run as failed", logger.ErrorField(failErr), logger.Field("run_id", runID))
		}
		s.tracker.FinishScan(fmt.Sprintf("Scan failed: %v", err))
		s.notify(fmt.Sprintf("❌ Scan `%s` failed: %v", runType, err))
		return nil, err
	}
	return result, nil
}

func (s *pipelineService) execute(ctx context.Context, runID int64, runType string, r *rules.Rules, dataProvider provider.DataProvider) (*ScanResult, error) {
	s.tracker.UpdateScan("fetching_data", 0, "", "Loading stock data...")
	stocks, err := dataProvider.GetStockSnapshots(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch stock snapshots: %w", err)
	}

	s.tracker.UpdateScan("fetching_events", 0, "", "Fetching corporate events...")
	events, err := dataProvider.GetRecentEvents(ctx, r.DataProvider.EventsLookbackDays)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch recent events: %w", err)
	}

	s.tracker.UpdateScan("scoring", 0, "", "Applying filters and scoring...")
	universe := applyUniverseFilters(stocks, r.Universe)
	passed := applyQualityFilters(universe, r.Filters)

	scored := NewScoreEngine(r).Score(passed, events)

	maxN := r.UI.MaxRecommendationsPerRun
	if maxN > len(scored) {
		maxN = len(scored)
	}
	top := scored[:maxN]

	if err := s.recRepo.BulkInsert(ctx, runID, top); err != nil {
		return nil, fmt.Errorf("failed to insert recommendations: %w", err)
	}

	summary := entity.RunSummary{
		RunID:            runID,
		RunType:          runType,
		UniverseSize:     len(stocks),
		EligibleUniverse: len(universe),
		PassedFilters:    len(passed),
		RecommendedCount: len(top),
	}
	if err := s.runRepo.Complete(ctx, runID, summary); err != nil {
		return nil, fmt.Errorf("failed to complete run: %w", err)
	}

	s.tracker.FinishScan(fmt.Sprintf("Done — %d recommendations from %d stocks", len(top), len(stocks)))
	s.logger.Info("Scan completed",
		logger.Field("run_id", runID),
		logger.IntField("universe_size", len(stocks)),
		logger.IntField("passed_filters", len(passed)),
		logger.IntField("recommended", len(top)))
	s.notify(fmt.Sprintf("✅ Scan `%s` completed: %d recommendations from %d stocks", runType, len(top), len(stocks)))

	run, err := s.runRepo.FindByID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to read back run: %w", err)
	}
	recs, err := s.recRepo.FindByRunID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to read back recommendations: %w", err)
	}

	return &ScanResult{Run: run, Recommendations: recs, Summary: summary}, nil
}

func (s *pipelineService) notify(text string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendMessage(text); err != nil {
		s.logger.Warn("Failed to send notification", logger.ErrorField(err))
	}
}

func (s *pipelineService) tryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scanning {
		return false
	}
	s.scanning = true
	return true
}

func (s *pipelineService) release() {
	s.mu.Lock()
	s.scanning = false
	s.mu.Unlock()
}
