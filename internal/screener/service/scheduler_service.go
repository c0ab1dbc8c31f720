package service

import (
	"context"
	"sync"
	"time"

	"stock-opportunity-engine/internal/screener/rules"
	"stock-opportunity-engine/pkg/common"
	"stock-opportunity-engine/pkg/logger"

	"github.com/robfig/cron/v3"
)

// SchedulerService triggers scheduled scans from the cron expressions in
// the rules file. Rules are reloaded on every poll so edits take effect
// without a restart.
type SchedulerService interface {
	Start(ctx context.Context)
	ProcessSchedules(ctx context.Context)
}

// NewSchedulerService creates a new scheduler service.
func NewSchedulerService(rulesRepo rules.Repository, publisher ScanPublisher, log *logger.Logger, pollingInterval time.Duration) SchedulerService {
	return &schedulerService{
		rulesRepo:       rulesRepo,
		publisher:       publisher,
		logger:          log,
		pollingInterval: pollingInterval,
		cronParser:      cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		nextExecution:   make(map[string]time.Time),
	}
}

type schedulerService struct {
	rulesRepo       rules.Repository
	publisher       ScanPublisher
	logger          *logger.Logger
	pollingInterval time.Duration
	cronParser      cron.Parser

	mu            sync.Mutex
	nextExecution map[string]time.Time
}

// Start begins the periodic schedule processing loop.
func (s *schedulerService) Start(ctx context.Context) {
	ticker := time.NewTicker(s.pollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler service stopping")
			return
		case <-ticker.C:
			s.ProcessSchedules(ctx)
		}
	}
}

// ProcessSchedules publishes a scan task for every schedule that is due.
func (s *schedulerService) ProcessSchedules(ctx context.Context) {
	r, err := s.rulesRepo.Load()
	if err != nil {
		s.logger.Error("Failed to load rules for scheduling", logger.ErrorField(err))
		return
	}

	loc, err := time.LoadLocation(r.Schedules.Timezone)
	if err != nil {
		s.logger.Error("Invalid schedule timezone", logger.ErrorField(err),
			logger.StringField("timezone", r.Schedules.Timezone))
		return
	}

	s.processSchedule(ctx, common.RunTypeScheduledFullScan, r.Schedules.FullScanCron, loc)
	s.processSchedule(ctx, common.RunTypeScheduledEvtScan, r.Schedules.EventScanCron, loc)
}

func (s *schedulerService) processSchedule(ctx context.Context, runType, cronExpr string, loc *time.Location) {
	schedule, err := s.cronParser.Parse(cronExpr)
	if err != nil {
		s.logger.Error("Failed to parse cron expression", logger.ErrorField(err),
			logger.StringField("run_type", runType), logger.StringField("cron", cronExpr))
		return
	}

	now := time.Now().In(loc)

	s.mu.Lock()
	next, primed := s.nextExecution[runType]
	if !primed {
		// First sighting of this schedule: arm it without firing.
		s.nextExecution[runType] = schedule.Next(now)
		s.mu.Unlock()
		return
	}
	if now.Before(next) {
		s.mu.Unlock()
		return
	}
	s.nextExecution[runType] = schedule.Next(now)
	s.mu.Unlock()

	if err := s.publisher.Publish(ctx, runType); err != nil {
		s.logger.Error("Failed to publish scheduled scan", logger.ErrorField(err),
			logger.StringField("run_type", runType))
		return
	}
	s.logger.Info("Scheduled scan published", logger.StringField("run_type", runType),
		logger.Field("next_execution", s.peekNext(runType)))
}

func (s *schedulerService) peekNext(runType string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextExecution[runType]
}
