package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"duckflow/internal/domain"
)

// Scheduler manages cron-based pipeline execution.
type Scheduler struct {
	cron    *cron.Cron
	svc     *Service
	logger  *slog.Logger
	now     func() time.Time
	mu      sync.Mutex
	entries map[string]cron.EntryID // pipeline name → cron entry
}

// NewScheduler creates a new pipeline scheduler. Schedules are evaluated in UTC.
func NewScheduler(svc *Service, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(time.UTC)),
		svc:     svc,
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]cron.EntryID),
	}
}

// Start loads all scheduled pipelines and starts the cron scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	err := s.loadSchedules(ctx)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("pipeline scheduler started", "pipelines", len(s.Entries()))
	return nil
}

// Stop stops the cron scheduler and waits for running trigger jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("pipeline scheduler stopped")
}

// Reload clears all cron entries and reloads from the service registry.
// Implements the ScheduleReloader interface.
func (s *Scheduler) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Remove all existing entries.
	for _, entryID := range s.entries {
		s.cron.Remove(entryID)
	}
	s.entries = make(map[string]cron.EntryID)

	return s.loadSchedules(ctx)
}

// Entries returns the next fire time of every scheduled pipeline.
func (s *Scheduler) Entries() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]time.Time, len(s.entries))
	for name, id := range s.entries {
		out[name] = s.cron.Entry(id).Next
	}
	return out
}

// loadSchedules adds every unpaused scheduled pipeline to cron.
func (s *Scheduler) loadSchedules(_ context.Context) error {
	for _, def := range s.svc.Pipelines() {
		if def.Schedule == "" || def.Paused {
			continue
		}
		pipelineName := def.Name()
		schedule := def.Schedule

		entryID, err := s.cron.AddFunc(schedule, func() {
			s.fire(pipelineName)
		})
		if err != nil {
			s.logger.Warn("invalid cron schedule",
				"pipeline", pipelineName,
				"schedule", schedule,
				"error", err,
			)
			continue
		}

		s.entries[pipelineName] = entryID
		s.logger.Info("scheduled pipeline", "pipeline", pipelineName, "schedule", schedule)
	}

	return nil
}

// fire triggers one scheduled run. The logical time is the fire time
// truncated to the minute, so a late tick still renders the period it
// was scheduled for.
func (s *Scheduler) fire(pipelineName string) {
	ctx := context.Background()
	_, err := s.svc.TriggerRun(ctx, TriggerRequest{
		Pipeline:    pipelineName,
		TriggerType: domain.TriggerTypeScheduled,
		TriggeredBy: "scheduler",
		ScheduledAt: s.now().UTC().Truncate(time.Minute),
	})
	if err != nil {
		s.logger.Warn("scheduled trigger failed",
			"pipeline", pipelineName,
			"error", err,
		)
	}
}

// ValidateSchedule reports whether expr is a valid five-field cron
// expression or descriptor such as @monthly.
func ValidateSchedule(expr string) error {
	if _, err := cron.ParseStandard(expr); err != nil {
		return domain.ErrValidation("invalid schedule %q: %v", expr, err)
	}
	return nil
}

// Compile-time check that Scheduler implements ScheduleReloader.
var _ ScheduleReloader = (*Scheduler)(nil)
