package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"duckflow/internal/domain"
)

// DefaultMaxActiveRuns is the number of concurrent runs a pipeline allows
// when its definition leaves the limit unset.
const DefaultMaxActiveRuns = 1

// ScheduleReloader allows the service to notify the scheduler to reload.
type ScheduleReloader interface {
	Reload(ctx context.Context) error
}

// Definition is a registered pipeline: its graph plus run policy.
type Definition struct {
	Graph       *Graph
	Description string
	// Schedule is a cron expression or descriptor such as @monthly.
	// Empty means the pipeline only runs when triggered.
	Schedule      string
	Paused        bool
	MaxActiveRuns int
	// Params are default user parameters; trigger parameters override them.
	Params  map[string]string
	Options RunOptions
}

// Name returns the pipeline name.
func (d Definition) Name() string { return d.Graph.Name() }

// Validate checks the run policy.
func (d Definition) Validate() error {
	if d.Graph == nil {
		return domain.ErrValidation("pipeline graph is required")
	}
	if d.MaxActiveRuns < 0 {
		return domain.ErrValidation("pipeline %s: max_active_runs must be non-negative", d.Name())
	}
	if d.Schedule != "" {
		if _, err := cron.ParseStandard(d.Schedule); err != nil {
			return domain.ErrValidation("pipeline %s: invalid schedule %q: %v", d.Name(), d.Schedule, err)
		}
	}
	return nil
}

// TriggerRequest asks for one run of a pipeline.
type TriggerRequest struct {
	Pipeline    string
	TriggerType string
	TriggeredBy string
	// ScheduledAt is the logical run time; zero means now.
	ScheduledAt time.Time
	Params      map[string]string
	Targets     []string
}

type activeRun struct {
	cancel      context.CancelFunc
	done        chan struct{}
	report      *RunReport
	err         error // set when the run ended without a report
	cancelledBy string
}

// Service is the registry of pipelines and the entry point for runs.
type Service struct {
	runs     domain.PipelineRunRepository
	executor *Executor
	observer Observer
	logger   *slog.Logger
	now      func() time.Time

	baseCtx  context.Context
	stop     context.CancelFunc
	wg       sync.WaitGroup
	reloader ScheduleReloader

	mu     sync.Mutex
	defs   map[string]Definition
	active map[string]*activeRun
}

// NewService creates a Service. Observers receive every run's events in
// addition to the run history recorder.
func NewService(runs domain.PipelineRunRepository, executor *Executor, logger *slog.Logger, observers ...Observer) *Service {
	baseCtx, stop := context.WithCancel(context.Background())
	obs := append(MultiObserver{NewRunRecorder(runs, logger)}, observers...)
	return &Service{
		runs:     runs,
		executor: executor,
		observer: obs,
		logger:   logger,
		now:      time.Now,
		baseCtx:  baseCtx,
		stop:     stop,
		defs:     make(map[string]Definition),
		active:   make(map[string]*activeRun),
	}
}

// SetScheduleReloader sets the schedule reloader (breaks circular dep).
func (s *Service) SetScheduleReloader(r ScheduleReloader) {
	s.reloader = r
}

// === Pipeline registry ===

// Register adds a pipeline definition. Names must be unique.
func (s *Service) Register(ctx context.Context, def Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	if def.MaxActiveRuns == 0 {
		def.MaxActiveRuns = DefaultMaxActiveRuns
	}
	def.Params = maps.Clone(def.Params)

	s.mu.Lock()
	if _, exists := s.defs[def.Name()]; exists {
		s.mu.Unlock()
		return domain.ErrConflict("pipeline %q already registered", def.Name())
	}
	s.defs[def.Name()] = def
	s.mu.Unlock()

	s.logger.Info("pipeline registered", "pipeline", def.Name(), "tasks", def.Graph.Len(), "schedule", def.Schedule)
	if s.reloader != nil {
		if err := s.reloader.Reload(ctx); err != nil {
			return fmt.Errorf("reload schedules: %w", err)
		}
	}
	return nil
}

// SetPaused pauses or resumes the schedule of a pipeline.
func (s *Service) SetPaused(ctx context.Context, name string, paused bool) error {
	s.mu.Lock()
	def, ok := s.defs[name]
	if !ok {
		s.mu.Unlock()
		return domain.ErrNotFound("pipeline %q not found", name)
	}
	def.Paused = paused
	s.defs[name] = def
	s.mu.Unlock()

	if s.reloader != nil {
		return s.reloader.Reload(ctx)
	}
	return nil
}

// Pipeline returns a registered definition.
func (s *Service) Pipeline(name string) (Definition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	def, ok := s.defs[name]
	if !ok {
		return Definition{}, domain.ErrNotFound("pipeline %q not found", name)
	}
	return def, nil
}

// Pipelines returns every registered definition sorted by name.
func (s *Service) Pipelines() []Definition {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := slices.Sorted(maps.Keys(s.defs))
	out := make([]Definition, 0, len(names))
	for _, n := range names {
		out = append(out, s.defs[n])
	}
	return out
}

// === Run Operations ===

// TriggerRun records a new run and executes it in the background.
func (s *Service) TriggerRun(ctx context.Context, req TriggerRequest) (*domain.PipelineRun, error) {
	run, _, err := s.start(ctx, req)
	return run, err
}

// RunAndWait executes a run and blocks until it finishes. Cancelling ctx
// cancels the run.
func (s *Service) RunAndWait(ctx context.Context, req TriggerRequest) (*RunReport, error) {
	run, h, err := s.start(ctx, req)
	if err != nil {
		return nil, err
	}
	select {
	case <-h.done:
	case <-ctx.Done():
		h.cancel()
		<-h.done
	}
	if h.report == nil {
		if h.err != nil {
			return nil, fmt.Errorf("run %s: %w", run.ID, h.err)
		}
		return nil, fmt.Errorf("run %s ended without a report", run.ID)
	}
	return h.report, nil
}

func (s *Service) start(ctx context.Context, req TriggerRequest) (*domain.PipelineRun, *activeRun, error) {
	def, err := s.Pipeline(req.Pipeline)
	if err != nil {
		return nil, nil, err
	}
	if len(req.Targets) > 0 {
		if _, err := def.Graph.UpstreamClosure(req.Targets); err != nil {
			return nil, nil, err
		}
	}

	params := maps.Clone(def.Params)
	if params == nil {
		params = map[string]string{}
	}
	maps.Copy(params, req.Params)

	scheduledAt := req.ScheduledAt
	if scheduledAt.IsZero() {
		scheduledAt = s.now()
	}
	runID := domain.NewID()
	ec, err := domain.NewExecutionContext(runID, def.Name(), scheduledAt, params)
	if err != nil {
		return nil, nil, err
	}

	triggerType := req.TriggerType
	if triggerType == "" {
		triggerType = domain.TriggerTypeManual
	}

	// Count and create under the lock so concurrent triggers cannot both
	// pass the active-run limit.
	s.mu.Lock()
	if s.baseCtx.Err() != nil {
		s.mu.Unlock()
		return nil, nil, domain.ErrConflict("service is shutting down")
	}
	active, err := s.runs.CountActiveRuns(ctx, def.Name())
	if err != nil {
		s.mu.Unlock()
		return nil, nil, fmt.Errorf("count active runs: %w", err)
	}
	if active >= int64(def.MaxActiveRuns) {
		s.mu.Unlock()
		return nil, nil, domain.ErrConflict("pipeline %s: max active runs reached (%d active)", def.Name(), active)
	}
	run, err := s.runs.CreateRun(ctx, &domain.PipelineRun{
		ID:          runID,
		Pipeline:    def.Name(),
		Status:      domain.RunStatusPending,
		TriggerType: triggerType,
		TriggeredBy: req.TriggeredBy,
		Parameters:  ec.UserParams(),
		ScheduledAt: ec.ScheduledAt(),
	})
	if err != nil {
		s.mu.Unlock()
		return nil, nil, err
	}
	runCtx, cancel := context.WithCancel(s.baseCtx)
	h := &activeRun{cancel: cancel, done: make(chan struct{})}
	s.active[run.ID] = h
	s.wg.Add(1)
	s.mu.Unlock()

	opts := def.Options
	opts.Targets = req.Targets
	if opts.Observer != nil {
		opts.Observer = MultiObserver{s.observer, opts.Observer}
	} else {
		opts.Observer = s.observer
	}

	go s.executeRun(runCtx, run.ID, def, ec, opts, h)
	return run, h, nil
}

// executeRun processes a pipeline run in a background goroutine.
func (s *Service) executeRun(ctx context.Context, runID string, def Definition, ec domain.ExecutionContext, opts RunOptions, h *activeRun) {
	logger := s.logger.With("run_id", runID, "pipeline", def.Name())
	// Status writes use a context that survives run cancellation.
	bg := context.WithoutCancel(ctx)

	defer func() {
		s.mu.Lock()
		delete(s.active, runID)
		s.mu.Unlock()
		h.cancel()
		close(h.done)
		s.wg.Done()
	}()

	// Recover from panics.
	defer func() {
		if r := recover(); r != nil {
			errMsg := fmt.Sprintf("panic: %v", r)
			logger.Error("pipeline run panicked", "error", errMsg)
			h.err = errors.New(errMsg)
			_ = s.runs.UpdateRunStatus(bg, runID, domain.RunStatusFailed, &errMsg)
		}
	}()

	if err := s.runs.UpdateRunStatus(bg, runID, domain.RunStatusRunning, nil); err != nil {
		logger.Error("failed to update run started", "error", err)
	}

	report, err := s.executor.Run(ctx, def.Graph, ec, opts)
	if err != nil {
		errMsg := err.Error()
		logger.Error("pipeline run could not start", "error", err)
		_ = s.runs.UpdateRunStatus(bg, runID, domain.RunStatusFailed, &errMsg)
		h.err = err
		return
	}
	h.report = report

	var errMsg *string
	if msg := report.Summary(); msg != "" {
		s.mu.Lock()
		by := h.cancelledBy
		s.mu.Unlock()
		if report.Status == domain.RunStatusCancelled && by != "" {
			msg = "cancelled by " + by
		}
		errMsg = &msg
	}
	if err := s.runs.UpdateRunStatus(bg, runID, report.Status, errMsg); err != nil {
		logger.Error("failed to update run finished", "error", err)
	}
}

// CancelRun cancels a pending or running run.
func (s *Service) CancelRun(ctx context.Context, principal, runID string) error {
	run, err := s.runs.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status != domain.RunStatusPending && run.Status != domain.RunStatusRunning {
		return domain.ErrValidation("cannot cancel run with status %s", run.Status)
	}

	s.mu.Lock()
	h, ok := s.active[runID]
	if ok {
		h.cancelledBy = principal
	}
	s.mu.Unlock()

	if ok {
		h.cancel()
		s.logger.Info("run cancellation requested", "run_id", runID, "by", principal)
		return nil
	}

	// Not owned by this process: mark it directly.
	errMsg := "cancelled by " + principal
	return s.runs.UpdateRunStatus(ctx, runID, domain.RunStatusCancelled, &errMsg)
}

// Wait blocks until the run finishes in this process or ctx is done.
// Runs not owned by this process return immediately.
func (s *Service) Wait(ctx context.Context, runID string) error {
	s.mu.Lock()
	h, ok := s.active[runID]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetRun returns a run by ID.
func (s *Service) GetRun(ctx context.Context, runID string) (*domain.PipelineRun, error) {
	return s.runs.GetRun(ctx, runID)
}

// ListRuns returns runs matching filter, newest first.
func (s *Service) ListRuns(ctx context.Context, filter domain.PipelineRunFilter) ([]domain.PipelineRun, int64, error) {
	return s.runs.ListRuns(ctx, filter)
}

// ListTaskRuns returns the task runs of a run.
func (s *Service) ListTaskRuns(ctx context.Context, runID string) ([]domain.TaskRun, error) {
	// Verify run exists.
	if _, err := s.runs.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	return s.runs.ListTaskRuns(ctx, runID)
}

// RecoverInterrupted marks runs left active by a previous process as failed.
func (s *Service) RecoverInterrupted(ctx context.Context) error {
	n, err := s.runs.FailActiveRuns(ctx, "interrupted: process restarted")
	if err != nil {
		return fmt.Errorf("recover interrupted runs: %w", err)
	}
	if n > 0 {
		s.logger.Warn("marked interrupted runs as failed", "count", n)
	}
	return nil
}

// Shutdown cancels every active run and waits for them to finish recording
// their outcome, or for ctx to end.
func (s *Service) Shutdown(ctx context.Context) error {
	s.stop()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
