package pipeline

import (
	"context"
	"log/slog"
	"time"

	"duckflow/internal/domain"
)

// EventType names a lifecycle point of a run.
type EventType string

// Lifecycle events, in the order they can occur for one node.
const (
	EventRunStarted         EventType = "run_started"
	EventNodeStarted        EventType = "node_started"
	EventNodeRetrying       EventType = "node_retrying"
	EventNodeSucceeded      EventType = "node_succeeded"
	EventNodeFailed         EventType = "node_failed"
	EventNodeUpstreamFailed EventType = "node_upstream_failed"
	EventNodeCancelled      EventType = "node_cancelled"
	EventNodeSkipped        EventType = "node_skipped"
	EventRunFinished        EventType = "run_finished"
)

// Event describes one lifecycle point. Node fields are empty for run events;
// RunStatus is only set on EventRunFinished.
type Event struct {
	Type      EventType
	RunID     string
	Pipeline  string
	Time      time.Time
	Task      string
	Kind      domain.TaskKind
	Status    domain.TaskStatus
	Attempt   int
	Rows      int64
	Err       error
	ErrorKind string
	Delay     time.Duration // wait before the next attempt
	Duration  time.Duration // node or run wall time
	RunStatus domain.RunStatus
}

// Observer receives lifecycle events. Events of one run may be delivered
// from several goroutines, so implementations must be safe for concurrent
// use. Observers must not block; they run inline with execution.
type Observer interface {
	OnEvent(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev Event)

// OnEvent implements Observer.
func (f ObserverFunc) OnEvent(ctx context.Context, ev Event) { f(ctx, ev) }

// MultiObserver fans events out to every observer in order.
type MultiObserver []Observer

// OnEvent implements Observer.
func (m MultiObserver) OnEvent(ctx context.Context, ev Event) {
	for _, o := range m {
		if o != nil {
			o.OnEvent(ctx, ev)
		}
	}
}

// NopObserver discards events.
type NopObserver struct{}

// OnEvent implements Observer.
func (NopObserver) OnEvent(context.Context, Event) {}

// LogObserver writes events to a structured logger.
type LogObserver struct {
	logger *slog.Logger
}

// NewLogObserver creates a LogObserver.
func NewLogObserver(logger *slog.Logger) *LogObserver {
	return &LogObserver{logger: logger}
}

// OnEvent implements Observer.
func (o *LogObserver) OnEvent(ctx context.Context, ev Event) {
	logger := o.logger.With("run_id", ev.RunID, "pipeline", ev.Pipeline)
	if ev.Task != "" {
		logger = logger.With("task", ev.Task, "kind", ev.Kind)
	}

	switch ev.Type {
	case EventRunStarted:
		logger.InfoContext(ctx, "run started")
	case EventNodeStarted:
		logger.InfoContext(ctx, "task started", "attempt", ev.Attempt)
	case EventNodeRetrying:
		logger.WarnContext(ctx, "task attempt failed, retrying",
			"attempt", ev.Attempt, "retry_in", ev.Delay, "error_kind", ev.ErrorKind, "error", ev.Err)
	case EventNodeSucceeded:
		logger.InfoContext(ctx, "task succeeded", "attempts", ev.Attempt, "rows", ev.Rows, "duration", ev.Duration)
	case EventNodeFailed:
		logger.ErrorContext(ctx, "task failed",
			"attempts", ev.Attempt, "error_kind", ev.ErrorKind, "error", ev.Err, "duration", ev.Duration)
	case EventNodeUpstreamFailed:
		logger.WarnContext(ctx, "task not run, upstream failed")
	case EventNodeCancelled:
		logger.WarnContext(ctx, "task cancelled", "attempts", ev.Attempt)
	case EventNodeSkipped:
		logger.DebugContext(ctx, "task skipped")
	case EventRunFinished:
		level := slog.LevelInfo
		if ev.RunStatus != domain.RunStatusSuccess {
			level = slog.LevelWarn
		}
		logger.Log(ctx, level, "run finished", "status", ev.RunStatus, "duration", ev.Duration)
	}
}

var (
	_ Observer = MultiObserver(nil)
	_ Observer = NopObserver{}
	_ Observer = (*LogObserver)(nil)
	_ Observer = ObserverFunc(nil)
)
