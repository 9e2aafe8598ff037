package pipeline

import (
	"context"
	"log/slog"

	"duckflow/internal/domain"
)

// RunRecorder persists task outcomes to the run history as events arrive.
type RunRecorder struct {
	runs   domain.PipelineRunRepository
	logger *slog.Logger
}

// NewRunRecorder creates a RunRecorder.
func NewRunRecorder(runs domain.PipelineRunRepository, logger *slog.Logger) *RunRecorder {
	return &RunRecorder{runs: runs, logger: logger}
}

var _ Observer = (*RunRecorder)(nil)

// OnEvent implements Observer.
func (r *RunRecorder) OnEvent(ctx context.Context, ev Event) {
	if ev.Task == "" {
		return
	}

	tr := &domain.TaskRun{
		RunID:      ev.RunID,
		TaskName:   ev.Task,
		Kind:       ev.Kind,
		Status:     ev.Status,
		Attempts:   ev.Attempt,
		RowsLoaded: ev.Rows,
		ErrorKind:  ev.ErrorKind,
	}
	if ev.Err != nil {
		msg := ev.Err.Error()
		tr.ErrorMessage = &msg
	}
	at := ev.Time

	switch ev.Type {
	case EventNodeStarted, EventNodeRetrying:
		tr.Status = domain.TaskStatusRunning
		tr.StartedAt = &at
	case EventNodeSucceeded, EventNodeFailed, EventNodeCancelled:
		tr.FinishedAt = &at
		if ev.Duration > 0 {
			started := at.Add(-ev.Duration)
			tr.StartedAt = &started
		}
	case EventNodeUpstreamFailed, EventNodeSkipped:
		tr.FinishedAt = &at
	default:
		return
	}

	if err := r.runs.SaveTaskRun(ctx, tr); err != nil {
		r.logger.WarnContext(ctx, "failed to record task run",
			"run_id", ev.RunID, "task", ev.Task, "status", tr.Status, "error", err)
	}
}
