package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"duckflow/internal/domain"
)

// Compile-time check.
var _ domain.PipelineRunRepository = (*PipelineRunRepo)(nil)

// PipelineRunRepo implements PipelineRunRepository using SQLite. Writes go
// through the single-connection write pool, reads through the read pool.
type PipelineRunRepo struct {
	write *sql.DB
	read  *sql.DB
	now   func() time.Time
}

// NewPipelineRunRepo creates a new PipelineRunRepo.
func NewPipelineRunRepo(writeDB, readDB *sql.DB) *PipelineRunRepo {
	return &PipelineRunRepo{write: writeDB, read: readDB, now: time.Now}
}

const runColumns = `id, pipeline, status, trigger_type, triggered_by, parameters,
	scheduled_at, started_at, finished_at, error_message, created_at`

// CreateRun inserts a new pipeline run. An empty ID is generated.
func (r *PipelineRunRepo) CreateRun(ctx context.Context, run *domain.PipelineRun) (*domain.PipelineRun, error) {
	params := run.Parameters
	if params == nil {
		params = map[string]string{}
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal parameters: %w", err)
	}

	id := run.ID
	if id == "" {
		id = domain.NewID()
	}
	status := run.Status
	if status == "" {
		status = domain.RunStatusPending
	}

	_, err = r.write.ExecContext(ctx, `INSERT INTO pipeline_runs
		(id, pipeline, status, trigger_type, triggered_by, parameters, scheduled_at, started_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, run.Pipeline, string(status), run.TriggerType, run.TriggeredBy, string(paramsJSON),
		formatTime(run.ScheduledAt), nullTime(run.StartedAt), formatTime(r.now()))
	if err != nil {
		return nil, mapDBError(err)
	}
	return r.getRun(ctx, r.write, id)
}

// GetRun returns a pipeline run by its ID.
func (r *PipelineRunRepo) GetRun(ctx context.Context, id string) (*domain.PipelineRun, error) {
	return r.getRun(ctx, r.read, id)
}

func (r *PipelineRunRepo) getRun(ctx context.Context, db *sql.DB, id string) (*domain.PipelineRun, error) {
	row := db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM pipeline_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err != nil {
		return nil, mapDBError(err)
	}
	return run, nil
}

// ListRuns returns a filtered, paginated list of pipeline runs, newest first.
func (r *PipelineRunRepo) ListRuns(ctx context.Context, filter domain.PipelineRunFilter) ([]domain.PipelineRun, int64, error) {
	var (
		where []string
		args  []any
	)
	if filter.Pipeline != nil {
		where = append(where, "pipeline = ?")
		args = append(args, *filter.Pipeline)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := r.read.QueryRowContext(ctx, `SELECT COUNT(*) FROM pipeline_runs`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.read.QueryContext(ctx,
		`SELECT `+runColumns+` FROM pipeline_runs`+clause+` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		append(args, filter.Page.Limit(), filter.Page.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close() //nolint:errcheck

	runs := make([]domain.PipelineRun, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, *run)
	}
	return runs, total, rows.Err()
}

// UpdateRunStatus updates the status and optional error message of a run.
// Entering running stamps started_at; a terminal status stamps finished_at.
func (r *PipelineRunRepo) UpdateRunStatus(ctx context.Context, id string, status domain.RunStatus, errMsg *string) error {
	now := formatTime(r.now())
	var started, finished sql.NullString
	switch status {
	case domain.RunStatusRunning:
		started = sql.NullString{String: now, Valid: true}
	case domain.RunStatusSuccess, domain.RunStatusFailed, domain.RunStatusCancelled:
		finished = sql.NullString{String: now, Valid: true}
	}

	res, err := r.write.ExecContext(ctx, `UPDATE pipeline_runs
		SET status = ?,
		    error_message = ?,
		    started_at = COALESCE(started_at, ?),
		    finished_at = COALESCE(?, finished_at)
		WHERE id = ?`,
		string(status), nullStr(errMsg), started, finished, id)
	if err != nil {
		return mapDBError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound("pipeline run %q not found", id)
	}
	return nil
}

// CountActiveRuns returns the number of pending or running runs of a pipeline.
func (r *PipelineRunRepo) CountActiveRuns(ctx context.Context, pipeline string) (int64, error) {
	var n int64
	err := r.read.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pipeline_runs WHERE pipeline = ? AND status IN ('pending', 'running')`,
		pipeline).Scan(&n)
	return n, err
}

// FailActiveRuns marks every pending or running run as failed.
func (r *PipelineRunRepo) FailActiveRuns(ctx context.Context, reason string) (int64, error) {
	res, err := r.write.ExecContext(ctx, `UPDATE pipeline_runs
		SET status = 'failed', error_message = ?, finished_at = ?
		WHERE status IN ('pending', 'running')`, reason, formatTime(r.now()))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SaveTaskRun inserts or updates the task run for (RunID, TaskName).
func (r *PipelineRunRepo) SaveTaskRun(ctx context.Context, tr *domain.TaskRun) error {
	id := tr.ID
	if id == "" {
		id = domain.NewID()
	}
	_, err := r.write.ExecContext(ctx, `INSERT INTO task_runs
		(id, run_id, task_name, kind, status, attempts, rows_loaded, error_kind, error_message, started_at, finished_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, task_name) DO UPDATE SET
			status = excluded.status,
			attempts = excluded.attempts,
			rows_loaded = excluded.rows_loaded,
			error_kind = excluded.error_kind,
			error_message = excluded.error_message,
			started_at = COALESCE(task_runs.started_at, excluded.started_at),
			finished_at = excluded.finished_at`,
		id, tr.RunID, tr.TaskName, string(tr.Kind), string(tr.Status), tr.Attempts, tr.RowsLoaded,
		tr.ErrorKind, nullStr(tr.ErrorMessage), nullTime(tr.StartedAt), nullTime(tr.FinishedAt), formatTime(r.now()))
	return mapDBError(err)
}

// ListTaskRuns returns the task runs of a run in creation order.
func (r *PipelineRunRepo) ListTaskRuns(ctx context.Context, runID string) ([]domain.TaskRun, error) {
	rows, err := r.read.QueryContext(ctx, `SELECT id, run_id, task_name, kind, status, attempts, rows_loaded,
		error_kind, error_message, started_at, finished_at, created_at
		FROM task_runs WHERE run_id = ? ORDER BY created_at, task_name`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	out := make([]domain.TaskRun, 0)
	for rows.Next() {
		var (
			tr                domain.TaskRun
			kind, status      string
			errMsg            sql.NullString
			started, finished sql.NullString
			createdAt         string
		)
		if err := rows.Scan(&tr.ID, &tr.RunID, &tr.TaskName, &kind, &status, &tr.Attempts, &tr.RowsLoaded,
			&tr.ErrorKind, &errMsg, &started, &finished, &createdAt); err != nil {
			return nil, err
		}
		tr.Kind = domain.TaskKind(kind)
		tr.Status = domain.TaskStatus(status)
		tr.ErrorMessage = strPtr(errMsg)
		tr.StartedAt = timePtr(started)
		tr.FinishedAt = timePtr(finished)
		tr.CreatedAt = parseTime(createdAt)
		out = append(out, tr)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(s rowScanner) (*domain.PipelineRun, error) {
	var (
		run                         domain.PipelineRun
		status, params, scheduledAt string
		started, finished, errMsg   sql.NullString
		createdAt                   string
	)
	if err := s.Scan(&run.ID, &run.Pipeline, &status, &run.TriggerType, &run.TriggeredBy, &params,
		&scheduledAt, &started, &finished, &errMsg, &createdAt); err != nil {
		return nil, err
	}
	run.Status = domain.RunStatus(status)
	if err := json.Unmarshal([]byte(params), &run.Parameters); err != nil {
		return nil, fmt.Errorf("unmarshal parameters: %w", err)
	}
	run.ScheduledAt = parseTime(scheduledAt)
	run.StartedAt = timePtr(started)
	run.FinishedAt = timePtr(finished)
	run.ErrorMessage = strPtr(errMsg)
	run.CreatedAt = parseTime(createdAt)
	return &run, nil
}
