package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"duckflow/internal/domain"
	"duckflow/internal/middleware"
	"duckflow/internal/service/pipeline"
)

// PipelineService is the pipeline registry and run surface served by the API.
type PipelineService interface {
	Pipelines() []pipeline.Definition
	Pipeline(name string) (pipeline.Definition, error)
	SetPaused(ctx context.Context, name string, paused bool) error
	TriggerRun(ctx context.Context, req pipeline.TriggerRequest) (*domain.PipelineRun, error)
	GetRun(ctx context.Context, runID string) (*domain.PipelineRun, error)
	ListRuns(ctx context.Context, filter domain.PipelineRunFilter) ([]domain.PipelineRun, int64, error)
	ListTaskRuns(ctx context.Context, runID string) ([]domain.TaskRun, error)
	CancelRun(ctx context.Context, principal, runID string) error
}

var _ PipelineService = (*pipeline.Service)(nil)

// === Pipelines ===

type taskResponse struct {
	Name       string   `json:"name"`
	Kind       string   `json:"kind"`
	Upstream   []string `json:"upstream"`
	Retries    int      `json:"retries"`
	RetryDelay string   `json:"retry_delay,omitempty"`
	Timeout    string   `json:"timeout,omitempty"`
	Table      string   `json:"table,omitempty"`
}

type pipelineResponse struct {
	Name          string            `json:"name"`
	Description   string            `json:"description,omitempty"`
	Schedule      string            `json:"schedule,omitempty"`
	Paused        bool              `json:"paused"`
	MaxActiveRuns int               `json:"max_active_runs"`
	NextRunAt     *time.Time        `json:"next_run_at,omitempty"`
	Params        map[string]string `json:"params,omitempty"`
	Tasks         []taskResponse    `json:"tasks"`
	Levels        [][]string        `json:"levels"`
}

func (h *handler) pipelineToAPI(def pipeline.Definition, next map[string]time.Time) pipelineResponse {
	out := pipelineResponse{
		Name:          def.Name(),
		Description:   def.Description,
		Schedule:      def.Schedule,
		Paused:        def.Paused,
		MaxActiveRuns: def.MaxActiveRuns,
		Params:        def.Params,
		Levels:        def.Graph.Levels(),
	}
	if t, ok := next[def.Name()]; ok {
		out.NextRunAt = &t
	}
	for _, n := range def.Graph.Nodes() {
		t := taskResponse{
			Name:     n.Name,
			Kind:     string(n.Kind),
			Upstream: n.Upstream,
			Retries:  n.Retry.MaxRetries,
		}
		if t.Upstream == nil {
			t.Upstream = []string{}
		}
		if n.Retry.Delay > 0 {
			t.RetryDelay = n.Retry.Delay.String()
		}
		if n.Timeout > 0 {
			t.Timeout = n.Timeout.String()
		}
		switch {
		case n.Stage != nil:
			t.Table = n.Stage.Table
		case n.Load != nil:
			t.Table = n.Load.Table
		}
		out.Tasks = append(out.Tasks, t)
	}
	return out
}

func (h *handler) nextRuns() map[string]time.Time {
	if h.schedules == nil {
		return nil
	}
	return h.schedules()
}

func (h *handler) listPipelines(w http.ResponseWriter, _ *http.Request) {
	defs := h.pipelines.Pipelines()
	next := h.nextRuns()
	out := make([]pipelineResponse, 0, len(defs))
	for _, def := range defs {
		out = append(out, h.pipelineToAPI(def, next))
	}
	writeJSON(w, http.StatusOK, map[string]any{"pipelines": out})
}

func (h *handler) getPipeline(w http.ResponseWriter, r *http.Request) {
	def, err := h.pipelines.Pipeline(chi.URLParam(r, "name"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.pipelineToAPI(def, h.nextRuns()))
}

func (h *handler) pausePipeline(w http.ResponseWriter, r *http.Request) {
	h.setPaused(w, r, true)
}

func (h *handler) resumePipeline(w http.ResponseWriter, r *http.Request) {
	h.setPaused(w, r, false)
}

func (h *handler) setPaused(w http.ResponseWriter, r *http.Request, paused bool) {
	name := chi.URLParam(r, "name")
	if err := h.pipelines.SetPaused(r.Context(), name, paused); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "pipeline pause changed",
		"pipeline", name, "paused", paused, "principal", middleware.PrincipalFromContext(r.Context()))
	h.getPipeline(w, r)
}

// === Runs ===

type triggerRunRequest struct {
	Params      map[string]string `json:"params"`
	Targets     []string          `json:"targets"`
	ScheduledAt *time.Time        `json:"scheduled_at"`
}

type runResponse struct {
	ID           string            `json:"id"`
	Pipeline     string            `json:"pipeline"`
	Status       string            `json:"status"`
	TriggerType  string            `json:"trigger_type"`
	TriggeredBy  string            `json:"triggered_by"`
	Parameters   map[string]string `json:"parameters,omitempty"`
	ScheduledAt  time.Time         `json:"scheduled_at"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	FinishedAt   *time.Time        `json:"finished_at,omitempty"`
	ErrorMessage *string           `json:"error_message,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

func runToAPI(r domain.PipelineRun) runResponse {
	return runResponse{
		ID:           r.ID,
		Pipeline:     r.Pipeline,
		Status:       string(r.Status),
		TriggerType:  r.TriggerType,
		TriggeredBy:  r.TriggeredBy,
		Parameters:   r.Parameters,
		ScheduledAt:  r.ScheduledAt,
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
		ErrorMessage: r.ErrorMessage,
		CreatedAt:    r.CreatedAt,
	}
}

type taskRunResponse struct {
	TaskName     string     `json:"task_name"`
	Kind         string     `json:"kind"`
	Status       string     `json:"status"`
	Attempts     int        `json:"attempts"`
	RowsLoaded   int64      `json:"rows_loaded"`
	ErrorKind    string     `json:"error_kind,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

func taskRunToAPI(tr domain.TaskRun) taskRunResponse {
	return taskRunResponse{
		TaskName:     tr.TaskName,
		Kind:         string(tr.Kind),
		Status:       string(tr.Status),
		Attempts:     tr.Attempts,
		RowsLoaded:   tr.RowsLoaded,
		ErrorKind:    tr.ErrorKind,
		ErrorMessage: tr.ErrorMessage,
		StartedAt:    tr.StartedAt,
		FinishedAt:   tr.FinishedAt,
	}
}

func (h *handler) triggerRun(w http.ResponseWriter, r *http.Request) {
	var body triggerRunRequest
	if err := decodeJSON(w, r, &body); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	req := pipeline.TriggerRequest{
		Pipeline:    chi.URLParam(r, "name"),
		TriggerType: domain.TriggerTypeManual,
		TriggeredBy: middleware.PrincipalFromContext(r.Context()),
		Params:      body.Params,
		Targets:     body.Targets,
	}
	if body.ScheduledAt != nil {
		req.ScheduledAt = body.ScheduledAt.UTC()
	}

	run, err := h.pipelines.TriggerRun(r.Context(), req)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, runToAPI(*run))
}

func (h *handler) listRuns(w http.ResponseWriter, r *http.Request) {
	var pipelineName *string
	if p := r.URL.Query().Get("pipeline"); p != "" {
		pipelineName = &p
	}
	h.writeRuns(w, r, pipelineName)
}

func (h *handler) listPipelineRuns(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, err := h.pipelines.Pipeline(name); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeRuns(w, r, &name)
}

func (h *handler) writeRuns(w http.ResponseWriter, r *http.Request, pipelineName *string) {
	filter, err := runFilterFromQuery(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	filter.Pipeline = pipelineName

	runs, total, err := h.pipelines.ListRuns(r.Context(), filter)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	out := make([]runResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, runToAPI(run))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"runs":            out,
		"total":           total,
		"next_page_token": domain.NextPageToken(filter.Page.Offset(), filter.Page.Limit(), total),
	})
}

func runFilterFromQuery(r *http.Request) (domain.PipelineRunFilter, error) {
	q := r.URL.Query()
	var filter domain.PipelineRunFilter
	if s := q.Get("status"); s != "" {
		status := domain.RunStatus(s)
		switch status {
		case domain.RunStatusPending, domain.RunStatusRunning, domain.RunStatusSuccess,
			domain.RunStatusFailed, domain.RunStatusCancelled:
		default:
			return filter, domain.ErrValidation("unknown run status %q", s)
		}
		filter.Status = &status
	}
	if s := q.Get("max_results"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return filter, domain.ErrValidation("max_results must be a non-negative integer")
		}
		filter.Page.MaxResults = n
	}
	filter.Page.PageToken = q.Get("page_token")
	return filter, nil
}

func (h *handler) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.pipelines.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, runToAPI(*run))
}

func (h *handler) listTaskRuns(w http.ResponseWriter, r *http.Request) {
	trs, err := h.pipelines.ListTaskRuns(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	out := make([]taskRunResponse, 0, len(trs))
	for _, tr := range trs {
		out = append(out, taskRunToAPI(tr))
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": out})
}

func (h *handler) cancelRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if err := h.pipelines.CancelRun(r.Context(), middleware.PrincipalFromContext(r.Context()), runID); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
