package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"duckflow/internal/domain"
	"duckflow/internal/service/pipeline"
)

// === Mock ===

type mockPipelineService struct {
	pipelinesFn    func() []pipeline.Definition
	pipelineFn     func(name string) (pipeline.Definition, error)
	setPausedFn    func(ctx context.Context, name string, paused bool) error
	triggerRunFn   func(ctx context.Context, req pipeline.TriggerRequest) (*domain.PipelineRun, error)
	getRunFn       func(ctx context.Context, runID string) (*domain.PipelineRun, error)
	listRunsFn     func(ctx context.Context, filter domain.PipelineRunFilter) ([]domain.PipelineRun, int64, error)
	listTaskRunsFn func(ctx context.Context, runID string) ([]domain.TaskRun, error)
	cancelRunFn    func(ctx context.Context, principal, runID string) error
}

func (m *mockPipelineService) Pipelines() []pipeline.Definition {
	if m.pipelinesFn == nil {
		panic("mockPipelineService.Pipelines called but not configured")
	}
	return m.pipelinesFn()
}

func (m *mockPipelineService) Pipeline(name string) (pipeline.Definition, error) {
	if m.pipelineFn == nil {
		panic("mockPipelineService.Pipeline called but not configured")
	}
	return m.pipelineFn(name)
}

func (m *mockPipelineService) SetPaused(ctx context.Context, name string, paused bool) error {
	if m.setPausedFn == nil {
		panic("mockPipelineService.SetPaused called but not configured")
	}
	return m.setPausedFn(ctx, name, paused)
}

func (m *mockPipelineService) TriggerRun(ctx context.Context, req pipeline.TriggerRequest) (*domain.PipelineRun, error) {
	if m.triggerRunFn == nil {
		panic("mockPipelineService.TriggerRun called but not configured")
	}
	return m.triggerRunFn(ctx, req)
}

func (m *mockPipelineService) GetRun(ctx context.Context, runID string) (*domain.PipelineRun, error) {
	if m.getRunFn == nil {
		panic("mockPipelineService.GetRun called but not configured")
	}
	return m.getRunFn(ctx, runID)
}

func (m *mockPipelineService) ListRuns(ctx context.Context, filter domain.PipelineRunFilter) ([]domain.PipelineRun, int64, error) {
	if m.listRunsFn == nil {
		panic("mockPipelineService.ListRuns called but not configured")
	}
	return m.listRunsFn(ctx, filter)
}

func (m *mockPipelineService) ListTaskRuns(ctx context.Context, runID string) ([]domain.TaskRun, error) {
	if m.listTaskRunsFn == nil {
		panic("mockPipelineService.ListTaskRuns called but not configured")
	}
	return m.listTaskRunsFn(ctx, runID)
}

func (m *mockPipelineService) CancelRun(ctx context.Context, principal, runID string) error {
	if m.cancelRunFn == nil {
		panic("mockPipelineService.CancelRun called but not configured")
	}
	return m.cancelRunFn(ctx, principal, runID)
}

// === Helpers ===

func testDefinition(t *testing.T, name string) pipeline.Definition {
	t.Helper()
	g, err := pipeline.NewBuilder(name).
		AddNode(domain.TaskNode{Name: "begin", Kind: domain.TaskKindNoOp}).
		AddNode(domain.TaskNode{
			Name:     "load_users",
			Kind:     domain.TaskKindLoadDimension,
			Upstream: []string{"begin"},
			Load:     &domain.LoadConfig{Table: "users", SelectTemplate: "user_table_insert", Mode: domain.UpdateModeOverwrite},
			Retry:    domain.RetryPolicy{MaxRetries: 3, Delay: 5 * time.Minute},
		}).
		Build()
	require.NoError(t, err)
	return pipeline.Definition{Graph: g, Schedule: "@monthly", MaxActiveRuns: 1}
}

func newTestRouter(svc PipelineService, creds CredentialStore) http.Handler {
	return NewRouter(Deps{
		Pipelines:   svc,
		Credentials: creds,
		Logger:      slog.New(slog.DiscardHandler),
	})
}

func doRequest(t *testing.T, h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}
