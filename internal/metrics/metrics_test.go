package metrics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duckflow/internal/domain"
	"duckflow/internal/operator"
	"duckflow/internal/service/pipeline"
)

type opFunc func(ctx context.Context) (operator.Result, error)

func (f opFunc) Execute(ctx context.Context, _ domain.ExecutionContext) (operator.Result, error) {
	return f(ctx)
}

type factory map[string]opFunc

func (f factory) Build(n domain.TaskNode) (operator.Operator, error) {
	if fn, ok := f[n.Name]; ok {
		return fn, nil
	}
	return opFunc(func(context.Context) (operator.Result, error) { return operator.Result{}, nil }), nil
}

func runGraph(t *testing.T, c *Collector, ops factory) *pipeline.RunReport {
	t.Helper()
	g, err := pipeline.NewBuilder("sparkify").
		AddNode(domain.TaskNode{Name: "stage", Kind: domain.TaskKindNoOp, Retry: domain.RetryPolicy{MaxRetries: 1}}).
		AddNode(domain.TaskNode{Name: "load", Kind: domain.TaskKindNoOp, Upstream: []string{"stage"}}).
		AddNode(domain.TaskNode{Name: "check", Kind: domain.TaskKindNoOp, Upstream: []string{"load"}}).
		Build()
	require.NoError(t, err)
	ec, err := domain.NewExecutionContext("run-1", "sparkify", time.Date(2018, 11, 1, 0, 0, 0, 0, time.UTC), nil)
	require.NoError(t, err)

	exec := pipeline.NewExecutor(ops, slog.New(slog.DiscardHandler))
	report, err := exec.Run(context.Background(), g, ec, pipeline.RunOptions{Observer: c})
	require.NoError(t, err)
	return report
}

func TestCollector_SuccessfulRun(t *testing.T) {
	c, err := New(false)
	require.NoError(t, err)

	attempts := 0
	report := runGraph(t, c, factory{
		"stage": func(context.Context) (operator.Result, error) {
			attempts++
			if attempts == 1 {
				return operator.Result{}, errors.New("flaky")
			}
			return operator.Result{RowsLoaded: 8056}, nil
		},
		"load": func(context.Context) (operator.Result, error) {
			return operator.Result{RowsLoaded: 6820}, nil
		},
	})
	require.Equal(t, domain.RunStatusSuccess, report.Status)

	assert.Equal(t, 1.0, promtest.ToFloat64(c.runsTotal.WithLabelValues("sparkify", "success")))
	assert.Equal(t, 0.0, promtest.ToFloat64(c.activeRuns.WithLabelValues("sparkify")))
	assert.Equal(t, 0.0, promtest.ToFloat64(c.runningTasks.WithLabelValues("sparkify")))
	assert.Equal(t, 1.0, promtest.ToFloat64(c.retriesTotal.WithLabelValues("sparkify", "stage")))
	assert.Equal(t, 8056.0, promtest.ToFloat64(c.rowsLoaded.WithLabelValues("sparkify", "stage")))
	assert.Equal(t, 6820.0, promtest.ToFloat64(c.rowsLoaded.WithLabelValues("sparkify", "load")))
	for _, task := range []string{"stage", "load", "check"} {
		assert.Equal(t, 1.0, promtest.ToFloat64(c.tasksTotal.WithLabelValues("sparkify", task, "success", "")), task)
	}
}

func TestCollector_FailedRun(t *testing.T) {
	c, err := New(false)
	require.NoError(t, err)

	report := runGraph(t, c, factory{
		"load": func(context.Context) (operator.Result, error) {
			return operator.Result{}, &domain.StoreExecutionError{Table: "songplays", Err: errors.New("boom")}
		},
	})
	require.Equal(t, domain.RunStatusFailed, report.Status)

	assert.Equal(t, 1.0, promtest.ToFloat64(c.runsTotal.WithLabelValues("sparkify", "failed")))
	assert.Equal(t, 1.0, promtest.ToFloat64(
		c.tasksTotal.WithLabelValues("sparkify", "load", "failed", domain.ErrorKindStoreExecution)))
	assert.Equal(t, 1.0, promtest.ToFloat64(
		c.tasksTotal.WithLabelValues("sparkify", "check", "upstream-failed", "")))
	assert.Equal(t, 0.0, promtest.ToFloat64(c.runningTasks.WithLabelValues("sparkify")))
}

func TestCollector_CancelledBeforeStartKeepsGaugeBalanced(t *testing.T) {
	c, err := New(false)
	require.NoError(t, err)
	ctx := context.Background()

	c.OnEvent(ctx, pipeline.Event{Type: pipeline.EventNodeCancelled, Pipeline: "sparkify", Task: "load",
		Status: domain.TaskStatusCancelled, ErrorKind: domain.ErrorKindCancelled})

	assert.Equal(t, 0.0, promtest.ToFloat64(c.runningTasks.WithLabelValues("sparkify")))
	assert.Equal(t, 1.0, promtest.ToFloat64(
		c.tasksTotal.WithLabelValues("sparkify", "load", "cancelled", domain.ErrorKindCancelled)))
}

func TestCollector_Handler(t *testing.T) {
	c, err := New(true)
	require.NoError(t, err)
	runGraph(t, c, factory{})

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	text := string(body)
	assert.Contains(t, text, `duckflow_runs_total{pipeline="sparkify",status="success"} 1`)
	assert.Contains(t, text, "duckflow_task_duration_seconds_bucket")
	assert.Contains(t, text, "go_goroutines")
}

func TestCollector_Push(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody string
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	c, err := New(false)
	require.NoError(t, err)
	runGraph(t, c, factory{})

	require.NoError(t, c.Push(context.Background(), gateway.URL, "sparkify"))
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.True(t, strings.HasSuffix(gotPath, "/metrics/job/sparkify"), gotPath)
	assert.NotEmpty(t, gotBody)

	t.Run("requires url", func(t *testing.T) {
		assert.Error(t, c.Push(context.Background(), "", "sparkify"))
	})
	t.Run("gateway error", func(t *testing.T) {
		bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer bad.Close()
		assert.Error(t, c.Push(context.Background(), bad.URL, "sparkify"))
	})
}
