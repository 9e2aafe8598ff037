// Package metrics exposes pipeline execution as Prometheus metrics.
//
// Collector is a pipeline.Observer: register it with the service and every
// run, task attempt and retry is counted. Long-running processes serve the
// registry over HTTP; one-shot CLI runs push it to a Pushgateway.
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"

	"duckflow/internal/service/pipeline"
)

const namespace = "duckflow"

// Collector records pipeline events into its own registry.
type Collector struct {
	reg *prometheus.Registry

	runsTotal    *prometheus.CounterVec   // pipeline, status
	runDuration  *prometheus.HistogramVec // pipeline, status
	activeRuns   *prometheus.GaugeVec     // pipeline
	tasksTotal   *prometheus.CounterVec   // pipeline, task, status, error_kind
	taskDuration *prometheus.HistogramVec // pipeline, task, status
	retriesTotal *prometheus.CounterVec   // pipeline, task
	rowsLoaded   *prometheus.CounterVec   // pipeline, task
	runningTasks *prometheus.GaugeVec     // pipeline
}

// New creates a Collector. When withRuntime is set the Go runtime and
// process collectors are registered too.
func New(withRuntime bool) (*Collector, error) {
	c := &Collector{
		reg: prometheus.NewRegistry(),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished pipeline runs, partitioned by pipeline and final status.",
		}, []string{"pipeline", "status"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of pipeline runs.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
		}, []string{"pipeline", "status"}),
		activeRuns: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_runs",
			Help:      "Pipeline runs currently executing.",
		}, []string{"pipeline"}),
		tasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Terminal task outcomes, partitioned by pipeline, task, status and error kind.",
		}, []string{"pipeline", "task", "status", "error_kind"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Duration of executed tasks including retries.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 16),
		}, []string{"pipeline", "task", "status"}),
		retriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_retries_total",
			Help:      "Task attempts that failed and were scheduled for retry.",
		}, []string{"pipeline", "task"}),
		rowsLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_loaded_total",
			Help:      "Rows written by stage and load tasks, as reported by the store.",
		}, []string{"pipeline", "task"}),
		runningTasks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "running_tasks",
			Help:      "Tasks currently executing an attempt.",
		}, []string{"pipeline"}),
	}

	cs := []prometheus.Collector{
		c.runsTotal, c.runDuration, c.activeRuns, c.tasksTotal,
		c.taskDuration, c.retriesTotal, c.rowsLoaded, c.runningTasks,
	}
	if withRuntime {
		cs = append(cs,
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	for _, col := range cs {
		if err := c.reg.Register(col); err != nil {
			return nil, fmt.Errorf("metrics: register collector: %w", err)
		}
	}
	return c, nil
}

// OnEvent implements pipeline.Observer.
func (c *Collector) OnEvent(_ context.Context, ev pipeline.Event) {
	switch ev.Type {
	case pipeline.EventRunStarted:
		c.activeRuns.WithLabelValues(ev.Pipeline).Inc()
	case pipeline.EventRunFinished:
		c.activeRuns.WithLabelValues(ev.Pipeline).Dec()
		status := string(ev.RunStatus)
		c.runsTotal.WithLabelValues(ev.Pipeline, status).Inc()
		c.runDuration.WithLabelValues(ev.Pipeline, status).Observe(ev.Duration.Seconds())
	case pipeline.EventNodeStarted:
		c.runningTasks.WithLabelValues(ev.Pipeline).Inc()
	case pipeline.EventNodeRetrying:
		c.retriesTotal.WithLabelValues(ev.Pipeline, ev.Task).Inc()
	case pipeline.EventNodeSucceeded, pipeline.EventNodeFailed, pipeline.EventNodeCancelled:
		status := string(ev.Status)
		c.tasksTotal.WithLabelValues(ev.Pipeline, ev.Task, status, ev.ErrorKind).Inc()
		// Tasks cancelled before their first attempt never started.
		if ev.Attempt == 0 {
			return
		}
		c.runningTasks.WithLabelValues(ev.Pipeline).Dec()
		c.taskDuration.WithLabelValues(ev.Pipeline, ev.Task, status).Observe(ev.Duration.Seconds())
		if ev.Rows > 0 {
			c.rowsLoaded.WithLabelValues(ev.Pipeline, ev.Task).Add(float64(ev.Rows))
		}
	case pipeline.EventNodeUpstreamFailed, pipeline.EventNodeSkipped:
		c.tasksTotal.WithLabelValues(ev.Pipeline, ev.Task, string(ev.Status), ev.ErrorKind).Inc()
	}
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{Registry: c.reg})
}

// Push sends the current registry to a Pushgateway under job.
func (c *Collector) Push(ctx context.Context, gatewayURL, job string) error {
	if gatewayURL == "" {
		return fmt.Errorf("metrics: gateway URL is required")
	}
	if job == "" {
		job = namespace
	}
	if err := push.New(gatewayURL, job).Gatherer(c.reg).PushContext(ctx); err != nil {
		return fmt.Errorf("metrics: push to %s: %w", gatewayURL, err)
	}
	return nil
}

var _ pipeline.Observer = (*Collector)(nil)
