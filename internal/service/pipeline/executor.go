package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"duckflow/internal/domain"
	"duckflow/internal/operator"
)

// DefaultMaxParallel bounds concurrent tasks when RunOptions leaves it unset.
const DefaultMaxParallel = 4

// OperatorFactory builds the operator for a node.
type OperatorFactory interface {
	Build(node domain.TaskNode) (operator.Operator, error)
}

// RunOptions tunes one execution of a graph.
type RunOptions struct {
	// MaxParallel bounds the number of task attempts executing at once.
	// A task sleeping between retries does not hold a slot.
	MaxParallel int
	// StartRate limits how many task attempts may start per second. Zero
	// disables it.
	StartRate  rate.Limit
	StartBurst int
	// Targets restricts the run to these tasks and their upstream closure.
	// Other tasks end skipped.
	Targets  []string
	Observer Observer
}

// NodeOutcome is the final state of one node in a run.
type NodeOutcome struct {
	Name       string
	Kind       domain.TaskKind
	Status     domain.TaskStatus
	Attempts   int
	RowsLoaded int64
	ErrorKind  string
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// RunReport summarises a run. Nodes are in graph declaration order.
// RootCauses names the nodes that failed themselves, as opposed to nodes
// that ended upstream-failed.
type RunReport struct {
	RunID      string
	Pipeline   string
	Status     domain.RunStatus
	Nodes      []NodeOutcome
	RootCauses []string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Node returns the outcome of the named node.
func (r *RunReport) Node(name string) (NodeOutcome, bool) {
	for _, n := range r.Nodes {
		if n.Name == name {
			return n, true
		}
	}
	return NodeOutcome{}, false
}

// Err summarises the root causes of a failed run, or returns nil.
func (r *RunReport) Err() error {
	switch r.Status {
	case domain.RunStatusSuccess:
		return nil
	case domain.RunStatusCancelled:
		return fmt.Errorf("run %s cancelled", r.RunID)
	}
	if len(r.RootCauses) == 0 {
		return fmt.Errorf("run %s failed", r.RunID)
	}
	errs := make([]error, 0, len(r.RootCauses))
	for _, name := range r.RootCauses {
		n, _ := r.Node(name)
		errs = append(errs, fmt.Errorf("task %s failed (%s): %w", name, n.ErrorKind, n.Err))
	}
	return errors.Join(errs...)
}

// Summary is a one-line description of a failed run for persistence.
func (r *RunReport) Summary() string {
	if r.Status == domain.RunStatusSuccess {
		return ""
	}
	if r.Status == domain.RunStatusCancelled {
		return "run cancelled"
	}
	parts := make([]string, 0, len(r.RootCauses))
	for _, name := range r.RootCauses {
		n, _ := r.Node(name)
		parts = append(parts, fmt.Sprintf("%s: %s", name, n.ErrorKind))
	}
	return "failed tasks: " + strings.Join(parts, ", ")
}

// Executor runs graphs. It is safe for concurrent use; each Run is independent.
type Executor struct {
	factory OperatorFactory
	logger  *slog.Logger
	now     func() time.Time
}

// NewExecutor creates an Executor.
func NewExecutor(factory OperatorFactory, logger *slog.Logger) *Executor {
	return &Executor{factory: factory, logger: logger, now: time.Now}
}

type nodeMsg struct {
	name    string
	started bool
	outcome NodeOutcome
}

// Run executes g to completion. A node starts only after every upstream node
// succeeded; a node with a failed or upstream-failed upstream ends
// upstream-failed without running. Cancelling ctx stops new starts, marks
// pending nodes cancelled and aborts running ones. The returned error is
// only set for setup problems; task failures are reported in the RunReport.
func (e *Executor) Run(ctx context.Context, g *Graph, ec domain.ExecutionContext, opts RunOptions) (*RunReport, error) {
	selected := make(map[string]bool, g.Len())
	if len(opts.Targets) > 0 {
		closure, err := g.UpstreamClosure(opts.Targets)
		if err != nil {
			return nil, err
		}
		selected = closure
	} else {
		for _, n := range g.nodes {
			selected[n.Name] = true
		}
	}

	ops := make(map[string]operator.Operator, len(selected))
	for _, n := range g.nodes {
		if !selected[n.Name] {
			continue
		}
		op, err := e.factory.Build(n)
		if err != nil {
			return nil, fmt.Errorf("task %s: %w", n.Name, err)
		}
		ops[n.Name] = op
	}

	maxParallel := opts.MaxParallel
	if maxParallel <= 0 {
		maxParallel = DefaultMaxParallel
	}
	var limiter *rate.Limiter
	if opts.StartRate > 0 {
		burst := opts.StartBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(opts.StartRate, burst)
	}
	obs := opts.Observer
	if obs == nil {
		obs = NopObserver{}
	}

	r := &run{
		exec:     e,
		graph:    g,
		ec:       ec,
		ops:      ops,
		obs:      obs,
		sem:      semaphore.NewWeighted(int64(maxParallel)),
		limiter:  limiter,
		outcomes: make(map[string]*NodeOutcome, g.Len()),
		waiting:  make(map[string]int, g.Len()),
		msgs:     make(chan nodeMsg, g.Len()),
	}
	return r.execute(ctx, selected), nil
}

// run holds the state of one execution. Only the coordinator goroutine in
// execute reads or writes outcomes and waiting.
type run struct {
	exec    *Executor
	graph   *Graph
	ec      domain.ExecutionContext
	ops     map[string]operator.Operator
	obs     Observer
	sem     *semaphore.Weighted
	limiter *rate.Limiter

	outcomes map[string]*NodeOutcome
	waiting  map[string]int // upstream nodes not yet succeeded
	msgs     chan nodeMsg
}

func (r *run) event(ctx context.Context, typ EventType, o *NodeOutcome) {
	ev := Event{
		Type:     typ,
		RunID:    r.ec.RunID(),
		Pipeline: r.graph.Name(),
		Time:     r.exec.now(),
	}
	if o != nil {
		ev.Task = o.Name
		ev.Kind = o.Kind
		ev.Status = o.Status
		ev.Attempt = o.Attempts
		ev.Rows = o.RowsLoaded
		ev.Err = o.Err
		ev.ErrorKind = o.ErrorKind
		if !o.StartedAt.IsZero() && !o.FinishedAt.IsZero() {
			ev.Duration = o.FinishedAt.Sub(o.StartedAt)
		}
	}
	r.obs.OnEvent(ctx, ev)
}

func (r *run) execute(ctx context.Context, selected map[string]bool) *RunReport {
	report := &RunReport{
		RunID:     r.ec.RunID(),
		Pipeline:  r.graph.Name(),
		StartedAt: r.exec.now(),
	}
	// Observers get a context that outlives cancellation so final events
	// are still recorded.
	obsCtx := context.WithoutCancel(ctx)
	r.obs.OnEvent(obsCtx, Event{Type: EventRunStarted, RunID: report.RunID, Pipeline: report.Pipeline, Time: report.StartedAt})

	var ready []string
	for _, n := range r.graph.nodes {
		o := &NodeOutcome{Name: n.Name, Kind: n.Kind, Status: domain.TaskStatusPending}
		r.outcomes[n.Name] = o
		if !selected[n.Name] {
			o.Status = domain.TaskStatusSkipped
			r.event(obsCtx, EventNodeSkipped, o)
			continue
		}
		r.waiting[n.Name] = len(n.Upstream)
		if len(n.Upstream) == 0 {
			ready = append(ready, n.Name)
		}
	}

	inFlight := 0
	cancelled := false
	for {
		if !cancelled && ctx.Err() == nil {
			for _, name := range ready {
				if r.outcomes[name].Status != domain.TaskStatusPending {
					continue
				}
				inFlight++
				node, _ := r.graph.Node(name)
				go r.worker(ctx, obsCtx, node)
			}
			ready = ready[:0]
		}

		if inFlight == 0 {
			break
		}

		select {
		case <-ctx.Done():
			if !cancelled {
				cancelled = true
				r.cancelPending(obsCtx)
			}
			// Keep draining until in-flight workers report back.
			msg := <-r.msgs
			inFlight -= r.handle(obsCtx, msg, &ready)
		case msg := <-r.msgs:
			inFlight -= r.handle(obsCtx, msg, &ready)
		}
	}

	if cancelled || ctx.Err() != nil {
		r.cancelPending(obsCtx)
	}

	report.FinishedAt = r.exec.now()
	report.Status = domain.RunStatusSuccess
	for _, n := range r.graph.nodes {
		o := r.outcomes[n.Name]
		report.Nodes = append(report.Nodes, *o)
		switch o.Status {
		case domain.TaskStatusSuccess, domain.TaskStatusSkipped:
		case domain.TaskStatusFailed:
			report.RootCauses = append(report.RootCauses, o.Name)
			report.Status = domain.RunStatusFailed
		case domain.TaskStatusCancelled:
			if report.Status == domain.RunStatusSuccess {
				report.Status = domain.RunStatusCancelled
			}
		default:
			report.Status = domain.RunStatusFailed
		}
	}
	r.obs.OnEvent(obsCtx, Event{
		Type:      EventRunFinished,
		RunID:     report.RunID,
		Pipeline:  report.Pipeline,
		Time:      report.FinishedAt,
		Duration:  report.FinishedAt.Sub(report.StartedAt),
		RunStatus: report.Status,
	})
	return report
}

// handle applies a worker message and returns 1 when it completes a node.
// Messages for a node already marked terminal, such as one cancelled while
// its worker waited for a slot, are consumed without further events.
func (r *run) handle(ctx context.Context, msg nodeMsg, ready *[]string) int {
	o := r.outcomes[msg.name]
	if o.Status.Terminal() {
		if msg.started {
			return 0
		}
		return 1
	}
	if msg.started {
		o.Status = domain.TaskStatusRunning
		o.StartedAt = msg.outcome.StartedAt
		o.Attempts = 1
		r.event(ctx, EventNodeStarted, o)
		return 0
	}

	started := o.StartedAt
	*o = msg.outcome
	if o.StartedAt.IsZero() {
		o.StartedAt = started
	}

	switch o.Status {
	case domain.TaskStatusSuccess:
		r.event(ctx, EventNodeSucceeded, o)
		for _, down := range r.graph.downstream[o.Name] {
			if _, ok := r.waiting[down]; !ok {
				continue
			}
			r.waiting[down]--
			if r.waiting[down] == 0 && r.outcomes[down].Status == domain.TaskStatusPending {
				*ready = append(*ready, down)
			}
		}
	case domain.TaskStatusFailed:
		r.event(ctx, EventNodeFailed, o)
		r.propagateFailure(ctx, o.Name)
	case domain.TaskStatusCancelled:
		r.event(ctx, EventNodeCancelled, o)
	}
	return 1
}

// propagateFailure marks every pending descendant of name upstream-failed.
func (r *run) propagateFailure(ctx context.Context, name string) {
	stack := append([]string(nil), r.graph.downstream[name]...)
	for len(stack) > 0 {
		down := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		o := r.outcomes[down]
		if o.Status != domain.TaskStatusPending {
			continue
		}
		if _, selected := r.waiting[down]; !selected {
			continue
		}
		o.Status = domain.TaskStatusUpstreamFailed
		r.event(ctx, EventNodeUpstreamFailed, o)
		stack = append(stack, r.graph.downstream[down]...)
	}
}

func (r *run) cancelPending(ctx context.Context) {
	for _, n := range r.graph.nodes {
		o := r.outcomes[n.Name]
		if o.Status == domain.TaskStatusPending {
			o.Status = domain.TaskStatusCancelled
			o.ErrorKind = domain.ErrorKindCancelled
			r.event(ctx, EventNodeCancelled, o)
		}
	}
}

// worker runs one node through its retry policy and reports to the
// coordinator.
func (r *run) worker(ctx, obsCtx context.Context, node domain.TaskNode) {
	out := NodeOutcome{Name: node.Name, Kind: node.Kind}
	finish := func(status domain.TaskStatus, err error) {
		out.Status = status
		out.Err = err
		out.ErrorKind = domain.ErrorKind(err)
		if status == domain.TaskStatusCancelled && out.ErrorKind == "" {
			out.ErrorKind = domain.ErrorKindCancelled
		}
		out.FinishedAt = r.exec.now()
		r.msgs <- nodeMsg{name: node.Name, outcome: out}
	}

	op := r.ops[node.Name]
	for attempt := 1; ; attempt++ {
		if err := r.admit(ctx); err != nil {
			finish(domain.TaskStatusCancelled, err)
			return
		}
		if attempt == 1 {
			out.StartedAt = r.exec.now()
			r.msgs <- nodeMsg{name: node.Name, started: true, outcome: out}
		}

		out.Attempts = attempt
		res, err := r.attempt(ctx, node, op)
		r.sem.Release(1)
		if err == nil {
			out.RowsLoaded = res.RowsLoaded
			finish(domain.TaskStatusSuccess, nil)
			return
		}
		if ctx.Err() != nil {
			finish(domain.TaskStatusCancelled, err)
			return
		}
		if attempt > node.Retry.MaxRetries {
			finish(domain.TaskStatusFailed, err)
			return
		}

		delay := node.Retry.DelayFor(attempt)
		r.obs.OnEvent(obsCtx, Event{
			Type:      EventNodeRetrying,
			RunID:     r.ec.RunID(),
			Pipeline:  r.graph.Name(),
			Time:      r.exec.now(),
			Task:      node.Name,
			Kind:      node.Kind,
			Status:    domain.TaskStatusRunning,
			Attempt:   attempt,
			Err:       err,
			ErrorKind: domain.ErrorKind(err),
			Delay:     delay,
		})
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				finish(domain.TaskStatusCancelled, ctx.Err())
				return
			case <-timer.C:
			}
		}
	}
}

// admit takes a parallelism slot and, when configured, a start-rate token.
// The slot is held for a single attempt so retry delays do not block other
// nodes. On success the caller must release the slot.
func (r *run) admit(ctx context.Context) error {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	// Acquire may succeed concurrently with cancellation.
	if err := ctx.Err(); err != nil {
		r.sem.Release(1)
		return err
	}
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			r.sem.Release(1)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
	return nil
}

// attempt runs one execution of op under the node timeout. Panics become
// errors so one bad operator cannot take the process down.
func (r *run) attempt(ctx context.Context, node domain.TaskNode, op operator.Operator) (res operator.Result, err error) {
	if node.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, node.Timeout)
		defer cancel()
	}
	defer func() {
		if p := recover(); p != nil {
			r.exec.logger.Error("operator panicked", "task", node.Name, "panic", p)
			err = fmt.Errorf("task %s panicked: %v", node.Name, p)
		}
	}()
	return op.Execute(ctx, r.ec)
}
