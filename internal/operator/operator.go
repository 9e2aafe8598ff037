// Package operator implements the task operators of a pipeline: staging,
// fact and dimension loads, the quality gate and no-op markers. Every
// variant satisfies one Operator contract and is selected by task kind.
package operator

import (
	"context"
	"log/slog"

	"duckflow/internal/domain"
	"duckflow/internal/quality"
	"duckflow/internal/sqltemplate"
)

// Result reports what an operator did. RowsLoaded is -1 when the store does
// not report a count.
type Result struct {
	RowsLoaded int64
}

// Operator executes one task against the target store.
type Operator interface {
	Execute(ctx context.Context, ec domain.ExecutionContext) (Result, error)
}

// Deps holds the collaborators shared by every operator of a pipeline.
type Deps struct {
	Store       domain.Store
	Templates   *sqltemplate.Catalog
	Credentials domain.CredentialResolver
	Prober      domain.SourceProber
	Logger      *slog.Logger
}

// Factory builds operators for task nodes.
type Factory struct {
	deps Deps
	gate *quality.Gate
}

func (d Deps) withDefaults() Deps {
	if d.Templates == nil {
		d.Templates = sqltemplate.NewCatalog()
	}
	if d.Logger == nil {
		d.Logger = slog.New(slog.DiscardHandler)
	}
	return d
}

// NewFactory creates a Factory.
func NewFactory(deps Deps) *Factory {
	deps = deps.withDefaults()
	return &Factory{deps: deps, gate: quality.NewGate(deps.Logger)}
}

// Build returns the operator for node. Configuration problems, including
// unknown select templates, are reported here rather than at run time.
func (f *Factory) Build(node domain.TaskNode) (Operator, error) {
	if err := node.Validate(); err != nil {
		return nil, err
	}
	switch node.Kind {
	case domain.TaskKindStage:
		return NewStage(*node.Stage, f.deps)
	case domain.TaskKindLoadFact, domain.TaskKindLoadDimension:
		return NewLoad(node.Kind, *node.Load, f.deps)
	case domain.TaskKindQualityGate:
		return &QualityGate{checks: node.Checks, store: f.deps.Store, gate: f.gate}, nil
	case domain.TaskKindNoOp:
		return NoOp{}, nil
	default:
		return nil, domain.ErrValidation("task %s: unknown kind %q", node.Name, node.Kind)
	}
}

// NoOp marks a point in the graph, such as the begin and end of a run.
type NoOp struct{}

// Execute implements Operator.
func (NoOp) Execute(context.Context, domain.ExecutionContext) (Result, error) {
	return Result{}, nil
}

// QualityGate runs its checks in order and fails on the first one that does
// not hold.
type QualityGate struct {
	checks []domain.QualityCheck
	store  domain.Store
	gate   *quality.Gate
}

// Execute implements Operator.
func (g *QualityGate) Execute(ctx context.Context, _ domain.ExecutionContext) (Result, error) {
	if _, err := g.gate.Check(ctx, g.store, g.checks); err != nil {
		return Result{}, err
	}
	return Result{}, nil
}
