package operator

import (
	"context"

	"duckflow/internal/ddl"
	"duckflow/internal/domain"
	"duckflow/internal/sqltemplate"
)

// Load inserts the rows of a select into a fact or dimension table. In
// overwrite mode the table is cleared in the same transaction, so readers
// see either the old rows or the new ones.
type Load struct {
	kind domain.TaskKind
	cfg  domain.LoadConfig
	sel  *sqltemplate.Template
	deps Deps
}

// NewLoad validates cfg and resolves its select. An empty mode defaults by
// kind: facts append, dimensions overwrite.
func NewLoad(kind domain.TaskKind, cfg domain.LoadConfig, deps Deps) (*Load, error) {
	if cfg.Mode == "" {
		cfg.Mode = domain.DefaultLoadMode(kind)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if _, err := ddl.QualifiedName(cfg.Table); err != nil {
		return nil, domain.ErrValidation("load: %v", err)
	}

	deps = deps.withDefaults()
	var (
		sel *sqltemplate.Template
		err error
	)
	if cfg.SelectTemplate != "" {
		sel, err = deps.Templates.Resolve(cfg.SelectTemplate)
	} else {
		sel, err = sqltemplate.Parse(cfg.Table+".select", sqltemplate.KindSQL, cfg.Select)
	}
	if err != nil {
		return nil, err
	}
	return &Load{kind: kind, cfg: cfg, sel: sel, deps: deps}, nil
}

// Mode returns the effective update mode.
func (l *Load) Mode() domain.UpdateMode { return l.cfg.Mode }

// Execute implements Operator.
func (l *Load) Execute(ctx context.Context, ec domain.ExecutionContext) (Result, error) {
	sel, err := l.sel.Render(ec)
	if err != nil {
		return Result{}, err
	}
	insert, err := ddl.InsertSelect(l.cfg.Table, sel)
	if err != nil {
		return Result{}, err
	}

	stmts := []string{insert}
	if l.cfg.Mode == domain.UpdateModeOverwrite {
		clearStmt, err := ddl.ClearTable(l.deps.Store.Dialect(), l.cfg.Table)
		if err != nil {
			return Result{}, err
		}
		stmts = []string{clearStmt, insert}
	}

	rows, err := runInTx(ctx, l.deps.Store, l.cfg.Table, stmts, nil)
	if err != nil {
		return Result{}, err
	}
	l.deps.Logger.DebugContext(ctx, "loaded", "table", l.cfg.Table, "kind", l.kind, "mode", l.cfg.Mode, "rows", rows)
	return Result{RowsLoaded: rows}, nil
}
