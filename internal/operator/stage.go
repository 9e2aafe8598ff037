package operator

import (
	"context"
	"errors"

	"duckflow/internal/ddl"
	"duckflow/internal/domain"
	"duckflow/internal/sqltemplate"
)

// Stage copies an object-store location into a staging table. The table is
// always cleared first; clear and copy run in one transaction, so a failed
// attempt leaves the previous contents and can be retried from scratch.
type Stage struct {
	cfg    domain.StageConfig
	source *sqltemplate.Template
	deps   Deps
}

// NewStage validates cfg and parses its source location template.
func NewStage(cfg domain.StageConfig, deps Deps) (*Stage, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if _, err := ddl.QualifiedName(cfg.Table); err != nil {
		return nil, domain.ErrValidation("stage: %v", err)
	}
	src, err := sqltemplate.Parse(cfg.Table+".source", sqltemplate.KindLocation, cfg.Source)
	if err != nil {
		return nil, err
	}
	return &Stage{cfg: cfg, source: src, deps: deps.withDefaults()}, nil
}

// Execute implements Operator.
func (s *Stage) Execute(ctx context.Context, ec domain.ExecutionContext) (Result, error) {
	location, err := s.source.Render(ec)
	if err != nil {
		return Result{}, err
	}

	var cred *domain.StorageCredential
	if s.deps.Credentials != nil {
		cred, err = s.deps.Credentials.Resolve(ctx, s.cfg.Credential)
		if err != nil {
			var nf *domain.NotFoundError
			if errors.As(err, &nf) {
				return Result{}, &domain.SourceUnavailableError{URI: location, Err: err}
			}
			return Result{}, err
		}
	}

	if s.deps.Prober != nil {
		if err := s.deps.Prober.Probe(ctx, location, cred); err != nil {
			return Result{}, err
		}
	}

	dialect := s.deps.Store.Dialect()
	clearStmt, err := ddl.ClearTable(dialect, s.cfg.Table)
	if err != nil {
		return Result{}, err
	}
	copies, err := ddl.BulkCopy(dialect, ddl.CopySpec{
		Table:        s.cfg.Table,
		Location:     location,
		Format:       s.cfg.Format,
		Delimiter:    s.cfg.Delimiter,
		IgnoreHeader: s.cfg.IgnoreHeader,
		JSONPaths:    s.cfg.JSONPaths,
		Options:      s.cfg.Options,
		Credential:   cred,
	})
	if err != nil {
		return Result{}, err
	}

	rows, err := runInTx(ctx, s.deps.Store, s.cfg.Table, append([]string{clearStmt}, copies...), cred)
	if err != nil {
		return Result{}, err
	}
	s.deps.Logger.DebugContext(ctx, "staged", "table", s.cfg.Table, "source", location, "rows", rows)
	return Result{RowsLoaded: rows}, nil
}
