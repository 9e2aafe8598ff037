package quality

import (
	"context"
	"log/slog"

	"duckflow/internal/domain"
)

// Querier runs a read-only query. domain.Store satisfies it.
type Querier interface {
	Query(ctx context.Context, stmt string) (*domain.ResultSet, error)
}

// Result is the outcome of a gate. FailedIndex is -1 when every check passed.
type Result struct {
	Passed      bool
	FailedIndex int
	Check       string
	Query       string
	Diagnostic  string
	Observed    string
	Evaluated   int
}

// Gate runs quality checks in order and stops at the first failure.
type Gate struct {
	logger *slog.Logger
}

// NewGate creates a Gate.
func NewGate(logger *slog.Logger) *Gate {
	return &Gate{logger: logger}
}

// Check runs checks against q. On a false predicate it returns a
// *domain.QualityCheckFailedError; when a query cannot run it returns a
// *domain.QueryExecutionError. Later checks are never evaluated. An empty
// check list passes.
func (g *Gate) Check(ctx context.Context, q Querier, checks []domain.QualityCheck) (Result, error) {
	res := Result{Passed: true, FailedIndex: -1}
	for i, c := range checks {
		res.Evaluated = i + 1
		rs, err := q.Query(ctx, c.Query)
		if err != nil {
			res.Passed = false
			res.FailedIndex = i
			res.Check = c.Name
			res.Query = c.Query
			res.Diagnostic = err.Error()
			return res, &domain.QueryExecutionError{Index: i, Check: c.Name, Query: c.Query, Err: err}
		}

		if c.Predicate != nil && c.Predicate(rs) {
			g.logger.DebugContext(ctx, "quality check passed", "index", i, "check", c.Name, "target", c.Target)
			continue
		}

		res.Passed = false
		res.FailedIndex = i
		res.Check = c.Name
		res.Query = c.Query
		res.Diagnostic = Diagnostic(c)
		res.Observed = rs.Summary()
		g.logger.WarnContext(ctx, "quality check failed",
			"index", i, "check", c.Name, "target", c.Target, "observed", res.Observed)
		return res, &domain.QualityCheckFailedError{
			Index:      i,
			Check:      c.Name,
			Query:      c.Query,
			Observed:   res.Observed,
			Diagnostic: res.Diagnostic,
		}
	}
	return res, nil
}
