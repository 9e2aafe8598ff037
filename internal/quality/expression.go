package quality

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"duckflow/internal/domain"
)

const (
	defaultExprMaxSteps = uint64(10_000)
	defaultExprTimeout  = time.Second
	maxExprBytes        = 4 * 1024
)

// Expression builds a check whose predicate is a Starlark boolean expression
// evaluated over the first row of query. Column names are bound as
// lower-cased globals, along with row_count (rows returned). An expression
// that fails to evaluate or yields a non-bool counts as a failed check.
//
//	Expression("recent_rows", "SELECT COUNT(*) AS n FROM songplays", "n >= 100")
func Expression(name, query, expr string) (domain.QualityCheck, error) {
	if strings.TrimSpace(query) == "" {
		return domain.QualityCheck{}, domain.ErrValidation("expression check %q: query is required", name)
	}
	if len(expr) > maxExprBytes {
		return domain.QualityCheck{}, domain.ErrValidation("expression check %q exceeds %d bytes", name, maxExprBytes)
	}
	opts := &syntax.FileOptions{}
	parsed, err := opts.ParseExpr(name+".star", expr, 0)
	if err != nil {
		return domain.QualityCheck{}, domain.ErrValidation("expression check %q: %v", name, err)
	}

	return domain.QualityCheck{
		Name:   name,
		Target: expr,
		Query:  query,
		Predicate: func(rs *domain.ResultSet) bool {
			ok, err := evalBool(opts, name, parsed, rs)
			return err == nil && ok
		},
		Diagnostic: fmt.Sprintf("%s failed: %s", name, expr),
	}, nil
}

func evalBool(opts *syntax.FileOptions, name string, expr syntax.Expr, rs *domain.ResultSet) (bool, error) {
	env := starlark.StringDict{}
	rowCount := 0
	if rs != nil {
		rowCount = len(rs.Rows)
	}
	env["row_count"] = starlark.MakeInt(rowCount)
	for col, v := range rs.FirstRow() {
		env[strings.ToLower(col)] = toStarlark(v)
	}

	thread := &starlark.Thread{Name: "quality-" + name}
	thread.SetMaxExecutionSteps(defaultExprMaxSteps)

	var result starlark.Value
	err := runWithTimeout(thread, defaultExprTimeout, func() error {
		v, err := starlark.EvalExprOptions(opts, thread, expr, env)
		result = v
		return err
	})
	if err != nil {
		return false, err
	}
	b, ok := result.(starlark.Bool)
	if !ok {
		return false, fmt.Errorf("expression returned %s, want bool", result.Type())
	}
	return bool(b), nil
}

func toStarlark(v any) starlark.Value {
	switch x := v.(type) {
	case nil:
		return starlark.None
	case bool:
		return starlark.Bool(x)
	case float32:
		return starlark.Float(x)
	case float64:
		return starlark.Float(x)
	case string:
		return starlark.String(x)
	case []byte:
		return starlark.String(string(x))
	case *big.Int:
		if x == nil {
			return starlark.None
		}
		return starlark.MakeBigInt(x)
	case time.Time:
		return starlark.String(x.UTC().Format(time.RFC3339))
	}
	if n, ok := domain.ToInt64(v); ok {
		return starlark.MakeInt64(n)
	}
	return starlark.String(fmt.Sprint(v))
}

func runWithTimeout(thread *starlark.Thread, timeout time.Duration, fn func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		thread.Cancel("expression timed out")
		<-done
		return fmt.Errorf("expression timed out after %s", timeout)
	}
}
