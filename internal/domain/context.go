package domain

import (
	"regexp"
	"strconv"
	"time"
)

// paramNameRe restricts user-supplied parameter names to identifier form.
var paramNameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Built-in execution parameter names derived from the scheduled timestamp.
var builtinParams = map[string]struct{}{
	"ds": {}, "ds_nodash": {}, "year": {}, "month": {}, "mm": {},
	"day": {}, "dd": {}, "hour": {}, "ts": {}, "run_id": {}, "pipeline": {},
}

// IsBuiltinParam reports whether name is derived from the run and cannot be
// supplied by the user.
func IsBuiltinParam(name string) bool {
	_, ok := builtinParams[name]
	return ok
}

// ExecutionContext carries per-run parameters threaded into template
// resolution. It is immutable once constructed.
type ExecutionContext struct {
	runID       string
	pipeline    string
	scheduledAt time.Time
	params      map[string]string
}

// NewExecutionContext builds an ExecutionContext for one run. User params may
// not shadow the built-in parameters and must have identifier-shaped names.
func NewExecutionContext(runID, pipeline string, scheduledAt time.Time, params map[string]string) (ExecutionContext, error) {
	ec := ExecutionContext{
		runID:       runID,
		pipeline:    pipeline,
		scheduledAt: scheduledAt.UTC(),
		params:      make(map[string]string, len(params)+len(builtinParams)),
	}

	for k, v := range params {
		if !paramNameRe.MatchString(k) {
			return ExecutionContext{}, ErrValidation("invalid parameter name %q", k)
		}
		if _, reserved := builtinParams[k]; reserved {
			return ExecutionContext{}, ErrValidation("parameter %q is reserved", k)
		}
		ec.params[k] = v
	}

	t := ec.scheduledAt
	ec.params["ds"] = t.Format("2006-01-02")
	ec.params["ds_nodash"] = t.Format("20060102")
	ec.params["year"] = strconv.Itoa(t.Year())
	ec.params["month"] = strconv.Itoa(int(t.Month()))
	ec.params["mm"] = t.Format("01")
	ec.params["day"] = strconv.Itoa(t.Day())
	ec.params["dd"] = t.Format("02")
	ec.params["hour"] = t.Format("15")
	ec.params["ts"] = t.Format(time.RFC3339)
	ec.params["run_id"] = runID
	ec.params["pipeline"] = pipeline
	return ec, nil
}

// RunID returns the run identifier.
func (c ExecutionContext) RunID() string { return c.runID }

// Pipeline returns the pipeline name.
func (c ExecutionContext) Pipeline() string { return c.pipeline }

// ScheduledAt returns the scheduled (logical) timestamp of the run in UTC.
func (c ExecutionContext) ScheduledAt() time.Time { return c.scheduledAt }

// Param looks up a template parameter.
func (c ExecutionContext) Param(name string) (string, bool) {
	v, ok := c.params[name]
	return v, ok
}

// Params returns a copy of all template parameters.
func (c ExecutionContext) Params() map[string]string {
	out := make(map[string]string, len(c.params))
	for k, v := range c.params {
		out[k] = v
	}
	return out
}

// UserParams returns the caller-supplied parameters, excluding built-ins.
func (c ExecutionContext) UserParams() map[string]string {
	out := map[string]string{}
	for k, v := range c.params {
		if _, builtin := builtinParams[k]; !builtin {
			out[k] = v
		}
	}
	return out
}
