// Package domain defines core types, interfaces, and errors for the pipeline engine.
package domain

import (
	"context"
	"errors"
	"fmt"
)

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ValidationError indicates invalid input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ConflictError indicates a conflict (e.g., duplicate resource).
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a formatted message.
func ErrConflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// === Operator error taxonomy ===

// UnknownTemplateError is returned when a template name is absent from the catalog.
type UnknownTemplateError struct {
	Name string
}

func (e *UnknownTemplateError) Error() string {
	return fmt.Sprintf("unknown template %q", e.Name)
}

// TemplateResolutionError indicates a missing or invalid run-time parameter
// while rendering a template.
type TemplateResolutionError struct {
	Template string
	Param    string
	Reason   string
}

func (e *TemplateResolutionError) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("resolve template %q: %s", e.Template, e.Reason)
	}
	return fmt.Sprintf("resolve template %q: parameter %q: %s", e.Template, e.Param, e.Reason)
}

// SourceUnavailableError indicates the object-store source is missing or unauthorized.
type SourceUnavailableError struct {
	URI string
	Err error
}

func (e *SourceUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("source unavailable: %s", e.URI)
	}
	return fmt.Sprintf("source unavailable: %s: %v", e.URI, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }

// StoreExecutionError indicates a statement failed at the target store.
// Statement carries the offending text with credentials redacted.
type StoreExecutionError struct {
	Table     string
	Statement string
	Err       error
}

func (e *StoreExecutionError) Error() string {
	return fmt.Sprintf("store execution failed on table %q: %v\nstatement: %s", e.Table, e.Err, e.Statement)
}

func (e *StoreExecutionError) Unwrap() error { return e.Err }

// QualityCheckFailedError indicates a quality predicate returned false.
type QualityCheckFailedError struct {
	Index      int
	Check      string
	Query      string
	Observed   string
	Diagnostic string
}

func (e *QualityCheckFailedError) Error() string {
	return fmt.Sprintf("quality check %d (%s): %s (observed %s)", e.Index, e.Check, e.Diagnostic, e.Observed)
}

// QueryExecutionError indicates a quality check query could not be executed.
// It is distinct from a predicate failure.
type QueryExecutionError struct {
	Index int
	Check string
	Query string
	Err   error
}

func (e *QueryExecutionError) Error() string {
	return fmt.Sprintf("quality check %d (%s): query failed: %v\nquery: %s", e.Index, e.Check, e.Err, e.Query)
}

func (e *QueryExecutionError) Unwrap() error { return e.Err }

// Error kind names used in run reports, persisted task runs and metric labels.
const (
	ErrorKindUnknownTemplate    = "UnknownTemplate"
	ErrorKindTemplateResolution = "TemplateResolutionError"
	ErrorKindSourceUnavailable  = "SourceUnavailableError"
	ErrorKindStoreExecution     = "StoreExecutionError"
	ErrorKindQualityCheckFailed = "QualityCheckFailed"
	ErrorKindQueryExecution     = "QueryExecutionError"
	ErrorKindValidation         = "ValidationError"
	ErrorKindNotFound           = "NotFoundError"
	ErrorKindCancelled          = "Cancelled"
	ErrorKindTimeout            = "Timeout"
	ErrorKindInternal           = "InternalError"
)

// ErrorKind classifies err into one of the ErrorKind* names.
// Returns the empty string for a nil error.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}

	var (
		unknownTmpl *UnknownTemplateError
		tmplErr     *TemplateResolutionError
		srcErr      *SourceUnavailableError
		storeErr    *StoreExecutionError
		checkErr    *QualityCheckFailedError
		queryErr    *QueryExecutionError
		valErr      *ValidationError
		nfErr       *NotFoundError
	)

	// Quality errors wrap store errors, so they are matched first.
	switch {
	case errors.As(err, &checkErr):
		return ErrorKindQualityCheckFailed
	case errors.As(err, &queryErr):
		return ErrorKindQueryExecution
	case errors.As(err, &unknownTmpl):
		return ErrorKindUnknownTemplate
	case errors.As(err, &tmplErr):
		return ErrorKindTemplateResolution
	case errors.As(err, &srcErr):
		return ErrorKindSourceUnavailable
	case errors.As(err, &storeErr):
		if isContextErr(storeErr.Err) {
			return contextKind(storeErr.Err)
		}
		return ErrorKindStoreExecution
	case errors.As(err, &valErr):
		return ErrorKindValidation
	case errors.As(err, &nfErr):
		return ErrorKindNotFound
	case isContextErr(err):
		return contextKind(err)
	default:
		return ErrorKindInternal
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func contextKind(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindTimeout
	}
	return ErrorKindCancelled
}
