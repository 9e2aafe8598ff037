package operator

import (
	"context"
	"errors"

	"duckflow/internal/ddl"
	"duckflow/internal/domain"
)

// runInTx executes stmts in order inside one transaction and returns the
// row count reported by the last statement. Statement failures become
// StoreExecutionErrors with secrets from cred redacted.
func runInTx(ctx context.Context, store domain.Store, table string, stmts []string, cred *domain.StorageCredential) (int64, error) {
	var rows int64
	err := store.InTx(ctx, func(tx domain.Execer) error {
		for _, stmt := range stmts {
			n, err := tx.Exec(ctx, stmt)
			if err != nil {
				return &domain.StoreExecutionError{
					Table:     table,
					Statement: ddl.Redact(stmt, cred),
					Err:       redact(err, cred),
				}
			}
			rows = n
		}
		return nil
	})
	if err == nil {
		return rows, nil
	}
	var storeErr *domain.StoreExecutionError
	if errors.As(err, &storeErr) {
		return 0, err
	}
	return 0, &domain.StoreExecutionError{Table: table, Statement: "COMMIT", Err: redact(err, cred)}
}

// redactedError hides credential material in a driver error message while
// keeping the original error in the chain.
type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

func redact(err error, cred *domain.StorageCredential) error {
	msg := ddl.Redact(err.Error(), cred)
	if msg == err.Error() {
		return err
	}
	return &redactedError{msg: msg, err: err}
}
