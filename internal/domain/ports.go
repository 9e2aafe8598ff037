package domain

import "context"

// Dialect identifies the SQL flavor of a target store.
type Dialect string

// Supported dialects.
const (
	DialectDuckDB   Dialect = "duckdb"
	DialectPostgres Dialect = "postgres"
	DialectRedshift Dialect = "redshift"
)

// Execer runs a statement and reports the affected row count, or -1 when the
// store does not report one.
type Execer interface {
	Exec(ctx context.Context, stmt string) (int64, error)
}

// Store is a target warehouse. Implementations are safe for concurrent use;
// calls honour context cancellation.
type Store interface {
	Execer
	Query(ctx context.Context, stmt string) (*ResultSet, error)
	// InTx runs fn inside one transaction, committing when fn returns nil.
	InTx(ctx context.Context, fn func(tx Execer) error) error
	Dialect() Dialect
	Close() error
}

// CredentialResolver resolves an opaque credential reference. An empty
// reference resolves to nil (anonymous access).
type CredentialResolver interface {
	Resolve(ctx context.Context, ref string) (*StorageCredential, error)
}

// SourceProber checks that a resolved source location exists and is readable.
type SourceProber interface {
	Probe(ctx context.Context, location string, cred *StorageCredential) error
}

// PipelineRunRepository persists pipeline runs and their task runs.
type PipelineRunRepository interface {
	CreateRun(ctx context.Context, run *PipelineRun) (*PipelineRun, error)
	GetRun(ctx context.Context, id string) (*PipelineRun, error)
	ListRuns(ctx context.Context, filter PipelineRunFilter) ([]PipelineRun, int64, error)
	UpdateRunStatus(ctx context.Context, id string, status RunStatus, errMsg *string) error
	CountActiveRuns(ctx context.Context, pipeline string) (int64, error)
	// FailActiveRuns marks runs left pending or running by a previous
	// process as failed and returns how many were changed.
	FailActiveRuns(ctx context.Context, reason string) (int64, error)
	SaveTaskRun(ctx context.Context, tr *TaskRun) error
	ListTaskRuns(ctx context.Context, runID string) ([]TaskRun, error)
}

// StorageCredentialRepository provides CRUD operations for storage credentials.
type StorageCredentialRepository interface {
	Upsert(ctx context.Context, cred *StorageCredential) (*StorageCredential, error)
	GetByName(ctx context.Context, name string) (*StorageCredential, error)
	List(ctx context.Context, page PageRequest) ([]StorageCredential, int64, error)
	Delete(ctx context.Context, name string) error
}
