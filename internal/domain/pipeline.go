package domain

import (
	"time"
	"unicode/utf8"
)

// TaskKind selects the operator variant a task node runs.
type TaskKind string

// Supported task kinds.
const (
	TaskKindStage         TaskKind = "stage"
	TaskKindLoadFact      TaskKind = "load-fact"
	TaskKindLoadDimension TaskKind = "load-dimension"
	TaskKindQualityGate   TaskKind = "quality-gate"
	TaskKindNoOp          TaskKind = "no-op"
)

// Valid reports whether k is a known task kind.
func (k TaskKind) Valid() bool {
	switch k {
	case TaskKindStage, TaskKindLoadFact, TaskKindLoadDimension, TaskKindQualityGate, TaskKindNoOp:
		return true
	}
	return false
}

// TaskStatus is the run-time state of a node within a single run.
type TaskStatus string

// Task status values.
const (
	TaskStatusPending        TaskStatus = "pending"
	TaskStatusRunning        TaskStatus = "running"
	TaskStatusSuccess        TaskStatus = "success"
	TaskStatusFailed         TaskStatus = "failed"
	TaskStatusUpstreamFailed TaskStatus = "upstream-failed"
	TaskStatusSkipped        TaskStatus = "skipped"
	TaskStatusCancelled      TaskStatus = "cancelled"
)

// Terminal reports whether no further transition is possible from s.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusSuccess, TaskStatusFailed, TaskStatusUpstreamFailed, TaskStatusSkipped, TaskStatusCancelled:
		return true
	}
	return false
}

// RunStatus is the overall state of a pipeline run.
type RunStatus string

// Run status values.
const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusSuccess   RunStatus = "success"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Trigger types for pipeline runs.
const (
	TriggerTypeManual    = "MANUAL"
	TriggerTypeScheduled = "SCHEDULED"
)

// UpdateMode selects how a load writes into its target table.
type UpdateMode string

// Update modes.
const (
	UpdateModeAppend    UpdateMode = "append"
	UpdateModeOverwrite UpdateMode = "overwrite"
)

// DataFormat is the file format of a staging source.
type DataFormat string

// Supported staging formats.
const (
	DataFormatCSV  DataFormat = "csv"
	DataFormatJSON DataFormat = "json"
)

// JSONPathsAuto infers JSON field mapping from object keys.
const JSONPathsAuto = "auto"

// CopyOption is an extra key/value option appended to a bulk copy, such as
// TIMEFORMAT epochmillisecs. Order is preserved.
type CopyOption struct {
	Key   string
	Value string
}

// StageConfig configures a staging task.
type StageConfig struct {
	Table        string
	Source       string // location template, e.g. s3://bucket/log_data/{year}/{month}/
	Format       DataFormat
	Delimiter    string
	IgnoreHeader int
	JSONPaths    string
	Options      []CopyOption
	Credential   string
}

// WithDefaults returns a copy of c with the default delimiter and JSON path
// spec filled in.
func (c StageConfig) WithDefaults() StageConfig {
	if c.Format == DataFormatCSV && c.Delimiter == "" {
		c.Delimiter = ","
	}
	if c.Format == DataFormatJSON && c.JSONPaths == "" {
		c.JSONPaths = JSONPathsAuto
	}
	return c
}

// Validate checks that the staging config is well-formed.
func (c *StageConfig) Validate() error {
	if c.Table == "" {
		return ErrValidation("stage: table is required")
	}
	if c.Source == "" {
		return ErrValidation("stage: source is required")
	}
	switch c.Format {
	case DataFormatCSV:
		if c.Delimiter != "" && utf8.RuneCountInString(c.Delimiter) != 1 {
			return ErrValidation("stage: delimiter must be a single character, got %q", c.Delimiter)
		}
	case DataFormatJSON:
	default:
		return ErrValidation("stage: unsupported format %q", c.Format)
	}
	if c.IgnoreHeader < 0 {
		return ErrValidation("stage: ignore_header must be non-negative")
	}
	for _, opt := range c.Options {
		if opt.Key == "" {
			return ErrValidation("stage: copy option key is required")
		}
	}
	return nil
}

// LoadConfig configures a fact or dimension load. Exactly one of Select and
// SelectTemplate is set.
type LoadConfig struct {
	Table          string
	Select         string
	SelectTemplate string
	Mode           UpdateMode
}

// Validate checks that the load config is well-formed. An empty Mode is
// valid and resolves to DefaultLoadMode for the task kind.
func (c *LoadConfig) Validate() error {
	if c.Table == "" {
		return ErrValidation("load: table is required")
	}
	if (c.Select == "") == (c.SelectTemplate == "") {
		return ErrValidation("load %s: exactly one of select and select_template is required", c.Table)
	}
	switch c.Mode {
	case "", UpdateModeAppend, UpdateModeOverwrite:
	default:
		return ErrValidation("load %s: unsupported mode %q", c.Table, c.Mode)
	}
	return nil
}

// QualityCheck is one entry of a data quality gate. Query must return a
// single row; Predicate must be pure.
type QualityCheck struct {
	Name       string
	Target     string // table or table.column
	Query      string
	Predicate  func(*ResultSet) bool
	Diagnostic string // optional override of "<name> failed on <target>"
}

// BackoffKind selects how retry delays grow.
type BackoffKind string

// Backoff kinds.
const (
	BackoffFixed       BackoffKind = "fixed"
	BackoffExponential BackoffKind = "exponential"
)

// RetryPolicy bounds re-execution of a single node.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
	Backoff    BackoffKind
	MaxDelay   time.Duration
}

// Validate checks that the policy is well-formed.
func (p RetryPolicy) Validate() error {
	if p.MaxRetries < 0 {
		return ErrValidation("retries must be non-negative")
	}
	if p.Delay < 0 || p.MaxDelay < 0 {
		return ErrValidation("retry delays must be non-negative")
	}
	switch p.Backoff {
	case "", BackoffFixed, BackoffExponential:
	default:
		return ErrValidation("unsupported backoff %q", p.Backoff)
	}
	return nil
}

// DelayFor returns the wait before retry number retry (1-based).
func (p RetryPolicy) DelayFor(retry int) time.Duration {
	if retry < 1 || p.Delay <= 0 {
		return 0
	}
	d := p.Delay
	if p.Backoff == BackoffExponential {
		for i := 1; i < retry; i++ {
			d *= 2
			if p.MaxDelay > 0 && d >= p.MaxDelay {
				return p.MaxDelay
			}
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// TaskNode is one unit of work in a pipeline graph. Upstream holds names of
// other nodes in the same graph. Run-time status is tracked by the run, never
// on the node.
type TaskNode struct {
	Name     string
	Kind     TaskKind
	Stage    *StageConfig
	Load     *LoadConfig
	Checks   []QualityCheck
	Upstream []string
	Retry    RetryPolicy
	Timeout  time.Duration
}

// Validate checks that the node's kind-specific config is present and valid.
func (n *TaskNode) Validate() error {
	if n.Name == "" {
		return ErrValidation("task name is required")
	}
	if !n.Kind.Valid() {
		return ErrValidation("task %s: unknown kind %q", n.Name, n.Kind)
	}
	if err := n.Retry.Validate(); err != nil {
		return ErrValidation("task %s: %v", n.Name, err)
	}
	if n.Timeout < 0 {
		return ErrValidation("task %s: timeout must be non-negative", n.Name)
	}

	switch n.Kind {
	case TaskKindStage:
		if n.Stage == nil {
			return ErrValidation("task %s: stage config is required", n.Name)
		}
		return n.Stage.Validate()
	case TaskKindLoadFact, TaskKindLoadDimension:
		if n.Load == nil {
			return ErrValidation("task %s: load config is required", n.Name)
		}
		return n.Load.Validate()
	case TaskKindQualityGate:
		if len(n.Checks) == 0 {
			return ErrValidation("task %s: at least one quality check is required", n.Name)
		}
		for i, c := range n.Checks {
			if c.Query == "" || c.Predicate == nil {
				return ErrValidation("task %s: check %d requires a query and a predicate", n.Name, i)
			}
		}
	}
	return nil
}

// DefaultLoadMode is the update mode used when a load leaves Mode empty:
// facts append, dimensions overwrite.
func DefaultLoadMode(kind TaskKind) UpdateMode {
	if kind == TaskKindLoadDimension {
		return UpdateModeOverwrite
	}
	return UpdateModeAppend
}

// PipelineRun represents an execution of a pipeline.
type PipelineRun struct {
	ID           string
	Pipeline     string
	Status       RunStatus
	TriggerType  string
	TriggeredBy  string
	Parameters   map[string]string
	ScheduledAt  time.Time
	StartedAt    *time.Time
	FinishedAt   *time.Time
	ErrorMessage *string
	CreatedAt    time.Time
}

// TaskRun records the outcome of one node within a pipeline run.
type TaskRun struct {
	ID           string
	RunID        string
	TaskName     string
	Kind         TaskKind
	Status       TaskStatus
	Attempts     int
	RowsLoaded   int64
	ErrorKind    string
	ErrorMessage *string
	StartedAt    *time.Time
	FinishedAt   *time.Time
	CreatedAt    time.Time
}

// PipelineRunFilter holds filter parameters for querying pipeline runs.
type PipelineRunFilter struct {
	Pipeline *string
	Status   *RunStatus
	Page     PageRequest
}
