package declarative

import (
	"fmt"
	"strings"
	"time"

	"duckflow/internal/domain"
	"duckflow/internal/service/pipeline"
)

// ValidationError represents a single validation problem.
type ValidationError struct {
	Path    string // e.g. "pipeline[sparkify].task[Stage_events]"
	Message string
}

func (e ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

var validLoadModes = map[string]bool{
	"":                                 true,
	string(domain.UpdateModeAppend):    true,
	string(domain.UpdateModeOverwrite): true,
}

var validFormats = map[string]bool{
	"":                            true,
	string(domain.DataFormatCSV):  true,
	string(domain.DataFormatJSON): true,
}

var validBackoffs = map[string]bool{
	"":                                true,
	string(domain.BackoffFixed):       true,
	string(domain.BackoffExponential): true,
}

// Validate checks the desired state for structural problems and returns
// every problem found. An empty result means the state can be compiled.
func Validate(state *DesiredState) []ValidationError {
	var errs []ValidationError

	seen := make(map[string]bool, len(state.Pipelines))
	for _, p := range state.Pipelines {
		path := fmt.Sprintf("pipeline[%s]", p.Name)
		if seen[p.Name] {
			addErr(&errs, path, "duplicate pipeline name")
			continue
		}
		seen[p.Name] = true
		validatePipeline(path, p.Spec, &errs)
	}

	validateStorageCredentials(state.Credentials, &errs)
	return errs
}

func addErr(errs *[]ValidationError, path, msg string, args ...any) {
	*errs = append(*errs, ValidationError{Path: path, Message: fmt.Sprintf(msg, args...)})
}

func validateDuration(errs *[]ValidationError, path, field, value string) {
	if value == "" {
		return
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		addErr(errs, path, "%s: invalid duration %q", field, value)
		return
	}
	if d < 0 {
		addErr(errs, path, "%s: must be non-negative", field)
	}
}

func validatePipeline(path string, spec PipelineSpec, errs *[]ValidationError) {
	if spec.Schedule != "" {
		if err := pipeline.ValidateSchedule(spec.Schedule); err != nil {
			addErr(errs, path, "schedule: %v", err)
		}
	}
	if spec.MaxActiveRuns != nil && *spec.MaxActiveRuns < 1 {
		addErr(errs, path, "max_active_runs must be at least 1")
	}
	if spec.MaxParallel != nil && *spec.MaxParallel < 1 {
		addErr(errs, path, "max_parallel must be at least 1")
	}
	if spec.StartRate < 0 {
		addErr(errs, path, "start_rate must be non-negative")
	}
	for k := range spec.Params {
		if domain.IsBuiltinParam(k) {
			addErr(errs, path, "params: %q is reserved", k)
		}
	}

	d := spec.Defaults
	if d.Retries != nil && *d.Retries < 0 {
		addErr(errs, path, "defaults.retries must be non-negative")
	}
	if !validBackoffs[d.Backoff] {
		addErr(errs, path, "defaults.backoff: unsupported value %q", d.Backoff)
	}
	validateDuration(errs, path, "defaults.retry_delay", d.RetryDelay)
	validateDuration(errs, path, "defaults.max_retry_delay", d.MaxRetryDelay)
	validateDuration(errs, path, "defaults.timeout", d.Timeout)

	if len(spec.Tasks) == 0 {
		addErr(errs, path, "at least one task is required")
		return
	}

	names := make(map[string]bool, len(spec.Tasks))
	for _, t := range spec.Tasks {
		if t.Name == "" {
			addErr(errs, path, "task name is required")
			continue
		}
		if names[t.Name] {
			addErr(errs, path, "duplicate task name %q", t.Name)
		}
		names[t.Name] = true
	}

	nodes := make([]domain.TaskNode, 0, len(spec.Tasks))
	depsOK := true
	for _, t := range spec.Tasks {
		if t.Name == "" {
			continue
		}
		taskPath := fmt.Sprintf("%s.task[%s]", path, t.Name)
		validateTask(taskPath, t, errs)
		for _, dep := range t.DependsOn {
			switch {
			case dep == t.Name:
				addErr(errs, taskPath, "depends_on: task cannot depend on itself")
				depsOK = false
			case !names[dep]:
				addErr(errs, taskPath, "depends_on: unknown task %q", dep)
				depsOK = false
			}
		}
		nodes = append(nodes, domain.TaskNode{Name: t.Name, Kind: domain.TaskKindNoOp, Upstream: t.DependsOn})
	}

	if depsOK && len(names) == len(nodes) {
		if _, err := pipeline.ResolveExecutionOrder(nodes); err != nil {
			addErr(errs, path, "%v", err)
		}
	}
}

func validateTask(path string, t TaskSpec, errs *[]ValidationError) {
	if !validTaskKinds[t.Kind] {
		addErr(errs, path, "unknown kind %q", t.Kind)
		return
	}
	if t.Retries != nil && *t.Retries < 0 {
		addErr(errs, path, "retries must be non-negative")
	}
	if !validBackoffs[t.Backoff] {
		addErr(errs, path, "backoff: unsupported value %q", t.Backoff)
	}
	validateDuration(errs, path, "retry_delay", t.RetryDelay)
	validateDuration(errs, path, "timeout", t.Timeout)

	hasStage, hasLoad, hasChecks := t.Stage != nil, t.Load != nil, len(t.Checks) > 0
	switch t.Kind {
	case TaskKindStage:
		if !hasStage {
			addErr(errs, path, "stage block is required")
			return
		}
		if hasLoad || hasChecks {
			addErr(errs, path, "stage task cannot declare load or checks")
		}
		validateStage(path, *t.Stage, errs)
	case TaskKindLoadFact, TaskKindLoadDimension:
		if !hasLoad {
			addErr(errs, path, "load block is required")
			return
		}
		if hasStage || hasChecks {
			addErr(errs, path, "load task cannot declare stage or checks")
		}
		validateLoad(path, *t.Load, errs)
	case TaskKindQualityGate:
		if !hasChecks {
			addErr(errs, path, "at least one check is required")
			return
		}
		if hasStage || hasLoad {
			addErr(errs, path, "quality-gate task cannot declare stage or load")
		}
		for i, c := range t.Checks {
			validateCheck(fmt.Sprintf("%s.check[%d]", path, i), c, errs)
		}
	case TaskKindNoOp:
		if hasStage || hasLoad || hasChecks {
			addErr(errs, path, "no-op task takes no configuration")
		}
	}
}

func validateStage(path string, s StageSpec, errs *[]ValidationError) {
	if s.Table == "" {
		addErr(errs, path, "stage.table is required")
	}
	if s.Source == "" {
		addErr(errs, path, "stage.source is required")
	}
	if !validFormats[strings.ToLower(s.Format)] {
		addErr(errs, path, "stage.format: unsupported value %q", s.Format)
	}
	if s.IgnoreHeader < 0 {
		addErr(errs, path, "stage.ignore_header must be non-negative")
	}
	for i, o := range s.Options {
		if o.Key == "" {
			addErr(errs, path, "stage.options[%d]: key is required", i)
		}
	}
}

func validateLoad(path string, l LoadSpec, errs *[]ValidationError) {
	if l.Table == "" {
		addErr(errs, path, "load.table is required")
	}
	if (l.Select == "") == (l.Template == "") {
		addErr(errs, path, "load: exactly one of select and template is required")
	}
	if !validLoadModes[l.Mode] {
		addErr(errs, path, "load.mode: unsupported value %q", l.Mode)
	}
}

func validateCheck(path string, c CheckSpec, errs *[]ValidationError) {
	if !validCheckTypes[c.Type] {
		addErr(errs, path, "unknown check type %q", c.Type)
		return
	}
	switch c.Type {
	case CheckTypeTableNotEmpty:
		if c.Table == "" {
			addErr(errs, path, "table is required")
		}
	case CheckTypeColumnNotNull:
		if c.Table == "" || c.Column == "" {
			addErr(errs, path, "table and column are required")
		}
	case CheckTypeRowCountAtLeast:
		if c.Table == "" {
			addErr(errs, path, "table is required")
		}
		if c.Min == nil || *c.Min < 0 {
			addErr(errs, path, "min must be set and non-negative")
		}
	case CheckTypeExpression:
		if c.Name == "" || c.Query == "" || c.Expr == "" {
			addErr(errs, path, "name, query and expr are required")
		}
	}
}

func validateStorageCredentials(creds []StorageCredentialSpec, errs *[]ValidationError) {
	seen := make(map[string]bool, len(creds))
	for _, c := range creds {
		path := fmt.Sprintf("storage_credential[%s]", c.Name)
		if c.Name == "" {
			addErr(errs, "storage_credential", "name is required")
			continue
		}
		if seen[c.Name] {
			addErr(errs, path, "duplicate credential name")
		}
		seen[c.Name] = true

		switch domain.CredentialType(c.CredentialType) {
		case domain.CredentialTypeS3:
			if c.S3 == nil {
				addErr(errs, path, "s3 block is required")
			} else if (c.S3.KeyIDFromEnv == "") != (c.S3.SecretFromEnv == "") {
				addErr(errs, path, "s3: key_id_from_env and secret_from_env must be set together")
			}
		case domain.CredentialTypeAzure:
			if c.Azure == nil || c.Azure.AccountNameFromEnv == "" || c.Azure.AccountKeyFromEnv == "" {
				addErr(errs, path, "azure block with account_name_from_env and account_key_from_env is required")
			}
		case domain.CredentialTypeGCS:
			if c.GCS == nil || c.GCS.KeyFilePath == "" {
				addErr(errs, path, "gcs block with key_file_path is required")
			}
		default:
			addErr(errs, path, "unsupported credential_type %q", c.CredentialType)
		}
	}
}
