package declarative

// Document is the generic envelope parsed first to determine Kind.
type Document struct {
	APIVersion string `yaml:"apiVersion"`
	Kind       string `yaml:"kind"`
}

// ObjectMeta holds common metadata for named resources.
type ObjectMeta struct {
	Name   string            `yaml:"name"`
	Labels map[string]string `yaml:"labels,omitempty"`
}

// === Pipelines ===

// PipelineDoc declares a pipeline.
type PipelineDoc struct {
	APIVersion string       `yaml:"apiVersion"`
	Kind       string       `yaml:"kind"`
	Metadata   ObjectMeta   `yaml:"metadata"`
	Spec       PipelineSpec `yaml:"spec"`
}

// PipelineSpec holds the configuration for a pipeline.
type PipelineSpec struct {
	Description string `yaml:"description,omitempty"`
	// Schedule is a five-field cron expression or a descriptor like @monthly.
	Schedule      string            `yaml:"schedule,omitempty"`
	IsPaused      bool              `yaml:"is_paused,omitempty"`
	MaxActiveRuns *int              `yaml:"max_active_runs,omitempty"`
	MaxParallel   *int              `yaml:"max_parallel,omitempty"`
	StartRate     float64           `yaml:"start_rate,omitempty"` // task starts per second, 0 = unlimited
	Params        map[string]string `yaml:"params,omitempty"`
	Defaults      TaskDefaults      `yaml:"defaults,omitempty"`
	Tasks         []TaskSpec        `yaml:"tasks"`
}

// TaskDefaults apply to every task that leaves the field unset.
type TaskDefaults struct {
	Retries       *int   `yaml:"retries,omitempty"`
	RetryDelay    string `yaml:"retry_delay,omitempty"`
	Backoff       string `yaml:"backoff,omitempty"` // fixed or exponential
	MaxRetryDelay string `yaml:"max_retry_delay,omitempty"`
	Timeout       string `yaml:"timeout,omitempty"`
	Credential    string `yaml:"credential,omitempty"`
}

// TaskSpec describes a single task within a pipeline.
type TaskSpec struct {
	Name       string      `yaml:"name"`
	Kind       string      `yaml:"kind"`
	DependsOn  []string    `yaml:"depends_on,omitempty"`
	Retries    *int        `yaml:"retries,omitempty"`
	RetryDelay string      `yaml:"retry_delay,omitempty"`
	Backoff    string      `yaml:"backoff,omitempty"`
	Timeout    string      `yaml:"timeout,omitempty"`
	Stage      *StageSpec  `yaml:"stage,omitempty"`
	Load       *LoadSpec   `yaml:"load,omitempty"`
	Checks     []CheckSpec `yaml:"checks,omitempty"`
}

// StageSpec configures a stage task.
type StageSpec struct {
	Table        string       `yaml:"table"`
	Source       string       `yaml:"source"`
	Format       string       `yaml:"format,omitempty"` // csv or json
	Delimiter    string       `yaml:"delimiter,omitempty"`
	IgnoreHeader int          `yaml:"ignore_header,omitempty"`
	JSONPaths    string       `yaml:"json_paths,omitempty"`
	Options      []OptionSpec `yaml:"options,omitempty"`
	Credential   string       `yaml:"credential,omitempty"`
}

// OptionSpec is one extra bulk-copy option, kept in declaration order.
type OptionSpec struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value,omitempty"`
}

// LoadSpec configures a load-fact or load-dimension task. Exactly one of
// Select and Template is set.
type LoadSpec struct {
	Table    string `yaml:"table"`
	Select   string `yaml:"select,omitempty"`
	Template string `yaml:"template,omitempty"`
	Mode     string `yaml:"mode,omitempty"` // append or overwrite
}

// CheckSpec describes one quality check of a quality-gate task.
type CheckSpec struct {
	Type   string `yaml:"type"`
	Name   string `yaml:"name,omitempty"`
	Table  string `yaml:"table,omitempty"`
	Column string `yaml:"column,omitempty"`
	Min    *int64 `yaml:"min,omitempty"`
	Query  string `yaml:"query,omitempty"`
	Expr   string `yaml:"expr,omitempty"`
}

// === Credentials ===

// StorageCredentialListDoc declares storage credentials whose secrets are
// read from environment variables.
type StorageCredentialListDoc struct {
	APIVersion  string                  `yaml:"apiVersion"`
	Kind        string                  `yaml:"kind"`
	Credentials []StorageCredentialSpec `yaml:"credentials"`
}

// StorageCredentialSpec describes a single storage credential.
type StorageCredentialSpec struct {
	Name           string               `yaml:"name"`
	CredentialType string               `yaml:"credential_type"` // S3, AZURE, GCS
	S3             *S3CredentialSpec    `yaml:"s3,omitempty"`
	Azure          *AzureCredentialSpec `yaml:"azure,omitempty"`
	GCS            *GCSCredentialSpec   `yaml:"gcs,omitempty"`
}

// S3CredentialSpec holds S3-compatible credential references.
type S3CredentialSpec struct {
	KeyIDFromEnv        string `yaml:"key_id_from_env,omitempty"`
	SecretFromEnv       string `yaml:"secret_from_env,omitempty"`
	SessionTokenFromEnv string `yaml:"session_token_from_env,omitempty"`
	Endpoint            string `yaml:"endpoint,omitempty"`
	Region              string `yaml:"region,omitempty"`
	URLStyle            string `yaml:"url_style,omitempty"`
}

// AzureCredentialSpec holds Azure credential references.
type AzureCredentialSpec struct {
	AccountNameFromEnv string `yaml:"account_name_from_env"`
	AccountKeyFromEnv  string `yaml:"account_key_from_env"`
}

// GCSCredentialSpec holds GCS credential references.
type GCSCredentialSpec struct {
	KeyFilePath string `yaml:"key_file_path"`
}

// === State Containers ===

// DesiredState is the fully-parsed representation of all YAML files.
type DesiredState struct {
	Pipelines   []PipelineResource
	Credentials []StorageCredentialSpec
}

// PipelineResource is a pipeline with the file it was read from.
type PipelineResource struct {
	Name     string
	FilePath string
	Spec     PipelineSpec
}
