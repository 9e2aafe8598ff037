package declarative

// Known Kind strings used in YAML documents.
const (
	KindNamePipeline              = "Pipeline"
	KindNameStorageCredentialList = "StorageCredentialList"
)

// SupportedAPIVersion is the current API version for YAML documents.
const SupportedAPIVersion = "duckflow/v1"

// Task kind strings accepted in a task's kind field.
const (
	TaskKindStage         = "stage"
	TaskKindLoadFact      = "load-fact"
	TaskKindLoadDimension = "load-dimension"
	TaskKindQualityGate   = "quality-gate"
	TaskKindNoOp          = "no-op"
)

// Check types accepted in a quality gate's checks list.
const (
	CheckTypeTableNotEmpty   = "table_not_empty"
	CheckTypeColumnNotNull   = "col_not_null"
	CheckTypeRowCountAtLeast = "row_count_at_least"
	CheckTypeExpression      = "expression"
)

var validTaskKinds = map[string]bool{
	TaskKindStage:         true,
	TaskKindLoadFact:      true,
	TaskKindLoadDimension: true,
	TaskKindQualityGate:   true,
	TaskKindNoOp:          true,
}

var validCheckTypes = map[string]bool{
	CheckTypeTableNotEmpty:   true,
	CheckTypeColumnNotNull:   true,
	CheckTypeRowCountAtLeast: true,
	CheckTypeExpression:      true,
}
