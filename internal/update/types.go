package update

import (
	"time"

	"github.com/driftline/driftsync/internal/detect"
	"github.com/driftline/driftsync/internal/entity"
)

// Operation is one planned action derived from an EntityChange, carrying
// everything needed to invoke the matching handler.
type Operation struct {
	EntityID   string            `json:"entity_id"`
	EntityType string            `json:"entity_type"`
	ChangeType detect.ChangeType `json:"change_type"`

	// SourceData is the source-side payload (the change's new data).
	SourceData entity.Record `json:"source_data,omitempty"`

	// TargetData is the previously-known target-side payload (old data).
	TargetData entity.Record `json:"target_data,omitempty"`

	Priority int `json:"priority"`
}

// Settings tunes plan construction and execution.
type Settings struct {
	// Component labels mappings and audit records created by the run.
	Component string `json:"component,omitempty"`

	// MaxBatchSize caps every strategy's batch size when > 0.
	MaxBatchSize int `json:"max_batch_size,omitempty"`
}

// Plan is a dependency-ordered, batched set of operations ready for
// execution. Immutable once built.
type Plan struct {
	PlanID      string      `json:"plan_id"`
	CreatedAt   time.Time   `json:"created_at"`
	EntityTypes []string    `json:"entity_types"`
	Operations  []Operation `json:"operations"`

	// DependencyOrder is a topological order of EntityTypes: a type never
	// precedes a type it depends on.
	DependencyOrder []string `json:"dependency_order"`

	// EstimatedDuration is a coarse reporting heuristic, never used for
	// correctness.
	EstimatedDuration time.Duration `json:"estimated_duration"`

	Settings Settings `json:"settings"`
}

// ResultStatus is the terminal status of a plan execution.
type ResultStatus string

const (
	// ResultCompleted means zero operation failures.
	ResultCompleted ResultStatus = "completed"

	// ResultFailed means at least one operation failed; it is not total
	// loss - completed counts still reflect the operations that ran.
	ResultFailed ResultStatus = "failed"
)

// OperationError carries enough context to retry a failed operation
// manually.
type OperationError struct {
	EntityType string            `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	ChangeType detect.ChangeType `json:"change_type"`
	Message    string            `json:"message"`
}

// Metrics summarizes execution performance for reporting.
type Metrics struct {
	Duration       time.Duration            `json:"duration"`
	DurationByType map[string]time.Duration `json:"duration_by_type,omitempty"`
}

// Result records the outcome of one plan execution.
type Result struct {
	PlanID              string           `json:"plan_id"`
	StartedAt           time.Time        `json:"started_at"`
	CompletedAt         time.Time        `json:"completed_at"`
	Status              ResultStatus     `json:"status"`
	DryRun              bool             `json:"dry_run"`
	OperationsCompleted int              `json:"operations_completed"`
	OperationsFailed    int              `json:"operations_failed"`
	OperationsSkipped   int              `json:"operations_skipped"`
	Errors              []OperationError `json:"errors,omitempty"`
	Warnings            []string         `json:"warnings,omitempty"`
	Metrics             Metrics          `json:"performance_metrics"`
}
