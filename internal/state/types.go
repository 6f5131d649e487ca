package state

import "time"

// EntityMapping is one durable association between a source-system entity
// identity and a target-system entity identity. Created exactly once per
// successfully-created target entity; never deleted in normal operation.
type EntityMapping struct {
	MappingID        string            `json:"mapping_id"`
	SourceEntityType string            `json:"source_entity_type"`
	SourceEntityID   string            `json:"source_entity_id"`
	TargetEntityType string            `json:"target_entity_type"`
	TargetEntityID   string            `json:"target_entity_id"`
	MappedAt         time.Time         `json:"mapped_at"`
	MappedBy         string            `json:"mapped_by"`
	MappingVersion   int               `json:"mapping_version"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// RecordStatus is the lifecycle state of a migration record.
type RecordStatus string

const (
	StatusStarted    RecordStatus = "started"
	StatusCompleted  RecordStatus = "completed"
	StatusFailed     RecordStatus = "failed"
	StatusRolledBack RecordStatus = "rolled_back"
)

// MigrationRecord is one append-only audit entry for an invocation of a
// migration unit's apply step.
//
// Invariant: status "completed" implies CompletedAt is set and ErrorCount
// is zero; any ErrorCount > 0 implies status "failed".
type MigrationRecord struct {
	RecordID      string            `json:"record_id"`
	Component     string            `json:"component"`
	EntityType    string            `json:"entity_type"`
	OperationType string            `json:"operation_type"`
	StartedAt     time.Time         `json:"started_at"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
	Status        RecordStatus      `json:"status"`
	EntityCount   int               `json:"entity_count"`
	SuccessCount  int               `json:"success_count"`
	ErrorCount    int               `json:"error_count"`
	Errors        []string          `json:"errors,omitempty"`
	StartedBy     string            `json:"started_by,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Version       string            `json:"version"`
}

// StateSnapshot is a point-in-time export of all current mappings and
// migration records, tagged for rollback/audit. Never mutated after
// creation.
type StateSnapshot struct {
	SnapshotID  string            `json:"snapshot_id"`
	Description string            `json:"description"`
	CreatedBy   string            `json:"created_by,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	Mappings    []EntityMapping   `json:"mappings"`
	Records     []MigrationRecord `json:"records"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// MappingStatistics are read-only derived counts over the mapping ledger.
type MappingStatistics struct {
	Total       int            `json:"total"`
	BySource    map[string]int `json:"by_source_type"`
	ByTarget    map[string]int `json:"by_target_type"`
	ByComponent map[string]int `json:"by_component"`
}
