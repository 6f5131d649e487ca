package detect

import (
	"time"

	"github.com/driftline/driftsync/internal/entity"
)

// ChangeType classifies what happened to an entity since the baseline.
type ChangeType string

const (
	ChangeCreated ChangeType = "created"
	ChangeUpdated ChangeType = "updated"
	ChangeDeleted ChangeType = "deleted"
)

// EntityChange is one detected difference between the baseline snapshot
// and the current entity list. Derived, never persisted on its own.
type EntityChange struct {
	EntityID   string        `json:"entity_id"`
	EntityType string        `json:"entity_type"`
	ChangeType ChangeType    `json:"change_type"`
	OldData    entity.Record `json:"old_data,omitempty"`
	NewData    entity.Record `json:"new_data,omitempty"`

	// Priority ranks urgency on a 1-10 scale; see priority.go.
	Priority int `json:"priority"`
}

// ChangeReport is the output of one detection run for one entity type.
// Changes are ordered by priority descending; ties keep discovery order.
type ChangeReport struct {
	EntityType                string             `json:"entity_type"`
	DetectionTimestamp        time.Time          `json:"detection_timestamp"`
	BaselineSnapshotTimestamp *time.Time         `json:"baseline_snapshot_timestamp,omitempty"`
	TotalChanges              int                `json:"total_changes"`
	ChangesByType             map[ChangeType]int `json:"changes_by_type"`
	Changes                   []EntityChange     `json:"changes"`
	Summary                   string             `json:"summary"`
}
