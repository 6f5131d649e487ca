package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/driftline/driftsync/internal/entity"
	"github.com/driftline/driftsync/internal/state"
)

// createTestStore creates a file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestSnapshot builds a snapshot with minimal required fields.
func createTestSnapshot(entityID, entityType, checksum string) entity.Snapshot {
	return entity.Snapshot{
		EntityID:          entityID,
		EntityType:        entityType,
		Checksum:          checksum,
		Data:              entity.Record{"id": entityID},
		SnapshotTimestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

// createTestMapping builds a mapping with minimal required fields.
func createTestMapping(mappingID, sourceType, sourceID, targetID string) state.EntityMapping {
	return state.EntityMapping{
		MappingID:        mappingID,
		SourceEntityType: sourceType,
		SourceEntityID:   sourceID,
		TargetEntityType: "op_" + sourceType,
		TargetEntityID:   targetID,
		MappedAt:         time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		MappedBy:         "test-component",
		MappingVersion:   1,
	}
}

// createTestRecord builds a started migration record.
func createTestRecord(recordID, component string) state.MigrationRecord {
	return state.MigrationRecord{
		RecordID:      recordID,
		Component:     component,
		EntityType:    "users",
		OperationType: "selective_update",
		StartedAt:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Status:        state.StatusStarted,
		EntityCount:   3,
		Version:       "v1",
	}
}
