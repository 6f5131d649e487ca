package update

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/driftsync/internal/detect"
	"github.com/driftline/driftsync/internal/entity"
	"github.com/driftline/driftsync/internal/state"
	"github.com/driftline/driftsync/internal/store"
)

// TestFullCycle walks the whole pipeline against a real SQLite store:
// snapshot a baseline, detect changes against a drifted current set,
// plan, execute with a partially failing strategy, and check that the
// mapping ledger and persisted result reflect exactly what happened.
func TestFullCycle(t *testing.T) {
	ctx := context.Background()

	s, err := store.Open(filepath.Join(t.TempDir(), "cycle.db"))
	require.NoError(t, err)
	defer s.Close()

	detector := detect.NewDetector(s)
	stateMgr := state.NewManager(ctx, s)
	manager := NewManager(stateMgr, s)

	baseline := []entity.Record{
		{"id": "1", "version": 1},
		{"id": "2", "version": 1},
	}
	_, err = detector.CreateSnapshot(ctx, baseline, "widgets", "baseline")
	require.NoError(t, err)

	current := []entity.Record{
		{"id": "1", "version": 2},
		{"id": "3", "version": 1},
	}
	report := detector.DetectChanges(ctx, current, "widgets")

	require.Equal(t, 3, report.TotalChanges)
	assert.Equal(t, 1, report.ChangesByType[detect.ChangeCreated])
	assert.Equal(t, 1, report.ChangesByType[detect.ChangeUpdated])
	assert.Equal(t, 1, report.ChangesByType[detect.ChangeDeleted])

	manager.RegisterStrategy(Strategy{
		EntityType: "widgets",
		TargetType: "gadgets",
		Create: func(ctx context.Context, c detect.EntityChange) (entity.Record, error) {
			return entity.Record{"id": c.EntityID + "t"}, nil
		},
		Update: func(ctx context.Context, c detect.EntityChange) error {
			return nil
		},
		// No delete handler: the deleted widget must fail without
		// disturbing the other operations.
		BatchSize: 10,
	})

	plan, err := manager.AnalyzeChanges(ctx, report, Settings{Component: "widget-sync"})
	require.NoError(t, err)
	require.Len(t, plan.Operations, 3)
	assert.Equal(t, []string{"widgets"}, plan.DependencyOrder)

	result := manager.ExecuteUpdatePlan(ctx, plan, false)

	assert.Equal(t, ResultFailed, result.Status)
	assert.Equal(t, 2, result.OperationsCompleted)
	assert.Equal(t, 1, result.OperationsFailed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "2", result.Errors[0].EntityID)
	assert.Equal(t, detect.ChangeDeleted, result.Errors[0].ChangeType)

	// The create published its mapping; the failed delete did not touch
	// the ledger.
	mapping, ok := stateMgr.EntityMapping(ctx, "widgets", "3")
	require.True(t, ok)
	assert.Equal(t, "gadgets", mapping.TargetEntityType)
	assert.Equal(t, "3t", mapping.TargetEntityID)
	assert.Equal(t, "widget-sync", mapping.MappedBy)

	_, ok = stateMgr.EntityMapping(ctx, "widgets", "1")
	assert.False(t, ok)

	// Result survives a reload from the store.
	loaded, ok, err := manager.LoadResult(ctx, plan.PlanID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ResultFailed, loaded.Status)
	assert.Equal(t, 2, loaded.OperationsCompleted)
}

// TestFullCycle_RefreshConverges checks that refreshing the baseline
// after applying updates makes a second detection pass report nothing.
func TestFullCycle_RefreshConverges(t *testing.T) {
	ctx := context.Background()

	s, err := store.Open(filepath.Join(t.TempDir(), "converge.db"))
	require.NoError(t, err)
	defer s.Close()

	detector := detect.NewDetector(s)

	baseline := []entity.Record{{"id": "1", "version": 1}}
	_, err = detector.CreateSnapshot(ctx, baseline, "widgets", "baseline")
	require.NoError(t, err)

	current := []entity.Record{{"id": "1", "version": 2}}
	report := detector.DetectChanges(ctx, current, "widgets")
	require.Equal(t, 1, report.TotalChanges)

	_, err = detector.CreateSnapshot(ctx, current, "widgets", "refresh")
	require.NoError(t, err)

	again := detector.DetectChanges(ctx, current, "widgets")
	assert.Zero(t, again.TotalChanges)
	assert.Empty(t, again.Changes)
}

// TestFullCycle_MigrationRecordLifecycle drives a record through
// start and completion against the real store, asserting the
// completed-means-no-errors invariant.
func TestFullCycle_MigrationRecordLifecycle(t *testing.T) {
	ctx := context.Background()

	s, err := store.Open(filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	defer s.Close()

	stateMgr := state.NewManager(ctx, s)

	recordID, err := stateMgr.StartMigrationRecord(ctx, "widget-sync", "widgets", "selective_update", 3, "tester", nil)
	require.NoError(t, err)

	stateMgr.CompleteMigrationRecord(ctx, recordID, 2, 1, []string{"delete failed for widget 2"})

	record, ok, err := s.GetRecord(ctx, recordID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, state.StatusFailed, record.Status)
	assert.Equal(t, 2, record.SuccessCount)
	assert.Equal(t, 1, record.ErrorCount)
	require.NotNil(t, record.CompletedAt)

	cleanID, err := stateMgr.StartMigrationRecord(ctx, "widget-sync", "widgets", "selective_update", 1, "tester", nil)
	require.NoError(t, err)
	stateMgr.CompleteMigrationRecord(ctx, cleanID, 1, 0, nil)

	clean, ok, err := s.GetRecord(ctx, cleanID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, state.StatusCompleted, clean.Status)
}

// TestFullCycle_PlanNotFound reloads a plan id that was never saved.
func TestFullCycle_PlanNotFound(t *testing.T) {
	ctx := context.Background()

	s, err := store.Open(filepath.Join(t.TempDir(), "missing.db"))
	require.NoError(t, err)
	defer s.Close()

	manager := NewManager(nil, s)
	_, ok, err := manager.LoadPlan(ctx, "no-such-plan")
	require.NoError(t, err)
	assert.False(t, ok)
}
