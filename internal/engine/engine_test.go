package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/driftsync/internal/detect"
	"github.com/driftline/driftsync/internal/entity"
	"github.com/driftline/driftsync/internal/registry"
	"github.com/driftline/driftsync/internal/state"
	"github.com/driftline/driftsync/internal/store"
	"github.com/driftline/driftsync/internal/update"
)

// fakeUnit serves in-memory entity lists per type.
type fakeUnit struct {
	name     string
	entities map[string][]entity.Record
	err      error
}

func (u *fakeUnit) Name() string { return u.name }

func (u *fakeUnit) CurrentEntities(ctx context.Context, entityType string) ([]entity.Record, error) {
	if u.err != nil {
		return nil, u.err
	}
	return u.entities[entityType], nil
}

func newTestEngine(t *testing.T) (*Engine, *store.Store, *fakeUnit) {
	t.Helper()
	ctx := context.Background()

	s, err := store.Open(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	reg := registry.New()
	unit := &fakeUnit{name: "widget-unit", entities: map[string][]entity.Record{}}
	require.NoError(t, reg.Register(unit, "widgets"))

	stateMgr := state.NewManager(ctx, s)
	updates := update.NewManager(stateMgr, s)
	updates.RegisterStrategy(update.Strategy{
		EntityType: "widgets",
		Create: func(ctx context.Context, c detect.EntityChange) (entity.Record, error) {
			return entity.Record{"id": c.EntityID + "t"}, nil
		},
		Update: func(ctx context.Context, c detect.EntityChange) error { return nil },
		Delete: func(ctx context.Context, c detect.EntityChange) error { return nil },
		BatchSize: 10,
	})

	e := New(reg, detect.NewDetector(s), stateMgr, updates, "widget-sync")
	return e, s, unit
}

func TestDetectType_UnregisteredType(t *testing.T) {
	e, _, _ := newTestEngine(t)

	_, err := e.DetectType(context.Background(), "martians")
	require.Error(t, err)
	assert.ErrorIs(t, err, registry.ErrNotRegistered)
}

func TestDetectType_UnitError(t *testing.T) {
	e, _, unit := newTestEngine(t)
	unit.err = errors.New("upstream API down")

	_, err := e.DetectType(context.Background(), "widgets")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "widget-unit")
}

func TestDetectType_ColdStart(t *testing.T) {
	e, _, unit := newTestEngine(t)
	unit.entities["widgets"] = []entity.Record{{"id": "1"}, {"id": "2"}}

	report, err := e.DetectType(context.Background(), "widgets")
	require.NoError(t, err)
	assert.Equal(t, 2, report.TotalChanges)
	assert.Equal(t, 2, report.ChangesByType[detect.ChangeCreated])
}

func TestSyncType_CleanRoundAdvancesBaseline(t *testing.T) {
	ctx := context.Background()
	e, _, unit := newTestEngine(t)
	unit.entities["widgets"] = []entity.Record{{"id": "1", "v": 1}}

	result, err := e.SyncType(ctx, "widgets", false)
	require.NoError(t, err)
	assert.Equal(t, update.ResultCompleted, result.Status)
	assert.Equal(t, 1, result.OperationsCompleted)

	// The clean round refreshed the baseline: nothing left to detect.
	report, err := e.DetectType(ctx, "widgets")
	require.NoError(t, err)
	assert.Zero(t, report.TotalChanges)
}

func TestSyncType_NoChangesIsNoOp(t *testing.T) {
	ctx := context.Background()
	e, _, unit := newTestEngine(t)
	unit.entities["widgets"] = []entity.Record{{"id": "1"}}

	_, err := e.SyncType(ctx, "widgets", false)
	require.NoError(t, err)

	result, err := e.SyncType(ctx, "widgets", false)
	require.NoError(t, err)
	assert.Equal(t, update.ResultCompleted, result.Status)
	assert.Zero(t, result.OperationsCompleted)
	assert.Empty(t, result.PlanID)
}

func TestSyncType_PartialFailureKeepsBaseline(t *testing.T) {
	ctx := context.Background()
	e, s, unit := newTestEngine(t)

	// Replace the update handler with one that always fails.
	e.updates.RegisterStrategy(update.Strategy{
		EntityType: "widgets",
		Create: func(ctx context.Context, c detect.EntityChange) (entity.Record, error) {
			return nil, errors.New("target rejected")
		},
		BatchSize: 10,
	})
	unit.entities["widgets"] = []entity.Record{{"id": "1"}}

	result, err := e.SyncType(ctx, "widgets", false)
	require.NoError(t, err)
	assert.Equal(t, update.ResultFailed, result.Status)

	// Baseline did not move, so the failed entity is re-detected.
	report, err := e.DetectType(ctx, "widgets")
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalChanges)

	// The audit trail recorded the failed round.
	records, err := s.AllRecords(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, state.StatusFailed, records[0].Status)
	assert.Equal(t, "widget-sync", records[0].Component)
	require.Len(t, records[0].Errors, 1)
	assert.Contains(t, records[0].Errors[0], "target rejected")
}

func TestSyncType_DryRunLeavesEverythingUntouched(t *testing.T) {
	ctx := context.Background()
	e, _, unit := newTestEngine(t)

	invoked := false
	e.updates.RegisterStrategy(update.Strategy{
		EntityType: "widgets",
		Create: func(ctx context.Context, c detect.EntityChange) (entity.Record, error) {
			invoked = true
			return nil, nil
		},
		BatchSize: 10,
	})
	unit.entities["widgets"] = []entity.Record{{"id": "1"}}

	result, err := e.SyncType(ctx, "widgets", true)
	require.NoError(t, err)
	assert.True(t, result.DryRun)
	assert.Equal(t, update.ResultCompleted, result.Status)
	assert.False(t, invoked)

	// Baseline did not move either.
	report, err := e.DetectType(ctx, "widgets")
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalChanges)
}

func TestSyncAll(t *testing.T) {
	ctx := context.Background()
	e, _, unit := newTestEngine(t)

	// Second unit claiming a second type.
	gadgetUnit := &fakeUnit{name: "gadget-unit", entities: map[string][]entity.Record{
		"gadgets": {{"id": "g1"}},
	}}
	require.NoError(t, e.registry.Register(gadgetUnit, "gadgets"))
	e.updates.RegisterStrategy(update.Strategy{
		EntityType: "gadgets",
		Create: func(ctx context.Context, c detect.EntityChange) (entity.Record, error) {
			return entity.Record{"id": c.EntityID + "t"}, nil
		},
		BatchSize: 10,
	})
	unit.entities["widgets"] = []entity.Record{{"id": "1"}}

	results, err := e.SyncAll(ctx, false)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, update.ResultCompleted, results["widgets"].Status)
	assert.Equal(t, update.ResultCompleted, results["gadgets"].Status)
}

func TestSyncAll_UnitFailureDoesNotStopOthers(t *testing.T) {
	ctx := context.Background()
	e, _, unit := newTestEngine(t)
	unit.entities["widgets"] = []entity.Record{{"id": "1"}}

	broken := &fakeUnit{name: "broken-unit", err: errors.New("unreachable")}
	require.NoError(t, e.registry.Register(broken, "aardvarks"))

	results, err := e.SyncAll(ctx, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken-unit")

	// "aardvarks" sorts first and fails, "widgets" still synced.
	require.Len(t, results, 1)
	assert.Equal(t, update.ResultCompleted, results["widgets"].Status)
}
