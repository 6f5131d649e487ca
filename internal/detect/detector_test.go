package detect

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/driftsync/internal/entity"
)

// memStore is an in-memory SnapshotStore for detector tests.
type memStore struct {
	sets    map[string][]entity.Snapshot
	loadErr error
	saveErr error
	saves   int
}

func newMemStore() *memStore {
	return &memStore{sets: make(map[string][]entity.Snapshot)}
}

func (s *memStore) SaveSnapshotSet(ctx context.Context, entityType, label string, snaps []entity.Snapshot) (string, error) {
	if s.saveErr != nil {
		return "", s.saveErr
	}
	s.saves++
	s.sets[entityType] = snaps
	return "set-1", nil
}

func (s *memStore) LatestSnapshotSet(ctx context.Context, entityType string) ([]entity.Snapshot, bool, error) {
	if s.loadErr != nil {
		return nil, false, s.loadErr
	}
	snaps, ok := s.sets[entityType]
	return snaps, ok, nil
}

func record(id string, version int) entity.Record {
	return entity.Record{"id": id, "v": float64(version)}
}

func TestDetectChanges_ColdStart(t *testing.T) {
	d := NewDetector(newMemStore())

	report := d.DetectChanges(context.Background(), []entity.Record{
		record("1", 1), record("2", 1), record("3", 1),
	}, "widgets")

	assert.Equal(t, 3, report.TotalChanges)
	assert.Equal(t, 3, report.ChangesByType[ChangeCreated])
	assert.Zero(t, report.ChangesByType[ChangeUpdated])
	assert.Zero(t, report.ChangesByType[ChangeDeleted])
	assert.Nil(t, report.BaselineSnapshotTimestamp)
}

func TestDetectChanges_DiffCorrectness(t *testing.T) {
	// Baseline {A, B, C}, current {B', C, D}: exactly one updated (B),
	// one created (D), one deleted (A).
	store := newMemStore()
	d := NewDetector(store)
	ctx := context.Background()

	_, err := d.CreateSnapshot(ctx, []entity.Record{
		record("A", 1), record("B", 1), record("C", 1),
	}, "widgets", "test")
	require.NoError(t, err)

	report := d.DetectChanges(ctx, []entity.Record{
		record("B", 2), record("C", 1), record("D", 1),
	}, "widgets")

	assert.Equal(t, 3, report.TotalChanges)
	byID := make(map[string]EntityChange)
	for _, c := range report.Changes {
		byID[c.EntityID] = c
	}
	assert.Equal(t, ChangeUpdated, byID["B"].ChangeType)
	assert.Equal(t, ChangeCreated, byID["D"].ChangeType)
	assert.Equal(t, ChangeDeleted, byID["A"].ChangeType)

	// Updated changes carry both payloads.
	assert.Equal(t, float64(1), byID["B"].OldData["v"])
	assert.Equal(t, float64(2), byID["B"].NewData["v"])
	assert.NotNil(t, report.BaselineSnapshotTimestamp)
}

func TestDetectChanges_NoChanges(t *testing.T) {
	store := newMemStore()
	d := NewDetector(store)
	ctx := context.Background()

	entities := []entity.Record{record("1", 1), record("2", 1)}
	_, err := d.CreateSnapshot(ctx, entities, "widgets", "test")
	require.NoError(t, err)

	report := d.DetectChanges(ctx, entities, "widgets")
	assert.Zero(t, report.TotalChanges)
	assert.Contains(t, report.Summary, "no changes")
}

func TestDetectChanges_VolatileFieldOnly(t *testing.T) {
	store := newMemStore()
	d := NewDetector(store)
	ctx := context.Background()

	_, err := d.CreateSnapshot(ctx, []entity.Record{record("1", 1)}, "widgets", "test")
	require.NoError(t, err)

	noisy := record("1", 1)
	noisy["self"] = "https://source.example.com/widget/1"
	report := d.DetectChanges(ctx, []entity.Record{noisy}, "widgets")
	assert.Zero(t, report.TotalChanges)
}

func TestDetectChanges_PriorityOrdering(t *testing.T) {
	store := newMemStore()
	d := NewDetector(store)
	ctx := context.Background()

	_, err := d.CreateSnapshot(ctx, []entity.Record{
		record("A", 1), record("B", 1),
	}, "widgets", "test")
	require.NoError(t, err)

	report := d.DetectChanges(ctx, []entity.Record{
		record("B", 2), record("C", 1),
	}, "widgets")

	require.Equal(t, 3, report.TotalChanges)
	for i := 1; i < len(report.Changes); i++ {
		assert.GreaterOrEqual(t, report.Changes[i-1].Priority, report.Changes[i].Priority,
			"changes must be non-increasing in priority")
	}
	// deleted (+2) before created (+1) before updated (+0).
	assert.Equal(t, ChangeDeleted, report.Changes[0].ChangeType)
	assert.Equal(t, ChangeCreated, report.Changes[1].ChangeType)
	assert.Equal(t, ChangeUpdated, report.Changes[2].ChangeType)
}

func TestDetectChanges_UnreadableBaselineDegradesToColdStart(t *testing.T) {
	store := newMemStore()
	store.loadErr = errors.New("disk on fire")
	d := NewDetector(store)

	report := d.DetectChanges(context.Background(), []entity.Record{record("1", 1)}, "widgets")
	assert.Equal(t, 1, report.TotalChanges)
	assert.Equal(t, 1, report.ChangesByType[ChangeCreated])
}

func TestCreateSnapshot_SkipsUnresolvableIDs(t *testing.T) {
	store := newMemStore()
	d := NewDetector(store)

	_, err := d.CreateSnapshot(context.Background(), []entity.Record{
		record("1", 1),
		{"title": "no id"},
	}, "widgets", "test")
	require.NoError(t, err)

	snaps := store.sets["widgets"]
	require.Len(t, snaps, 1)
	assert.Equal(t, "1", snaps[0].EntityID)
}

func TestCreateSnapshot_Metadata(t *testing.T) {
	store := newMemStore()
	d := NewDetector(store)
	d.now = func() time.Time { return time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC) }

	r := record("1", 1)
	r["updated"] = "2026-08-20T09:00:00Z"
	_, err := d.CreateSnapshot(context.Background(), []entity.Record{r}, "widgets", "test")
	require.NoError(t, err)

	snap := store.sets["widgets"][0]
	assert.Equal(t, "widgets", snap.EntityType)
	assert.Equal(t, "2026-08-20T09:00:00Z", snap.LastModified)
	assert.NotEmpty(t, snap.Checksum)
	assert.Equal(t, 2026, snap.SnapshotTimestamp.Year())
}

func TestCreateSnapshot_StoreError(t *testing.T) {
	store := newMemStore()
	store.saveErr = errors.New("no space")
	d := NewDetector(store)

	_, err := d.CreateSnapshot(context.Background(), []entity.Record{record("1", 1)}, "widgets", "test")
	assert.Error(t, err)
}
