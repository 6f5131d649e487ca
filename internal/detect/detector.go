// Package detect implements snapshot-based change detection: given the
// current full entity list for one type and the persisted baseline
// snapshot of the same type, it produces a ChangeReport of created,
// updated and deleted entities.
//
// Detection is checksum-driven and never trusts upstream timestamps. It
// also never fails: a missing, corrupted or unreadable baseline degrades
// to cold-start semantics (everything is "created") with a logged
// warning, preserving the engine's repeat-until-it-sticks reliability
// model.
package detect

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/driftline/driftsync/internal/entity"
)

// SnapshotStore is the storage port the detector persists baselines
// through. Implemented by the SQLite store.
type SnapshotStore interface {
	// SaveSnapshotSet archives a snapshot generation and then advances the
	// type's current pointer. The archive write must be durable before the
	// pointer moves.
	SaveSnapshotSet(ctx context.Context, entityType, label string, snaps []entity.Snapshot) (string, error)

	// LatestSnapshotSet loads the baseline via the current pointer.
	// ok=false means the type has no baseline yet.
	LatestSnapshotSet(ctx context.Context, entityType string) ([]entity.Snapshot, bool, error)
}

// Detector diffs current entity lists against persisted baselines.
type Detector struct {
	store SnapshotStore

	// now is replaceable for deterministic tests.
	now func() time.Time
}

// NewDetector constructs a detector over a snapshot store.
func NewDetector(store SnapshotStore) *Detector {
	return &Detector{store: store, now: time.Now}
}

// CreateSnapshot persists the current entity list as a new snapshot
// generation for entityType and returns the archive set id.
//
// Entities whose id cannot be resolved are skipped with a warning, not an
// error: one malformed record must not block the rest of the type.
func (d *Detector) CreateSnapshot(ctx context.Context, entities []entity.Record, entityType, label string) (string, error) {
	snaps := d.buildSnapshots(entities, entityType)

	setID, err := d.store.SaveSnapshotSet(ctx, entityType, label, snaps)
	if err != nil {
		return "", fmt.Errorf("create snapshot for %s: %w", entityType, err)
	}

	slog.Info("snapshot created",
		"entity_type", entityType, "set_id", setID,
		"entities", len(snaps), "skipped", len(entities)-len(snaps))
	return setID, nil
}

// DetectChanges diffs the current entity list against the type's baseline
// snapshot.
//
// Semantics:
//   - no baseline: every current entity is "created", nothing is "deleted"
//   - checksum mismatch against baseline: "updated" (carries old and new data)
//   - present now, absent from baseline: "created"
//   - present in baseline, absent now: "deleted"
//
// No error is returned under any malformed-input condition; storage
// failures degrade to cold start.
func (d *Detector) DetectChanges(ctx context.Context, entities []entity.Record, entityType string) ChangeReport {
	baseline, ok, err := d.store.LatestSnapshotSet(ctx, entityType)
	if err != nil {
		slog.Warn("baseline unreadable, treating as cold start", "entity_type", entityType, "error", err)
		baseline, ok = nil, false
	}

	var baselineTS *time.Time
	byID := make(map[string]entity.Snapshot, len(baseline))
	if ok {
		for _, snap := range baseline {
			byID[snap.EntityID] = snap
			if baselineTS == nil || snap.SnapshotTimestamp.After(*baselineTS) {
				ts := snap.SnapshotTimestamp
				baselineTS = &ts
			}
		}
	}

	var changes []EntityChange
	seen := make(map[string]bool, len(entities))

	for _, record := range entities {
		id := entity.ResolveID(record, entityType)
		if id == "" {
			slog.Warn("entity without resolvable id skipped", "entity_type", entityType)
			continue
		}
		seen[id] = true

		checksum, err := entity.Checksum(record)
		if err != nil {
			slog.Warn("checksum failed, treating entity as created",
				"entity_type", entityType, "entity_id", id, "error", err)
			changes = append(changes, d.change(entityType, id, ChangeCreated, nil, record))
			continue
		}

		prev, existed := byID[id]
		switch {
		case !existed:
			changes = append(changes, d.change(entityType, id, ChangeCreated, nil, record))
		case prev.Checksum != checksum:
			changes = append(changes, d.change(entityType, id, ChangeUpdated, prev.Data, record))
		}
	}

	for _, snap := range baseline {
		if !seen[snap.EntityID] {
			changes = append(changes, d.change(entityType, snap.EntityID, ChangeDeleted, snap.Data, nil))
		}
	}

	// Priority descending, ties keep discovery order.
	sort.SliceStable(changes, func(i, j int) bool {
		return changes[i].Priority > changes[j].Priority
	})

	byType := make(map[ChangeType]int)
	for _, c := range changes {
		byType[c.ChangeType]++
	}

	report := ChangeReport{
		EntityType:                entityType,
		DetectionTimestamp:        d.now().UTC(),
		BaselineSnapshotTimestamp: baselineTS,
		TotalChanges:              len(changes),
		ChangesByType:             byType,
		Changes:                   changes,
	}
	report.Summary = summarize(report)
	return report
}

func (d *Detector) change(entityType, id string, ct ChangeType, oldData, newData entity.Record) EntityChange {
	return EntityChange{
		EntityID:   id,
		EntityType: entityType,
		ChangeType: ct,
		OldData:    oldData,
		NewData:    newData,
		Priority:   priorityFor(entityType, ct, oldData, newData),
	}
}

// buildSnapshots converts raw records into snapshot entries, resolving ids
// and computing checksums. Unresolvable or unhashable records are skipped
// with warnings.
func (d *Detector) buildSnapshots(entities []entity.Record, entityType string) []entity.Snapshot {
	now := d.now().UTC()
	snaps := make([]entity.Snapshot, 0, len(entities))

	for _, record := range entities {
		id := entity.ResolveID(record, entityType)
		if id == "" {
			slog.Warn("entity without resolvable id skipped", "entity_type", entityType)
			continue
		}
		checksum, err := entity.Checksum(record)
		if err != nil {
			slog.Warn("checksum failed, entity skipped",
				"entity_type", entityType, "entity_id", id, "error", err)
			continue
		}
		snaps = append(snaps, entity.Snapshot{
			EntityID:          id,
			EntityType:        entityType,
			LastModified:      entity.ResolveLastModified(record),
			Checksum:          checksum,
			Data:              record.Clone(),
			SnapshotTimestamp: now,
		})
	}
	return snaps
}

func summarize(r ChangeReport) string {
	if r.TotalChanges == 0 {
		return fmt.Sprintf("%s: no changes", r.EntityType)
	}
	return fmt.Sprintf("%s: %d changes (%d created, %d updated, %d deleted)",
		r.EntityType, r.TotalChanges,
		r.ChangesByType[ChangeCreated],
		r.ChangesByType[ChangeUpdated],
		r.ChangesByType[ChangeDeleted])
}
