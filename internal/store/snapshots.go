package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/driftline/driftsync/internal/entity"
)

// SaveSnapshotSet archives a full snapshot generation for one entity type
// and then moves the type's current pointer to it. The archive insert is
// committed before the pointer moves, so a reader following the pointer
// never observes a half-written set.
//
// Returns the archive set id.
func (s *Store) SaveSnapshotSet(ctx context.Context, entityType, label string, snaps []entity.Snapshot) (string, error) {
	setID := uuid.Must(uuid.NewV7()).String()
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("save snapshot set: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshot_sets (id, entity_type, label, entity_count, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, setID, entityType, label, len(snaps), now)
	if err != nil {
		return "", fmt.Errorf("save snapshot set: %w", err)
	}

	for _, snap := range snaps {
		data, err := json.Marshal(snap.Data)
		if err != nil {
			return "", fmt.Errorf("save snapshot set: marshal %s/%s: %w", entityType, snap.EntityID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO snapshot_entries
			(set_id, entity_id, entity_type, checksum, last_modified, data, snapshot_timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(set_id, entity_id) DO NOTHING
		`,
			setID,
			snap.EntityID,
			snap.EntityType,
			snap.Checksum,
			snap.LastModified,
			string(data),
			snap.SnapshotTimestamp.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return "", fmt.Errorf("save snapshot set: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("save snapshot set: commit: %w", err)
	}

	// Pointer moves only after the archive commit above. Not atomic as a
	// pair with the archive write, and does not need to be.
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshot_pointers (entity_type, set_id, entity_count, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(entity_type) DO UPDATE SET
			set_id = excluded.set_id,
			entity_count = excluded.entity_count,
			updated_at = excluded.updated_at
	`, entityType, setID, len(snaps), now)
	if err != nil {
		return "", fmt.Errorf("save snapshot set: update pointer: %w", err)
	}

	return setID, nil
}

// LatestSnapshotSet loads the baseline snapshot for an entity type via its
// current pointer. Returns ok=false when the type has no pointer yet
// (cold start).
func (s *Store) LatestSnapshotSet(ctx context.Context, entityType string) ([]entity.Snapshot, bool, error) {
	var setID string
	err := s.db.QueryRowContext(ctx,
		`SELECT set_id FROM snapshot_pointers WHERE entity_type = ?`, entityType,
	).Scan(&setID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("latest snapshot set: pointer: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_id, entity_type, checksum, last_modified, data, snapshot_timestamp
		FROM snapshot_entries WHERE set_id = ?
	`, setID)
	if err != nil {
		return nil, false, fmt.Errorf("latest snapshot set: %w", err)
	}
	defer rows.Close()

	var snaps []entity.Snapshot
	for rows.Next() {
		var snap entity.Snapshot
		var data, ts string
		if err := rows.Scan(&snap.EntityID, &snap.EntityType, &snap.Checksum, &snap.LastModified, &data, &ts); err != nil {
			return nil, false, fmt.Errorf("latest snapshot set: scan: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &snap.Data); err != nil {
			return nil, false, fmt.Errorf("latest snapshot set: entity %s: %w", snap.EntityID, err)
		}
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			snap.SnapshotTimestamp = parsed
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("latest snapshot set: %w", err)
	}

	return snaps, true, nil
}

// SnapshotPointer reports the current archive set id and entity count for
// a type, for display and diagnostics.
func (s *Store) SnapshotPointer(ctx context.Context, entityType string) (setID string, entityCount int, ok bool, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT set_id, entity_count FROM snapshot_pointers WHERE entity_type = ?`, entityType,
	).Scan(&setID, &entityCount)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, false, nil
	}
	if err != nil {
		return "", 0, false, fmt.Errorf("snapshot pointer: %w", err)
	}
	return setID, entityCount, true, nil
}
