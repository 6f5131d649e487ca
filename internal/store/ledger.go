package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/driftline/driftsync/internal/state"
)

// AppendMapping inserts a mapping into the append-only ledger.
// Uses ON CONFLICT(mapping_id) DO NOTHING for idempotency - re-appending
// the same mapping id is silently ignored. Duplicate source identities are
// expected and resolved at lookup time by most-recent-wins.
func (s *Store) AppendMapping(ctx context.Context, m state.EntityMapping) error {
	metadata, err := marshalStringMap(m.Metadata)
	if err != nil {
		return fmt.Errorf("append mapping: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entity_mappings
		(mapping_id, source_entity_type, source_entity_id, target_entity_type,
		 target_entity_id, mapped_at, mapped_by, mapping_version, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(mapping_id) DO NOTHING
	`,
		m.MappingID,
		m.SourceEntityType,
		m.SourceEntityID,
		m.TargetEntityType,
		m.TargetEntityID,
		m.MappedAt.UTC().Format(time.RFC3339Nano),
		m.MappedBy,
		m.MappingVersion,
		metadata,
	)
	if err != nil {
		return fmt.Errorf("append mapping: %w", err)
	}
	return nil
}

const mappingColumns = `mapping_id, source_entity_type, source_entity_id,
	target_entity_type, target_entity_id, mapped_at, mapped_by,
	mapping_version, metadata`

// LatestMappingBySource returns the most recently appended mapping for a
// source identity.
func (s *Store) LatestMappingBySource(ctx context.Context, sourceType, sourceID string) (state.EntityMapping, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+mappingColumns+`
		FROM entity_mappings
		WHERE source_entity_type = ? AND source_entity_id = ?
		ORDER BY seq DESC LIMIT 1
	`, sourceType, sourceID)
	return scanMapping(row)
}

// LatestMappingByTarget is the symmetric lookup by target identity.
func (s *Store) LatestMappingByTarget(ctx context.Context, targetType, targetID string) (state.EntityMapping, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+mappingColumns+`
		FROM entity_mappings
		WHERE target_entity_type = ? AND target_entity_id = ?
		ORDER BY seq DESC LIMIT 1
	`, targetType, targetID)
	return scanMapping(row)
}

func scanMapping(row *sql.Row) (state.EntityMapping, bool, error) {
	var m state.EntityMapping
	var mappedAt, metadata string
	err := row.Scan(
		&m.MappingID,
		&m.SourceEntityType,
		&m.SourceEntityID,
		&m.TargetEntityType,
		&m.TargetEntityID,
		&mappedAt,
		&m.MappedBy,
		&m.MappingVersion,
		&metadata,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return state.EntityMapping{}, false, nil
	}
	if err != nil {
		return state.EntityMapping{}, false, fmt.Errorf("scan mapping: %w", err)
	}
	if parsed, err := time.Parse(time.RFC3339Nano, mappedAt); err == nil {
		m.MappedAt = parsed
	}
	if err := unmarshalStringMap(metadata, &m.Metadata); err != nil {
		return state.EntityMapping{}, false, fmt.Errorf("scan mapping: %w", err)
	}
	return m, true, nil
}

// CurrentMappings exports the current view of the ledger: the most recent
// mapping per (source_entity_type, source_entity_id), ordered by append
// sequence.
func (s *Store) CurrentMappings(ctx context.Context) ([]state.EntityMapping, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+mappingColumns+`
		FROM entity_mappings
		WHERE seq IN (
			SELECT MAX(seq) FROM entity_mappings
			GROUP BY source_entity_type, source_entity_id
		)
		ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("current mappings: %w", err)
	}
	defer rows.Close()

	var out []state.EntityMapping
	for rows.Next() {
		var m state.EntityMapping
		var mappedAt, metadata string
		if err := rows.Scan(
			&m.MappingID, &m.SourceEntityType, &m.SourceEntityID,
			&m.TargetEntityType, &m.TargetEntityID, &mappedAt,
			&m.MappedBy, &m.MappingVersion, &metadata,
		); err != nil {
			return nil, fmt.Errorf("current mappings: scan: %w", err)
		}
		if parsed, err := time.Parse(time.RFC3339Nano, mappedAt); err == nil {
			m.MappedAt = parsed
		}
		if err := unmarshalStringMap(metadata, &m.Metadata); err != nil {
			return nil, fmt.Errorf("current mappings: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// InsertRecord appends a migration audit record.
func (s *Store) InsertRecord(ctx context.Context, rec state.MigrationRecord) error {
	errs, err := json.Marshal(safeStrings(rec.Errors))
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	metadata, err := marshalStringMap(rec.Metadata)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}

	var completedAt any
	if rec.CompletedAt != nil {
		completedAt = rec.CompletedAt.UTC().Format(time.RFC3339Nano)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO migration_records
		(record_id, component, entity_type, operation_type, started_at,
		 completed_at, status, entity_count, success_count, error_count,
		 errors, started_by, metadata, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.RecordID,
		rec.Component,
		rec.EntityType,
		rec.OperationType,
		rec.StartedAt.UTC().Format(time.RFC3339Nano),
		completedAt,
		string(rec.Status),
		rec.EntityCount,
		rec.SuccessCount,
		rec.ErrorCount,
		string(errs),
		rec.StartedBy,
		metadata,
		rec.Version,
	)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// GetRecord fetches one migration record by id.
func (s *Store) GetRecord(ctx context.Context, recordID string) (state.MigrationRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT record_id, component, entity_type, operation_type, started_at,
		       completed_at, status, entity_count, success_count, error_count,
		       errors, started_by, metadata, version
		FROM migration_records WHERE record_id = ?
	`, recordID)

	rec, err := scanRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return state.MigrationRecord{}, false, nil
	}
	if err != nil {
		return state.MigrationRecord{}, false, err
	}
	return rec, true, nil
}

// UpdateRecord overwrites a record's completion fields.
func (s *Store) UpdateRecord(ctx context.Context, rec state.MigrationRecord) error {
	errs, err := json.Marshal(safeStrings(rec.Errors))
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}

	var completedAt any
	if rec.CompletedAt != nil {
		completedAt = rec.CompletedAt.UTC().Format(time.RFC3339Nano)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE migration_records
		SET completed_at = ?, status = ?, success_count = ?, error_count = ?, errors = ?
		WHERE record_id = ?
	`,
		completedAt,
		string(rec.Status),
		rec.SuccessCount,
		rec.ErrorCount,
		string(errs),
		rec.RecordID,
	)
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	return nil
}

// AllRecords returns every migration record in start order.
func (s *Store) AllRecords(ctx context.Context) ([]state.MigrationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT record_id, component, entity_type, operation_type, started_at,
		       completed_at, status, entity_count, success_count, error_count,
		       errors, started_by, metadata, version
		FROM migration_records ORDER BY started_at
	`)
	if err != nil {
		return nil, fmt.Errorf("all records: %w", err)
	}
	defer rows.Close()

	var out []state.MigrationRecord
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("all records: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanRecord(scan func(...any) error) (state.MigrationRecord, error) {
	var rec state.MigrationRecord
	var startedAt, status, errsJSON, metadata string
	var completedAt sql.NullString

	err := scan(
		&rec.RecordID, &rec.Component, &rec.EntityType, &rec.OperationType,
		&startedAt, &completedAt, &status, &rec.EntityCount,
		&rec.SuccessCount, &rec.ErrorCount, &errsJSON, &rec.StartedBy,
		&metadata, &rec.Version,
	)
	if err != nil {
		return state.MigrationRecord{}, err
	}

	rec.Status = state.RecordStatus(status)
	if parsed, err := time.Parse(time.RFC3339Nano, startedAt); err == nil {
		rec.StartedAt = parsed
	}
	if completedAt.Valid {
		if parsed, err := time.Parse(time.RFC3339Nano, completedAt.String); err == nil {
			rec.CompletedAt = &parsed
		}
	}
	if err := json.Unmarshal([]byte(errsJSON), &rec.Errors); err != nil {
		return state.MigrationRecord{}, fmt.Errorf("scan record errors: %w", err)
	}
	if err := unmarshalStringMap(metadata, &rec.Metadata); err != nil {
		return state.MigrationRecord{}, fmt.Errorf("scan record metadata: %w", err)
	}
	return rec, nil
}

// SaveStateSnapshot archives a full state export.
func (s *Store) SaveStateSnapshot(ctx context.Context, snap state.StateSnapshot) error {
	mappings, err := json.Marshal(snap.Mappings)
	if err != nil {
		return fmt.Errorf("save state snapshot: %w", err)
	}
	records, err := json.Marshal(snap.Records)
	if err != nil {
		return fmt.Errorf("save state snapshot: %w", err)
	}
	metadata, err := marshalStringMap(snap.Metadata)
	if err != nil {
		return fmt.Errorf("save state snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO state_snapshots
		(snapshot_id, description, created_by, created_at, mappings, records, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		snap.SnapshotID,
		snap.Description,
		snap.CreatedBy,
		snap.CreatedAt.UTC().Format(time.RFC3339Nano),
		string(mappings),
		string(records),
		metadata,
	)
	if err != nil {
		return fmt.Errorf("save state snapshot: %w", err)
	}
	return nil
}

// MappingCounts derives mapping statistics grouped by source type, target
// type and registering component, over the current ledger view.
func (s *Store) MappingCounts(ctx context.Context) (state.MappingStatistics, error) {
	stats := state.MappingStatistics{
		BySource:    make(map[string]int),
		ByTarget:    make(map[string]int),
		ByComponent: make(map[string]int),
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT source_entity_type, target_entity_type, mapped_by
		FROM entity_mappings
		WHERE seq IN (
			SELECT MAX(seq) FROM entity_mappings
			GROUP BY source_entity_type, source_entity_id
		)
	`)
	if err != nil {
		return state.MappingStatistics{}, fmt.Errorf("mapping counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var source, target, component string
		if err := rows.Scan(&source, &target, &component); err != nil {
			return state.MappingStatistics{}, fmt.Errorf("mapping counts: scan: %w", err)
		}
		stats.Total++
		stats.BySource[source]++
		stats.ByTarget[target]++
		if component != "" {
			stats.ByComponent[component]++
		}
	}
	return stats, rows.Err()
}

// CleanupBefore deletes archived snapshot sets and state snapshots older
// than the cutoff and returns the number deleted. Sets referenced by a
// current pointer are never deleted, whatever their age.
func (s *Store) CleanupBefore(ctx context.Context, cutoff time.Time) (int, error) {
	cutoffStr := cutoff.UTC().Format(time.RFC3339Nano)
	deleted := 0

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM snapshot_sets
		WHERE created_at < ?
		  AND id NOT IN (SELECT set_id FROM snapshot_pointers)
	`, cutoffStr)
	if err != nil {
		return 0, fmt.Errorf("cleanup: snapshot sets: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		deleted += int(n)
	}

	res, err = s.db.ExecContext(ctx, `
		DELETE FROM state_snapshots WHERE created_at < ?
	`, cutoffStr)
	if err != nil {
		return 0, fmt.Errorf("cleanup: state snapshots: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		deleted += int(n)
	}

	return deleted, nil
}

// GetMeta reads one key from the meta table.
func (s *Store) GetMeta(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get meta %q: %w", key, err)
	}
	return value, true, nil
}

// SetMeta upserts one key in the meta table.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("set meta %q: %w", key, err)
	}
	return nil
}

func marshalStringMap(m map[string]string) (string, error) {
	if m == nil {
		return "{}", nil
	}
	out, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func unmarshalStringMap(s string, dst *map[string]string) error {
	if s == "" || s == "{}" {
		return nil
	}
	return json.Unmarshal([]byte(s), dst)
}

// safeStrings normalizes a nil slice to empty so the errors column always
// holds a JSON array.
func safeStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
