// Package state is the durable ledger of cross-system identity and the
// audit trail of migration runs.
//
// The ledger is append-only: registering a mapping inserts, never
// overwrites, and lookups return the most recently registered match. The
// on-disk store is assumed single-writer; multi-process coordination is
// layered on by the deployment if needed.
package state

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Ledger is the storage port the manager persists through. Implemented by
// the SQLite store; swappable for a transactional backend without changing
// the manager's contract.
type Ledger interface {
	AppendMapping(ctx context.Context, m EntityMapping) error
	LatestMappingBySource(ctx context.Context, sourceType, sourceID string) (EntityMapping, bool, error)
	LatestMappingByTarget(ctx context.Context, targetType, targetID string) (EntityMapping, bool, error)

	InsertRecord(ctx context.Context, rec MigrationRecord) error
	GetRecord(ctx context.Context, recordID string) (MigrationRecord, bool, error)
	UpdateRecord(ctx context.Context, rec MigrationRecord) error

	CurrentMappings(ctx context.Context) ([]EntityMapping, error)
	AllRecords(ctx context.Context) ([]MigrationRecord, error)
	SaveStateSnapshot(ctx context.Context, snap StateSnapshot) error

	MappingCounts(ctx context.Context) (MappingStatistics, error)
	CleanupBefore(ctx context.Context, cutoff time.Time) (int, error)

	GetMeta(ctx context.Context, key string) (string, bool, error)
	SetMeta(ctx context.Context, key, value string) error
}

const versionKey = "state_version"

// Manager owns the entity-mapping ledger and migration audit log.
type Manager struct {
	ledger  Ledger
	version string

	// now is replaceable for deterministic tests.
	now func() time.Time

	// newID is replaceable for deterministic tests.
	newID func() string
}

// NewManager constructs a manager over a ledger and restores the current
// state version marker. A missing or unreadable marker never blocks
// startup: a fresh version is minted and logged.
func NewManager(ctx context.Context, ledger Ledger) *Manager {
	m := &Manager{
		ledger: ledger,
		now:    time.Now,
		newID:  func() string { return uuid.Must(uuid.NewV7()).String() },
	}

	version, ok, err := ledger.GetMeta(ctx, versionKey)
	if err != nil {
		slog.Warn("state version unreadable, starting fresh", "error", err)
	}
	if ok && version != "" {
		m.version = version
	} else {
		m.version = m.freshVersion()
		if err := ledger.SetMeta(ctx, versionKey, m.version); err != nil {
			slog.Warn("could not persist state version", "error", err)
		}
	}

	return m
}

// Version returns the monotonically-identified state version marker.
func (m *Manager) Version() string {
	return m.version
}

func (m *Manager) freshVersion() string {
	return fmt.Sprintf("%s-%s", m.now().UTC().Format("20060102T150405"), uuid.Must(uuid.NewV7()).String()[:8])
}

// RegisterEntityMapping appends a mapping to the ledger and returns its
// globally unique mapping id. Always succeeds at the contract level: no
// existence check is performed, and lookups resolve duplicates by
// most-recent-wins.
func (m *Manager) RegisterEntityMapping(ctx context.Context, sourceType, sourceID, targetType, targetID, component string, metadata map[string]string) (string, error) {
	mapping := EntityMapping{
		MappingID:        m.newID(),
		SourceEntityType: sourceType,
		SourceEntityID:   sourceID,
		TargetEntityType: targetType,
		TargetEntityID:   targetID,
		MappedAt:         m.now().UTC(),
		MappedBy:         component,
		MappingVersion:   1,
		Metadata:         metadata,
	}
	if err := m.ledger.AppendMapping(ctx, mapping); err != nil {
		return "", fmt.Errorf("register entity mapping: %w", err)
	}
	return mapping.MappingID, nil
}

// EntityMapping returns the most recently registered mapping for a source
// identity, or (zero, false) when none exists.
func (m *Manager) EntityMapping(ctx context.Context, sourceType, sourceID string) (EntityMapping, bool) {
	mapping, ok, err := m.ledger.LatestMappingBySource(ctx, sourceType, sourceID)
	if err != nil {
		slog.Warn("mapping lookup failed", "source_type", sourceType, "source_id", sourceID, "error", err)
		return EntityMapping{}, false
	}
	return mapping, ok
}

// ReverseMapping is the symmetric lookup by target identity.
func (m *Manager) ReverseMapping(ctx context.Context, targetType, targetID string) (EntityMapping, bool) {
	mapping, ok, err := m.ledger.LatestMappingByTarget(ctx, targetType, targetID)
	if err != nil {
		slog.Warn("reverse mapping lookup failed", "target_type", targetType, "target_id", targetID, "error", err)
		return EntityMapping{}, false
	}
	return mapping, ok
}

// StartMigrationRecord opens an audit record with status "started" and
// returns its id.
func (m *Manager) StartMigrationRecord(ctx context.Context, component, entityType, operationType string, entityCount int, startedBy string, metadata map[string]string) (string, error) {
	rec := MigrationRecord{
		RecordID:      m.newID(),
		Component:     component,
		EntityType:    entityType,
		OperationType: operationType,
		StartedAt:     m.now().UTC(),
		Status:        StatusStarted,
		EntityCount:   entityCount,
		StartedBy:     startedBy,
		Metadata:      metadata,
		Version:       m.version,
	}
	if err := m.ledger.InsertRecord(ctx, rec); err != nil {
		return "", fmt.Errorf("start migration record: %w", err)
	}
	return rec.RecordID, nil
}

// CompleteMigrationRecord finalizes an audit record. Status becomes
// "completed" when errorCount is zero, "failed" otherwise. An unknown
// record id logs a warning and is a no-op.
func (m *Manager) CompleteMigrationRecord(ctx context.Context, recordID string, successCount, errorCount int, errs []string) {
	rec, ok, err := m.ledger.GetRecord(ctx, recordID)
	if err != nil {
		slog.Warn("migration record lookup failed", "record_id", recordID, "error", err)
		return
	}
	if !ok {
		slog.Warn("completing unknown migration record", "record_id", recordID)
		return
	}

	completed := m.now().UTC()
	rec.CompletedAt = &completed
	rec.SuccessCount = successCount
	rec.ErrorCount = errorCount
	rec.Errors = errs
	if errorCount == 0 {
		rec.Status = StatusCompleted
	} else {
		rec.Status = StatusFailed
	}

	if err := m.ledger.UpdateRecord(ctx, rec); err != nil {
		slog.Warn("migration record update failed", "record_id", recordID, "error", err)
	}
}

// CreateStateSnapshot exports all current mappings and records to a named
// archive snapshot. In-memory and current ledger state are untouched.
func (m *Manager) CreateStateSnapshot(ctx context.Context, description, createdBy string, metadata map[string]string) (string, error) {
	mappings, err := m.ledger.CurrentMappings(ctx)
	if err != nil {
		return "", fmt.Errorf("create state snapshot: %w", err)
	}
	records, err := m.ledger.AllRecords(ctx)
	if err != nil {
		return "", fmt.Errorf("create state snapshot: %w", err)
	}

	snap := StateSnapshot{
		SnapshotID:  m.newID(),
		Description: description,
		CreatedBy:   createdBy,
		CreatedAt:   m.now().UTC(),
		Mappings:    mappings,
		Records:     records,
		Metadata:    metadata,
	}
	if err := m.ledger.SaveStateSnapshot(ctx, snap); err != nil {
		return "", fmt.Errorf("create state snapshot: %w", err)
	}
	return snap.SnapshotID, nil
}

// SaveCurrentState refreshes the persisted version marker. With a
// transactional ledger every write is already durable; the marker is what
// lets a new process confirm it picked up where the last one left off.
func (m *Manager) SaveCurrentState(ctx context.Context) error {
	m.version = m.freshVersion()
	if err := m.ledger.SetMeta(ctx, versionKey, m.version); err != nil {
		return fmt.Errorf("save current state: %w", err)
	}
	return nil
}

// MappingStatistics returns derived counts grouped by source type, target
// type and registering component.
func (m *Manager) MappingStatistics(ctx context.Context) (MappingStatistics, error) {
	stats, err := m.ledger.MappingCounts(ctx)
	if err != nil {
		return MappingStatistics{}, fmt.Errorf("mapping statistics: %w", err)
	}
	return stats, nil
}

// CleanupOldState deletes archived snapshots older than keepDays and
// returns the number deleted. Current pointers and the live ledger are
// never touched.
func (m *Manager) CleanupOldState(ctx context.Context, keepDays int) (int, error) {
	cutoff := m.now().UTC().AddDate(0, 0, -keepDays)
	deleted, err := m.ledger.CleanupBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup old state: %w", err)
	}
	return deleted, nil
}
