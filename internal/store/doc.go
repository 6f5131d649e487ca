// Package store provides SQLite-backed durable storage for the sync
// engine's ledgers and archives:
//
//   - Snapshot sets: archived entity snapshot generations per type, with a
//     current pointer that only advances after the archive commit
//   - Entity mappings: append-only cross-system identity ledger, resolved
//     by most-recent-wins at lookup time
//   - Migration records: the audit trail of migration runs
//   - State snapshots: point-in-time exports for rollback/audit
//   - Update plans/results: persisted execution artifacts keyed by plan id
//
// # Ordering
//
// The mapping ledger orders by seq INTEGER (insert sequence), never by
// timestamps; "most recent" is a ledger position, not a wall-clock race.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// The store exposes no business logic: consumers define narrow port
// interfaces (detect.SnapshotStore, state.Ledger, update.PlanStore) that
// this type satisfies.
package store
