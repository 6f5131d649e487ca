package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SavePlan persists a serialized update plan keyed by its id. Re-saving
// the same plan id is a no-op; plans are immutable once built.
func (s *Store) SavePlan(ctx context.Context, planID string, plan []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO update_plans (plan_id, created_at, plan)
		VALUES (?, ?, ?)
		ON CONFLICT(plan_id) DO NOTHING
	`, planID, time.Now().UTC().Format(time.RFC3339Nano), string(plan))
	if err != nil {
		return fmt.Errorf("save plan: %w", err)
	}
	return nil
}

// LoadPlan returns the serialized plan for an id, or ok=false when the
// plan was never persisted.
func (s *Store) LoadPlan(ctx context.Context, planID string) ([]byte, bool, error) {
	var plan string
	err := s.db.QueryRowContext(ctx,
		`SELECT plan FROM update_plans WHERE plan_id = ?`, planID,
	).Scan(&plan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load plan: %w", err)
	}
	return []byte(plan), true, nil
}

// SaveResult persists a serialized execution result keyed by plan id.
// A re-executed plan overwrites its previous result; the latest run is
// the one that matters for inspection.
func (s *Store) SaveResult(ctx context.Context, planID string, result []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO update_results (plan_id, completed_at, result)
		VALUES (?, ?, ?)
		ON CONFLICT(plan_id) DO UPDATE SET
			completed_at = excluded.completed_at,
			result = excluded.result
	`, planID, time.Now().UTC().Format(time.RFC3339Nano), string(result))
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	return nil
}

// LoadResult returns the serialized result for a plan id, or ok=false
// when the plan never executed.
func (s *Store) LoadResult(ctx context.Context, planID string) ([]byte, bool, error) {
	var result string
	err := s.db.QueryRowContext(ctx,
		`SELECT result FROM update_results WHERE plan_id = ?`, planID,
	).Scan(&result)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load result: %w", err)
	}
	return []byte(result), true, nil
}
