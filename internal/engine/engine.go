// Package engine drives full sync rounds: pull current entities from the
// registered migration unit, detect changes against the stored baseline,
// plan, execute, and record the run in the audit ledger.
//
// The engine is a thin orchestrator. Each step's semantics live in its
// own package; the engine only sequences them and keeps the baseline
// refresh honest (a baseline advances only after a fully clean round).
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/driftline/driftsync/internal/detect"
	"github.com/driftline/driftsync/internal/registry"
	"github.com/driftline/driftsync/internal/state"
	"github.com/driftline/driftsync/internal/update"
)

// Engine ties the registry, detector, state manager and update manager
// into one sync pipeline.
type Engine struct {
	registry *registry.Registry
	detector *detect.Detector
	state    *state.Manager
	updates  *update.Manager

	// Component labels audit records and mappings created by this engine.
	Component string

	// StartedBy is recorded on audit records. Optional.
	StartedBy string

	// MaxBatchSize caps per-type batch sizes when set.
	MaxBatchSize int
}

// New constructs an engine over already-wired components.
func New(reg *registry.Registry, detector *detect.Detector, stateMgr *state.Manager, updates *update.Manager, component string) *Engine {
	return &Engine{
		registry:  reg,
		detector:  detector,
		state:     stateMgr,
		updates:   updates,
		Component: component,
	}
}

// DetectType pulls the current entity list from the unit registered for
// entityType and runs change detection against the stored baseline.
func (e *Engine) DetectType(ctx context.Context, entityType string) (detect.ChangeReport, error) {
	unit, ok := e.registry.UnitForType(entityType)
	if !ok {
		return detect.ChangeReport{}, fmt.Errorf("detect %s: %w", entityType, registry.ErrNotRegistered)
	}

	entities, err := unit.CurrentEntities(ctx, entityType)
	if err != nil {
		return detect.ChangeReport{}, fmt.Errorf("detect %s: current entities from %s: %w", entityType, unit.Name(), err)
	}

	return e.detector.DetectChanges(ctx, entities, entityType), nil
}

// SyncType runs one full round for an entity type: detect, plan, execute,
// audit. With dryRun set nothing is written to the target system and the
// baseline does not move.
//
// The baseline snapshot is refreshed only when every operation completed;
// after a partial failure the old baseline stands, so the failed entities
// are re-detected on the next round.
func (e *Engine) SyncType(ctx context.Context, entityType string, dryRun bool) (update.Result, error) {
	unit, ok := e.registry.UnitForType(entityType)
	if !ok {
		return update.Result{}, fmt.Errorf("sync %s: %w", entityType, registry.ErrNotRegistered)
	}
	entities, err := unit.CurrentEntities(ctx, entityType)
	if err != nil {
		return update.Result{}, fmt.Errorf("sync %s: current entities from %s: %w", entityType, unit.Name(), err)
	}

	report := e.detector.DetectChanges(ctx, entities, entityType)
	if report.TotalChanges == 0 {
		slog.Info("no changes detected", "entity_type", entityType)
		return update.Result{Status: update.ResultCompleted, DryRun: dryRun}, nil
	}

	plan, err := e.updates.AnalyzeChanges(ctx, report, update.Settings{
		Component:    e.Component,
		MaxBatchSize: e.MaxBatchSize,
	})
	if err != nil {
		return update.Result{}, fmt.Errorf("sync %s: %w", entityType, err)
	}

	recordID, err := e.state.StartMigrationRecord(ctx, e.Component, entityType, "selective_update", len(plan.Operations), e.StartedBy, nil)
	if err != nil {
		// The audit trail failing to open never blocks the sync itself.
		slog.Warn("audit record not started", "entity_type", entityType, "error", err)
	}

	result := e.updates.ExecuteUpdatePlan(ctx, plan, dryRun)

	if recordID != "" {
		e.state.CompleteMigrationRecord(ctx, recordID, result.OperationsCompleted, result.OperationsFailed, errorStrings(result.Errors))
	}

	if !dryRun && result.Status == update.ResultCompleted {
		if _, err := e.detector.CreateSnapshot(ctx, entities, entityType, "post-sync"); err != nil {
			slog.Warn("baseline not refreshed after clean round", "entity_type", entityType, "error", err)
		}
	}

	return result, nil
}

// SyncAll runs SyncType for every registered entity type in lexical
// order. A failed type does not stop the remaining types; the per-type
// results are returned keyed by entity type alongside the first hard
// error encountered.
func (e *Engine) SyncAll(ctx context.Context, dryRun bool) (map[string]update.Result, error) {
	types := make([]string, 0)
	for t := range e.registry.AllTypes() {
		types = append(types, t)
	}
	sort.Strings(types)

	results := make(map[string]update.Result, len(types))
	var firstErr error
	for _, t := range types {
		result, err := e.SyncType(ctx, t, dryRun)
		if err != nil {
			slog.Warn("sync round failed", "entity_type", t, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		results[t] = result
	}
	return results, firstErr
}

func errorStrings(errs []update.OperationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = strings.TrimSpace(fmt.Sprintf("%s %s (%s): %s", e.EntityType, e.EntityID, e.ChangeType, e.Message))
	}
	return out
}
