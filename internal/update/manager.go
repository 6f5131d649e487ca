// Package update turns a ChangeReport into a dependency-ordered, batched
// execution plan and runs it against registered per-type strategies.
//
// Execution is sequential by design: operations for an entity type run
// only after all operations for its declared dependency types have been
// attempted, and within a type batch order is stable. Failures are
// isolated per operation and collected into the result; they never abort
// the remaining batch or plan.
package update

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/driftline/driftsync/internal/detect"
	"github.com/driftline/driftsync/internal/entity"
)

// MappingRegistrar is the slice of the state manager the executor needs:
// publishing a created entity's identity the moment it exists, so later
// operations in the same plan can resolve it.
type MappingRegistrar interface {
	RegisterEntityMapping(ctx context.Context, sourceType, sourceID, targetType, targetID, component string, metadata map[string]string) (string, error)
}

// PlanStore persists plans and results keyed by plan id for later
// inspection. Implemented by the SQLite store.
type PlanStore interface {
	SavePlan(ctx context.Context, planID string, plan []byte) error
	LoadPlan(ctx context.Context, planID string) ([]byte, bool, error)
	SaveResult(ctx context.Context, planID string, result []byte) error
	LoadResult(ctx context.Context, planID string) ([]byte, bool, error)
}

// Coarse per-operation cost heuristic for EstimatedDuration. Reporting
// only, never correctness.
const (
	costCreated  = 2 * time.Second
	costUpdated  = time.Second
	costDeleted  = 500 * time.Millisecond
	costOverhead = 100 * time.Millisecond
)

// Manager owns the per-type update strategies and drives plan execution.
type Manager struct {
	mu         sync.RWMutex
	strategies map[string]Strategy

	mappings MappingRegistrar
	plans    PlanStore

	// now is replaceable for deterministic tests.
	now func() time.Time

	// newID is replaceable for deterministic tests.
	newID func() string
}

// NewManager constructs a manager with the built-in structural default
// strategies registered. mappings may be nil when the caller never
// executes create operations (planning-only use).
func NewManager(mappings MappingRegistrar, plans PlanStore) *Manager {
	m := &Manager{
		strategies: make(map[string]Strategy),
		mappings:   mappings,
		plans:      plans,
		now:        time.Now,
		newID:      func() string { return uuid.Must(uuid.NewV7()).String() },
	}
	for _, s := range defaultStrategies() {
		m.strategies[s.EntityType] = s
	}
	return m
}

// RegisterStrategy installs a strategy for its entity type, replacing any
// existing registration for that type.
func (m *Manager) RegisterStrategy(s Strategy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strategies[s.EntityType] = s
}

// Strategy returns the registered strategy for an entity type.
func (m *Manager) Strategy(entityType string) (Strategy, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.strategies[entityType]
	return s, ok
}

// AnalyzeChanges builds an execution plan from a change report.
//
// Changes whose entity type has no registered strategy are skipped with a
// warning and dropped from the plan; an unmatched type is never fatal.
// The report's priority ordering carries through to the plan's operation
// list; execution order across types comes from DependencyOrder.
func (m *Manager) AnalyzeChanges(ctx context.Context, report detect.ChangeReport, settings Settings) (Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var operations []Operation
	present := make(map[string]bool)
	estimated := time.Duration(0)

	for _, change := range report.Changes {
		if _, ok := m.strategies[change.EntityType]; !ok {
			slog.Warn("no strategy registered, change skipped",
				"entity_type", change.EntityType, "entity_id", change.EntityID,
				"change_type", change.ChangeType)
			continue
		}
		operations = append(operations, Operation{
			EntityID:   change.EntityID,
			EntityType: change.EntityType,
			ChangeType: change.ChangeType,
			SourceData: change.NewData,
			TargetData: change.OldData,
			Priority:   change.Priority,
		})
		present[change.EntityType] = true
		estimated += operationCost(change.ChangeType)
	}

	order := topoSort(present, func(t string) []string {
		return m.strategies[t].DependsOn
	})

	plan := Plan{
		PlanID:            m.newID(),
		CreatedAt:         m.now().UTC(),
		EntityTypes:       order,
		Operations:        operations,
		DependencyOrder:   order,
		EstimatedDuration: estimated,
		Settings:          settings,
	}

	if m.plans != nil {
		if err := m.savePlan(ctx, plan); err != nil {
			return Plan{}, err
		}
	}
	return plan, nil
}

func operationCost(ct detect.ChangeType) time.Duration {
	switch ct {
	case detect.ChangeCreated:
		return costCreated + costOverhead
	case detect.ChangeUpdated:
		return costUpdated + costOverhead
	case detect.ChangeDeleted:
		return costDeleted + costOverhead
	default:
		return costOverhead
	}
}

// ExecuteUpdatePlan runs a plan's operations grouped by entity type,
// strictly in dependency order, in per-type sequential batches.
//
// Per-operation failures (handler error, handler panic, missing handler)
// are counted and collected with context; they never abort the batch or
// the plan. With dryRun set, no handler is invoked and every operation
// counts as completed.
//
// On create success the new target identity is registered with the state
// manager immediately, so later operations in the same plan can resolve
// the mapping.
func (m *Manager) ExecuteUpdatePlan(ctx context.Context, plan Plan, dryRun bool) Result {
	started := m.now().UTC()
	result := Result{
		PlanID:    plan.PlanID,
		StartedAt: started,
		DryRun:    dryRun,
		Metrics:   Metrics{DurationByType: make(map[string]time.Duration)},
	}

	// Group operations by type, preserving plan order within a type.
	byType := make(map[string][]Operation)
	for _, op := range plan.Operations {
		byType[op.EntityType] = append(byType[op.EntityType], op)
	}

	for _, entityType := range plan.DependencyOrder {
		ops := byType[entityType]
		if len(ops) == 0 {
			continue
		}
		typeStarted := m.now()

		if dryRun {
			// Simulated success for the whole type; no handler lookup, no
			// handler invocation.
			result.OperationsCompleted += len(ops)
			result.Metrics.DurationByType[entityType] = m.now().Sub(typeStarted)
			continue
		}

		strategy, ok := m.Strategy(entityType)
		if !ok {
			// Strategy removed between planning and execution.
			for _, op := range ops {
				result.OperationsFailed++
				result.Errors = append(result.Errors, OperationError{
					EntityType: op.EntityType,
					EntityID:   op.EntityID,
					ChangeType: op.ChangeType,
					Message:    "no strategy registered at execution time",
				})
			}
			continue
		}

		for _, batch := range splitBatches(ops, batchSize(strategy, plan.Settings)) {
			for _, op := range batch {
				if err := ctx.Err(); err != nil {
					// Remaining operations are skipped, not failed.
					result.OperationsSkipped++
					continue
				}
				if err := m.executeOperation(ctx, strategy, op, plan.Settings, &result); err != nil {
					result.OperationsFailed++
					result.Errors = append(result.Errors, OperationError{
						EntityType: op.EntityType,
						EntityID:   op.EntityID,
						ChangeType: op.ChangeType,
						Message:    err.Error(),
					})
					slog.Warn("operation failed",
						"entity_type", op.EntityType, "entity_id", op.EntityID,
						"change_type", op.ChangeType, "error", err)
				} else {
					result.OperationsCompleted++
				}
			}
		}
		result.Metrics.DurationByType[entityType] = m.now().Sub(typeStarted)
	}

	result.CompletedAt = m.now().UTC()
	result.Metrics.Duration = result.CompletedAt.Sub(result.StartedAt)
	if len(result.Errors) == 0 {
		result.Status = ResultCompleted
	} else {
		result.Status = ResultFailed
	}

	if m.plans != nil {
		if err := m.saveResult(ctx, result); err != nil {
			slog.Warn("could not persist update result", "plan_id", plan.PlanID, "error", err)
			result.Warnings = append(result.Warnings, fmt.Sprintf("result not persisted: %v", err))
		}
	}
	return result
}

// executeOperation dispatches one operation to the matching handler.
// Handler panics are recovered and reported as operation errors.
func (m *Manager) executeOperation(ctx context.Context, strategy Strategy, op Operation, settings Settings, result *Result) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	change := detect.EntityChange{
		EntityID:   op.EntityID,
		EntityType: op.EntityType,
		ChangeType: op.ChangeType,
		OldData:    op.TargetData,
		NewData:    op.SourceData,
		Priority:   op.Priority,
	}

	switch op.ChangeType {
	case detect.ChangeCreated:
		if strategy.Create == nil {
			return fmt.Errorf("no create handler for %s", op.EntityType)
		}
		created, err := strategy.Create(ctx, change)
		if err != nil {
			return err
		}
		m.publishMapping(ctx, strategy, op, created, settings, result)
		return nil

	case detect.ChangeUpdated:
		if strategy.Update == nil {
			return fmt.Errorf("no update handler for %s", op.EntityType)
		}
		return strategy.Update(ctx, change)

	case detect.ChangeDeleted:
		if strategy.Delete == nil {
			return fmt.Errorf("no delete handler for %s", op.EntityType)
		}
		return strategy.Delete(ctx, change)

	default:
		return fmt.Errorf("unknown change type %q", op.ChangeType)
	}
}

// publishMapping registers the identity of a just-created target entity.
// Early publication is deliberate: later operations in the same plan may
// cross-reference it. A missing registrar or unresolvable target id
// degrades to a warning; the create itself already succeeded.
func (m *Manager) publishMapping(ctx context.Context, strategy Strategy, op Operation, created entity.Record, settings Settings, result *Result) {
	if m.mappings == nil {
		return
	}
	targetType := strategy.targetType()
	targetID := entity.ResolveID(created, targetType)
	if targetID == "" {
		warning := fmt.Sprintf("created %s %s: target id unresolvable, mapping not registered", op.EntityType, op.EntityID)
		result.Warnings = append(result.Warnings, warning)
		slog.Warn("target id unresolvable, mapping not registered",
			"entity_type", op.EntityType, "entity_id", op.EntityID)
		return
	}
	if _, err := m.mappings.RegisterEntityMapping(ctx, op.EntityType, op.EntityID, targetType, targetID, settings.Component, nil); err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("mapping for %s %s not registered: %v", op.EntityType, op.EntityID, err))
		slog.Warn("mapping registration failed",
			"entity_type", op.EntityType, "entity_id", op.EntityID, "error", err)
	}
}

func batchSize(strategy Strategy, settings Settings) int {
	size := strategy.BatchSize
	if size <= 0 {
		size = 25
	}
	if settings.MaxBatchSize > 0 && size > settings.MaxBatchSize {
		size = settings.MaxBatchSize
	}
	return size
}

// splitBatches slices ops into consecutive batches of at most size,
// preserving input order.
func splitBatches(ops []Operation, size int) [][]Operation {
	var batches [][]Operation
	for len(ops) > 0 {
		n := size
		if n > len(ops) {
			n = len(ops)
		}
		batches = append(batches, ops[:n])
		ops = ops[n:]
	}
	return batches
}

func (m *Manager) savePlan(ctx context.Context, plan Plan) error {
	data, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	if err := m.plans.SavePlan(ctx, plan.PlanID, data); err != nil {
		return fmt.Errorf("persist plan %s: %w", plan.PlanID, err)
	}
	return nil
}

func (m *Manager) saveResult(ctx context.Context, result Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	return m.plans.SaveResult(ctx, result.PlanID, data)
}

// LoadPlan restores a persisted plan by id.
func (m *Manager) LoadPlan(ctx context.Context, planID string) (Plan, bool, error) {
	if m.plans == nil {
		return Plan{}, false, nil
	}
	data, ok, err := m.plans.LoadPlan(ctx, planID)
	if err != nil || !ok {
		return Plan{}, false, err
	}
	var plan Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return Plan{}, false, fmt.Errorf("load plan %s: %w", planID, err)
	}
	return plan, true, nil
}

// LoadResult restores a persisted execution result by plan id.
func (m *Manager) LoadResult(ctx context.Context, planID string) (Result, bool, error) {
	if m.plans == nil {
		return Result{}, false, nil
	}
	data, ok, err := m.plans.LoadResult(ctx, planID)
	if err != nil || !ok {
		return Result{}, false, err
	}
	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return Result{}, false, fmt.Errorf("load result %s: %w", planID, err)
	}
	return result, true, nil
}
