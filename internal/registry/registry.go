// Package registry binds migration units to the entity type strings they
// are authoritative for.
//
// The registry is a constructed object with an explicit lifecycle: created
// once at application bootstrap and passed by reference to every consumer.
// There is deliberately no package-level instance; hidden global state tied
// to import order is what this design replaces.
package registry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/driftline/driftsync/internal/entity"
)

// MigrationUnit is the capability a component must expose to claim entity
// types. The entity-retrieval hook is what the rest of the engine drives:
// CurrentEntities must be deterministic enough that unchanged entities
// produce identical checksums across calls, and must return a typed error
// rather than silent partial data on upstream failure.
type MigrationUnit interface {
	// Name identifies the unit. Two units with the same name are the
	// same registration.
	Name() string

	// CurrentEntities returns the full current entity list for one of the
	// unit's supported types.
	CurrentEntities(ctx context.Context, entityType string) ([]entity.Record, error)
}

// Registry is the process-wide association between migration units and
// entity types. Safe for concurrent registration and lookup.
type Registry struct {
	mu sync.RWMutex

	// unit name -> registered unit and its ordered type list.
	units map[string]registration

	// entity type -> owning unit name. Later registrations win (soft
	// conflict, warned not rejected).
	byType map[string]string
}

type registration struct {
	unit  MigrationUnit
	types []string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		units:  make(map[string]registration),
		byType: make(map[string]string),
	}
}

// Register binds a unit to the entity types it owns. The first type in
// the list is the unit's primary type. Re-registering a unit replaces its
// full type list.
//
// If a type is already claimed by a different unit, the later registration
// wins for reverse lookup and a warning is logged; this is a known
// soft-conflict policy, not an error.
//
// Type strings match exactly: "Users" and "users" are distinct types.
func (r *Registry) Register(unit MigrationUnit, entityTypes ...string) error {
	if unit == nil {
		return &RegistrationError{Code: ErrCodeNilUnit, Message: "migration unit is nil"}
	}
	if len(entityTypes) == 0 {
		return &RegistrationError{
			Code:    ErrCodeEmptyTypes,
			Unit:    unit.Name(),
			Message: "entity type list must not be empty",
		}
	}
	for _, t := range entityTypes {
		if t == "" {
			return &RegistrationError{
				Code:    ErrCodeEmptyTypes,
				Unit:    unit.Name(),
				Message: "entity type must not be the empty string",
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := unit.Name()

	// Drop reverse-lookup claims from a previous registration of this unit.
	if prev, ok := r.units[name]; ok {
		for _, t := range prev.types {
			if r.byType[t] == name {
				delete(r.byType, t)
			}
		}
	}

	for _, t := range entityTypes {
		if owner, claimed := r.byType[t]; claimed && owner != name {
			slog.Warn("entity type claimed by multiple units, later registration wins",
				"entity_type", t, "previous_unit", owner, "unit", name)
		}
		r.byType[t] = name
	}

	types := make([]string, len(entityTypes))
	copy(types, entityTypes)
	r.units[name] = registration{unit: unit, types: types}

	return nil
}

// Resolve returns the unit's primary entity type (the first in its
// registered list). Fails with ErrNotRegistered for unknown units.
func (r *Registry) Resolve(unit MigrationUnit) (string, error) {
	if unit == nil {
		return "", ErrNotRegistered
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.units[unit.Name()]
	if !ok {
		return "", ErrNotRegistered
	}
	return reg.types[0], nil
}

// SupportedTypes returns the unit's full ordered type list as a defensive
// copy; mutating the result never affects registry state.
func (r *Registry) SupportedTypes(unit MigrationUnit) ([]string, error) {
	if unit == nil {
		return nil, ErrNotRegistered
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.units[unit.Name()]
	if !ok {
		return nil, ErrNotRegistered
	}
	out := make([]string, len(reg.types))
	copy(out, reg.types)
	return out, nil
}

// UnitForType returns the unit currently claiming an entity type, or
// (nil, false) when no unit claims it.
func (r *Registry) UnitForType(entityType string) (MigrationUnit, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name, ok := r.byType[entityType]
	if !ok {
		return nil, false
	}
	return r.units[name].unit, true
}

// AllTypes returns the set of every registered entity type.
func (r *Registry) AllTypes() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]bool, len(r.byType))
	for t := range r.byType {
		out[t] = true
	}
	return out
}

// Clear wipes all registrations. Reset hook for tests.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.units = make(map[string]registration)
	r.byType = make(map[string]string)
}
