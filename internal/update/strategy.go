package update

import (
	"context"

	"github.com/driftline/driftsync/internal/detect"
	"github.com/driftline/driftsync/internal/entity"
)

// CreateHandler applies a "created" change against the target system and
// returns the created target entity record. The engine resolves the new
// target identity from that record to register the entity mapping.
type CreateHandler func(ctx context.Context, change detect.EntityChange) (entity.Record, error)

// UpdateHandler applies an "updated" change against the target system.
type UpdateHandler func(ctx context.Context, change detect.EntityChange) error

// DeleteHandler applies a "deleted" change against the target system.
type DeleteHandler func(ctx context.Context, change detect.EntityChange) error

// Strategy describes how one entity type is updated: its handlers, the
// entity types that must be attempted before it, and its batching.
//
// Any handler may be nil; an operation whose change type has no handler is
// counted as a failure for that operation only.
type Strategy struct {
	// EntityType is the source-side type this strategy owns.
	// Exact-match: "Users" and "users" are distinct.
	EntityType string

	// TargetType is the target-side type for mapping registration.
	// Empty means same as EntityType.
	TargetType string

	Create CreateHandler
	Update UpdateHandler
	Delete DeleteHandler

	// DependsOn lists entity types that must be attempted earlier in the
	// same plan. Declared dependencies absent from a plan are ignored.
	DependsOn []string

	// BatchSize splits the type's operations into sequential batches.
	// Batches are a throughput unit, not a transaction.
	BatchSize int

	// Priority orders reporting; execution order comes from DependsOn.
	Priority int
}

// targetType resolves the mapping target type.
func (s Strategy) targetType() string {
	if s.TargetType != "" {
		return s.TargetType
	}
	return s.EntityType
}

// defaultStrategies are illustrative structural defaults: identity types
// first, containers next, leaf content last. Handlers are intentionally
// nil; the embedding application registers real ones. Any override via
// RegisterStrategy replaces the default wholesale.
func defaultStrategies() []Strategy {
	return []Strategy{
		{EntityType: "users", BatchSize: 50, Priority: 9},
		{EntityType: "projects", DependsOn: []string{"users"}, BatchSize: 20, Priority: 8},
		{EntityType: "work_packages", DependsOn: []string{"projects", "users"}, BatchSize: 25, Priority: 6},
		{EntityType: "attachments", DependsOn: []string{"work_packages"}, BatchSize: 10, Priority: 4},
		{EntityType: "comments", DependsOn: []string{"work_packages", "users"}, BatchSize: 30, Priority: 3},
	}
}
