package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/driftline/driftsync/internal/entity"
)

func TestPriorityFor_BaseAndModifiers(t *testing.T) {
	// users base 8, deleted +2 = 10.
	assert.Equal(t, 10, priorityFor("users", ChangeDeleted, entity.Record{}, nil))

	// comments base 2, updated +0 = 2.
	assert.Equal(t, 2, priorityFor("comments", ChangeUpdated, entity.Record{}, entity.Record{}))

	// unknown type gets the default base, created +1.
	assert.Equal(t, defaultBasePriority+1, priorityFor("widgets", ChangeCreated, nil, entity.Record{}))
}

func TestPriorityFor_ClampedToTen(t *testing.T) {
	// users deleted would be 10 already; an archival boost must not
	// push past the ceiling.
	old := entity.Record{"archived": false}
	new_ := entity.Record{"archived": true}
	p := priorityFor("users", ChangeDeleted, old, new_)
	assert.Equal(t, 10, p)
}

func TestContentModifier_ArchivedBoost(t *testing.T) {
	old := entity.Record{"archived": false}
	new_ := entity.Record{"archived": true}
	assert.Equal(t, 1, contentModifier(old, new_))

	// Already archived: no boost.
	assert.Equal(t, 0, contentModifier(new_, new_))
}

func TestContentModifier_DeactivationBoost(t *testing.T) {
	old := entity.Record{"active": true}
	new_ := entity.Record{"active": false}
	assert.Equal(t, 1, contentModifier(old, new_))

	// Activation is not boosted.
	assert.Equal(t, 0, contentModifier(new_, old))
}
