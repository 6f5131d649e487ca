package detect

import "github.com/driftline/driftsync/internal/entity"

// basePriority ranks entity types by structural weight: identity and
// container types sync before leaf content that references them.
var basePriority = map[string]int{
	"users":         8,
	"projects":      7,
	"issue_types":   6,
	"statuses":      6,
	"custom_fields": 6,
	"work_packages": 5,
	"attachments":   3,
	"comments":      2,
}

const defaultBasePriority = 4

// changeTypeModifier boosts deletions (most disruptive if missed) and
// creations over plain updates.
var changeTypeModifier = map[ChangeType]int{
	ChangeDeleted: 2,
	ChangeCreated: 1,
	ChangeUpdated: 0,
}

// priorityFor computes a change's 1-10 priority: base priority for the
// entity type, plus the change-type modifier, plus content boosts for
// state transitions that downstream types depend on (an entity becoming
// archived or deactivated).
func priorityFor(entityType string, changeType ChangeType, oldData, newData entity.Record) int {
	p, ok := basePriority[entityType]
	if !ok {
		p = defaultBasePriority
	}
	p += changeTypeModifier[changeType]
	p += contentModifier(oldData, newData)

	if p < 1 {
		p = 1
	}
	if p > 10 {
		p = 10
	}
	return p
}

// contentModifier inspects the payloads for domain transitions worth
// surfacing earlier in the report.
func contentModifier(oldData, newData entity.Record) int {
	boost := 0
	if becameTrue(oldData, newData, "archived") {
		boost++
	}
	if becameFalse(oldData, newData, "active") {
		boost++
	}
	return boost
}

func becameTrue(oldData, newData entity.Record, key string) bool {
	was, _ := oldData[key].(bool)
	now, _ := newData[key].(bool)
	return now && !was
}

func becameFalse(oldData, newData entity.Record, key string) bool {
	if oldData == nil || newData == nil {
		return false
	}
	was, wasOK := oldData[key].(bool)
	now, nowOK := newData[key].(bool)
	return wasOK && nowOK && was && !now
}
