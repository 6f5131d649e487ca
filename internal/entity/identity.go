package entity

import "strconv"

// idFieldsByType maps an entity type to the ordered list of fields that
// hold its natural key. Types not listed fall back to genericIDFields.
var idFieldsByType = map[string][]string{
	"users":         {"accountId", "id", "key"},
	"projects":      {"key", "id"},
	"work_packages": {"id", "key"},
	"issue_types":   {"id", "name"},
	"statuses":      {"id", "name"},
	"custom_fields": {"id", "name"},
}

// genericIDFields is the fallback candidate list for unlisted types.
var genericIDFields = []string{"id", "key", "accountId", "name"}

// lastModifiedFields are checked in order when extracting an entity's
// upstream modification timestamp. Purely informational: change detection
// relies on checksums, never on these.
var lastModifiedFields = []string{"updated", "updatedAt", "updated_at", "lastModified", "modified"}

// ResolveID extracts the natural key of an entity record.
// Returns "" if no candidate field holds a non-empty string or number.
func ResolveID(data Record, entityType string) string {
	candidates, ok := idFieldsByType[entityType]
	if !ok {
		candidates = genericIDFields
	}
	for _, field := range candidates {
		if id := stringify(data[field]); id != "" {
			return id
		}
	}
	return ""
}

// ResolveLastModified extracts the first present timestamp candidate.
// Returns "" when the record carries none.
func ResolveLastModified(data Record) string {
	for _, field := range lastModifiedFields {
		if ts := data.String(field); ts != "" {
			return ts
		}
	}
	return ""
}

// stringify renders id-bearing values. Upstream systems are inconsistent
// about whether ids arrive as strings or numbers.
func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return ""
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return ""
	}
}
