package entity

import "time"

// Record is a raw entity payload as returned by a migration unit.
// Values are the result of generic JSON/YAML decoding: strings, bools,
// float64, nil, []any and map[string]any.
type Record map[string]any

// Snapshot is one entity's persisted state inside a snapshot generation.
// Immutable once written.
type Snapshot struct {
	EntityID          string    `json:"entity_id"`
	EntityType        string    `json:"entity_type"`
	LastModified      string    `json:"last_modified,omitempty"`
	Checksum          string    `json:"checksum"`
	Data              Record    `json:"data"`
	SnapshotTimestamp time.Time `json:"snapshot_timestamp"`
}

// String returns the string value for key, or "" if absent or not a string.
func (r Record) String(key string) string {
	v, ok := r[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// Clone returns a deep copy of the record. Mutating the copy never
// affects the original.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	return Record(cloneValue(map[string]any(r)).(map[string]any))
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = cloneValue(elem)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = cloneValue(elem)
		}
		return out
	default:
		return val
	}
}
