package entity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefix for content checksums. Version suffix enables future
// algorithm migration without colliding with old checksums.
const checksumDomain = "driftsync/entity/v1"

// volatileFields are excluded from checksum computation at every nesting
// depth. These change between API reads without the entity itself having
// changed: self links, view timestamps, rendered/computed fields.
var volatileFields = map[string]bool{
	"self":           true,
	"expand":         true,
	"lastViewed":     true,
	"avatarUrls":     true,
	"renderedFields": true,
	"_links":         true,
}

// Checksum computes the content hash of an entity record.
// Format: SHA256(domain + 0x00 + canonicalJSON). The null byte separator
// prevents domain/data boundary ambiguity.
//
// Volatile fields are stripped before hashing and object keys are sorted,
// so the checksum is stable across reads and across processes as long as
// the entity's substantive content is unchanged.
func Checksum(data Record) (string, error) {
	stripped := stripVolatile(map[string]any(data))

	canonical, err := MarshalCanonical(stripped)
	if err != nil {
		return "", fmt.Errorf("checksum: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(checksumDomain))
	h.Write([]byte{0x00})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// stripVolatile returns a copy of v with volatile keys removed at every
// depth. The input is never mutated.
func stripVolatile(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			if volatileFields[k] {
				continue
			}
			out[k] = stripVolatile(elem)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = stripVolatile(elem)
		}
		return out
	default:
		return val
	}
}
