package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func widget() Record {
	return Record{
		"id":     "w-1",
		"name":   "Widget One",
		"active": true,
		"nested": map[string]any{"size": float64(3)},
	}
}

func TestChecksum_Stable(t *testing.T) {
	first, err := Checksum(widget())
	require.NoError(t, err)
	second, err := Checksum(widget())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestChecksum_ChangesOnContentChange(t *testing.T) {
	base, err := Checksum(widget())
	require.NoError(t, err)

	changed := widget()
	changed["name"] = "Widget One Renamed"
	after, err := Checksum(changed)
	require.NoError(t, err)
	assert.NotEqual(t, base, after)

	nested := widget()
	nested["nested"].(map[string]any)["size"] = float64(4)
	afterNested, err := Checksum(nested)
	require.NoError(t, err)
	assert.NotEqual(t, base, afterNested)
}

func TestChecksum_IgnoresVolatileFields(t *testing.T) {
	base, err := Checksum(widget())
	require.NoError(t, err)

	noisy := widget()
	noisy["self"] = "https://source.example.com/rest/api/2/widget/w-1"
	noisy["lastViewed"] = "2026-08-26T10:00:00Z"
	noisy["avatarUrls"] = map[string]any{"48x48": "https://img.example.com/a.png"}
	after, err := Checksum(noisy)
	require.NoError(t, err)
	assert.Equal(t, base, after)
}

func TestChecksum_IgnoresVolatileFieldsNested(t *testing.T) {
	base := widget()
	base["nested"].(map[string]any)["self"] = "https://a.example.com/1"
	withLink, err := Checksum(base)
	require.NoError(t, err)

	plain, err := Checksum(widget())
	require.NoError(t, err)
	assert.Equal(t, plain, withLink)
}

func TestChecksum_DoesNotMutateInput(t *testing.T) {
	r := widget()
	r["self"] = "kept"
	_, err := Checksum(r)
	require.NoError(t, err)
	assert.Equal(t, "kept", r["self"])
}
