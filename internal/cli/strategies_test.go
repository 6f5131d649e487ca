package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/driftsync/internal/update"
)

const validStrategies = `
strategies: [
	{entity_type: "users", batch_size: 50, priority: 9},
	{entity_type: "projects", target_type: "op_projects", depends_on: ["users"], batch_size: 20, priority: 8},
]
`

func TestLoadStrategyConfigs_Valid(t *testing.T) {
	path := writeFile(t, "strategies.cue", validStrategies)

	configs, err := LoadStrategyConfigs(path)
	require.NoError(t, err)
	require.Len(t, configs, 2)

	assert.Equal(t, "users", configs[0].EntityType)
	assert.Equal(t, 50, configs[0].BatchSize)
	assert.Equal(t, 9, configs[0].Priority)

	assert.Equal(t, "op_projects", configs[1].TargetType)
	assert.Equal(t, []string{"users"}, configs[1].DependsOn)
}

func TestLoadStrategyConfigs_SyntaxError(t *testing.T) {
	path := writeFile(t, "broken.cue", `strategies: [{entity_type:`)

	_, err := LoadStrategyConfigs(path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestLoadStrategyConfigs_SchemaViolations(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"empty entity type", `strategies: [{entity_type: "", batch_size: 10, priority: 5}]`},
		{"zero batch size", `strategies: [{entity_type: "users", batch_size: 0, priority: 5}]`},
		{"priority out of range", `strategies: [{entity_type: "users", batch_size: 10, priority: 11}]`},
		{"missing priority", `strategies: [{entity_type: "users", batch_size: 10}]`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeFile(t, "bad.cue", tc.body)
			_, err := LoadStrategyConfigs(path)
			require.Error(t, err)
			assert.Equal(t, ExitFailure, GetExitCode(err))
		})
	}
}

func TestLoadStrategyConfigs_EmptyList(t *testing.T) {
	path := writeFile(t, "empty.cue", `strategies: []`)

	_, err := LoadStrategyConfigs(path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestApplyStrategyConfigs(t *testing.T) {
	m := update.NewManager(nil, nil)
	ApplyStrategyConfigs(m, []StrategyConfig{
		{EntityType: "widgets", TargetType: "gadgets", DependsOn: []string{"users"}, BatchSize: 10, Priority: 5},
	})

	s, ok := m.Strategy("widgets")
	require.True(t, ok)
	assert.Equal(t, "gadgets", s.TargetType)
	assert.Equal(t, []string{"users"}, s.DependsOn)
	assert.Equal(t, 10, s.BatchSize)
	assert.Nil(t, s.Create)
}

func TestApplyStrategyConfigs_OverridesDefaults(t *testing.T) {
	m := update.NewManager(nil, nil)
	ApplyStrategyConfigs(m, []StrategyConfig{
		{EntityType: "users", BatchSize: 5, Priority: 2},
	})

	s, ok := m.Strategy("users")
	require.True(t, ok)
	assert.Equal(t, 5, s.BatchSize)
	assert.Equal(t, 2, s.Priority)
}
