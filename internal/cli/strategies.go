package cli

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/driftline/driftsync/internal/update"
)

// StrategyConfig is the declarative part of an update strategy: everything
// except the handlers, which only the embedding application can supply.
type StrategyConfig struct {
	EntityType string   `json:"entity_type"`
	TargetType string   `json:"target_type,omitempty"`
	DependsOn  []string `json:"depends_on,omitempty"`
	BatchSize  int      `json:"batch_size"`
	Priority   int      `json:"priority"`
}

// strategySchema constrains strategy files at load time, so malformed
// declarations fail here rather than as surprising plan behavior.
const strategySchema = `
strategies: [...{
	entity_type: string & !=""
	target_type?: string & !=""
	depends_on?: [...string]
	batch_size: int & >0
	priority: int & >=1 & <=10
}]
`

// LoadStrategyConfigs reads and validates a CUE strategy file.
//
// Layout:
//
//	strategies: [
//		{entity_type: "users", batch_size: 50, priority: 9},
//		{entity_type: "projects", depends_on: ["users"], batch_size: 20, priority: 8},
//	]
func LoadStrategyConfigs(path string) ([]StrategyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ExitError{Code: ExitCommandError, Message: fmt.Sprintf("read strategies file %s", path), Err: err}
	}

	ctx := cuecontext.New()

	schema := ctx.CompileString(strategySchema)
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile strategy schema: %w", err)
	}

	value := ctx.CompileBytes(data, cue.Filename(path))
	if err := value.Err(); err != nil {
		return nil, &ExitError{Code: ExitCommandError, Message: fmt.Sprintf("parse %s", path), Err: err}
	}

	unified := schema.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, &ExitError{Code: ExitFailure, Message: fmt.Sprintf("invalid strategies in %s", path), Err: err}
	}

	var out struct {
		Strategies []StrategyConfig `json:"strategies"`
	}
	if err := unified.Decode(&out); err != nil {
		return nil, &ExitError{Code: ExitCommandError, Message: fmt.Sprintf("decode %s", path), Err: err}
	}
	if len(out.Strategies) == 0 {
		return nil, &ExitError{Code: ExitFailure, Message: fmt.Sprintf("%s declares no strategies", path)}
	}
	return out.Strategies, nil
}

// ApplyStrategyConfigs registers the declared strategies on a manager.
// Handlers stay nil; the embedding application installs real handlers
// after configuration.
func ApplyStrategyConfigs(m *update.Manager, configs []StrategyConfig) {
	for _, c := range configs {
		m.RegisterStrategy(update.Strategy{
			EntityType: c.EntityType,
			TargetType: c.TargetType,
			DependsOn:  c.DependsOn,
			BatchSize:  c.BatchSize,
			Priority:   c.Priority,
		})
	}
}
