package cli

import (
	"github.com/spf13/cobra"

	"github.com/driftline/driftsync/internal/detect"
	"github.com/driftline/driftsync/internal/state"
	"github.com/driftline/driftsync/internal/store"
	"github.com/driftline/driftsync/internal/update"
)

// PlanOptions holds flags for the plan command.
type PlanOptions struct {
	*RootOptions
	EntityType     string
	StrategiesFile string
	MaxBatchSize   int
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plan <entities-file>",
		Short: "Detect changes and build a dependency-ordered update plan",
		Long: `Run change detection for the given entity type and turn the report
into a persisted, dependency-ordered update plan.

Strategy declarations (batch size, priority, inter-type dependencies) come
from the built-in defaults, optionally overridden by a CUE strategy file.

Example:
  driftsync plan --db sync.db --type users ./export/users.yaml
  driftsync plan --db sync.db --type projects --strategies ./strategies.cue ./export/projects.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.EntityType, "type", "", "entity type (required)")
	_ = cmd.MarkFlagRequired("type")
	cmd.Flags().StringVar(&opts.StrategiesFile, "strategies", "", "CUE strategy declaration file")
	cmd.Flags().IntVar(&opts.MaxBatchSize, "max-batch", 0, "cap every strategy's batch size")

	return cmd
}

func runPlan(opts *PlanOptions, entitiesPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	ctx := cmd.Context()

	entities, err := LoadEntities(entitiesPath)
	if err != nil {
		return err
	}

	s, err := store.Open(opts.Config.DatabasePath)
	if err != nil {
		return WrapExitError(ExitCommandError, "open store", err)
	}
	defer s.Close()

	stateMgr := state.NewManager(ctx, s)
	manager := update.NewManager(stateMgr, s)

	if opts.StrategiesFile != "" {
		configs, err := LoadStrategyConfigs(opts.StrategiesFile)
		if err != nil {
			return err
		}
		ApplyStrategyConfigs(manager, configs)
	}

	detector := detect.NewDetector(s)
	report := detector.DetectChanges(ctx, entities, opts.EntityType)

	plan, err := manager.AnalyzeChanges(ctx, report, update.Settings{
		Component:    opts.Config.Component,
		MaxBatchSize: opts.MaxBatchSize,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "analyze changes", err)
	}

	return formatter.Emit(plan, RenderReport(report)+RenderPlan(plan))
}
