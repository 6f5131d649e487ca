package cli

import (
	"github.com/spf13/cobra"

	"github.com/driftline/driftsync/internal/detect"
	"github.com/driftline/driftsync/internal/store"
)

// DetectOptions holds flags for the detect command.
type DetectOptions struct {
	*RootOptions
	EntityType string
	Refresh    bool
}

// NewDetectCommand creates the detect command.
func NewDetectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DetectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "detect <entities-file>",
		Short: "Diff current entities against the last snapshot",
		Long: `Load the current entity list from a YAML or JSON file and diff it
against the stored baseline snapshot for the given entity type.

With no baseline every entity reports as created (cold start). Pass
--refresh to persist a new snapshot after detection so the next run
diffs against today's state.

Example:
  driftsync detect --db sync.db --type users ./export/users.yaml
  driftsync detect --db sync.db --type projects --refresh ./export/projects.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDetect(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.EntityType, "type", "", "entity type (required)")
	_ = cmd.MarkFlagRequired("type")
	cmd.Flags().BoolVar(&opts.Refresh, "refresh", false, "persist a new snapshot after detection")

	return cmd
}

func runDetect(opts *DetectOptions, entitiesPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	entities, err := LoadEntities(entitiesPath)
	if err != nil {
		return err
	}

	s, err := store.Open(opts.Config.DatabasePath)
	if err != nil {
		return WrapExitError(ExitCommandError, "open store", err)
	}
	defer s.Close()

	detector := detect.NewDetector(s)
	report := detector.DetectChanges(cmd.Context(), entities, opts.EntityType)

	if opts.Refresh {
		if _, err := detector.CreateSnapshot(cmd.Context(), entities, opts.EntityType, "detect --refresh"); err != nil {
			return WrapExitError(ExitCommandError, "refresh snapshot", err)
		}
	}

	return formatter.Emit(report, RenderReport(report))
}
