package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/driftline/driftsync/internal/detect"
	"github.com/driftline/driftsync/internal/store"
)

// SnapshotOptions holds flags for the snapshot command.
type SnapshotOptions struct {
	*RootOptions
	EntityType string
	Label      string
}

// NewSnapshotCommand creates the snapshot command.
func NewSnapshotCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SnapshotOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "snapshot <entities-file>",
		Short: "Persist a baseline snapshot for an entity type",
		Long: `Archive the current entity list as the new baseline snapshot for the
given entity type. Future detect runs diff against this generation.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshot(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.EntityType, "type", "", "entity type (required)")
	_ = cmd.MarkFlagRequired("type")
	cmd.Flags().StringVar(&opts.Label, "label", "manual", "producer label recorded with the snapshot")

	return cmd
}

func runSnapshot(opts *SnapshotOptions, entitiesPath string, cmd *cobra.Command) error {
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
	setID, err := detector.CreateSnapshot(cmd.Context(), entities, opts.EntityType, opts.Label)
	if err != nil {
		return WrapExitError(ExitCommandError, "create snapshot", err)
	}

	data := map[string]any{"set_id": setID, "entity_type": opts.EntityType, "entities": len(entities)}
	return formatter.Emit(data, fmt.Sprintf("Snapshot %s created for %s (%d entities)\n", setID, opts.EntityType, len(entities)))
}
