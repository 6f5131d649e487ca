package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/driftline/driftsync/internal/state"
	"github.com/driftline/driftsync/internal/store"
)

// NewStateCommand creates the state command group.
func NewStateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect and maintain the durable sync state",
	}

	cmd.AddCommand(newStateStatsCommand(rootOpts))
	cmd.AddCommand(newStateSnapshotCommand(rootOpts))
	cmd.AddCommand(newStateCleanupCommand(rootOpts))
	cmd.AddCommand(newStateMappingCommand(rootOpts))

	return cmd
}

// openState opens the store and restores the state manager over it.
// Callers must Close the returned store.
func openState(opts *RootOptions, cmd *cobra.Command) (*store.Store, *state.Manager, error) {
	s, err := store.Open(opts.Config.DatabasePath)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "open store", err)
	}
	return s, state.NewManager(cmd.Context(), s), nil
}

func newStateStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "stats",
		Short:         "Show mapping counts by source type, target type and component",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout(), Verbose: rootOpts.Verbose}

			s, mgr, err := openState(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			stats, err := mgr.MappingStatistics(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "mapping statistics", err)
			}
			return formatter.Emit(stats, RenderStatistics(stats))
		},
	}
}

func newStateSnapshotCommand(rootOpts *RootOptions) *cobra.Command {
	var description, user string

	cmd := &cobra.Command{
		Use:           "snapshot",
		Short:         "Archive a point-in-time export of all mappings and records",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout(), Verbose: rootOpts.Verbose}

			s, mgr, err := openState(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			snapshotID, err := mgr.CreateStateSnapshot(cmd.Context(), description, user, nil)
			if err != nil {
				return WrapExitError(ExitCommandError, "create state snapshot", err)
			}
			data := map[string]any{"snapshot_id": snapshotID}
			return formatter.Emit(data, fmt.Sprintf("State snapshot %s created\n", snapshotID))
		},
	}

	cmd.Flags().StringVar(&description, "description", "", "what this snapshot captures (required)")
	_ = cmd.MarkFlagRequired("description")
	cmd.Flags().StringVar(&user, "user", "", "actor recorded with the snapshot")

	return cmd
}

func newStateCleanupCommand(rootOpts *RootOptions) *cobra.Command {
	var keepDays int

	cmd := &cobra.Command{
		Use:           "cleanup",
		Short:         "Delete archived snapshots older than the retention window",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout(), Verbose: rootOpts.Verbose}

			s, mgr, err := openState(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			days := keepDays
			if days == 0 {
				days = rootOpts.Config.KeepDays
			}
			deleted, err := mgr.CleanupOldState(cmd.Context(), days)
			if err != nil {
				return WrapExitError(ExitCommandError, "cleanup", err)
			}
			data := map[string]any{"deleted": deleted, "keep_days": days}
			return formatter.Emit(data, fmt.Sprintf("Deleted %d archived snapshots older than %d days\n", deleted, days))
		},
	}

	cmd.Flags().IntVar(&keepDays, "keep-days", 0, "retention window in days (default from config)")

	return cmd
}

func newStateMappingCommand(rootOpts *RootOptions) *cobra.Command {
	var reverse bool

	cmd := &cobra.Command{
		Use:           "mapping <entity-type> <entity-id>",
		Short:         "Look up an entity mapping by source (or target) identity",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout(), Verbose: rootOpts.Verbose}

			s, mgr, err := openState(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			var mapping state.EntityMapping
			var ok bool
			if reverse {
				mapping, ok = mgr.ReverseMapping(cmd.Context(), args[0], args[1])
			} else {
				mapping, ok = mgr.EntityMapping(cmd.Context(), args[0], args[1])
			}
			if !ok {
				return &ExitError{Code: ExitFailure, Message: fmt.Sprintf("no mapping for %s %s", args[0], args[1])}
			}

			text := fmt.Sprintf("%s %s -> %s %s (mapping %s, by %s)\n",
				mapping.SourceEntityType, mapping.SourceEntityID,
				mapping.TargetEntityType, mapping.TargetEntityID,
				mapping.MappingID, mapping.MappedBy)
			return formatter.Emit(mapping, text)
		},
	}

	cmd.Flags().BoolVar(&reverse, "reverse", false, "look up by target identity instead of source")

	return cmd
}
