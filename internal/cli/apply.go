package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/driftline/driftsync/internal/state"
	"github.com/driftline/driftsync/internal/store"
	"github.com/driftline/driftsync/internal/update"
)

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	*RootOptions
	DryRun         bool
	StrategiesFile string
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply <plan-id>",
		Short: "Execute a persisted update plan",
		Long: `Execute a previously built update plan in per-type batches, strictly
in dependency order. Each operation failure is isolated and collected;
the plan always runs to the end.

--dry-run simulates every operation without invoking any handler: useful
for verifying plan shape before a real run. Real create/update/delete
handlers are registered by the embedding application; strategy files only
declare batching and ordering, so a non-dry run under the bare CLI
reports those operations as failed with "no handler" errors.

An audit record is opened before execution and completed with the run's
success and error counts.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "simulate without invoking handlers")
	cmd.Flags().StringVar(&opts.StrategiesFile, "strategies", "", "CUE strategy declaration file")

	return cmd
}

func runApply(opts *ApplyOptions, planID string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	ctx := cmd.Context()

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

	plan, ok, err := manager.LoadPlan(ctx, planID)
	if err != nil {
		return WrapExitError(ExitCommandError, "load plan", err)
	}
	if !ok {
		return &ExitError{Code: ExitCommandError, Message: fmt.Sprintf("plan %s not found", planID)}
	}

	recordID, err := stateMgr.StartMigrationRecord(ctx,
		opts.Config.Component,
		strings.Join(plan.EntityTypes, ","),
		"selective_update",
		len(plan.Operations),
		"", nil)
	if err != nil {
		return WrapExitError(ExitCommandError, "start migration record", err)
	}

	result := manager.ExecuteUpdatePlan(ctx, plan, opts.DryRun)

	var errMessages []string
	for _, e := range result.Errors {
		errMessages = append(errMessages, fmt.Sprintf("%s %s (%s): %s", e.EntityType, e.EntityID, e.ChangeType, e.Message))
	}
	stateMgr.CompleteMigrationRecord(ctx, recordID, result.OperationsCompleted, result.OperationsFailed, errMessages)

	if err := formatter.Emit(result, RenderResult(result)); err != nil {
		return err
	}
	if result.Status == update.ResultFailed {
		return &ExitError{Code: ExitFailure, Message: fmt.Sprintf("plan %s had %d failed operations", planID, result.OperationsFailed)}
	}
	return nil
}
