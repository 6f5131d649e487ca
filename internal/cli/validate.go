package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// ValidationResult holds strategy file validation results.
type ValidationResult struct {
	Valid      bool             `json:"valid"`
	Strategies []StrategyConfig `json:"strategies,omitempty"`
	Errors     []string         `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <strategies-file>",
		Short: "Validate a CUE strategy file without planning",
		Long: `Validate a CUE update-strategy declaration file.

Checks syntax, the strategy schema (entity_type, batch_size, priority
bounds) and that declared dependencies refer to declared types. Faster
than a full plan for development feedback.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	configs, err := LoadStrategyConfigs(path)
	if err != nil {
		result := ValidationResult{Valid: false, Errors: []string{err.Error()}}
		if emitErr := formatter.Emit(result, fmt.Sprintf("invalid: %v\n", err)); emitErr != nil {
			return emitErr
		}
		return WrapExitError(GetExitCode(err), "validation failed", err)
	}

	// Dependencies on undeclared types are legal at plan time (absent
	// types are ignored) but usually a typo in a config file; flag them.
	declared := make(map[string]bool, len(configs))
	for _, c := range configs {
		declared[c.EntityType] = true
	}
	var errs []string
	for _, c := range configs {
		for _, dep := range c.DependsOn {
			if !declared[dep] {
				errs = append(errs, fmt.Sprintf("%s depends on undeclared type %q", c.EntityType, dep))
			}
		}
	}

	result := ValidationResult{Valid: len(errs) == 0, Strategies: configs, Errors: errs}

	var text strings.Builder
	if result.Valid {
		fmt.Fprintf(&text, "valid: %d strategies\n", len(configs))
	} else {
		fmt.Fprintln(&text, "invalid:")
		for _, e := range errs {
			fmt.Fprintf(&text, "  %s\n", e)
		}
	}
	if err := formatter.Emit(result, text.String()); err != nil {
		return err
	}
	if !result.Valid {
		return &ExitError{Code: ExitFailure, Message: "validation failed"}
	}
	return nil
}
