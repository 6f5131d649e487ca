package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/driftline/driftsync/internal/detect"
	"github.com/driftline/driftsync/internal/state"
	"github.com/driftline/driftsync/internal/update"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Run failure (plan execution had operation failures, validation failed)
	ExitCommandError = 2 // Command error (invalid paths, database not found, etc.)
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format  string
	Writer  io.Writer
	Verbose bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string `json:"status"` // "ok" or "error"
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Emit outputs data in the configured format: the JSON envelope, or the
// provided text rendering.
func (f *OutputFormatter) Emit(data any, text string) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	_, err := fmt.Fprint(f.Writer, text)
	return err
}

// RenderReport produces the human-readable form of a change report.
func RenderReport(report detect.ChangeReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Change report: %s\n", report.Summary)
	if report.BaselineSnapshotTimestamp != nil {
		fmt.Fprintf(&b, "Baseline: %s\n", report.BaselineSnapshotTimestamp.Format(time.RFC3339))
	} else {
		fmt.Fprintln(&b, "Baseline: none (cold start)")
	}
	for _, c := range report.Changes {
		fmt.Fprintf(&b, "  [p%d] %-7s %s %s\n", c.Priority, c.ChangeType, c.EntityType, c.EntityID)
	}
	return b.String()
}

// RenderPlan produces the human-readable form of an update plan.
func RenderPlan(plan update.Plan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Plan %s\n", plan.PlanID)
	fmt.Fprintf(&b, "Dependency order: %s\n", strings.Join(plan.DependencyOrder, " -> "))
	fmt.Fprintf(&b, "Operations: %d (estimated %s)\n", len(plan.Operations), plan.EstimatedDuration)
	for _, op := range plan.Operations {
		fmt.Fprintf(&b, "  [p%d] %-7s %s %s\n", op.Priority, op.ChangeType, op.EntityType, op.EntityID)
	}
	return b.String()
}

// RenderResult produces the human-readable form of an execution result.
func RenderResult(result update.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Plan %s: %s", result.PlanID, result.Status)
	if result.DryRun {
		b.WriteString(" (dry run)")
	}
	b.WriteByte('\n')
	fmt.Fprintf(&b, "Completed: %d  Failed: %d  Skipped: %d\n",
		result.OperationsCompleted, result.OperationsFailed, result.OperationsSkipped)
	for _, e := range result.Errors {
		fmt.Fprintf(&b, "  error: %s %s (%s): %s\n", e.EntityType, e.EntityID, e.ChangeType, e.Message)
	}
	for _, w := range result.Warnings {
		fmt.Fprintf(&b, "  warning: %s\n", w)
	}
	return b.String()
}

// RenderStatistics produces the human-readable form of mapping statistics.
func RenderStatistics(stats state.MappingStatistics) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Mappings: %d\n", stats.Total)
	writeCounts(&b, "By source type", stats.BySource)
	writeCounts(&b, "By target type", stats.ByTarget)
	writeCounts(&b, "By component", stats.ByComponent)
	return b.String()
}

func writeCounts(b *strings.Builder, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	fmt.Fprintf(b, "%s:\n", title)
	for _, key := range sortedKeys(counts) {
		fmt.Fprintf(b, "  %-20s %d\n", key, counts[key])
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
