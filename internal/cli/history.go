package cli

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/sblismoke/internal/store"
)

// HistoryOptions holds flags for the history command and its subcommands.
type HistoryOptions struct {
	*RootOptions
	Database string
	Limit    int
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show runs recorded with run --record",
		Long: `List runs recorded in a history database, newest first.

Example:
  sblismoke history --db history.db
  sblismoke history --db history.db show 0190c4e2-...
  sblismoke history --db history.db failures`,
		Args:          noArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryList(opts, cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite history database (required)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of runs to list (0 for all)")

	cmd.AddCommand(newHistoryShowCommand(opts))
	cmd.AddCommand(newHistoryFailuresCommand(opts))

	return cmd
}

func newHistoryShowCommand(opts *HistoryOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <run-id>",
		Short:         "Show the per-application results of one run",
		Args:          exactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryShow(opts, args[0], cmd)
		},
	}
}

func newHistoryFailuresCommand(opts *HistoryOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "failures",
		Short:         "Count failures per application across all runs",
		Args:          noArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryFailures(opts, cmd)
		},
	}
}

// openHistory opens an existing history database. A missing file is an
// error rather than an empty history.
func openHistory(path string) (*store.Store, error) {
	if path == "" {
		return nil, NewExitError(ExitCommandError, "required flag --db not set")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, WrapExitError(ExitCommandError, "history database not found", err)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open run history", err)
	}
	return st, nil
}

func runHistoryList(opts *HistoryOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	st, err := openHistory(opts.Database)
	if err != nil {
		return reportError(formatter, err)
	}
	defer st.Close()

	runs, err := st.ListRuns(cmd.Context(), opts.Limit)
	if err != nil {
		return reportError(formatter, WrapExitError(ExitCommandError, "failed to read run history", err))
	}

	if formatter.Format == "json" {
		return formatter.Success(runs)
	}

	if len(runs) == 0 {
		fmt.Fprintln(formatter.Writer, "No runs recorded.")
		return nil
	}

	t := newTable("RUN", "STARTED", "DURATION", "PASSED", "FAILED", "OUTCOME")
	for _, run := range runs {
		t.Row(
			run.ID,
			run.StartedAt.Format(time.RFC3339),
			run.FinishedAt.Sub(run.StartedAt).Round(time.Second).String(),
			strconv.Itoa(run.Passed),
			strconv.Itoa(run.Failed),
			shortDigest(run.Digest),
		)
	}
	_, err = fmt.Fprintln(formatter.Writer, t.String())
	return err
}

// shortDigest abbreviates an outcome digest for display. Runs with the
// same per-application results show the same value.
func shortDigest(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}

func runHistoryShow(opts *HistoryOptions, runID string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	st, err := openHistory(opts.Database)
	if err != nil {
		return reportError(formatter, err)
	}
	defer st.Close()

	run, err := st.ReadRun(cmd.Context(), runID)
	if errors.Is(err, store.ErrRunNotFound) {
		return reportError(formatter, WrapExitError(ExitCommandError, "unknown run", err))
	}
	if err != nil {
		return reportError(formatter, WrapExitError(ExitCommandError, "failed to read run history", err))
	}

	if formatter.Format == "json" {
		return formatter.Success(run)
	}

	fmt.Fprintf(formatter.Writer, "Run %s: %d passed, %d failed\n", run.ID, run.Passed, run.Failed)
	t := newTable("APP", "STATE", "FAILED STAGE", "EXIT")
	for _, app := range run.Apps {
		exit := ""
		if app.FailedStage != "" {
			exit = strconv.Itoa(app.ExitCode)
		}
		t.Row(app.Name, app.State, app.FailedStage, exit)
	}
	fmt.Fprintln(formatter.Writer, t.String())

	if opts.Verbose {
		for _, app := range run.Apps {
			if app.FailedStage == "" {
				continue
			}
			fmt.Fprintf(formatter.Writer, "\n%s: %s\n%s\n", app.Name, app.Command, app.Stderr)
		}
	}
	return nil
}

func runHistoryFailures(opts *HistoryOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	st, err := openHistory(opts.Database)
	if err != nil {
		return reportError(formatter, err)
	}
	defer st.Close()

	counts, err := st.FailureCounts(cmd.Context())
	if err != nil {
		return reportError(formatter, WrapExitError(ExitCommandError, "failed to read run history", err))
	}

	if formatter.Format == "json" {
		return formatter.Success(counts)
	}

	if len(counts) == 0 {
		fmt.Fprintln(formatter.Writer, "No failures recorded.")
		return nil
	}

	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	slices.Sort(names)

	t := newTable("APP", "FAILURES")
	for _, name := range names {
		t.Row(name, strconv.Itoa(counts[name]))
	}
	_, err = fmt.Fprintln(formatter.Writer, t.String())
	return err
}
