package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/sblismoke/internal/config"
	"github.com/roach88/sblismoke/internal/harness"
	"github.com/roach88/sblismoke/internal/runner"
	"github.com/roach88/sblismoke/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Manifest  string
	Workspace string
	Jobs      int
	Cleanup   bool
	Record    string
	Strict    bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate, translate and compile every example application",
		Long: `Run the smoke test over the configured example applications.

Applications are processed one at a time. A failing stage ends that
application only; the run continues with the next one. The exit code is 0
regardless of failures unless --strict is given.

Example:
  sblismoke run
  sblismoke run --manifest smoke.yaml --jobs 8
  sblismoke run --record history.db --strict --format json`,
		Args:          noArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHarness(opts, cmd)
		},
	}

	addRunFlags(cmd, opts)
	return cmd
}

func addRunFlags(cmd *cobra.Command, opts *RunOptions) {
	cmd.Flags().StringVar(&opts.Manifest, "manifest", "", "YAML manifest overriding applications and build settings")
	cmd.Flags().StringVar(&opts.Workspace, "workspace", "", "staging directory (default $OPENSBLI_INSTALL/tests)")
	cmd.Flags().IntVarP(&opts.Jobs, "jobs", "j", 0, "parallel build jobs (default one per CPU)")
	cmd.Flags().BoolVar(&opts.Cleanup, "cleanup", false, "remove the workspace after the run")
	cmd.Flags().StringVar(&opts.Record, "record", "", "append the run to this SQLite history database")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "exit non-zero when any application fails")
}

func runHarness(opts *RunOptions, cmd *cobra.Command) error {
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := loadConfig(opts.RootOptions, opts.Manifest)
	if err != nil {
		return reportError(formatter, err)
	}
	applyRunFlags(cmd, opts, &cfg)
	if err := cfg.Validate(); err != nil {
		return reportError(formatter, WrapExitError(ExitCommandError, "configuration error", err))
	}

	var st *store.Store
	if opts.Record != "" {
		logger.Debug("opening run history", "path", opts.Record)
		st, err = store.Open(opts.Record)
		if err != nil {
			return reportError(formatter, WrapExitError(ExitCommandError, "failed to open run history", err))
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing run history", "error", closeErr)
			}
		}()
	}

	r := opts.Runner
	if r == nil {
		r = runner.NewExecRunner(logger)
	}

	var listener harness.Listener = harness.NopListener{}
	var console *consoleListener
	if opts.Format != "json" {
		console = newConsoleListener(cmd.OutOrStdout())
		listener = console
	}

	h := harness.New(cfg, r, harness.Options{
		Listener: listener,
		Logger:   logger,
		IDs:      opts.IDs,
	})

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, stopping after the current command", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	report, runErr := h.RunAll(ctx)
	if report != nil && st != nil {
		// An interrupted run is still recorded.
		if err := st.WriteReport(context.WithoutCancel(ctx), report, cfg.InstallRoot); err != nil {
			return reportError(formatter, WrapExitError(ExitCommandError, "failed to record run", err))
		}
		logger.Debug("run recorded", "run_id", report.RunID, "path", opts.Record)
	}
	if runErr != nil {
		return reportError(formatter, classifyRunError(runErr))
	}

	if console != nil {
		console.summary(report)
	} else if err := formatter.Success(report.Summary()); err != nil {
		return err
	}

	if opts.Strict && !report.OK() {
		return NewExitError(ExitFailure,
			fmt.Sprintf("%d of %d applications failed", report.Failed, report.Total()))
	}
	return nil
}

// applyRunFlags overlays explicitly set flags onto cfg. Flags win over the
// manifest.
func applyRunFlags(cmd *cobra.Command, opts *RunOptions, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("workspace") {
		cfg.Workspace = opts.Workspace
	}
	if flags.Changed("jobs") {
		cfg.Jobs = opts.Jobs
	}
	if flags.Changed("cleanup") {
		cfg.Cleanup = opts.Cleanup
	}
}

func classifyRunError(err error) *ExitError {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return WrapExitError(ExitFailure, "run interrupted", err)
	case errors.Is(err, config.ErrMissingEnv):
		return WrapExitError(ExitCommandError, "configuration error", err)
	}
	var argErr *harness.ArgumentError
	if errors.As(err, &argErr) {
		return WrapExitError(ExitCommandError, "invalid argument", err)
	}
	return WrapExitError(ExitCommandError, "run aborted", err)
}

// reportError writes a JSON error envelope when JSON output is selected
// and returns err for the caller to turn into an exit code.
// If the envelope cannot be written the failure goes to the error writer.
func reportError(f *OutputFormatter, err error) error {
	if f.Format == "json" {
		if writeErr := f.Error(errorCode(err), err.Error(), nil); writeErr != nil {
			fmt.Fprintf(f.GetErrWriter(), "failed to write error response: %v\n", writeErr)
		}
	}
	return err
}

func errorCode(err error) string {
	var cfgErr *config.ConfigError
	var argErr *harness.ArgumentError
	switch {
	case errors.As(err, &cfgErr):
		return ErrCodeConfig
	case errors.As(err, &argErr):
		return ErrCodeGeneric
	case errors.Is(err, config.ErrInvalidManifest):
		return ErrCodeManifest
	case errors.Is(err, store.ErrRunNotFound):
		return ErrCodeStore
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		switch exitErr.Message {
		case "invalid manifest":
			return ErrCodeManifest
		case "run aborted":
			return ErrCodeStage
		case "failed to open run history", "failed to record run",
			"history database not found", "failed to read run history":
			return ErrCodeStore
		}
	}
	return ErrCodeGeneric
}
