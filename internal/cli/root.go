package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/sblismoke/internal/config"
	"github.com/roach88/sblismoke/internal/harness"
	"github.com/roach88/sblismoke/internal/runner"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// LookupEnv resolves environment variables (for testing).
	// If nil, defaults to os.LookupEnv.
	LookupEnv config.LookupFunc

	// Runner executes external commands (for testing).
	// If nil, defaults to runner.ExecRunner.
	Runner runner.Runner

	// IDs allows overriding the run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDs harness.IDGenerator
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the sblismoke CLI.
func NewRootCommand() *cobra.Command {
	return NewRootCommandWithOptions(&RootOptions{})
}

// NewRootCommandWithOptions creates the root command around opts. Invoked
// without a subcommand it runs the harness, exactly like "run".
func NewRootCommandWithOptions(opts *RootOptions) *cobra.Command {
	runOpts := &RunOptions{RootOptions: opts}

	cmd := &cobra.Command{
		Use:   "sblismoke",
		Short: "Smoke test the OpenSBLI to OPS toolchain",
		Long: `Smoke test the OpenSBLI code generation toolchain.

Each example application is staged into a workspace, its generator script
is run, the generated source is passed through the OPS translator, and the
result is built in the sequential and MPI configurations.

Requires OPENSBLI_INSTALL and OPS_TRANSLATOR to be set.`,
		Args:          noArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHarness(runOpts, cmd)
		},
	}

	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return WrapExitError(ExitCommandError, "invalid arguments", err)
	})

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	addRunFlags(cmd, runOpts)

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewAppsCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))

	return cmd
}

// noArgs and exactArgs report positional argument errors with
// ExitCommandError.
func noArgs(cmd *cobra.Command, args []string) error {
	return wrapArgsError(cobra.NoArgs(cmd, args))
}

func exactArgs(n int) cobra.PositionalArgs {
	check := cobra.ExactArgs(n)
	return func(cmd *cobra.Command, args []string) error {
		return wrapArgsError(check(cmd, args))
	}
}

func wrapArgsError(err error) error {
	if err == nil {
		return nil
	}
	return WrapExitError(ExitCommandError, "invalid arguments", err)
}

func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// newLogger builds the process logger: text on w, debug level when verbose.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// loadConfig reads the environment and applies the optional manifest.
func loadConfig(opts *RootOptions, manifestPath string) (config.Config, error) {
	cfg, err := config.FromEnv(opts.LookupEnv)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "configuration error", err)
	}

	if manifestPath == "" {
		return cfg, nil
	}
	m, err := config.LoadManifest(manifestPath)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "invalid manifest", err)
	}
	m.Apply(&cfg)
	return cfg, nil
}

// newFormatter returns the formatter for cmd's output streams.
func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
