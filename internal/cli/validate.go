package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/sblismoke/internal/config"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Path   string   `json:"path"`
	Apps   []string `json:"apps,omitempty"`
	Errors []string `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <manifest>",
		Short: "Validate a run manifest without running anything",
		Long: `Validate a YAML run manifest.

The manifest is decoded strictly, so unknown keys are rejected, and then
checked against the manifest schema. The environment is not consulted.`,
		Args:          exactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	data, err := os.ReadFile(path)
	if err != nil {
		_ = formatter.Error(ErrCodeManifest, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read manifest", err)
	}

	formatter.VerboseLog("Validating %s (%d bytes)", path, len(data))

	m, err := config.ParseManifest(data)
	if err != nil {
		return outputValidationError(formatter, path, err)
	}

	cfg := config.Default()
	m.Apply(&cfg)

	result := ValidationResult{Valid: true, Path: path, Apps: cfg.Apps}
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "%s: valid (%d application(s))\n", path, len(cfg.Apps))
	return nil
}

// outputValidationError reports an invalid manifest. Validation failures
// exit 1; an unreadable file exits 2 before this point.
func outputValidationError(formatter *OutputFormatter, path string, err error) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Path: path, Errors: []string{err.Error()}},
			Error: &CLIError{
				Code:    ErrCodeManifest,
				Message: err.Error(),
			},
		}
		if encErr := encodeJSON(formatter.Writer, response); encErr != nil {
			return encErr
		}
	} else {
		fmt.Fprintf(formatter.Writer, "%s: invalid\n", path)
		fmt.Fprintf(formatter.Writer, "  %s: %s\n", ErrCodeManifest, err.Error())
	}

	return WrapExitError(ExitFailure, "validation failed", err)
}
