package cli

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/roach88/sblismoke/internal/harness"
)

// AppListing describes one application as the harness would stage it.
type AppListing struct {
	Name   string `json:"name"`
	Script string `json:"script"`
	Staged string `json:"staged"`
	Exists bool   `json:"exists"`
}

// AppsOptions holds flags for the apps command.
type AppsOptions struct {
	*RootOptions
	Manifest  string
	Workspace string
}

// NewAppsCommand creates the apps command.
func NewAppsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AppsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apps",
		Short: "List the applications a run would test",
		Long: `List the configured example applications in run order, with the
generator script each one is staged from and the path it is staged to.
Nothing is copied or executed.`,
		Args:          noArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApps(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Manifest, "manifest", "", "YAML manifest overriding applications and build settings")
	cmd.Flags().StringVar(&opts.Workspace, "workspace", "", "staging directory (default $OPENSBLI_INSTALL/tests)")

	return cmd
}

func runApps(opts *AppsOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := loadConfig(opts.RootOptions, opts.Manifest)
	if err != nil {
		return reportError(formatter, err)
	}
	if cmd.Flags().Changed("workspace") {
		cfg.Workspace = opts.Workspace
	}

	workspace := cfg.WorkspaceDir()
	apps := harness.EnumerateApplications(cfg.AppsDir(), cfg.Apps)
	listings := make([]AppListing, 0, len(apps))
	for _, app := range apps {
		_, statErr := os.Stat(app.Script)
		listings = append(listings, AppListing{
			Name:   app.Name,
			Script: app.Script,
			Staged: harness.StagedPath(workspace, app),
			Exists: statErr == nil,
		})
	}

	if formatter.Format == "json" {
		return formatter.Success(listings)
	}

	t := newTable("NAME", "SCRIPT", "STAGED")
	for _, l := range listings {
		script := l.Script
		if !l.Exists {
			script += " (missing)"
		}
		t.Row(l.Name, script, l.Staged)
	}
	_, err = fmt.Fprintln(formatter.Writer, t.String())
	return err
}

// newTable returns a borderless table with the given column headers.
func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.HiddenBorder()).
		BorderTop(false).
		BorderBottom(false).
		BorderHeader(false).
		StyleFunc(func(row, col int) lipgloss.Style {
			return lipgloss.NewStyle().PaddingRight(2)
		}).
		Headers(headers...)
}
