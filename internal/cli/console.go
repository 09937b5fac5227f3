package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/roach88/sblismoke/internal/harness"
	"github.com/roach88/sblismoke/internal/runner"
)

// consoleListener prints run progress as it happens. Colour is only
// emitted when w is a terminal.
type consoleListener struct {
	w       io.Writer
	failure lipgloss.Style
	success lipgloss.Style
	header  lipgloss.Style
}

var _ harness.Listener = (*consoleListener)(nil)

func newConsoleListener(w io.Writer) *consoleListener {
	r := lipgloss.NewRenderer(w)
	return &consoleListener{
		w:       w,
		failure: r.NewStyle().Foreground(lipgloss.Color("1")), // Red
		success: r.NewStyle().Foreground(lipgloss.Color("2")), // Green
		header:  r.NewStyle().Bold(true),
	}
}

func (c *consoleListener) AppStarted(app harness.Application) {
	fmt.Fprintln(c.w, c.header.Render("Testing: "+app.Name))
}

func (c *consoleListener) CommandFailed(cmd runner.Command, res runner.Result) {
	fmt.Fprintln(c.w, c.failure.Render(cmd.String()))
	diag := strings.TrimRight(res.Diagnostics(), "\n")
	if diag == "" {
		return
	}
	// Render pads multi-line input to a block; style one line at a time.
	for _, line := range strings.Split(diag, "\n") {
		fmt.Fprintln(c.w, c.failure.Render(line))
	}
}

func (c *consoleListener) AppFinished(res harness.AppResult) {
	if res.Passed() {
		fmt.Fprintln(c.w, c.success.Render("Test passed"))
		return
	}
	fmt.Fprintln(c.w, c.failure.Render(res.FailedStage.FailureMessage()))
}

// summary prints the final counts.
func (c *consoleListener) summary(report *harness.Report) {
	line := fmt.Sprintf("%d passed, %d failed", report.Passed, report.Failed)
	style := c.success
	if report.Failed > 0 {
		style = c.failure
	}
	fmt.Fprintln(c.w, style.Render(line))
}
