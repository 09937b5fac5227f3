package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/roach88/sblismoke/internal/config"
	"github.com/roach88/sblismoke/internal/runner"
)

// Listener observes a run as it progresses. Calls are made from the
// goroutine executing Run.
type Listener interface {
	// AppStarted is called once the application has been staged.
	AppStarted(app Application)
	// CommandFailed is called for every external command that did not
	// exit zero, before the stage is marked failed.
	CommandFailed(cmd runner.Command, res runner.Result)
	// AppFinished is called with the terminal result.
	AppFinished(res AppResult)
}

// NopListener ignores every event.
type NopListener struct{}

func (NopListener) AppStarted(Application)                      {}
func (NopListener) CommandFailed(runner.Command, runner.Result) {}
func (NopListener) AppFinished(AppResult)                       {}

// Options holds the optional collaborators of a Harness. Zero values are
// replaced with defaults.
type Options struct {
	Listener Listener
	Logger   *slog.Logger
	IDs      IDGenerator      // defaults to UUIDv7Generator
	Now      func() time.Time // defaults to time.Now
}

// Harness runs the generate/translate/compile pipeline.
type Harness struct {
	cfg      config.Config
	runner   runner.Runner
	listener Listener
	logger   *slog.Logger
	ids      IDGenerator
	now      func() time.Time
}

// New creates a Harness. cfg is copied; later changes to the caller's
// value have no effect.
func New(cfg config.Config, r runner.Runner, opts Options) *Harness {
	h := &Harness{
		cfg:      cfg,
		runner:   r,
		listener: opts.Listener,
		logger:   opts.Logger,
		ids:      opts.IDs,
		now:      opts.Now,
	}
	if h.listener == nil {
		h.listener = NopListener{}
	}
	if h.logger == nil {
		h.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if h.ids == nil {
		h.ids = UUIDv7Generator{}
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h
}

// Config returns the harness configuration.
func (h *Harness) Config() config.Config {
	return h.cfg
}

// Applications enumerates the configured applications.
func (h *Harness) Applications() []Application {
	return EnumerateApplications(h.cfg.AppsDir(), h.cfg.Apps)
}

// RunAll runs every configured application.
func (h *Harness) RunAll(ctx context.Context) (*Report, error) {
	if err := h.cfg.Validate(); err != nil {
		return nil, err
	}
	return h.Run(ctx, h.Applications())
}

// Run stages and tests each application in order and returns the report.
//
// Configuration and application names are validated before anything is
// written. A stage failure
// only ends its own application. Argument, configuration and staging errors
// end the run; the report built so far is returned alongside the error.
//
// If ctx is cancelled, Run stops after the command in flight. The
// interrupted application is left out of the report.
func (h *Harness) Run(ctx context.Context, apps []Application) (*Report, error) {
	if err := h.cfg.Validate(); err != nil {
		return nil, err
	}
	if err := checkUniqueNames(apps); err != nil {
		return nil, err
	}

	workspace := h.cfg.WorkspaceDir()
	report := newReport(h.ids.Generate(), h.now())
	h.logger.Info("run started", "run_id", report.RunID, "apps", len(apps), "workspace", workspace)

	for _, app := range apps {
		if err := ctx.Err(); err != nil {
			report.FinishedAt = h.now()
			return report, fmt.Errorf("run interrupted: %w", err)
		}

		res, err := h.runApp(ctx, workspace, app)
		if err != nil {
			report.FinishedAt = h.now()
			return report, err
		}
		report.record(res)
		h.listener.AppFinished(res)
	}

	report.FinishedAt = h.now()
	h.logger.Info("run finished", "run_id", report.RunID, "passed", report.Passed, "failed", report.Failed)

	if h.cfg.Cleanup {
		if err := os.RemoveAll(workspace); err != nil {
			return report, fmt.Errorf("clean workspace: %w", err)
		}
		h.logger.Debug("workspace removed", "workspace", workspace)
	}

	return report, nil
}

// runApp takes one application from PENDING to a terminal state.
func (h *Harness) runApp(ctx context.Context, workspace string, app Application) (AppResult, error) {
	staged, err := StageApplication(workspace, app)
	if err != nil {
		return AppResult{}, err
	}
	h.listener.AppStarted(app)
	h.logger.Debug("application staged", "app", app.Name, "path", staged.Path)

	result := AppResult{App: app, Dir: staged.Dir(), State: StatePending}

	steps := []struct {
		stage   Stage
		enabled bool
		run     func() (StageOutcome, error)
	}{
		{StageGenerate, h.cfg.Stages.Generate, func() (StageOutcome, error) {
			return h.Generate(ctx, staged.File(), staged.Dir())
		}},
		{StageTranslate, h.cfg.Stages.Translate, func() (StageOutcome, error) {
			return h.Translate(ctx, staged.Dir())
		}},
		{StageCompile, h.cfg.Stages.Compile, func() (StageOutcome, error) {
			return h.Compile(ctx, staged.Dir())
		}},
	}

	for _, step := range steps {
		if !step.enabled {
			h.logger.Debug("stage disabled", "app", app.Name, "stage", step.stage.String())
			result.skip(step.stage)
			continue
		}

		outcome, err := step.run()
		if err != nil {
			return result, err
		}
		if err := ctx.Err(); err != nil {
			h.logger.Info("application interrupted", "app", app.Name, "stage", step.stage.String())
			return result, fmt.Errorf("run interrupted: %w", err)
		}
		if !outcome.OK() {
			h.logger.Info("application failed", "app", app.Name, "stage", step.stage.String(),
				"exit_code", outcome.Result.ExitCode)
			result.fail(step.stage, outcome)
			return result, nil
		}
		result.advance(step.stage)
	}

	h.logger.Info("application passed", "app", app.Name)
	return result, nil
}

// Generate runs the staged generator script in appDir.
func (h *Harness) Generate(ctx context.Context, appFile, appDir string) (StageOutcome, error) {
	if appFile == "" || appDir == "" {
		return StageOutcome{}, &ArgumentError{Op: "generate", Arg: "app file and app dir"}
	}

	cmd := runner.Command{Name: h.cfg.Interpreter, Args: []string{appFile}, Dir: appDir}
	return h.exec(ctx, cmd), nil
}

// Translate runs the OPS translator against the generated source in appDir.
func (h *Harness) Translate(ctx context.Context, appDir string) (StageOutcome, error) {
	if appDir == "" {
		return StageOutcome{}, &ArgumentError{Op: "translate", Arg: "app dir"}
	}
	if h.cfg.TranslatorDir == "" {
		return StageOutcome{}, &config.ConfigError{Var: config.EnvTranslator}
	}

	cmd := runner.Command{
		Name: h.cfg.Interpreter,
		Args: []string{h.cfg.TranslatorScript(), h.cfg.Intermediate},
		Dir:  appDir,
	}
	return h.exec(ctx, cmd), nil
}

// Compile copies the build template into appDir and builds every target.
// The first failing build ends the stage.
func (h *Harness) Compile(ctx context.Context, appDir string) (StageOutcome, error) {
	if appDir == "" {
		return StageOutcome{}, &ArgumentError{Op: "compile", Arg: "app dir"}
	}
	if h.cfg.InstallRoot == "" {
		return StageOutcome{}, &config.ConfigError{Var: config.EnvInstallRoot}
	}

	makefile := filepath.Join(appDir, config.DefaultMakefile)
	if err := copyFile(h.cfg.MakefileTemplate(), makefile); err != nil {
		return StageOutcome{}, fmt.Errorf("copy build template: %w", err)
	}

	jobs := strconv.Itoa(h.cfg.BuildJobs())
	var outcome StageOutcome
	for _, target := range h.cfg.Targets {
		cmd := runner.Command{
			Name: h.cfg.Make,
			Args: []string{"-j", jobs, "-B", target},
			Dir:  appDir,
		}
		outcome = h.exec(ctx, cmd)
		if !outcome.OK() {
			return outcome, nil
		}
	}
	return outcome, nil
}

// exec runs cmd and reports a failure to the listener. Failures caused by
// cancellation are not reported.
func (h *Harness) exec(ctx context.Context, cmd runner.Command) StageOutcome {
	res := h.runner.Run(ctx, cmd)
	if !res.OK() && ctx.Err() == nil {
		h.logger.Warn("command failed", "cmd", cmd.String(), "dir", cmd.Dir,
			"exit_code", res.ExitCode, "stderr", res.Stderr, "launch_error", res.LaunchErr)
		h.listener.CommandFailed(cmd, res)
	}
	return StageOutcome{Command: cmd, Result: res}
}
