package harness

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sblismoke/internal/config"
	"github.com/roach88/sblismoke/internal/runner"
	"github.com/roach88/sblismoke/internal/testutil"
)

// recordingListener captures listener events as strings.
type recordingListener struct {
	events []string
}

func (l *recordingListener) AppStarted(app Application) {
	l.events = append(l.events, "start "+app.Name)
}

func (l *recordingListener) CommandFailed(cmd runner.Command, res runner.Result) {
	l.events = append(l.events, "command-failed "+cmd.Name+" "+res.Stderr)
}

func (l *recordingListener) AppFinished(res AppResult) {
	l.events = append(l.events, "finish "+res.App.Name+" "+res.State.String())
}

func defaultInstall(t *testing.T) config.Config {
	t.Helper()
	return testutil.NewInstall(t, config.DefaultApps...)
}

func newTestHarness(cfg config.Config, r runner.Runner, l Listener) *Harness {
	return New(cfg, r, Options{
		Listener: l,
		IDs:      testutil.NewFixedIDGenerator(),
		Now:      testutil.NewDeterministicClock().Now,
	})
}

func TestRunAllPass(t *testing.T) {
	cfg := defaultInstall(t)
	fake := testutil.NewFakeRunner()
	h := newTestHarness(cfg, fake, nil)

	report, err := h.RunAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, report.Passed)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, 4, report.Total())
	assert.True(t, report.OK())
	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, testutil.ClockEpoch, report.StartedAt)
	assert.True(t, report.FinishedAt.After(report.StartedAt))

	// generate + translate + two builds per application
	assert.Len(t, fake.Calls(), 16)

	for _, res := range report.Results {
		assert.Equal(t, StateCompiled, res.State)
		assert.True(t, res.Passed())
		_, err := os.Stat(filepath.Join(res.Dir, config.DefaultMakefile))
		assert.NoError(t, err, "build template copied for %s", res.App.Name)
	}
}

func TestRunStagesIntoWorkspace(t *testing.T) {
	cfg := defaultInstall(t)
	h := newTestHarness(cfg, testutil.NewFakeRunner(), nil)

	_, err := h.RunAll(context.Background())
	require.NoError(t, err)

	for _, name := range []string{"wave", "euler_wave", "Sod_shock_tube", "TGsym"} {
		path := filepath.Join(cfg.InstallRoot, "tests", name, name+".py")
		_, err := os.Stat(path)
		assert.NoError(t, err, path)
	}
}

func TestRunCommandShapes(t *testing.T) {
	cfg := testutil.NewInstall(t, "wave/wave.py")
	fake := testutil.NewFakeRunner()
	h := newTestHarness(cfg, fake, nil)

	_, err := h.RunAll(context.Background())
	require.NoError(t, err)

	dir := filepath.Join(cfg.InstallRoot, "tests", "wave")
	assert.Equal(t, []runner.Command{
		{Name: "python", Args: []string{"wave.py"}, Dir: dir},
		{Name: "python", Args: []string{cfg.TranslatorScript(), "opensbli.cpp"}, Dir: dir},
		{Name: "make", Args: []string{"-j", "4", "-B", "opensbli_seq"}, Dir: dir},
		{Name: "make", Args: []string{"-j", "4", "-B", "opensbli_mpi"}, Dir: dir},
	}, fake.Calls())
}

func TestRunTranslateFailure(t *testing.T) {
	cfg := defaultInstall(t)
	fake := testutil.NewFakeRunner().
		Fail(testutil.All(testutil.InApp("euler_wave"), testutil.Contains("ops.py")), 2, "translator exploded")
	listener := &recordingListener{}
	h := newTestHarness(cfg, fake, listener)

	report, err := h.RunAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Passed)
	assert.Equal(t, 1, report.Failed)

	res := report.Results[1]
	assert.Equal(t, "euler_wave", res.App.Name)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, StageTranslate, res.FailedStage)
	assert.Equal(t, "Failed to translate", res.FailedStage.FailureMessage())
	assert.Equal(t, 2, res.Outcome.Result.ExitCode)
	assert.Equal(t, "translator exploded", res.Outcome.Result.Stderr)

	assert.Equal(t, 0, fake.Count(testutil.All(testutil.InApp("euler_wave"), testutil.Contains("make"))))
	assert.Contains(t, listener.events, "command-failed python translator exploded")
}

func TestRunGenerateFailureSkipsLaterStages(t *testing.T) {
	cfg := defaultInstall(t)
	fake := testutil.NewFakeRunner().
		Fail(testutil.Contains("Sod_shock_tube.py"), 1, "Traceback")
	h := newTestHarness(cfg, fake, nil)

	report, err := h.RunAll(context.Background())
	require.NoError(t, err)

	res := report.Results[2]
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, StageGenerate, res.FailedStage)

	inSod := testutil.InApp("Sod_shock_tube")
	assert.Equal(t, 1, fake.Count(inSod))
	assert.Equal(t, 0, fake.Count(testutil.All(inSod, testutil.Contains("ops.py"))))
	assert.Equal(t, 0, fake.Count(testutil.All(inSod, testutil.Contains("make"))))

	// The next application still runs.
	assert.Equal(t, StateCompiled, report.Results[3].State)
}

func TestRunCompileParallelFailureNotMasked(t *testing.T) {
	cfg := testutil.NewInstall(t, "wave/wave.py")
	fake := testutil.NewFakeRunner().
		Fail(testutil.Contains("opensbli_mpi"), 1, "mpicc: command not found")
	h := newTestHarness(cfg, fake, nil)

	report, err := h.RunAll(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Results, 1)
	res := report.Results[0]
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, StageCompile, res.FailedStage)
	assert.Equal(t, "make -j 4 -B opensbli_mpi", res.Outcome.Command.String())
	assert.Equal(t, 0, report.Passed)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, fake.Count(testutil.Contains("opensbli_seq")))
}

func TestRunCompileSequentialFailureShortCircuits(t *testing.T) {
	cfg := testutil.NewInstall(t, "wave/wave.py")
	fake := testutil.NewFakeRunner().
		Fail(testutil.Contains("opensbli_seq"), 2, "ops_seq.h: No such file")
	h := newTestHarness(cfg, fake, nil)

	report, err := h.RunAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StageCompile, report.Results[0].FailedStage)
	assert.Equal(t, 0, fake.Count(testutil.Contains("opensbli_mpi")))
}

func TestRunEveryAppHasExactlyOneOutcome(t *testing.T) {
	cfg := defaultInstall(t)
	fake := testutil.NewFakeRunner().
		Fail(testutil.Contains("euler_wave.py"), 1, "").
		Fail(testutil.All(testutil.InApp("Sod_shock_tube"), testutil.Contains("ops.py")), 1, "").
		Fail(testutil.All(testutil.InApp("TGsym"), testutil.Contains("make")), 1, "")
	listener := &recordingListener{}
	h := newTestHarness(cfg, fake, listener)

	report, err := h.RunAll(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Results, 4)
	assert.Equal(t, report.Passed+report.Failed, report.Total())
	for _, res := range report.Results {
		assert.True(t, res.State.Terminal(), "%s ended in %s", res.App.Name, res.State)
	}

	finishes := 0
	for _, e := range listener.events {
		if strings.HasPrefix(e, "finish ") {
			finishes++
		}
	}
	assert.Equal(t, 4, finishes)
	assert.Equal(t, []Stage{StageGenerate, StageTranslate, StageCompile},
		[]Stage{report.Results[1].FailedStage, report.Results[2].FailedStage, report.Results[3].FailedStage})
}

func TestRunListenerOrder(t *testing.T) {
	cfg := testutil.NewInstall(t, "wave/wave.py", "euler_wave/euler_wave.py")
	fake := testutil.NewFakeRunner().Fail(testutil.Contains("euler_wave.py"), 1, "boom")
	listener := &recordingListener{}
	h := newTestHarness(cfg, fake, listener)

	_, err := h.RunAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"start wave",
		"finish wave compiled",
		"start euler_wave",
		"command-failed python boom",
		"finish euler_wave failed",
	}, listener.events)
}

func TestRunMissingConfigurationWritesNothing(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		envVar string
	}{
		{"install root", func(c *config.Config) { c.InstallRoot = "" }, config.EnvInstallRoot},
		{"translator", func(c *config.Config) { c.TranslatorDir = "" }, config.EnvTranslator},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultInstall(t)
			workspace := filepath.Join(t.TempDir(), "tests")
			cfg.Workspace = workspace
			tt.mutate(&cfg)

			fake := testutil.NewFakeRunner()
			h := newTestHarness(cfg, fake, nil)

			report, err := h.Run(context.Background(), EnumerateApplications("/apps", config.DefaultApps))
			require.Error(t, err)
			assert.Nil(t, report)

			var cfgErr *config.ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.envVar, cfgErr.Var)

			assert.Empty(t, fake.Calls())
			_, statErr := os.Stat(workspace)
			assert.True(t, os.IsNotExist(statErr), "workspace must not be created")
		})
	}
}

func TestRunRejectsDuplicateNames(t *testing.T) {
	cfg := defaultInstall(t)
	workspace := filepath.Join(t.TempDir(), "tests")
	cfg.Workspace = workspace
	fake := testutil.NewFakeRunner()
	h := newTestHarness(cfg, fake, nil)

	apps := EnumerateApplications(cfg.AppsDir(), []string{"wave/wave.py", "euler_wave/euler_wave.py", "other/wave.py"})
	report, err := h.Run(context.Background(), apps)
	require.Error(t, err)
	assert.Nil(t, report)

	var dupErr *DuplicateAppError
	require.True(t, errors.As(err, &dupErr))
	assert.Equal(t, "wave", dupErr.Name)
	assert.Equal(t, apps[2].Script, dupErr.Second)

	assert.Empty(t, fake.Calls())
	_, statErr := os.Stat(workspace)
	assert.True(t, os.IsNotExist(statErr), "workspace must not be created")
}

func TestRunAllRejectsConfigWithoutTargets(t *testing.T) {
	cfg := defaultInstall(t)
	cfg.Targets = nil
	fake := testutil.NewFakeRunner()
	h := newTestHarness(cfg, fake, nil)

	report, err := h.RunAll(context.Background())
	require.Error(t, err)
	assert.Nil(t, report)
	assert.Contains(t, err.Error(), "at least one build target")
	assert.Empty(t, fake.Calls())
}

func TestRunIsRepeatable(t *testing.T) {
	cfg := defaultInstall(t)
	h := newTestHarness(cfg, testutil.NewFakeRunner(), nil)

	first, err := h.RunAll(context.Background())
	require.NoError(t, err)
	second, err := h.RunAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, first.Passed)
	assert.Equal(t, 4, second.Passed)
	assert.Equal(t, "run-1", first.RunID)
	assert.Equal(t, "run-2", second.RunID)
}

func TestRunStagingErrorPropagates(t *testing.T) {
	cfg := testutil.NewInstall(t, "wave/wave.py")
	cfg.Apps = append(cfg.Apps, "missing/missing.py")
	h := newTestHarness(cfg, testutil.NewFakeRunner(), nil)

	report, err := h.RunAll(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	require.NotNil(t, report)
	require.Len(t, report.Results, 1)
	assert.Equal(t, "wave", report.Results[0].App.Name)
}

func TestRunMissingBuildTemplatePropagates(t *testing.T) {
	cfg := testutil.NewInstall(t, "wave/wave.py")
	require.NoError(t, os.Remove(cfg.MakefileTemplate()))
	h := newTestHarness(cfg, testutil.NewFakeRunner(), nil)

	_, err := h.RunAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "copy build template")
}

func TestRunLeavesWorkspaceByDefault(t *testing.T) {
	cfg := testutil.NewInstall(t, "wave/wave.py")
	h := newTestHarness(cfg, testutil.NewFakeRunner(), nil)

	_, err := h.RunAll(context.Background())
	require.NoError(t, err)

	_, err = os.Stat(cfg.WorkspaceDir())
	assert.NoError(t, err)
}

func TestRunCleanupRemovesWorkspace(t *testing.T) {
	cfg := testutil.NewInstall(t, "wave/wave.py")
	cfg.Cleanup = true
	h := newTestHarness(cfg, testutil.NewFakeRunner(), nil)

	report, err := h.RunAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Passed)

	_, err = os.Stat(cfg.WorkspaceDir())
	assert.True(t, os.IsNotExist(err))
}

func TestRunDisabledStages(t *testing.T) {
	cfg := testutil.NewInstall(t, "wave/wave.py")
	cfg.Stages.Translate = false
	cfg.Stages.Compile = false
	fake := testutil.NewFakeRunner()
	h := newTestHarness(cfg, fake, nil)

	report, err := h.RunAll(context.Background())
	require.NoError(t, err)

	res := report.Results[0]
	assert.Equal(t, StateCompiled, res.State)
	assert.Equal(t, []Stage{StageTranslate, StageCompile}, res.Skipped)
	assert.Len(t, fake.Calls(), 1)

	// No build template is copied when compile is disabled.
	_, err = os.Stat(filepath.Join(res.Dir, config.DefaultMakefile))
	assert.True(t, os.IsNotExist(err))
}

func TestRunCancelledContextStopsBeforeNextApp(t *testing.T) {
	cfg := defaultInstall(t)
	fake := testutil.NewFakeRunner()
	h := newTestHarness(cfg, fake, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := h.RunAll(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Empty(t, report.Results)
	assert.Empty(t, fake.Calls())
}

func TestRunCancelledDuringOnlyApp(t *testing.T) {
	cfg := testutil.NewInstall(t, "wave/wave.py")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fake := testutil.NewFakeRunner().After(testutil.Contains("wave.py"), cancel)
	listener := &recordingListener{}
	h := newTestHarness(cfg, fake, listener)

	report, err := h.RunAll(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)

	// The interrupted application is neither passed nor failed.
	assert.Empty(t, report.Results)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, []string{"start wave"}, listener.events)
	assert.Equal(t, 0, fake.Count(testutil.Contains("make")))
}

func TestRunCancelledDuringLaterAppKeepsEarlierResults(t *testing.T) {
	cfg := defaultInstall(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fake := testutil.NewFakeRunner().
		After(testutil.All(testutil.InApp("euler_wave"), testutil.Contains("ops.py")), cancel)
	h := newTestHarness(cfg, fake, nil)

	report, err := h.RunAll(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	require.Len(t, report.Results, 1)
	assert.Equal(t, "wave", report.Results[0].App.Name)
	assert.Equal(t, 1, report.Passed)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, 0, fake.Count(testutil.InApp("Sod_shock_tube")))
}

func TestStageArgumentErrors(t *testing.T) {
	cfg := defaultInstall(t)
	h := newTestHarness(cfg, testutil.NewFakeRunner(), nil)
	ctx := context.Background()

	var argErr *ArgumentError

	_, err := h.Generate(ctx, "", "/ws/wave")
	require.True(t, errors.As(err, &argErr))
	assert.Equal(t, "generate", argErr.Op)

	_, err = h.Generate(ctx, "wave.py", "")
	require.True(t, errors.As(err, &argErr))

	_, err = h.Translate(ctx, "")
	require.True(t, errors.As(err, &argErr))
	assert.Equal(t, "translate", argErr.Op)

	_, err = h.Compile(ctx, "")
	require.True(t, errors.As(err, &argErr))
	assert.Equal(t, "compile", argErr.Op)
	assert.Equal(t, "compile: app dir must be provided", err.Error())
}

func TestStageConfigurationErrors(t *testing.T) {
	fake := testutil.NewFakeRunner()
	h := newTestHarness(config.Default(), fake, nil)
	ctx := context.Background()

	_, err := h.Translate(ctx, t.TempDir())
	assert.True(t, errors.Is(err, config.ErrMissingEnv))
	assert.Contains(t, err.Error(), config.EnvTranslator)

	_, err = h.Compile(ctx, t.TempDir())
	assert.True(t, errors.Is(err, config.ErrMissingEnv))
	assert.Contains(t, err.Error(), config.EnvInstallRoot)

	assert.Empty(t, fake.Calls())
}

func TestGenerateLaunchFailureCountsAsExitOne(t *testing.T) {
	cfg := testutil.NewInstall(t, "wave/wave.py")
	fake := testutil.NewFakeRunner().On(testutil.Contains("wave.py"), runner.Result{
		ExitCode:  runner.LaunchFailureCode,
		LaunchErr: errors.New("exec: \"python\": executable file not found in $PATH"),
	})
	h := newTestHarness(cfg, fake, nil)

	report, err := h.RunAll(context.Background())
	require.NoError(t, err)

	res := report.Results[0]
	assert.Equal(t, StageGenerate, res.FailedStage)
	assert.Equal(t, 1, res.Outcome.Result.ExitCode)
	assert.Contains(t, res.Outcome.Result.Diagnostics(), "executable file not found")
}

func TestHarnessDefaults(t *testing.T) {
	h := New(config.Default(), testutil.NewFakeRunner(), Options{})
	assert.NotNil(t, h.listener)
	assert.NotNil(t, h.logger)
	assert.IsType(t, UUIDv7Generator{}, h.ids)
	assert.NotNil(t, h.now)
}

func TestUUIDv7GeneratorProducesDistinctIDs(t *testing.T) {
	gen := UUIDv7Generator{}
	a := gen.Generate()
	b := gen.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}
