package cli

import (
	"bytes"
	"testing"

	"github.com/roach88/sblismoke/internal/config"
	"github.com/roach88/sblismoke/internal/testutil"
)

// envFor resolves the two required variables to cfg's directories.
func envFor(cfg config.Config) config.LookupFunc {
	env := map[string]string{
		config.EnvInstallRoot: cfg.InstallRoot,
		config.EnvTranslator:  cfg.TranslatorDir,
	}
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func emptyEnv(string) (string, bool) { return "", false }

// testCLI is an installation with every default application, a fake
// runner and fixed run ids.
type testCLI struct {
	cfg  config.Config
	fake *testutil.FakeRunner
	opts *RootOptions
}

func newTestCLI(t *testing.T) *testCLI {
	t.Helper()
	cfg := testutil.NewInstall(t, config.DefaultApps...)
	fake := testutil.NewFakeRunner()
	return &testCLI{
		cfg:  cfg,
		fake: fake,
		opts: &RootOptions{
			LookupEnv: envFor(cfg),
			Runner:    fake,
			IDs:       testutil.NewFixedIDGenerator(),
		},
	}
}

// execute runs the root command with args and returns what it printed.
func (c *testCLI) execute(args ...string) (stdout, stderr string, err error) {
	return executeWith(c.opts, args...)
}

func executeWith(opts *RootOptions, args ...string) (stdout, stderr string, err error) {
	cmd := NewRootCommandWithOptions(opts)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	// A nil slice makes cobra parse os.Args, which are the test binary's.
	cmd.SetArgs(append([]string{}, args...))
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}
