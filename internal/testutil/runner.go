package testutil

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/roach88/sblismoke/internal/runner"
)

// Matcher selects commands for a FakeRunner rule.
type Matcher func(cmd runner.Command) bool

// Contains matches commands whose rendered command line contains substr.
func Contains(substr string) Matcher {
	return func(cmd runner.Command) bool {
		return strings.Contains(cmd.String(), substr)
	}
}

// InApp matches commands run in the staged directory of the named app.
func InApp(name string) Matcher {
	return func(cmd runner.Command) bool {
		return filepath.Base(cmd.Dir) == name
	}
}

// All matches when every matcher does.
func All(matchers ...Matcher) Matcher {
	return func(cmd runner.Command) bool {
		for _, m := range matchers {
			if !m(cmd) {
				return false
			}
		}
		return true
	}
}

type rule struct {
	match  Matcher
	result runner.Result
}

type hook struct {
	match Matcher
	fn    func()
}

// FakeRunner is a scripted runner.Runner. Every command is recorded; the
// first rule that matches supplies the result, and unmatched commands
// succeed. Like runner.ExecRunner, a command run on a cancelled context
// fails to launch.
//
// Thread-safety: FakeRunner is safe for concurrent use via internal mutex.
type FakeRunner struct {
	mu    sync.Mutex
	rules []rule
	hooks []hook
	calls []runner.Command
}

var _ runner.Runner = (*FakeRunner)(nil)

// NewFakeRunner creates a runner where every command succeeds.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{}
}

// On returns res for commands matching m.
func (f *FakeRunner) On(m Matcher, res runner.Result) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, rule{match: m, result: res})
	return f
}

// Fail makes commands matching m exit with code and write stderr.
func (f *FakeRunner) Fail(m Matcher, code int, stderr string) *FakeRunner {
	return f.On(m, runner.Result{ExitCode: code, Stderr: stderr})
}

// After calls fn once each command matching m has completed.
func (f *FakeRunner) After(m Matcher, fn func()) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hooks = append(f.hooks, hook{match: m, fn: fn})
	return f
}

// Run implements runner.Runner.
func (f *FakeRunner) Run(ctx context.Context, cmd runner.Command) runner.Result {
	res, hooks := f.run(ctx, cmd)
	for _, fn := range hooks {
		fn()
	}
	return res
}

func (f *FakeRunner) run(ctx context.Context, cmd runner.Command) (runner.Result, []func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, cmd)
	if err := ctx.Err(); err != nil {
		return runner.Result{ExitCode: runner.LaunchFailureCode, LaunchErr: err}, nil
	}

	var hooks []func()
	for _, h := range f.hooks {
		if h.match(cmd) {
			hooks = append(hooks, h.fn)
		}
	}
	for _, r := range f.rules {
		if r.match(cmd) {
			return r.result, hooks
		}
	}
	return runner.Result{}, hooks
}

// Calls returns every command run so far, in order.
func (f *FakeRunner) Calls() []runner.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]runner.Command(nil), f.calls...)
}

// Count returns how many recorded commands match m.
func (f *FakeRunner) Count(m Matcher) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if m(c) {
			n++
		}
	}
	return n
}
