package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/sblismoke/internal/harness"
	"github.com/roach88/sblismoke/internal/runner"
)

var testStart = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// createTestStore opens a fresh database under t.TempDir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestReport builds a report with one passing and one failing app.
func createTestReport(runID string) *harness.Report {
	return &harness.Report{
		RunID:      runID,
		StartedAt:  testStart,
		FinishedAt: testStart.Add(90 * time.Second),
		Passed:     1,
		Failed:     1,
		Results: []harness.AppResult{
			{
				App:   harness.Application{Name: "wave", Script: "/apps/wave/wave.py"},
				Dir:   "/ws/wave",
				State: harness.StateCompiled,
			},
			{
				App:         harness.Application{Name: "euler_wave", Script: "/apps/euler_wave/euler_wave.py"},
				Dir:         "/ws/euler_wave",
				State:       harness.StateFailed,
				FailedStage: harness.StageTranslate,
				Outcome: harness.StageOutcome{
					Command: runner.Command{Name: "python", Args: []string{"/ops/ops.py", "opensbli.cpp"}, Dir: "/ws/euler_wave"},
					Result:  runner.Result{ExitCode: 2, Stderr: "KeyError\n"},
				},
			},
		},
	}
}
