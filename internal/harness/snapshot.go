package harness

import (
	"time"

	"github.com/roach88/sblismoke/internal/canonical"
)

// Snapshot renders the report as canonical JSON. Timestamps and paths are
// left out so the bytes only change when outcomes change.
func (r *Report) Snapshot() ([]byte, error) {
	return canonical.Marshal(r.snapshotMap())
}

// Digest identifies the run's outcomes: the snapshot without the run id.
// Two runs with the same per-application results share a digest.
func (r *Report) Digest() (string, error) {
	m := r.snapshotMap()
	delete(m, "run_id")
	return canonical.Digest(canonical.DomainOutcome, m)
}

func (r *Report) snapshotMap() map[string]any {
	apps := make([]any, len(r.Results))
	for i, res := range r.Results {
		apps[i] = res.snapshotMap()
	}
	return map[string]any{
		"run_id": r.RunID,
		"passed": r.Passed,
		"failed": r.Failed,
		"total":  r.Total(),
		"apps":   apps,
	}
}

func (r AppResult) snapshotMap() map[string]any {
	m := map[string]any{
		"name":  r.App.Name,
		"state": r.State.String(),
	}
	if r.State == StateFailed {
		m["failed_stage"] = r.FailedStage.String()
		m["exit_code"] = r.Outcome.Result.ExitCode
	}
	if len(r.Skipped) > 0 {
		skipped := make([]any, len(r.Skipped))
		for i, s := range r.Skipped {
			skipped[i] = s.String()
		}
		m["skipped"] = skipped
	}
	return m
}

// Summary is the JSON form of a report.
type Summary struct {
	RunID      string       `json:"run_id"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Passed     int          `json:"passed"`
	Failed     int          `json:"failed"`
	Total      int          `json:"total"`
	Apps       []AppSummary `json:"apps"`
}

// AppSummary is the JSON form of one application result.
type AppSummary struct {
	Name        string   `json:"name"`
	Dir         string   `json:"dir"`
	State       string   `json:"state"`
	FailedStage string   `json:"failed_stage,omitempty"`
	Message     string   `json:"message,omitempty"`
	Command     string   `json:"command,omitempty"`
	ExitCode    int      `json:"exit_code,omitempty"`
	Stderr      string   `json:"stderr,omitempty"`
	Skipped     []string `json:"skipped,omitempty"`
}

// Summary converts the report for JSON output.
func (r *Report) Summary() Summary {
	s := Summary{
		RunID:      r.RunID,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Passed:     r.Passed,
		Failed:     r.Failed,
		Total:      r.Total(),
		Apps:       make([]AppSummary, 0, len(r.Results)),
	}
	for _, res := range r.Results {
		s.Apps = append(s.Apps, res.Summary())
	}
	return s
}

// Summary converts the result for JSON output.
func (r AppResult) Summary() AppSummary {
	a := AppSummary{
		Name:  r.App.Name,
		Dir:   r.Dir,
		State: r.State.String(),
	}
	if r.State == StateFailed {
		a.FailedStage = r.FailedStage.String()
		a.Message = r.FailedStage.FailureMessage()
		a.Command = r.Outcome.Command.String()
		a.ExitCode = r.Outcome.Result.ExitCode
		a.Stderr = r.Outcome.Result.Diagnostics()
	}
	for _, s := range r.Skipped {
		a.Skipped = append(a.Skipped, s.String())
	}
	return a
}
