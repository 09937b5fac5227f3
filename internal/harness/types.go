package harness

import (
	"time"

	"github.com/roach88/sblismoke/internal/runner"
)

// Stage is one step of the per-application pipeline.
type Stage int

const (
	StageGenerate Stage = iota
	StageTranslate
	StageCompile
)

// Stages lists every stage in execution order.
var Stages = []Stage{StageGenerate, StageTranslate, StageCompile}

func (s Stage) String() string {
	switch s {
	case StageGenerate:
		return "generate"
	case StageTranslate:
		return "translate"
	case StageCompile:
		return "compile"
	default:
		return "unknown"
	}
}

// FailureMessage is the line printed when an application fails at s.
func (s Stage) FailureMessage() string {
	return "Failed to " + s.String()
}

// State is an application's position in the pipeline.
type State int

const (
	StatePending State = iota
	StateGenerated
	StateTranslated
	StateCompiled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateGenerated:
		return "generated"
	case StateTranslated:
		return "translated"
	case StateCompiled:
		return "compiled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCompiled || s == StateFailed
}

// reached is the state an application is in once stage has succeeded.
func reached(stage Stage) State {
	switch stage {
	case StageGenerate:
		return StateGenerated
	case StageTranslate:
		return StateTranslated
	default:
		return StateCompiled
	}
}

// StageOutcome is the last command a stage ran. For a failed stage it is
// the command that failed.
type StageOutcome struct {
	Command runner.Command
	Result  runner.Result
}

// OK reports whether the stage succeeded.
func (o StageOutcome) OK() bool {
	return o.Result.OK()
}

// AppResult is the terminal outcome of one application.
type AppResult struct {
	App   Application
	Dir   string // staged directory
	State State

	// FailedStage and Outcome are only meaningful when State is StateFailed.
	FailedStage Stage
	Outcome     StageOutcome

	// Skipped lists stages disabled by configuration.
	Skipped []Stage
}

// Passed reports whether every enabled stage succeeded.
func (r AppResult) Passed() bool {
	return r.State == StateCompiled
}

// advance records a successful stage.
func (r *AppResult) advance(stage Stage) {
	r.State = reached(stage)
}

// skip records a stage disabled by configuration. The application still
// moves past it.
func (r *AppResult) skip(stage Stage) {
	r.Skipped = append(r.Skipped, stage)
	r.State = reached(stage)
}

// fail moves the application to StateFailed.
func (r *AppResult) fail(stage Stage, outcome StageOutcome) {
	r.State = StateFailed
	r.FailedStage = stage
	r.Outcome = outcome
}

// Report aggregates one harness run.
type Report struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time

	Results []AppResult
	Passed  int
	Failed  int
}

func newReport(runID string, started time.Time) *Report {
	return &Report{
		RunID:     runID,
		StartedAt: started,
		Results:   []AppResult{},
	}
}

// record adds a terminal result and bumps the matching counter.
func (r *Report) record(res AppResult) {
	r.Results = append(r.Results, res)
	if res.Passed() {
		r.Passed++
	} else {
		r.Failed++
	}
}

// Total is the number of applications processed.
func (r *Report) Total() int {
	return len(r.Results)
}

// OK reports whether every processed application passed.
func (r *Report) OK() bool {
	return r.Failed == 0
}
