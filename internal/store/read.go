package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Run is one stored harness run.
type Run struct {
	Seq         int64     `json:"seq"`
	ID          string    `json:"run_id"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	InstallRoot string    `json:"install_root"`
	Passed      int       `json:"passed"`
	Failed      int       `json:"failed"`
	Total       int       `json:"total"`
	Snapshot    string    `json:"-"`
	Digest      string    `json:"digest"`
	Apps        []App     `json:"apps,omitempty"`
}

// App is one stored application result.
type App struct {
	Position    int      `json:"position"`
	Name        string   `json:"name"`
	Dir         string   `json:"dir"`
	State       string   `json:"state"`
	FailedStage string   `json:"failed_stage,omitempty"`
	Command     string   `json:"command,omitempty"`
	ExitCode    int      `json:"exit_code,omitempty"`
	Stderr      string   `json:"stderr,omitempty"`
	Skipped     []string `json:"skipped,omitempty"`
}

// ListRuns returns up to limit runs, newest first. A limit of zero or
// less returns every run. Apps are not loaded.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `
		SELECT seq, id, started_at, finished_at, install_root, passed, failed, total, snapshot, digest
		FROM runs
		ORDER BY seq DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// ReadRun loads one run with its applications in staging order.
// Returns ErrRunNotFound when the id is unknown.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT seq, id, started_at, finished_at, install_root, passed, failed, total, snapshot, digest
		FROM runs
		WHERE id = ?
	`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("read run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("read run %s: %w", id, err)
	}

	apps, err := s.readApps(ctx, id)
	if err != nil {
		return Run{}, fmt.Errorf("read run %s: %w", id, err)
	}
	run.Apps = apps
	return run, nil
}

// FailureCounts tallies failed applications by name across all runs.
func (s *Store) FailureCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, COUNT(*)
		FROM app_results
		WHERE state = 'failed'
		GROUP BY name
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failure counts: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("failure counts: %w", err)
		}
		counts[name] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failure counts: %w", err)
	}
	return counts, nil
}

func (s *Store) readApps(ctx context.Context, runID string) ([]App, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT position, name, dir, state, failed_stage, command, exit_code, stderr, skipped
		FROM app_results
		WHERE run_id = ?
		ORDER BY position ASC
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	apps := []App{}
	for rows.Next() {
		var app App
		var skipped string
		if err := rows.Scan(
			&app.Position,
			&app.Name,
			&app.Dir,
			&app.State,
			&app.FailedStage,
			&app.Command,
			&app.ExitCode,
			&app.Stderr,
			&skipped,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(skipped), &app.Skipped); err != nil {
			return nil, fmt.Errorf("decode skipped stages for %s: %w", app.Name, err)
		}
		if len(app.Skipped) == 0 {
			app.Skipped = nil
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var run Run
	var started, finished string
	if err := row.Scan(
		&run.Seq,
		&run.ID,
		&started,
		&finished,
		&run.InstallRoot,
		&run.Passed,
		&run.Failed,
		&run.Total,
		&run.Snapshot,
		&run.Digest,
	); err != nil {
		return Run{}, err
	}

	var err error
	if run.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return Run{}, fmt.Errorf("parse started_at: %w", err)
	}
	if run.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
		return Run{}, fmt.Errorf("parse finished_at: %w", err)
	}
	return run, nil
}
