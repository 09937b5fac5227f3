package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/sblismoke/internal/canonical"
	"github.com/roach88/sblismoke/internal/harness"
)

const timeLayout = time.RFC3339Nano

// WriteReport stores a finished report and its per-application rows in
// one transaction. Uses ON CONFLICT(id) DO NOTHING for idempotency -
// writing the same run id twice leaves the first copy in place.
func (s *Store) WriteReport(ctx context.Context, report *harness.Report, installRoot string) error {
	if report == nil {
		return fmt.Errorf("write report: nil report")
	}
	if report.RunID == "" {
		return fmt.Errorf("write report: run id must be provided")
	}

	snapshot, err := report.Snapshot()
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	digest, err := report.Digest()
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write report: begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, started_at, finished_at, install_root, passed, failed, total, snapshot, digest)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		report.RunID,
		report.StartedAt.UTC().Format(timeLayout),
		report.FinishedAt.UTC().Format(timeLayout),
		installRoot,
		report.Passed,
		report.Failed,
		report.Total(),
		string(snapshot),
		digest,
	)
	if err != nil {
		return fmt.Errorf("write report %s: %w", report.RunID, err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("write report %s: %w", report.RunID, err)
	}
	if inserted == 0 {
		return nil
	}

	for i, app := range report.Summary().Apps {
		if err := writeApp(ctx, tx, report.RunID, i, app); err != nil {
			return fmt.Errorf("write report %s: %w", report.RunID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write report %s: commit: %w", report.RunID, err)
	}
	return nil
}

func writeApp(ctx context.Context, tx *sql.Tx, runID string, position int, app harness.AppSummary) error {
	skipped := app.Skipped
	if skipped == nil {
		skipped = []string{}
	}
	skippedJSON, err := canonical.Marshal(skipped)
	if err != nil {
		return fmt.Errorf("app %s: %w", app.Name, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO app_results
		(run_id, position, name, dir, state, failed_stage, command, exit_code, stderr, skipped)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		runID,
		position,
		app.Name,
		app.Dir,
		app.State,
		app.FailedStage,
		app.Command,
		app.ExitCode,
		app.Stderr,
		string(skippedJSON),
	)
	if err != nil {
		return fmt.Errorf("app %s: %w", app.Name, err)
	}
	return nil
}
