package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"jobharvest-engine/internal/domain"
)

// RecordRun stores the run summary and its failures.
func RecordRun(ctx context.Context, db *sql.DB, o domain.RunOutcome) error {
	counts, err := json.Marshal(o.Counts)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO runs(run_id, started_at, finished_at, collect_status, cancelled, counts)
VALUES(?,?,?,?,?,?)
ON CONFLICT(run_id) DO UPDATE SET
  finished_at = excluded.finished_at,
  collect_status = excluded.collect_status,
  cancelled = excluded.cancelled,
  counts = excluded.counts;`,
		o.RunID,
		o.StartedAt.UTC().Format(time.RFC3339),
		o.FinishedAt.UTC().Format(time.RFC3339),
		string(o.CollectStatus),
		o.Cancelled,
		string(counts),
	); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM run_failures WHERE run_id = ?;`, o.RunID); err != nil {
		return err
	}
	for _, f := range o.Failures {
		if _, err := tx.ExecContext(ctx, `
INSERT OR REPLACE INTO run_failures(run_id, job_id, stage, kind, reason, attempts)
VALUES(?,?,?,?,?,?);`,
			o.RunID, f.ID, string(f.Stage), string(f.Kind), f.Reason, f.Attempts,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LatestRun returns the most recently finished run without its jobs.
func LatestRun(ctx context.Context, db *sql.DB) (domain.RunOutcome, bool, error) {
	var o domain.RunOutcome
	var started, finished, status, counts string
	err := db.QueryRowContext(ctx, `
SELECT run_id, started_at, finished_at, collect_status, cancelled, counts
FROM runs
ORDER BY finished_at DESC
LIMIT 1;`).Scan(&o.RunID, &started, &finished, &status, &o.Cancelled, &counts)
	if errors.Is(err, sql.ErrNoRows) {
		return o, false, nil
	}
	if err != nil {
		return o, false, err
	}
	o.StartedAt, _ = time.Parse(time.RFC3339, started)
	o.FinishedAt, _ = time.Parse(time.RFC3339, finished)
	o.CollectStatus = domain.CollectStatus(status)
	_ = json.Unmarshal([]byte(counts), &o.Counts)

	rows, err := db.QueryContext(ctx, `
SELECT job_id, stage, kind, reason, attempts
FROM run_failures
WHERE run_id = ?
ORDER BY rowid;`, o.RunID)
	if err != nil {
		return o, true, err
	}
	defer rows.Close()
	o.Failures = []domain.Failure{}
	for rows.Next() {
		var f domain.Failure
		var stage, kind string
		if err := rows.Scan(&f.ID, &stage, &kind, &f.Reason, &f.Attempts); err != nil {
			return o, true, err
		}
		f.Stage, f.Kind = domain.Stage(stage), domain.FailureKind(kind)
		o.Failures = append(o.Failures, f)
	}
	return o, true, rows.Err()
}
