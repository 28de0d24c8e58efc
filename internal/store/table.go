package store

import (
	"database/sql"
	"strings"
)

// Migrate brings the schema up to the current user_version.
func Migrate(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var v int
	if err := tx.QueryRow(`PRAGMA user_version;`).Scan(&v); err != nil {
		return err
	}

	if v < 1 {
		if err := migrateV1(tx); err != nil {
			return err
		}
	}
	if v < 2 {
		if err := migrateV2(tx); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func migrateV1(tx *sql.Tx) error {
	// ---- Schema v1: tables ----

	if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS jobs (
  id TEXT PRIMARY KEY,
  visual_id TEXT NOT NULL DEFAULT '',
  title TEXT NOT NULL DEFAULT '',
  company TEXT NOT NULL DEFAULT '',
  location TEXT NOT NULL DEFAULT '',
  job_type TEXT NOT NULL DEFAULT '',
  salary_info TEXT NOT NULL DEFAULT '',
  start_date TEXT NOT NULL DEFAULT '',
  end_date TEXT NOT NULL DEFAULT '',
  description TEXT NOT NULL DEFAULT '',
  requirements TEXT NOT NULL DEFAULT '',
  contact_email TEXT NOT NULL DEFAULT '',
  remote_type TEXT NOT NULL DEFAULT '',
  experience_level TEXT NOT NULL DEFAULT '',
  education_level TEXT NOT NULL DEFAULT '',
  majors TEXT NOT NULL DEFAULT '[]',
  languages TEXT NOT NULL DEFAULT '[]',
  vacancies TEXT NOT NULL DEFAULT '',
  hours_per_week TEXT NOT NULL DEFAULT '',
  searchable_text TEXT NOT NULL DEFAULT '',
  run_id TEXT NOT NULL DEFAULT '',
  updated_at TEXT NOT NULL
);
`); err != nil {
		return err
	}

	if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS runs (
  run_id TEXT PRIMARY KEY,
  started_at TEXT NOT NULL,
  finished_at TEXT NOT NULL,
  collect_status TEXT NOT NULL,
  cancelled INTEGER NOT NULL DEFAULT 0,
  counts TEXT NOT NULL DEFAULT '{}'
);
`); err != nil {
		return err
	}

	if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS run_failures (
  run_id TEXT NOT NULL,
  job_id TEXT NOT NULL,
  stage TEXT NOT NULL,
  kind TEXT NOT NULL,
  reason TEXT NOT NULL,
  attempts INTEGER NOT NULL DEFAULT 0,
  PRIMARY KEY (run_id, job_id, stage)
);
`); err != nil {
		return err
	}

	// ---- Schema v1: indexes ----

	if _, err := tx.Exec(`
CREATE INDEX IF NOT EXISTS idx_jobs_visual_id
ON jobs(visual_id)
WHERE visual_id != '';
`); err != nil {
		return err
	}

	if _, err := tx.Exec(`
CREATE INDEX IF NOT EXISTS idx_runs_finished_at
ON runs(finished_at);
`); err != nil {
		return err
	}

	_, err := tx.Exec(`PRAGMA user_version = 1;`)
	return err
}

// migrateV2 adds search_folded, the searchable text lowercased in Go.
// SQLite's lower() and LIKE fold ASCII only.
func migrateV2(tx *sql.Tx) error {
	if _, err := tx.Exec(`ALTER TABLE jobs ADD COLUMN search_folded TEXT NOT NULL DEFAULT '';`); err != nil {
		return err
	}

	rows, err := tx.Query(`SELECT id, searchable_text FROM jobs;`)
	if err != nil {
		return err
	}
	folded := map[string]string{}
	for rows.Next() {
		var id, text string
		if err := rows.Scan(&id, &text); err != nil {
			rows.Close()
			return err
		}
		folded[id] = FoldSearch(text)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for id, f := range folded {
		if _, err := tx.Exec(`UPDATE jobs SET search_folded = ? WHERE id = ?;`, f, id); err != nil {
			return err
		}
	}

	_, err = tx.Exec(`PRAGMA user_version = 2;`)
	return err
}

// FoldSearch is the case folding applied to stored text and to queries.
func FoldSearch(s string) string {
	return strings.ToLower(s)
}
