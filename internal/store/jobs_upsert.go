package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"jobharvest-engine/internal/domain"
)

// UpsertJobs writes jobs keyed by id in one transaction. An existing row for
// the same id is replaced.
func UpsertJobs(ctx context.Context, db *sql.DB, runID string, jobs []domain.CanonicalJob) (int, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO jobs (
  id, visual_id, title, company, location, job_type, salary_info, start_date, end_date,
  description, requirements, contact_email, remote_type, experience_level, education_level,
  majors, languages, vacancies, hours_per_week, searchable_text, search_folded, run_id, updated_at
) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET
  visual_id = excluded.visual_id,
  title = excluded.title,
  company = excluded.company,
  location = excluded.location,
  job_type = excluded.job_type,
  salary_info = excluded.salary_info,
  start_date = excluded.start_date,
  end_date = excluded.end_date,
  description = excluded.description,
  requirements = excluded.requirements,
  contact_email = excluded.contact_email,
  remote_type = excluded.remote_type,
  experience_level = excluded.experience_level,
  education_level = excluded.education_level,
  majors = excluded.majors,
  languages = excluded.languages,
  vacancies = excluded.vacancies,
  hours_per_week = excluded.hours_per_week,
  searchable_text = excluded.searchable_text,
  search_folded = excluded.search_folded,
  run_id = excluded.run_id,
  updated_at = excluded.updated_at;`)
	if err != nil {
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	n := 0
	for _, j := range jobs {
		if j.ID == "" {
			continue
		}
		j.Refresh()
		majors, _ := json.Marshal(j.Majors)
		langs, _ := json.Marshal(j.Languages)
		if _, err := stmt.ExecContext(ctx,
			j.ID, j.VisualID, j.Title, j.Company, j.Location, j.JobType, j.SalaryInfo, j.StartDate, j.EndDate,
			j.Description, j.Requirements, j.ContactEmail, j.RemoteType, j.ExperienceLevel, j.EducationLevel,
			string(majors), string(langs), j.Vacancies, j.HoursPerWeek, j.SearchableText, FoldSearch(j.SearchableText), runID, now,
		); err != nil {
			return n, fmt.Errorf("upsert job %s: %w", j.ID, err)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}
