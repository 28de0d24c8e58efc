package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"jobharvest-engine/internal/domain"
)

// Job is a stored canonical record.
type Job = domain.CanonicalJob

type ListJobsOpts struct {
	Query  string // every term must appear in searchable_text, case-insensitively
	Limit  int
	Offset int
}

const jobColumns = `id, visual_id, title, company, location, job_type, salary_info, start_date, end_date,
  description, requirements, contact_email, remote_type, experience_level, education_level,
  majors, languages, vacancies, hours_per_week, searchable_text`

// ErrNoJob is returned by GetJob when nothing matches.
var ErrNoJob = errors.New("job not found")

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (Job, error) {
	var j Job
	var majors, langs string
	if err := s.Scan(
		&j.ID, &j.VisualID, &j.Title, &j.Company, &j.Location, &j.JobType, &j.SalaryInfo, &j.StartDate, &j.EndDate,
		&j.Description, &j.Requirements, &j.ContactEmail, &j.RemoteType, &j.ExperienceLevel, &j.EducationLevel,
		&majors, &langs, &j.Vacancies, &j.HoursPerWeek, &j.SearchableText,
	); err != nil {
		return Job{}, err
	}
	_ = json.Unmarshal([]byte(majors), &j.Majors)
	_ = json.Unmarshal([]byte(langs), &j.Languages)
	j.Refresh()
	return j, nil
}

func ListJobs(ctx context.Context, db *sql.DB, opts ListJobsOpts) ([]Job, error) {
	if opts.Limit <= 0 || opts.Limit > 1000 {
		opts.Limit = 100
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	var where []string
	var args []any
	for _, term := range strings.Fields(FoldSearch(opts.Query)) {
		where = append(where, "search_folded LIKE ? ESCAPE '\\'")
		args = append(args, "%"+escapeLike(term)+"%")
	}
	query := "SELECT " + jobColumns + " FROM jobs"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY end_date DESC, id ASC LIMIT ? OFFSET ?;"
	args = append(args, opts.Limit, opts.Offset)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetJob looks a job up by id, falling back to its visual id.
func GetJob(ctx context.Context, db *sql.DB, key string) (Job, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Job{}, ErrNoJob
	}
	row := db.QueryRowContext(ctx, `
SELECT `+jobColumns+`
FROM jobs
WHERE id = ? OR visual_id = ?
ORDER BY (id = ?) DESC
LIMIT 1;`, key, key, key)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrNoJob
	}
	return j, err
}

func CountJobs(ctx context.Context, db *sql.DB) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs;`).Scan(&n)
	return n, err
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// DeleteJob removes one job by id. ErrNoJob means nothing was deleted.
func DeleteJob(ctx context.Context, db *sql.DB, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?;`, strings.TrimSpace(id))
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNoJob
	}
	return nil
}
