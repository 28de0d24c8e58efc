package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"jobharvest-engine/internal/domain"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func job(id, visual, title string, majors ...string) domain.CanonicalJob {
	j := domain.CanonicalJob{ID: id, VisualID: visual, Title: title, Company: "ACME", Majors: majors}
	j.Refresh()
	return j
}

func TestUpsertJobsReplacesByID(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := UpsertJobs(ctx, db.Pool, "run-1", []domain.CanonicalJob{
		job("a", "100", "Analista de Datos", "Estadística"),
		job("b", "101", "Desarrollador Go"),
	}); err != nil {
		t.Fatal(err)
	}
	n, err := UpsertJobs(ctx, db.Pool, "run-2", []domain.CanonicalJob{job("a", "100", "Analista Senior")})
	if err != nil || n != 1 {
		t.Fatalf("n=%d err=%v", n, err)
	}

	count, _ := CountJobs(ctx, db.Pool)
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
	got, err := GetJob(ctx, db.Pool, "a")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Analista Senior" || got.Majors == nil || got.Languages == nil {
		t.Fatalf("got %+v", got)
	}
}

func TestGetJobByVisualID(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	if _, err := UpsertJobs(ctx, db.Pool, "r", []domain.CanonicalJob{job("hex-1", "4521", "Practicante")}); err != nil {
		t.Fatal(err)
	}
	got, err := GetJob(ctx, db.Pool, "4521")
	if err != nil || got.ID != "hex-1" {
		t.Fatalf("got %+v err=%v", got, err)
	}
	if _, err := GetJob(ctx, db.Pool, "nope"); err != ErrNoJob {
		t.Fatalf("expected ErrNoJob, got %v", err)
	}
}

func TestListJobsSearch(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	if _, err := UpsertJobs(ctx, db.Pool, "r", []domain.CanonicalJob{
		job("1", "", "Analista de Datos", "Estadística"),
		job("2", "", "Analista Contable", "Contabilidad"),
		job("3", "", "Desarrollador 100%"),
	}); err != nil {
		t.Fatal(err)
	}

	all, err := ListJobs(ctx, db.Pool, ListJobsOpts{})
	if err != nil || len(all) != 3 {
		t.Fatalf("all = %d err=%v", len(all), err)
	}
	hits, _ := ListJobs(ctx, db.Pool, ListJobsOpts{Query: "analista estadística"})
	if len(hits) != 1 || hits[0].ID != "1" {
		t.Fatalf("hits = %+v", hits)
	}
	hits, _ = ListJobs(ctx, db.Pool, ListJobsOpts{Query: "100%"})
	if len(hits) != 1 || hits[0].ID != "3" {
		t.Fatalf("literal %% search = %+v", hits)
	}
}

func TestListJobsSearchFoldsAccentedText(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	if _, err := UpsertJobs(ctx, db.Pool, "r", []domain.CanonicalJob{
		job("1", "", "Área de Ingeniería"),
		job("2", "", "Analista Contable"),
	}); err != nil {
		t.Fatal(err)
	}
	for _, q := range []string{"área", "ÁREA", "Área", "INGENIERÍA de"} {
		hits, err := ListJobs(ctx, db.Pool, ListJobsOpts{Query: q})
		if err != nil || len(hits) != 1 || hits[0].ID != "1" {
			t.Fatalf("query %q: hits=%+v err=%v", q, hits, err)
		}
	}
}

func TestMigrateBackfillsFoldedText(t *testing.T) {
	pool, err := sql.Open("sqlite", "file:"+filepath.Join(t.TempDir(), "v1.db"))
	if err != nil {
		t.Fatal(err)
	}
	pool.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = pool.Close() })

	tx, err := pool.Begin()
	if err != nil {
		t.Fatal(err)
	}
	if err := migrateV1(tx); err != nil {
		t.Fatal(err)
	}
	if _, err := tx.Exec(`INSERT INTO jobs (id, title, searchable_text, updated_at) VALUES ('old', 'Área', 'Área Lima', 'x');`); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	if err := Migrate(pool); err != nil {
		t.Fatal(err)
	}
	var v int
	if err := pool.QueryRow(`PRAGMA user_version;`).Scan(&v); err != nil || v != 2 {
		t.Fatalf("user_version = %d err=%v", v, err)
	}
	hits, err := ListJobs(context.Background(), pool, ListJobsOpts{Query: "ÁREA"})
	if err != nil || len(hits) != 1 || hits[0].ID != "old" {
		t.Fatalf("hits=%+v err=%v", hits, err)
	}
}

func TestRecordAndLatestRun(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, ok, err := LatestRun(ctx, db.Pool); ok || err != nil {
		t.Fatalf("empty db: ok=%v err=%v", ok, err)
	}

	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	o := domain.RunOutcome{
		RunID:         "run-1",
		StartedAt:     start,
		FinishedAt:    start.Add(time.Minute),
		CollectStatus: domain.CollectStalled,
		Counts:        domain.Counts{StubsCollected: 10, DetailsFetched: 8, DetailsFailed: 2},
		Failures: []domain.Failure{
			{ID: "x", Stage: domain.StageEnrich, Kind: domain.KindTransport, Reason: "timeout", Attempts: 3},
			{ID: "y", Stage: domain.StageEnrich, Kind: domain.KindNotFound, Reason: "404", Attempts: 3},
		},
	}
	if err := RecordRun(ctx, db.Pool, o); err != nil {
		t.Fatal(err)
	}
	got, ok, err := LatestRun(ctx, db.Pool)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if got.RunID != "run-1" || got.CollectStatus != domain.CollectStalled || got.Counts.DetailsFailed != 2 {
		t.Fatalf("got %+v", got)
	}
	if len(got.Failures) != 2 || got.Failures[0].ID != "x" || got.Failures[1].Kind != domain.KindNotFound {
		t.Fatalf("failures = %+v", got.Failures)
	}
}
