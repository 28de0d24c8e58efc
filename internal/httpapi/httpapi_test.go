package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"jobharvest-engine/internal/config"
	"jobharvest-engine/internal/domain"
	"jobharvest-engine/internal/events"
	"jobharvest-engine/internal/scrape/types"
	"jobharvest-engine/internal/status"
	"jobharvest-engine/internal/store"
)

type fakeRunner struct {
	mu      sync.Mutex
	busy    bool
	started []bool
}

func (f *fakeRunner) Status() types.HarvestStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return types.HarvestStatus{Running: f.busy, LastRunID: "run-0"}
}

func (f *fakeRunner) Start(ctx context.Context, reqID string, fresh bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy {
		return false
	}
	f.started = append(f.started, fresh)
	return true
}

func (f *fakeRunner) setBusy(b bool) {
	f.mu.Lock()
	f.busy = b
	f.mu.Unlock()
}

func (f *fakeRunner) starts() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.started...)
}

type fixture struct {
	srv     *httptest.Server
	runner  *fakeRunner
	status  *status.MemoryStore
	cfgVal  *atomic.Value
	cfgPath string

	mu      sync.Mutex
	cookies map[string]string
}

func (f *fixture) cookie(acct string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.cookies[acct]
	return v, ok
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	db, err := store.Open(filepath.Join(dir, "jobs.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	jobs := []domain.CanonicalJob{
		{ID: "1", VisualID: "V-100", Title: "Analista de Datos", Company: "ACME", EndDate: "2026-12-01"},
		{ID: "2", VisualID: "V-200", Title: "Desarrollador Go", Company: "Gopher SAC", EndDate: "2026-11-01"},
	}
	for i := range jobs {
		jobs[i].Refresh()
	}
	if _, err := store.UpsertJobs(context.Background(), db.Pool, "run-0", jobs); err != nil {
		t.Fatal(err)
	}

	st := status.NewMemoryStore()
	_ = st.SetRun(context.Background(), domain.RunOutcome{RunID: "run-0", CollectStatus: domain.CollectCompleted})

	cfgPath := filepath.Join(dir, "config.yml")
	if err := config.SaveAtomic(cfgPath, config.Default()); err != nil {
		t.Fatal(err)
	}
	var cfgVal atomic.Value
	cfg := config.Default()
	cfg.Feed.SessionCookie = "secret"
	cfgVal.Store(cfg)

	f := &fixture{runner: &fakeRunner{}, status: st, cfgVal: &cfgVal, cookies: map[string]string{}, cfgPath: cfgPath}
	mux := NewMux(Deps{
		DB:          db.Pool,
		Hub:         events.NewHub(),
		CfgVal:      &cfgVal,
		UserCfgPath: cfgPath,
		LoadCfg:     func() (config.Config, error) { return config.Load(cfgPath) },
		Status:      st,
		Harvest:     f.runner,
		SetSession: func(acct, cookie string) error {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.cookies[acct] = cookie
			return nil
		},
		ClearSession: func(acct string) error {
			f.mu.Lock()
			defer f.mu.Unlock()
			delete(f.cookies, acct)
			return nil
		},
	})
	f.srv = httptest.NewServer(Handler(mux, nil))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("missing request id header")
	}
	var body map[string]any
	decode(t, resp, &body)
	if body["ok"] != true || body["jobs"] != float64(2) || body["last_run_id"] != "run-0" {
		t.Fatalf("body = %v", body)
	}
}

func TestListJobsWithQuery(t *testing.T) {
	f := newFixture(t)

	var page jobsPage
	decode(t, f.do(t, http.MethodGet, "/jobs?q=gopher&limit=10", ""), &page)
	if len(page.Jobs) != 1 || page.Jobs[0].ID != "2" || page.Total != 2 || page.Limit != 10 {
		t.Fatalf("page = %+v", page)
	}

	resp := f.do(t, http.MethodGet, "/jobs?limit=abc", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad limit status %d", resp.StatusCode)
	}
}

func TestGetJobByIDAndVisualID(t *testing.T) {
	f := newFixture(t)

	var j domain.CanonicalJob
	decode(t, f.do(t, http.MethodGet, "/jobs/1", ""), &j)
	if j.Title != "Analista de Datos" || j.Majors == nil {
		t.Fatalf("job = %+v", j)
	}
	decode(t, f.do(t, http.MethodGet, "/jobs/V-200", ""), &j)
	if j.ID != "2" {
		t.Fatalf("visual id lookup got %+v", j)
	}

	resp := f.do(t, http.MethodGet, "/jobs/nope", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing job status %d", resp.StatusCode)
	}
	var apiErr APIError
	decode(t, resp, &apiErr)
	if apiErr.Error.Code != "not_found" || apiErr.Error.RequestID == "" {
		t.Fatalf("error = %+v", apiErr)
	}
}

func TestDeleteJob(t *testing.T) {
	f := newFixture(t)
	if resp := f.do(t, http.MethodDelete, "/jobs/1", ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status %d", resp.StatusCode)
	}
	if resp := f.do(t, http.MethodDelete, "/jobs/1", ""); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete status %d", resp.StatusCode)
	}
}

func TestHarvestRunAndStatus(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/harvest/run?fresh=true", "")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("run status %d", resp.StatusCode)
	}
	if got := f.runner.starts(); len(got) != 1 || !got[0] {
		t.Fatalf("started = %v", got)
	}

	f.runner.setBusy(true)
	if resp := f.do(t, http.MethodPost, "/harvest/run", ""); resp.StatusCode != http.StatusConflict {
		t.Fatalf("busy run status %d", resp.StatusCode)
	}

	var st harvestStatus
	decode(t, f.do(t, http.MethodGet, "/harvest/status", ""), &st)
	if !st.Runner.Running || st.LastRun == nil || st.LastRun.RunID != "run-0" {
		t.Fatalf("status = %+v", st)
	}

	if resp := f.do(t, http.MethodGet, "/harvest/run", ""); resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET /harvest/run status %d", resp.StatusCode)
	}
}

func TestHarvestRunByID(t *testing.T) {
	f := newFixture(t)
	var o domain.RunOutcome
	decode(t, f.do(t, http.MethodGet, "/harvest/runs/run-0", ""), &o)
	if o.CollectStatus != domain.CollectCompleted {
		t.Fatalf("outcome = %+v", o)
	}
	if resp := f.do(t, http.MethodGet, "/harvest/runs/missing", ""); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing run status %d", resp.StatusCode)
	}
}

func TestConfigGetRedactsCookie(t *testing.T) {
	f := newFixture(t)
	var cfg config.Config
	decode(t, f.do(t, http.MethodGet, "/config", ""), &cfg)
	if cfg.Feed.SessionCookie != redacted {
		t.Fatalf("cookie leaked: %q", cfg.Feed.SessionCookie)
	}
}

func TestConfigPutValidatesAndSaves(t *testing.T) {
	f := newFixture(t)

	bad := config.Default()
	bad.Enricher.Workers = 0
	b, _ := json.Marshal(bad)
	if resp := f.do(t, http.MethodPut, "/config", string(b)); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid config status %d", resp.StatusCode)
	}

	good := config.Default()
	good.Enricher.Workers = 3
	good.Feed.SessionCookie = redacted
	b, _ = json.Marshal(good)
	resp := f.do(t, http.MethodPut, "/config", string(b))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put status %d", resp.StatusCode)
	}
	stored := f.cfgVal.Load().(config.Config)
	if stored.Enricher.Workers != 3 {
		t.Fatalf("workers = %d", stored.Enricher.Workers)
	}
	onDisk, err := config.Load(f.cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	if onDisk.Feed.SessionCookie != "secret" {
		t.Fatalf("redacted placeholder must keep the current cookie, got %q", onDisk.Feed.SessionCookie)
	}
}

func TestSessionSecret(t *testing.T) {
	f := newFixture(t)
	acct := "jobharvest:session:default"

	if resp := f.do(t, http.MethodPost, "/api/secrets/session", `{"cookie":"PHPSESSID=1"}`); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("set status %d", resp.StatusCode)
	}
	if v, _ := f.cookie(acct); v != "PHPSESSID=1" {
		t.Fatalf("cookie = %q", v)
	}
	if resp := f.do(t, http.MethodDelete, "/api/secrets/session", ""); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("clear status %d", resp.StatusCode)
	}
	if _, ok := f.cookie(acct); ok {
		t.Fatal("cookie not cleared")
	}
}

func TestCorsPreflight(t *testing.T) {
	f := newFixture(t)
	req, _ := http.NewRequest(http.MethodOptions, f.srv.URL+"/jobs", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent || resp.Header.Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Fatalf("status=%d headers=%v", resp.StatusCode, resp.Header)
	}
}
