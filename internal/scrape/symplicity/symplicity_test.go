package symplicity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"jobharvest-engine/internal/domain"
	"jobharvest-engine/internal/scrape/util"
)

func newTestServer(t *testing.T, pages int, failPage2 *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Cookie") != "PHPSESSID=abc" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("json_mode") != "read_only" {
			http.Error(w, "bad mode", http.StatusBadRequest)
			return
		}
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if page == 2 && failPage2 != nil && failPage2.Add(-1) >= 0 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if page > pages {
			fmt.Fprint(w, `{"models":[]}`)
			return
		}
		fmt.Fprintf(w, `{"models":[{"job_id":"p%[1]d-a","job_title":"Role A","employer_name":"ACME"},{"job_id":"p%[1]d-b","job_title":"Role B"},{"job_title":"no id"}]}`, page)
	})
	mux.HandleFunc("/api/v3/jobs/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/api/v3/jobs/")
		switch id {
		case "json":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"job_id":"json","job_title":"Plain"}`)
		case "wrapped":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, `<html><body><pre>{"job_id":"wrapped","job_title":"Pre &amp; wrapped"}</pre></body></html>`)
		case "login":
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, `<html><body><form>login</form></body></html>`)
		case "boom":
			http.Error(w, "oops", http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, base string) *Client {
	t.Helper()
	c, err := New(Config{
		BaseURL:       base,
		ListingPath:   "/api/v2/jobs",
		DetailPath:    "/api/v3/jobs/{id}",
		PerPage:       20,
		SessionCookie: "PHPSESSID=abc",
	}, util.NewHostLimiter(0, 1))
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestFetchNextPageWalksUntilEmptyModels(t *testing.T) {
	srv := newTestServer(t, 2, nil)
	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	p1, err := c.FetchNextPage(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(p1.Items) != 3 || p1.EndMarker {
		t.Fatalf("page 1 = %+v", p1)
	}
	if p1.Items[0].ID != "p1-a" || p1.Items[0].Employer != "ACME" || p1.Items[2].ID != "" {
		t.Fatalf("unexpected stubs: %+v", p1.Items)
	}
	if n, _ := c.AccumulatedCount(ctx); n != 3 {
		t.Fatalf("count = %d", n)
	}

	if _, err := c.FetchNextPage(ctx); err != nil {
		t.Fatal(err)
	}
	end, err := c.FetchNextPage(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !end.EndMarker {
		t.Fatal("expected end marker on page 3")
	}
	if n, _ := c.AccumulatedCount(ctx); n != 6 {
		t.Fatalf("count = %d, want 6", n)
	}
}

func TestFetchNextPageRetriesSamePage(t *testing.T) {
	var fails atomic.Int32
	fails.Store(1)
	srv := newTestServer(t, 3, &fails)
	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	if _, err := c.FetchNextPage(ctx); err != nil {
		t.Fatal(err)
	}
	_, err := c.FetchNextPage(ctx)
	if !errors.Is(err, domain.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	p2, err := c.FetchNextPage(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if p2.Items[0].ID != "p2-a" {
		t.Fatalf("retry did not re-request page 2: %+v", p2.Items[0])
	}
}

func TestFetchDetail(t *testing.T) {
	srv := newTestServer(t, 1, nil)
	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	b, err := c.FetchDetail(ctx, "json")
	if err != nil || domain.PayloadID(b) != "json" {
		t.Fatalf("json detail: %s %v", b, err)
	}

	b, err = c.FetchDetail(ctx, "wrapped")
	if err != nil {
		t.Fatalf("wrapped detail: %v", err)
	}
	if string(b) != `{"job_id":"wrapped","job_title":"Pre & wrapped"}` {
		t.Fatalf("wrapped body = %s", b)
	}

	if _, err := c.FetchDetail(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := c.FetchDetail(ctx, "login"); !errors.Is(err, domain.ErrMalformed) {
		t.Fatalf("expected malformed, got %v", err)
	}
	if _, err := c.FetchDetail(ctx, "boom"); !errors.Is(err, domain.ErrTransport) {
		t.Fatalf("expected transport, got %v", err)
	}
}

func TestNewRequiresSessionCookie(t *testing.T) {
	_, err := New(Config{BaseURL: "https://x.example", DetailPath: "/d/{id}"}, nil)
	if !domain.IsFatal(err) {
		t.Fatalf("expected fatal configuration error, got %v", err)
	}
}
