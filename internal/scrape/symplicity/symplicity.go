package symplicity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"jobharvest-engine/internal/domain"
	"jobharvest-engine/internal/scrape/types"
	"jobharvest-engine/internal/scrape/util"
)

type Config struct {
	BaseURL     string
	ListingPath string
	// DetailPath contains an {id} placeholder.
	DetailPath    string
	PerPage       int
	Sort          string
	SessionCookie string
	UserAgent     string
}

// Client talks to a Symplicity CSM job board through its JSON endpoints
// using an already-authenticated session cookie. It implements both
// types.PagedFeed and types.DetailFetcher.
type Client struct {
	cfg     Config
	hc      *http.Client
	limiter *util.HostLimiter

	mu       sync.Mutex
	nextPage int
	received int
}

var (
	_ types.PagedFeed     = (*Client)(nil)
	_ types.DetailFetcher = (*Client)(nil)
)

// New validates cfg. A missing base URL or session cookie is a fatal
// configuration error: nothing can be fetched without them.
func New(cfg Config, limiter *util.HostLimiter) (*Client, error) {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		return nil, domain.Wrap(domain.ErrFatalConfig, "feed", "symplicity", "base url is empty", nil)
	}
	if strings.TrimSpace(cfg.SessionCookie) == "" {
		return nil, domain.Wrap(domain.ErrFatalConfig, "feed", "symplicity",
			"no session cookie; run `engine session set` or set JOBHARVEST_SESSION_COOKIE", nil)
	}
	if !strings.Contains(cfg.DetailPath, "{id}") {
		return nil, domain.Wrap(domain.ErrFatalConfig, "feed", "symplicity", "detail path has no {id} placeholder", nil)
	}
	if cfg.PerPage <= 0 {
		cfg.PerPage = 20
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Mozilla/5.0"
	}
	return &Client{
		cfg: cfg,
		// Per-request deadlines come from the caller's context.
		hc:       &http.Client{Timeout: 60 * time.Second},
		limiter:  limiter,
		nextPage: 1,
	}, nil
}

func (c *Client) Name() string { return "symplicity" }

type listingResponse struct {
	Models []json.RawMessage `json:"models"`
}

type listingModel struct {
	JobID        json.RawMessage `json:"job_id"`
	JobTitle     string          `json:"job_title"`
	EmployerName string          `json:"employer_name"`
}

// FetchNextPage requests the next listing page. The page cursor only moves
// forward on success, so a retried call asks for the same page again. An
// empty model list is the end marker.
func (c *Client) FetchNextPage(ctx context.Context) (types.PageResult, error) {
	c.mu.Lock()
	page := c.nextPage
	c.mu.Unlock()

	q := url.Values{}
	q.Set("perPage", strconv.Itoa(c.cfg.PerPage))
	q.Set("page", strconv.Itoa(page))
	if c.cfg.Sort != "" {
		q.Set("sort", c.cfg.Sort)
	}
	q.Set("json_mode", "read_only")
	endpoint := c.cfg.BaseURL + c.cfg.ListingPath + "?" + q.Encode()

	data, _, err := c.get(ctx, endpoint)
	if err != nil {
		return types.PageResult{}, err
	}

	var lr listingResponse
	if err := json.Unmarshal(data, &lr); err != nil {
		return types.PageResult{}, domain.Wrap(domain.ErrMalformed, "feed", "decode listing page",
			fmt.Sprintf("page=%d body=%s", page, truncate(string(data), 240)), err)
	}

	items := make([]domain.ListingStub, 0, len(lr.Models))
	for _, raw := range lr.Models {
		var m listingModel
		// A model that does not decode still becomes a stub; it simply has
		// no id and is skipped by enrichment.
		_ = json.Unmarshal(raw, &m)
		items = append(items, domain.ListingStub{
			ID:       rawID(m.JobID),
			Title:    strings.TrimSpace(m.JobTitle),
			Employer: strings.TrimSpace(m.EmployerName),
			Raw:      raw,
		})
	}

	c.mu.Lock()
	c.nextPage = page + 1
	c.received += len(items)
	c.mu.Unlock()

	return types.PageResult{Items: items, EndMarker: len(items) == 0}, nil
}

// AccumulatedCount is the number of listing models received so far.
func (c *Client) AccumulatedCount(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.received, nil
}

// FetchDetail returns the raw detail JSON for id. Some deployments answer the
// JSON endpoint with an HTML page that wraps the document in a <pre>
// element; the JSON is extracted from it.
func (c *Client) FetchDetail(ctx context.Context, id string) (json.RawMessage, error) {
	endpoint := c.cfg.BaseURL + strings.ReplaceAll(c.cfg.DetailPath, "{id}", url.PathEscape(id))

	data, contentType, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	if isHTML(contentType, data) {
		data, err = extractPre(data)
		if err != nil {
			return nil, domain.Wrap(domain.ErrMalformed, "feed", "detail", "id="+id, err)
		}
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || !json.Valid(data) {
		return nil, domain.Wrap(domain.ErrMalformed, "feed", "detail",
			fmt.Sprintf("id=%s body=%s", id, truncate(string(data), 240)), nil)
	}
	return json.RawMessage(data), nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, string, error) {
	if err := c.limiter.WaitURL(ctx, endpoint); err != nil {
		return nil, "", domain.Wrap(domain.ErrTransport, "feed", "rate limit wait", "", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, "", domain.Wrap(domain.ErrFatalConfig, "feed", "build request", endpoint, err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json, text/html;q=0.8")
	req.Header.Set("Cookie", c.cfg.SessionCookie)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	res, err := c.hc.Do(req)
	if err != nil {
		return nil, "", domain.Wrap(domain.ErrTransport, "feed", "GET", endpoint, err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(io.LimitReader(res.Body, 8<<20))
	if err != nil {
		return nil, "", domain.Wrap(domain.ErrTransport, "feed", "read body", endpoint, err)
	}

	switch {
	case res.StatusCode == http.StatusNotFound:
		return nil, "", domain.Wrap(domain.ErrNotFound, "feed", "GET", endpoint, nil)
	case res.StatusCode >= 400:
		return nil, "", domain.Wrap(domain.ErrTransport, "feed", "GET",
			fmt.Sprintf("%s status=%d body=%s", endpoint, res.StatusCode, truncate(string(data), 240)), nil)
	}
	return data, res.Header.Get("Content-Type"), nil
}

func isHTML(contentType string, body []byte) bool {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil && mt == "text/html" {
		return true
	}
	b := bytes.TrimSpace(body)
	return len(b) > 0 && b[0] == '<'
}

func extractPre(page []byte) ([]byte, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, err
	}
	pre := doc.Find("pre").First()
	if pre.Length() == 0 {
		return nil, fmt.Errorf("html page without <pre> body")
	}
	return []byte(strings.TrimSpace(pre.Text())), nil
}

func rawID(b json.RawMessage) string {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		return n.String()
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
