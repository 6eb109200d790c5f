package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobvyne-crawler/internal/domain"
	"jobvyne-crawler/internal/fetch"
)

func ghServer(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/boards/acme/jobs", func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(calls, 1)
		_, _ = w.Write([]byte(`{"jobs": [
			{"id": 101, "title": "Backend Engineer", "departments": [{"name": "Engineering"}]},
			{"id": 102, "title": "  "},
			{"id": 103, "title": "Designer"}
		], "meta": {"total": 3}}`))
	})
	mux.HandleFunc("/v1/boards/acme/jobs/101", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{
			"id": 101, "title": "Backend Engineer",
			"absolute_url": "https://boards.greenhouse.io/acme/jobs/101?gh_src=abc",
			"first_published": "2024-05-01T09:00:00-04:00",
			"updated_at": "2024-06-01T09:00:00-04:00",
			"location": {"name": "Austin, TX; Remote"},
			"departments": [{"name": "Platform"}],
			"content": "&lt;p&gt;Build APIs. Pay: $140,000 - $170,000 per year&lt;/p&gt;",
			"metadata": [{"name": "Employment Type", "value": "Full-time"}, {"name": "Level", "value": 3}]
		}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestGreenhouse_WholeBoardInOneCall(t *testing.T) {
	var calls int32
	srv := ghServer(t, &calls)
	a, err := New(Config{Employer: "Acme", Dialect: DialectGreenhouse, Board: "acme", BaseURL: srv.URL, PageSize: 2}, Options{})
	require.NoError(t, err)

	var s sink
	require.NoError(t, a.Discover(context.Background(), &s))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	require.Len(t, s.tasks, 2, "blank titles are skipped")
	assert.Equal(t, "101", s.tasks[0].Meta(domain.MetaATSKey))
	assert.Equal(t, "Engineering", s.tasks[0].Meta(domain.MetaDepartment))
	assert.Equal(t, srv.URL+"/v1/boards/acme/jobs/103", s.tasks[1].URL)
}

func TestGreenhouse_ParseJob(t *testing.T) {
	var calls int32
	srv := ghServer(t, &calls)
	a, err := New(Config{Employer: "Acme", Dialect: DialectGreenhouse, Board: "acme", BaseURL: srv.URL}, Options{})
	require.NoError(t, err)

	page, err := fetch.NewStatic(fetch.StaticOptions{}).FetchStatic(context.Background(), srv.URL+"/v1/boards/acme/jobs/101")
	require.NoError(t, err)
	item, err := a.ParseJob(page, domain.CrawlTask{URL: page.URL})
	require.NoError(t, err)

	assert.Equal(t, "101", item.ATSJobKey)
	assert.Equal(t, "Backend Engineer", item.JobTitle)
	assert.Equal(t, "Platform", item.DepartmentName)
	assert.Equal(t, "Full Time", item.EmploymentType)
	assert.Equal(t, []string{"Austin, TX", "Remote"}, item.Locations)
	assert.Equal(t, "https://boards.greenhouse.io/acme/jobs/101", item.ApplicationURL)
	assert.Contains(t, item.JobDescriptionHTML, "<p>Build APIs.")
	require.NotNil(t, item.OpenDate)
	assert.Equal(t, 2024, item.OpenDate.Year())
	assert.Equal(t, 5, int(item.OpenDate.Month()))
	require.NotNil(t, item.Salary.Floor)
	assert.Equal(t, 140000.0, *item.Salary.Floor)
	assert.Equal(t, "USD", item.Salary.Currency)
}

func TestGreenhouse_BadDetailIsParseError(t *testing.T) {
	a, err := New(Config{Employer: "Acme", Dialect: DialectGreenhouse, Board: "acme"}, Options{})
	require.NoError(t, err)
	_, err = a.ParseJob(fetch.NewPage("http://x", 200, []byte(`{"id": 0, "title": ""}`)), domain.CrawlTask{URL: "http://x"})
	assert.ErrorIs(t, err, domain.ErrParse)
}

func leverServer(t *testing.T, n int, calls *int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v0/postings/acme", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.Equal(t, "json", r.URL.Query().Get("mode"))
		skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte("["))
		for i := skip; i < n && i < skip+limit; i++ {
			if i > skip {
				_, _ = w.Write([]byte(","))
			}
			fmt.Fprintf(w, `{"id":"l%d","text":"Role %d","categories":{"team":"Sales"}}`, i, i)
		}
		_, _ = w.Write([]byte("]"))
	})
	mux.HandleFunc("/v0/postings/acme/l0", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{
			"id": "l0", "text": "Account Executive",
			"hostedUrl": "https://jobs.lever.co/acme/l0",
			"createdAt": 1714557600000,
			"categories": {"team": "Sales", "department": "Go To Market", "commitment": "Full-time",
				"location": "Denver, CO", "allLocations": ["Denver, CO", "Boulder, CO"]},
			"workplaceType": "remote",
			"description": "<p>Sell things.</p>",
			"lists": [{"text": "Requirements", "content": "<li>Grit</li>"}],
			"salaryRange": {"min": 90000, "max": 120000, "currency": "usd", "interval": "per-year-salary"}
		}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestLever_PagesWithSkip(t *testing.T) {
	var calls int32
	srv := leverServer(t, 5, &calls)
	a, err := New(Config{Employer: "Acme", Dialect: DialectLever, Board: "acme", BaseURL: srv.URL, PageSize: 2}, Options{})
	require.NoError(t, err)

	var s sink
	require.NoError(t, a.Discover(context.Background(), &s))
	assert.Len(t, s.tasks, 5)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, "Sales", s.tasks[4].Meta(domain.MetaDepartment))
	assert.Equal(t, "api:lever", a.Name())
}

func TestLever_ParseJob(t *testing.T) {
	var calls int32
	srv := leverServer(t, 1, &calls)
	a, err := New(Config{Employer: "Acme", Dialect: DialectLever, Board: "acme", BaseURL: srv.URL}, Options{})
	require.NoError(t, err)

	page, err := fetch.NewStatic(fetch.StaticOptions{}).FetchStatic(context.Background(), srv.URL+"/v0/postings/acme/l0")
	require.NoError(t, err)
	item, err := a.ParseJob(page, domain.CrawlTask{URL: page.URL})
	require.NoError(t, err)

	assert.Equal(t, "Acme", item.EmployerName)
	assert.Equal(t, "l0", item.ATSJobKey)
	assert.Equal(t, "Account Executive", item.JobTitle)
	assert.Equal(t, "Go To Market", item.DepartmentName)
	assert.Equal(t, "Full Time", item.EmploymentType)
	assert.Equal(t, []string{"Denver, CO", "Boulder, CO", "Remote"}, item.Locations)
	assert.Equal(t, "https://jobs.lever.co/acme/l0", item.ApplicationURL)
	assert.Contains(t, item.JobDescriptionHTML, "<h3>Requirements</h3><ul><li>Grit</li></ul>")
	require.NotNil(t, item.OpenDate)
	assert.Equal(t, 2024, item.OpenDate.Year())
	require.NotNil(t, item.Salary.Floor)
	require.NotNil(t, item.Salary.Ceiling)
	assert.Equal(t, 90000.0, *item.Salary.Floor)
	assert.Equal(t, 120000.0, *item.Salary.Ceiling)
	assert.Equal(t, "USD", item.Salary.Currency)
	assert.Equal(t, "year", item.Salary.Interval)
}
