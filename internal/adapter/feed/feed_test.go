package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobvyne-crawler/internal/domain"
	"jobvyne-crawler/internal/fetch"
)

const jobFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:job="https://jobs.example.com/ns">
<channel>
  <title>Acme Careers</title>
  <item>
    <title>Support Specialist</title>
    <link>https://jobs.example.com/apply/abc123?source=rss</link>
    <guid isPermaLink="false">abc123</guid>
    <pubDate>Mon, 04 Mar 2024 09:00:00 +0000</pubDate>
    <description><![CDATA[<p>Help customers. $20 - $25 per hour.</p>]]></description>
    <category>Customer Success</category>
    <job:location>Denver, CO</job:location>
    <job:location>Remote</job:location>
    <job:type>Part-time</job:type>
  </item>
  <item>
    <title></title>
    <guid>orphan</guid>
  </item>
</channel>
</rss>`

type sink struct {
	tasks []domain.CrawlTask
	fails []domain.TaskError
}

func (s *sink) Emit(t domain.CrawlTask) error { s.tasks = append(s.tasks, t); return nil }
func (s *sink) Fail(e domain.TaskError)       { s.fails = append(s.fails, e) }

func TestFeed_DiscoverAndParse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(jobFeed))
	}))
	defer srv.Close()

	a, err := New(Config{Employer: "Acme", FeedURL: srv.URL}, &fetch.Combined{Static: fetch.NewStatic(fetch.StaticOptions{})})
	require.NoError(t, err)

	var s sink
	require.NoError(t, a.Discover(context.Background(), &s))
	require.Len(t, s.tasks, 1)
	assert.Len(t, s.fails, 1, "item without link/title is reported, not emitted")

	task := s.tasks[0]
	assert.Equal(t, domain.FetchInline, task.Mode)

	item, err := a.ParseJob(nil, task)
	require.NoError(t, err)
	assert.Equal(t, "Support Specialist", item.JobTitle)
	assert.Equal(t, "abc123", item.ATSJobKey)
	assert.Equal(t, "https://jobs.example.com/apply/abc123", item.ApplicationURL)
	assert.Equal(t, "Customer Success", item.DepartmentName)
	assert.Equal(t, "Part Time", item.EmploymentType)
	assert.Equal(t, []string{"Denver, CO", "Remote"}, item.Locations)
	require.NotNil(t, item.Salary.Floor)
	assert.Equal(t, "hour", item.Salary.Interval)
	require.NotNil(t, item.OpenDate)
	assert.Equal(t, "2024-03-04", item.OpenDate.Format("2006-01-02"))
}

func TestFeed_UnreachableIsSiteUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	a, err := New(Config{Employer: "Acme", FeedURL: srv.URL}, &fetch.Combined{Static: fetch.NewStatic(fetch.StaticOptions{})})
	require.NoError(t, err)
	err = a.Discover(context.Background(), &sink{})
	assert.True(t, errors.Is(err, domain.ErrSiteUnavailable))
}

func TestFeed_LinkKeySource(t *testing.T) {
	a, err := New(Config{Employer: "Acme", FeedURL: "http://x", KeySource: KeyLink}, nil)
	require.NoError(t, err)
	assert.Equal(t, KeyLink, a.cfg.KeySource)

	_, err = New(Config{Employer: "Acme", FeedURL: "http://x", KeySource: "id"}, nil)
	assert.Error(t, err)
}
