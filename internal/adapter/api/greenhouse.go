package api

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"jobvyne-crawler/internal/domain"
	"jobvyne-crawler/internal/fetch"
	"jobvyne-crawler/internal/scrape/util"
)

const greenhouseAPI = "https://boards-api.greenhouse.io"

type greenhouse struct {
	base string
	slug string
}

func newGreenhouse(cfg Config) *greenhouse {
	return &greenhouse{
		base: strings.TrimRight(firstNonEmpty(cfg.BaseURL, greenhouseAPI), "/"),
		slug: strings.TrimSpace(cfg.Board),
	}
}

// The job board API lists the whole board in one response.
func (g *greenhouse) defaultPageSize() int { return 500 }

func (g *greenhouse) prepare(context.Context, *client) error { return nil }

type ghName struct {
	Name string `json:"name"`
}

type ghJob struct {
	ID             int64    `json:"id"`
	Title          string   `json:"title"`
	AbsoluteURL    string   `json:"absolute_url"`
	UpdatedAt      string   `json:"updated_at"`
	FirstPublished string   `json:"first_published"`
	Location       ghName   `json:"location"`
	Departments    []ghName `json:"departments"`
	Offices        []ghName `json:"offices"`
	// Content is entity-escaped HTML.
	Content  string `json:"content"`
	Metadata []struct {
		Name  string `json:"name"`
		Value any    `json:"value"`
	} `json:"metadata"`
}

type ghJobsResponse struct {
	Jobs []ghJob `json:"jobs"`
	Meta struct {
		Total int `json:"total"`
	} `json:"meta"`
}

func (g *greenhouse) jobsURL() string {
	return fmt.Sprintf("%s/v1/boards/%s/jobs", g.base, url.PathEscape(g.slug))
}

func (g *greenhouse) page(ctx context.Context, c *client, offset, _ int) (listing, error) {
	if offset > 0 {
		return listing{last: true}, nil
	}
	res, err := c.do(ctx, http.MethodGet, g.jobsURL(), nil)
	if err != nil {
		return listing{}, fmt.Errorf("greenhouse get board: %w", err)
	}
	if res.status >= 400 {
		return listing{}, fmt.Errorf("greenhouse board status %d body=%s", res.status, truncate(string(res.body), 240))
	}

	var jr ghJobsResponse
	if err := json.Unmarshal(res.body, &jr); err != nil {
		return listing{}, fmt.Errorf("greenhouse decode: %w", err)
	}

	l := listing{count: len(jr.Jobs), total: jr.Meta.Total, last: true}
	for _, j := range jr.Jobs {
		title := util.CleanText(j.Title)
		if j.ID == 0 || title == "" {
			continue
		}
		id := strconv.FormatInt(j.ID, 10)
		meta := map[string]string{
			domain.MetaATSKey: id,
			domain.MetaTitle:  title,
		}
		if len(j.Departments) > 0 {
			meta[domain.MetaDepartment] = util.CleanText(j.Departments[0].Name)
		}
		l.tasks = append(l.tasks, domain.CrawlTask{
			URL:      g.jobsURL() + "/" + id,
			Mode:     domain.FetchStatic,
			Metadata: meta,
		})
	}
	return l, nil
}

func (g *greenhouse) parse(page *fetch.Page, task domain.CrawlTask, now time.Time) (domain.JobItem, error) {
	var j ghJob
	if err := json.Unmarshal(page.Body, &j); err != nil {
		return domain.JobItem{}, fmt.Errorf("greenhouse decode job: %w", err)
	}

	id := task.Meta(domain.MetaATSKey)
	if j.ID != 0 {
		id = strconv.FormatInt(j.ID, 10)
	}
	title := firstNonEmpty(util.CleanText(j.Title), task.Meta(domain.MetaTitle))
	if id == "" || title == "" {
		return domain.JobItem{}, fmt.Errorf("%w: %s: missing id or title", domain.ErrParse, task.URL)
	}

	dept := task.Meta(domain.MetaDepartment)
	if len(j.Departments) > 0 {
		dept = firstNonEmpty(util.CleanText(j.Departments[0].Name), dept)
	}

	locs := util.SplitLocations(j.Location.Name)
	if len(locs) == 0 {
		for _, o := range j.Offices {
			locs = append(locs, util.NormalizeLocation(o.Name))
		}
	}

	item := domain.JobItem{
		ApplicationURL:     util.CanonicalURL(firstNonEmpty(j.AbsoluteURL, fmt.Sprintf("https://boards.greenhouse.io/%s/jobs/%s", g.slug, id))),
		ATSJobKey:          id,
		JobTitle:           title,
		JobDescriptionHTML: html.UnescapeString(j.Content),
		DepartmentName:     dept,
		Locations:          nonEmpty(locs...),
		OpenDate:           util.ParseDate(firstNonEmpty(j.FirstPublished, j.UpdatedAt), now),
	}
	for _, m := range j.Metadata {
		v, ok := m.Value.(string)
		if !ok {
			continue
		}
		name := strings.ToLower(m.Name)
		switch {
		case strings.Contains(name, "employment type") || strings.Contains(name, "time type"):
			item.EmploymentType = util.NormalizeEmploymentType(v)
		case strings.Contains(name, "salary") || strings.Contains(name, "compensation"):
			if s, ok := util.ParseSalary(v); ok {
				item.Salary = s
			}
		}
	}
	if item.Salary.IsZero() {
		if s, ok := util.ParseSalary(util.CleanText(item.JobDescriptionHTML)); ok {
			item.Salary = s
		}
	}
	return item, nil
}
