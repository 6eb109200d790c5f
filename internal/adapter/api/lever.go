package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"jobvyne-crawler/internal/domain"
	"jobvyne-crawler/internal/fetch"
	"jobvyne-crawler/internal/scrape/util"
)

const leverAPI = "https://api.lever.co"

type lever struct {
	base string
	slug string
}

func newLever(cfg Config) *lever {
	return &lever{
		base: strings.TrimRight(firstNonEmpty(cfg.BaseURL, leverAPI), "/"),
		slug: strings.TrimSpace(cfg.Board),
	}
}

func (l *lever) defaultPageSize() int { return 100 }

func (l *lever) prepare(context.Context, *client) error { return nil }

type leverPosting struct {
	ID         string `json:"id"`
	Text       string `json:"text"` // title
	HostedURL  string `json:"hostedUrl"`
	ApplyURL   string `json:"applyUrl"`
	CreatedAt  int64  `json:"createdAt"` // ms epoch
	Categories struct {
		Location     string   `json:"location"`
		AllLocations []string `json:"allLocations"`
		Team         string   `json:"team"`
		Department   string   `json:"department"`
		Commitment   string   `json:"commitment"`
	} `json:"categories"`
	WorkplaceType string `json:"workplaceType"`
	Description   string `json:"description"` // html
	Lists         []struct {
		Text    string `json:"text"`
		Content string `json:"content"`
	} `json:"lists"`
	Additional  string `json:"additional"`
	SalaryRange *struct {
		Min      float64 `json:"min"`
		Max      float64 `json:"max"`
		Currency string  `json:"currency"`
		Interval string  `json:"interval"`
	} `json:"salaryRange"`
}

func (l *lever) postingsURL() string {
	return fmt.Sprintf("%s/v0/postings/%s", l.base, url.PathEscape(l.slug))
}

func (l *lever) page(ctx context.Context, c *client, offset, limit int) (listing, error) {
	u := fmt.Sprintf("%s?mode=json&skip=%d&limit=%d", l.postingsURL(), offset, limit)
	res, err := c.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return listing{}, fmt.Errorf("lever get: %w", err)
	}
	if res.status >= 400 {
		return listing{}, fmt.Errorf("lever status %d body=%s", res.status, truncate(string(res.body), 240))
	}

	var postings []leverPosting
	if err := json.Unmarshal(res.body, &postings); err != nil {
		return listing{}, fmt.Errorf("lever decode: %w", err)
	}

	out := listing{count: len(postings)}
	for _, p := range postings {
		if p.ID == "" || strings.TrimSpace(p.Text) == "" {
			continue
		}
		out.tasks = append(out.tasks, domain.CrawlTask{
			URL:  l.postingsURL() + "/" + url.PathEscape(p.ID),
			Mode: domain.FetchStatic,
			Metadata: map[string]string{
				domain.MetaATSKey:     p.ID,
				domain.MetaTitle:      util.CleanText(p.Text),
				domain.MetaDepartment: util.CleanText(firstNonEmpty(p.Categories.Department, p.Categories.Team)),
			},
		})
	}
	return out, nil
}

func (l *lever) parse(page *fetch.Page, task domain.CrawlTask, _ time.Time) (domain.JobItem, error) {
	var p leverPosting
	if err := json.Unmarshal(page.Body, &p); err != nil {
		return domain.JobItem{}, fmt.Errorf("lever decode posting: %w", err)
	}

	id := firstNonEmpty(p.ID, task.Meta(domain.MetaATSKey))
	title := firstNonEmpty(util.CleanText(p.Text), task.Meta(domain.MetaTitle))
	if id == "" || title == "" {
		return domain.JobItem{}, fmt.Errorf("%w: %s: missing id or title", domain.ErrParse, task.URL)
	}

	var desc strings.Builder
	desc.WriteString(p.Description)
	for _, list := range p.Lists {
		if list.Text != "" {
			fmt.Fprintf(&desc, "<h3>%s</h3>", list.Text)
		}
		fmt.Fprintf(&desc, "<ul>%s</ul>", list.Content)
	}
	desc.WriteString(p.Additional)

	var locs []string
	for _, loc := range p.Categories.AllLocations {
		locs = append(locs, util.NormalizeLocation(loc))
	}
	if len(locs) == 0 {
		locs = util.SplitLocations(p.Categories.Location)
	}
	if strings.EqualFold(p.WorkplaceType, "remote") && !anyRemote(locs) {
		locs = append(locs, "Remote")
	}

	item := domain.JobItem{
		ApplicationURL:     util.CanonicalURL(firstNonEmpty(p.HostedURL, p.ApplyURL)),
		ATSJobKey:          id,
		JobTitle:           title,
		JobDescriptionHTML: desc.String(),
		DepartmentName:     firstNonEmpty(util.CleanText(p.Categories.Department), util.CleanText(p.Categories.Team), task.Meta(domain.MetaDepartment)),
		EmploymentType:     util.NormalizeEmploymentType(p.Categories.Commitment),
		Locations:          nonEmpty(locs...),
	}
	if p.CreatedAt > 0 {
		t := time.UnixMilli(p.CreatedAt).UTC()
		item.OpenDate = &t
	}
	if sr := p.SalaryRange; sr != nil && (sr.Min > 0 || sr.Max > 0) {
		item.Salary = domain.Salary{Currency: strings.ToUpper(sr.Currency), Interval: leverInterval(sr.Interval)}
		if sr.Min > 0 {
			lo := sr.Min
			item.Salary.Floor = &lo
		}
		if sr.Max > 0 {
			hi := sr.Max
			item.Salary.Ceiling = &hi
		}
	}
	return item, nil
}

// leverInterval maps "per-year-salary" style values onto year/month/hour.
func leverInterval(s string) string {
	l := strings.ToLower(s)
	switch {
	case strings.Contains(l, "year"):
		return "year"
	case strings.Contains(l, "month"):
		return "month"
	case strings.Contains(l, "hour"):
		return "hour"
	}
	return ""
}

func anyRemote(locs []string) bool {
	for _, l := range locs {
		if util.IsRemote(l) {
			return true
		}
	}
	return false
}
