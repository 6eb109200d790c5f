// Package static crawls career boards that list every opening on one
// server-rendered page (Greenhouse, Lever, Breezy, JazzHR, BambooHR).
package static

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"jobvyne-crawler/internal/domain"
	"jobvyne-crawler/internal/fetch"
	"jobvyne-crawler/internal/scrape/util"
)

type Config struct {
	Employer string
	ListURL  string
	Preset   string

	// Overrides for the preset. Leave empty to inherit.
	LinkSelector   string
	GroupSelector  string
	HeaderSelector string
	KeyPattern     string
	Detail         Selectors

	// Rendered makes detail pages go through the browser, waiting for ReadySelector.
	Rendered      bool
	ReadySelector string
}

type Adapter struct {
	name    string
	cfg     Config
	keyRe   *regexp.Regexp
	fetcher fetch.Fetcher
	now     func() time.Time
}

func New(cfg Config, fetcher fetch.Fetcher) (*Adapter, error) {
	if strings.TrimSpace(cfg.ListURL) == "" {
		return nil, fmt.Errorf("static %q: list url is required", cfg.Employer)
	}
	if cfg.Preset != "" {
		p, ok := LookupPreset(cfg.Preset)
		if !ok {
			return nil, fmt.Errorf("static %q: unknown preset %q", cfg.Employer, cfg.Preset)
		}
		cfg.LinkSelector = firstNonEmpty(cfg.LinkSelector, p.LinkSelector)
		cfg.GroupSelector = firstNonEmpty(cfg.GroupSelector, p.GroupSelector)
		cfg.HeaderSelector = firstNonEmpty(cfg.HeaderSelector, p.HeaderSelector)
		cfg.KeyPattern = firstNonEmpty(cfg.KeyPattern, p.KeyPattern)
		cfg.Detail = p.Detail.merge(cfg.Detail)
	}
	if cfg.LinkSelector == "" {
		return nil, fmt.Errorf("static %q: link selector is required", cfg.Employer)
	}
	if cfg.Detail.Title == "" {
		cfg.Detail.Title = "h1"
	}

	a := &Adapter{
		name:    "static:" + firstNonEmpty(cfg.Preset, "custom"),
		cfg:     cfg,
		fetcher: fetcher,
		now:     time.Now,
	}
	if cfg.KeyPattern != "" {
		re, err := regexp.Compile(cfg.KeyPattern)
		if err != nil {
			return nil, fmt.Errorf("static %q: key pattern: %w", cfg.Employer, err)
		}
		if re.NumSubexp() < 1 {
			return nil, fmt.Errorf("static %q: key pattern needs one capture group", cfg.Employer)
		}
		a.keyRe = re
	}
	return a, nil
}

func (a *Adapter) Name() string { return a.name }

// Discover fetches the listing page once and emits one task per unique job link.
func (a *Adapter) Discover(ctx context.Context, sink domain.TaskSink) error {
	page, err := a.fetcher.FetchStatic(ctx, a.cfg.ListURL)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s: %v", domain.ErrSiteUnavailable, a.cfg.ListURL, err)
	}
	if page.Doc == nil {
		return fmt.Errorf("%w: %s: listing is not html", domain.ErrSiteUnavailable, a.cfg.ListURL)
	}

	mode := domain.FetchStatic
	if a.cfg.Rendered {
		mode = domain.FetchRendered
	}

	var tasks []domain.CrawlTask
	seen := map[string]bool{}
	page.Doc.Find(a.cfg.LinkSelector).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		u := util.CanonicalURL(util.AbsURL(page.URL, href))
		if u == "" || seen[u] {
			return
		}
		seen[u] = true

		meta := map[string]string{
			domain.MetaTitle: util.CleanText(s.Text()),
		}
		if key := a.keyFromURL(u); key != "" {
			meta[domain.MetaATSKey] = key
		}
		if dept := a.sectionHeader(s); dept != "" {
			meta[domain.MetaDepartment] = dept
		}
		tasks = append(tasks, domain.CrawlTask{
			URL:      u,
			Ready:    a.cfg.ReadySelector,
			Mode:     mode,
			Metadata: meta,
		})
	})

	for _, t := range tasks {
		if err := sink.Emit(t); err != nil {
			return err
		}
	}
	return nil
}

// sectionHeader returns the department header of the group enclosing s.
func (a *Adapter) sectionHeader(s *goquery.Selection) string {
	if a.cfg.GroupSelector == "" || a.cfg.HeaderSelector == "" {
		return ""
	}
	group := s.Closest(a.cfg.GroupSelector)
	if group.Length() == 0 {
		return ""
	}
	return util.CleanText(group.Find(a.cfg.HeaderSelector).First().Text())
}

func (a *Adapter) keyFromURL(u string) string {
	if a.keyRe == nil {
		return ""
	}
	m := a.keyRe.FindStringSubmatch(u)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

func (a *Adapter) ParseJob(page *fetch.Page, task domain.CrawlTask) (domain.JobItem, error) {
	if page == nil || page.Doc == nil {
		return domain.JobItem{}, fmt.Errorf("%w: %s: no document", domain.ErrParse, task.URL)
	}
	return ParseDetail(page.Doc, a.cfg.Detail, task, a.cfg.Employer, a.now())
}

// ParseDetail extracts a JobItem from a job-detail document using sel, with
// task metadata filling gaps. It is shared with the rendered-site family.
func ParseDetail(doc *goquery.Document, d Selectors, task domain.CrawlTask, employer string, now time.Time) (domain.JobItem, error) {
	if d.Title == "" {
		d.Title = "h1"
	}
	title := firstNonEmpty(text(doc, d.Title), task.Meta(domain.MetaTitle))
	if title == "" {
		return domain.JobItem{}, fmt.Errorf("%w: %s: missing title", domain.ErrParse, task.URL)
	}

	item := domain.JobItem{
		EmployerName:   employer,
		ApplicationURL: task.URL,
		ATSJobKey:      task.Meta(domain.MetaATSKey),
		JobTitle:       title,
		DepartmentName: firstNonEmpty(task.Meta(domain.MetaDepartment), text(doc, d.Department)),
		EmploymentType: util.NormalizeEmploymentType(text(doc, d.EmploymentType)),
	}

	var descText string
	if d.Description != "" {
		if sel := doc.Find(d.Description).First(); sel.Length() > 0 {
			html, err := sel.Html()
			if err != nil {
				return domain.JobItem{}, fmt.Errorf("%w: %s: description: %v", domain.ErrParse, task.URL, err)
			}
			item.JobDescriptionHTML = strings.TrimSpace(html)
			descText = sel.Text()
		}
	}

	loc := text(doc, d.Location)
	if loc == "" {
		loc = util.FindLocation(doc)
	}
	item.Locations = util.SplitLocations(loc)

	salaryText := text(doc, d.Salary)
	if salaryText == "" {
		salaryText = descText
	}
	if s, ok := util.ParseSalary(salaryText); ok {
		item.Salary = s
	}

	posted := text(doc, d.Posted)
	if posted == "" {
		posted, _ = doc.Find(`[itemprop="datePosted"]`).Attr("content")
	}
	item.OpenDate = util.ParseDate(posted, now)

	return item, nil
}

func text(doc *goquery.Document, sel string) string {
	if sel == "" {
		return ""
	}
	return util.CleanText(doc.Find(sel).First().Text())
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
