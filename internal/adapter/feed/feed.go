// Package feed crawls employers that publish openings as an RSS/Atom or
// XML job feed. The feed carries the whole posting, so every task is inline.
package feed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"

	"jobvyne-crawler/internal/domain"
	"jobvyne-crawler/internal/fetch"
	"jobvyne-crawler/internal/scrape/util"
)

const (
	KeyGUID = "guid"
	KeyLink = "link"
	KeyNone = "none"

	httpPrefix = "http"
)

type Config struct {
	Employer string
	FeedURL  string
	// KeySource picks the vendor key: guid (default), link or none.
	KeySource string
	// Element names looked up in item extensions / custom fields.
	LocationField   string
	DepartmentField string
	TypeField       string
}

type Adapter struct {
	cfg     Config
	fetcher fetch.Fetcher
	now     func() time.Time
}

func New(cfg Config, fetcher fetch.Fetcher) (*Adapter, error) {
	if strings.TrimSpace(cfg.FeedURL) == "" {
		return nil, fmt.Errorf("feed %q: feed url is required", cfg.Employer)
	}
	switch cfg.KeySource {
	case "":
		cfg.KeySource = KeyGUID
	case KeyGUID, KeyLink, KeyNone:
	default:
		return nil, fmt.Errorf("feed %q: unknown key source %q", cfg.Employer, cfg.KeySource)
	}
	if cfg.LocationField == "" {
		cfg.LocationField = "location"
	}
	if cfg.DepartmentField == "" {
		cfg.DepartmentField = "department"
	}
	if cfg.TypeField == "" {
		cfg.TypeField = "type"
	}
	return &Adapter{cfg: cfg, fetcher: fetcher, now: time.Now}, nil
}

func (a *Adapter) Name() string { return "feed" }

func (a *Adapter) Discover(ctx context.Context, sink domain.TaskSink) error {
	page, err := a.fetcher.FetchStatic(ctx, a.cfg.FeedURL)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", domain.ErrSiteUnavailable, err)
	}

	parsed, err := gofeed.NewParser().ParseString(string(page.Body))
	if err != nil {
		return fmt.Errorf("%w: parse feed %s: %w", domain.ErrSiteUnavailable, a.cfg.FeedURL, err)
	}

	for _, entry := range parsed.Items {
		link := extractLink(entry)
		title := util.CleanText(entry.Title)
		if link == "" || title == "" {
			sink.Fail(domain.TaskError{URL: a.cfg.FeedURL, Err: fmt.Errorf("%w: feed item without link or title", domain.ErrParse)})
			continue
		}

		meta := map[string]string{
			domain.MetaTitle:       title,
			domain.MetaDescription: firstNonEmpty(entry.Content, entry.Description),
			domain.MetaLocation:    a.field(entry, a.cfg.LocationField),
			domain.MetaDepartment:  a.field(entry, a.cfg.DepartmentField),
		}
		if meta[domain.MetaDepartment] == "" && len(entry.Categories) > 0 {
			meta[domain.MetaDepartment] = util.CleanText(entry.Categories[0])
		}
		if t := a.field(entry, a.cfg.TypeField); t != "" {
			meta[domain.MetaEmploymentType] = t
		}
		if entry.PublishedParsed != nil {
			meta[domain.MetaPosted] = entry.PublishedParsed.UTC().Format(time.RFC3339)
		}
		switch a.cfg.KeySource {
		case KeyGUID:
			meta[domain.MetaATSKey] = strings.TrimSpace(entry.GUID)
		case KeyLink:
			meta[domain.MetaATSKey] = util.CanonicalURL(link)
		}

		if err := sink.Emit(domain.CrawlTask{URL: link, Mode: domain.FetchInline, Metadata: meta}); err != nil {
			return err
		}
	}
	return nil
}

// ParseJob builds the item from task metadata; page is always nil for feeds.
func (a *Adapter) ParseJob(_ *fetch.Page, task domain.CrawlTask) (domain.JobItem, error) {
	title := task.Meta(domain.MetaTitle)
	if title == "" {
		return domain.JobItem{}, fmt.Errorf("%w: %s: missing title", domain.ErrParse, task.URL)
	}
	desc := task.Meta(domain.MetaDescription)
	item := domain.JobItem{
		EmployerName:       a.cfg.Employer,
		ApplicationURL:     util.CanonicalURL(task.URL),
		ATSJobKey:          task.Meta(domain.MetaATSKey),
		JobTitle:           title,
		JobDescriptionHTML: desc,
		DepartmentName:     task.Meta(domain.MetaDepartment),
		EmploymentType:     util.NormalizeEmploymentType(task.Meta(domain.MetaEmploymentType)),
		Locations:          util.SplitLocations(task.Meta(domain.MetaLocation)),
		OpenDate:           util.ParseDate(task.Meta(domain.MetaPosted), a.now()),
	}
	if s, ok := util.ParseSalary(desc); ok {
		item.Salary = s
	}
	return item, nil
}

// field looks name up in namespaced extensions first, then RSS custom elements.
func (a *Adapter) field(entry *gofeed.Item, name string) string {
	for _, ns := range entry.Extensions {
		if v := extValue(ns, name); v != "" {
			return v
		}
	}
	if entry.Custom != nil {
		if v := util.CleanText(entry.Custom[name]); v != "" {
			return v
		}
	}
	return ""
}

func extValue(ns map[string][]ext.Extension, name string) string {
	vals := ns[name]
	parts := make([]string, 0, len(vals))
	for _, e := range vals {
		if v := util.CleanText(e.Value); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, "; ")
}

// extractLink prefers the explicit Link, falling back to an http GUID.
func extractLink(entry *gofeed.Item) string {
	if entry.Link != "" {
		return strings.TrimSpace(entry.Link)
	}
	if strings.HasPrefix(entry.GUID, httpPrefix) {
		return strings.TrimSpace(entry.GUID)
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
