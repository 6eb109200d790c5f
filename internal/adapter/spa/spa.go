// Package spa crawls single-page career sites (Workday-style) whose listing
// is reachable only by picking each department in a filter menu and clicking
// through client-side pages.
package spa

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"jobvyne-crawler/internal/adapter/static"
	"jobvyne-crawler/internal/domain"
	"jobvyne-crawler/internal/fetch"
	"jobvyne-crawler/internal/paginate"
	"jobvyne-crawler/internal/scrape/util"
)

type Config struct {
	Employer string
	ListURL  string
	// DetailReady must be present before a detail page counts as rendered.
	DetailReady string
	KeyPattern  string
	Detail      static.Selectors
}

// Opener starts a browser session on the listing page. release must be
// called exactly once when discovery ends.
type Opener func(ctx context.Context) (b paginate.Browser, release func(), err error)

// TabSource hands out browser tabs bound to the shared page-slot pool.
type TabSource interface {
	NewTab(ctx context.Context) (context.Context, func(), error)
}

// ChromeOpener opens a tab from tabs and drives it with a ChromeBrowser.
func ChromeOpener(tabs TabSource, listURL string, sel paginate.Selectors, step time.Duration) Opener {
	return func(ctx context.Context) (paginate.Browser, func(), error) {
		tab, release, err := tabs.NewTab(ctx)
		if err != nil {
			return nil, nil, err
		}
		b, err := paginate.NewChromeBrowser(tab, listURL, sel, step)
		if err != nil {
			release()
			return nil, nil, err
		}
		if err := b.Load(ctx); err != nil {
			release()
			return nil, nil, fmt.Errorf("load %s: %w", listURL, err)
		}
		return b, release, nil
	}
}

type Adapter struct {
	cfg   Config
	open  Opener
	pag   *paginate.Paginator
	keyRe *regexp.Regexp
	now   func() time.Time
}

func New(cfg Config, open Opener, pag *paginate.Paginator) (*Adapter, error) {
	if strings.TrimSpace(cfg.ListURL) == "" {
		return nil, fmt.Errorf("spa %q: list url is required", cfg.Employer)
	}
	if open == nil || pag == nil {
		return nil, fmt.Errorf("spa %q: browser is not configured", cfg.Employer)
	}
	a := &Adapter{cfg: cfg, open: open, pag: pag, now: time.Now}
	if cfg.KeyPattern != "" {
		re, err := regexp.Compile(cfg.KeyPattern)
		if err != nil {
			return nil, fmt.Errorf("spa %q: key pattern: %w", cfg.Employer, err)
		}
		if re.NumSubexp() < 1 {
			return nil, fmt.Errorf("spa %q: key pattern needs one capture group", cfg.Employer)
		}
		a.keyRe = re
	}
	return a, nil
}

func (a *Adapter) Name() string { return "spa" }

func (a *Adapter) Discover(ctx context.Context, sink domain.TaskSink) error {
	b, release, err := a.open(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", domain.ErrSiteUnavailable, err)
	}
	defer release()

	seen := map[string]bool{}
	failures, err := a.pag.Run(ctx, b, func(d paginate.Department, _ int, links []string) error {
		for _, href := range links {
			u := util.CanonicalURL(util.AbsURL(a.cfg.ListURL, href))
			if u == "" || seen[u] {
				continue
			}
			seen[u] = true
			meta := map[string]string{domain.MetaDepartment: d.Name}
			if a.keyRe != nil {
				if m := a.keyRe.FindStringSubmatch(u); len(m) > 1 {
					meta[domain.MetaATSKey] = m[1]
				}
			}
			if err := sink.Emit(domain.CrawlTask{
				URL:      u,
				Ready:    a.cfg.DetailReady,
				Mode:     domain.FetchRendered,
				Metadata: meta,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	for _, f := range failures {
		f.URL = a.cfg.ListURL
		sink.Fail(f)
	}
	return err
}

func (a *Adapter) ParseJob(page *fetch.Page, task domain.CrawlTask) (domain.JobItem, error) {
	if page == nil || page.Doc == nil {
		return domain.JobItem{}, fmt.Errorf("%w: %s: no document", domain.ErrParse, task.URL)
	}
	return static.ParseDetail(page.Doc, a.cfg.Detail, task, a.cfg.Employer, a.now())
}
