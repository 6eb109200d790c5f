// Package api crawls ATS boards that expose an offset/limit JSON listing
// endpoint. Each listing item becomes a task pointing at its JSON detail
// endpoint; no browser is involved.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"jobvyne-crawler/internal/domain"
	"jobvyne-crawler/internal/fetch"
	"jobvyne-crawler/internal/logger"
	"jobvyne-crawler/internal/scrape/util"
)

const (
	DialectGreenhouse      = "greenhouse"
	DialectLever           = "lever"
	DialectSmartRecruiters = "smartrecruiters"
	DialectWorkday         = "workday"

	// maxOffset stops runaway pagination on boards that misreport totals.
	maxOffset = 5000

	maxBodyBytes = 8 << 20
)

type Config struct {
	Employer string
	Dialect  string
	// Board is the dialect's board identifier: the company slug for
	// Greenhouse, Lever and SmartRecruiters, the full career-site URL for Workday.
	Board    string
	BaseURL  string // optional API host override
	PageSize int
}

// TokenFunc returns the API token for an employer, or "" when none is stored.
type TokenFunc func() (string, error)

type Options struct {
	Client  *http.Client
	Limiter *util.HostLimiter
	Token   TokenFunc
	Logger  logger.Logger
}

type listing struct {
	tasks []domain.CrawlTask
	count int // raw items on the page, including skipped ones
	total int // 0 when the endpoint does not report one
	// last is set by endpoints that return the whole board in one response.
	last bool
}

type dialect interface {
	// prepare runs once per discovery before the first page (session bootstrap).
	prepare(ctx context.Context, c *client) error
	page(ctx context.Context, c *client, offset, limit int) (listing, error)
	parse(page *fetch.Page, task domain.CrawlTask, now time.Time) (domain.JobItem, error)
	defaultPageSize() int
}

type Adapter struct {
	cfg  Config
	d    dialect
	opts Options
	log  logger.Logger
	now  func() time.Time
}

func New(cfg Config, opts Options) (*Adapter, error) {
	if strings.TrimSpace(cfg.Board) == "" {
		return nil, fmt.Errorf("api %q: board is required", cfg.Employer)
	}
	var d dialect
	switch cfg.Dialect {
	case DialectGreenhouse:
		d = newGreenhouse(cfg)
	case DialectLever:
		d = newLever(cfg)
	case DialectSmartRecruiters:
		d = newSmartRecruiters(cfg)
	case DialectWorkday:
		wd, err := newWorkday(cfg)
		if err != nil {
			return nil, fmt.Errorf("api %q: %w", cfg.Employer, err)
		}
		d = wd
	default:
		return nil, fmt.Errorf("api %q: unknown dialect %q", cfg.Employer, cfg.Dialect)
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = d.defaultPageSize()
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 25 * time.Second}
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}
	return &Adapter{
		cfg:  cfg,
		d:    d,
		opts: opts,
		log:  logger.Component(log, "ats:"+cfg.Dialect).With(logger.String("employer", cfg.Employer)),
		now:  time.Now,
	}, nil
}

func (a *Adapter) Name() string { return "api:" + a.cfg.Dialect }

// Discover pages through the listing until a short page, the reported total
// or the offset cap. A failure on the first page means the site is unavailable;
// a later page failure keeps what was emitted and is reported to the sink.
func (a *Adapter) Discover(ctx context.Context, sink domain.TaskSink) error {
	c, err := a.newClient()
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrSiteUnavailable, err)
	}
	if err := a.d.prepare(ctx, c); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", domain.ErrSiteUnavailable, err)
	}

	limit := a.cfg.PageSize
	for offset := 0; offset <= maxOffset; offset += limit {
		l, err := a.d.page(ctx, c, offset, limit)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if offset == 0 {
				return fmt.Errorf("%w: %w", domain.ErrSiteUnavailable, err)
			}
			a.log.Warn("listing page failed; remaining pages lost",
				logger.Int("offset", offset), logger.Error(err))
			sink.Fail(domain.TaskError{URL: a.cfg.Board, Err: err})
			return nil
		}

		header := c.sessionHeader()
		for _, t := range l.tasks {
			t.Header = header
			if err := sink.Emit(t); err != nil {
				return err
			}
		}
		a.log.Debug("listing page", logger.Int("offset", offset), logger.Int("items", l.count), logger.Int("total", l.total))

		if l.last || l.count < limit {
			return nil
		}
		if l.total > 0 && offset+limit >= l.total {
			return nil
		}
	}
	a.log.Warn("listing offset cap reached", logger.Int("cap", maxOffset))
	return nil
}

func (a *Adapter) ParseJob(page *fetch.Page, task domain.CrawlTask) (domain.JobItem, error) {
	if page == nil || len(page.Body) == 0 {
		return domain.JobItem{}, fmt.Errorf("%w: %s: empty body", domain.ErrParse, task.URL)
	}
	item, err := a.d.parse(page, task, a.now())
	if err != nil {
		if errors.Is(err, domain.ErrParse) {
			return domain.JobItem{}, err
		}
		return domain.JobItem{}, fmt.Errorf("%w: %s: %v", domain.ErrParse, task.URL, err)
	}
	item.EmployerName = a.cfg.Employer
	return item, nil
}

func (a *Adapter) newClient() (*client, error) {
	token := ""
	if a.opts.Token != nil {
		t, err := a.opts.Token()
		if err != nil {
			return nil, fmt.Errorf("api token: %w", err)
		}
		token = t
	}
	return newClient(a.opts.Client, a.opts.Limiter, token)
}

func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	// cut on a rune boundary
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func readAll(r io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, maxBodyBytes))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func nonEmpty(vals ...string) []string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
