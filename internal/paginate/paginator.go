// Package paginate walks department-filtered, client-paginated job lists in
// single-page career sites. Page-load completion is detected by content
// fingerprint because these sites re-render in place and often answer with
// stale content after a "successful" click.
package paginate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"jobvyne-crawler/internal/domain"
	"jobvyne-crawler/internal/logger"
)

// Department is one entry of the site's department filter.
type Department struct {
	Name  string
	Count int // expected result count from the filter menu; -1 when not shown
}

// Browser is the set of UI operations the paginator needs from a rendered
// listing page. Implementations must not block beyond their own short timeouts.
type Browser interface {
	Reload(ctx context.Context) error
	OpenMenu(ctx context.Context) error
	Departments(ctx context.Context) ([]Department, error)
	ClearFilter(ctx context.Context) error
	SelectDepartment(ctx context.Context, index int) error
	ApplyFilter(ctx context.Context) error
	// ResultCount is the total reported by the "N of M results" label.
	ResultCount(ctx context.Context) (int, error)
	JobLinks(ctx context.Context) ([]string, error)
	HasNext(ctx context.Context) (bool, error)
	ClickNext(ctx context.Context) error
}

// State is the paginator's position in the menu/filter/list cycle.
type State int

const (
	MenuClosed State = iota
	MenuOpen
	FilterApplied
	ListLoaded
	NextPage
	Done
)

func (s State) String() string {
	switch s {
	case MenuClosed:
		return "menu_closed"
	case MenuOpen:
		return "menu_open"
	case FilterApplied:
		return "filter_applied"
	case ListLoaded:
		return "list_loaded"
	case NextPage:
		return "next_page"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

type Options struct {
	// MaxWait bounds every page-load wait (MAX_PAGE_LOAD_WAIT_SECONDS).
	MaxWait time.Duration
	// Poll is the interval between load checks.
	Poll time.Duration
	// MaxPages caps pages per department.
	MaxPages int
	Logger   logger.Logger
	// OnState is called on every transition; used by tests and debug logging.
	OnState func(dept string, s State)
}

// Visit receives one loaded page of job links.
type Visit func(dept Department, page int, links []string) error

// Paginator drives a Browser through every department.
type Paginator struct {
	opts Options
	log  logger.Logger
}

func New(opts Options) *Paginator {
	if opts.MaxWait <= 0 {
		opts.MaxWait = 5 * time.Second
	}
	if opts.Poll <= 0 {
		opts.Poll = time.Second
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 500
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}
	return &Paginator{opts: opts, log: logger.Component(log, "paginate")}
}

var errStale = errors.New("list did not re-render")

// Run visits every page of every department. The returned failures are the
// recoverable per-department losses. A non-nil error aborts the crawl: it is
// either cancellation or domain.ErrSiteUnavailable (menu unusable, or the
// first department fails to load twice, with a reload in between).
func (p *Paginator) Run(ctx context.Context, b Browser, visit Visit) ([]domain.TaskError, error) {
	if err := p.openMenu(ctx, b); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSiteUnavailable, err)
	}
	depts, err := b.Departments(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: read departments: %w", domain.ErrSiteUnavailable, err)
	}
	if len(depts) == 0 {
		return nil, fmt.Errorf("%w: department filter is empty", domain.ErrSiteUnavailable)
	}

	var failures []domain.TaskError
	fingerprint := ""
	menuOpen := true
	attempted := 0
	for i, d := range depts {
		if err := ctx.Err(); err != nil {
			return failures, err
		}
		if d.Count == 0 {
			p.log.Debug("department empty; skipped", logger.String("department", d.Name))
			continue
		}
		attempted++
		fp, err := p.department(ctx, b, i, d, menuOpen, fingerprint, visit)
		menuOpen = false
		if err != nil && attempted == 1 && ctx.Err() == nil && retryable(err) {
			// the first department decides whether the site works at all:
			// give it one more try from a fresh page
			p.log.Warn("first department failed; reloading and retrying",
				logger.String("department", d.Name), logger.Error(err))
			if rerr := b.Reload(ctx); rerr != nil {
				return failures, fmt.Errorf("%w: reload: %w", domain.ErrSiteUnavailable, rerr)
			}
			fp, err = p.department(ctx, b, i, d, false, fingerprint, visit)
		}
		if fp != "" {
			fingerprint = fp
		}
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return failures, ctx.Err()
		}

		var lost *lostPagesError
		switch {
		case isVisitErr(err):
			return failures, errors.Unwrap(err)
		case errors.As(err, &lost):
			p.log.Warn("remaining pages lost",
				logger.String("department", d.Name), logger.Int("page", lost.page), logger.Error(lost.err))
			failures = append(failures, domain.TaskError{Department: d.Name, Err: err})
		case attempted == 1:
			return failures, fmt.Errorf("%w: first department %q: %w", domain.ErrSiteUnavailable, d.Name, err)
		default:
			p.log.Warn("department skipped", logger.String("department", d.Name), logger.Error(err))
			failures = append(failures, domain.TaskError{Department: d.Name, Err: err})
		}
	}
	return failures, nil
}

// openMenu opens the filter control, reloading once before giving up.
func (p *Paginator) openMenu(ctx context.Context, b Browser) error {
	err := b.OpenMenu(ctx)
	if err == nil {
		return nil
	}
	p.log.Debug("menu open failed; reloading", logger.Error(err))
	if rerr := b.Reload(ctx); rerr != nil {
		return fmt.Errorf("reload: %w", rerr)
	}
	if err := b.OpenMenu(ctx); err != nil {
		return fmt.Errorf("open department menu: %w", err)
	}
	return nil
}

// retryable reports whether a department failure happened before any page
// was handed to visit, so running the department again duplicates nothing.
func retryable(err error) bool {
	var lost *lostPagesError
	return !isVisitErr(err) && !errors.As(err, &lost)
}

type lostPagesError struct {
	page int
	err  error
}

func (e *lostPagesError) Error() string {
	return fmt.Sprintf("pages after %d lost: %v", e.page, e.err)
}

func (e *lostPagesError) Unwrap() error { return e.err }

type visitError struct{ err error }

func (e *visitError) Error() string { return e.err.Error() }
func (e *visitError) Unwrap() error { return e.err }

func isVisitErr(err error) bool {
	var v *visitError
	return errors.As(err, &v)
}

// department runs one department from MenuClosed to Done and returns the
// last page fingerprint seen, which the next department must differ from.
func (p *Paginator) department(ctx context.Context, b Browser, i int, d Department, menuOpen bool, prev string, visit Visit) (string, error) {
	p.enter(d.Name, MenuClosed)
	if !menuOpen {
		if err := p.openMenu(ctx, b); err != nil {
			return "", err
		}
	}
	p.enter(d.Name, MenuOpen)

	if err := p.filter(ctx, b, i); err != nil {
		return "", err
	}
	p.enter(d.Name, FilterApplied)

	links, err := p.waitLoaded(ctx, b, d, differs(prev))
	if err != nil {
		return "", err
	}

	seen := map[string]bool{}
	var pages []string // first link of every page visited, in order
	for page := 1; ; page++ {
		p.enter(d.Name, ListLoaded)
		fp := links[0]
		seen[fp] = true
		pages = append(pages, fp)
		if err := visit(d, page, links); err != nil {
			return fp, &visitError{err: err}
		}

		if page >= p.opts.MaxPages {
			p.log.Warn("page cap reached", logger.String("department", d.Name), logger.Int("pages", page))
			p.enter(d.Name, Done)
			return fp, nil
		}
		more, err := b.HasNext(ctx)
		if err != nil {
			return fp, &lostPagesError{page: page, err: err}
		}
		if !more {
			p.enter(d.Name, Done)
			return fp, nil
		}

		p.enter(d.Name, NextPage)
		links, err = p.next(ctx, b, i, d, pages)
		if err != nil {
			return fp, &lostPagesError{page: page, err: err}
		}
		if seen[links[0]] {
			// The site wrapped around to a page already visited.
			p.enter(d.Name, Done)
			return links[0], nil
		}
	}
}

func (p *Paginator) filter(ctx context.Context, b Browser, i int) error {
	if err := b.ClearFilter(ctx); err != nil {
		return fmt.Errorf("clear filter: %w", err)
	}
	if err := b.SelectDepartment(ctx, i); err != nil {
		return fmt.Errorf("select department: %w", err)
	}
	if err := b.ApplyFilter(ctx); err != nil {
		return fmt.Errorf("apply filter: %w", err)
	}
	return nil
}

// next clicks "next" and waits for the fingerprint to change. On a stall it
// reloads once, walks back to the current page of the same department and
// retries the click once. pages holds the first link of every page visited
// so far; the last one is the current page.
func (p *Paginator) next(ctx context.Context, b Browser, i int, d Department, pages []string) ([]string, error) {
	fp := pages[len(pages)-1]
	err := b.ClickNext(ctx)
	if err == nil {
		var links []string
		links, err = p.waitLoaded(ctx, b, pageOnly(d), differs(fp))
		if err == nil {
			return links, nil
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	p.log.Debug("next page stalled; reloading once", logger.String("department", d.Name), logger.Error(err))

	if err := b.Reload(ctx); err != nil {
		return nil, fmt.Errorf("reload: %w", err)
	}
	if err := p.restore(ctx, b, i, d, pages); err != nil {
		return nil, fmt.Errorf("restore page %d after reload: %w", len(pages), err)
	}
	if err := b.ClickNext(ctx); err != nil {
		return nil, fmt.Errorf("retry next: %w", err)
	}
	return p.waitLoaded(ctx, b, pageOnly(d), differs(fp))
}

// restore brings a freshly reloaded page back to the given department's
// current page. A reload drops the filter and the page position, so every
// step is checked against the fingerprints recorded on the way in; any
// mismatch fails rather than letting links from another listing through.
func (p *Paginator) restore(ctx context.Context, b Browser, i int, d Department, pages []string) error {
	if err := b.OpenMenu(ctx); err != nil {
		return fmt.Errorf("open department menu: %w", err)
	}
	if err := p.filter(ctx, b, i); err != nil {
		return err
	}
	if _, err := p.waitLoaded(ctx, b, d, matches(pages[0])); err != nil {
		return err
	}
	for k := 1; k < len(pages); k++ {
		if err := b.ClickNext(ctx); err != nil {
			return fmt.Errorf("next to page %d: %w", k+1, err)
		}
		if _, err := p.waitLoaded(ctx, b, pageOnly(d), matches(pages[k])); err != nil {
			return fmt.Errorf("page %d: %w", k+1, err)
		}
	}
	return nil
}

// firstLink decides whether a list's first job link is the one waited for.
type firstLink func(link string) error

func differs(prev string) firstLink {
	return func(link string) error {
		if link == prev {
			return errStale
		}
		return nil
	}
}

func matches(want string) firstLink {
	return func(link string) error {
		if link != want {
			return fmt.Errorf("%w: first link %q, want %q", errStale, link, want)
		}
		return nil
	}
}

// pageOnly is d with the count check switched off; the reported total does
// not change between pages of one department.
func pageOnly(d Department) Department {
	d.Count = -1
	return d
}

// waitLoaded polls until the first job link satisfies ready and, when the
// department reports a count, the result total equals it. Bounded by MaxWait.
func (p *Paginator) waitLoaded(ctx context.Context, b Browser, d Department, ready firstLink) ([]string, error) {
	deadline := time.Now().Add(p.opts.MaxWait)
	ticker := time.NewTicker(p.opts.Poll)
	defer ticker.Stop()

	var last error
	for {
		links, err := p.loaded(ctx, b, d.Count, ready)
		if err == nil {
			return links, nil
		}
		last = err

		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%w after %s: %w", domain.ErrPageLoadTimeout, p.opts.MaxWait, last)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Paginator) loaded(ctx context.Context, b Browser, want int, ready firstLink) ([]string, error) {
	if want >= 0 {
		n, err := b.ResultCount(ctx)
		if err != nil {
			return nil, err
		}
		if n != want {
			return nil, fmt.Errorf("result count %d, want %d", n, want)
		}
	}
	links, err := b.JobLinks(ctx)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return nil, fmt.Errorf("%w: no job links", errStale)
	}
	if err := ready(links[0]); err != nil {
		return nil, err
	}
	return links, nil
}

func (p *Paginator) enter(dept string, s State) {
	if p.opts.OnState != nil {
		p.opts.OnState(dept, s)
	}
}
