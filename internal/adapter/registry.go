package adapter

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"jobvyne-crawler/internal/adapter/api"
	"jobvyne-crawler/internal/adapter/feed"
	"jobvyne-crawler/internal/adapter/spa"
	"jobvyne-crawler/internal/adapter/static"
	"jobvyne-crawler/internal/fetch"
	"jobvyne-crawler/internal/logger"
	"jobvyne-crawler/internal/paginate"
	"jobvyne-crawler/internal/scrape/util"
)

// Deps are the shared collaborators adapters are built with.
type Deps struct {
	Fetcher fetch.Fetcher
	Limiter *util.HostLimiter
	// HTTPTimeout applies to API listing calls.
	HTTPTimeout time.Duration
	// Tabs is nil when the browser is disabled; spa employers then fail to build.
	Tabs      spa.TabSource
	Paginator *paginate.Paginator
	StepWait  time.Duration
	// Token resolves a keyring entry name to a token.
	Token  func(key string) (string, error)
	Logger logger.Logger

	// DefaultConcurrency per family, used when a spec sets none.
	DefaultConcurrency map[string]int
}

// Entry is one built employer.
type Entry struct {
	Spec        Spec
	Adapter     SiteAdapter
	Concurrency int
}

// Registry is the immutable employer table built once at start-up.
type Registry struct {
	byName  map[string]Entry
	ordered []Entry
}

// NewRegistry builds every active spec. All problems are reported together.
func NewRegistry(specs []Spec, deps Deps) (*Registry, error) {
	r := &Registry{byName: map[string]Entry{}}
	var errs []error
	ids := map[int64]string{}
	names := map[string]bool{}

	for i, s := range specs {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			errs = append(errs, fmt.Errorf("employers[%d]: name is required", i))
			continue
		}
		key := strings.ToLower(name)
		if names[key] {
			errs = append(errs, fmt.Errorf("employers[%d]: duplicate employer %q", i, name))
			continue
		}
		names[key] = true
		if s.ID <= 0 {
			errs = append(errs, fmt.Errorf("employer %q: id must be > 0", name))
			continue
		}
		if other, dup := ids[s.ID]; dup {
			errs = append(errs, fmt.Errorf("employer %q: id %d already used by %q", name, s.ID, other))
			continue
		}
		ids[s.ID] = name
		if !s.IsActive() {
			continue
		}

		a, err := build(s, deps)
		if err != nil {
			errs = append(errs, fmt.Errorf("employer %q: %w", name, err))
			continue
		}
		conc := s.Concurrency
		if conc <= 0 {
			conc = deps.DefaultConcurrency[s.Family]
		}
		if conc <= 0 {
			conc = 4
		}
		e := Entry{Spec: s, Adapter: a, Concurrency: conc}
		r.byName[key] = e
		r.ordered = append(r.ordered, e)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	sort.Slice(r.ordered, func(i, k int) bool { return r.ordered[i].Spec.Name < r.ordered[k].Spec.Name })
	return r, nil
}

func (r *Registry) Get(name string) (Entry, bool) {
	e, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	return e, ok
}

// Entries returns the active employers sorted by name. The slice is a copy.
func (r *Registry) Entries() []Entry {
	return append([]Entry(nil), r.ordered...)
}

func (r *Registry) Len() int { return len(r.ordered) }

func build(s Spec, deps Deps) (SiteAdapter, error) {
	switch s.Family {
	case FamilyStatic:
		return static.New(static.Config{
			Employer:       s.Name,
			ListURL:        s.URL,
			Preset:         s.Preset,
			LinkSelector:   s.Links,
			GroupSelector:  s.Group,
			HeaderSelector: s.Header,
			KeyPattern:     s.KeyPattern,
			Detail:         s.Detail,
			Rendered:       s.Rendered,
			ReadySelector:  s.Ready,
		}, deps.Fetcher)

	case FamilyAPI:
		opts := api.Options{
			Client:  &http.Client{Timeout: deps.HTTPTimeout},
			Limiter: deps.Limiter,
			Logger:  deps.Logger,
		}
		if s.TokenKey != "" && deps.Token != nil {
			key := s.TokenKey
			opts.Token = func() (string, error) { return deps.Token(key) }
		}
		return api.New(api.Config{
			Employer: s.Name,
			Dialect:  s.Dialect,
			Board:    s.Board,
			BaseURL:  s.BaseURL,
			PageSize: s.PageSize,
		}, opts)

	case FamilyFeed:
		return feed.New(feed.Config{
			Employer:        s.Name,
			FeedURL:         s.URL,
			KeySource:       s.KeySource,
			LocationField:   s.LocationField,
			DepartmentField: s.DepartmentField,
		}, deps.Fetcher)

	case FamilySPA:
		if deps.Tabs == nil {
			return nil, errors.New("spa family needs the browser enabled")
		}
		return spa.New(spa.Config{
			Employer:    s.Name,
			ListURL:     s.URL,
			DetailReady: s.Ready,
			KeyPattern:  s.KeyPattern,
			Detail:      s.Detail,
		}, spa.ChromeOpener(deps.Tabs, s.URL, s.Paginator, deps.StepWait), deps.Paginator)

	default:
		return nil, fmt.Errorf("unknown family %q", s.Family)
	}
}
