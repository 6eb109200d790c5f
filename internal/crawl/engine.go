// Package crawl runs one adapter through a fixed worker pool fed by a
// bounded queue and collects the parsed job items.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"jobvyne-crawler/internal/adapter"
	"jobvyne-crawler/internal/domain"
	"jobvyne-crawler/internal/fetch"
	"jobvyne-crawler/internal/logger"
)

// Observer receives per-task events. Implementations must be safe for
// concurrent use.
type Observer interface {
	TaskStarted(mode domain.FetchMode)
	TaskFinished(mode domain.FetchMode, err error)
}

type nopObserver struct{}

func (nopObserver) TaskStarted(domain.FetchMode)         {}
func (nopObserver) TaskFinished(domain.FetchMode, error) {}

// Result is everything one run produced.
type Result struct {
	Items []domain.JobItem
	// TaskErrors are per-task fetch/parse failures.
	TaskErrors []domain.TaskError
	// DiscoveryErrors are pages or departments lost during discovery.
	DiscoveryErrors []domain.TaskError
	// Discovered counts tasks accepted into the queue.
	Discovered int
}

type Engine struct {
	fetcher fetch.Fetcher
	obs     Observer
	log     logger.Logger
}

func New(fetcher fetch.Fetcher, obs Observer, log logger.Logger) *Engine {
	if obs == nil {
		obs = nopObserver{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Engine{fetcher: fetcher, obs: obs, log: logger.Component(log, "crawl")}
}

type queueSink struct {
	ctx   context.Context
	queue chan<- domain.CrawlTask
	count atomic.Int64

	mu    sync.Mutex
	fails []domain.TaskError
}

func (s *queueSink) Emit(t domain.CrawlTask) error {
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	case s.queue <- t:
		s.count.Add(1)
		return nil
	}
}

func (s *queueSink) Fail(err domain.TaskError) {
	s.mu.Lock()
	s.fails = append(s.fails, err)
	s.mu.Unlock()
}

// Run starts concurrency workers, then runs discovery in its own goroutine.
// At most concurrency tasks are ever being fetched at once. It returns once
// discovery is exhausted and the queue drained, or promptly after ctx is
// cancelled, in which case queued tasks are discarded without dispatch.
// A discovery failure (domain.ErrSiteUnavailable) is returned as the error
// together with whatever was collected.
func (e *Engine) Run(ctx context.Context, a adapter.SiteAdapter, concurrency int) (Result, error) {
	if concurrency < 1 {
		concurrency = 1
	}

	queue := make(chan domain.CrawlTask, concurrency)
	g, gctx := errgroup.WithContext(ctx)
	sink := &queueSink{ctx: gctx, queue: queue}

	var (
		mu    sync.Mutex
		items []domain.JobItem
		errs  []domain.TaskError
	)

	for i := 0; i < concurrency; i++ {
		g.Go(func() error {
			for t := range queue {
				if gctx.Err() != nil {
					continue
				}
				item, terr := e.runTask(gctx, a, t)
				if gctx.Err() != nil {
					continue
				}
				mu.Lock()
				if terr != nil {
					errs = append(errs, *terr)
				} else {
					items = append(items, item)
				}
				mu.Unlock()
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(queue)
		return a.Discover(gctx, sink)
	})

	err := g.Wait()
	res := Result{
		Items:           items,
		TaskErrors:      errs,
		DiscoveryErrors: sink.fails,
		Discovered:      int(sink.count.Load()),
	}

	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	if err != nil {
		return res, fmt.Errorf("%s: %w", a.Name(), err)
	}

	e.log.Info("crawl finished",
		logger.String("adapter", a.Name()),
		logger.Int("discovered", res.Discovered),
		logger.Int("items", len(res.Items)),
		logger.Int("task_errors", len(res.TaskErrors)),
		logger.Int("discovery_errors", len(res.DiscoveryErrors)),
	)
	return res, nil
}

func (e *Engine) runTask(ctx context.Context, a adapter.SiteAdapter, t domain.CrawlTask) (domain.JobItem, *domain.TaskError) {
	e.obs.TaskStarted(t.Mode)

	var page *fetch.Page
	var err error
	switch t.Mode {
	case domain.FetchInline:
	case domain.FetchRendered:
		page, err = e.fetcher.FetchRendered(ctx, t.URL, t.Ready)
	default:
		page, err = e.fetcher.FetchStatic(ctx, t.URL, fetch.WithHeader(t.Header))
	}
	if err != nil {
		e.obs.TaskFinished(t.Mode, err)
		e.log.Debug("fetch failed", logger.String("url", t.URL), logger.Error(err))
		return domain.JobItem{}, &domain.TaskError{URL: t.URL, Department: t.Meta(domain.MetaDepartment), Err: err}
	}

	item, err := parse(a, page, t)
	if err != nil {
		if !errors.Is(err, domain.ErrParse) {
			err = fmt.Errorf("%w: %w", domain.ErrParse, err)
		}
		e.obs.TaskFinished(t.Mode, err)
		e.log.Debug("parse failed", logger.String("url", t.URL), logger.Error(err))
		return domain.JobItem{}, &domain.TaskError{URL: t.URL, Department: t.Meta(domain.MetaDepartment), Err: err}
	}
	e.obs.TaskFinished(t.Mode, nil)
	return item, nil
}

// parse converts an adapter panic into a parse error so one bad page cannot
// take down the pool.
func parse(a adapter.SiteAdapter, page *fetch.Page, t domain.CrawlTask) (item domain.JobItem, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", domain.ErrParse, r)
		}
	}()
	return a.ParseJob(page, t)
}
