package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"golang.org/x/sync/semaphore"

	"jobvyne-crawler/internal/domain"
)

// Rendered drives one shared headless Chrome and hands out at most Slots
// concurrent tabs.
type Rendered struct {
	browserCtx    context.Context
	cancelAlloc   context.CancelFunc
	cancelBrowser context.CancelFunc

	slots   *semaphore.Weighted
	navWait time.Duration
	wait    time.Duration
}

type RenderedOptions struct {
	Headless   bool
	UserAgent  string
	Slots      int64
	NavTimeout time.Duration
	// ReadyWait bounds the wait for the readiness selector (MAX_PAGE_LOAD_WAIT_SECONDS).
	ReadyWait time.Duration
}

// NewRendered starts the browser process. Close must be called to release it.
func NewRendered(opts RenderedOptions) (*Rendered, error) {
	if opts.Slots <= 0 {
		opts.Slots = 10
	}
	if opts.ReadyWait <= 0 {
		opts.ReadyWait = 5 * time.Second
	}
	if opts.NavTimeout <= 0 {
		opts.NavTimeout = 30 * time.Second
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(ua),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	// Start the browser now so the first task does not pay for it.
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	return &Rendered{
		browserCtx:    browserCtx,
		cancelAlloc:   cancelAlloc,
		cancelBrowser: cancelBrowser,
		slots:         semaphore.NewWeighted(opts.Slots),
		navWait:       opts.NavTimeout,
		wait:          opts.ReadyWait,
	}, nil
}

// FetchRendered opens a fresh tab, navigates, waits for readySelector and
// returns the rendered outer HTML. The tab and its slot are released on
// every return path.
func (r *Rendered) FetchRendered(ctx context.Context, url, readySelector string) (*Page, error) {
	if err := r.slots.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer r.slots.Release(1)

	tabCtx, closeTab := chromedp.NewContext(r.browserCtx)
	defer closeTab()
	stop := context.AfterFunc(ctx, closeTab)
	defer stop()

	navCtx, cancelNav := context.WithTimeout(tabCtx, r.navWait)
	defer cancelNav()
	if err := chromedp.Run(navCtx, chromedp.Navigate(url)); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("navigate %s: %w", url, err)
	}

	if readySelector != "" {
		waitCtx, cancelWait := context.WithTimeout(tabCtx, r.wait)
		err := chromedp.Run(waitCtx, chromedp.WaitReady(readySelector, chromedp.ByQuery))
		cancelWait()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("%s on %s: %w", readySelector, url, domain.ErrElementNotFound)
			}
			return nil, fmt.Errorf("wait %s on %s: %w", readySelector, url, err)
		}
	}

	var html string
	if err := chromedp.Run(tabCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("read html %s: %w", url, err)
	}
	return NewPage(url, 200, []byte(html)), nil
}

// NewTab returns an isolated tab context bound to the shared browser, holding
// one page slot until the returned release func is called.
func (r *Rendered) NewTab(ctx context.Context) (context.Context, func(), error) {
	if err := r.slots.Acquire(ctx, 1); err != nil {
		return nil, nil, err
	}
	tabCtx, closeTab := chromedp.NewContext(r.browserCtx)
	stop := context.AfterFunc(ctx, closeTab)
	release := func() {
		stop()
		closeTab()
		r.slots.Release(1)
	}
	return tabCtx, release, nil
}

func (r *Rendered) Close() {
	r.cancelBrowser()
	r.cancelAlloc()
}

// LazyRendered starts the browser on first use, so commands that never
// render do not launch Chrome.
type LazyRendered struct {
	opts RenderedOptions

	mu  sync.Mutex
	r   *Rendered
	err error
}

func NewLazyRendered(opts RenderedOptions) *LazyRendered {
	return &LazyRendered{opts: opts}
}

func (l *LazyRendered) get() (*Rendered, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.r == nil && l.err == nil {
		l.r, l.err = NewRendered(l.opts)
	}
	return l.r, l.err
}

func (l *LazyRendered) FetchRendered(ctx context.Context, url, readySelector string) (*Page, error) {
	r, err := l.get()
	if err != nil {
		return nil, err
	}
	return r.FetchRendered(ctx, url, readySelector)
}

func (l *LazyRendered) NewTab(ctx context.Context) (context.Context, func(), error) {
	r, err := l.get()
	if err != nil {
		return nil, nil, err
	}
	return r.NewTab(ctx)
}

// Started reports whether the browser was launched.
func (l *LazyRendered) Started() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r != nil
}

func (l *LazyRendered) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.r != nil {
		l.r.Close()
		l.r = nil
	}
}
