package crawl

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobvyne-crawler/internal/domain"
	"jobvyne-crawler/internal/fetch"
)

// slowFetcher tracks how many fetches are in flight at once.
type slowFetcher struct {
	delay    time.Duration
	inFlight atomic.Int32
	peak     atomic.Int32
	calls    atomic.Int32
	fail     map[string]bool
}

func (f *slowFetcher) fetch(ctx context.Context, url string) (*fetch.Page, error) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(f.delay):
	}
	if f.fail[url] {
		return nil, &fetch.StatusError{URL: url, Status: 500}
	}
	return fetch.NewPage(url, 200, []byte("<html><h1>"+url+"</h1></html>")), nil
}

func (f *slowFetcher) FetchStatic(ctx context.Context, url string, _ ...fetch.RequestOption) (*fetch.Page, error) {
	return f.fetch(ctx, url)
}

func (f *slowFetcher) FetchRendered(ctx context.Context, url, _ string) (*fetch.Page, error) {
	return f.fetch(ctx, url)
}

// fakeAdapter emits n tasks as fast as the queue accepts them.
type fakeAdapter struct {
	n          int
	mode       domain.FetchMode
	badParse   map[string]bool
	panicParse map[string]bool
	discErr    error
	lost       []domain.TaskError
	emitted    atomic.Int32
}

func (a *fakeAdapter) Name() string { return "fake" }

func (a *fakeAdapter) Discover(ctx context.Context, sink domain.TaskSink) error {
	if a.discErr != nil {
		return a.discErr
	}
	for _, l := range a.lost {
		sink.Fail(l)
	}
	for i := 0; i < a.n; i++ {
		t := domain.CrawlTask{URL: fmt.Sprintf("https://x/jobs/%d", i), Mode: a.mode,
			Metadata: map[string]string{domain.MetaTitle: fmt.Sprintf("Job %d", i)}}
		if err := sink.Emit(t); err != nil {
			return err
		}
		a.emitted.Add(1)
	}
	return nil
}

func (a *fakeAdapter) ParseJob(page *fetch.Page, t domain.CrawlTask) (domain.JobItem, error) {
	if a.panicParse[t.URL] {
		panic("boom")
	}
	if a.badParse[t.URL] {
		return domain.JobItem{}, errors.New("no title")
	}
	return domain.JobItem{JobTitle: t.Meta(domain.MetaTitle), ApplicationURL: t.URL}, nil
}

func TestRun_ConcurrencyBound(t *testing.T) {
	for _, n := range []int{1, 3, 8} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			f := &slowFetcher{delay: 5 * time.Millisecond}
			a := &fakeAdapter{n: 40, mode: domain.FetchRendered}

			res, err := New(f, nil, nil).Run(context.Background(), a, n)
			require.NoError(t, err)
			assert.Len(t, res.Items, 40)
			assert.Equal(t, 40, res.Discovered)
			assert.LessOrEqual(t, int(f.peak.Load()), n)
			assert.Equal(t, int32(40), f.calls.Load())
		})
	}
}

func TestRun_ParseAndFetchFailuresAreIsolated(t *testing.T) {
	f := &slowFetcher{fail: map[string]bool{"https://x/jobs/2": true}}
	a := &fakeAdapter{
		n:          10,
		badParse:   map[string]bool{"https://x/jobs/5": true},
		panicParse: map[string]bool{"https://x/jobs/7": true},
	}

	res, err := New(f, nil, nil).Run(context.Background(), a, 4)
	require.NoError(t, err)
	assert.Len(t, res.Items, 7)
	require.Len(t, res.TaskErrors, 3)

	parseErrs := 0
	for _, te := range res.TaskErrors {
		if errors.Is(te, domain.ErrParse) {
			parseErrs++
		}
	}
	assert.Equal(t, 2, parseErrs)
}

func TestRun_InlineTasksSkipFetch(t *testing.T) {
	f := &slowFetcher{}
	res, err := New(f, nil, nil).Run(context.Background(), &fakeAdapter{n: 5, mode: domain.FetchInline}, 2)
	require.NoError(t, err)
	assert.Len(t, res.Items, 5)
	assert.Equal(t, int32(0), f.calls.Load())
}

func TestRun_DiscoveryFailureIsRunError(t *testing.T) {
	a := &fakeAdapter{discErr: fmt.Errorf("%w: 503", domain.ErrSiteUnavailable)}
	_, err := New(&slowFetcher{}, nil, nil).Run(context.Background(), a, 3)
	assert.True(t, errors.Is(err, domain.ErrSiteUnavailable))
}

func TestRun_DiscoveryLossesReported(t *testing.T) {
	a := &fakeAdapter{n: 2, lost: []domain.TaskError{{Department: "Sales", Err: domain.ErrPageLoadTimeout}}}
	res, err := New(&slowFetcher{}, nil, nil).Run(context.Background(), a, 1)
	require.NoError(t, err)
	require.Len(t, res.DiscoveryErrors, 1)
	assert.Equal(t, "Sales", res.DiscoveryErrors[0].Department)
	assert.Empty(t, res.TaskErrors)
}

func TestRun_CancellationStopsPromptly(t *testing.T) {
	f := &slowFetcher{delay: 50 * time.Millisecond}
	a := &fakeAdapter{n: 10000}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	start := time.Now()
	res, err := New(f, nil, nil).Run(ctx, a, 4)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
	assert.Less(t, int(a.emitted.Load()), 100, "discovery stops once cancelled")
	assert.LessOrEqual(t, int(f.calls.Load()), 8)
	assert.Empty(t, res.TaskErrors, "cancelled fetches are not reported as task errors")
}

type countingObserver struct {
	mu       sync.Mutex
	started  int
	finished int
	failed   int
}

func (o *countingObserver) TaskStarted(domain.FetchMode) {
	o.mu.Lock()
	o.started++
	o.mu.Unlock()
}

func (o *countingObserver) TaskFinished(_ domain.FetchMode, err error) {
	o.mu.Lock()
	o.finished++
	if err != nil {
		o.failed++
	}
	o.mu.Unlock()
}

func TestRun_ObserverSeesEveryTask(t *testing.T) {
	obs := &countingObserver{}
	f := &slowFetcher{fail: map[string]bool{"https://x/jobs/0": true}}
	_, err := New(f, obs, nil).Run(context.Background(), &fakeAdapter{n: 6}, 2)
	require.NoError(t, err)
	assert.Equal(t, 6, obs.started)
	assert.Equal(t, 6, obs.finished)
	assert.Equal(t, 1, obs.failed)
}

// boardAdapter emits detail tasks that only the board's token can fetch.
type boardAdapter struct {
	base   string
	header map[string]string
}

func (a *boardAdapter) Name() string { return "board" }

func (a *boardAdapter) Discover(_ context.Context, sink domain.TaskSink) error {
	for i := 0; i < 3; i++ {
		t := domain.CrawlTask{URL: fmt.Sprintf("%s/postings/p%d", a.base, i), Header: a.header}
		if err := sink.Emit(t); err != nil {
			return err
		}
	}
	return nil
}

func (a *boardAdapter) ParseJob(page *fetch.Page, _ domain.CrawlTask) (domain.JobItem, error) {
	return domain.JobItem{JobTitle: string(page.Body), ApplicationURL: page.URL}, nil
}

func TestRun_StaticTasksSendTheirHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-SmartToken") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()
	f := &fetch.Combined{Static: fetch.NewStatic(fetch.StaticOptions{})}

	res, err := New(f, nil, nil).Run(context.Background(), &boardAdapter{base: srv.URL, header: map[string]string{"X-SmartToken": "secret"}}, 2)
	require.NoError(t, err)
	assert.Empty(t, res.TaskErrors)
	assert.Len(t, res.Items, 3)

	res, err = New(f, nil, nil).Run(context.Background(), &boardAdapter{base: srv.URL}, 2)
	require.NoError(t, err)
	assert.Empty(t, res.Items)
	require.Len(t, res.TaskErrors, 3)
	var se *fetch.StatusError
	require.ErrorAs(t, res.TaskErrors[0], &se)
	assert.Equal(t, http.StatusUnauthorized, se.Status)
}
