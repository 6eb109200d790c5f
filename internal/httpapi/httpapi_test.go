package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobvyne-crawler/internal/adapter"
	"jobvyne-crawler/internal/config"
	"jobvyne-crawler/internal/domain"
	"jobvyne-crawler/internal/events"
	"jobvyne-crawler/internal/runner"
	"jobvyne-crawler/internal/store"
)

type fakeCrawls struct {
	reg     *adapter.Registry
	running bool

	mu     sync.Mutex
	byName []string
	all    int
	done   chan struct{}
}

func (f *fakeCrawls) Status() runner.Status {
	return runner.Status{Running: f.running, LastOkAt: "2026-01-02T00:00:00Z"}
}

func (f *fakeCrawls) Registry() *adapter.Registry { return f.reg }

func (f *fakeCrawls) RunByName(_ context.Context, name string, _ bool) (runner.Report, error) {
	f.mu.Lock()
	f.byName = append(f.byName, name)
	f.mu.Unlock()
	f.done <- struct{}{}
	return runner.Report{Employer: name}, nil
}

func (f *fakeCrawls) RunAll(context.Context, bool) []runner.Report {
	f.mu.Lock()
	f.all++
	f.mu.Unlock()
	f.done <- struct{}{}
	return nil
}

type fakeRuns struct {
	gotEmployer int64
	gotLimit    int
	err         error
}

func (f *fakeRuns) ListRuns(_ context.Context, employerID int64, limit int) ([]store.RunRecord, error) {
	f.gotEmployer, f.gotLimit = employerID, limit
	if f.err != nil {
		return nil, f.err
	}
	return []store.RunRecord{{ID: "r1", EmployerID: employerID, Created: 2}}, nil
}

type env struct {
	h      http.Handler
	crawls *fakeCrawls
	runs   *fakeRuns
	db     *store.DB
	cfgVal *atomic.Value
	hub    *events.Hub
	tokens map[string]string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	reg, err := adapter.NewRegistry([]adapter.Spec{
		{ID: 11, Name: "Acme", Family: adapter.FamilyFeed, URL: "https://acme.example/jobs.xml"},
		{ID: 12, Name: "Beta", Family: adapter.FamilyFeed, URL: "https://beta.example/jobs.xml"},
	}, adapter.Deps{})
	require.NoError(t, err)

	db, err := store.OpenMigrated(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfgPath := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, config.SaveAtomic(cfgPath, config.Default()))
	cfgVal := &atomic.Value{}
	cfgVal.Store(config.Default())

	reg2 := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "jobvyne_test_total", Help: "test"})
	reg2.MustRegister(c)
	c.Inc()

	e := &env{
		crawls: &fakeCrawls{reg: reg, done: make(chan struct{}, 4)},
		runs:   &fakeRuns{},
		db:     db,
		cfgVal: cfgVal,
		hub:    events.NewHub(),
		tokens: map[string]string{},
	}
	e.h = Handler(Deps{
		DB:          db.Pool,
		Hub:         e.hub,
		Runner:      e.crawls,
		Runs:        e.runs,
		BaseCtx:     context.Background(),
		CfgVal:      cfgVal,
		UserCfgPath: cfgPath,
		LoadCfg:     func() (config.Config, error) { return config.Load(cfgPath) },
		SetToken: func(key, token string) error {
			if key == "" {
				return errors.New("token key is empty")
			}
			e.tokens[key] = token
			return nil
		},
		Metrics: reg2,
	})
	return e
}

func (e *env) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)
	return rec
}

func (e *env) wait(t *testing.T) {
	t.Helper()
	select {
	case <-e.crawls.done:
	case <-time.After(2 * time.Second):
		t.Fatal("crawl was not started")
	}
}

func TestHealth(t *testing.T) {
	e := newEnv(t)
	rec := e.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestMethodNotAllowed(t *testing.T) {
	e := newEnv(t)
	rec := e.do(http.MethodGet, "/crawl/run", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))
	assert.Contains(t, rec.Body.String(), `"code":"method_not_allowed"`)
}

func TestCrawlRun_One(t *testing.T) {
	e := newEnv(t)
	rec := e.do(http.MethodPost, "/crawl/run?employer=acme&dry_run=true", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	e.wait(t)

	e.crawls.mu.Lock()
	defer e.crawls.mu.Unlock()
	assert.Equal(t, []string{"acme"}, e.crawls.byName)
	assert.Contains(t, rec.Body.String(), `"dry_run":true`)
}

func TestCrawlRun_All(t *testing.T) {
	e := newEnv(t)
	rec := e.do(http.MethodPost, "/crawl/run", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	e.wait(t)

	e.crawls.mu.Lock()
	defer e.crawls.mu.Unlock()
	assert.Equal(t, 1, e.crawls.all)
}

func TestCrawlRun_UnknownEmployer(t *testing.T) {
	e := newEnv(t)
	rec := e.do(http.MethodPost, "/crawl/run?employer=nobody", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unknown_employer", body.Error.Code)
	assert.NotEmpty(t, body.Error.RequestID)
}

func TestCrawlRun_AlreadyRunning(t *testing.T) {
	e := newEnv(t)
	e.crawls.running = true
	rec := e.do(http.MethodPost, "/crawl/run", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCrawlStatus(t *testing.T) {
	e := newEnv(t)
	rec := e.do(http.MethodGet, "/crawl/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"last_ok_at":"2026-01-02T00:00:00Z"`)
}

func TestListRuns(t *testing.T) {
	e := newEnv(t)
	rec := e.do(http.MethodGet, "/runs?employer=Beta&limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(12), e.runs.gotEmployer)
	assert.Equal(t, 5, e.runs.gotLimit)

	var runs []store.RunRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "r1", runs[0].ID)

	e.runs.err = errors.New("boom")
	rec = e.do(http.MethodGet, "/runs", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestEmployers(t *testing.T) {
	e := newEnv(t)
	rec := e.do(http.MethodGet, "/employers", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var out []employerView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 2)
	assert.Equal(t, "Acme", out[0].Name)
	assert.Equal(t, "feed", out[0].Adapter)
}

func TestJobs(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	key := "GH-1"
	_, err := store.NewJobStore(e.db.Pool).BulkCreate(ctx, []domain.Job{
		{EmployerID: 11, ATSJobKey: &key, JobTitle: "Engineer", OpenDate: time.Now().UTC()},
		{EmployerID: 12, ATSJobKey: &key, JobTitle: "Analyst", OpenDate: time.Now().UTC()},
	})
	require.NoError(t, err)

	rec := e.do(http.MethodGet, "/jobs?employer=acme&open=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []store.JobRow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "Engineer", rows[0].Title)

	rec = e.do(http.MethodGet, "/jobs", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	assert.Len(t, rows, 2)

	rec = e.do(http.MethodGet, "/jobs?employer=nobody", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConfig_PutValidates(t *testing.T) {
	e := newEnv(t)

	bad := config.Default()
	bad.Crawl.BatchSize = 0
	b, _ := json.Marshal(bad)
	rec := e.do(http.MethodPut, "/config", string(b))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var vr config.Validation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &vr))
	assert.Contains(t, strings.Join(vr.Errors, "\n"), "crawl.batch_size")

	good := config.Default()
	good.Crawl.BatchSize = 42
	b, _ = json.Marshal(good)
	rec = e.do(http.MethodPut, "/config", string(b))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 42, e.cfgVal.Load().(config.Config).Crawl.BatchSize)
	var saved configSaved
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &saved))
	assert.Equal(t, []string{"crawl"}, saved.RestartRequired)
	assert.Equal(t, 42, saved.Config.Crawl.BatchSize)

	rec = e.do(http.MethodPut, "/config", `{"Nope":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConfig_PutRejectsUnreadableEmployers(t *testing.T) {
	e := newEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "employers.yml"), []byte("employers: [: nope"), 0o644))

	cfg := config.Default()
	cfg.App.DataDir = dir
	b, _ := json.Marshal(cfg)
	rec := e.do(http.MethodPut, "/config", string(b))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var vr config.Validation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &vr))
	require.Len(t, vr.Errors, 1)
	assert.Contains(t, vr.Errors[0], "employers:")
	assert.Equal(t, ".", e.cfgVal.Load().(config.Config).App.DataDir, "rejected config is not applied")
}

func TestConfig_Validate(t *testing.T) {
	e := newEnv(t)
	rec := e.do(http.MethodGet, "/config/validate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"errors":null`)
}

func TestSetToken(t *testing.T) {
	e := newEnv(t)
	rec := e.do(http.MethodPost, "/api/secrets/token", `{"key":"workable:acme","token":"s3cret"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "s3cret", e.tokens["workable:acme"])

	rec = e.do(http.MethodPost, "/api/secrets/token", `{"key":"","token":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = e.do(http.MethodPost, "/api/secrets/token", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckpoint_LoopbackOnly(t *testing.T) {
	e := newEnv(t)
	rec := e.do(http.MethodPost, "/db/checkpoint", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	checkpoint := func() checkpointReport {
		t.Helper()
		req := httptest.NewRequest(http.MethodPost, "/db/checkpoint", nil)
		req.RemoteAddr = "127.0.0.1:5000"
		rec := httptest.NewRecorder()
		e.h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var rep checkpointReport
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
		return rep
	}

	rep := checkpoint()
	assert.Equal(t, "TRUNCATE", rep.Mode)
	assert.Zero(t, rep.OpenRuns)

	// a run that never finished, and a crawl in progress
	runs := store.NewRunStore(e.db.Pool)
	require.NoError(t, runs.StartRun(context.Background(), store.RunRecord{ID: "r-open", EmployerID: 11, Employer: "Acme", StartedAt: time.Now()}))
	e.crawls.running = true

	rep = checkpoint()
	assert.Equal(t, "PASSIVE", rep.Mode)
	assert.True(t, rep.CrawlRunning)
	assert.Equal(t, 1, rep.OpenRuns)
}

func TestStoreError_TimeoutIs503(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	rec := httptest.NewRecorder()
	writeStoreError(rec, req, fmt.Errorf("query: %w", context.DeadlineExceeded))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"timeout"`)

	rec = httptest.NewRecorder()
	writeStoreError(rec, req, errors.New("no such table"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMetrics(t *testing.T) {
	e := newEnv(t)
	rec := e.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "jobvyne_test_total 1")
}

func TestEvents_StreamsThroughMiddleware(t *testing.T) {
	e := newEnv(t)
	srv := httptest.NewServer(e.h)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := bufio.NewReader(resp.Body)
	readData := func() events.Event {
		t.Helper()
		for {
			line, err := r.ReadString('\n')
			require.NoError(t, err)
			if strings.HasPrefix(line, "data: ") {
				var ev events.Event
				require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
				return ev
			}
		}
	}

	assert.Equal(t, events.TypePing, readData().Type)

	require.Eventually(t, func() bool { return e.hub.Subscribers() == 1 }, time.Second, 10*time.Millisecond)
	e.hub.PublishEvent(events.TypeRunFinished, events.Run{RunID: "r9", Employer: "Acme"})
	ev := readData()
	assert.Equal(t, events.TypeRunFinished, ev.Type)
	assert.Contains(t, string(ev.Data), `"run_id":"r9"`)
}

func TestForEmployer(t *testing.T) {
	acme := events.Encode(events.TypeRunFinished, "", events.Run{RunID: "r1", Employer: "Acme"})
	cycle := events.Encode(events.TypeCycleDone, "", map[string]int{"employers": 2})

	assert.True(t, forEmployer(acme, "acme"))
	assert.False(t, forEmployer(acme, "Beta"))
	assert.True(t, forEmployer(cycle, "Beta"), "cycle events reach every filter")
	assert.True(t, forEmployer(events.Encode(events.TypePing, "", nil), "Beta"))
}

func TestEvents_EmployerFilterAndKeepAlive(t *testing.T) {
	hub := events.NewHub()
	srv := httptest.NewServer(http.HandlerFunc(EventsHandler{Hub: hub, KeepAlive: 20 * time.Millisecond}.ServeSSE))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?employer=Beta", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	hub.PublishEvent(events.TypeRunFinished, events.Run{RunID: "a1", Employer: "Acme"})
	hub.PublishEvent(events.TypeRunFinished, events.Run{RunID: "b1", Employer: "Beta"})

	r := bufio.NewReader(resp.Body)
	var pings int
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev events.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		if ev.Type == events.TypePing {
			pings++
			continue
		}
		assert.NotContains(t, string(ev.Data), `"a1"`)
		assert.Contains(t, string(ev.Data), `"b1"`)
		break
	}
	assert.GreaterOrEqual(t, pings, 1)
}
