// Package runner crawls one or all registered employers and reconciles the
// results into the catalog, one report per employer.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"jobvyne-crawler/internal/adapter"
	"jobvyne-crawler/internal/crawl"
	"jobvyne-crawler/internal/domain"
	"jobvyne-crawler/internal/events"
	"jobvyne-crawler/internal/logger"
	"jobvyne-crawler/internal/reconcile"
	"jobvyne-crawler/internal/store"
)

var ErrUnknownEmployer = errors.New("unknown employer")

type Crawler interface {
	Run(ctx context.Context, a adapter.SiteAdapter, concurrency int) (crawl.Result, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, employerID int64, items []domain.JobItem, opts reconcile.Options) (reconcile.Summary, error)
}

type RunStore interface {
	StartRun(ctx context.Context, r store.RunRecord) error
	FinishRun(ctx context.Context, r store.RunRecord) error
}

type Publisher interface {
	PublishEvent(typ string, data any)
}

type Recorder interface {
	RunFinished(employer, family, status string, d time.Duration)
	Reconciled(employer string, created, updated, closed, unresolved int)
}

type Options struct {
	// LockDir holds the per-employer lock files.
	LockDir string
	// ErrorThreshold is the task-error fraction above which closures are
	// suppressed.
	ErrorThreshold float64
	// CloseOnEmpty allows closing the whole catalog when a run discovers
	// nothing without errors.
	CloseOnEmpty bool
	// RunTimeout bounds one employer run; 0 means none.
	RunTimeout time.Duration
	// Parallel is how many employers RunAll crawls at once.
	Parallel int
}

// Status is the live view served to operators.
type Status struct {
	Running     bool   `json:"running"`
	Active      int    `json:"active"`
	LastRunAt   string `json:"last_run_at"`
	LastOkAt    string `json:"last_ok_at"`
	LastError   string `json:"last_error"`
	LastCreated int    `json:"last_created"`
	LastUpdated int    `json:"last_updated"`
	LastClosed  int    `json:"last_closed"`
}

type Runner struct {
	registry   *adapter.Registry
	crawler    Crawler
	reconciler Reconciler
	runs       RunStore
	pub        Publisher
	rec        Recorder
	opts       Options
	log        logger.Logger

	active atomic.Int32
	status atomic.Value // Status
}

func New(reg *adapter.Registry, c Crawler, r Reconciler, runs RunStore, pub Publisher, rec Recorder, opts Options, log logger.Logger) *Runner {
	if opts.ErrorThreshold <= 0 {
		opts.ErrorThreshold = reconcile.DefaultErrorThreshold
	}
	if opts.Parallel <= 0 {
		opts.Parallel = 2
	}
	if log == nil {
		log = logger.NewNop()
	}
	rn := &Runner{
		registry:   reg,
		crawler:    c,
		reconciler: r,
		runs:       runs,
		pub:        pub,
		rec:        rec,
		opts:       opts,
		log:        logger.Component(log, "runner"),
	}
	rn.status.Store(Status{})
	return rn
}

func (rn *Runner) Status() Status {
	st := rn.status.Load().(Status)
	st.Active = int(rn.active.Load())
	st.Running = st.Active > 0
	return st
}

func (rn *Runner) Registry() *adapter.Registry { return rn.registry }

// RunByName crawls one employer. The error is only for lookup failures; run
// failures are in the report.
func (rn *Runner) RunByName(ctx context.Context, name string, dryRun bool) (Report, error) {
	e, ok := rn.registry.Get(name)
	if !ok {
		return Report{}, fmt.Errorf("%w: %q", ErrUnknownEmployer, name)
	}
	return rn.RunEmployer(ctx, e, dryRun), nil
}

// RunAll crawls every registered employer, opts.Parallel at a time. One
// employer's failure never stops the others.
func (rn *Runner) RunAll(ctx context.Context, dryRun bool) []Report {
	entries := rn.registry.Entries()
	reports := make([]Report, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rn.opts.Parallel)
	for i, e := range entries {
		g.Go(func() error {
			reports[i] = rn.RunEmployer(gctx, e, dryRun)
			return nil
		})
	}
	_ = g.Wait()

	if rn.pub != nil {
		failed := 0
		for _, r := range reports {
			if r.Err != nil {
				failed++
			}
		}
		rn.pub.PublishEvent(events.TypeCycleDone, map[string]int{"employers": len(reports), "failed": failed})
	}
	return reports
}

// RunEmployer runs crawl then reconcile for one employer under its lock.
func (rn *Runner) RunEmployer(ctx context.Context, e adapter.Entry, dryRun bool) Report {
	rep := Report{
		RunID:      uuid.NewString(),
		EmployerID: e.Spec.ID,
		Employer:   e.Spec.Name,
		Family:     e.Spec.Family,
		StartedAt:  time.Now().UTC(),
		DryRun:     dryRun,
	}
	log := rn.log.With(
		logger.String("run_id", rep.RunID),
		logger.String("employer", rep.Employer),
		logger.String("adapter", e.Adapter.Name()),
	)

	rn.active.Add(1)
	defer rn.active.Add(-1)

	if rn.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rn.opts.RunTimeout)
		defer cancel()
	}

	unlock, err := employerLock(rn.opts.LockDir, e.Spec.ID)
	if err != nil {
		rep.Err = err
		rep.FinishedAt = time.Now().UTC()
		log.Warn("run skipped", logger.Error(err))
		rn.finish(ctx, rep, log)
		return rep
	}
	defer unlock()

	rn.publish(events.TypeRunStarted, rep)
	if rn.runs != nil && !dryRun {
		if err := rn.runs.StartRun(ctx, rn.record(rep)); err != nil {
			log.Warn("run record not stored", logger.Error(err))
		}
	}
	log.Info("run started", logger.Int("concurrency", e.Concurrency), logger.Bool("dry_run", dryRun))

	rep = rn.crawlAndReconcile(ctx, e, rep, log)
	rep.FinishedAt = time.Now().UTC()
	rn.finish(ctx, rep, log)
	return rep
}

func (rn *Runner) crawlAndReconcile(ctx context.Context, e adapter.Entry, rep Report, log logger.Logger) Report {
	res, err := rn.crawler.Run(ctx, e.Adapter, e.Concurrency)
	rep.Discovered = res.Discovered
	rep.Items = len(res.Items)
	rep.TaskErrors = res.TaskErrors
	rep.DiscoveryErrors = res.DiscoveryErrors
	if err != nil {
		// site unavailable or cancelled: catalog untouched
		rep.Err = err
		return rep
	}

	rep.SkipClose = rn.skipClose(res, log)
	if rep.DryRun {
		return rep
	}

	sum, err := rn.reconciler.Reconcile(ctx, e.Spec.ID, res.Items, reconcile.Options{
		SkipClose: rep.SkipClose,
		AsOf:      rep.StartedAt,
	})
	rep.Summary = sum
	if err != nil {
		rep.Err = fmt.Errorf("reconcile: %w", err)
	}
	return rep
}

// skipClose applies the partial-failure safeguard: too many task errors,
// any lost department or page, or an empty crawl all keep closures off.
func (rn *Runner) skipClose(res crawl.Result, log logger.Logger) bool {
	switch {
	case reconcile.ShouldSkipClose(len(res.TaskErrors), res.Discovered, rn.opts.ErrorThreshold):
		log.Warn("closures suppressed: task error rate over threshold",
			logger.Int("task_errors", len(res.TaskErrors)),
			logger.Int("discovered", res.Discovered),
			logger.Float64("threshold", rn.opts.ErrorThreshold),
			logger.Error(domain.ErrReconciliationPartialFailure))
		return true
	case len(res.DiscoveryErrors) > 0:
		log.Warn("closures suppressed: discovery incomplete",
			logger.Int("discovery_errors", len(res.DiscoveryErrors)),
			logger.Error(domain.ErrReconciliationPartialFailure))
		return true
	case res.Discovered == 0 && !rn.opts.CloseOnEmpty:
		log.Warn("closures suppressed: nothing discovered")
		return true
	}
	return false
}

func (rn *Runner) finish(ctx context.Context, rep Report, log logger.Logger) {
	status := rep.Status()
	if rn.rec != nil {
		rn.rec.RunFinished(rep.Employer, rep.Family, status, rep.Duration())
		if !rep.DryRun && status != StatusBusy {
			s := rep.Summary
			rn.rec.Reconciled(rep.Employer, s.Created, s.Updated, s.Closed, s.Unresolved)
		}
	}
	if rn.runs != nil && !rep.DryRun && status != StatusBusy {
		// a cancelled run still gets its record closed
		if err := rn.runs.FinishRun(context.WithoutCancel(ctx), rn.record(rep)); err != nil {
			log.Warn("run record not updated", logger.Error(err))
		}
	}
	rn.updateStatus(rep)

	if status == StatusBusy {
		return
	}
	if rep.Err != nil {
		rn.publish(events.TypeRunFailed, rep)
		log.Error("run failed", logger.Error(rep.Err), logger.Duration("took", rep.Duration()))
		return
	}
	rn.publish(events.TypeRunFinished, rep)
	log.Info("run finished",
		logger.Int("discovered", rep.Discovered),
		logger.Int("items", rep.Items),
		logger.Int("created", rep.Summary.Created),
		logger.Int("updated", rep.Summary.Updated),
		logger.Int("closed", rep.Summary.Closed),
		logger.Int("errors", len(rep.Errors())),
		logger.Bool("skip_close", rep.SkipClose),
		logger.Duration("took", rep.Duration()),
	)
}

func (rn *Runner) updateStatus(rep Report) {
	st := rn.status.Load().(Status)
	st.LastRunAt = rep.FinishedAt.Format(time.RFC3339)
	if rep.Err != nil {
		st.LastError = rep.Employer + ": " + rep.Err.Error()
	} else {
		st.LastError = ""
		st.LastOkAt = st.LastRunAt
		st.LastCreated = rep.Summary.Created
		st.LastUpdated = rep.Summary.Updated
		st.LastClosed = rep.Summary.Closed
	}
	rn.status.Store(st)
}

func (rn *Runner) publish(typ string, rep Report) {
	if rn.pub == nil {
		return
	}
	ev := events.Run{
		RunID:    rep.RunID,
		Employer: rep.Employer,
		Created:  rep.Summary.Created,
		Updated:  rep.Summary.Updated,
		Closed:   rep.Summary.Closed,
		Errors:   len(rep.Errors()),
		DryRun:   rep.DryRun,
	}
	if rep.Err != nil {
		ev.Error = rep.Err.Error()
	}
	rn.pub.PublishEvent(typ, ev)
}

func (rn *Runner) record(rep Report) store.RunRecord {
	r := store.RunRecord{
		ID:              rep.RunID,
		EmployerID:      rep.EmployerID,
		Employer:        rep.Employer,
		StartedAt:       rep.StartedAt,
		Discovered:      rep.Discovered,
		Items:           rep.Items,
		TaskErrors:      len(rep.TaskErrors),
		DiscoveryErrors: len(rep.DiscoveryErrors),
		Created:         rep.Summary.Created,
		Updated:         rep.Summary.Updated,
		Closed:          rep.Summary.Closed,
		SkipClose:       rep.SkipClose,
		DryRun:          rep.DryRun,
	}
	if !rep.FinishedAt.IsZero() {
		f := rep.FinishedAt
		r.FinishedAt = &f
	}
	var msgs []string
	if rep.Err != nil {
		msgs = append(msgs, rep.Err.Error())
	}
	if rep.SkipClose {
		msgs = append(msgs, domain.ErrReconciliationPartialFailure.Error())
	}
	r.Error = strings.Join(msgs, "; ")
	return r
}
