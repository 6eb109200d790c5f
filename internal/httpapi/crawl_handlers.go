package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"jobvyne-crawler/internal/logger"
	"jobvyne-crawler/internal/runner"
	"jobvyne-crawler/internal/store"
)

type CrawlHandler struct {
	Runner  Crawls
	Runs    RunLister
	BaseCtx context.Context
	Log     logger.Logger
}

func (h CrawlHandler) Status(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.Runner.Status())
}

// Run starts a crawl in the background: one employer with ?employer=, all of
// them otherwise. ?dry_run=1 crawls without touching the catalog.
func (h CrawlHandler) Run(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("employer"))
	dryRun := queryBool(r, "dry_run")

	if name != "" {
		if _, ok := h.Runner.Registry().Get(name); !ok {
			WriteError(w, r, http.StatusNotFound, codeUnknownEmployer, "unknown employer: "+name)
			return
		}
	} else if h.Runner.Status().Running {
		WriteError(w, r, http.StatusConflict, codeAlreadyRunning, "a crawl is already running")
		return
	}

	ctx := h.BaseCtx
	if ctx == nil {
		ctx = context.Background()
	}
	log := h.Log
	if log == nil {
		log = logger.NewNop()
	}
	reqID := RequestIDFrom(r.Context())

	go func() {
		if name == "" {
			h.Runner.RunAll(ctx, dryRun)
			return
		}
		// failures land in the run report, events and metrics
		if _, err := h.Runner.RunByName(ctx, name, dryRun); err != nil && !errors.Is(err, runner.ErrUnknownEmployer) {
			log.Error("crawl request failed", logger.String("request_id", reqID), logger.Error(err))
		}
	}()

	WriteJSON(w, http.StatusAccepted, map[string]any{"ok": true, "employer": name, "dry_run": dryRun})
}

func (h CrawlHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	employerID, ok := employerFilter(w, r, h.Runner.Registry())
	if !ok {
		return
	}

	runs, err := h.Runs.ListRuns(r.Context(), employerID, queryInt(r, "limit"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if runs == nil {
		runs = []store.RunRecord{}
	}
	WriteJSON(w, http.StatusOK, runs)
}

type employerView struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Family      string `json:"family"`
	Adapter     string `json:"adapter"`
	Concurrency int    `json:"concurrency"`
}

func (h CrawlHandler) Employers(w http.ResponseWriter, r *http.Request) {
	out := []employerView{}
	for _, e := range h.Runner.Registry().Entries() {
		out = append(out, employerView{
			ID:          e.Spec.ID,
			Name:        e.Spec.Name,
			Family:      e.Spec.Family,
			Adapter:     e.Adapter.Name(),
			Concurrency: e.Concurrency,
		})
	}
	WriteJSON(w, http.StatusOK, out)
}
