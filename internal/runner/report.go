package runner

import (
	"time"

	"jobvyne-crawler/internal/domain"
	"jobvyne-crawler/internal/reconcile"
)

// Run outcomes, used as the status label in metrics and reports.
const (
	StatusOK        = "ok"
	StatusFailed    = "failed"
	StatusSkipClose = "skip_close"
	StatusDryRun    = "dry_run"
	StatusBusy      = "busy"
)

// Report is the operator-facing result of one employer run.
type Report struct {
	RunID      string
	EmployerID int64
	Employer   string
	Family     string
	StartedAt  time.Time
	FinishedAt time.Time

	Discovered      int
	Items           int
	TaskErrors      []domain.TaskError
	DiscoveryErrors []domain.TaskError

	Summary   reconcile.Summary
	SkipClose bool
	DryRun    bool
	// Err is set when the run failed as a whole (site unavailable, store
	// failure, lock held). Closures suppressed by the error threshold are not
	// a failure; see SkipClose.
	Err error
}

// Errors returns the structured per-task and per-department error list.
func (r Report) Errors() []domain.TaskError {
	out := make([]domain.TaskError, 0, len(r.DiscoveryErrors)+len(r.TaskErrors))
	out = append(out, r.DiscoveryErrors...)
	return append(out, r.TaskErrors...)
}

func (r Report) Status() string {
	switch {
	case r.Err != nil && isBusy(r.Err):
		return StatusBusy
	case r.Err != nil:
		return StatusFailed
	case r.DryRun:
		return StatusDryRun
	case r.SkipClose:
		return StatusSkipClose
	default:
		return StatusOK
	}
}

func (r Report) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }
