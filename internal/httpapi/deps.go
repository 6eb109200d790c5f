package httpapi

import (
	"context"
	"database/sql"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"jobvyne-crawler/internal/adapter"
	"jobvyne-crawler/internal/config"
	"jobvyne-crawler/internal/events"
	"jobvyne-crawler/internal/logger"
	"jobvyne-crawler/internal/runner"
	"jobvyne-crawler/internal/store"
)

// Crawls is the part of the runner the API drives.
type Crawls interface {
	Status() runner.Status
	Registry() *adapter.Registry
	RunByName(ctx context.Context, name string, dryRun bool) (runner.Report, error)
	RunAll(ctx context.Context, dryRun bool) []runner.Report
}

type RunLister interface {
	ListRuns(ctx context.Context, employerID int64, limit int) ([]store.RunRecord, error)
}

type Deps struct {
	DB *sql.DB

	Hub    *events.Hub
	Runner Crawls
	Runs   RunLister

	// BaseCtx outlives requests; crawls started over HTTP run under it.
	BaseCtx context.Context

	// Atomic stores
	CfgVal *atomic.Value // stores config.Config

	// Config persistence
	UserCfgPath string
	LoadCfg     func() (config.Config, error)

	// SetToken stores an ATS API token (secrets.SetAPIToken in production).
	SetToken func(key, token string) error

	Metrics prometheus.Gatherer
	Log     logger.Logger
}
