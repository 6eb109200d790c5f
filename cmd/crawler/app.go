package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"jobvyne-crawler/internal/adapter"
	"jobvyne-crawler/internal/config"
	"jobvyne-crawler/internal/crawl"
	"jobvyne-crawler/internal/events"
	"jobvyne-crawler/internal/fetch"
	"jobvyne-crawler/internal/locations"
	"jobvyne-crawler/internal/logger"
	"jobvyne-crawler/internal/metrics"
	"jobvyne-crawler/internal/paginate"
	"jobvyne-crawler/internal/reconcile"
	"jobvyne-crawler/internal/runner"
	"jobvyne-crawler/internal/sanitize"
	"jobvyne-crawler/internal/scrape/util"
	"jobvyne-crawler/internal/secrets"
	"jobvyne-crawler/internal/store"
)

// app is everything a command needs, built once from the config.
type app struct {
	cfg         config.Config
	cfgVal      *atomic.Value
	userCfgPath string
	log         logger.Logger

	db       *store.DB
	runs     *store.RunStore
	rdb      *redis.Client
	browser  *fetch.LazyRendered
	registry *adapter.Registry
	hub      *events.Hub
	promReg  *prometheus.Registry
	runner   *runner.Runner
}

// loadConfig resolves the data dir, bootstraps config.yml and validates it.
func loadConfig(flags *rootFlags) (config.Config, string, config.Validation, error) {
	dataDir := flags.dataDir
	if dataDir == "" {
		dataDir = os.Getenv("JOBVYNE_DATA_DIR")
	}
	if dataDir == "" {
		dataDir = "."
	}

	cfgPath := flags.configPath
	if cfgPath == "" {
		p, err := config.EnsureUserConfig(dataDir, filepath.Join("config", "config.yml"))
		if err != nil {
			return config.Config{}, "", config.Validation{}, fmt.Errorf("config bootstrap failed: %w", err)
		}
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, cfgPath, config.Validation{}, fmt.Errorf("config load failed (%s): %w", cfgPath, err)
	}
	if flags.dataDir != "" {
		cfg.App.DataDir = flags.dataDir
	}
	if flags.logLevel != "" {
		cfg.App.LogLevel = flags.logLevel
	}

	cfg, res := config.NormalizeAndValidate(cfg)
	if !res.OK() {
		return cfg, cfgPath, res, errors.New("config validation failed:\n- " + strings.Join(res.Errors, "\n- "))
	}
	return cfg, cfgPath, res, nil
}

func newApp(ctx context.Context, flags *rootFlags) (*app, error) {
	cfg, cfgPath, res, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}

	log, err := logger.New(logger.Config{Level: cfg.App.LogLevel, Development: cfg.App.LogDevelopment})
	if err != nil {
		return nil, err
	}
	for _, w := range res.Warnings {
		log.Warn("config: " + w)
	}

	if err := os.MkdirAll(cfg.App.DataDir, 0o755); err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, cfgVal: &atomic.Value{}, userCfgPath: cfgPath, log: log}
	a.cfgVal.Store(cfg)

	a.db, err = store.OpenMigrated(cfg.DBPath())
	if err != nil {
		return nil, err
	}
	a.runs = store.NewRunStore(a.db.Pool)

	var locs locations.Source = locations.NewResolver(store.NewLocationStore(a.db.Pool), cfg.Locations.AutoCreate, log)
	if cfg.Locations.RedisURL != "" {
		a.rdb, err = locations.NewRedisClient(ctx, cfg.Locations.RedisURL)
		if err != nil {
			// the table alone still resolves everything
			log.Warn("location cache disabled", logger.Error(err))
		} else {
			locs = locations.NewRedisCache(a.rdb, locs, cfg.CacheTTL(), log)
		}
	}

	reconciler := reconcile.New(
		store.NewJobStore(a.db.Pool),
		locs,
		store.NewDepartmentStore(a.db.Pool),
		sanitize.New(),
		cfg.Crawl.BatchSize,
		log,
	)

	limiter := util.NewHostLimiter(cfg.Crawl.RatePerHost, cfg.Crawl.RateBurst)
	fetcher := &fetch.Combined{
		Static: fetch.NewStatic(fetch.StaticOptions{
			Timeout:   cfg.HTTPTimeout(),
			UserAgent: cfg.Browser.UserAgent,
			Limiter:   limiter,
		}),
	}

	deps := adapter.Deps{
		Fetcher:     fetcher,
		Limiter:     limiter,
		HTTPTimeout: cfg.HTTPTimeout(),
		Paginator: paginate.New(paginate.Options{
			MaxWait:  cfg.PageLoadWait(),
			Poll:     cfg.PollInterval(),
			MaxPages: cfg.Crawl.MaxPages,
			Logger:   log,
		}),
		StepWait:           cfg.StepWait(),
		Token:              secrets.APIToken,
		Logger:             log,
		DefaultConcurrency: cfg.Crawl.Concurrency,
	}
	if cfg.Browser.Enabled {
		a.browser = fetch.NewLazyRendered(fetch.RenderedOptions{
			Headless:   cfg.Browser.Headless,
			UserAgent:  cfg.Browser.UserAgent,
			Slots:      int64(cfg.Browser.PageSlots),
			NavTimeout: cfg.NavTimeout(),
			ReadyWait:  cfg.PageLoadWait(),
		})
		fetcher.Browser = a.browser
		deps.Tabs = a.browser
	}

	specs, err := config.LoadEmployers(cfg.EmployersPath())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("employers %s: %w", cfg.EmployersPath(), err)
	}
	if len(specs) == 0 {
		log.Warn("no employers configured", logger.String("path", cfg.EmployersPath()))
	}
	a.registry, err = adapter.NewRegistry(specs, deps)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.promReg = prometheus.NewRegistry()
	a.promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(a.promReg)

	a.hub = events.NewHub()
	a.runner = runner.New(
		a.registry,
		crawl.New(fetcher, m, log),
		reconciler,
		a.runs,
		a.hub,
		m,
		runner.Options{
			LockDir:        cfg.LockDir(),
			ErrorThreshold: cfg.Crawl.ErrorThreshold,
			CloseOnEmpty:   cfg.Crawl.CloseOnEmpty,
			RunTimeout:     cfg.RunTimeout(),
			Parallel:       cfg.Crawl.ParallelEmployers,
		},
		log,
	)

	log.Info("crawler ready",
		logger.String("db", cfg.DBPath()),
		logger.Int("employers", a.registry.Len()),
		logger.Bool("browser", cfg.Browser.Enabled),
		logger.Bool("location_cache", a.rdb != nil),
	)
	return a, nil
}

func (a *app) Close() {
	if a.browser != nil {
		a.browser.Close()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
	_ = a.log.Sync()
}
