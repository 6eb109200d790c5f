package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		Port           int    `yaml:"port"`
		DataDir        string `yaml:"data_dir"`
		DBFile         string `yaml:"db_file"`
		LogLevel       string `yaml:"log_level"`
		LogDevelopment bool   `yaml:"log_development"`
	} `yaml:"app"`

	Crawl struct {
		// Concurrency is the worker pool size per adapter family.
		Concurrency         map[string]int `yaml:"concurrency"`
		PageLoadWaitSeconds int            `yaml:"page_load_wait_seconds"`
		PollIntervalMillis  int            `yaml:"poll_interval_ms"`
		StepWaitSeconds     int            `yaml:"step_wait_seconds"`
		MaxPages            int            `yaml:"max_pages"`
		HTTPTimeoutSeconds  int            `yaml:"http_timeout_seconds"`
		RatePerHost         float64        `yaml:"rate_per_host"`
		RateBurst           int            `yaml:"rate_burst"`
		ErrorThreshold      float64        `yaml:"error_threshold"`
		BatchSize           int            `yaml:"batch_size"`
		CloseOnEmpty        bool           `yaml:"close_on_empty"`
		Schedule            string         `yaml:"schedule"`
		RunTimeoutMinutes   int            `yaml:"run_timeout_minutes"`
		ParallelEmployers   int            `yaml:"parallel_employers"`
	} `yaml:"crawl"`

	Browser struct {
		Enabled           bool   `yaml:"enabled"`
		Headless          bool   `yaml:"headless"`
		PageSlots         int    `yaml:"page_slots"`
		UserAgent         string `yaml:"user_agent"`
		NavTimeoutSeconds int    `yaml:"nav_timeout_seconds"`
	} `yaml:"browser"`

	Locations struct {
		AutoCreate    bool   `yaml:"auto_create"`
		RedisURL      string `yaml:"redis_url"`
		CacheTTLHours int    `yaml:"cache_ttl_hours"`
	} `yaml:"locations"`

	// Employers is the employer registry file, relative to the data dir
	// unless absolute.
	Employers string `yaml:"employers"`
}

// Default is the configuration used for anything a file leaves unset.
func Default() Config {
	var c Config
	c.App.Port = 38471
	c.App.DataDir = "."
	c.App.DBFile = "catalog.db"
	c.App.LogLevel = "info"

	c.Crawl.Concurrency = map[string]int{"static": 8, "api": 16, "feed": 4, "spa": 10}
	c.Crawl.PageLoadWaitSeconds = 5
	c.Crawl.PollIntervalMillis = 1000
	c.Crawl.StepWaitSeconds = 10
	c.Crawl.MaxPages = 500
	c.Crawl.HTTPTimeoutSeconds = 20
	c.Crawl.RatePerHost = 2
	c.Crawl.RateBurst = 4
	c.Crawl.ErrorThreshold = 0.10
	c.Crawl.BatchSize = 100
	c.Crawl.Schedule = "@every 6h"
	c.Crawl.RunTimeoutMinutes = 60
	c.Crawl.ParallelEmployers = 2

	c.Browser.Enabled = true
	c.Browser.Headless = true
	c.Browser.PageSlots = 12
	c.Browser.NavTimeoutSeconds = 30

	c.Locations.AutoCreate = true
	c.Locations.CacheTTLHours = 168

	c.Employers = "employers.yml"
	return c
}

// Load reads path over Default and applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	applyEnv(&cfg)
	return cfg, nil
}

// applyEnv lets deployments override the few settings that differ per host.
func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("JOBVYNE_DATA_DIR")); v != "" {
		cfg.App.DataDir = v
	}
	if v := strings.TrimSpace(os.Getenv("JOBVYNE_LOG_LEVEL")); v != "" {
		cfg.App.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv("JOBVYNE_PORT")); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.App.Port = p
		}
	}
	if v := strings.TrimSpace(os.Getenv("JOBVYNE_REDIS_URL")); v != "" {
		cfg.Locations.RedisURL = v
	}
}

func (c Config) path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.App.DataDir, p)
}

func (c Config) DBPath() string        { return c.path(c.App.DBFile) }
func (c Config) EmployersPath() string { return c.path(c.Employers) }
func (c Config) LockDir() string       { return filepath.Join(c.App.DataDir, "locks") }

func (c Config) PageLoadWait() time.Duration {
	return time.Duration(c.Crawl.PageLoadWaitSeconds) * time.Second
}

func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Crawl.PollIntervalMillis) * time.Millisecond
}

func (c Config) StepWait() time.Duration {
	return time.Duration(c.Crawl.StepWaitSeconds) * time.Second
}

func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.Crawl.HTTPTimeoutSeconds) * time.Second
}

func (c Config) RunTimeout() time.Duration {
	return time.Duration(c.Crawl.RunTimeoutMinutes) * time.Minute
}

func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Browser.NavTimeoutSeconds) * time.Second
}

func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Locations.CacheTTLHours) * time.Hour
}
