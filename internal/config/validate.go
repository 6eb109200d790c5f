package config

import (
	"fmt"
	"strings"
)

type Validation struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (v *Validation) addErr(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}
func (v *Validation) addWarn(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}
func (v Validation) OK() bool { return len(v.Errors) == 0 }

var families = []string{"static", "api", "feed", "spa"}

// NormalizeAndValidate returns a normalized copy of cfg and what is wrong with it.
func NormalizeAndValidate(cfg Config) (Config, Validation) {
	var out = cfg
	var res Validation

	out.App.LogLevel = strings.ToLower(strings.TrimSpace(out.App.LogLevel))
	out.Crawl.Schedule = strings.TrimSpace(out.Crawl.Schedule)
	out.Locations.RedisURL = strings.TrimSpace(out.Locations.RedisURL)

	conc := map[string]int{}
	for k, v := range out.Crawl.Concurrency {
		conc[strings.ToLower(strings.TrimSpace(k))] = v
	}
	out.Crawl.Concurrency = conc

	// ---- app ----
	if out.App.Port <= 0 || out.App.Port > 65535 {
		res.addErr("app.port must be 1..65535")
	}
	if strings.TrimSpace(out.App.DataDir) == "" {
		res.addErr("app.data_dir is required")
	}
	switch out.App.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		res.addErr("app.log_level must be one of debug, info, warn, error (got %q)", out.App.LogLevel)
	}

	// ---- crawl ----
	for k, v := range out.Crawl.Concurrency {
		if !knownFamily(k) {
			res.addWarn("crawl.concurrency.%s is not an adapter family and is ignored", k)
			continue
		}
		if v < 1 {
			res.addErr("crawl.concurrency.%s must be >= 1", k)
		} else if v > 64 {
			res.addWarn("crawl.concurrency.%s is very high (%d) and may get the crawler blocked.", k, v)
		}
	}
	if out.Crawl.PageLoadWaitSeconds <= 0 {
		res.addErr("crawl.page_load_wait_seconds must be > 0")
	}
	if out.Crawl.PollIntervalMillis <= 0 {
		res.addErr("crawl.poll_interval_ms must be > 0")
	}
	if out.Crawl.StepWaitSeconds <= 0 {
		res.addErr("crawl.step_wait_seconds must be > 0")
	}
	if out.Crawl.MaxPages <= 0 {
		res.addErr("crawl.max_pages must be > 0")
	}
	if out.Crawl.HTTPTimeoutSeconds <= 0 {
		res.addErr("crawl.http_timeout_seconds must be > 0")
	}
	if out.Crawl.RatePerHost < 0 {
		res.addErr("crawl.rate_per_host must be >= 0")
	} else if out.Crawl.RatePerHost == 0 {
		res.addWarn("crawl.rate_per_host is 0; requests per host are not rate limited.")
	}
	if out.Crawl.RatePerHost > 0 && out.Crawl.RateBurst < 1 {
		res.addErr("crawl.rate_burst must be >= 1 when rate_per_host is set")
	}
	if out.Crawl.ErrorThreshold < 0 || out.Crawl.ErrorThreshold > 1 {
		res.addErr("crawl.error_threshold must be 0..1")
	} else if out.Crawl.ErrorThreshold == 0 {
		res.addWarn("crawl.error_threshold is 0; the built-in 0.10 applies.")
	}
	if out.Crawl.BatchSize < 1 {
		res.addErr("crawl.batch_size must be >= 1")
	}
	if out.Crawl.Schedule == "" {
		res.addErr("crawl.schedule is required")
	}
	if out.Crawl.RunTimeoutMinutes < 0 {
		res.addErr("crawl.run_timeout_minutes must be >= 0")
	}
	if out.Crawl.ParallelEmployers < 1 {
		res.addErr("crawl.parallel_employers must be >= 1")
	}
	if out.Crawl.CloseOnEmpty {
		res.addWarn("crawl.close_on_empty is true; an employer listing nothing will have every job closed.")
	}

	// ---- browser ----
	if out.Browser.Enabled {
		// one tab drives pagination while the rest load job pages
		if out.Browser.PageSlots < 2 {
			res.addErr("browser.page_slots must be >= 2 when browser.enabled=true")
		}
		if spa := out.Crawl.Concurrency["spa"]; spa > 0 && spa > out.Browser.PageSlots-1 {
			res.addWarn("crawl.concurrency.spa (%d) exceeds browser.page_slots-1 (%d); workers will wait for tabs.",
				spa, out.Browser.PageSlots-1)
		}
		if out.Browser.NavTimeoutSeconds <= 0 {
			res.addErr("browser.nav_timeout_seconds must be > 0")
		}
	}

	// ---- locations ----
	if out.Locations.RedisURL != "" && out.Locations.CacheTTLHours <= 0 {
		res.addErr("locations.cache_ttl_hours must be > 0 when locations.redis_url is set")
	}
	if !out.Locations.AutoCreate {
		res.addWarn("locations.auto_create is false; locations missing from the table will be dropped.")
	}

	if strings.TrimSpace(out.Employers) == "" {
		res.addErr("employers is required")
	}

	return out, res
}

func knownFamily(f string) bool {
	for _, k := range families {
		if k == f {
			return true
		}
	}
	return false
}
