package httpapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"jobvyne-crawler/internal/logger"
)

// NewMux returns the raw mux so main() can still attach /shutdown (needs srv+token).
func NewMux(d Deps) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: HealthHandler{DB: d.DB}.Health,
	}))

	// Crawls
	ch := CrawlHandler{Runner: d.Runner, Runs: d.Runs, BaseCtx: d.BaseCtx, Log: d.Log}
	mux.HandleFunc("/crawl/status", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ch.Status,
	}))
	mux.HandleFunc("/crawl/run", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: ch.Run,
	}))
	mux.HandleFunc("/runs", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ch.ListRuns,
	}))
	mux.HandleFunc("/employers", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ch.Employers,
	}))

	// Catalog
	jh := JobsHandler{DB: d.DB, Runner: d.Runner}
	mux.HandleFunc("/jobs", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: jh.List,
	}))

	// Config
	cfh := ConfigHandler{
		CfgVal:      d.CfgVal,
		UserCfgPath: d.UserCfgPath,
		LoadCfg:     d.LoadCfg,
	}
	mux.HandleFunc("/config", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: cfh.Get,
		http.MethodPut: cfh.Put,
	}))
	mux.HandleFunc("/config/path", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: cfh.Path,
	}))
	mux.HandleFunc("/config/validate", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: cfh.Validate,
	}))

	sh := SecretsHandler{SetToken: d.SetToken}
	mux.HandleFunc("/api/secrets/token", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: sh.SetAPIToken,
	}))

	dbh := DBHandler{DB: d.DB, Runner: d.Runner}
	mux.HandleFunc("/db/checkpoint", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: dbh.Checkpoint,
	}))

	// SSE events
	eh := EventsHandler{Hub: d.Hub}
	mux.HandleFunc("/events", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: eh.ServeSSE,
	}))

	if d.Metrics != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(d.Metrics, promhttp.HandlerOpts{}))
	}

	return mux
}

// Handler is NewMux behind the standard middleware chain.
func Handler(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = logger.NewNop()
	}
	log = logger.Component(log, "http")
	return Chain(NewMux(d), RequestID, Recover(log), AccessLog(log), Cors)
}
