package main

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"jobvyne-crawler/internal/config"
	"jobvyne-crawler/internal/httpapi"
	"jobvyne-crawler/internal/logger"
	"jobvyne-crawler/internal/scheduler"
	"jobvyne-crawler/internal/secrets"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var (
		runNow   bool
		noSched  bool
		bindHost string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the operator API and crawl on the configured schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			a, err := newApp(ctx, flags)
			if err != nil {
				return err
			}
			defer a.Close()
			return serve(ctx, cancel, a, bindHost, runNow, !noSched)
		},
	}
	cmd.Flags().BoolVar(&runNow, "run-now", false, "start a crawl cycle immediately")
	cmd.Flags().BoolVar(&noSched, "no-schedule", false, "serve the API without scheduled crawls")
	cmd.Flags().StringVar(&bindHost, "host", "127.0.0.1", "listen address")
	return cmd
}

func serve(ctx context.Context, cancel context.CancelFunc, a *app, host string, runNow, schedule bool) error {
	log := logger.Component(a.log, "serve")

	if schedule {
		sched, err := scheduler.New(a.cfg.Crawl.Schedule, "crawl-all", func(ctx context.Context) error {
			return cycleError(a.runner.RunAll(ctx, false))
		}, log)
		if err != nil {
			return err
		}
		if err := sched.Start(ctx, runNow); err != nil {
			return err
		}
		defer sched.Stop()
	}

	h := httpapi.NewMux(httpapi.Deps{
		DB:          a.db.Pool,
		Hub:         a.hub,
		Runner:      a.runner,
		Runs:        a.runs,
		BaseCtx:     ctx,
		CfgVal:      a.cfgVal,
		UserCfgPath: a.userCfgPath,
		LoadCfg:     func() (config.Config, error) { return config.Load(a.userCfgPath) },
		SetToken:    secrets.SetAPIToken,
		Metrics:     a.promReg,
		Log:         a.log,
	})

	token, err := writeShutdownToken(a.cfg.App.DataDir)
	if err != nil {
		return err
	}
	h.HandleFunc("/shutdown", shutdownHandler(token, cancel))

	addr := net.JoinHostPort(host, fmt.Sprint(a.cfg.App.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           httpapi.Chain(h, httpapi.RequestID, httpapi.Recover(log), httpapi.AccessLog(log), httpapi.Cors),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	log.Info("listening", logger.String("addr", "http://"+addr), logger.String("db", a.cfg.DBPath()))

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutCancel()
	log.Info("shutting down")
	return srv.Shutdown(shutCtx)
}

// writeShutdownToken stores a fresh token that local tooling presents to
// POST /shutdown.
func writeShutdownToken(dataDir string) (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	token := hex.EncodeToString(b)
	if err := os.WriteFile(filepath.Join(dataDir, "shutdown.token"), []byte(token), 0o600); err != nil {
		return "", err
	}
	return token, nil
}

func shutdownHandler(token string, shutdown context.CancelFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		// Local-only guard
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if host != "127.0.0.1" && host != "::1" && host != "localhost" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		got := r.Header.Get("X-Shutdown-Token")
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("shutting down\n"))
		shutdown()
	}
}
