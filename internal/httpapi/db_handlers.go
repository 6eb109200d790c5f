package httpapi

import (
	"database/sql"
	"net"
	"net/http"
)

type DBHandler struct {
	DB     *sql.DB
	Runner Crawls // optional; picks the checkpoint mode
}

type checkpointReport struct {
	Mode         string `json:"mode"`
	Busy         bool   `json:"busy"`
	LogFrames    int    `json:"log_frames"`
	Checkpointed int    `json:"checkpointed_frames"`
	CrawlRunning bool   `json:"crawl_running"`
	// OpenRuns are crawl_runs rows without a finish time. With no crawl
	// running they belong to a process that died mid-run.
	OpenRuns int `json:"open_runs"`
}

// Checkpoint folds the WAL back into the catalog file. Loopback only. While
// a crawl is reconciling the checkpoint is PASSIVE so it never stalls the
// writer; when idle it truncates the WAL.
func (h DBHandler) Checkpoint(w http.ResponseWriter, r *http.Request) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if host != "127.0.0.1" && host != "::1" && host != "localhost" {
		WriteError(w, r, http.StatusForbidden, codeForbidden, "checkpoint is only accepted from loopback")
		return
	}

	rep := checkpointReport{Mode: "TRUNCATE"}
	if h.Runner != nil && h.Runner.Status().Running {
		rep.CrawlRunning = true
		rep.Mode = "PASSIVE"
	}

	var busy int
	row := h.DB.QueryRowContext(r.Context(), `PRAGMA wal_checkpoint(`+rep.Mode+`);`)
	if err := row.Scan(&busy, &rep.LogFrames, &rep.Checkpointed); err != nil {
		writeStoreError(w, r, err)
		return
	}
	rep.Busy = busy != 0

	if err := h.DB.QueryRowContext(r.Context(),
		`SELECT COUNT(*) FROM crawl_runs WHERE finished_at IS NULL;`).Scan(&rep.OpenRuns); err != nil {
		writeStoreError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, rep)
}
