package httpapi

import (
	"database/sql"
	"net/http"

	"jobvyne-crawler/internal/store"
)

type JobsHandler struct {
	DB     *sql.DB
	Runner Crawls
}

// List serves the catalog. Filters: employer (name), open, sort, limit.
func (h JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	employerID, ok := employerFilter(w, r, h.Runner.Registry())
	if !ok {
		return
	}
	opts := store.ListJobsOpts{
		EmployerID: employerID,
		Sort:       r.URL.Query().Get("sort"),
		Open:       queryBool(r, "open"),
		Limit:      queryInt(r, "limit"),
	}

	jobs, err := store.ListJobs(r.Context(), h.DB, opts)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []store.JobRow{}
	}
	WriteJSON(w, http.StatusOK, jobs)
}
