package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Migrate brings the catalog schema to the current user_version.
func Migrate(db *sql.DB) error {

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var v int
	if err := tx.QueryRow(`PRAGMA user_version;`).Scan(&v); err != nil {
		return err
	}

	if v >= 2 {
		return tx.Commit()
	}

	if v < 1 {
		// ---- Schema v1: catalog ----
		for _, stmt := range schemaV1 {
			if _, err := tx.Exec(stmt); err != nil {
				return fmt.Errorf("schema v1: %w", err)
			}
		}
	}

	// ---- Schema v2: run reports ----
	for _, stmt := range schemaV2 {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("schema v2: %w", err)
		}
	}
	// dev DBs created before the dry_run column existed
	if !columnExists(tx, "crawl_runs", "dry_run") {
		if _, err := tx.Exec(`ALTER TABLE crawl_runs ADD COLUMN dry_run INTEGER NOT NULL DEFAULT 0;`); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(`PRAGMA user_version = 2;`); err != nil {
		return err
	}

	return tx.Commit()
}

var schemaV1 = []string{`
CREATE TABLE IF NOT EXISTS departments (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL COLLATE NOCASE UNIQUE
);`, `
CREATE TABLE IF NOT EXISTS locations (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  key TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  remote INTEGER NOT NULL DEFAULT 0,
  created_at TEXT NOT NULL
);`, `
CREATE TABLE IF NOT EXISTS jobs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  employer_id INTEGER NOT NULL,
  ats_job_key TEXT NULL,
  job_title TEXT NOT NULL,
  job_description TEXT NOT NULL DEFAULT '',
  application_url TEXT NOT NULL DEFAULT '',
  employment_type TEXT NOT NULL DEFAULT '',
  department_id INTEGER NULL REFERENCES departments(id),
  open_date TEXT NOT NULL,
  close_date TEXT NULL,
  salary_floor REAL NULL,
  salary_ceiling REAL NULL,
  salary_currency TEXT NOT NULL DEFAULT '',
  salary_interval TEXT NOT NULL DEFAULT '',
  modified_at TEXT NOT NULL
);`, `
CREATE TABLE IF NOT EXISTS job_locations (
  job_id INTEGER NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
  location_id INTEGER NOT NULL REFERENCES locations(id),
  PRIMARY KEY (job_id, location_id)
);`, `
CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_employer_key
ON jobs(employer_id, ats_job_key)
WHERE ats_job_key IS NOT NULL;`, `
CREATE INDEX IF NOT EXISTS idx_jobs_employer_close
ON jobs(employer_id, close_date);`,
}

var schemaV2 = []string{`
CREATE TABLE IF NOT EXISTS crawl_runs (
  id TEXT PRIMARY KEY,
  employer_id INTEGER NOT NULL,
  employer TEXT NOT NULL,
  started_at TEXT NOT NULL,
  finished_at TEXT NULL,
  discovered INTEGER NOT NULL DEFAULT 0,
  items INTEGER NOT NULL DEFAULT 0,
  task_errors INTEGER NOT NULL DEFAULT 0,
  discovery_errors INTEGER NOT NULL DEFAULT 0,
  created INTEGER NOT NULL DEFAULT 0,
  updated INTEGER NOT NULL DEFAULT 0,
  closed INTEGER NOT NULL DEFAULT 0,
  skip_close INTEGER NOT NULL DEFAULT 0,
  dry_run INTEGER NOT NULL DEFAULT 0,
  error TEXT NOT NULL DEFAULT ''
);`, `
CREATE INDEX IF NOT EXISTS idx_crawl_runs_employer
ON crawl_runs(employer_id, started_at);`,
}

func columnExists(q interface {
	QueryRow(query string, args ...any) *sql.Row
}, table, col string) bool {
	query := fmt.Sprintf(`
SELECT 1
FROM pragma_table_info('%s')
WHERE name = ?
LIMIT 1;
`, table)

	var one int
	err := q.QueryRow(query, col).Scan(&one)
	return err == nil
}

type ListJobsOpts struct {
	EmployerID int64  // 0 = all employers
	Sort       string // modified | open_date | title
	Open       bool   // only jobs without a past close date
	Limit      int
}

// JobRow is the operator-facing view of one catalog entry.
type JobRow struct {
	ID             int64   `json:"id"`
	EmployerID     int64   `json:"employerId"`
	ATSJobKey      *string `json:"atsJobKey"`
	Title          string  `json:"title"`
	Department     string  `json:"department"`
	URL            string  `json:"url"`
	EmploymentType string  `json:"employmentType"`
	OpenDate       string  `json:"openDate"`
	CloseDate      *string `json:"closeDate"`
	Locations      string  `json:"locations"`
	ModifiedAt     string  `json:"modifiedAt"`
}

func ListJobs(ctx context.Context, db *sql.DB, opts ListJobsOpts) ([]JobRow, error) {
	if opts.Limit <= 0 || opts.Limit > 2000 {
		opts.Limit = 500
	}

	// whitelist sort columns (prevents SQL injection)
	orderBy := map[string]string{
		"modified":  "j.modified_at DESC",
		"open_date": "j.open_date DESC",
		"title":     "j.job_title ASC",
	}[opts.Sort]
	if orderBy == "" {
		orderBy = "j.modified_at DESC"
	}

	var where []string
	var args []any
	if opts.EmployerID != 0 {
		where = append(where, "j.employer_id = ?")
		args = append(args, opts.EmployerID)
	}
	if opts.Open {
		where = append(where, openPredicate)
		args = append(args, formatDate(now()))
	}
	clause := ""
	if len(where) > 0 {
		clause = "WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, opts.Limit)

	query := fmt.Sprintf(`
SELECT j.id, j.employer_id, j.ats_job_key, j.job_title, COALESCE(d.name, ''),
       j.application_url, j.employment_type, j.open_date, j.close_date,
       COALESCE((SELECT group_concat(l.name, '; ')
                 FROM job_locations jl JOIN locations l ON l.id = jl.location_id
                 WHERE jl.job_id = j.id), ''),
       j.modified_at
FROM jobs j
LEFT JOIN departments d ON d.id = j.department_id
%s
ORDER BY %s
LIMIT ?;
`, clause, orderBy)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []JobRow
	for rows.Next() {
		var r JobRow
		var key, closeDate sql.NullString
		if err := rows.Scan(
			&r.ID,
			&r.EmployerID,
			&key,
			&r.Title,
			&r.Department,
			&r.URL,
			&r.EmploymentType,
			&r.OpenDate,
			&closeDate,
			&r.Locations,
			&r.ModifiedAt,
		); err != nil {
			return nil, err
		}
		if key.Valid {
			r.ATSJobKey = &key.String
		}
		if closeDate.Valid {
			r.CloseDate = &closeDate.String
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
