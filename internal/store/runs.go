package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RunRecord is the persisted report of one employer crawl.
type RunRecord struct {
	ID              string     `json:"id"`
	EmployerID      int64      `json:"employerId"`
	Employer        string     `json:"employer"`
	StartedAt       time.Time  `json:"startedAt"`
	FinishedAt      *time.Time `json:"finishedAt,omitempty"`
	Discovered      int        `json:"discovered"`
	Items           int        `json:"items"`
	TaskErrors      int        `json:"taskErrors"`
	DiscoveryErrors int        `json:"discoveryErrors"`
	Created         int        `json:"created"`
	Updated         int        `json:"updated"`
	Closed          int        `json:"closed"`
	SkipClose       bool       `json:"skipClose"`
	DryRun          bool       `json:"dryRun"`
	Error           string     `json:"error,omitempty"`
}

type RunStore struct {
	db *sql.DB
}

func NewRunStore(db *sql.DB) *RunStore { return &RunStore{db: db} }

func (s *RunStore) StartRun(ctx context.Context, r RunRecord) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO crawl_runs(id, employer_id, employer, started_at, dry_run)
VALUES(?,?,?,?,?);`,
		r.ID, r.EmployerID, r.Employer, r.StartedAt.UTC().Format(time.RFC3339Nano), boolInt(r.DryRun))
	if err != nil {
		return fmt.Errorf("start run %s: %w", r.ID, err)
	}
	return nil
}

func (s *RunStore) FinishRun(ctx context.Context, r RunRecord) error {
	finished := time.Now().UTC()
	if r.FinishedAt != nil {
		finished = r.FinishedAt.UTC()
	}
	_, err := s.db.ExecContext(ctx, `
UPDATE crawl_runs SET
  finished_at = ?, discovered = ?, items = ?, task_errors = ?, discovery_errors = ?,
  created = ?, updated = ?, closed = ?, skip_close = ?, error = ?
WHERE id = ?;`,
		finished.Format(time.RFC3339Nano), r.Discovered, r.Items, r.TaskErrors, r.DiscoveryErrors,
		r.Created, r.Updated, r.Closed, boolInt(r.SkipClose), r.Error, r.ID)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", r.ID, err)
	}
	return nil
}

// ListRuns returns the newest runs first. employerID 0 lists all employers.
func (s *RunStore) ListRuns(ctx context.Context, employerID int64, limit int) ([]RunRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	query := `
SELECT id, employer_id, employer, started_at, finished_at, discovered, items, task_errors,
       discovery_errors, created, updated, closed, skip_close, dry_run, error
FROM crawl_runs
%s
ORDER BY started_at DESC
LIMIT ?;`
	var rows *sql.Rows
	var err error
	if employerID != 0 {
		rows, err = s.db.QueryContext(ctx, fmt.Sprintf(query, "WHERE employer_id = ?"), employerID, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, fmt.Sprintf(query, ""), limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		var started string
		var finished sql.NullString
		var skip, dry int
		if err := rows.Scan(&r.ID, &r.EmployerID, &r.Employer, &started, &finished,
			&r.Discovered, &r.Items, &r.TaskErrors, &r.DiscoveryErrors,
			&r.Created, &r.Updated, &r.Closed, &skip, &dry, &r.Error); err != nil {
			return nil, err
		}
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		if finished.Valid {
			t, _ := time.Parse(time.RFC3339Nano, finished.String)
			r.FinishedAt = &t
		}
		r.SkipClose = skip != 0
		r.DryRun = dry != 0
		out = append(out, r)
	}
	return out, rows.Err()
}
