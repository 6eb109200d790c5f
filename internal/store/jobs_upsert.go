package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"jobvyne-crawler/internal/domain"
)

var now = time.Now

// openPredicate matches jobs with no close date or one still in the future.
const openPredicate = "(j.close_date IS NULL OR j.close_date >= ?)"

// closeChunk bounds the IN list of one closure statement.
const closeChunk = 500

// JobStore is the sqlite job catalog.
type JobStore struct {
	db *sql.DB
}

func NewJobStore(db *sql.DB) *JobStore { return &JobStore{db: db} }

func (s *JobStore) GetOpenJobs(ctx context.Context, employerID int64) ([]domain.Job, error) {
	today := formatDate(now())
	rows, err := s.db.QueryContext(ctx, `
SELECT j.id, j.employer_id, j.ats_job_key, j.job_title, j.job_description, j.application_url,
       j.employment_type, j.department_id, j.open_date, j.close_date,
       j.salary_floor, j.salary_ceiling, j.salary_currency, j.salary_interval, j.modified_at
FROM jobs j
WHERE j.employer_id = ? AND `+openPredicate+`
ORDER BY j.id;`, employerID, today)
	if err != nil {
		return nil, fmt.Errorf("query open jobs: %w", err)
	}
	defer rows.Close()

	var out []domain.Job
	index := map[int64]int{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		index[j.ID] = len(out)
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	lrows, err := s.db.QueryContext(ctx, `
SELECT jl.job_id, jl.location_id
FROM job_locations jl
JOIN jobs j ON j.id = jl.job_id
WHERE j.employer_id = ? AND `+openPredicate+`
ORDER BY jl.job_id, jl.location_id;`, employerID, today)
	if err != nil {
		return nil, fmt.Errorf("query job locations: %w", err)
	}
	defer lrows.Close()
	for lrows.Next() {
		var jobID int64
		var locID domain.LocationID
		if err := lrows.Scan(&jobID, &locID); err != nil {
			return nil, err
		}
		if i, ok := index[jobID]; ok {
			out[i].LocationIDs = append(out[i].LocationIDs, locID)
		}
	}
	return out, lrows.Err()
}

func scanJob(rows *sql.Rows) (domain.Job, error) {
	var (
		j                  domain.Job
		key, closeDate     sql.NullString
		dept               sql.NullInt64
		floor, ceiling     sql.NullFloat64
		openDate, modified string
	)
	if err := rows.Scan(
		&j.ID, &j.EmployerID, &key, &j.JobTitle, &j.JobDescription, &j.ApplicationURL,
		&j.EmploymentType, &dept, &openDate, &closeDate,
		&floor, &ceiling, &j.Salary.Currency, &j.Salary.Interval, &modified,
	); err != nil {
		return j, err
	}
	if key.Valid {
		k := key.String
		j.ATSJobKey = &k
	}
	if dept.Valid {
		d := domain.DepartmentID(dept.Int64)
		j.DepartmentID = &d
	}
	od, err := parseDate(openDate)
	if err != nil {
		return j, fmt.Errorf("job %d open_date: %w", j.ID, err)
	}
	j.OpenDate = od
	if closeDate.Valid {
		cd, err := parseDate(closeDate.String)
		if err != nil {
			return j, fmt.Errorf("job %d close_date: %w", j.ID, err)
		}
		j.CloseDate = &cd
	}
	if floor.Valid {
		f := floor.Float64
		j.Salary.Floor = &f
	}
	if ceiling.Valid {
		c := ceiling.Float64
		j.Salary.Ceiling = &c
	}
	j.ModifiedAt, _ = time.Parse(time.RFC3339Nano, modified)
	return j, nil
}

// BulkCreate inserts jobs and their location sets in one transaction. A
// vendor key that already exists on a closed row reopens that row in place,
// so the job keeps its ID across a close/reappear cycle.
func (s *JobStore) BulkCreate(ctx context.Context, jobs []domain.Job) ([]domain.Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	ins, err := tx.PrepareContext(ctx, `
INSERT INTO jobs (employer_id, ats_job_key, job_title, job_description, application_url,
                  employment_type, department_id, open_date, close_date,
                  salary_floor, salary_ceiling, salary_currency, salary_interval, modified_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (employer_id, ats_job_key) WHERE ats_job_key IS NOT NULL DO UPDATE SET
  job_title = excluded.job_title,
  job_description = excluded.job_description,
  application_url = excluded.application_url,
  employment_type = excluded.employment_type,
  department_id = excluded.department_id,
  open_date = excluded.open_date,
  close_date = excluded.close_date,
  salary_floor = excluded.salary_floor,
  salary_ceiling = excluded.salary_ceiling,
  salary_currency = excluded.salary_currency,
  salary_interval = excluded.salary_interval,
  modified_at = excluded.modified_at
RETURNING id;`)
	if err != nil {
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	defer ins.Close()

	stamp := now().UTC()
	out := make([]domain.Job, 0, len(jobs))
	for _, j := range jobs {
		var dept any
		if j.DepartmentID != nil {
			dept = int64(*j.DepartmentID)
		}
		if err := ins.QueryRowContext(ctx,
			j.EmployerID, nullString(j.ATSJobKey), j.JobTitle, j.JobDescription, j.ApplicationURL,
			j.EmploymentType, dept, formatDate(j.OpenDate), nullDate(j.CloseDate),
			nullFloat(j.Salary.Floor), nullFloat(j.Salary.Ceiling), j.Salary.Currency, j.Salary.Interval,
			stamp.Format(time.RFC3339Nano),
		).Scan(&j.ID); err != nil {
			return nil, fmt.Errorf("insert job %q: %w", j.JobTitle, err)
		}
		j.LocationIDs = domain.SortedLocationIDs(j.LocationIDs)
		if err := replaceLocations(ctx, tx, j.ID, j.LocationIDs); err != nil {
			return nil, err
		}
		j.ModifiedAt = stamp
		out = append(out, j)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

// updateColumns maps reconciled fields onto columns (whitelist; field names
// never reach SQL directly).
var updateColumns = map[domain.JobField][]string{
	domain.FieldTitle:          {"job_title"},
	domain.FieldDescription:    {"job_description"},
	domain.FieldApplicationURL: {"application_url"},
	domain.FieldEmploymentType: {"employment_type"},
	domain.FieldDepartment:     {"department_id"},
	domain.FieldOpenDate:       {"open_date"},
	domain.FieldCloseDate:      {"close_date"},
	domain.FieldSalary:         {"salary_floor", "salary_ceiling", "salary_currency", "salary_interval"},
}

func columnValues(j domain.Job, f domain.JobField) []any {
	switch f {
	case domain.FieldTitle:
		return []any{j.JobTitle}
	case domain.FieldDescription:
		return []any{j.JobDescription}
	case domain.FieldApplicationURL:
		return []any{j.ApplicationURL}
	case domain.FieldEmploymentType:
		return []any{j.EmploymentType}
	case domain.FieldDepartment:
		if j.DepartmentID == nil {
			return []any{nil}
		}
		return []any{int64(*j.DepartmentID)}
	case domain.FieldOpenDate:
		return []any{formatDate(j.OpenDate)}
	case domain.FieldCloseDate:
		return []any{nullDate(j.CloseDate)}
	case domain.FieldSalary:
		return []any{nullFloat(j.Salary.Floor), nullFloat(j.Salary.Ceiling), j.Salary.Currency, j.Salary.Interval}
	}
	return nil
}

// BulkUpdate writes fields of every job in one transaction. modified_at is
// always touched; FieldLocations is ignored.
func (s *JobStore) BulkUpdate(ctx context.Context, jobs []domain.Job, fields []domain.JobField) error {
	if len(jobs) == 0 {
		return nil
	}
	var sets []string
	var used []domain.JobField
	for _, f := range fields {
		cols, ok := updateColumns[f]
		if !ok {
			if f == domain.FieldLocations {
				continue
			}
			return fmt.Errorf("update jobs: unknown field %q", f)
		}
		for _, c := range cols {
			sets = append(sets, c+" = ?")
		}
		used = append(used, f)
	}
	sets = append(sets, "modified_at = ?")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, "UPDATE jobs SET "+strings.Join(sets, ", ")+" WHERE id = ?;")
	if err != nil {
		return fmt.Errorf("prepare update: %w", err)
	}
	defer stmt.Close()

	stamp := now().UTC().Format(time.RFC3339Nano)
	for _, j := range jobs {
		var args []any
		for _, f := range used {
			args = append(args, columnValues(j, f)...)
		}
		args = append(args, stamp, j.ID)
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("update job %d: %w", j.ID, err)
		}
	}
	return tx.Commit()
}

// ReplaceLocations clears and rewrites a job's location set atomically.
func (s *JobStore) ReplaceLocations(ctx context.Context, jobID int64, ids []domain.LocationID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := replaceLocations(ctx, tx, jobID, ids); err != nil {
		return err
	}
	return tx.Commit()
}

func replaceLocations(ctx context.Context, tx *sql.Tx, jobID int64, ids []domain.LocationID) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM job_locations WHERE job_id = ?;`, jobID); err != nil {
		return fmt.Errorf("clear locations of job %d: %w", jobID, err)
	}
	for _, id := range domain.SortedLocationIDs(ids) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO job_locations (job_id, location_id) VALUES (?, ?);`, jobID, int64(id)); err != nil {
			return fmt.Errorf("insert location %d of job %d: %w", id, jobID, err)
		}
	}
	return nil
}

// BulkCloseNotIn soft-closes every open job of the employer whose key is not
// in seenKeys. Synthetic keys ("JOBVYNE-{id}") are matched by ID, vendor
// keys by ats_job_key.
func (s *JobStore) BulkCloseNotIn(ctx context.Context, employerID int64, seenKeys []string, asOf time.Time) (int, error) {
	seenIDs := map[int64]bool{}
	seenVendor := map[string]bool{}
	for _, k := range seenKeys {
		if rest, ok := strings.CutPrefix(k, domain.SyntheticKeyPrefix); ok {
			if id, err := strconv.ParseInt(rest, 10, 64); err == nil {
				seenIDs[id] = true
				continue
			}
		}
		seenVendor[k] = true
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
SELECT j.id, j.ats_job_key FROM jobs j
WHERE j.employer_id = ? AND `+openPredicate+`;`, employerID, formatDate(now()))
	if err != nil {
		return 0, fmt.Errorf("query open jobs: %w", err)
	}
	var unseen []any
	for rows.Next() {
		var id int64
		var key sql.NullString
		if err := rows.Scan(&id, &key); err != nil {
			rows.Close()
			return 0, err
		}
		if key.Valid && seenVendor[key.String] || !key.Valid && seenIDs[id] {
			continue
		}
		unseen = append(unseen, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	stamp := now().UTC().Format(time.RFC3339Nano)
	closed := 0
	for start := 0; start < len(unseen); start += closeChunk {
		chunk := unseen[start:min(start+closeChunk, len(unseen))]
		marks := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		args := append([]any{formatDate(asOf), stamp}, chunk...)
		res, err := tx.ExecContext(ctx,
			`UPDATE jobs SET close_date = ?, modified_at = ? WHERE id IN (`+marks+`);`, args...)
		if err != nil {
			return 0, fmt.Errorf("close jobs: %w", err)
		}
		n, _ := res.RowsAffected()
		closed += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return closed, nil
}
