package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobvyne-crawler/internal/domain"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenMigrated(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func strPtr(s string) *string { return &s }

func day(s string) time.Time {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestMigrate_Idempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, Migrate(db.Pool))

	var v int
	require.NoError(t, db.Pool.QueryRow(`PRAGMA user_version;`).Scan(&v))
	assert.Equal(t, 2, v)
	assert.True(t, columnExists(db.Pool, "jobs", "ats_job_key"))
}

func TestJobStore_RoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	jobs := NewJobStore(db.Pool)
	locs := NewLocationStore(db.Pool)
	depts := NewDepartmentStore(db.Pool)

	austin, err := locs.UpsertLocation(ctx, "Austin, TX", false)
	require.NoError(t, err)
	remote, err := locs.UpsertLocation(ctx, "Remote", true)
	require.NoError(t, err)
	eng, err := depts.GetOrCreate(ctx, "Engineering")
	require.NoError(t, err)

	floor := 100000.0
	created, err := jobs.BulkCreate(ctx, []domain.Job{
		{
			EmployerID: 1, ATSJobKey: strPtr("GH-1"), JobTitle: "Engineer",
			JobDescription: "<p>x</p>", ApplicationURL: "https://x/1", DepartmentID: &eng,
			OpenDate: day("2024-05-01"), Salary: domain.Salary{Floor: &floor, Currency: "USD", Interval: "year"},
			LocationIDs: []domain.LocationID{remote, austin},
		},
		{EmployerID: 1, JobTitle: "Cashier", OpenDate: day("2024-05-02")},
		{EmployerID: 2, ATSJobKey: strPtr("GH-1"), JobTitle: "Other employer", OpenDate: day("2024-05-02")},
	})
	require.NoError(t, err)
	require.Len(t, created, 3)
	assert.NotZero(t, created[0].ID)
	assert.NotEqual(t, created[0].ID, created[1].ID)

	open, err := jobs.GetOpenJobs(ctx, 1)
	require.NoError(t, err)
	require.Len(t, open, 2)

	gh1 := open[0]
	require.NotNil(t, gh1.ATSJobKey)
	assert.Equal(t, "GH-1", gh1.Key())
	assert.Equal(t, []domain.LocationID{austin, remote}, domain.SortedLocationIDs(gh1.LocationIDs))
	assert.Equal(t, eng, *gh1.DepartmentID)
	assert.Equal(t, floor, *gh1.Salary.Floor)
	assert.Nil(t, gh1.Salary.Ceiling)
	assert.Equal(t, day("2024-05-01"), gh1.OpenDate)

	assert.Nil(t, open[1].ATSJobKey, "synthetic jobs keep a NULL key")
	assert.Equal(t, domain.SyntheticKey(open[1].ID), open[1].Key())
}

func TestJobStore_UpdateReplaceClose(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	jobs := NewJobStore(db.Pool)
	locs := NewLocationStore(db.Pool)
	denver, err := locs.UpsertLocation(ctx, "Denver, CO", false)
	require.NoError(t, err)

	created, err := jobs.BulkCreate(ctx, []domain.Job{
		{EmployerID: 1, ATSJobKey: strPtr("A"), JobTitle: "a", OpenDate: day("2024-01-01")},
		{EmployerID: 1, ATSJobKey: strPtr("B"), JobTitle: "b", OpenDate: day("2024-01-01")},
		{EmployerID: 1, JobTitle: "c", OpenDate: day("2024-01-01")},
	})
	require.NoError(t, err)

	a := created[0]
	a.JobTitle = "a2"
	a.EmploymentType = "ignored because not listed"
	require.NoError(t, jobs.BulkUpdate(ctx, []domain.Job{a}, []domain.JobField{domain.FieldTitle, domain.FieldLocations}))
	require.NoError(t, jobs.ReplaceLocations(ctx, a.ID, []domain.LocationID{denver}))

	synthetic := created[2].Key()
	n, err := jobs.BulkCloseNotIn(ctx, 1, []string{"A", synthetic}, day("2024-06-01"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	open, err := jobs.GetOpenJobs(ctx, 1)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "a2", open[0].JobTitle)
	assert.Empty(t, open[0].EmploymentType)
	assert.Equal(t, []domain.LocationID{denver}, open[0].LocationIDs)

	// B reappears: same row, reopened
	again, err := jobs.BulkCreate(ctx, []domain.Job{{EmployerID: 1, ATSJobKey: strPtr("B"), JobTitle: "b", OpenDate: day("2024-07-01")}})
	require.NoError(t, err)
	assert.Equal(t, created[1].ID, again[0].ID)
	open, err = jobs.GetOpenJobs(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, open, 3)
}

func TestJobStore_FutureCloseDateStillOpen(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	jobs := NewJobStore(db.Pool)

	future := time.Now().AddDate(0, 1, 0)
	past := time.Now().AddDate(0, -1, 0)
	_, err := jobs.BulkCreate(ctx, []domain.Job{
		{EmployerID: 1, ATSJobKey: strPtr("F"), JobTitle: "future", OpenDate: day("2024-01-01"), CloseDate: &future},
		{EmployerID: 1, ATSJobKey: strPtr("P"), JobTitle: "past", OpenDate: day("2024-01-01"), CloseDate: &past},
	})
	require.NoError(t, err)

	open, err := jobs.GetOpenJobs(ctx, 1)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "F", open[0].Key())
}

func TestDepartmentStore_CaseInsensitive(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	depts := NewDepartmentStore(db.Pool)

	a, err := depts.GetOrCreate(ctx, "Customer  Success")
	require.NoError(t, err)
	b, err := depts.GetOrCreate(ctx, "customer success")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	_, err = depts.GetOrCreate(ctx, "  ")
	assert.ErrorIs(t, err, ErrEmptyName)
}

func TestLocationStore_Find(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	locs := NewLocationStore(db.Pool)

	id, err := locs.UpsertLocation(ctx, "Austin, TX", false)
	require.NoError(t, err)

	got, found, err := locs.FindLocation(ctx, "austin,  tx")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, id, got)

	_, found, err = locs.FindLocation(ctx, "Atlantis")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRunStore_StartFinishList(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	runs := NewRunStore(db.Pool)

	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	rec := RunRecord{ID: "run-1", EmployerID: 3, Employer: "Acme", StartedAt: start}
	require.NoError(t, runs.StartRun(ctx, rec))

	rec.Discovered, rec.Items, rec.Created, rec.SkipClose = 10, 9, 4, true
	rec.Error = "reconciliation partial failure"
	require.NoError(t, runs.FinishRun(ctx, rec))

	list, err := runs.ListRuns(ctx, 3, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 10, list[0].Discovered)
	assert.True(t, list[0].SkipClose)
	assert.NotNil(t, list[0].FinishedAt)
	assert.Equal(t, start, list[0].StartedAt)

	none, err := runs.ListRuns(ctx, 99, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestListJobs_OpenFilter(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	jobs := NewJobStore(db.Pool)
	locs := NewLocationStore(db.Pool)
	id, err := locs.UpsertLocation(ctx, "Remote", true)
	require.NoError(t, err)

	_, err = jobs.BulkCreate(ctx, []domain.Job{
		{EmployerID: 1, ATSJobKey: strPtr("A"), JobTitle: "a", OpenDate: day("2024-01-01"), LocationIDs: []domain.LocationID{id}},
		{EmployerID: 1, ATSJobKey: strPtr("B"), JobTitle: "b", OpenDate: day("2024-01-01")},
	})
	require.NoError(t, err)
	_, err = jobs.BulkCloseNotIn(ctx, 1, []string{"A"}, day("2024-02-01"))
	require.NoError(t, err)

	rows, err := ListJobs(ctx, db.Pool, ListJobsOpts{EmployerID: 1, Open: true, Sort: "title"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Remote", rows[0].Locations)

	all, err := ListJobs(ctx, db.Pool, ListJobsOpts{Sort: "nope"})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestBulkUpdate_SQLShape(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`UPDATE jobs SET job_title = \?, salary_floor = \?, salary_ceiling = \?, salary_currency = \?, salary_interval = \?, modified_at = \? WHERE id = \?`)
	prep.ExpectExec().
		WithArgs("New", nil, 10.0, "USD", "hour", sqlmock.AnyArg(), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ceiling := 10.0
	err = NewJobStore(mockDB).BulkUpdate(context.Background(),
		[]domain.Job{{ID: 7, JobTitle: "New", Salary: domain.Salary{Ceiling: &ceiling, Currency: "USD", Interval: "hour"}}},
		[]domain.JobField{domain.FieldTitle, domain.FieldSalary, domain.FieldLocations})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpdate_UnknownField(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	err = NewJobStore(mockDB).BulkUpdate(context.Background(), []domain.Job{{ID: 1}}, []domain.JobField{"score"})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDepartmentStore_SQLShape(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	mock.ExpectExec(`INSERT INTO departments`).WithArgs("Sales Ops").WillReturnResult(sqlmock.NewResult(4, 1))
	mock.ExpectQuery(`SELECT id FROM departments WHERE name`).WithArgs("Sales Ops").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(4))

	id, err := NewDepartmentStore(mockDB).GetOrCreate(context.Background(), " Sales   Ops ")
	require.NoError(t, err)
	assert.Equal(t, domain.DepartmentID(4), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}
