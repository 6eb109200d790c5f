// Package reconcile diffs one employer's freshly crawled job items against
// the persisted catalog and applies the resulting creates, updates and
// soft-closures.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"jobvyne-crawler/internal/domain"
	"jobvyne-crawler/internal/logger"
)

const DefaultBatchSize = 100

// DefaultErrorThreshold is the task-error fraction above which closures are
// suppressed for a run.
const DefaultErrorThreshold = 0.10

// Store is the job catalog.
type Store interface {
	GetOpenJobs(ctx context.Context, employerID int64) ([]domain.Job, error)
	// BulkCreate inserts jobs together with their location sets and returns
	// them with IDs assigned, in input order.
	BulkCreate(ctx context.Context, jobs []domain.Job) ([]domain.Job, error)
	// BulkUpdate writes the named fields of every job. Locations are not
	// written here; see ReplaceLocations.
	BulkUpdate(ctx context.Context, jobs []domain.Job, fields []domain.JobField) error
	// ReplaceLocations swaps a job's whole location set in one transaction.
	ReplaceLocations(ctx context.Context, jobID int64, ids []domain.LocationID) error
	// BulkCloseNotIn sets CloseDate = asOf on every open job of the employer
	// whose reconciliation key is not in seenKeys, returning how many closed.
	BulkCloseNotIn(ctx context.Context, employerID int64, seenKeys []string, asOf time.Time) (int, error)
}

type LocationResolver interface {
	Resolve(ctx context.Context, raw string) (domain.LocationID, bool, error)
}

type DepartmentStore interface {
	// GetOrCreate matches name case-insensitively.
	GetOrCreate(ctx context.Context, name string) (domain.DepartmentID, error)
}

type Sanitizer interface {
	Sanitize(html string) string
}

type Options struct {
	SkipClose bool
	// AsOf is the closure and default open date. Zero means today.
	AsOf time.Time
}

type Summary struct {
	Created    int
	Updated    int
	Closed     int
	Unresolved int // raw location strings dropped
	Duplicates int // items collapsed into an earlier item of the same run
	Skipped    int // items without a usable identity
	SkipClose  bool
}

type Reconciler struct {
	store     Store
	locations LocationResolver
	depts     DepartmentStore
	sanitizer Sanitizer
	batchSize int
	log       logger.Logger
}

func New(store Store, locs LocationResolver, depts DepartmentStore, san Sanitizer, batchSize int, log logger.Logger) *Reconciler {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Reconciler{
		store:     store,
		locations: locs,
		depts:     depts,
		sanitizer: san,
		batchSize: batchSize,
		log:       logger.Component(log, "reconcile"),
	}
}

// ShouldSkipClose reports whether a run's task-error rate is too high to
// trust its seen-set. A run that discovered nothing but still failed tasks
// is never trusted.
func ShouldSkipClose(taskErrors, discovered int, threshold float64) bool {
	if discovered <= 0 {
		return taskErrors > 0
	}
	return float64(taskErrors)/float64(discovered) > threshold
}

type update struct {
	job       domain.Job
	fields    []domain.JobField
	locations bool
}

// run holds per-call lookups so each distinct location string and
// department name is resolved once.
type run struct {
	*Reconciler
	employerID int64
	asOf       time.Time
	locCache   map[string]locResult
	deptCache  map[string]*domain.DepartmentID
	log        logger.Logger
	summary    Summary
}

type locResult struct {
	id    domain.LocationID
	found bool
}

// Reconcile plans every mutation first, then persists creates and updates in
// batches and finally closes unseen jobs in one call. A lookup failure
// aborts before anything is written.
func (r *Reconciler) Reconcile(ctx context.Context, employerID int64, items []domain.JobItem, opts Options) (Summary, error) {
	asOf := opts.AsOf
	if asOf.IsZero() {
		asOf = time.Now()
	}
	rn := &run{
		Reconciler: r,
		employerID: employerID,
		asOf:       domain.Date(asOf),
		locCache:   make(map[string]locResult),
		deptCache:  make(map[string]*domain.DepartmentID),
		log:        r.log.With(logger.Int64("employer_id", employerID)),
	}

	open, err := r.store.GetOpenJobs(ctx, employerID)
	if err != nil {
		return Summary{}, fmt.Errorf("load open jobs: %w", err)
	}

	byKey := make(map[string]domain.Job, len(open))
	byIdentity := make(map[string]domain.Job)
	for _, j := range open {
		byKey[j.Key()] = j
		if j.IsSynthetic() {
			byIdentity[domain.IdentityKey(j.JobTitle, j.LocationIDs)] = j
		}
	}

	var (
		creates []domain.Job
		updates []update
		seen    = make(map[string]bool, len(items))
		// identities claimed in this run, vendor keys and synthetic identities alike
		claimed = make(map[string]bool, len(items))
	)

	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return rn.summary, err
		}
		key := strings.TrimSpace(it.ATSJobKey)
		if key == "" && strings.TrimSpace(it.JobTitle) == "" {
			rn.summary.Skipped++
			rn.log.Warn("item without key or title skipped", logger.String("url", it.ApplicationURL))
			continue
		}

		locIDs, err := rn.resolveLocations(ctx, it)
		if err != nil {
			return rn.summary, err
		}

		var (
			claim   string
			current domain.Job
			found   bool
		)
		if key != "" {
			claim = "key:" + key
			current, found = byKey[key]
			if found && current.IsSynthetic() {
				found = false
			}
		} else {
			ident := domain.IdentityKey(it.JobTitle, locIDs)
			claim = "id:" + ident
			current, found = byIdentity[ident]
		}
		if claimed[claim] {
			rn.summary.Duplicates++
			continue
		}
		claimed[claim] = true

		desired, err := rn.build(ctx, it, key, locIDs)
		if err != nil {
			return rn.summary, err
		}

		if !found {
			creates = append(creates, desired)
			continue
		}
		seen[current.Key()] = true
		if u, changed := diff(current, desired, it); changed {
			updates = append(updates, u)
		}
	}

	created, err := rn.persistCreates(ctx, creates)
	if err != nil {
		return rn.summary, err
	}
	for _, j := range created {
		seen[j.Key()] = true
	}
	if err := rn.persistUpdates(ctx, updates); err != nil {
		return rn.summary, err
	}

	if opts.SkipClose {
		rn.summary.SkipClose = true
		if len(byKey) > len(seen) {
			rn.log.Warn("closures suppressed", logger.Int("unseen_candidates", countUnseen(byKey, seen)))
		}
	} else {
		keys := make([]string, 0, len(seen))
		for k := range seen {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		closed, err := r.store.BulkCloseNotIn(ctx, employerID, keys, rn.asOf)
		if err != nil {
			return rn.summary, fmt.Errorf("close unseen jobs: %w", err)
		}
		rn.summary.Closed = closed
	}

	rn.log.Info("reconciled",
		logger.Int("items", len(items)),
		logger.Int("created", rn.summary.Created),
		logger.Int("updated", rn.summary.Updated),
		logger.Int("closed", rn.summary.Closed),
		logger.Int("unresolved_locations", rn.summary.Unresolved),
		logger.Int("duplicates", rn.summary.Duplicates),
		logger.Bool("skip_close", rn.summary.SkipClose),
	)
	return rn.summary, nil
}

func countUnseen(byKey map[string]domain.Job, seen map[string]bool) int {
	n := 0
	for k := range byKey {
		if !seen[k] {
			n++
		}
	}
	return n
}

func (rn *run) resolveLocations(ctx context.Context, it domain.JobItem) ([]domain.LocationID, error) {
	ids := make([]domain.LocationID, 0, len(it.Locations))
	for _, raw := range it.Locations {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		res, ok := rn.locCache[raw]
		if !ok {
			id, found, err := rn.locations.Resolve(ctx, raw)
			if err != nil {
				return nil, fmt.Errorf("resolve location %q: %w", raw, err)
			}
			res = locResult{id: id, found: found}
			rn.locCache[raw] = res
		}
		if !res.found {
			rn.summary.Unresolved++
			rn.log.Warn("unresolved location dropped",
				logger.String("location", raw),
				logger.String("url", it.ApplicationURL))
			continue
		}
		ids = append(ids, res.id)
	}
	return domain.SortedLocationIDs(ids), nil
}

func (rn *run) department(ctx context.Context, name string) (*domain.DepartmentID, error) {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return nil, nil
	}
	k := strings.ToLower(name)
	if id, ok := rn.deptCache[k]; ok {
		return id, nil
	}
	id, err := rn.depts.GetOrCreate(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("department %q: %w", name, err)
	}
	rn.deptCache[k] = &id
	return &id, nil
}

// build is the job as this run saw it. ID and ModifiedAt are left to the store.
func (rn *run) build(ctx context.Context, it domain.JobItem, key string, locIDs []domain.LocationID) (domain.Job, error) {
	dept, err := rn.department(ctx, it.DepartmentName)
	if err != nil {
		return domain.Job{}, err
	}
	j := domain.Job{
		EmployerID:     rn.employerID,
		JobTitle:       strings.TrimSpace(it.JobTitle),
		JobDescription: rn.sanitizer.Sanitize(it.JobDescriptionHTML),
		ApplicationURL: it.ApplicationURL,
		EmploymentType: it.EmploymentType,
		DepartmentID:   dept,
		OpenDate:       rn.asOf,
		Salary:         it.Salary,
		LocationIDs:    locIDs,
	}
	if key != "" {
		k := key
		j.ATSJobKey = &k
	}
	if it.OpenDate != nil {
		j.OpenDate = domain.Date(*it.OpenDate)
	}
	if it.CloseDate != nil {
		d := domain.Date(*it.CloseDate)
		j.CloseDate = &d
	}
	return j, nil
}

// diff copies every changed field of desired onto current. OpenDate only
// counts when the vendor reported one; otherwise the stored date stands.
func diff(current, desired domain.Job, it domain.JobItem) (update, bool) {
	u := update{job: current}
	set := func(f domain.JobField) { u.fields = append(u.fields, f) }

	if current.JobTitle != desired.JobTitle {
		u.job.JobTitle = desired.JobTitle
		set(domain.FieldTitle)
	}
	if current.JobDescription != desired.JobDescription {
		u.job.JobDescription = desired.JobDescription
		set(domain.FieldDescription)
	}
	if current.ApplicationURL != desired.ApplicationURL {
		u.job.ApplicationURL = desired.ApplicationURL
		set(domain.FieldApplicationURL)
	}
	if current.EmploymentType != desired.EmploymentType {
		u.job.EmploymentType = desired.EmploymentType
		set(domain.FieldEmploymentType)
	}
	if !deptEqual(current.DepartmentID, desired.DepartmentID) {
		u.job.DepartmentID = desired.DepartmentID
		set(domain.FieldDepartment)
	}
	if it.OpenDate != nil && !domain.Date(current.OpenDate).Equal(desired.OpenDate) {
		u.job.OpenDate = desired.OpenDate
		set(domain.FieldOpenDate)
	}
	if !dateEqual(current.CloseDate, desired.CloseDate) {
		u.job.CloseDate = desired.CloseDate
		set(domain.FieldCloseDate)
	}
	if !current.Salary.Equal(desired.Salary) {
		u.job.Salary = desired.Salary
		set(domain.FieldSalary)
	}
	if !domain.SameLocationSet(current.LocationIDs, desired.LocationIDs) {
		u.job.LocationIDs = desired.LocationIDs
		u.locations = true
		set(domain.FieldLocations)
	}
	return u, len(u.fields) > 0
}

func deptEqual(a, b *domain.DepartmentID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func dateEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return domain.Date(*a).Equal(domain.Date(*b))
}

func (rn *run) persistCreates(ctx context.Context, jobs []domain.Job) ([]domain.Job, error) {
	out := make([]domain.Job, 0, len(jobs))
	for start := 0; start < len(jobs); start += rn.batchSize {
		end := min(start+rn.batchSize, len(jobs))
		created, err := rn.store.BulkCreate(ctx, jobs[start:end])
		if err != nil {
			return out, fmt.Errorf("create jobs: %w", err)
		}
		if len(created) != end-start {
			return out, fmt.Errorf("create jobs: store returned %d of %d", len(created), end-start)
		}
		out = append(out, created...)
		rn.summary.Created += len(created)
	}
	return out, nil
}

func (rn *run) persistUpdates(ctx context.Context, updates []update) error {
	for start := 0; start < len(updates); start += rn.batchSize {
		end := min(start+rn.batchSize, len(updates))
		batch := updates[start:end]

		jobs := make([]domain.Job, 0, len(batch))
		fieldSet := make(map[domain.JobField]bool)
		for _, u := range batch {
			jobs = append(jobs, u.job)
			for _, f := range u.fields {
				if f != domain.FieldLocations {
					fieldSet[f] = true
				}
			}
		}
		// Unchanged columns of a batch are rewritten with their current value.
		fields := make([]domain.JobField, 0, len(fieldSet))
		for f := range fieldSet {
			fields = append(fields, f)
		}
		sort.Slice(fields, func(i, k int) bool { return fields[i] < fields[k] })

		if err := rn.store.BulkUpdate(ctx, jobs, fields); err != nil {
			return fmt.Errorf("update jobs: %w", err)
		}
		for _, u := range batch {
			if !u.locations {
				continue
			}
			if err := rn.store.ReplaceLocations(ctx, u.job.ID, u.job.LocationIDs); err != nil {
				return fmt.Errorf("replace locations of job %d: %w", u.job.ID, err)
			}
		}
		rn.summary.Updated += len(batch)
	}
	return nil
}

// ErrNoStore is returned by Check when a collaborator is missing.
var ErrNoStore = errors.New("reconcile: store, resolver, department store and sanitizer are required")

// Check validates that every collaborator is wired.
func (r *Reconciler) Check() error {
	if r.store == nil || r.locations == nil || r.depts == nil || r.sanitizer == nil {
		return ErrNoStore
	}
	return nil
}
