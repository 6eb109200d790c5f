package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// SyntheticKeyPrefix marks jobs that carry no vendor-assigned identifier.
const SyntheticKeyPrefix = "JOBVYNE-"

type LocationID int64

type DepartmentID int64

// Salary is the optional compensation band of a posting. Nil bounds mean unknown.
type Salary struct {
	Floor    *float64
	Ceiling  *float64
	Currency string
	Interval string // year/month/hour
}

func (s Salary) IsZero() bool {
	return s.Floor == nil && s.Ceiling == nil && s.Currency == "" && s.Interval == ""
}

func (s Salary) Equal(o Salary) bool {
	return floatPtrEqual(s.Floor, o.Floor) &&
		floatPtrEqual(s.Ceiling, o.Ceiling) &&
		s.Currency == o.Currency &&
		s.Interval == o.Interval
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// JobItem is one normalized posting as scraped by a site adapter.
// It is never persisted directly; the reconciler turns it into a Job.
type JobItem struct {
	EmployerName       string
	ApplicationURL     string
	ATSJobKey          string
	JobTitle           string
	JobDescriptionHTML string // raw vendor HTML
	DepartmentName     string
	EmploymentType     string
	Locations          []string // raw location text, unresolved
	Salary             Salary
	OpenDate           *time.Time
	CloseDate          *time.Time
}

// Job is the persisted catalog entry for one employer posting.
type Job struct {
	ID             int64
	EmployerID     int64
	ATSJobKey      *string // nil for synthesized jobs
	JobTitle       string
	JobDescription string // sanitized HTML
	ApplicationURL string
	EmploymentType string
	DepartmentID   *DepartmentID
	OpenDate       time.Time
	CloseDate      *time.Time // nil while open
	Salary         Salary
	LocationIDs    []LocationID
	ModifiedAt     time.Time
}

// Key returns the reconciliation key: the vendor key when present, else the synthetic one.
func (j Job) Key() string {
	if j.ATSJobKey != nil {
		return *j.ATSJobKey
	}
	return SyntheticKey(j.ID)
}

func (j Job) IsSynthetic() bool { return j.ATSJobKey == nil }

func SyntheticKey(id int64) string {
	return fmt.Sprintf("%s%d", SyntheticKeyPrefix, id)
}

// SortedLocationIDs returns a sorted, de-duplicated copy.
func SortedLocationIDs(ids []LocationID) []LocationID {
	seen := make(map[LocationID]bool, len(ids))
	out := make([]LocationID, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Slice(out, func(i, k int) bool { return out[i] < out[k] })
	return out
}

func SameLocationSet(a, b []LocationID) bool {
	sa, sb := SortedLocationIDs(a), SortedLocationIDs(b)
	if len(sa) != len(sb) {
		return false
	}
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}

// IdentityKey is the duplicate-detection key for synthetic-key jobs:
// normalized title plus the sorted resolved location set.
func IdentityKey(title string, locs []LocationID) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(strings.Join(strings.Fields(title), " ")))
	b.WriteByte('|')
	for i, id := range SortedLocationIDs(locs) {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%d", id)
	}
	return b.String()
}

// Date truncates t to a UTC calendar day.
func Date(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// JobField names one reconciled attribute of a Job. Values double as the
// catalog column names; salary and locations span several columns or rows.
type JobField string

const (
	FieldTitle          JobField = "job_title"
	FieldDescription    JobField = "job_description"
	FieldApplicationURL JobField = "application_url"
	FieldEmploymentType JobField = "employment_type"
	FieldDepartment     JobField = "department_id"
	FieldOpenDate       JobField = "open_date"
	FieldCloseDate      JobField = "close_date"
	FieldSalary         JobField = "salary"
	FieldLocations      JobField = "locations"
)
