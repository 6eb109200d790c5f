package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSiteUnavailable aborts one employer's crawl; the catalog is left untouched.
	ErrSiteUnavailable = errors.New("site unavailable")
	ErrElementNotFound = errors.New("element not found")
	ErrPageLoadTimeout = errors.New("page load timeout")
	ErrParse           = errors.New("parse error")
	// ErrReconciliationPartialFailure is reported when closures were suppressed for a run.
	ErrReconciliationPartialFailure = errors.New("reconciliation partial failure: closures suppressed")
)

// TaskError records one failed fetch/parse or one lost department.
type TaskError struct {
	URL        string
	Department string
	Err        error
}

func (e TaskError) Error() string {
	switch {
	case e.URL != "" && e.Department != "":
		return fmt.Sprintf("%s (department %q): %v", e.URL, e.Department, e.Err)
	case e.URL != "":
		return fmt.Sprintf("%s: %v", e.URL, e.Err)
	case e.Department != "":
		return fmt.Sprintf("department %q: %v", e.Department, e.Err)
	default:
		return e.Err.Error()
	}
}

func (e TaskError) Unwrap() error { return e.Err }
