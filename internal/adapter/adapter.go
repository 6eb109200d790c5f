// Package adapter defines the SiteAdapter contract and the immutable employer
// registry that maps each configured employer onto one adapter family.
package adapter

import (
	"context"

	"jobvyne-crawler/internal/domain"
	"jobvyne-crawler/internal/fetch"
)

// SiteAdapter discovers job-detail tasks for one employer site and parses the
// fetched pages. ParseJob must not perform I/O.
type SiteAdapter interface {
	Name() string
	Discover(ctx context.Context, sink domain.TaskSink) error
	ParseJob(page *fetch.Page, task domain.CrawlTask) (domain.JobItem, error)
}

// Families.
const (
	FamilyStatic = "static"
	FamilyAPI    = "api"
	FamilyFeed   = "feed"
	FamilySPA    = "spa"
)
