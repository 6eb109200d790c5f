// Package sanitize strips vendor job-description HTML down to a safe subset.
package sanitize

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Policy is safe for concurrent use once built.
type Policy struct {
	p *bluemonday.Policy
}

// New allows the formatting vendors use in descriptions (headings, lists,
// tables, links) and nothing executable. Links get rel=nofollow and open in
// a new tab.
func New() *Policy {
	p := bluemonday.UGCPolicy()
	p.AllowElements("h1", "h2", "h3", "h4", "h5", "h6", "section", "article")
	p.RequireNoFollowOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	return &Policy{p: p}
}

func (s *Policy) Sanitize(html string) string {
	return strings.TrimSpace(s.p.Sanitize(html))
}
