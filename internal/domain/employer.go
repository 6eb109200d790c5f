package domain

// Employer is one catalog owner whose career site is crawled.
type Employer struct {
	ID     int64
	Name   string
	Family string // static/api/feed/spa
	Active bool
}
