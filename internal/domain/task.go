package domain

// FetchMode selects how the engine turns a CrawlTask into a page.
type FetchMode int

const (
	FetchStatic FetchMode = iota
	FetchRendered
	// FetchInline tasks carry their content in Metadata and are never fetched.
	FetchInline
)

func (m FetchMode) String() string {
	switch m {
	case FetchStatic:
		return "static"
	case FetchRendered:
		return "rendered"
	case FetchInline:
		return "inline"
	default:
		return "unknown"
	}
}

// Metadata keys shared between discovery and ParseJob.
const (
	MetaDepartment     = "department"
	MetaATSKey         = "ats_key"
	MetaTitle          = "title"
	MetaLocation       = "location"
	MetaPosted         = "posted"
	MetaDescription    = "description"
	MetaEmploymentType = "employment_type"
)

// CrawlTask is one queued fetch of a job-detail page.
type CrawlTask struct {
	URL      string
	Ready    string // CSS selector that must exist before a rendered page counts as loaded
	Mode     FetchMode
	Metadata map[string]string
	// Header is sent with static fetches of URL; API boards put their
	// session and token headers here.
	Header map[string]string
}

func (t CrawlTask) Meta(key string) string {
	if t.Metadata == nil {
		return ""
	}
	return t.Metadata[key]
}

// TaskSink receives discovery output. Emit blocks while the work queue is
// full and fails once the run is cancelled. Fail records a recoverable
// discovery problem (a lost department or page) without stopping discovery.
type TaskSink interface {
	Emit(task CrawlTask) error
	Fail(err TaskError)
}
