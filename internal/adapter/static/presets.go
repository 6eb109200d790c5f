package static

// Selectors locate fields on a job-detail page. Empty selectors are skipped.
type Selectors struct {
	Title          string `yaml:"title"`
	Description    string `yaml:"description"`
	Location       string `yaml:"location"`
	Department     string `yaml:"department"`
	EmploymentType string `yaml:"employment_type"`
	Posted         string `yaml:"posted"`
	Salary         string `yaml:"salary"`
}

// Preset is the listing and detail layout shared by every board on one ATS.
type Preset struct {
	LinkSelector   string
	GroupSelector  string
	HeaderSelector string
	KeyPattern     string
	Detail         Selectors
}

var presets = map[string]Preset{
	"greenhouse": {
		LinkSelector:   "div.opening a[href], tr.job-post a[href]",
		GroupSelector:  "section.level-0, div.job-posts",
		HeaderSelector: "h3, h2",
		KeyPattern:     `/jobs/(\d+)`,
		Detail: Selectors{
			Title:       "h1.app-title, .job__title h1, h1",
			Description: "#content, .job__description",
			Location:    ".location, .job__location",
			Salary:      ".pay-range, .job__pay",
		},
	},
	"lever": {
		LinkSelector:   "a.posting-title",
		GroupSelector:  "div.postings-group",
		HeaderSelector: ".posting-category-title, .large-category-header",
		KeyPattern:     `jobs\.lever\.co/[^/]+/([0-9a-f-]{36})`,
		Detail: Selectors{
			Title:          ".posting-headline h2",
			Description:    ".section-wrapper.page-full-width, .content .section",
			Location:       ".posting-categories .location, .sort-by-time",
			Department:     ".posting-categories .department",
			EmploymentType: ".posting-categories .commitment",
		},
	},
	"breezy": {
		LinkSelector:   "li.position a[href]",
		GroupSelector:  "li.group",
		HeaderSelector: ".group-header",
		KeyPattern:     `/p/([0-9a-z]+)`,
		Detail: Selectors{
			Title:          ".banner h1, h1",
			Description:    ".description",
			Location:       ".banner .location, li.location",
			Department:     ".banner .department, li.department",
			EmploymentType: ".banner .type, li.type",
		},
	},
	"jazzhr": {
		LinkSelector:   "a.job-title-link, .jobs-list a[href*='/apply/']",
		GroupSelector:  ".jobs-list-department, .department",
		HeaderSelector: "h3, .department-name",
		KeyPattern:     `/apply/([A-Za-z0-9]+)`,
		Detail: Selectors{
			Title:          "h1, .job-title",
			Description:    "#job-description, .job-description",
			Location:       "#resumator-job-location, .job-location",
			Department:     "#resumator-job-department, .job-department",
			EmploymentType: "#resumator-job-employment, .job-type",
		},
	},
	"bamboohr": {
		LinkSelector:   "a[href*='/careers/']",
		GroupSelector:  ".BambooHR-ATS-Department-Item",
		HeaderSelector: ".BambooHR-ATS-Department-Header",
		KeyPattern:     `/careers/(\d+)`,
		Detail: Selectors{
			Title:          "h2, .ResAts__card-title",
			Description:    ".BambooRichText, .ResAts__card-content",
			Location:       ".ResAts__card-subtitle, .location",
			Department:     ".department",
			EmploymentType: ".employment-status",
		},
	},
}

// LookupPreset returns a copy of the named preset.
func LookupPreset(name string) (Preset, bool) {
	p, ok := presets[name]
	return p, ok
}

// Presets lists the preset names.
func Presets() []string {
	out := make([]string, 0, len(presets))
	for k := range presets {
		out = append(out, k)
	}
	return out
}

func (s Selectors) merge(over Selectors) Selectors {
	pick := func(a, b string) string {
		if b != "" {
			return b
		}
		return a
	}
	return Selectors{
		Title:          pick(s.Title, over.Title),
		Description:    pick(s.Description, over.Description),
		Location:       pick(s.Location, over.Location),
		Department:     pick(s.Department, over.Department),
		EmploymentType: pick(s.EmploymentType, over.EmploymentType),
		Posted:         pick(s.Posted, over.Posted),
		Salary:         pick(s.Salary, over.Salary),
	}
}
