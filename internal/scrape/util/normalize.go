package util

import (
	"regexp"
	"strconv"
	"strings"

	"jobvyne-crawler/internal/domain"
)

func CleanText(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimSpace(s)
}

func NormalizeLocation(loc string) string {
	loc = CleanText(loc)
	if loc == "" {
		return ""
	}

	for _, p := range []string{"Location:", "Locations:", "LOCATION:", "LOCATIONS:"} {
		loc = strings.TrimPrefix(loc, p)
	}
	loc = strings.TrimSpace(loc)

	parts := strings.Split(loc, ",")
	seen := map[string]bool{}
	var out []string
	for _, p := range parts {
		p = CleanText(p)
		if p == "" {
			continue
		}
		k := strings.ToLower(p)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, p)
	}
	return strings.Join(out, ", ")
}

// SplitLocations breaks a multi-location string ("Austin, TX; Remote | NYC")
// into individual normalized entries. Commas are kept since they separate city
// from region.
func SplitLocations(raw string) []string {
	raw = CleanText(raw)
	if raw == "" {
		return nil
	}
	f := func(r rune) bool { return r == ';' || r == '|' || r == '\n' || r == '•' }
	seen := map[string]bool{}
	var out []string
	for _, p := range strings.FieldsFunc(raw, f) {
		p = NormalizeLocation(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(p), "or ")))
		k := strings.ToLower(p)
		if p == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, p)
	}
	return out
}

func IsRemote(text string) bool {
	l := strings.ToLower(text)
	return strings.Contains(l, "remote") || strings.Contains(l, "work from home") || strings.Contains(l, "anywhere")
}

// NormalizeEmploymentType maps vendor labels onto a small fixed vocabulary.
func NormalizeEmploymentType(s string) string {
	l := strings.ToLower(CleanText(s))
	switch {
	case l == "":
		return ""
	case strings.Contains(l, "intern"):
		return "Internship"
	case strings.Contains(l, "contract") || strings.Contains(l, "temporary") || strings.Contains(l, "temp"):
		return "Contract"
	case strings.Contains(l, "part"):
		return "Part Time"
	case strings.Contains(l, "full") || strings.Contains(l, "permanent") || strings.Contains(l, "regular"):
		return "Full Time"
	default:
		return CleanText(s)
	}
}

var salaryRe = regexp.MustCompile(`(?i)([$€£])\s?(\d[\d,]*(?:\.\d+)?)\s?(k)?(?:\s*(?:-|–|to)\s*[$€£]?\s?(\d[\d,]*(?:\.\d+)?)\s?(k)?)?(?:\s*(?:/|per|an|a)\s*(year|yr|annum|annually|hour|hr|month|mo))?`)

// ParseSalary extracts a salary band from free text such as
// "$120,000 - $150,000 per year" or "€45k–55k". ok is false when nothing matched.
func ParseSalary(text string) (domain.Salary, bool) {
	m := salaryRe.FindStringSubmatch(text)
	if m == nil {
		return domain.Salary{}, false
	}
	var s domain.Salary
	switch m[1] {
	case "$":
		s.Currency = "USD"
	case "€":
		s.Currency = "EUR"
	case "£":
		s.Currency = "GBP"
	}
	floor, ok := parseAmount(m[2], m[3] != "" || (m[3] == "" && m[5] != ""))
	if !ok {
		return domain.Salary{}, false
	}
	s.Floor = &floor
	if m[4] != "" {
		if ceil, ok := parseAmount(m[4], m[5] != ""); ok {
			s.Ceiling = &ceil
		}
	}
	switch strings.ToLower(m[6]) {
	case "hour", "hr":
		s.Interval = "hour"
	case "month", "mo":
		s.Interval = "month"
	case "year", "yr", "annum", "annually":
		s.Interval = "year"
	default:
		if floor >= 1000 {
			s.Interval = "year"
		}
	}
	return s, true
}

func parseAmount(s string, thousands bool) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	if thousands {
		v *= 1000
	}
	return v, true
}
