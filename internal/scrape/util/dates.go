package util

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"01/02/2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	time.RFC1123Z,
	time.RFC1123,
}

var postedDaysAgo = regexp.MustCompile(`(?i)posted\s+(\d+)\+?\s+days?\s+ago`)

// ParseDate understands the date shapes seen across ATS payloads: RFC3339,
// plain dates, epoch seconds/millis, and Workday's "Posted N Days Ago"
// relative to now. Returns nil when nothing matches.
func ParseDate(s string, now time.Time) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		var t time.Time
		if n >= 1_000_000_000_000 {
			t = time.UnixMilli(n).UTC()
		} else {
			t = time.Unix(n, 0).UTC()
		}
		return &t
	}

	low := strings.ToLower(s)
	switch {
	case strings.Contains(low, "posted today"):
		t := now
		return &t
	case strings.Contains(low, "posted yesterday"):
		t := now.AddDate(0, 0, -1)
		return &t
	}
	if m := postedDaysAgo.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		t := now.AddDate(0, 0, -n)
		return &t
	}
	return nil
}
