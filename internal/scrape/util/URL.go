package util

import (
	"net/url"
	"sort"
	"strings"
)

// CanonicalURL lowercases scheme/host, drops the fragment and tracking params
// and sorts the query so the same posting always yields the same string.
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	q := u.Query()
	for k := range q {
		lk := strings.ToLower(k)
		if strings.HasPrefix(lk, "utm_") ||
			lk == "gclid" || lk == "fbclid" || lk == "msclkid" ||
			lk == "gh_src" || lk == "lever-source" || lk == "source" {
			q.Del(k)
		}
	}
	for k := range q {
		vals := q[k]
		sort.Strings(vals)
		q[k] = vals
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// AbsURL resolves href against base. Unparseable input is returned trimmed.
func AbsURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	h, err := url.Parse(href)
	if err != nil {
		return href
	}
	if h.IsAbs() {
		return h.String()
	}
	b, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return href
	}
	return b.ResolveReference(h).String()
}

func HostOf(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}
