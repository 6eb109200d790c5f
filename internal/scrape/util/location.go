package util

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var locationSelectors = []string{
	".location",
	".opening .location",
	".job__location",
	".posting-categories .location",
	"[itemprop='jobLocation']",
	"[data-qa='location']",
	"[data-testid='job-location']",
	"[data-automation-id='locations']",
}

// FindLocation tries the common ATS location selectors, then og:description,
// then a "Location:" label anywhere in the body.
func FindLocation(doc *goquery.Document) string {
	for _, sel := range locationSelectors {
		if t := CleanText(doc.Find(sel).First().Text()); t != "" {
			return NormalizeLocation(t)
		}
	}

	if v, ok := doc.Find(`meta[property="og:description"]`).Attr("content"); ok {
		if loc := ExtractLocationFromLabeledText(v); loc != "" {
			return NormalizeLocation(loc)
		}
	}

	body := doc.Find("body").Text()
	if loc := ExtractLocationFromLabeledText(body); loc != "" {
		return NormalizeLocation(loc)
	}
	return ""
}

// ExtractLocationFromLabeledText returns the text after a "Location:" style label.
func ExtractLocationFromLabeledText(s string) string {
	low := strings.ToLower(s)

	for _, lab := range []string{"job location:", "locations:", "location:"} {
		i := strings.Index(low, lab)
		if i < 0 {
			continue
		}
		rest := strings.TrimSpace(s[i+len(lab):])
		for _, cut := range []string{"\n", "\r", " | ", " · "} {
			if j := strings.Index(rest, cut); j >= 0 {
				rest = rest[:j]
			}
		}
		rest = CleanText(rest)
		if rest != "" && len(rest) <= 80 {
			return rest
		}
	}
	return ""
}
