package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"jobvyne-crawler/internal/domain"
	"jobvyne-crawler/internal/fetch"
	"jobvyne-crawler/internal/scrape/util"
)

const smartRecruitersAPI = "https://api.smartrecruiters.com"

type smartRecruiters struct {
	base string
	slug string
}

func newSmartRecruiters(cfg Config) *smartRecruiters {
	return &smartRecruiters{
		base: strings.TrimRight(firstNonEmpty(cfg.BaseURL, smartRecruitersAPI), "/"),
		slug: strings.TrimSpace(cfg.Board),
	}
}

func (s *smartRecruiters) defaultPageSize() int { return 100 }

// Response schema (public API):
// { "content": [...], "totalFound": N, "offset": O, "limit": L }
type srPostingsResponse struct {
	Content    []srPosting `json:"content"`
	TotalFound int         `json:"totalFound"`
}

type srLabel struct {
	Label string `json:"label"`
}

type srLocation struct {
	City    string `json:"city"`
	Region  string `json:"region"`
	Country string `json:"country"`
	Remote  bool   `json:"remote"`
}

type srPosting struct {
	ID               string     `json:"id"`
	UUID             string     `json:"uuid"`
	Name             string     `json:"name"`
	RefNumber        string     `json:"refNumber"`
	ReleasedDate     string     `json:"releasedDate"`
	Location         srLocation `json:"location"`
	Department       srLabel    `json:"department"`
	TypeOfEmployment srLabel    `json:"typeOfEmployment"`
}

type srSection struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

type srDetail struct {
	srPosting
	PostingURL string `json:"postingUrl"`
	ApplyURL   string `json:"applyUrl"`
	JobAd      struct {
		Sections struct {
			CompanyDescription    srSection `json:"companyDescription"`
			JobDescription        srSection `json:"jobDescription"`
			Qualifications        srSection `json:"qualifications"`
			AdditionalInformation srSection `json:"additionalInformation"`
		} `json:"sections"`
	} `json:"jobAd"`
}

func (s *smartRecruiters) prepare(_ context.Context, c *client) error {
	if c.token != "" {
		c.headers["X-SmartToken"] = c.token
	}
	return nil
}

func (s *smartRecruiters) postingsURL() string {
	return fmt.Sprintf("%s/v1/companies/%s/postings", s.base, url.PathEscape(s.slug))
}

func (s *smartRecruiters) page(ctx context.Context, c *client, offset, limit int) (listing, error) {
	u := fmt.Sprintf("%s?limit=%d&offset=%d", s.postingsURL(), limit, offset)
	res, err := c.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return listing{}, fmt.Errorf("smartrecruiters get: %w", err)
	}
	if res.status >= 400 {
		return listing{}, fmt.Errorf("smartrecruiters status %d body=%s", res.status, truncate(string(res.body), 240))
	}

	var pr srPostingsResponse
	if err := json.Unmarshal(res.body, &pr); err != nil {
		return listing{}, fmt.Errorf("smartrecruiters decode: %w", err)
	}

	l := listing{count: len(pr.Content), total: pr.TotalFound}
	for _, p := range pr.Content {
		id := firstNonEmpty(p.ID, p.UUID)
		if id == "" || strings.TrimSpace(p.Name) == "" {
			continue
		}
		l.tasks = append(l.tasks, domain.CrawlTask{
			URL:  s.postingsURL() + "/" + url.PathEscape(id),
			Mode: domain.FetchStatic,
			Metadata: map[string]string{
				domain.MetaATSKey:     id,
				domain.MetaTitle:      util.CleanText(p.Name),
				domain.MetaDepartment: util.CleanText(p.Department.Label),
			},
		})
	}
	return l, nil
}

func (s *smartRecruiters) parse(page *fetch.Page, task domain.CrawlTask, now time.Time) (domain.JobItem, error) {
	var d srDetail
	if err := json.Unmarshal(page.Body, &d); err != nil {
		return domain.JobItem{}, fmt.Errorf("smartrecruiters decode detail: %w", err)
	}

	id := firstNonEmpty(d.ID, d.UUID, task.Meta(domain.MetaATSKey))
	title := firstNonEmpty(util.CleanText(d.Name), task.Meta(domain.MetaTitle))
	if id == "" || title == "" {
		return domain.JobItem{}, fmt.Errorf("%w: %s: missing id or title", domain.ErrParse, task.URL)
	}

	secs := d.JobAd.Sections
	var desc strings.Builder
	for _, sec := range []srSection{secs.JobDescription, secs.Qualifications, secs.AdditionalInformation} {
		if strings.TrimSpace(sec.Text) == "" {
			continue
		}
		if sec.Title != "" {
			fmt.Fprintf(&desc, "<h3>%s</h3>", sec.Title)
		}
		desc.WriteString(sec.Text)
	}

	var locs []string
	if loc := util.NormalizeLocation(strings.Join(nonEmpty(d.Location.City, d.Location.Region, d.Location.Country), ", ")); loc != "" {
		locs = append(locs, loc)
	}
	if d.Location.Remote {
		locs = append(locs, "Remote")
	}

	applyURL := firstNonEmpty(d.PostingURL, d.ApplyURL,
		fmt.Sprintf("https://jobs.smartrecruiters.com/%s/%s", s.slug, id))

	return domain.JobItem{
		ApplicationURL:     util.CanonicalURL(applyURL),
		ATSJobKey:          id,
		JobTitle:           title,
		JobDescriptionHTML: desc.String(),
		DepartmentName:     firstNonEmpty(util.CleanText(d.Department.Label), task.Meta(domain.MetaDepartment)),
		EmploymentType:     util.NormalizeEmploymentType(d.TypeOfEmployment.Label),
		Locations:          locs,
		OpenDate:           util.ParseDate(d.ReleasedDate, now),
	}, nil
}
