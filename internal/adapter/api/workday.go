package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"jobvyne-crawler/internal/domain"
	"jobvyne-crawler/internal/fetch"
	"jobvyne-crawler/internal/scrape/util"
)

var ErrWorkdayBlocked = errors.New("workday blocked by cloudflare")

type workday struct {
	boardURL string
	b        board
	apiBase  string
}

const csrfHeader = "x-calypso-csrf-token"

type board struct {
	Scheme string
	Host   string
	Tenant string
	Site   string
	Locale string
}

func newWorkday(cfg Config) (*workday, error) {
	b, err := parseBoardURL(cfg.Board)
	if err != nil {
		return nil, err
	}
	base := fmt.Sprintf("%s://%s", b.Scheme, b.Host)
	if cfg.BaseURL != "" {
		base = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &workday{
		boardURL: strings.TrimRight(strings.TrimSpace(cfg.Board), "/"),
		b:        b,
		apiBase:  fmt.Sprintf("%s/wday/cxs/%s/%s", base, b.Tenant, b.Site),
	}, nil
}

// Workday's CXS endpoint rejects limits above 20.
func (w *workday) defaultPageSize() int { return 20 }

type wdRequest struct {
	AppliedFacets map[string]any `json:"appliedFacets"`
	Limit         int            `json:"limit"`
	Offset        int            `json:"offset"`
	SearchText    string         `json:"searchText"`
}

type wdResponse struct {
	Total       int         `json:"total"`
	JobPostings []wdPosting `json:"jobPostings"`
}

type wdPosting struct {
	Title         string   `json:"title"`
	ExternalPath  string   `json:"externalPath"`
	LocationsText string   `json:"locationsText"`
	PostedOn      string   `json:"postedOn"`
	BulletFields  []string `json:"bulletFields"`
}

type wdDetail struct {
	JobPostingInfo struct {
		ID                  string   `json:"id"`
		Title               string   `json:"title"`
		JobDescription      string   `json:"jobDescription"`
		Location            string   `json:"location"`
		AdditionalLocations []string `json:"additionalLocations"`
		PostedOn            string   `json:"postedOn"`
		StartDate           string   `json:"startDate"`
		EndDate             string   `json:"endDate"`
		TimeType            string   `json:"timeType"`
		JobReqID            string   `json:"jobReqId"`
		ExternalURL         string   `json:"externalUrl"`
	} `json:"jobPostingInfo"`
}

// prepare performs the CSRF bootstrap. Some tenants require
// CALYPSO_CSRF_TOKEN + CXS_SESSION; others serve the API without them, so a
// missing cookie is tolerated here and retried on the first 4xx.
func (w *workday) prepare(ctx context.Context, c *client) error {
	err := w.bootstrap(ctx, c)
	if errors.Is(err, ErrWorkdayBlocked) {
		return err
	}
	return nil
}

func (w *workday) bootstrap(ctx context.Context, c *client) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.boardURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", w.lang())

	if err := c.limiter.WaitURL(ctx, w.boardURL); err != nil {
		return err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	preview, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("workday bootstrap: read body: %w", err)
	}
	if looksLikeCloudflareBlock(resp, string(preview)) {
		return ErrWorkdayBlocked
	}

	u, _ := url.Parse(w.boardURL)
	for _, ck := range c.hc.Jar.Cookies(u) {
		if ck.Name == "CALYPSO_CSRF_TOKEN" && ck.Value != "" {
			c.headers[csrfHeader] = ck.Value
			return nil
		}
	}
	return fmt.Errorf("workday bootstrap: missing CALYPSO_CSRF_TOKEN cookie (status=%d)", resp.StatusCode)
}

func (w *workday) lang() string {
	return firstNonEmpty(w.b.Locale, "en-US")
}

func (w *workday) page(ctx context.Context, c *client, offset, limit int) (listing, error) {
	c.headers["Origin"] = fmt.Sprintf("%s://%s", w.b.Scheme, w.b.Host)
	c.headers["Referer"] = w.boardURL
	c.headers["Accept-Language"] = w.lang()

	endpoint := w.apiBase + "/jobs"
	if w.b.Locale != "" {
		endpoint += "?locale=" + url.QueryEscape(w.b.Locale)
	}
	body := wdRequest{AppliedFacets: map[string]any{}, Limit: limit, Offset: offset}

	res, err := c.do(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return listing{}, fmt.Errorf("workday post jobs: %w", err)
	}
	if res.status >= 400 && c.headers[csrfHeader] == "" {
		// Retry once after a fresh bootstrap.
		if err := w.bootstrap(ctx, c); errors.Is(err, ErrWorkdayBlocked) {
			return listing{}, err
		}
		res, err = c.do(ctx, http.MethodPost, endpoint, body)
		if err != nil {
			return listing{}, fmt.Errorf("workday retry post jobs: %w", err)
		}
	}
	if res.status >= 400 {
		return listing{}, fmt.Errorf("workday status %d server=%q cfRay=%q body=%s",
			res.status, res.header.Get("Server"), res.header.Get("CF-RAY"), truncate(string(res.body), 240))
	}

	var jr wdResponse
	if err := json.Unmarshal(res.body, &jr); err != nil {
		return listing{}, fmt.Errorf("workday decode: %w body=%s", err, truncate(string(res.body), 240))
	}

	l := listing{count: len(jr.JobPostings), total: jr.Total}
	for _, p := range jr.JobPostings {
		path := strings.TrimSpace(p.ExternalPath)
		if path == "" || strings.TrimSpace(p.Title) == "" {
			continue
		}
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		meta := map[string]string{
			domain.MetaTitle:    util.CleanText(p.Title),
			domain.MetaLocation: util.NormalizeLocation(p.LocationsText),
			domain.MetaPosted:   p.PostedOn,
		}
		if len(p.BulletFields) > 0 {
			meta[domain.MetaATSKey] = strings.TrimSpace(p.BulletFields[0])
		}
		l.tasks = append(l.tasks, domain.CrawlTask{
			URL:      w.apiBase + path,
			Mode:     domain.FetchStatic,
			Metadata: meta,
		})
	}
	return l, nil
}

func (w *workday) parse(page *fetch.Page, task domain.CrawlTask, now time.Time) (domain.JobItem, error) {
	var d wdDetail
	if err := json.Unmarshal(page.Body, &d); err != nil {
		return domain.JobItem{}, fmt.Errorf("workday decode detail: %w", err)
	}
	info := d.JobPostingInfo

	title := firstNonEmpty(util.CleanText(info.Title), task.Meta(domain.MetaTitle))
	if title == "" {
		return domain.JobItem{}, fmt.Errorf("%w: %s: missing title", domain.ErrParse, task.URL)
	}

	var locs []string
	seen := map[string]bool{}
	for _, raw := range append([]string{info.Location}, info.AdditionalLocations...) {
		loc := util.NormalizeLocation(raw)
		if loc == "" || seen[strings.ToLower(loc)] {
			continue
		}
		seen[strings.ToLower(loc)] = true
		locs = append(locs, loc)
	}
	if len(locs) == 0 {
		locs = util.SplitLocations(task.Meta(domain.MetaLocation))
	}

	open := util.ParseDate(info.StartDate, now)
	if open == nil {
		open = util.ParseDate(firstNonEmpty(info.PostedOn, task.Meta(domain.MetaPosted)), now)
	}

	applyURL := info.ExternalURL
	if applyURL == "" {
		// The CXS detail path mirrors the public job path under the board URL.
		applyURL = w.boardURL + strings.TrimPrefix(task.URL, w.apiBase)
	}

	return domain.JobItem{
		ApplicationURL:     util.CanonicalURL(applyURL),
		ATSJobKey:          firstNonEmpty(info.JobReqID, task.Meta(domain.MetaATSKey), info.ID),
		JobTitle:           title,
		JobDescriptionHTML: info.JobDescription,
		EmploymentType:     util.NormalizeEmploymentType(info.TimeType),
		Locations:          locs,
		OpenDate:           open,
		CloseDate:          util.ParseDate(info.EndDate, now),
	}, nil
}

func parseBoardURL(raw string) (board, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return board{}, errors.New("empty board url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return board{}, err
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	if u.Host == "" {
		return board{}, fmt.Errorf("missing host in %q", raw)
	}

	tenant := strings.Split(u.Hostname(), ".")[0]
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segs) == 0 || segs[0] == "" {
		return board{}, fmt.Errorf("unexpected path %q", u.Path)
	}

	locale := ""
	if len(segs) >= 2 && looksLikeLocale(segs[0]) {
		locale = normalizeLocale(segs[0])
		segs = segs[1:]
	}

	return board{
		Scheme: u.Scheme,
		Host:   u.Host,
		Tenant: tenant,
		Site:   segs[len(segs)-1],
		Locale: locale,
	}, nil
}

// looksLikeLocale accepts en-US, en-us, etc.
func looksLikeLocale(s string) bool {
	if len(s) != 5 || s[2] != '-' {
		return false
	}
	return isAlpha(s[0:2]) && isAlpha(s[3:5])
}

func normalizeLocale(s string) string {
	return strings.ToLower(s[0:2]) + "-" + strings.ToUpper(s[3:5])
}

func isAlpha(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')) {
			return false
		}
	}
	return true
}

func looksLikeCloudflareBlock(resp *http.Response, bodyPreview string) bool {
	server := strings.ToLower(resp.Header.Get("Server"))
	if strings.Contains(server, "cloudflare") && resp.Header.Get("CF-RAY") != "" && resp.StatusCode >= 400 {
		return true
	}

	low := strings.ToLower(bodyPreview)
	if strings.Contains(low, "/cdn-cgi/challenge") ||
		(strings.Contains(low, "cloudflare") && strings.Contains(low, "checking your browser")) ||
		(strings.Contains(low, "attention required") && strings.Contains(low, "cloudflare")) {
		return true
	}

	return resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests
}
