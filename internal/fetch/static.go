package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"jobvyne-crawler/internal/scrape/util"
)

const (
	defaultUserAgent = "JobvyneCrawler/1.0 (+https://jobvyne.com)"
	maxBodyBytes     = 8 << 20
)

// Static fetches server-rendered pages over plain HTTP.
type Static struct {
	hc        *http.Client
	limiter   *util.HostLimiter
	userAgent string
}

type StaticOptions struct {
	Timeout   time.Duration
	UserAgent string
	Limiter   *util.HostLimiter
	Client    *http.Client // optional; Timeout is ignored when set
}

func NewStatic(opts StaticOptions) *Static {
	hc := opts.Client
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 20 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	return &Static{hc: hc, limiter: opts.Limiter, userAgent: ua}
}

// RequestOption adjusts an outgoing static request after the defaults are set.
type RequestOption func(*http.Request)

// WithHeader sets each header on the request. A nil map is a no-op.
func WithHeader(h map[string]string) RequestOption {
	return func(req *http.Request) {
		for k, v := range h {
			req.Header.Set(k, v)
		}
	}
}

func (s *Static) FetchStatic(ctx context.Context, url string, opts ...RequestOption) (*Page, error) {
	if err := s.limiter.WaitURL(ctx, url); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/json,application/xml;q=0.9,*/*;q=0.8")
	for _, o := range opts {
		o(req)
	}

	res, err := s.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: read body: %w", url, err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &StatusError{URL: url, Status: res.StatusCode}
	}
	return NewPage(res.Request.URL.String(), res.StatusCode, body), nil
}
