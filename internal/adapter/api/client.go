package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"

	"jobvyne-crawler/internal/scrape/util"
)

const userAgent = "Mozilla/5.0 (compatible; JobvyneCrawler/1.0)"

// client wraps one discovery's HTTP session. Each discovery gets its own
// cookie jar so Workday's CSRF cookie never leaks across employers.
type client struct {
	hc      *http.Client
	limiter *util.HostLimiter
	token   string
	headers map[string]string
}

func newClient(base *http.Client, limiter *util.HostLimiter, token string) (*client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	hc := *base
	hc.Jar = jar
	return &client{hc: &hc, limiter: limiter, token: token, headers: map[string]string{}}, nil
}

// sessionHeader copies the headers detail fetches need to reach the same
// board: tokens and session headers set by prepare.
func (c *client) sessionHeader() map[string]string {
	if len(c.headers) == 0 {
		return nil
	}
	h := make(map[string]string, len(c.headers))
	for k, v := range c.headers {
		h[k] = v
	}
	return h
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func (c *client) do(ctx context.Context, method, url string, payload any) (response, error) {
	var body *bytes.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return response{}, err
		}
		body = bytes.NewReader(b)
	}

	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, url, body)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, url, nil)
	}
	if err != nil {
		return response{}, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	if err := c.limiter.WaitURL(ctx, url); err != nil {
		return response{}, err
	}

	res, err := c.hc.Do(req)
	if err != nil {
		return response{}, fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer res.Body.Close()
	respBody, err := readAll(res.Body)
	if err != nil {
		return response{}, fmt.Errorf("%s %s: read body: %w", method, url, err)
	}
	return response{status: res.StatusCode, header: res.Header, body: respBody}, nil
}
