package fetch

import (
	"context"
	"errors"
)

// ErrRenderingDisabled is returned by FetchRendered when no browser is configured.
var ErrRenderingDisabled = errors.New("rendered fetch requested but browser is disabled")

// Renderer loads a page in a real browser.
type Renderer interface {
	FetchRendered(ctx context.Context, url, readySelector string) (*Page, error)
}

// Combined routes static requests over HTTP and rendered ones to the browser.
// Browser may be nil, in which case only static fetches are possible.
type Combined struct {
	Static  *Static
	Browser Renderer
}

func (c *Combined) FetchStatic(ctx context.Context, url string, opts ...RequestOption) (*Page, error) {
	return c.Static.FetchStatic(ctx, url, opts...)
}

func (c *Combined) FetchRendered(ctx context.Context, url, readySelector string) (*Page, error) {
	if c.Browser == nil {
		return nil, ErrRenderingDisabled
	}
	return c.Browser.FetchRendered(ctx, url, readySelector)
}
