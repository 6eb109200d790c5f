// Package fetch retrieves career-site pages either with a plain HTTP GET or
// through a headless Chrome tab when the listing needs JavaScript.
package fetch

import (
	"bytes"
	"context"
	"fmt"

	"github.com/PuerkitoBio/goquery"
)

// Page is one fetched document. Body holds the raw bytes so JSON and XML
// endpoints can be decoded directly; Doc is nil when the body is not HTML.
type Page struct {
	URL    string
	Status int
	Body   []byte
	Doc    *goquery.Document
}

// Fetcher is the page-retrieval surface used by the crawl engine and adapters.
type Fetcher interface {
	FetchStatic(ctx context.Context, url string, opts ...RequestOption) (*Page, error)
	FetchRendered(ctx context.Context, url, readySelector string) (*Page, error)
}

// NewPage parses body as HTML. Parse failures leave Doc nil.
func NewPage(url string, status int, body []byte) *Page {
	p := &Page{URL: url, Status: status, Body: body}
	if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body)); err == nil {
		p.Doc = doc
	}
	return p
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
}
