package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobvyne-crawler/internal/scrape/util"
)

func TestStatic_FetchParsesHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`<html><body><h1>Backend Engineer</h1></body></html>`))
	}))
	defer srv.Close()

	f := NewStatic(StaticOptions{UserAgent: "test-agent", Limiter: util.NewHostLimiter(0, 1)})
	page, err := f.FetchStatic(context.Background(), srv.URL+"/jobs/1")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, page.Status)
	require.NotNil(t, page.Doc)
	assert.Equal(t, "Backend Engineer", page.Doc.Find("h1").Text())
	assert.Contains(t, string(page.Body), "<h1>")
}

func TestStatic_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewStatic(StaticOptions{}).FetchStatic(context.Background(), srv.URL)
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.Status)
}

func TestStatic_HonorsCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewStatic(StaticOptions{}).FetchStatic(ctx, srv.URL)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestCombined_RenderedWithoutBrowser(t *testing.T) {
	c := &Combined{Static: NewStatic(StaticOptions{})}
	_, err := c.FetchRendered(context.Background(), "http://example.invalid", "h1")
	assert.ErrorIs(t, err, ErrRenderingDisabled)
}

func TestNewPage_NonHTMLBodyKeepsBytes(t *testing.T) {
	p := NewPage("http://x", 200, []byte(`{"total":3}`))
	assert.Equal(t, `{"total":3}`, string(p.Body))
}

func TestLazyRendered_DoesNotStartUntilUsed(t *testing.T) {
	l := NewLazyRendered(RenderedOptions{Headless: true})
	c := &Combined{Static: NewStatic(StaticOptions{}), Browser: l}
	_, err := c.FetchStatic(context.Background(), "http://127.0.0.1:1/")
	require.Error(t, err)
	assert.False(t, l.Started())
	l.Close()
}
