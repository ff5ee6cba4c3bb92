package tika

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xiaowen-go/internal/config"
)

const pagedXHTML = `<html xmlns="http://www.w3.org/1999/xhtml">
<head><meta name="Content-Type" content="application/pdf"/></head>
<body>
<div class="page"><p>第一页的内容。</p><p>还有第二段。</p></div>
<div class="page"><p>Second page text.</p></div>
<div class="page"></div>
</body></html>`

const flatXHTML = `<html xmlns="http://www.w3.org/1999/xhtml">
<body><p>Plain document without page markers.</p></body></html>`

func newTestTika(t *testing.T, handler http.HandlerFunc) (*Client, func()) {
	server := httptest.NewServer(handler)
	c := NewClient(config.TikaConfig{ServerURL: server.URL})
	return c, server.Close
}

func TestExtractPagesSplitsOnPageMarkers(t *testing.T) {
	c, closeFn := newTestTika(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "PUT", r.Method)
		assert.Equal(t, "/tika", r.URL.Path)
		assert.Equal(t, "text/html", r.Header.Get("Accept"))
		assert.Equal(t, "application/pdf", r.Header.Get("Content-Type"))
		w.Write([]byte(pagedXHTML))
	})
	defer closeFn()

	pages, err := c.ExtractPages(context.Background(), []byte("%PDF-1.4 fake"), "report.pdf")
	require.NoError(t, err)
	require.Len(t, pages, 3)
	assert.Contains(t, pages[0], "第一页的内容。")
	assert.Contains(t, pages[0], "还有第二段。")
	assert.Equal(t, "Second page text.", pages[1])
	assert.Empty(t, pages[2], "空白页保留占位，页码不漂移")
}

func TestExtractPagesFallsBackToSinglePage(t *testing.T) {
	c, closeFn := newTestTika(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(flatXHTML))
	})
	defer closeFn()

	pages, err := c.ExtractPages(context.Background(), []byte("hello"), "notes.txt")
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "Plain document without page markers.", pages[0])
}

func TestExtractPagesErrorOnUnprocessable(t *testing.T) {
	c, closeFn := newTestTika(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte("Unsupported media type"))
	})
	defer closeFn()

	_, err := c.ExtractPages(context.Background(), []byte{0x00, 0x01}, "broken.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
}

func TestDetectMimeType(t *testing.T) {
	assert.Equal(t, "application/pdf", detectMimeType("a.pdf"))
	assert.Equal(t, "application/octet-stream", detectMimeType("noext"))
	assert.Equal(t, "application/octet-stream", detectMimeType("weird.zzz9x"))
}
