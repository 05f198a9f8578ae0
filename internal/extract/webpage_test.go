package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markstash/markstash/internal/bookmark"
	mserrors "github.com/markstash/markstash/internal/errors"
)

const samplePage = `<!DOCTYPE html>
<html>
<head>
  <title>Fallback Title</title>
  <meta property="og:title" content="A Great Article">
  <meta name="description" content="Everything about things.">
</head>
<body>
  <nav>Home | About</nav>
  <script>console.log("noise")</script>
  <article>
    <h1>A Great Article</h1>
    <p>First paragraph of the body.</p>
    <p>Second paragraph with more detail.</p>
  </article>
  <footer>Copyright</footer>
</body>
</html>`

func TestWebpageFetchExtractsContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	s := NewWebpageSource(srv.Client())
	doc, err := s.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, "A Great Article", doc.Title, "og:title beats <title>")
	assert.Equal(t, "Everything about things.", doc.Description)
	assert.Contains(t, doc.Text, "First paragraph of the body.")
	assert.Contains(t, doc.Text, "Second paragraph with more detail.")
	assert.NotContains(t, doc.Text, "console.log", "scripts stripped")
	assert.NotContains(t, doc.Text, "Home | About", "nav stripped")
}

func TestWebpageFetchRejectsBinaryContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 0x50, 0x4e, 0x47})
	}))
	defer srv.Close()

	s := NewWebpageSource(srv.Client())
	_, err := s.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, mserrors.ErrCodeUnsupportedContent, mserrors.GetCode(err))
}

func TestWebpageFetchClassifies404(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	s := NewWebpageSource(srv.Client())
	_, err := s.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, mserrors.ErrCodeUnsupportedContent, mserrors.GetCode(err))
	assert.False(t, mserrors.IsRetryable(err))
}

func TestDispatcherExtractSetsPlatformAndRejectsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if r.URL.Path == "/empty" {
			_, _ = w.Write([]byte("<html><head></head><body></body></html>"))
			return
		}
		_, _ = w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	d := NewDispatcherWithSources(NewWebpageSource(srv.Client()))

	doc, err := d.Extract(context.Background(), srv.URL+"/article")
	require.NoError(t, err)
	assert.Equal(t, bookmark.PlatformWebsite, doc.Platform)

	_, err = d.Extract(context.Background(), srv.URL+"/empty")
	require.Error(t, err)
	assert.Equal(t, mserrors.ErrCodeEmptyContent, mserrors.GetCode(err))
}
