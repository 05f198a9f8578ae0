package extract

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestYouTubeFetchCombinesMetadataAndTranscript(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oembed":
			_ = json.NewEncoder(w).Encode(oembedResponse{
				Title:      "Go Concurrency Patterns",
				AuthorName: "Rob",
			})
		case "/timedtext":
			assert.Equal(t, "abc123", r.URL.Query().Get("v"))
			_, _ = w.Write([]byte("WEBVTT\n\n00:00:00.000 --> 00:00:02.000\ndon't communicate by sharing memory\n"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	s := NewYouTubeSource(srv.Client())
	s.OEmbedURL = srv.URL + "/oembed"
	s.TimedTextURL = srv.URL + "/timedtext"

	doc, err := s.Fetch(context.Background(), "https://www.youtube.com/watch?v=abc123")
	require.NoError(t, err)

	assert.Equal(t, "Go Concurrency Patterns", doc.Title)
	assert.Equal(t, "Video by Rob", doc.Description)
	assert.Equal(t, "don't communicate by sharing memory", doc.Text)
	assert.Equal(t, "abc123", doc.Metadata["video_id"])
}

func TestYouTubeFetchSurvivesMissingTranscript(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oembed" {
			_ = json.NewEncoder(w).Encode(oembedResponse{Title: "No Captions Here"})
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	s := NewYouTubeSource(srv.Client())
	s.OEmbedURL = srv.URL + "/oembed"
	s.TimedTextURL = srv.URL + "/timedtext"

	doc, err := s.Fetch(context.Background(), "https://youtu.be/xyz")
	require.NoError(t, err)
	assert.Equal(t, "No Captions Here", doc.Title)
	assert.Empty(t, doc.Text)
}

func TestTwitterFetchStripsEmbedHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Query().Get("url"), "twitter.com", "x.com canonicalized")
		_ = json.NewEncoder(w).Encode(twitterOEmbedResponse{
			AuthorName: "gopher",
			HTML:       `<blockquote class="twitter-tweet"><p>Generics are <b>finally</b> here.</p>&mdash; gopher</blockquote>`,
		})
	}))
	defer srv.Close()

	s := NewTwitterSource(srv.Client())
	s.OEmbedURL = srv.URL

	doc, err := s.Fetch(context.Background(), "https://x.com/gopher/status/1")
	require.NoError(t, err)

	assert.Equal(t, "Tweet by gopher", doc.Title)
	assert.Equal(t, "Generics are finally here.", doc.Text)
}

func TestRedditFetchFlattensThread(t *testing.T) {
	thread := `[
	  {"data": {"children": [{"data": {"title": "Why Go?", "selftext": "Asking for a friend.", "subreddit": "golang", "author": "op"}}]}},
	  {"data": {"children": [
	    {"data": {"body": "Fast compiles."}},
	    {"data": {"body": "[deleted]"}},
	    {"data": {"body": "Great stdlib."}}
	  ]}}
	]`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/r/golang/comments/abc/why_go.json", r.URL.Path)
		_, _ = w.Write([]byte(thread))
	}))
	defer srv.Close()

	s := NewRedditSource(srv.Client())
	doc, err := s.Fetch(context.Background(), srv.URL+"/r/golang/comments/abc/why_go/")
	require.NoError(t, err)

	assert.Equal(t, "Why Go?", doc.Title)
	assert.Contains(t, doc.Text, "Asking for a friend.")
	assert.Contains(t, doc.Text, "Fast compiles.")
	assert.Contains(t, doc.Text, "Great stdlib.")
	assert.NotContains(t, doc.Text, "[deleted]")
	assert.Equal(t, "golang", doc.Metadata["subreddit"])
}

func TestPDFSourceMatchesByExtension(t *testing.T) {
	s := NewPDFSource(&http.Client{})
	assert.True(t, s.Matches(mustParse(t, "https://example.com/paper.PDF")))
	assert.False(t, s.Matches(mustParse(t, "https://example.com/paper.pdf.html")))
}
