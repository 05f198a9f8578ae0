package extract

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/markstash/markstash/internal/bookmark"
	mserrors "github.com/markstash/markstash/internal/errors"
)

// YouTubeSource extracts video metadata via the oEmbed endpoint and the
// transcript via the timedtext captions endpoint when captions exist.
type YouTubeSource struct {
	client *http.Client

	// Endpoint overrides for tests.
	OEmbedURL    string
	TimedTextURL string
}

var _ ContentSource = (*YouTubeSource)(nil)

// NewYouTubeSource creates the YouTube content source.
func NewYouTubeSource(client *http.Client) *YouTubeSource {
	return &YouTubeSource{
		client:       client,
		OEmbedURL:    "https://www.youtube.com/oembed",
		TimedTextURL: "https://www.youtube.com/api/timedtext",
	}
}

// Name returns the platform tag.
func (s *YouTubeSource) Name() string { return bookmark.PlatformYouTube }

// Matches accepts youtube.com watch URLs and youtu.be short links.
func (s *YouTubeSource) Matches(u *url.URL) bool {
	if hostMatches(u.Host, "youtu.be") {
		return true
	}
	return hostMatches(u.Host, "youtube.com") &&
		(strings.HasPrefix(u.Path, "/watch") || strings.HasPrefix(u.Path, "/shorts/"))
}

// videoID extracts the video identifier from a watch or short-link URL.
func videoID(u *url.URL) string {
	if hostMatches(u.Host, "youtu.be") {
		return strings.TrimPrefix(u.Path, "/")
	}
	if strings.HasPrefix(u.Path, "/shorts/") {
		return strings.TrimPrefix(u.Path, "/shorts/")
	}
	return u.Query().Get("v")
}

type oembedResponse struct {
	Title      string `json:"title"`
	AuthorName string `json:"author_name"`
}

// Fetch retrieves title and author via oEmbed, then the English transcript
// when available. A missing transcript is not an error: the metadata alone
// is still indexable.
func (s *YouTubeSource) Fetch(ctx context.Context, rawURL string) (*bookmark.ContentDocument, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, mserrors.ValidationError("invalid youtube URL: "+rawURL, err)
	}
	id := videoID(u)
	if id == "" {
		return nil, mserrors.ValidationError("youtube URL has no video id: "+rawURL, nil)
	}

	meta, err := s.fetchOEmbed(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	transcript := s.fetchTranscript(ctx, id)

	doc := &bookmark.ContentDocument{
		Title: meta.Title,
		Text:  transcript,
		Metadata: map[string]string{
			"video_id": id,
			"author":   meta.AuthorName,
		},
	}
	if meta.AuthorName != "" {
		doc.Description = "Video by " + meta.AuthorName
	}
	return doc, nil
}

func (s *YouTubeSource) fetchOEmbed(ctx context.Context, videoURL string) (*oembedResponse, error) {
	q := url.Values{"url": {videoURL}, "format": {"json"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.OEmbedURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, mserrors.InternalError("failed to create oembed request", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, classifyFetchError(videoURL, 0, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := classifyFetchError(videoURL, resp.StatusCode, nil); err != nil {
		return nil, err
	}

	var meta oembedResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&meta); err != nil {
		return nil, mserrors.UnsupportedError("failed to decode oembed response", err)
	}
	return &meta, nil
}

// fetchTranscript returns the English caption track as plain text, or empty
// when captions are unavailable. Failures here never fail the extraction.
func (s *YouTubeSource) fetchTranscript(ctx context.Context, id string) string {
	q := url.Values{"v": {id}, "lang": {"en"}, "fmt": {"vtt"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.TimedTextURL+"?"+q.Encode(), nil)
	if err != nil {
		return ""
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return ""
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return ""
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return ""
	}
	return ParseVTT(string(data))
}
