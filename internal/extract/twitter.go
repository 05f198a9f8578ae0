package extract

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/markstash/markstash/internal/bookmark"
	mserrors "github.com/markstash/markstash/internal/errors"
)

// TwitterSource extracts tweet text via the public oEmbed endpoint, which
// works without API credentials.
type TwitterSource struct {
	client *http.Client

	// OEmbedURL override for tests.
	OEmbedURL string
}

var _ ContentSource = (*TwitterSource)(nil)

// NewTwitterSource creates the Twitter/X content source.
func NewTwitterSource(client *http.Client) *TwitterSource {
	return &TwitterSource{
		client:    client,
		OEmbedURL: "https://publish.twitter.com/oembed",
	}
}

// Name returns the platform tag.
func (s *TwitterSource) Name() string { return bookmark.PlatformTwitter }

// Matches accepts twitter.com and x.com status URLs.
func (s *TwitterSource) Matches(u *url.URL) bool {
	if !hostMatches(u.Host, "twitter.com") && !hostMatches(u.Host, "x.com") {
		return false
	}
	return strings.Contains(u.Path, "/status/")
}

type twitterOEmbedResponse struct {
	AuthorName string `json:"author_name"`
	HTML       string `json:"html"`
}

// Fetch retrieves the tweet via oEmbed and strips the embed HTML down to
// plain text.
func (s *TwitterSource) Fetch(ctx context.Context, rawURL string) (*bookmark.ContentDocument, error) {
	// The oEmbed endpoint only serves twitter.com URLs.
	canonical := strings.Replace(rawURL, "//x.com/", "//twitter.com/", 1)

	q := url.Values{"url": {canonical}, "omit_script": {"true"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.OEmbedURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, mserrors.InternalError("failed to create oembed request", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, classifyFetchError(rawURL, 0, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := classifyFetchError(rawURL, resp.StatusCode, nil); err != nil {
		return nil, err
	}

	var meta twitterOEmbedResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&meta); err != nil {
		return nil, mserrors.UnsupportedError("failed to decode tweet embed", err)
	}

	text, err := embedHTMLToText(meta.HTML)
	if err != nil {
		return nil, mserrors.UnsupportedError("failed to parse tweet embed", err)
	}

	title := "Tweet"
	if meta.AuthorName != "" {
		title = "Tweet by " + meta.AuthorName
	}

	return &bookmark.ContentDocument{
		Title: title,
		Text:  text,
		Metadata: map[string]string{
			"author": meta.AuthorName,
		},
	}, nil
}

// embedHTMLToText strips the oEmbed blockquote HTML down to the tweet text.
func embedHTMLToText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	block := doc.Find("blockquote p").First()
	if block.Length() > 0 {
		return strings.TrimSpace(block.Text()), nil
	}
	return squashWhitespace(doc.Text()), nil
}
