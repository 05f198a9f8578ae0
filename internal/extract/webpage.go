package extract

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/markstash/markstash/internal/bookmark"
	mserrors "github.com/markstash/markstash/internal/errors"
)

// WebpageSource is the generic HTML fallback. It extracts the title,
// meta description, and readable body text from any page.
type WebpageSource struct {
	client *http.Client
}

var _ ContentSource = (*WebpageSource)(nil)

// NewWebpageSource creates the fallback HTML source.
func NewWebpageSource(client *http.Client) *WebpageSource {
	return &WebpageSource{client: client}
}

// Name returns the platform tag.
func (s *WebpageSource) Name() string { return bookmark.PlatformWebsite }

// Matches accepts every URL; the webpage source must be registered last.
func (s *WebpageSource) Matches(u *url.URL) bool { return true }

// Fetch downloads the page and extracts title, description, and body text.
func (s *WebpageSource) Fetch(ctx context.Context, rawURL string) (*bookmark.ContentDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, mserrors.ValidationError("invalid bookmark URL: "+rawURL, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, classifyFetchError(rawURL, 0, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := classifyFetchError(rawURL, resp.StatusCode, nil); err != nil {
		return nil, err
	}

	ct := resp.Header.Get("Content-Type")
	if ct != "" && !strings.Contains(ct, "html") && !strings.Contains(ct, "text/plain") {
		return nil, mserrors.UnsupportedError("unsupported content type "+ct+" at "+rawURL, nil)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, mserrors.UnsupportedError("failed to parse HTML at "+rawURL, err)
	}

	return parseHTML(doc), nil
}

// userAgent identifies markstash fetches; some sites reject the Go default.
const userAgent = "Mozilla/5.0 (compatible; markstash/1.0; +https://github.com/markstash/markstash)"

// parseHTML pulls title, description, and readable text out of a parsed page.
func parseHTML(doc *goquery.Document) *bookmark.ContentDocument {
	title := strings.TrimSpace(doc.Find("title").First().Text())
	if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && og != "" {
		title = strings.TrimSpace(og)
	}

	description := ""
	if d, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		description = strings.TrimSpace(d)
	} else if d, ok := doc.Find(`meta[property="og:description"]`).Attr("content"); ok {
		description = strings.TrimSpace(d)
	}

	// Drop non-content elements before collecting text.
	doc.Find("script, style, noscript, nav, header, footer, iframe, svg, form").Remove()

	root := doc.Find("article").First()
	if root.Length() == 0 {
		root = doc.Find("main").First()
	}
	if root.Length() == 0 {
		root = doc.Find("body").First()
	}

	var paragraphs []string
	root.Find("p, h1, h2, h3, h4, li, blockquote, pre").Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if len(text) > 0 {
			paragraphs = append(paragraphs, text)
		}
	})

	text := strings.Join(paragraphs, "\n\n")
	if text == "" {
		// Paragraph-less page: fall back to all visible text.
		text = squashWhitespace(root.Text())
	}

	return &bookmark.ContentDocument{
		Title:       title,
		Description: description,
		Text:        text,
	}
}

// squashWhitespace collapses runs of whitespace into single spaces.
func squashWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
