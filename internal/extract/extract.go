// Package extract fetches bookmark URLs and normalizes their content into
// documents for chunking. Each supported platform has a ContentSource; the
// Dispatcher picks the first source that matches a URL, with a generic
// webpage source as the fallback.
package extract

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/markstash/markstash/internal/bookmark"
	mserrors "github.com/markstash/markstash/internal/errors"
)

// DefaultFetchTimeout bounds a single content fetch.
const DefaultFetchTimeout = 30 * time.Second

// maxBodyBytes caps how much of a response we read.
const maxBodyBytes = 10 << 20 // 10 MiB

// ContentSource extracts content from URLs of one platform.
type ContentSource interface {
	// Name returns the platform tag this source produces.
	Name() string

	// Matches reports whether this source handles the given URL.
	Matches(u *url.URL) bool

	// Fetch downloads and normalizes the content behind the URL.
	Fetch(ctx context.Context, rawURL string) (*bookmark.ContentDocument, error)
}

// Dispatcher routes URLs to content sources in registration order.
type Dispatcher struct {
	sources []ContentSource
}

// NewDispatcher creates a dispatcher with the default source set: platform
// sources first, generic webpage last.
func NewDispatcher(client *http.Client, githubToken string) *Dispatcher {
	if client == nil {
		client = &http.Client{Timeout: DefaultFetchTimeout}
	}
	return &Dispatcher{
		sources: []ContentSource{
			NewYouTubeSource(client),
			NewTwitterSource(client),
			NewGitHubSource(client, githubToken),
			NewRedditSource(client),
			NewPDFSource(client),
			NewWebpageSource(client),
		},
	}
}

// NewDispatcherWithSources creates a dispatcher over an explicit source
// list, used by tests.
func NewDispatcherWithSources(sources ...ContentSource) *Dispatcher {
	return &Dispatcher{sources: sources}
}

// DetectPlatform returns the platform tag for a URL without fetching it.
func (d *Dispatcher) DetectPlatform(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return bookmark.PlatformWebsite
	}
	for _, s := range d.sources {
		if s.Matches(u) {
			return s.Name()
		}
	}
	return bookmark.PlatformWebsite
}

// Extract fetches and normalizes the content behind a URL. The returned
// document always carries the platform tag of the source that produced it.
func (d *Dispatcher) Extract(ctx context.Context, rawURL string) (*bookmark.ContentDocument, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, mserrors.ValidationError("invalid bookmark URL: "+rawURL, err)
	}

	for _, s := range d.sources {
		if !s.Matches(u) {
			continue
		}
		doc, err := s.Fetch(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		if doc.Empty() {
			return nil, mserrors.EmptyContentError("no indexable content at " + rawURL)
		}
		doc.Platform = s.Name()
		return doc, nil
	}

	return nil, mserrors.UnsupportedError("no content source for "+rawURL, nil)
}

// hostMatches reports whether host equals domain or is a subdomain of it.
func hostMatches(host, domain string) bool {
	host = strings.ToLower(host)
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// classifyFetchError turns transport failures into retryable unreachable
// errors and HTTP status codes into the appropriate taxonomy entry.
func classifyFetchError(rawURL string, status int, err error) error {
	if err != nil {
		return mserrors.UnreachableError("failed to fetch "+rawURL, err)
	}
	switch {
	case status == http.StatusNotFound || status == http.StatusGone:
		return mserrors.UnsupportedError("content no longer available at "+rawURL, nil)
	case status == http.StatusTooManyRequests || status >= 500:
		return mserrors.UnreachableError("source returned transient error for "+rawURL, nil).
			WithDetail("status", http.StatusText(status))
	case status >= 400:
		return mserrors.UnsupportedError("source rejected request for "+rawURL, nil).
			WithDetail("status", http.StatusText(status))
	}
	return nil
}
