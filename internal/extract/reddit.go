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

// RedditSource extracts post title, self text, and top-level comments via
// reddit's public .json endpoint.
type RedditSource struct {
	client *http.Client
}

var _ ContentSource = (*RedditSource)(nil)

// maxRedditComments caps how many top-level comments we index per post.
const maxRedditComments = 20

// NewRedditSource creates the reddit content source.
func NewRedditSource(client *http.Client) *RedditSource {
	return &RedditSource{client: client}
}

// Name returns the platform tag.
func (s *RedditSource) Name() string { return bookmark.PlatformReddit }

// Matches accepts reddit.com comment-thread URLs.
func (s *RedditSource) Matches(u *url.URL) bool {
	return hostMatches(u.Host, "reddit.com") && strings.Contains(u.Path, "/comments/")
}

// redditThing mirrors the slice of reddit's listing JSON we consume.
type redditThing struct {
	Data struct {
		Children []struct {
			Data struct {
				Title     string `json:"title"`
				Selftext  string `json:"selftext"`
				Body      string `json:"body"`
				Subreddit string `json:"subreddit"`
				Author    string `json:"author"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// Fetch retrieves the thread JSON and flattens it into a document.
func (s *RedditSource) Fetch(ctx context.Context, rawURL string) (*bookmark.ContentDocument, error) {
	jsonURL := strings.TrimSuffix(rawURL, "/") + ".json"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jsonURL, nil)
	if err != nil {
		return nil, mserrors.ValidationError("invalid reddit URL: "+rawURL, err)
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

	// A thread endpoint returns [post listing, comment listing].
	var listings []redditThing
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&listings); err != nil {
		return nil, mserrors.UnsupportedError("failed to decode reddit thread", err)
	}
	if len(listings) == 0 || len(listings[0].Data.Children) == 0 {
		return nil, mserrors.EmptyContentError("reddit thread has no post: " + rawURL)
	}

	post := listings[0].Data.Children[0].Data

	var parts []string
	if post.Selftext != "" {
		parts = append(parts, post.Selftext)
	}
	if len(listings) > 1 {
		count := 0
		for _, child := range listings[1].Data.Children {
			body := strings.TrimSpace(child.Data.Body)
			if body == "" || body == "[deleted]" || body == "[removed]" {
				continue
			}
			parts = append(parts, body)
			count++
			if count >= maxRedditComments {
				break
			}
		}
	}

	return &bookmark.ContentDocument{
		Title: post.Title,
		Text:  strings.Join(parts, "\n\n"),
		Metadata: map[string]string{
			"subreddit": post.Subreddit,
			"author":    post.Author,
		},
	}, nil
}
