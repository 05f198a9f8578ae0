package extract

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v57/github"

	"github.com/markstash/markstash/internal/bookmark"
	mserrors "github.com/markstash/markstash/internal/errors"
)

// GitHubSource extracts repository metadata and README content via the
// GitHub API. An optional token raises the rate limit; anonymous access
// works for public repositories.
type GitHubSource struct {
	client *github.Client
}

var _ ContentSource = (*GitHubSource)(nil)

// NewGitHubSource creates the GitHub content source.
func NewGitHubSource(httpClient *http.Client, token string) *GitHubSource {
	gh := github.NewClient(httpClient)
	if token != "" {
		gh = gh.WithAuthToken(token)
	}
	return &GitHubSource{client: gh}
}

// Name returns the platform tag.
func (s *GitHubSource) Name() string { return bookmark.PlatformGitHub }

// Matches accepts github.com repository URLs (owner/repo, optionally deeper
// paths like /tree or /blob).
func (s *GitHubSource) Matches(u *url.URL) bool {
	if !hostMatches(u.Host, "github.com") {
		return false
	}
	owner, repo := repoPath(u)
	return owner != "" && repo != ""
}

// repoPath splits a github.com URL path into owner and repository.
func repoPath(u *url.URL) (owner, repo string) {
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", ""
	}
	// Non-repo top-level pages (settings, marketplace, ...) have no README
	// and are handled by the webpage fallback.
	switch parts[0] {
	case "settings", "marketplace", "topics", "collections", "features", "orgs":
		return "", ""
	}
	return parts[0], parts[1]
}

// Fetch retrieves the repository description, topics, language, and README.
func (s *GitHubSource) Fetch(ctx context.Context, rawURL string) (*bookmark.ContentDocument, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, mserrors.ValidationError("invalid github URL: "+rawURL, err)
	}
	owner, name := repoPath(u)
	if owner == "" {
		return nil, mserrors.ValidationError("github URL is not a repository: "+rawURL, nil)
	}

	repo, resp, err := s.client.Repositories.Get(ctx, owner, name)
	if err != nil {
		return nil, classifyGitHubError(rawURL, resp, err)
	}

	readme := ""
	if rm, _, err := s.client.Repositories.GetReadme(ctx, owner, name, nil); err == nil {
		if content, err := rm.GetContent(); err == nil {
			readme = content
		}
	}

	doc := &bookmark.ContentDocument{
		Title:       repo.GetFullName(),
		Description: repo.GetDescription(),
		Text:        readme,
		Metadata: map[string]string{
			"language": repo.GetLanguage(),
			"stars":    github.Stringify(repo.GetStargazersCount()),
		},
	}
	if len(repo.Topics) > 0 {
		doc.Metadata["topics"] = strings.Join(repo.Topics, ",")
	}
	return doc, nil
}

// classifyGitHubError maps API failures onto the error taxonomy.
func classifyGitHubError(rawURL string, resp *github.Response, err error) error {
	if resp == nil {
		return mserrors.UnreachableError("failed to reach github for "+rawURL, err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return mserrors.UnsupportedError("github repository not found: "+rawURL, err)
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
		return mserrors.UnreachableError("github rate limited for "+rawURL, err)
	case resp.StatusCode >= 500:
		return mserrors.UnreachableError("github returned transient error for "+rawURL, err)
	default:
		return mserrors.UnsupportedError("github rejected request for "+rawURL, err)
	}
}
