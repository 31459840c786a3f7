// Package upstream talks to the services that publish the ontology: the
// GitHub repository hosting the OBO file and the Ontology Lookup Service.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/FocuswithJustin/obosync/core/errors"
	"github.com/FocuswithJustin/obosync/internal/cache"
	"github.com/FocuswithJustin/obosync/internal/logging"
)

// ErrRateLimited is returned when GitHub answers 403.
var ErrRateLimited = errors.New("GitHub API rate limit exceeded")

// maxDownloadSize bounds a single ontology download.
const maxDownloadSize = 256 << 20

// CommitInfo describes the latest commit touching the tracked file.
type CommitInfo struct {
	SHA          string    `json:"sha"`
	LastModified time.Time `json:"last_modified"`
	Message      string    `json:"message"`
	Author       string    `json:"author"`
	URL          string    `json:"url"`
}

// GitHubClient reads commit metadata and raw file content from GitHub.
type GitHubClient struct {
	APIBase string
	Owner   string
	Repo    string
	Path    string
	Branch  string
	PerPage int
	RawURL  string
	RawBase string
	client  *http.Client
	commits *cache.TTLCache[string, CommitInfo]
}

// GitHubOption configures a GitHubClient.
type GitHubOption func(*GitHubClient)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) GitHubOption {
	return func(g *GitHubClient) {
		g.client = c
	}
}

// WithRawBase pins downloads to the requested commit by fetching
// {base}/{owner}/{repo}/{sha}/{path} instead of the branch-head URL.
func WithRawBase(base string) GitHubOption {
	return func(g *GitHubClient) {
		g.RawBase = strings.TrimRight(base, "/")
	}
}

// WithCommitCache remembers the latest commit for ttl, so repeated status
// checks stay under the unauthenticated rate limit.
func WithCommitCache(ttl time.Duration) GitHubOption {
	return func(g *GitHubClient) {
		g.commits = cache.New[string, CommitInfo](ttl)
	}
}

// NewGitHubClient returns a client for one file in one repository.
func NewGitHubClient(apiBase, owner, repo, path, branch, rawURL string, perPage int, timeout time.Duration, opts ...GitHubOption) *GitHubClient {
	if perPage < 1 {
		perPage = 1
	}
	g := &GitHubClient{
		APIBase: apiBase,
		Owner:   owner,
		Repo:    repo,
		Path:    path,
		Branch:  branch,
		PerPage: perPage,
		RawURL:  rawURL,
		client:  &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type commitResponse struct {
	SHA     string `json:"sha"`
	HTMLURL string `json:"html_url"`
	Commit  struct {
		Message string `json:"message"`
		Author  struct {
			Name string `json:"name"`
		} `json:"author"`
		Committer struct {
			Date time.Time `json:"date"`
		} `json:"committer"`
	} `json:"commit"`
}

// LatestCommit returns the most recent commit that touched the file.
func (g *GitHubClient) LatestCommit(ctx context.Context) (*CommitInfo, error) {
	q := url.Values{}
	q.Set("path", g.Path)
	if g.Branch != "" {
		q.Set("sha", g.Branch)
	}
	q.Set("per_page", strconv.Itoa(g.PerPage))
	endpoint := fmt.Sprintf("%s/repos/%s/%s/commits?%s", g.APIBase, url.PathEscape(g.Owner), url.PathEscape(g.Repo), q.Encode())

	if g.commits == nil {
		return g.latestCommit(ctx, endpoint)
	}
	info, err := g.commits.GetOrLoad(endpoint, func() (CommitInfo, error) {
		c, err := g.latestCommit(ctx, endpoint)
		if err != nil {
			return CommitInfo{}, err
		}
		return *c, nil
	})
	if err != nil {
		return nil, err
	}
	return &info, nil
}

func (g *GitHubClient) latestCommit(ctx context.Context, endpoint string) (*CommitInfo, error) {
	body, err := g.get(ctx, endpoint, "application/vnd.github+json")
	if err != nil {
		return nil, err
	}

	var commits []commitResponse
	if err := json.Unmarshal(body, &commits); err != nil {
		return nil, &apperrors.ParseError{Format: "GitHub commits", Path: endpoint, Message: err.Error()}
	}
	if len(commits) == 0 {
		return nil, apperrors.NewNotFound("commit", g.Path)
	}

	c := commits[0]
	return &CommitInfo{
		SHA:          c.SHA,
		LastModified: c.Commit.Committer.Date,
		Message:      c.Commit.Message,
		Author:       c.Commit.Author.Name,
		URL:          c.HTMLURL,
	}, nil
}

// Download fetches the raw file at commit. Without a raw base or a commit
// sha it falls back to RawURL, which serves the branch head.
func (g *GitHubClient) Download(ctx context.Context, commit *CommitInfo) ([]byte, error) {
	return g.get(ctx, g.downloadURL(commit), "")
}

func (g *GitHubClient) downloadURL(commit *CommitInfo) string {
	if g.RawBase == "" || commit == nil || commit.SHA == "" {
		return g.RawURL
	}
	return fmt.Sprintf("%s/%s/%s/%s/%s", g.RawBase,
		url.PathEscape(g.Owner), url.PathEscape(g.Repo), url.PathEscape(commit.SHA), strings.TrimLeft(g.Path, "/"))
}

func (g *GitHubClient) get(ctx context.Context, endpoint, accept string) ([]byte, error) {
	return fetch(ctx, g.client, endpoint, accept)
}

// fetch issues a GET and maps GitHub-style status codes to errors.
func fetch(ctx context.Context, client *http.Client, endpoint, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	req.Header.Set("User-Agent", "obosync")

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, apperrors.NewIO("fetch", endpoint, err)
	}
	defer resp.Body.Close()
	logging.HTTPFetch(ctx, http.MethodGet, endpoint, resp.StatusCode, time.Since(start))

	switch {
	case resp.StatusCode == http.StatusForbidden:
		return nil, ErrRateLimited
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperrors.NewNotFound("resource", endpoint)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, apperrors.NewIO("fetch", endpoint, fmt.Errorf("unexpected status %s", resp.Status))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadSize+1))
	if err != nil {
		return nil, apperrors.NewIO("read", endpoint, err)
	}
	if len(body) > maxDownloadSize {
		return nil, apperrors.NewIO("read", endpoint, fmt.Errorf("response exceeds %d bytes", maxDownloadSize))
	}
	return body, nil
}
