package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ralt/ghpm/internal/models"
)

const (
	// DefaultBaseURL is the public GitHub API
	DefaultBaseURL = "https://api.github.com"

	defaultUserAgent = "ghpm"

	// Releases fetched per API page
	defaultPerPage = 30

	// Upper bound on pagination
	maxPages = 3

	// Upper bound on a JSON API response (10 MB)
	maxJSONResponseBytes = 10 << 20
)

// RateLimitError is returned when the GitHub API rate limit is exceeded
type RateLimitError struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Error implements the error interface
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("GitHub API rate limit exceeded (%d remaining, resets at %s)",
		e.Remaining, e.ResetAt.UTC().Format("15:04 UTC"))
}

type githubRelease struct {
	TagName    string        `json:"tag_name"`
	Name       string        `json:"name"`
	Prerelease bool          `json:"prerelease"`
	Draft      bool          `json:"draft"`
	Assets     []githubAsset `json:"assets"`
}

type githubAsset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	Size               int64  `json:"size"`
}

// Client queries the GitHub Releases API and downloads assets
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	userAgent  string

	// Serialises release queries
	mu sync.Mutex
}

// ClientOption configures a Client during construction
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(c *http.Client) ClientOption {
	return func(g *Client) {
		g.httpClient = c
	}
}

// WithBaseURL overrides the API base URL
func WithBaseURL(base string) ClientOption {
	return func(g *Client) {
		if base != "" {
			g.baseURL = strings.TrimRight(base, "/")
		}
	}
}

// WithToken sets a token for authenticated requests
func WithToken(token string) ClientOption {
	return func(g *Client) {
		g.token = token
	}
}

// WithUserAgent sets the User-Agent header sent with every request
func WithUserAgent(ua string) ClientOption {
	return func(g *Client) {
		if ua != "" {
			g.userAgent = ua
		}
	}
}

// NewClient creates a Client with defaults for the public API
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: http.DefaultClient,
		baseURL:    DefaultBaseURL,
		userAgent:  defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetReleasesForPackage lists the published releases of the package's
// repository, newest first, with drafts removed
func (c *Client) GetReleasesForPackage(ctx context.Context, pkg models.Package) ([]models.Release, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	owner, repo := pkg.Owner(), pkg.Name()
	if owner == "" || repo == "" {
		return nil, models.NewError(models.ErrUserInput, pkg.Url, fmt.Errorf("not a repository url"))
	}

	pageURL := fmt.Sprintf("%s/repos/%s/%s/releases?per_page=%d",
		c.baseURL, url.PathEscape(owner), url.PathEscape(repo), defaultPerPage)

	var all []models.Release
	for page := 0; page < maxPages && pageURL != ""; page++ {
		logrus.Debugf("Fetching releases page %d for %s/%s", page+1, owner, repo)

		releases, next, err := c.fetchReleasesPage(ctx, pageURL)
		if err != nil {
			return nil, models.NewError(models.ErrTransient, pkg.Id(), fmt.Errorf("listing releases: %w", err))
		}

		for _, gr := range releases {
			if gr.Draft {
				continue
			}
			all = append(all, toRelease(gr))
		}
		pageURL = next
	}

	logrus.Debugf("Found %d releases for %s/%s", len(all), owner, repo)
	return all, nil
}

func (c *Client) fetchReleasesPage(ctx context.Context, pageURL string) ([]githubRelease, string, error) {
	resp, err := c.doRequest(ctx, pageURL)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if err := checkRateLimit(resp); err != nil {
		return nil, "", err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var raw []githubRelease
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJSONResponseBytes)).Decode(&raw); err != nil {
		return nil, "", fmt.Errorf("decoding releases: %w", err)
	}

	return raw, parseLinkHeader(resp.Header.Get("Link")), nil
}

// Download fetches url into memory
func (c *Client) Download(ctx context.Context, assetURL string) ([]byte, error) {
	resp, err := c.doRequest(ctx, assetURL)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", redactURL(assetURL), err)
	}
	defer resp.Body.Close()

	if err := checkRateLimit(resp); err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading %s: unexpected status %d", redactURL(assetURL), resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", redactURL(assetURL), err)
	}
	return data, nil
}

func (c *Client) doRequest(ctx context.Context, reqURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("User-Agent", c.userAgent)

	// Never leak the token to third-party download hosts
	if c.token != "" && isGitHubHost(req.URL, c.baseURL) {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	return resp, nil
}

// checkRateLimit returns a RateLimitError when the remaining quota is zero
func checkRateLimit(resp *http.Response) error {
	remaining := resp.Header.Get("X-RateLimit-Remaining")
	if remaining == "" {
		return nil
	}

	rem, err := strconv.Atoi(remaining)
	if err != nil || rem > 0 {
		return nil
	}

	limit, _ := strconv.Atoi(resp.Header.Get("X-RateLimit-Limit"))
	resetUnix, _ := strconv.ParseInt(resp.Header.Get("X-RateLimit-Reset"), 10, 64)

	return &RateLimitError{
		Limit:     limit,
		Remaining: 0,
		ResetAt:   time.Unix(resetUnix, 0),
	}
}

// parseLinkHeader extracts the "next" page URL from a Link header
func parseLinkHeader(header string) string {
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if !strings.Contains(part, `rel="next"`) {
			continue
		}

		start := strings.Index(part, "<")
		end := strings.Index(part, ">")
		if start >= 0 && end > start {
			return part[start+1 : end]
		}
	}
	return ""
}

func toRelease(gr githubRelease) models.Release {
	assets := make([]models.ReleaseAsset, 0, len(gr.Assets))
	names := make(map[string]string, len(gr.Assets))
	for _, ga := range gr.Assets {
		names[ga.Name] = ga.BrowserDownloadURL
	}

	for _, ga := range gr.Assets {
		asset := models.ReleaseAsset{
			Name:               ga.Name,
			BrowserDownloadURL: ga.BrowserDownloadURL,
			Size:               ga.Size,
		}
		for _, ext := range []string{".asc", ".sig"} {
			if sigURL, ok := names[ga.Name+ext]; ok {
				asset.SignatureURL = sigURL
				break
			}
		}
		assets = append(assets, asset)
	}

	return models.Release{
		TagName:    gr.TagName,
		Name:       gr.Name,
		Prerelease: gr.Prerelease,
		Assets:     assets,
	}
}

// isGitHubHost reports whether reqURL targets the API host, or github.com
// when the API is the public one
func isGitHubHost(reqURL *url.URL, baseURL string) bool {
	base, err := url.Parse(baseURL)
	if err != nil {
		return false
	}
	if strings.EqualFold(reqURL.Host, base.Host) {
		return true
	}
	return strings.EqualFold(base.Host, "api.github.com") && strings.EqualFold(reqURL.Host, "github.com")
}

// redactURL strips query parameters and fragments for logging
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid-url>"
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
