// Package fetcher downloads release archives from the GitHub release
// listing, feeding the same ingestion pipeline as direct uploads.
package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aopkg/aopkg-server/internal/config"
	"github.com/aopkg/aopkg-server/internal/telemetry"
)

const (
	// MaxArchiveBytes caps a downloaded asset. Transfers beyond it abort
	// rather than buffering unbounded data.
	MaxArchiveBytes = 15 << 20

	// FetchTimeout bounds the whole listing+download exchange, for parity
	// with the upload path's parse deadline.
	FetchTimeout = 30 * time.Second

	userAgent    = "aopkg"
	acceptGitHub = "application/vnd.github.v3+json"
)

var (
	// ErrNoRelease is returned when the repository has no published release.
	ErrNoRelease = errors.New("no release found")

	// ErrTooLarge is returned when the asset exceeds MaxArchiveBytes. No
	// partial bytes are returned.
	ErrTooLarge = errors.New("release asset exceeds size limit")

	// ErrTooManyRedirects is returned when the asset download redirects
	// more than once.
	ErrTooManyRedirects = errors.New("release asset redirected more than once")

	// ErrMissingLocation is returned for a redirect-status response
	// without a Location header.
	ErrMissingLocation = errors.New("redirect response carries no location")
)

// StatusError reports an unexpected HTTP status from the release endpoint.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d for URL %s", e.StatusCode, e.URL)
}

// Asset is one binary attachment of a release.
type Asset struct {
	Name               string `json:"name"`
	URL                string `json:"url"`
	BrowserDownloadURL string `json:"browser_download_url"`
	ContentType        string `json:"content_type"`
}

// Release is one entry of the release listing, newest first.
type Release struct {
	ZipballURL string  `json:"zipball_url"`
	Assets     []Asset `json:"assets"`
}

// Client fetches release archives. The base URL comes from configuration
// so tests can inject a fake endpoint.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
	metrics *telemetry.Metrics
}

// Option configures the client.
type Option func(*Client)

// WithMetrics records one fetch outcome per attempt on the given collector.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// New creates a release fetcher for the configured API endpoint.
func New(cfg config.GitHubConfig, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(cfg.APIBaseURL, "/"),
		http: &http.Client{
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				// One hop is the provider's normal asset indirection.
				if len(via) > 1 {
					return ErrTooManyRedirects
				}
				return nil
			},
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchLatestRelease returns the archive bytes of the most recent release
// of "owner/repo". Asset selection prefers a zip-typed binary attachment
// and falls back to the auto-generated source archive.
func (c *Client) FetchLatestRelease(ctx context.Context, repo string) ([]byte, error) {
	data, err := c.fetchLatestRelease(ctx, repo)
	c.metrics.RecordFetch(fetchOutcome(err))
	return data, err
}

func (c *Client) fetchLatestRelease(ctx context.Context, repo string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, FetchTimeout)
	defer cancel()

	releases, err := c.listReleases(ctx, repo)
	if err != nil {
		return nil, err
	}
	if len(releases) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoRelease, repo)
	}

	url := chooseAssetURL(&releases[0])
	c.logger.Debug("downloading release asset",
		zap.String("repository", repo),
		zap.String("url", url),
	)
	return c.download(ctx, url)
}

// fetchOutcome maps a fetch result to its metric label.
func fetchOutcome(err error) string {
	switch {
	case err == nil:
		return telemetry.OutcomeOK
	case errors.Is(err, ErrNoRelease):
		return telemetry.OutcomeNoRelease
	case errors.Is(err, ErrTooLarge):
		return telemetry.OutcomeTooLarge
	case errors.Is(err, ErrTooManyRedirects), errors.Is(err, ErrMissingLocation):
		return telemetry.OutcomeRedirect
	default:
		return telemetry.OutcomeError
	}
}

func (c *Client) listReleases(ctx context.Context, repo string) ([]Release, error) {
	url := fmt.Sprintf("%s/repos/%s/releases", c.baseURL, repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build release listing request: %w", err)
	}
	req.Header.Set("Accept", acceptGitHub)
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("release listing request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: url}
	}

	var releases []Release
	if err := json.NewDecoder(resp.Body).Decode(&releases); err != nil {
		return nil, fmt.Errorf("failed to decode release listing: %w", err)
	}
	return releases, nil
}

// chooseAssetURL prefers an attached asset that is declared or named as a
// zip; otherwise the release's source archive link.
func chooseAssetURL(release *Release) string {
	for i := range release.Assets {
		asset := &release.Assets[i]
		if asset.ContentType == "application/zip" || strings.HasSuffix(asset.Name, ".zip") {
			return asset.BrowserDownloadURL
		}
	}
	return release.ZipballURL
}

func (c *Client) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build asset request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, ErrTooManyRedirects) {
			return nil, ErrTooManyRedirects
		}
		return nil, fmt.Errorf("asset download failed: %w", err)
	}
	defer resp.Body.Close()

	// The client returns redirect responses unfollowed when Location is
	// absent; treat that as terminal rather than handing back HTML.
	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		return nil, fmt.Errorf("%w: HTTP %d from %s", ErrMissingLocation, resp.StatusCode, url)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: url}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxArchiveBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read asset body: %w", err)
	}
	if len(data) > MaxArchiveBytes {
		return nil, fmt.Errorf("%w: more than %d bytes from %s", ErrTooLarge, MaxArchiveBytes, url)
	}
	return data, nil
}
