// Package oauth exchanges an authorization code for the stable user id the
// ingestion pipeline consumes. Endpoints are injected through configuration
// rather than read from process-wide state, so tests run against fakes.
package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/aopkg/aopkg-server/internal/config"
)

// GitHub defaults, used when the configuration leaves endpoints empty.
const (
	defaultAuthorizeURL = "https://github.com/login/oauth/authorize"
	defaultTokenURL     = "https://github.com/login/oauth/access_token"
	defaultUserURL      = "https://api.github.com/user"

	userAgent    = "aopkg"
	acceptGitHub = "application/vnd.github.v3+json"
)

// Exchanger resolves OAuth authorization codes to user ids.
type Exchanger struct {
	oauth   *oauth2.Config
	userURL string
	http    *http.Client
}

// Option configures the exchanger.
type Option func(*Exchanger)

// WithHTTPClient overrides the HTTP client used for all exchanges.
func WithHTTPClient(client *http.Client) Option {
	return func(e *Exchanger) {
		e.http = client
	}
}

// New constructs an exchanger from configuration.
func New(cfg config.OAuthConfig, opts ...Option) *Exchanger {
	authorizeURL := cfg.AuthorizeURL
	if authorizeURL == "" {
		authorizeURL = defaultAuthorizeURL
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}
	userURL := cfg.UserURL
	if userURL == "" {
		userURL = defaultUserURL
	}

	e := &Exchanger{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  authorizeURL,
				TokenURL: tokenURL,
			},
		},
		userURL: userURL,
		http:    http.DefaultClient,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AuthorizeURL returns the URL that starts the authorization-code flow.
func (e *Exchanger) AuthorizeURL(state string) string {
	return e.oauth.AuthCodeURL(state)
}

// Exchange swaps an authorization code for an access token.
func (e *Exchanger) Exchange(ctx context.Context, code string) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, e.http)
	token, err := e.oauth.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("token exchange failed: %w", err)
	}
	return token.AccessToken, nil
}

// UserID resolves an access token to the provider's stable user id.
func (e *Exchanger) UserID(ctx context.Context, accessToken string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.userURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build user request: %w", err)
	}
	req.Header.Set("Authorization", "token "+accessToken)
	req.Header.Set("Accept", acceptGitHub)
	req.Header.Set("User-Agent", userAgent)

	resp, err := e.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("user request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("user endpoint returned HTTP %d", resp.StatusCode)
	}

	var user struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return 0, fmt.Errorf("failed to decode user response: %w", err)
	}
	return user.ID, nil
}
