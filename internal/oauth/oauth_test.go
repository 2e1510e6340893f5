package oauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aopkg/aopkg-server/internal/config"
)

func newTestExchanger(t *testing.T) (*Exchanger, *httptest.Server) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.FormValue("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-123","token_type":"bearer"}`))
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "token tok-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":4242,"login":"someone"}`))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	exchanger := New(config.OAuthConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		AuthorizeURL: server.URL + "/login/oauth/authorize",
		TokenURL:     server.URL + "/login/oauth/access_token",
		UserURL:      server.URL + "/user",
	}, WithHTTPClient(server.Client()))
	return exchanger, server
}

func TestAuthorizeURL(t *testing.T) {
	t.Parallel()

	exchanger, server := newTestExchanger(t)

	raw := exchanger.AuthorizeURL("state-xyz")
	parsed, err := url.Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, server.URL+"/login/oauth/authorize", parsed.Scheme+"://"+parsed.Host+parsed.Path)
	assert.Equal(t, "client-id", parsed.Query().Get("client_id"))
	assert.Equal(t, "state-xyz", parsed.Query().Get("state"))
}

func TestExchange(t *testing.T) {
	t.Parallel()

	exchanger, _ := newTestExchanger(t)

	token, err := exchanger.Exchange(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, "tok-123", token)
}

func TestExchangeRejectedCode(t *testing.T) {
	t.Parallel()

	exchanger, _ := newTestExchanger(t)

	_, err := exchanger.Exchange(context.Background(), "bad-code")
	require.Error(t, err)
}

func TestUserID(t *testing.T) {
	t.Parallel()

	exchanger, _ := newTestExchanger(t)

	id, err := exchanger.UserID(context.Background(), "tok-123")
	require.NoError(t, err)
	assert.Equal(t, int64(4242), id)
}

func TestUserIDBadToken(t *testing.T) {
	t.Parallel()

	exchanger, _ := newTestExchanger(t)

	_, err := exchanger.UserID(context.Background(), "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 401")
}

func TestDefaultsApplied(t *testing.T) {
	t.Parallel()

	exchanger := New(config.OAuthConfig{ClientID: "x", ClientSecret: "y"})
	assert.Contains(t, exchanger.AuthorizeURL("s"), "https://github.com/login/oauth/authorize")
	assert.Equal(t, defaultUserURL, exchanger.userURL)
}
