package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aopkg/aopkg-server/internal/config"
	"github.com/aopkg/aopkg-server/internal/telemetry"
)

func newClient(baseURL string) *Client {
	return New(config.GitHubConfig{APIBaseURL: baseURL}, zap.NewNop())
}

func listing(t *testing.T, releases []Release) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/vnd.github.v3+json", r.Header.Get("Accept"))
		require.Equal(t, "aopkg", r.Header.Get("User-Agent"))
		require.NoError(t, json.NewEncoder(w).Encode(releases))
	}
}

func TestFetchLatestReleaseDirect(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/asset.zip", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("zip-bytes"))
	})
	mux.HandleFunc("/repos/owner/repo/releases", listing(t, []Release{{
		Assets: []Asset{{
			Name:               "plugin.zip",
			ContentType:        "application/zip",
			BrowserDownloadURL: srv.URL + "/asset.zip",
		}},
	}}))

	data, err := newClient(srv.URL).FetchLatestRelease(context.Background(), "owner/repo")
	require.NoError(t, err)
	assert.Equal(t, []byte("zip-bytes"), data)
}

func TestFetchLatestReleaseOneRedirect(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/asset.zip", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, srv.URL+"/real.zip", http.StatusFound)
	})
	mux.HandleFunc("/real.zip", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("redirected-bytes"))
	})
	mux.HandleFunc("/repos/owner/repo/releases", listing(t, []Release{{
		Assets: []Asset{{
			Name:               "plugin.zip",
			ContentType:        "application/zip",
			BrowserDownloadURL: srv.URL + "/asset.zip",
		}},
	}}))

	data, err := newClient(srv.URL).FetchLatestRelease(context.Background(), "owner/repo")
	require.NoError(t, err)
	assert.Equal(t, []byte("redirected-bytes"), data)
}

func TestFetchLatestReleaseTwoRedirects(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/hop1", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, srv.URL+"/hop2", http.StatusFound)
	})
	mux.HandleFunc("/hop2", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, srv.URL+"/real.zip", http.StatusFound)
	})
	mux.HandleFunc("/repos/owner/repo/releases", listing(t, []Release{{
		Assets: []Asset{{
			Name:               "plugin.zip",
			ContentType:        "application/zip",
			BrowserDownloadURL: srv.URL + "/hop1",
		}},
	}}))

	_, err := newClient(srv.URL).FetchLatestRelease(context.Background(), "owner/repo")
	require.ErrorIs(t, err, ErrTooManyRedirects)
}

func TestFetchLatestReleaseMissingLocation(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/asset.zip", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusFound) // no Location header
	})
	mux.HandleFunc("/repos/owner/repo/releases", listing(t, []Release{{
		Assets: []Asset{{
			Name:               "plugin.zip",
			ContentType:        "application/zip",
			BrowserDownloadURL: srv.URL + "/asset.zip",
		}},
	}}))

	_, err := newClient(srv.URL).FetchLatestRelease(context.Background(), "owner/repo")
	require.ErrorIs(t, err, ErrMissingLocation)
}

func TestFetchLatestReleaseTooLarge(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/asset.zip", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("a", MaxArchiveBytes+1)))
	})
	mux.HandleFunc("/repos/owner/repo/releases", listing(t, []Release{{
		Assets: []Asset{{
			Name:               "plugin.zip",
			ContentType:        "application/zip",
			BrowserDownloadURL: srv.URL + "/asset.zip",
		}},
	}}))

	data, err := newClient(srv.URL).FetchLatestRelease(context.Background(), "owner/repo")
	require.ErrorIs(t, err, ErrTooLarge)
	assert.Nil(t, data, "no partial bytes on oversized downloads")
}

func TestFetchLatestReleaseZipballFallback(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/zipball", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("source-archive"))
	})
	mux.HandleFunc("/repos/owner/repo/releases", listing(t, []Release{{
		ZipballURL: srv.URL + "/zipball",
		Assets: []Asset{{
			Name:        "checksums.txt",
			ContentType: "text/plain",
		}},
	}}))

	data, err := newClient(srv.URL).FetchLatestRelease(context.Background(), "owner/repo")
	require.NoError(t, err)
	assert.Equal(t, []byte("source-archive"), data)
}

func TestFetchLatestReleaseNoReleases(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/repos/owner/repo/releases", listing(t, []Release{}))

	_, err := newClient(srv.URL).FetchLatestRelease(context.Background(), "owner/repo")
	require.ErrorIs(t, err, ErrNoRelease)
}

func TestFetchLatestReleaseListingFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).FetchLatestRelease(context.Background(), "owner/repo")

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
}

func TestFetchOutcomesRecorded(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/asset.zip", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("zip-bytes"))
	})
	mux.HandleFunc("/repos/owner/repo/releases", listing(t, []Release{{
		Assets: []Asset{{
			Name:               "plugin.zip",
			ContentType:        "application/zip",
			BrowserDownloadURL: srv.URL + "/asset.zip",
		}},
	}}))
	mux.HandleFunc("/repos/owner/empty/releases", listing(t, []Release{}))

	metrics := telemetry.NewMetrics()
	client := New(config.GitHubConfig{APIBaseURL: srv.URL}, zap.NewNop(), WithMetrics(metrics))

	_, err := client.FetchLatestRelease(context.Background(), "owner/repo")
	require.NoError(t, err)
	_, err = client.FetchLatestRelease(context.Background(), "owner/empty")
	require.ErrorIs(t, err, ErrNoRelease)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `aopkg_release_fetch_total{outcome="ok"} 1`)
	assert.Contains(t, rec.Body.String(), `aopkg_release_fetch_total{outcome="no_release"} 1`)
}

func TestFetchOutcomeLabels(t *testing.T) {
	t.Parallel()

	assert.Equal(t, telemetry.OutcomeOK, fetchOutcome(nil))
	assert.Equal(t, telemetry.OutcomeNoRelease, fetchOutcome(fmt.Errorf("%w for x", ErrNoRelease)))
	assert.Equal(t, telemetry.OutcomeTooLarge, fetchOutcome(ErrTooLarge))
	assert.Equal(t, telemetry.OutcomeRedirect, fetchOutcome(ErrTooManyRedirects))
	assert.Equal(t, telemetry.OutcomeRedirect, fetchOutcome(ErrMissingLocation))
	assert.Equal(t, telemetry.OutcomeError, fetchOutcome(errors.New("boom")))
}
