package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
)

// IdentityResolver maps an incoming request to the caller's stable user
// id. Session or token mechanics live behind this interface so the upload
// path stays independent of how the identity was established.
type IdentityResolver interface {
	Resolve(r *http.Request) (int64, bool)
}

// HeaderIdentity resolves the caller from a numeric header value. It is
// meant to sit behind a proxy that has already authenticated the user.
type HeaderIdentity struct {
	Header string
}

// Resolve parses the configured header as the user id.
func (h HeaderIdentity) Resolve(r *http.Request) (int64, bool) {
	raw := r.Header.Get(h.Header)
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// TokenVerifier resolves an access token to a user id.
type TokenVerifier interface {
	UserID(ctx context.Context, accessToken string) (int64, error)
}

// TokenIdentity resolves the caller from an "Authorization: token <value>"
// header by asking the verifier who the token belongs to.
type TokenIdentity struct {
	Verifier TokenVerifier
}

// Resolve verifies the bearer token and returns the owning user id.
func (t TokenIdentity) Resolve(r *http.Request) (int64, bool) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "token ")
	if !ok || token == "" {
		return 0, false
	}
	id, err := t.Verifier.UserID(r.Context(), token)
	if err != nil {
		return 0, false
	}
	return id, true
}
