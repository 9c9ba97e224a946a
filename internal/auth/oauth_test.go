package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// fakeIdP is an httptest server standing in for a provider's token and
// profile endpoints. Responses are keyed by path.
type fakeIdP struct {
	server    *httptest.Server
	responses map[string]any
	failPath  string
	gotCode   string
}

func newFakeIdP(t *testing.T) *fakeIdP {
	t.Helper()
	f := &fakeIdP{responses: map[string]any{}}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		f.gotCode = r.PostForm.Get("code")
		if f.failPath == "/token" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "fake-access-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fake-access-token" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		body, ok := f.responses[r.URL.Path]
		if !ok || f.failPath == r.URL.Path {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeIdP) endpoint() oauth2.Endpoint {
	return oauth2.Endpoint{
		AuthURL:   f.server.URL + "/authorize",
		TokenURL:  f.server.URL + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
}

func newTestGoogle(f *fakeIdP) *GoogleProvider {
	p := NewGoogleProvider("client-id", "client-secret", "http://localhost:8080/auth/google/callback")
	p.config.Endpoint = f.endpoint()
	p.userInfoURL = f.server.URL + "/userinfo"
	return p
}

func newTestGitHub(f *fakeIdP) *GitHubProvider {
	p := NewGitHubProvider("client-id", "client-secret", "http://localhost:8080/auth/github/callback")
	p.config.Endpoint = f.endpoint()
	p.apiURL = f.server.URL
	return p
}

// =========================================================================
// GOOGLE
// =========================================================================

func TestGoogleProvider_AuthURL(t *testing.T) {
	p := NewGoogleProvider("client-id", "secret", "http://localhost:8080/auth/google/callback")

	u, err := url.Parse(p.AuthURL("state-123"))
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, "accounts.google.com", u.Host)
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "state-123", q.Get("state"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "profile email", q.Get("scope"))
	assert.Equal(t, "http://localhost:8080/auth/google/callback", q.Get("redirect_uri"))
}

func TestGoogleProvider_Exchange(t *testing.T) {
	f := newFakeIdP(t)
	f.responses["/userinfo"] = map[string]any{
		"id": "1098", "email": "g@x.com", "verified_email": true, "name": "Gina",
	}

	profile, err := newTestGoogle(f).Exchange(context.Background(), "auth-code")
	require.NoError(t, err)

	assert.Equal(t, "auth-code", f.gotCode)
	assert.Equal(t, "google", profile.Provider)
	assert.Equal(t, "google:1098", profile.ExternalID)
	assert.Equal(t, "g@x.com", profile.Email)
	assert.Equal(t, "Gina", profile.DisplayName)
}

func TestGoogleProvider_UnverifiedEmailIsDropped(t *testing.T) {
	f := newFakeIdP(t)
	f.responses["/userinfo"] = map[string]any{
		"id": "1098", "email": "g@x.com", "verified_email": false, "name": "Gina",
	}

	profile, err := newTestGoogle(f).Exchange(context.Background(), "auth-code")
	require.NoError(t, err)
	assert.Empty(t, profile.Email)
}

func TestGoogleProvider_ExchangeErrors(t *testing.T) {
	cases := []struct {
		name     string
		failPath string
		userinfo map[string]any
	}{
		{"token endpoint rejects code", "/token", map[string]any{"id": "1"}},
		{"userinfo fails", "/userinfo", map[string]any{"id": "1"}},
		{"userinfo without id", "", map[string]any{"email": "g@x.com"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFakeIdP(t)
			f.failPath = tc.failPath
			f.responses["/userinfo"] = tc.userinfo

			_, err := newTestGoogle(f).Exchange(context.Background(), "auth-code")
			assert.Error(t, err)
		})
	}
}

// =========================================================================
// GITHUB
// =========================================================================

func TestGitHubProvider_Exchange(t *testing.T) {
	f := newFakeIdP(t)
	f.responses["/user"] = map[string]any{"id": 42, "login": "octo", "name": ""}
	f.responses["/user/emails"] = []map[string]any{
		{"email": "old@x.com", "primary": false, "verified": true},
		{"email": "octo@x.com", "primary": true, "verified": true},
	}

	profile, err := newTestGitHub(f).Exchange(context.Background(), "gh-code")
	require.NoError(t, err)

	assert.Equal(t, "github", profile.Provider)
	assert.Equal(t, "github:42", profile.ExternalID)
	assert.Equal(t, "octo@x.com", profile.Email)
	assert.Equal(t, "octo", profile.DisplayName, "login is used when the profile has no name")
}

func TestGitHubProvider_NoVerifiedPrimaryEmail(t *testing.T) {
	f := newFakeIdP(t)
	f.responses["/user"] = map[string]any{"id": 42, "login": "octo", "name": "Octo Cat"}
	f.responses["/user/emails"] = []map[string]any{
		{"email": "octo@x.com", "primary": true, "verified": false},
	}

	profile, err := newTestGitHub(f).Exchange(context.Background(), "gh-code")
	require.NoError(t, err)
	assert.Empty(t, profile.Email)
	assert.Equal(t, "Octo Cat", profile.DisplayName)
}

func TestGitHubProvider_InvalidUser(t *testing.T) {
	f := newFakeIdP(t)
	f.responses["/user"] = map[string]any{"id": 0}

	_, err := newTestGitHub(f).Exchange(context.Background(), "gh-code")
	assert.Error(t, err)
}

func TestProviders_Names(t *testing.T) {
	var providers = []Provider{
		NewGoogleProvider("", "", ""),
		NewGitHubProvider("", "", ""),
	}
	assert.Equal(t, "google", providers[0].Name())
	assert.Equal(t, "github", providers[1].Name())
}
