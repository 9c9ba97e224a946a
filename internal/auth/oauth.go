package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"

	"github.com/sakif/auth-service/internal/model"
)

// Provider is one external identity provider using the OAuth 2.0
// Authorization Code flow:
//
//  1. The server redirects the user to AuthURL(state)
//  2. The user approves on the provider's site
//  3. The provider redirects back to the callback URL with a short-lived code
//  4. Exchange trades the code for an access token (server-to-server, using
//     the client secret) and reads the user's profile with it
//
// The access token never reaches the browser.
type Provider interface {
	// Name is the path segment used in /auth/{name} routes.
	Name() string
	// AuthURL returns the consent URL. state is echoed back on the callback
	// and checked against a cookie to stop login CSRF.
	AuthURL(state string) string
	// Exchange completes the flow and returns the provider's view of the user.
	// Email is empty when the provider has no verified address to share.
	Exchange(ctx context.Context, code string) (*model.ExternalProfile, error)
}

// fetchJSON GETs url with the OAuth-authenticated client and decodes the body.
func fetchJSON(ctx context.Context, cfg *oauth2.Config, token *oauth2.Token, url string, out any) error {
	client := cfg.Client(ctx, token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", url, err)
	}
	return nil
}

// =========================================================================
// GOOGLE
// =========================================================================

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// googleUser is the part of Google's userinfo response we read.
type googleUser struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
}

// GoogleProvider signs users in with their Google account.
type GoogleProvider struct {
	config      *oauth2.Config
	userInfoURL string
}

// NewGoogleProvider creates a GoogleProvider. callbackURL must match the
// redirect URI registered in the Google Cloud console exactly.
//
// Scopes: "profile" (id, name) and "email" (address + verified flag).
func NewGoogleProvider(clientID, clientSecret, callbackURL string) *GoogleProvider {
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"profile", "email"},
			Endpoint:     google.Endpoint,
		},
		userInfoURL: googleUserInfoURL,
	}
}

func (p *GoogleProvider) Name() string { return "google" }

func (p *GoogleProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*model.ExternalProfile, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging google code: %w", err)
	}

	var u googleUser
	if err := fetchJSON(ctx, p.config, token, p.userInfoURL, &u); err != nil {
		return nil, fmt.Errorf("auth: google userinfo: %w", err)
	}
	if u.ID == "" {
		return nil, fmt.Errorf("auth: google returned a user without an id")
	}

	profile := &model.ExternalProfile{
		Provider:    p.Name(),
		ExternalID:  "google:" + u.ID,
		DisplayName: u.Name,
	}
	// An unverified address is not proof of ownership, so it is not shared.
	if u.VerifiedEmail {
		profile.Email = u.Email
	}
	return profile, nil
}

// =========================================================================
// GITHUB
// =========================================================================

const githubAPIURL = "https://api.github.com"

// githubUser is the part of GitHub's /user response we read.
type githubUser struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name"`
}

// githubEmail is one entry of GitHub's /user/emails response.
type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// GitHubProvider signs users in with their GitHub account.
type GitHubProvider struct {
	config *oauth2.Config
	apiURL string
}

// NewGitHubProvider creates a GitHubProvider with the credentials of an OAuth
// App registered at https://github.com/settings/developers.
//
// Scopes:
//   - "read:user" for the public profile
//   - "user:email" for the address list, needed when the profile email is hidden
func NewGitHubProvider(clientID, clientSecret, callbackURL string) *GitHubProvider {
	return &GitHubProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		},
		apiURL: githubAPIURL,
	}
}

func (p *GitHubProvider) Name() string { return "github" }

func (p *GitHubProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

func (p *GitHubProvider) Exchange(ctx context.Context, code string) (*model.ExternalProfile, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging github code: %w", err)
	}

	var u githubUser
	if err := fetchJSON(ctx, p.config, token, p.apiURL+"/user", &u); err != nil {
		return nil, fmt.Errorf("auth: github user: %w", err)
	}
	if u.ID == 0 {
		return nil, fmt.Errorf("auth: github returned an invalid user (ID = 0)")
	}

	email, err := p.primaryEmail(ctx, token)
	if err != nil {
		return nil, err
	}

	name := u.Name
	if name == "" {
		name = u.Login
	}

	return &model.ExternalProfile{
		Provider:    p.Name(),
		ExternalID:  "github:" + strconv.FormatInt(u.ID, 10),
		Email:       email,
		DisplayName: name,
	}, nil
}

// primaryEmail returns the user's primary verified address, or "" if there
// is none. The public profile email is not used: it may be unverified.
func (p *GitHubProvider) primaryEmail(ctx context.Context, token *oauth2.Token) (string, error) {
	var emails []githubEmail
	if err := fetchJSON(ctx, p.config, token, p.apiURL+"/user/emails", &emails); err != nil {
		return "", fmt.Errorf("auth: github emails: %w", err)
	}
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, nil
		}
	}
	return "", nil
}
