package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/hugh/easy-diagrams/internal/apperr"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// GoogleProvider signs users in with their Google account email.
type GoogleProvider struct {
	config *oauth2.Config
}

func NewGoogleProvider(clientID, clientSecret, redirectURL string) *GoogleProvider {
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"openid", oauth2api.UserinfoEmailScope},
			Endpoint:     google.Endpoint,
		},
	}
}

func (p *GoogleProvider) Name() string {
	return "google"
}

func (p *GoogleProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

func (p *GoogleProvider) Email(ctx context.Context, r *http.Request) (string, error) {
	if msg := r.URL.Query().Get("error"); msg != "" {
		return "", apperr.Unauthorized("google login refused: " + msg)
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		return "", apperr.Unauthorized("missing authorization code")
	}

	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return "", apperr.Unauthorized("exchanging authorization code").WithCause(err)
	}

	srv, err := oauth2api.NewService(ctx, option.WithHTTPClient(p.config.Client(ctx, token)))
	if err != nil {
		return "", fmt.Errorf("creating oauth2 service: %w", err)
	}

	info, err := srv.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("fetching userinfo: %w", err)
	}
	if info.Email == "" || info.VerifiedEmail == nil || !*info.VerifiedEmail {
		return "", apperr.Unauthorized("google account has no verified email")
	}

	return info.Email, nil
}

const (
	DummyEmailHeader = "X-Test-User-Email"
	DummyEmail       = "dummy@example.com"
)

// DummyProvider logs in without an identity provider. The email comes from
// the X-Test-User-Email header or the "email" query parameter. Only for
// development and tests.
type DummyProvider struct{}

func (DummyProvider) Name() string {
	return "dummy"
}

func (DummyProvider) AuthCodeURL(state string) string {
	return "/login/dummy/callback?state=" + url.QueryEscape(state)
}

func (DummyProvider) Email(_ context.Context, r *http.Request) (string, error) {
	if email := r.Header.Get(DummyEmailHeader); email != "" {
		return email, nil
	}
	if email := r.URL.Query().Get("email"); email != "" {
		return email, nil
	}
	return DummyEmail, nil
}
