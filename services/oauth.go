package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"

	"github.com/linkup-social/linkup/config"
	"github.com/linkup-social/linkup/models"
	"github.com/linkup-social/linkup/utils"
)

const oauthStateTTL = 10 * time.Minute

// ProviderProfile fetches the identity behind an access token.
type ProviderProfile func(ctx context.Context, client *http.Client) (*OAuthIdentity, error)

type oauthProvider struct {
	config  *oauth2.Config
	profile ProviderProfile
}

// OAuthService runs the authorization code flow for external identity providers.
type OAuthService struct {
	providers map[string]oauthProvider
	states    *utils.StateStore
	auth      *AuthService
}

// NewOAuthService registers GitHub and Google when their credentials are configured.
func NewOAuthService(cfg config.AppConfig, states *utils.StateStore, auth *AuthService) *OAuthService {
	s := &OAuthService{providers: map[string]oauthProvider{}, states: states, auth: auth}
	base := strings.TrimRight(cfg.OAuthRedirectBase, "/")
	if cfg.GitHubClientID != "" && cfg.GitHubClientSecret != "" {
		s.Register("github", &oauth2.Config{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			RedirectURL:  base + "/api/auth/oauth/github/callback",
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		}, fetchGitHubUser)
	}
	if cfg.GoogleClientID != "" && cfg.GoogleClientSecret != "" {
		s.Register("google", &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  base + "/api/auth/oauth/google/callback",
			Scopes:       []string{"openid", "profile", "email"},
			Endpoint:     google.Endpoint,
		}, fetchGoogleUser)
	}
	return s
}

// Register adds or replaces a provider.
func (s *OAuthService) Register(name string, cfg *oauth2.Config, profile ProviderProfile) {
	s.providers[strings.ToLower(name)] = oauthProvider{config: cfg, profile: profile}
}

func (s *OAuthService) provider(name string) (oauthProvider, error) {
	p, ok := s.providers[strings.ToLower(name)]
	if !ok {
		return oauthProvider{}, validationf("unsupported or unconfigured provider: %s", name)
	}
	return p, nil
}

// AuthURL returns the provider's consent URL and the single-use state bound to it.
func (s *OAuthService) AuthURL(ctx context.Context, provider string) (string, string, error) {
	p, err := s.provider(provider)
	if err != nil {
		return "", "", err
	}
	state := uuid.NewString()
	if err := s.states.Save(ctx, state, oauthStateTTL); err != nil {
		return "", "", fmt.Errorf("save oauth state: %w", err)
	}
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline), state, nil
}

// Callback validates state, exchanges code and signs the user in.
func (s *OAuthService) Callback(ctx context.Context, provider, code, state string) (string, *models.User, error) {
	if code == "" || state == "" {
		return "", nil, validationf("missing code or state")
	}
	p, err := s.provider(provider)
	if err != nil {
		return "", nil, err
	}
	if !s.states.Consume(ctx, state) {
		return "", nil, validationf("invalid or expired state")
	}

	tok, err := p.config.Exchange(ctx, code)
	if err != nil {
		return "", nil, &AuthError{Message: "failed to exchange authorization code"}
	}
	identity, err := p.profile(ctx, p.config.Client(ctx, tok))
	if err != nil {
		return "", nil, fmt.Errorf("fetch %s profile: %w", provider, err)
	}
	identity.Provider = strings.ToLower(provider)

	return s.auth.OAuthLogin(ctx, *identity)
}

func getJSON(ctx context.Context, client *http.Client, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func fetchGitHubUser(ctx context.Context, client *http.Client) (*OAuthIdentity, error) {
	var payload struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := getJSON(ctx, client, "https://api.github.com/user", &payload); err != nil {
		return nil, err
	}

	identity := &OAuthIdentity{
		ProviderID: fmt.Sprintf("%d", payload.ID),
		Name:       fallback(payload.Name, payload.Login),
		AvatarURL:  payload.AvatarURL,
	}

	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := getJSON(ctx, client, "https://api.github.com/user/emails", &emails); err == nil {
		for _, e := range emails {
			if e.Primary && e.Verified {
				identity.Email = e.Email
				identity.EmailVerified = true
				break
			}
		}
	}
	return identity, nil
}

func fetchGoogleUser(ctx context.Context, client *http.Client) (*OAuthIdentity, error) {
	var payload struct {
		ID            string `json:"id"`
		Email         string `json:"email"`
		VerifiedEmail bool   `json:"verified_email"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := getJSON(ctx, client, "https://www.googleapis.com/oauth2/v2/userinfo", &payload); err != nil {
		return nil, err
	}
	return &OAuthIdentity{
		ProviderID:    payload.ID,
		Email:         payload.Email,
		EmailVerified: payload.VerifiedEmail,
		Name:          payload.Name,
		AvatarURL:     payload.Picture,
	}, nil
}

func fallback(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
