package linkedin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	AuthURL     = "https://www.linkedin.com/oauth/v2/authorization"
	TokenURL    = "https://www.linkedin.com/oauth/v2/accessToken"
	UserInfoURL = "https://api.linkedin.com/v2/userinfo"
)

// ErrOAuthNotConfigured is returned when client id, secret or redirect URI is missing.
var ErrOAuthNotConfigured = errors.New("linkedin OAuth is not configured")

// Token is the result of an authorization-code exchange.
type Token struct {
	AccessToken    string
	RefreshToken   string
	ExpiresAtEpoch int64
}

// UserInfo is the OpenID profile of the authorized member.
type UserInfo struct {
	Sub   string `json:"sub"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// OAuth runs the LinkedIn three-legged authorization flow.
type OAuth struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string

	AuthURL     string
	TokenURL    string
	UserInfoURL string

	client *http.Client
	now    func() time.Time
}

// NewOAuth creates an OAuth client against the production endpoints.
func NewOAuth(clientID, clientSecret, redirectURI string, scopes []string, timeout time.Duration) *OAuth {
	if timeout == 0 {
		timeout = 20 * time.Second
	}
	return &OAuth{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURI:  redirectURI,
		Scopes:       scopes,
		AuthURL:      AuthURL,
		TokenURL:     TokenURL,
		UserInfoURL:  UserInfoURL,
		client:       &http.Client{Timeout: timeout},
		now:          time.Now,
	}
}

// Enabled reports whether the flow can be started.
func (o *OAuth) Enabled() bool {
	return o.ClientID != "" && o.ClientSecret != "" && o.RedirectURI != ""
}

// AuthorizationURL returns the consent page URL carrying state.
func (o *OAuth) AuthorizationURL(state string) (string, error) {
	if !o.Enabled() {
		return "", ErrOAuthNotConfigured
	}
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", o.ClientID)
	q.Set("redirect_uri", o.RedirectURI)
	q.Set("scope", strings.Join(o.Scopes, " "))
	q.Set("state", state)
	return o.AuthURL + "?" + q.Encode(), nil
}

// Exchange trades an authorization code for an access token.
func (o *OAuth) Exchange(ctx context.Context, code string) (*Token, error) {
	if !o.Enabled() {
		return nil, ErrOAuthNotConfigured
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", o.RedirectURI)
	form.Set("client_id", o.ClientID)
	form.Set("client_secret", o.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var payload struct {
		AccessToken  string `json:"access_token"`
		ExpiresIn    int64  `json:"expires_in"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := o.doJSON(req, &payload); err != nil {
		return nil, fmt.Errorf("OAuth token exchange failed: %w", err)
	}

	access := strings.TrimSpace(payload.AccessToken)
	if access == "" || payload.ExpiresIn <= 0 {
		return nil, fmt.Errorf("linkedin OAuth returned an invalid token payload")
	}
	return &Token{
		AccessToken:    access,
		RefreshToken:   strings.TrimSpace(payload.RefreshToken),
		ExpiresAtEpoch: o.now().Add(time.Duration(payload.ExpiresIn) * time.Second).Unix(),
	}, nil
}

// UserInfo fetches the member profile for token.
func (o *OAuth) UserInfo(ctx context.Context, token string) (*UserInfo, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("access token is missing")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.UserInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	var info UserInfo
	if err := o.doJSON(req, &info); err != nil {
		return nil, fmt.Errorf("fetching linkedin user info: %w", err)
	}
	if info.Sub == "" {
		return nil, fmt.Errorf("linkedin user info has no subject")
	}
	return &info, nil
}

func (o *OAuth) doJSON(req *http.Request, v any) error {
	resp, err := o.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(body), 500))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
