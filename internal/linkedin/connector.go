package linkedin

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/TobiSchelling/AutoPoster/internal/credentials"
)

// AccountSaver is the write side of the token store.
type AccountSaver interface {
	Save(ctx context.Context, userID int64, acct credentials.Account) error
}

// Connector completes the OAuth flow and stores the resulting account.
type Connector struct {
	oauth  *OAuth
	store  AccountSaver
	States *StateRegistry
}

// NewConnector creates a connector.
func NewConnector(oauth *OAuth, store AccountSaver) *Connector {
	return &Connector{oauth: oauth, store: store, States: NewStateRegistry()}
}

// Enabled reports whether OAuth is configured.
func (c *Connector) Enabled() bool { return c.oauth.Enabled() }

// Begin issues a state for userID and returns the consent URL.
func (c *Connector) Begin(userID int64) (string, error) {
	if !c.oauth.Enabled() {
		return "", ErrOAuthNotConfigured
	}
	return c.oauth.AuthorizationURL(c.States.Issue(userID))
}

// Connect exchanges code, looks up the member and stores the account for userID.
func (c *Connector) Connect(ctx context.Context, userID int64, code string) (*credentials.Account, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("authorization code is empty")
	}

	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	info, err := c.oauth.UserInfo(ctx, tok.AccessToken)
	if err != nil {
		return nil, err
	}

	acct := credentials.Account{
		AccessToken:    tok.AccessToken,
		RefreshToken:   tok.RefreshToken,
		ExpiresAtEpoch: tok.ExpiresAtEpoch,
		PersonID:       info.Sub,
		Name:           info.Name,
		Email:          info.Email,
	}
	if err := c.store.Save(ctx, userID, acct); err != nil {
		return nil, fmt.Errorf("storing linkedin account: %w", err)
	}
	log.Printf("Connected LinkedIn account %s for user %d", info.Sub, userID)
	return &acct, nil
}

// Redeem consumes a state issued by Begin and returns the user it belongs to.
func (c *Connector) Redeem(state string) (int64, bool) {
	return c.States.Redeem(state)
}

// ConnectWithState redeems state and connects the user it was issued to.
func (c *Connector) ConnectWithState(ctx context.Context, state, code string) (int64, *credentials.Account, error) {
	userID, ok := c.States.Redeem(state)
	if !ok {
		return 0, nil, fmt.Errorf("unknown or expired OAuth state")
	}
	acct, err := c.Connect(ctx, userID, code)
	return userID, acct, err
}

// ExtractCode accepts either a bare authorization code or the full redirect
// URL pasted from the browser.
func ExtractCode(input string) string {
	input = strings.TrimSpace(input)
	if !strings.Contains(input, "code=") {
		return input
	}
	u, err := url.Parse(input)
	if err != nil {
		return input
	}
	if code := u.Query().Get("code"); code != "" {
		return code
	}
	if q, err := url.ParseQuery(strings.TrimPrefix(input, "?")); err == nil && q.Get("code") != "" {
		return q.Get("code")
	}
	return input
}
