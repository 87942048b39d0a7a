package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNoCredentials means neither a valid OAuth account nor a static
// fallback token is available for the user.
var ErrNoCredentials = errors.New("linkedin account is not connected")

// ExpiryGrace is how far in the future an OAuth token must expire to be used.
const ExpiryGrace = 60 * time.Second

// Source identifies where publishing credentials came from.
type Source string

const (
	SourceOAuth Source = "oauth"
	SourceEnv   Source = "env"
	SourceNone  Source = "none"
)

// Credentials is either OAuthCredentials or EnvCredentials.
type Credentials interface {
	Token() string
	Person() string
	Source() Source
	isCredentials()
}

// OAuthCredentials come from an account connected through the OAuth flow.
type OAuthCredentials struct {
	AccessToken    string
	PersonID       string
	ExpiresAtEpoch int64
	Name           string
	Email          string
}

func (c OAuthCredentials) Token() string  { return c.AccessToken }
func (c OAuthCredentials) Person() string { return c.PersonID }
func (c OAuthCredentials) Source() Source { return SourceOAuth }
func (OAuthCredentials) isCredentials()   {}

// ExpiresAt returns the token expiry time.
func (c OAuthCredentials) ExpiresAt() time.Time { return time.Unix(c.ExpiresAtEpoch, 0) }

// EnvCredentials are the statically configured fallback token and person id.
type EnvCredentials struct {
	AccessToken string
	PersonID    string
}

func (c EnvCredentials) Token() string  { return c.AccessToken }
func (c EnvCredentials) Person() string { return c.PersonID }
func (c EnvCredentials) Source() Source { return SourceEnv }
func (EnvCredentials) isCredentials()   {}

// AccountGetter is the read side of the token store.
type AccountGetter interface {
	Get(ctx context.Context, userID int64) (*Account, error)
}

// Resolver picks the best available publishing credentials for a user.
// It never refreshes expired tokens; an expired account must reconnect.
type Resolver struct {
	accounts      AccountGetter
	fallbackToken string
	fallbackID    string
	now           func() time.Time
}

// NewResolver creates a resolver. Fallback values must already be sanitized.
func NewResolver(accounts AccountGetter, fallbackToken, fallbackPersonID string) *Resolver {
	return &Resolver{
		accounts:      accounts,
		fallbackToken: fallbackToken,
		fallbackID:    fallbackPersonID,
		now:           time.Now,
	}
}

// Resolve returns OAuth credentials when the stored token expires more than
// ExpiryGrace from now, otherwise the static fallback, otherwise ErrNoCredentials.
func (r *Resolver) Resolve(ctx context.Context, userID int64) (Credentials, error) {
	acct, err := r.accounts.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("reading token store: %w", err)
	}
	if acct != nil && r.valid(acct) {
		return OAuthCredentials{
			AccessToken:    acct.AccessToken,
			PersonID:       acct.PersonID,
			ExpiresAtEpoch: acct.ExpiresAtEpoch,
			Name:           acct.Name,
			Email:          acct.Email,
		}, nil
	}

	if r.fallbackToken != "" && r.fallbackID != "" {
		return EnvCredentials{AccessToken: r.fallbackToken, PersonID: r.fallbackID}, nil
	}
	return nil, ErrNoCredentials
}

// Source reports which credential source Resolve would use.
func (r *Resolver) Source(ctx context.Context, userID int64) (Source, error) {
	creds, err := r.Resolve(ctx, userID)
	if errors.Is(err, ErrNoCredentials) {
		return SourceNone, nil
	}
	if err != nil {
		return SourceNone, err
	}
	return creds.Source(), nil
}

func (r *Resolver) valid(a *Account) bool {
	return a.ExpiresAtEpoch > r.now().Add(ExpiryGrace).Unix()
}
