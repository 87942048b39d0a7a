package linkedin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/TobiSchelling/AutoPoster/internal/credentials"
)

var testCreds = credentials.EnvCredentials{AccessToken: "tok-123", PersonID: "abc"}

func newTestPublisher(srv *httptest.Server) *Publisher {
	p := NewPublisher(5 * time.Second)
	p.URL = srv.URL
	return p
}

func TestPublishSendsShare(t *testing.T) {
	var got ugcPost
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-123" {
			t.Errorf("unexpected auth header %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("X-Restli-Protocol-Version") != "2.0.0" {
			t.Error("missing restli protocol header")
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("X-RestLi-Id", "urn:li:share:42")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	id, err := newTestPublisher(srv).Publish(context.Background(), "hello", testCreds)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "urn:li:share:42" {
		t.Errorf("expected header id, got %q", id)
	}
	if got.Author != "urn:li:person:abc" || got.LifecycleState != "PUBLISHED" {
		t.Errorf("unexpected payload: %+v", got)
	}
	share := got.SpecificContent["com.linkedin.ugc.ShareContent"]
	if share.ShareCommentary.Text != "hello" || share.ShareMediaCategory != "NONE" {
		t.Errorf("unexpected share content: %+v", share)
	}
	if got.Visibility["com.linkedin.ugc.MemberNetworkVisibility"] != "PUBLIC" {
		t.Errorf("unexpected visibility: %+v", got.Visibility)
	}
}

func TestPublishIDFallbacks(t *testing.T) {
	tests := []struct {
		name, body, want string
		status           int
	}{
		{"body id", `{"id": "urn:li:share:7"}`, "urn:li:share:7", http.StatusCreated},
		{"no id", ``, "published", http.StatusAccepted},
		{"junk body", `not json`, "published", http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			id, err := newTestPublisher(srv).Publish(context.Background(), "x", testCreds)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if id != tt.want {
				t.Errorf("got %q, want %q", id, tt.want)
			}
		})
	}
}

func TestPublishUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Expired token"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestPublisher(srv).Publish(context.Background(), "x", testCreds)
	if !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestPublishOtherFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, strings.Repeat("e", 2000), http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	_, err := newTestPublisher(srv).Publish(context.Background(), "x", testCreds)
	if err == nil || errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected generic failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "422") || len(err.Error()) > 600 {
		t.Errorf("expected status and truncated body, got %d chars", len(err.Error()))
	}
}

func TestPublishMissingCredentials(t *testing.T) {
	p := NewPublisher(time.Second)
	if _, err := p.Publish(context.Background(), "x", credentials.EnvCredentials{PersonID: "p"}); err == nil {
		t.Error("expected error for missing token")
	}
	if _, err := p.Publish(context.Background(), "x", credentials.EnvCredentials{AccessToken: "t"}); err == nil {
		t.Error("expected error for missing person id")
	}
}

func oauthServer(t *testing.T, tokenBody string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.Form.Get("grant_type") != "authorization_code" || r.Form.Get("code") != "the-code" {
			t.Errorf("unexpected form: %v", r.Form)
		}
		if r.Form.Get("client_secret") != "secret" {
			t.Error("missing client secret")
		}
		w.Write([]byte(tokenBody))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-1" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"sub": "member-9", "name": "Ada Lovelace", "email": "ada@example.com"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestOAuth(srv *httptest.Server) *OAuth {
	o := NewOAuth("client", "secret", "https://app.example/oauth/callback", []string{"openid", "profile", "w_member_social"}, 5*time.Second)
	o.TokenURL = srv.URL + "/token"
	o.UserInfoURL = srv.URL + "/userinfo"
	o.now = func() time.Time { return time.Unix(1_000_000, 0) }
	return o
}

func TestAuthorizationURL(t *testing.T) {
	o := NewOAuth("client", "secret", "https://app.example/cb", []string{"openid", "profile"}, 0)
	raw, err := o.AuthorizationURL("st-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	u, _ := url.Parse(raw)
	q := u.Query()
	if q.Get("response_type") != "code" || q.Get("state") != "st-1" || q.Get("scope") != "openid profile" {
		t.Errorf("unexpected query: %v", q)
	}

	if _, err := NewOAuth("", "", "", nil, 0).AuthorizationURL("x"); !errors.Is(err, ErrOAuthNotConfigured) {
		t.Errorf("expected ErrOAuthNotConfigured, got %v", err)
	}
}

func TestExchangeAndUserInfo(t *testing.T) {
	srv := oauthServer(t, `{"access_token": "access-1", "expires_in": 3600, "refresh_token": "r-1"}`)
	o := newTestOAuth(srv)

	tok, err := o.Exchange(context.Background(), "the-code")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if tok.AccessToken != "access-1" || tok.RefreshToken != "r-1" || tok.ExpiresAtEpoch != 1_003_600 {
		t.Errorf("unexpected token: %+v", tok)
	}

	info, err := o.UserInfo(context.Background(), tok.AccessToken)
	if err != nil {
		t.Fatalf("UserInfo: %v", err)
	}
	if info.Sub != "member-9" || info.Name != "Ada Lovelace" {
		t.Errorf("unexpected user info: %+v", info)
	}
}

func TestExchangeInvalidPayload(t *testing.T) {
	for _, body := range []string{`{"access_token": "", "expires_in": 60}`, `{"access_token": "a", "expires_in": 0}`} {
		srv := oauthServer(t, body)
		if _, err := newTestOAuth(srv).Exchange(context.Background(), "the-code"); err == nil {
			t.Errorf("%s: expected invalid payload error", body)
		}
	}
}

func TestConnectorStoresAccount(t *testing.T) {
	srv := oauthServer(t, `{"access_token": "access-1", "expires_in": 3600}`)
	store := credentials.NewFileStore(filepath.Join(t.TempDir(), "tokens.json"))
	c := NewConnector(newTestOAuth(srv), store)

	consent, err := c.Begin(77)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	u, _ := url.Parse(consent)
	state := u.Query().Get("state")

	userID, acct, err := c.ConnectWithState(context.Background(), state, "the-code")
	if err != nil {
		t.Fatalf("ConnectWithState: %v", err)
	}
	if userID != 77 || acct.PersonID != "member-9" {
		t.Errorf("unexpected result: %d %+v", userID, acct)
	}

	stored, _ := store.Get(context.Background(), 77)
	if stored == nil || stored.AccessToken != "access-1" || stored.Email != "ada@example.com" {
		t.Errorf("unexpected stored account: %+v", stored)
	}

	if _, _, err := c.ConnectWithState(context.Background(), state, "the-code"); err == nil {
		t.Error("expected state to be single use")
	}
}

func TestStateRegistryExpiry(t *testing.T) {
	r := NewStateRegistry()
	now := time.Unix(0, 0)
	r.now = func() time.Time { return now }

	s := r.Issue(5)
	now = now.Add(StateTTL + time.Second)
	if _, ok := r.Redeem(s); ok {
		t.Error("expected expired state to be rejected")
	}

	now = time.Unix(0, 0)
	s = r.Issue(6)
	if id, ok := r.Redeem(s); !ok || id != 6 {
		t.Errorf("expected user 6, got %d %v", id, ok)
	}
}

func TestExtractCode(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  AQTx123  ", "AQTx123"},
		{"https://app.example/oauth/callback?code=AQT999&state=s1", "AQT999"},
		{"code=abc&state=x", "abc"},
	}
	for _, tt := range tests {
		if got := ExtractCode(tt.in); got != tt.want {
			t.Errorf("ExtractCode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
