package linkedin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/TobiSchelling/AutoPoster/internal/credentials"
)

// UGCPostsURL is the share creation endpoint.
const UGCPostsURL = "https://api.linkedin.com/v2/ugcPosts"

// ErrTokenInvalid is returned on a 401 from the publish endpoint.
var ErrTokenInvalid = errors.New("linkedin access token is invalid or expired, reconnect the account")

// Publisher creates text shares on behalf of a member.
type Publisher struct {
	URL    string
	client *http.Client
}

// NewPublisher creates a publisher with the given per-call timeout.
func NewPublisher(timeout time.Duration) *Publisher {
	if timeout == 0 {
		timeout = 20 * time.Second
	}
	return &Publisher{URL: UGCPostsURL, client: &http.Client{Timeout: timeout}}
}

type shareCommentary struct {
	Text string `json:"text"`
}

type shareContent struct {
	ShareCommentary    shareCommentary `json:"shareCommentary"`
	ShareMediaCategory string          `json:"shareMediaCategory"`
}

type ugcPost struct {
	Author          string                  `json:"author"`
	LifecycleState  string                  `json:"lifecycleState"`
	SpecificContent map[string]shareContent `json:"specificContent"`
	Visibility      map[string]string       `json:"visibility"`
}

// Publish posts text as the member in creds and returns the post id.
func (p *Publisher) Publish(ctx context.Context, text string, creds credentials.Credentials) (string, error) {
	token := strings.TrimSpace(creds.Token())
	person := strings.TrimSpace(creds.Person())
	if token == "" {
		return "", fmt.Errorf("linkedin access token is missing")
	}
	if person == "" {
		return "", fmt.Errorf("linkedin person id is missing")
	}

	body, err := json.Marshal(ugcPost{
		Author:         "urn:li:person:" + person,
		LifecycleState: "PUBLISHED",
		SpecificContent: map[string]shareContent{
			"com.linkedin.ugc.ShareContent": {
				ShareCommentary:    shareCommentary{Text: text},
				ShareMediaCategory: "NONE",
			},
		},
		Visibility: map[string]string{"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC"},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling post: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("linkedin HTTP error: %w", err)
	}
	defer resp.Body.Close()

	log.Printf("LinkedIn API status: %d", resp.StatusCode)
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		log.Printf("LinkedIn API error body: %s", respBody)
		if resp.StatusCode == http.StatusUnauthorized {
			return "", ErrTokenInvalid
		}
		return "", fmt.Errorf("linkedin API returned status %d: %s", resp.StatusCode, truncate(string(respBody), 500))
	}

	if id := strings.TrimSpace(resp.Header.Get("X-RestLi-Id")); id != "" {
		return id, nil
	}
	var created struct {
		ID string `json:"id"`
	}
	if len(bytes.TrimSpace(respBody)) > 0 && json.Unmarshal(respBody, &created) == nil && created.ID != "" {
		return created.ID, nil
	}
	return "published", nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
