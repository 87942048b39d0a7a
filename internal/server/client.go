package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/TobiSchelling/AutoPoster/internal/settings"
)

// ErrUnavailable means no server answered at the base URL.
var ErrUnavailable = errors.New("autoposter server is not reachable")

// RemoteError is a failure reported by a running server.
type RemoteError struct {
	Status  int
	Kind    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Kind == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Kind)
}

// Client drives a running server, so that commands issued from another
// process go through that server's run guard and timer.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the server at baseURL, e.g. "http://127.0.0.1:8000".
// Runs can take minutes, so requests are bounded by their context only.
func NewClient(baseURL string) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{}}
}

// Ping reports whether an autoposter server answers at the base URL.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var health struct {
		Status string `json:"status"`
		State  string `json:"state"`
	}
	if err := c.do(ctx, http.MethodGet, "/healthz", nil, &health); err != nil {
		return err
	}
	if health.Status != "ok" || health.State == "" {
		return ErrUnavailable
	}
	return nil
}

// RunOnce triggers a run on the server and returns the post id.
func (c *Client) RunOnce(ctx context.Context) (string, error) {
	var resp runResponse
	if err := c.do(ctx, http.MethodPost, "/run", nil, &resp); err != nil {
		return "", err
	}
	return resp.PostID, nil
}

// Enable enables autopost on the server.
func (c *Client) Enable(ctx context.Context, req EnableRequest) (settings.Settings, error) {
	return c.settingsCall(ctx, "/autopost/enable", req)
}

// Disable disables autopost on the server.
func (c *Client) Disable(ctx context.Context) (settings.Settings, error) {
	return c.settingsCall(ctx, "/autopost/disable", nil)
}

func (c *Client) settingsCall(ctx context.Context, path string, body any) (settings.Settings, error) {
	var resp settingsResponse
	if err := c.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return settings.Settings{}, err
	}
	if resp.Settings == nil {
		return settings.Settings{}, fmt.Errorf("server response for %s has no settings", path)
	}
	return *resp.Settings, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var failure struct {
			Error string `json:"error"`
			Kind  string `json:"kind"`
		}
		if json.Unmarshal(data, &failure) != nil || failure.Error == "" {
			return &RemoteError{Status: resp.StatusCode, Message: fmt.Sprintf("server returned status %d", resp.StatusCode)}
		}
		return &RemoteError{Status: resp.StatusCode, Kind: failure.Kind, Message: failure.Error}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
