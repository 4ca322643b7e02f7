// Package client is a typed HTTP client for the tmated daemon API. It is
// used by the CLI and by programs embedding remote session control.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Config holds client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:8553/api",
		Timeout: 10 * time.Second,
	}
}

// Client talks to a running tmated daemon.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// New creates a daemon API client.
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultConfig().BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: config.BaseURL,
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// IsReachable checks if the daemon is running and reachable.
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/sessions", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("daemon unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// CreateSession spawns a new session.
func (c *Client) CreateSession(ctx context.Context, req CreateRequest) (Session, error) {
	var out Session
	err := c.do(ctx, http.MethodPost, "/sessions", req, &out)
	return out, err
}

// GetSession fetches one session by identifier.
func (c *Client) GetSession(ctx context.Context, id string) (Session, error) {
	var out Session
	err := c.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(id), nil, &out)
	return out, err
}

// ListSessions returns every session, newest first.
func (c *Client) ListSessions(ctx context.Context) ([]Session, error) {
	var out []Session
	err := c.do(ctx, http.MethodGet, "/sessions", nil, &out)
	return out, err
}

// ListActiveSessions returns only running sessions.
func (c *Client) ListActiveSessions(ctx context.Context) ([]Session, error) {
	var out []Session
	err := c.do(ctx, http.MethodGet, "/sessions?active=true", nil, &out)
	return out, err
}

// StopSession stops a session's backing process.
func (c *Client) StopSession(ctx context.Context, id string) (Session, error) {
	var out Session
	err := c.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(id)+"/stop", nil, &out)
	return out, err
}

// RestartSession replaces a session's backing process.
func (c *Client) RestartSession(ctx context.Context, id string) (Session, error) {
	var out Session
	err := c.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(id)+"/restart", nil, &out)
	return out, err
}

// DeleteSession stops and removes a session and its logs.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/sessions/"+url.PathEscape(id), nil, nil)
}

// SessionLogs returns a session's retained records, oldest first.
func (c *Client) SessionLogs(ctx context.Context, id string) ([]Log, error) {
	var out []Log
	err := c.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(id)+"/logs", nil, &out)
	return out, err
}

// RecentLogs returns at most limit records across sessions, newest first.
func (c *Client) RecentLogs(ctx context.Context, limit int) ([]Log, error) {
	var out []Log
	err := c.do(ctx, http.MethodGet, "/logs/recent?limit="+strconv.Itoa(limit), nil, &out)
	return out, err
}

// ClearLogs deletes records for one session, or all records when id is
// empty.
func (c *Client) ClearLogs(ctx context.Context, id string) error {
	path := "/logs"
	if id != "" {
		path += "?session_id=" + url.QueryEscape(id)
	}
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr ErrorResponse
		if derr := json.NewDecoder(resp.Body).Decode(&apiErr); derr == nil && apiErr.Error != "" {
			return fmt.Errorf("daemon error (%d): %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("daemon error: status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
