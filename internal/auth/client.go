// Package auth wraps the credential login/signup HTTP interface. It is an
// external collaborator of the game core: the client consumes it as one
// request/response pair returning an identity token.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

// DefaultTimeout bounds every auth request. Requests past the deadline are
// cancelled and reported as ErrTimeout, distinct from other failures.
const DefaultTimeout = 10 * time.Second

// ErrTimeout marks an auth request that exceeded its deadline.
var ErrTimeout = errors.New("auth request timed out")

// Credentials are the login/signup form fields.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Identity is the authenticated result.
type Identity struct {
	Token    string
	UserID   string
	Username string
}

type authResponse struct {
	Token   string `json:"token"`
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

// Client calls the auth endpoints of the game server.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates an auth client for the given server base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: DefaultTimeout},
	}
}

// SetTimeout overrides the request deadline.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.client.Timeout = timeout
}

// Login exchanges credentials for an identity token.
func (c *Client) Login(ctx context.Context, creds Credentials) (*Identity, error) {
	return c.post(ctx, "/api/auth/login", creds)
}

// Signup registers a new account and returns its identity token.
func (c *Client) Signup(ctx context.Context, creds Credentials) (*Identity, error) {
	return c.post(ctx, "/api/auth/signup", creds)
}

func (c *Client) post(ctx context.Context, endpoint string, creds Credentials) (*Identity, error) {
	creds.Username = strings.TrimSpace(creds.Username)
	if creds.Username == "" || creds.Password == "" {
		return nil, errors.New("username and password are required")
	}

	body, err := json.Marshal(creds)
	if err != nil {
		return nil, fmt.Errorf("failed to encode credentials: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, c.client.Timeout)
		}
		return nil, fmt.Errorf("failed to reach auth server: %w", err)
	}
	defer resp.Body.Close()

	var decoded authResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode auth response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := decoded.Message
		if msg == "" {
			msg = fmt.Sprintf("auth request failed with status %d", resp.StatusCode)
		}
		return nil, errors.New(msg)
	}

	return &Identity{
		Token:    decoded.Token,
		UserID:   decoded.UserID,
		Username: creds.Username,
	}, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return true
	}
	return os.IsTimeout(err)
}
