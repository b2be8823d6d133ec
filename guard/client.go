package guard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrNetworkUnavailable means the backend could not be reached or
	// answered with a server-side failure.
	ErrNetworkUnavailable = errors.New("cannot reach backend")
	// ErrInvalidToken is an explicit rejection of the presented token.
	ErrInvalidToken = errors.New("invalid token")
	// ErrLoginFailed carries the backend's message for a rejected login.
	ErrLoginFailed = errors.New("login failed")
)

const mePath = "/staff/me"

// User is the staff/me projection.
type User struct {
	Username    string   `json:"username"`
	Email       string   `json:"email"`
	Role        string   `json:"role"`
	Status      string   `json:"status"`
	Permissions []string `json:"permissions"`
}

// Client talks to the staff API. BaseURL ends in /api.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

type envelope struct {
	Success           *bool  `json:"success"`
	Message           string `json:"message"`
	Token             string `json:"token"`
	TwoFactorRequired bool   `json:"twoFactorRequired"`
	User              *User  `json:"user"`
}

func (e *envelope) ok() bool { return e != nil && e.Success != nil && *e.Success }

// rejected reports an explicit success:false answer.
func (e *envelope) rejected() bool { return e != nil && e.Success != nil && !*e.Success }

// do sends the request. The returned envelope is nil when the body is not
// a JSON object.
func (c *Client) do(ctx context.Context, method, path, token string, body any) (int, *envelope, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, nil, ctx.Err()
		}
		return 0, nil, fmt.Errorf("%s %s: %w: %v", method, path, ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return resp.StatusCode, nil, fmt.Errorf("%s %s: status %d: %w", method, path, resp.StatusCode, ErrNetworkUnavailable)
	}
	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env); err != nil {
		return resp.StatusCode, nil, nil
	}
	return resp.StatusCode, &env, nil
}

// FetchMe resolves token to its staff identity. Only 401, 403 or a JSON
// body with success:false is ErrInvalidToken. Anything else that is not a
// well-formed success, such as a 404 from a wrong base URL, a 429 or an
// HTML page from a proxy, is ErrNetworkUnavailable and leaves the token
// alone.
func (c *Client) FetchMe(ctx context.Context, token string) (*User, error) {
	status, env, err := c.do(ctx, http.MethodGet, mePath, token, nil)
	if err != nil {
		return nil, err
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return nil, fmt.Errorf("staff/me: status %d: %w", status, ErrInvalidToken)
	case status/100 == 2 && env.rejected():
		return nil, fmt.Errorf("staff/me: rejected: %w", ErrInvalidToken)
	case status/100 == 2 && env.ok() && env.User != nil:
		return env.User, nil
	case env == nil:
		return nil, fmt.Errorf("staff/me: status %d, unreadable body: %w", status, ErrNetworkUnavailable)
	default:
		return nil, fmt.Errorf("staff/me: unexpected status %d: %w", status, ErrNetworkUnavailable)
	}
}

// LoginResult is a successful admin-login answer.
type LoginResult struct {
	Token string
	User  User
}

// Login posts credentials to /admin-login. A rejected attempt wraps
// ErrLoginFailed; TwoFactorRequired is set when a TOTP code is missing or
// wrong.
func (c *Client) Login(ctx context.Context, identifier, password, code string) (*LoginResult, error) {
	status, env, err := c.do(ctx, http.MethodPost, "/admin-login", "", map[string]string{
		"username":      identifier,
		"password":      password,
		"twoFactorCode": code,
	})
	if err != nil {
		return nil, err
	}
	if env == nil {
		return nil, fmt.Errorf("admin-login: status %d, unreadable body: %w", status, ErrNetworkUnavailable)
	}
	if status/100 != 2 || !env.ok() || env.Token == "" {
		msg := env.Message
		if msg == "" {
			msg = http.StatusText(status)
		}
		return nil, &LoginError{Message: msg, TwoFactorRequired: env.TwoFactorRequired}
	}
	res := &LoginResult{Token: env.Token}
	if env.User != nil {
		res.User = *env.User
	}
	return res, nil
}

// LoginError is returned by Login for a rejected attempt.
type LoginError struct {
	Message           string
	TwoFactorRequired bool
}

func (e *LoginError) Error() string { return "login failed: " + e.Message }

func (e *LoginError) Unwrap() error { return ErrLoginFailed }

// Logout revokes token server-side. An already invalid token is not an
// error.
func (c *Client) Logout(ctx context.Context, token string) error {
	status, _, err := c.do(ctx, http.MethodPost, "/staff/logout", token, nil)
	if err != nil {
		return err
	}
	if status/100 != 2 && status != http.StatusUnauthorized {
		return fmt.Errorf("logout: status %d", status)
	}
	return nil
}
