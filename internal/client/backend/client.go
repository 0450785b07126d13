// Package backend is the HTTP and WebSocket client for the taskcal API.
// Every failure is returned as an *apperr.Error decoded from the server's
// error code, never from message text.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"taskcal/internal/apperr"
	"taskcal/internal/model"
)

// Client talks to one server. A Client is safe for concurrent use; WithToken
// returns a copy bound to another session.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithToken returns a copy of c that authenticates with token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

func (c *Client) Token() string { return c.token }

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return apperr.Wrap(apperr.Unavailable, err, "server unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.Wrap(apperr.Unavailable, err, "malformed server response")
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var env apperr.Envelope
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	_ = json.Unmarshal(raw, &env)
	e := apperr.FromPayload(resp.StatusCode, env.Error)
	if e.Message == "" {
		e.Message = http.StatusText(resp.StatusCode)
	}
	if e.RetryAfter == 0 {
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			e.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return e
}

// Health returns nil once the server reports ready.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", "", nil, nil)
}

func (c *Client) SignUp(ctx context.Context, creds model.Credentials) (*model.AuthSession, error) {
	var out model.AuthSession
	if err := c.do(ctx, http.MethodPost, "/api/auth/signup", "", creds, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SignIn(ctx context.Context, email, password string) (*model.AuthSession, error) {
	var out model.AuthSession
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", "", model.Credentials{Email: email, Password: password}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Verify reports who the client's token belongs to.
func (c *Client) Verify(ctx context.Context) (*model.Identity, error) {
	var out model.Identity
	if err := c.do(ctx, http.MethodGet, "/api/auth/verify", c.token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RequestRecovery asks the server to mail a reset code to email and returns
// when that code expires.
func (c *Client) RequestRecovery(ctx context.Context, email string) (time.Time, error) {
	var out model.RecoveryChallenge
	if err := c.do(ctx, http.MethodPost, "/api/auth/recover", "", model.RecoveryRequest{Email: email}, &out); err != nil {
		return time.Time{}, err
	}
	return out.ExpiresAt, nil
}

// VerifyRecovery exchanges a reset code for a recovery token.
func (c *Client) VerifyRecovery(ctx context.Context, email, code string) (string, error) {
	var out model.RecoverySession
	if err := c.do(ctx, http.MethodPost, "/api/auth/recover/verify", "", model.RecoveryCheck{Email: email, Code: code}, &out); err != nil {
		return "", err
	}
	return out.Token, nil
}

// UpdatePassword changes the password of the account token belongs to.
func (c *Client) UpdatePassword(ctx context.Context, token, password string) error {
	return c.do(ctx, http.MethodPost, "/api/auth/password", token, model.PasswordChange{Password: password}, nil)
}

func (c *Client) SendMagicLink(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/api/auth/magic-link", "", model.MagicLinkRequest{Email: email}, nil)
}

func (c *Client) ConsumeMagicLink(ctx context.Context, token string) (*model.AuthSession, error) {
	var out model.AuthSession
	if err := c.do(ctx, http.MethodGet, "/api/auth/magic-link?token="+url.QueryEscape(token), "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListTasks(ctx context.Context) ([]model.Task, error) {
	var out []model.Task
	if err := c.do(ctx, http.MethodGet, "/api/tasks", c.token, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateTask(ctx context.Context, in model.TaskInput) (*model.Task, error) {
	var out model.Task
	if err := c.do(ctx, http.MethodPost, "/api/tasks", c.token, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateTask(ctx context.Context, id string, in model.TaskInput) (*model.Task, error) {
	var out model.Task
	if err := c.do(ctx, http.MethodPatch, "/api/tasks/"+url.PathEscape(id), c.token, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ToggleTask(ctx context.Context, id string) (*model.Task, error) {
	var out model.Task
	if err := c.do(ctx, http.MethodPost, "/api/tasks/"+url.PathEscape(id)+"/toggle", c.token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/tasks/"+url.PathEscape(id), c.token, nil, nil)
}

// ListEvents returns events starting in [from, to). Zero bounds are omitted.
func (c *Client) ListEvents(ctx context.Context, from, to time.Time) ([]model.Event, error) {
	q := url.Values{}
	if !from.IsZero() {
		q.Set("from", from.Format(time.RFC3339))
	}
	if !to.IsZero() {
		q.Set("to", to.Format(time.RFC3339))
	}
	path := "/api/events"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []model.Event
	if err := c.do(ctx, http.MethodGet, path, c.token, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateEvent(ctx context.Context, in model.EventInput) (*model.Event, error) {
	var out model.Event
	if err := c.do(ctx, http.MethodPost, "/api/events", c.token, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateEvent(ctx context.Context, id string, in model.EventInput) (*model.Event, error) {
	var out model.Event
	if err := c.do(ctx, http.MethodPatch, "/api/events/"+url.PathEscape(id), c.token, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteEvent(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/events/"+url.PathEscape(id), c.token, nil, nil)
}

func (c *Client) GetProfile(ctx context.Context) (*model.Profile, error) {
	var out model.Profile
	if err := c.do(ctx, http.MethodGet, "/api/profile", c.token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateProfile(ctx context.Context, in model.ProfileInput) (*model.Profile, error) {
	var out model.Profile
	if err := c.do(ctx, http.MethodPut, "/api/profile", c.token, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateTelegramLink returns a code to send to the bot with /link.
func (c *Client) CreateTelegramLink(ctx context.Context) (*model.TelegramLinkCode, error) {
	var out model.TelegramLinkCode
	if err := c.do(ctx, http.MethodPost, "/api/profile/telegram", c.token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
