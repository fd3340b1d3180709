// Package api is the HTTP gateway to the chat backend. Every call returns
// either the decoded body or one of ErrUnauthorized, ErrNetworkUnavailable,
// *RequestError or *ValidationError.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cloudzz-dev/cldzchat/internal/models"
	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("api")

// TokenSource supplies the bearer token for each request.
type TokenSource interface {
	Token() string
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func() string

func (f TokenFunc) Token() string { return f() }

type Client struct {
	base           *url.URL
	http           *http.Client
	tokens         TokenSource
	onUnauthorized func()
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithUnauthorizedHandler registers fn to run once for every 401/403 response.
func WithUnauthorizedHandler(fn func()) Option {
	return func(c *Client) { c.onUnauthorized = fn }
}

func New(baseURL string, tokens TokenSource, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid server url %q: scheme must be http or https", baseURL)
	}
	if tokens == nil {
		tokens = TokenFunc(func() string { return "" })
	}
	c := &Client{
		base:   base,
		http:   &http.Client{Timeout: 30 * time.Second},
		tokens: tokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = c.base.Path + path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

type request struct {
	method      string
	path        string
	query       url.Values
	body        any
	rawBody     io.Reader
	contentType string
	anonymous   bool
}

func (c *Client) do(ctx context.Context, req request, out any) error {
	var body io.Reader
	contentType := req.contentType
	switch {
	case req.rawBody != nil:
		body = req.rawBody
	case req.body != nil:
		data, err := json.Marshal(req.body)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.endpoint(req.path, req.query), body)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Accept", "application/json")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if !req.anonymous {
		if token := c.tokens.Token(); token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		log.Warningf("%s %s: %v", req.method, req.path, err)
		return fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()

	// A 401/403 on a signed-out call (bad credentials) is an ordinary
	// request error, not an expired session.
	authFailure := resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden
	if authFailure && !req.anonymous {
		io.Copy(io.Discard, resp.Body)
		log.Infof("%s %s: %d", req.method, req.path, resp.StatusCode)
		if c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return ErrUnauthorized
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reqErr := &RequestError{Status: resp.StatusCode}
		var errBody models.ErrorResponse
		if data, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); readErr == nil {
			if json.Unmarshal(data, &errBody) == nil {
				reqErr.Message = errBody.Error
				if reqErr.Message == "" {
					reqErr.Message = errBody.Message
				}
			}
		}
		log.Debugf("%s %s: %d %s", req.method, req.path, resp.StatusCode, reqErr.Message)
		return reqErr
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode %s response: %w", req.path, err)
	}
	return nil
}

func (c *Client) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
	if err := ValidateRegister(req); err != nil {
		return nil, err
	}
	var resp models.AuthResponse
	err := c.do(ctx, request{method: http.MethodPost, path: "/api/auth/register", body: req, anonymous: true}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	if err := ValidateLogin(req); err != nil {
		return nil, err
	}
	var resp models.AuthResponse
	err := c.do(ctx, request{method: http.MethodPost, path: "/api/auth/login", body: req, anonymous: true}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/user"}, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (c *Client) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/user/" + url.PathEscape(id)}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// SearchUsers finds users by name or username, excluding currentUserID. A
// blank query returns no results without contacting the server.
func (c *Client) SearchUsers(ctx context.Context, query, currentUserID string) ([]models.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.User{}, nil
	}
	q := url.Values{}
	q.Set("query", query)
	q.Set("currentUserId", currentUserID)

	var users []models.User
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/user/search", query: q}, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (c *Client) Conversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	var convs []models.Conversation
	path := "/api/user/" + url.PathEscape(userID) + "/conversations"
	if err := c.do(ctx, request{method: http.MethodGet, path: path}, &convs); err != nil {
		return nil, err
	}
	return convs, nil
}

// Messages returns the history between two users, oldest first.
func (c *Client) Messages(ctx context.Context, userID, peerID string) ([]models.Message, error) {
	var msgs []models.Message
	path := "/api/message/" + url.PathEscape(userID) + "/" + url.PathEscape(peerID)
	if err := c.do(ctx, request{method: http.MethodGet, path: path}, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (c *Client) GetProfile(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/profile/" + url.PathEscape(userID)}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) UpdateProfile(ctx context.Context, userID string, update models.ProfileUpdate) (*models.User, error) {
	if err := ValidateProfile(update); err != nil {
		return nil, err
	}
	var user models.User
	err := c.do(ctx, request{method: http.MethodPut, path: "/api/profile/" + url.PathEscape(userID), body: update}, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ChangePassword is not idempotent and is never retried.
func (c *Client) ChangePassword(ctx context.Context, userID string, change models.PasswordChange, confirm string) error {
	if err := ValidatePasswordChange(change, confirm); err != nil {
		return err
	}
	path := "/api/profile/" + url.PathEscape(userID) + "/password"
	return c.do(ctx, request{method: http.MethodPut, path: path, body: change}, nil)
}

func (c *Client) DeleteAvatar(ctx context.Context, userID string) error {
	path := "/api/profile/" + url.PathEscape(userID) + "/avatar"
	return c.do(ctx, request{method: http.MethodDelete, path: path}, nil)
}
