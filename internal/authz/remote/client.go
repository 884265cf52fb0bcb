// Package remote implements the HTTP/JSON client for the external
// authorization backend's token and admin APIs.
package remote

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

	"github.com/google/uuid"

	"github.com/skcc-wooyoungmoon/agentframework-sub000/internal/authz"
)

// ErrUnauthorizedSession indicates the backend rejected the admin session
// token. Callers refresh the session and retry exactly once.
var ErrUnauthorizedSession = errors.New("remote: unauthorized session")

// TokenSource supplies and refreshes the admin session token attached to
// every admin API call.
type TokenSource interface {
	Ensure(ctx context.Context) (string, error)
	Invalidate()
}

// Client talks to the authorization backend. It implements authz.Backend.
type Client struct {
	baseURL  string
	realm    string
	clientID string
	httpc    *http.Client
	tokens   TokenSource
}

var _ authz.Backend = (*Client)(nil)

// Option configures Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client (transport timeouts live there).
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.httpc = c
		}
	}
}

// New constructs a Client for the given backend base URL and realm.
func New(baseURL, realm, clientID string, opts ...Option) *Client {
	cl := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		realm:    realm,
		clientID: clientID,
		httpc:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(cl)
	}
	return cl
}

// SetTokenSource binds the admin session source. Wired after construction
// because the session cache itself logs in through this client.
func (c *Client) SetTokenSource(ts TokenSource) { c.tokens = ts }

// Login performs a password-grant credential login against the token endpoint.
func (c *Client) Login(ctx context.Context, username, password string) (authz.Token, error) {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("client_id", c.clientID)
	form.Set("username", username)
	form.Set("password", password)

	endpoint := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", c.baseURL, c.realm)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return authz.Token{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return authz.Token{}, fmt.Errorf("login: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return authz.Token{}, statusError("POST", endpoint, resp)
	}

	var body struct {
		AccessToken      string `json:"access_token"`
		RefreshToken     string `json:"refresh_token"`
		TokenType        string `json:"token_type"`
		ExpiresIn        int64  `json:"expires_in"`
		RefreshExpiresIn int64  `json:"refresh_expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return authz.Token{}, fmt.Errorf("login: decode response: %w", err)
	}
	return authz.Token{
		AccessToken:      body.AccessToken,
		RefreshToken:     body.RefreshToken,
		TokenType:        body.TokenType,
		ExpiresIn:        body.ExpiresIn,
		RefreshExpiresIn: body.RefreshExpiresIn,
	}, nil
}

// CreatePolicy registers the policy set for a resource.
func (c *Client) CreatePolicy(ctx context.Context, resourceURL string, policies []authz.PolicyRequest) ([]authz.PolicyRequest, error) {
	return c.policyCall(ctx, http.MethodPost, resourceURL, policies)
}

// UpdatePolicy replaces the policy set for a resource. An empty result means
// the backend had nothing to update.
func (c *Client) UpdatePolicy(ctx context.Context, resourceURL string, policies []authz.PolicyRequest) ([]authz.PolicyRequest, error) {
	return c.policyCall(ctx, http.MethodPut, resourceURL, policies)
}

func (c *Client) policyCall(ctx context.Context, method, resourceURL string, policies []authz.PolicyRequest) ([]authz.PolicyRequest, error) {
	endpoint := fmt.Sprintf("%s/admin/realms/%s/policies?resource=%s",
		c.baseURL, c.realm, url.QueryEscape(resourceURL))
	var out []authz.PolicyRequest
	if err := c.doJSON(ctx, method, endpoint, policies, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateGroup creates a backend group and returns its id.
func (c *Client) CreateGroup(ctx context.Context, name string) (string, error) {
	endpoint := fmt.Sprintf("%s/admin/realms/%s/groups", c.baseURL, c.realm)
	var out struct {
		ID string `json:"id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, endpoint, map[string]string{"name": name}, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// DeleteGroup removes a backend group by id.
func (c *Client) DeleteGroup(ctx context.Context, id string) error {
	endpoint := fmt.Sprintf("%s/admin/realms/%s/groups/%s", c.baseURL, c.realm, url.PathEscape(id))
	return c.doJSON(ctx, http.MethodDelete, endpoint, nil, nil)
}

// SearchGroups lists backend groups matching a keyword, paged.
func (c *Client) SearchGroups(ctx context.Context, keyword string, page, size int) ([]authz.Group, error) {
	endpoint := fmt.Sprintf("%s/admin/realms/%s/groups?search=%s&first=%s&max=%s",
		c.baseURL, c.realm,
		url.QueryEscape(keyword),
		strconv.Itoa(page*size),
		strconv.Itoa(size))
	var out []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, err
	}
	groups := make([]authz.Group, 0, len(out))
	for _, g := range out {
		groups = append(groups, authz.Group{ID: g.ID, Name: g.Name})
	}
	return groups, nil
}

// AssignUser puts a member into a group.
func (c *Client) AssignUser(ctx context.Context, memberRef, groupID string) error {
	endpoint := c.userGroupEndpoint(memberRef, groupID)
	return c.doJSON(ctx, http.MethodPut, endpoint, nil, nil)
}

// UnassignUser removes a member from a group.
func (c *Client) UnassignUser(ctx context.Context, memberRef, groupID string) error {
	endpoint := c.userGroupEndpoint(memberRef, groupID)
	return c.doJSON(ctx, http.MethodDelete, endpoint, nil, nil)
}

func (c *Client) userGroupEndpoint(memberRef, groupID string) string {
	return fmt.Sprintf("%s/admin/realms/%s/users/%s/groups/%s",
		c.baseURL, c.realm, url.PathEscape(memberRef), url.PathEscape(groupID))
}

// doJSON issues one authenticated admin request. A stale-session rejection
// invalidates the cached token and retries exactly once.
func (c *Client) doJSON(ctx context.Context, method, endpoint string, in, out any) error {
	err := c.doJSONOnce(ctx, method, endpoint, in, out)
	if !errors.Is(err, ErrUnauthorizedSession) {
		return err
	}
	if c.tokens != nil {
		c.tokens.Invalidate()
	}
	return c.doJSONOnce(ctx, method, endpoint, in, out)
}

func (c *Client) doJSONOnce(ctx context.Context, method, endpoint string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("X-Request-Id", uuid.NewString())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens.Ensure(ctx)
		if err != nil {
			return fmt.Errorf("admin session: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: %s %s", ErrUnauthorizedSession, method, endpoint)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(method, endpoint, resp)
	}
	if out == nil {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

func statusError(method, endpoint string, resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	return fmt.Errorf("backend rejected %s %s: status %d: %s",
		method, endpoint, resp.StatusCode, strings.TrimSpace(string(snippet)))
}
