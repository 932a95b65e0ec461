package remotechat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client talks to a Mattermost v4 style HTTP API. Every call carries the
// bearer token it is given; admin calls use the configured admin token.
// Nothing is retried.
type Client struct {
	baseURL    string
	adminToken string
	httpClient *http.Client
}

func NewClient(baseURL, adminToken string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		adminToken: adminToken,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// WithHTTPClient swaps the transport, mostly for tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// --- Users and teams (admin token) ---

func (c *Client) CreateUser(ctx context.Context, in NewUser) (User, error) {
	var out User
	err := c.do(ctx, http.MethodPost, "/users", c.adminToken, in, &out)
	return out, err
}

func (c *Client) UpdateRoles(ctx context.Context, userID, roles string) error {
	body := map[string]string{"roles": roles}
	return c.do(ctx, http.MethodPut, "/users/"+url.PathEscape(userID)+"/roles", c.adminToken, body, nil)
}

func (c *Client) CreateAccessToken(ctx context.Context, userID, description string) (UserAccessToken, error) {
	var out UserAccessToken
	body := map[string]string{"description": description}
	err := c.do(ctx, http.MethodPost, "/users/"+url.PathEscape(userID)+"/tokens", c.adminToken, body, &out)
	return out, err
}

func (c *Client) RevokeAccessToken(ctx context.Context, tokenID string) error {
	body := map[string]string{"token_id": tokenID}
	return c.do(ctx, http.MethodPost, "/users/tokens/revoke", c.adminToken, body, nil)
}

func (c *Client) AddTeamMember(ctx context.Context, teamID, userID string) error {
	body := map[string]string{"team_id": teamID, "user_id": userID}
	return c.do(ctx, http.MethodPost, "/teams/"+url.PathEscape(teamID)+"/members", c.adminToken, body, nil)
}

// --- Channels ---

func (c *Client) CreateChannel(ctx context.Context, token string, in Channel) (Channel, error) {
	raw, err := c.doRaw(ctx, http.MethodPost, "/channels", token, in)
	if err != nil {
		return Channel{}, err
	}
	var out Channel
	if err := json.Unmarshal(raw, &out); err != nil {
		return Channel{}, fmt.Errorf("remotechat: decode channel: %w", err)
	}
	if err := json.Unmarshal(raw, &out.Payload); err != nil {
		return Channel{}, fmt.Errorf("remotechat: decode channel payload: %w", err)
	}
	return out, nil
}

func (c *Client) DeleteChannel(ctx context.Context, token, channelID string) error {
	return c.do(ctx, http.MethodDelete, "/channels/"+url.PathEscape(channelID), token, nil, nil)
}

func (c *Client) AddChannelMember(ctx context.Context, token, channelID, remoteUserID string) error {
	body := map[string]string{"user_id": remoteUserID}
	return c.do(ctx, http.MethodPost, "/channels/"+url.PathEscape(channelID)+"/members", token, body, nil)
}

func (c *Client) RemoveChannelMember(ctx context.Context, token, channelID, remoteUserID string) error {
	path := "/channels/" + url.PathEscape(channelID) + "/members/" + url.PathEscape(remoteUserID)
	return c.do(ctx, http.MethodDelete, path, token, nil, nil)
}

func (c *Client) GetChannelUnread(ctx context.Context, token, remoteUserID, channelID string) (ChannelUnread, error) {
	var out ChannelUnread
	path := "/users/" + url.PathEscape(remoteUserID) + "/channels/" + url.PathEscape(channelID) + "/unread"
	err := c.do(ctx, http.MethodGet, path, token, nil, &out)
	return out, err
}

// --- Posts ---

func (c *Client) CreatePost(ctx context.Context, token string, in Post) (Post, error) {
	var out Post
	err := c.do(ctx, http.MethodPost, "/posts", token, in, &out)
	return out, err
}

func (c *Client) DeletePost(ctx context.Context, token, postID string) error {
	return c.do(ctx, http.MethodDelete, "/posts/"+url.PathEscape(postID), token, nil, nil)
}

func (c *Client) GetChannelPosts(ctx context.Context, token, channelID string, page, perPage int) (PostList, error) {
	var out PostList
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))
	path := "/channels/" + url.PathEscape(channelID) + "/posts?" + q.Encode()
	err := c.do(ctx, http.MethodGet, path, token, nil, &out)
	return out, err
}

// Forward relays a raw request to the backend under token. The caller owns
// the response body. Non-2xx answers are returned as responses, not errors.
func (c *Client) Forward(ctx context.Context, token, method, path, rawQuery string, header http.Header, body io.Reader) (*http.Response, error) {
	target := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if rawQuery != "" {
		target += "?" + rawQuery
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("remotechat: build forward request: %w", err)
	}
	for _, key := range []string{"Content-Type", "Accept"} {
		if v := header.Get(key); v != "" {
			req.Header.Set(key, v)
		}
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remotechat: forward %s %s: %w", method, path, err)
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	raw, err := c.doRaw(ctx, method, path, token, body)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("remotechat: decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) doRaw(ctx context.Context, method, path, token string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("remotechat: encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("remotechat: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remotechat: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("remotechat: read response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return raw, nil
	}

	remoteErr := &Error{}
	_ = json.Unmarshal(raw, remoteErr)
	remoteErr.Method = method
	remoteErr.Path = path
	remoteErr.StatusCode = resp.StatusCode
	return nil, remoteErr
}
