package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"situation-room/internal/cache"
	"situation-room/pkg/logger"
)

// Profile is one entry of the tenant user directory.
type Profile struct {
	UserID    string `json:"userId"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

func (p Profile) DisplayName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Client reads the tenant user directory over HTTP and keeps the whole list
// in a TTL cache keyed by tenant.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      cache.Cache
	ttl        time.Duration
	logger     *logger.Logger
}

func NewClient(baseURL string, timeout time.Duration, c cache.Cache, ttl time.Duration, l *logger.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimSpace(baseURL),
		httpClient: &http.Client{Timeout: timeout},
		cache:      c,
		ttl:        ttl,
		logger:     logger.OrGlobal(l),
	}
}

// Profiles returns the tenant's directory. With no directory configured the
// list is empty.
func (c *Client) Profiles(ctx context.Context, tenantID string) ([]Profile, error) {
	if c == nil || c.baseURL == "" {
		return nil, nil
	}
	return cache.ReadThrough(ctx, c.cache, cache.DirectoryKey(tenantID), c.ttl, func(ctx context.Context) ([]Profile, error) {
		return c.fetch(ctx, tenantID)
	})
}

func (c *Client) Lookup(ctx context.Context, tenantID, userID string) (Profile, bool) {
	profiles, err := c.Profiles(ctx, tenantID)
	if err != nil {
		c.logger.WithContext(ctx).Warnf("directory lookup failed for tenant %s: %v", tenantID, err)
		return Profile{}, false
	}
	for _, p := range profiles {
		if strings.EqualFold(p.UserID, userID) {
			return p, true
		}
	}
	return Profile{}, false
}

// DisplayName falls back to the user id when the directory has no name.
func (c *Client) DisplayName(ctx context.Context, tenantID, userID string) string {
	if p, ok := c.Lookup(ctx, tenantID, userID); ok && p.DisplayName() != "" {
		return p.DisplayName()
	}
	return userID
}

func (c *Client) Email(ctx context.Context, tenantID, userID string) string {
	if p, ok := c.Lookup(ctx, tenantID, userID); ok {
		return p.Email
	}
	return ""
}

func (c *Client) fetch(ctx context.Context, tenantID string) ([]Profile, error) {
	target, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("directory: bad url: %w", err)
	}
	q := target.Query()
	q.Set("tenant", tenantID)
	target.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("directory: unexpected status %d", resp.StatusCode)
	}

	var profiles []Profile
	if err := json.NewDecoder(resp.Body).Decode(&profiles); err != nil {
		return nil, fmt.Errorf("directory: decode: %w", err)
	}
	return profiles, nil
}
