// Package directory is an HTTP client for the practice directory service,
// the system of record for patients, partners, services and rooms.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client calls the practice directory over HTTP. Lookups are cheap reads and
// support optional Redis caching; a negative lookup is never cached.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	redis    *redis.Client
	cacheTTL time.Duration
}

type existsResponse struct {
	Exists bool `json:"exists"`
	Active bool `json:"active"`
}

// NewClient constructs a directory client with baseURL and an API key.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// UseRedisCache configures optional Redis caching for lookups.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

// PatientExists reports whether a patient record exists and is active.
func (c *Client) PatientExists(ctx context.Context, id int64) (bool, error) {
	return c.exists(ctx, "patients", id)
}

// PartnerExists reports whether a partner record exists and is active.
func (c *Client) PartnerExists(ctx context.Context, id int64) (bool, error) {
	return c.exists(ctx, "partners", id)
}

// ServiceExists reports whether a service record exists and is active.
func (c *Client) ServiceExists(ctx context.Context, id int64) (bool, error) {
	return c.exists(ctx, "services", id)
}

// RoomExists reports whether a room record exists and is active.
func (c *Client) RoomExists(ctx context.Context, id int64) (bool, error) {
	return c.exists(ctx, "rooms", id)
}

func (c *Client) exists(ctx context.Context, kind string, id int64) (bool, error) {
	endpoint := fmt.Sprintf("%s/api/v1/%s/%d", c.baseURL, url.PathEscape(kind), id)
	cacheKey := fmt.Sprintf("directory:%s:%d", kind, id)

	var resp existsResponse
	if c.readCache(ctx, cacheKey, &resp) {
		return resp.Exists && resp.Active, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return false, err
	}
	c.addHeaders(req)

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("directory lookup %s/%d: %w", kind, id, err)
	}
	defer httpResp.Body.Close()

	switch {
	case httpResp.StatusCode == http.StatusNotFound:
		return false, nil
	case httpResp.StatusCode >= 300:
		return false, fmt.Errorf("directory lookup %s/%d: http %d", kind, id, httpResp.StatusCode)
	}

	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return false, fmt.Errorf("directory lookup %s/%d: decode: %w", kind, id, err)
	}

	if resp.Exists && resp.Active {
		c.writeCache(ctx, cacheKey, resp)
	}
	return resp.Exists && resp.Active, nil
}

// HealthCheck verifies the directory service is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/healthz", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.cacheTTL).Err()
}

func (c *Client) addHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
}
