// Package directory resolves recipient roles into concrete addresses through
// the staff directory collaborator's HTTP API.
//
// Role membership changes between hook configuration time and signal time,
// so roles are resolved at match time, never stored on the hook. Responses
// are cached briefly to keep burst signal traffic off the directory.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/doron007/realtechee-notify/internal/domain"
	"github.com/doron007/realtechee-notify/internal/pkg/httpretry"
	"github.com/doron007/realtechee-notify/internal/pkg/logger"
)

// Resolver looks up the addresses behind a role name.
type Resolver interface {
	ResolveRole(ctx context.Context, role string, channel domain.Channel) ([]string, error)
}

// Client is the HTTP directory client with a per-role response cache.
type Client struct {
	baseURL  string
	apiKey   string
	http     httpretry.HTTPDoer
	cacheTTL time.Duration

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	addresses []string
	expires   time.Time
}

// NewClient creates a directory client. apiKey may be empty when the
// directory does not require authentication.
func NewClient(baseURL, apiKey string, timeout, cacheTTL time.Duration) *Client {
	return &Client{
		baseURL:  baseURL,
		apiKey:   apiKey,
		http:     httpretry.NewRetryClient(&http.Client{Timeout: timeout}, 2),
		cacheTTL: cacheTTL,
		cache:    make(map[string]cacheEntry),
	}
}

type membersResponse struct {
	Members []struct {
		Email  string `json:"email"`
		Phone  string `json:"phone"`
		Active bool   `json:"active"`
	} `json:"members"`
}

// ResolveRole returns the active members' addresses for a role on a channel.
// An unknown role resolves to an empty list, not an error: the caller logs
// and continues with whatever other recipients the hook names.
func (c *Client) ResolveRole(ctx context.Context, role string, channel domain.Channel) ([]string, error) {
	key := role + "|" + string(channel)

	c.mu.RLock()
	if e, ok := c.cache[key]; ok && time.Now().Before(e.expires) {
		c.mu.RUnlock()
		return e.addresses, nil
	}
	c.mu.RUnlock()

	u := fmt.Sprintf("%s/api/roles/%s/members", c.baseURL, url.PathEscape(role))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory lookup for role %s: %w", role, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		logger.Warn("directory role not found", "role", role)
		c.store(key, nil)
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("directory returned %d for role %s: %s", resp.StatusCode, role, string(body))
	}

	var mr membersResponse
	if err := json.NewDecoder(resp.Body).Decode(&mr); err != nil {
		return nil, fmt.Errorf("decode directory response for role %s: %w", role, err)
	}

	var addresses []string
	for _, m := range mr.Members {
		if !m.Active {
			continue
		}
		switch channel {
		case domain.ChannelEmail:
			if m.Email != "" {
				addresses = append(addresses, m.Email)
			}
		case domain.ChannelSMS:
			if m.Phone != "" {
				addresses = append(addresses, m.Phone)
			}
		}
	}

	c.store(key, addresses)
	return addresses, nil
}

func (c *Client) store(key string, addresses []string) {
	c.mu.Lock()
	c.cache[key] = cacheEntry{addresses: addresses, expires: time.Now().Add(c.cacheTTL)}
	c.mu.Unlock()
}

// StaticResolver serves role membership from a fixed map. Used in tests and
// in deployments without a directory collaborator.
type StaticResolver map[string][]string

// ResolveRole returns the configured addresses for the role, ignoring channel.
func (s StaticResolver) ResolveRole(_ context.Context, role string, _ domain.Channel) ([]string, error) {
	return s[role], nil
}
