package entitlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Snapshot is a point-in-time read of the user's premium access. It is never
// cached: every gated flow start asks the site again.
type Snapshot struct {
	HasSubscription bool
	PackageUses     int
}

// Allowed reports whether the snapshot grants access to a gated flow.
func (s Snapshot) Allowed() bool {
	return s.HasSubscription || s.PackageUses > 0
}

// Client queries the site API for subscription and package state.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient builds a site API client. The key is sent as a bearer token.
func NewClient(baseURL, apiKey string) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("site api base url required")
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type subscriptionResponse struct {
	Active bool `json:"active"`
}

type packagesResponse struct {
	RemainingUses int `json:"remaining_uses"`
}

// Check reads both entitlement sources fresh and combines them.
func (c *Client) Check(ctx context.Context, externalID int64) (Snapshot, error) {
	sub, err := c.Subscription(ctx, externalID)
	if err != nil {
		return Snapshot{}, err
	}
	uses, err := c.PackageBalance(ctx, externalID)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{HasSubscription: sub, PackageUses: uses}, nil
}

// Subscription reports whether the user has an active subscription.
func (c *Client) Subscription(ctx context.Context, externalID int64) (bool, error) {
	var out subscriptionResponse
	if err := c.get(ctx, fmt.Sprintf("/api/users/%d/subscription", externalID), &out); err != nil {
		return false, err
	}
	return out.Active, nil
}

// PackageBalance reports the total remaining prepaid uses.
func (c *Client) PackageBalance(ctx context.Context, externalID int64) (int, error) {
	var out packagesResponse
	if err := c.get(ctx, fmt.Sprintf("/api/users/%d/packages", externalID), &out); err != nil {
		return 0, err
	}
	return out.RemainingUses, nil
}

// Healthy pings the site API with a short deadline.
func (c *Client) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// WebviewURL builds the site link for a menu section, carrying the user id
// so the site can attribute the visit.
func (c *Client) WebviewURL(section string, externalID int64) string {
	base := strings.TrimSuffix(c.baseURL, "/api")
	var url string
	switch section {
	case "handbook", "tests", "subscription", "packages", "courses", "cards":
		url = base + "/" + section
	default:
		url = base
	}
	if externalID > 0 {
		sep := "?"
		if strings.Contains(url, "?") {
			sep = "&"
		}
		url += fmt.Sprintf("%suser_id=%d", sep, externalID)
	}
	return url
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build site api request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("site api %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("site api %s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode site api %s: %w", path, err)
	}
	return nil
}
