package dns

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

	"github.com/launchdeck/launchdeck/internal/pkg/env"
)

// Client provisions subdomain DNS records at the external DNS provider.
// Calls are bounded by the HTTP client timeout; a timeout counts as a
// failure for retry accounting.
type Client struct {
	APIBaseURL string
	APIToken   string
	Zone       string
	TargetHost string

	HTTPClient *http.Client
}

// NewClientFromEnv builds a DNS client from environment configuration.
func NewClientFromEnv() *Client {
	return &Client{
		APIBaseURL: strings.TrimRight(env.GetEnv("DNS_API_BASE_URL", ""), "/"),
		APIToken:   strings.TrimSpace(env.GetEnv("DNS_API_TOKEN", "")),
		Zone:       strings.TrimSpace(env.GetEnv("DNS_ZONE", "")),
		TargetHost: strings.TrimSpace(env.GetEnv("DNS_TARGET_HOST", "")),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// CreateRecord registers a CNAME for the tenant subdomain pointing at the
// platform edge host. The provider treats repeated creates for the same
// name as an update, so the call is safe to retry.
func (c *Client) CreateRecord(ctx context.Context, subdomain string) error {
	if c.APIBaseURL == "" || c.APIToken == "" || c.Zone == "" {
		return errors.New("DNS_API_BASE_URL, DNS_API_TOKEN and DNS_ZONE must be configured")
	}
	name := strings.ToLower(strings.TrimSpace(subdomain))
	if name == "" {
		return errors.New("subdomain is required")
	}

	payload, err := json.Marshal(map[string]interface{}{
		"type":    "CNAME",
		"name":    name,
		"content": c.TargetHost,
		"proxied": true,
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/zones/%s/dns_records", c.APIBaseURL, c.Zone)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("dns record create failed: status=%d body=%s", resp.StatusCode, string(body))
	}
	return nil
}
