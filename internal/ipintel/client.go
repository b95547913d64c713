// Package ipintel wraps the third-party IP intelligence provider used
// for Stage-2 classification, plus the BOT-only result cache that
// keeps the gateway from paying for a lookup on every request.
package ipintel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ignite/redirectgate/internal/pkg/httpretry"
)

// Response is the subset of the provider's JSON response the decision
// engine consumes. fraud_score and is_proxy are recorded but must not
// influence the verdict.
type Response struct {
	CountryName              string `json:"country_name"`
	CountryCode              string `json:"country_code"`
	RegionName               string `json:"region_name"`
	CityName                 string `json:"city_name"`
	ISP                      string `json:"isp"`
	AS                       string `json:"as"`
	UsageType                string `json:"usage_type"`
	AdsCategoryName          string `json:"ads_category_name"`
	AdsCategory              string `json:"ads_category"`
	ProxyType                string `json:"proxy_type"`
	IsVPN                    bool   `json:"is_vpn"`
	IsDataCenter             bool   `json:"is_data_center"`
	IsPublicProxy            bool   `json:"is_public_proxy"`
	IsWebProxy               bool   `json:"is_web_proxy"`
	IsWebCrawler             bool   `json:"is_web_crawler"`
	IsScanner                bool   `json:"is_scanner"`
	IsConsumerPrivacyNetwork bool   `json:"is_consumer_privacy_network"`
	IsResidentialProxy       bool   `json:"is_residential_proxy"`
	IsProxy                  bool   `json:"is_proxy"`
	FraudScore               int    `json:"fraud_score"`
	Proxy                    struct {
		IsResidentialProxy bool `json:"is_residential_proxy"`
	} `json:"proxy"`
}

// ResidentialProxy returns true if either the top-level or nested
// proxy.is_residential_proxy field is set — the provider has been
// observed to report this under either shape.
func (r Response) ResidentialProxy() bool {
	return r.IsResidentialProxy || r.Proxy.IsResidentialProxy
}

// Client calls the external IP intelligence API over HTTPS, with
// retry/backoff bounded by the caller's context deadline.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient httpretry.HTTPDoer
}

// New creates a Client. baseURL should be the region-appropriate host,
// e.g. https://api.ip2location.io or https://api.eu.ip2location.io.
func New(baseURL, apiKey string, timeout time.Duration, maxRetries int) *Client {
	base := &http.Client{Timeout: timeout}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: httpretry.NewRetryClient(base, maxRetries),
	}
}

// Lookup queries the provider for ip. The caller is expected to have
// already attached the Stage-2 wall-clock deadline to ctx; a single
// context deadline naturally bounds however many retries fit inside it.
func (c *Client) Lookup(ctx context.Context, ip string) (*Response, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("ipintel: invalid base url: %w", err)
	}
	q := u.Query()
	q.Set("key", c.apiKey)
	q.Set("ip", ip)
	q.Set("format", "json")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("ipintel: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ipintel: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ipintel: unexpected status %d", resp.StatusCode)
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("ipintel: decode response: %w", err)
	}
	return &out, nil
}
