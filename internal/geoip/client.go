package geoip

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// UnknownCountry is reported when the lookup is disabled, the address is
// missing, or the upstream service cannot resolve it.
const UnknownCountry = "UNKNOWN"

// Resolver maps a client IP address to a country code. Lookups are
// best-effort: a Resolver never fails, it reports UnknownCountry instead.
type Resolver interface {
	Country(ctx context.Context, ipAddress string) string
}

// Client resolves countries through an ipinfo.io style JSON endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new geoip client
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Country looks up the country for the given IP address
func (c *Client) Country(ctx context.Context, ipAddress string) string {
	if ipAddress == "" || ipAddress == UnknownCountry {
		return UnknownCountry
	}

	url := fmt.Sprintf("%s/%s/json", c.baseURL, ipAddress)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		c.logger.Warn("Failed to build geoip request", zap.String("ip", ipAddress), zap.Error(err))
		return UnknownCountry
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Geoip lookup failed", zap.String("ip", ipAddress), zap.Error(err))
		return UnknownCountry
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("Geoip lookup returned non-OK status",
			zap.String("ip", ipAddress),
			zap.Int("status", resp.StatusCode))
		return UnknownCountry
	}

	var details struct {
		Country string `json:"country"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&details); err != nil {
		c.logger.Warn("Failed to parse geoip response", zap.String("ip", ipAddress), zap.Error(err))
		return UnknownCountry
	}

	if details.Country == "" {
		return UnknownCountry
	}
	return details.Country
}

// Disabled is a Resolver used when country lookups are turned off in config.
type Disabled struct{}

// Country always reports UnknownCountry
func (Disabled) Country(ctx context.Context, ipAddress string) string {
	return UnknownCountry
}
