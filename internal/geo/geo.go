// Package geo resolves a best-effort location for an IP address using an
// external lookup service. Failures here must never abort a verification:
// callers log them and fall back to IP-only scan data.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// DefaultBaseURL is the lookup endpoint used when none is configured.
const DefaultBaseURL = "http://ip-api.com/json"

// Location is a coarse IP-derived position.
type Location struct {
	City      string  `json:"city"`
	Region    string  `json:"region"`
	Country   string  `json:"country"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Resolver looks up locations against a JSON IP-geolocation API.
type Resolver struct {
	BaseURL string
	Client  *http.Client
}

// NewResolver returns a resolver with a short timeout, since lookups sit
// on the verification request path.
func NewResolver(baseURL string) *Resolver {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Resolver{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 3 * time.Second},
	}
}

type lookupResponse struct {
	Status     string  `json:"status"`
	Message    string  `json:"message"`
	City       string  `json:"city"`
	RegionName string  `json:"regionName"`
	Country    string  `json:"country"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
}

// Lookup resolves ip to a location.
func (r *Resolver) Lookup(ctx context.Context, ip string) (*Location, error) {
	if ip == "" {
		return nil, fmt.Errorf("empty ip")
	}

	url := strings.TrimRight(r.BaseURL, "/") + "/" + ip
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building lookup request: %w", err)
	}

	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geolocation lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geolocation lookup: unexpected status %d", resp.StatusCode)
	}

	var body lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding lookup response: %w", err)
	}

	if body.Status != "success" {
		return nil, fmt.Errorf("geolocation lookup failed: %s", body.Message)
	}

	return &Location{
		City:      body.City,
		Region:    body.RegionName,
		Country:   body.Country,
		Latitude:  body.Lat,
		Longitude: body.Lon,
	}, nil
}
