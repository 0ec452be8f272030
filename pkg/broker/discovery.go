package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Endpoint describes a single broker connection resolved via the
// discovery service of spec §6 ("discovery" literal in the brokers
// list).
type Endpoint struct {
	Protocol string `json:"protocol"`
	URI      string `json:"uri"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// DiscoveryClient resolves broker connection details from a discovery
// HTTP endpoint, adapted from the teacher's GetBroker-style support
// lookup over a plain JSON GET.
type DiscoveryClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewDiscoveryClient returns a client against baseURL with a sane
// request timeout.
func NewDiscoveryClient(baseURL string) *DiscoveryClient {
	return &DiscoveryClient{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Resolve fetches GET {base}/v0.1/brokers and decodes the body as a
// JSON array of Endpoint values. The request path is fixed: no
// per-broker path segment is sent, and BaseURL's scheme is not checked.
func (d *DiscoveryClient) Resolve(ctx context.Context) ([]Endpoint, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.BaseURL+"/v0.1/brokers", nil)
	if err != nil {
		return nil, err
	}

	resp, err := d.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("discovery request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discovery endpoint returned status %d", resp.StatusCode)
	}

	var endpoints []Endpoint
	if err := json.NewDecoder(resp.Body).Decode(&endpoints); err != nil {
		return nil, fmt.Errorf("decoding discovery response: %w", err)
	}
	return endpoints, nil
}
