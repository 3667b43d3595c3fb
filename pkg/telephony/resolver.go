package telephony

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// DefaultNgrokAPIURL is the local ngrok agent's inspection API.
const DefaultNgrokAPIURL = "http://127.0.0.1:4040/api/tunnels"

// PublicURLResolver resolves the externally reachable base URL of this server,
// which the carrier needs for TwiML and media-stream callbacks.
type PublicURLResolver interface {
	// PublicURL returns the public base URL (scheme and host, no trailing
	// slash), e.g. "https://abc123.ngrok.app".
	PublicURL(ctx context.Context) (string, error)
}

// StaticResolver returns a fixed, operator-configured public URL.
type StaticResolver string

// PublicURL implements PublicURLResolver.
func (s StaticResolver) PublicURL(context.Context) (string, error) {
	if s == "" {
		return "", fmt.Errorf("telephony: public URL not configured")
	}
	return strings.TrimRight(string(s), "/"), nil
}

// NgrokResolver discovers the public URL from a locally running ngrok agent
// by querying its inspection API. Used in development where the tunnel URL
// changes on every agent restart.
type NgrokResolver struct {
	apiURL     string
	httpClient *http.Client
}

// NgrokOption is a functional option for NgrokResolver.
type NgrokOption func(*NgrokResolver)

// WithNgrokAPIURL overrides the agent inspection API URL. Primarily used in
// tests to point at a local mock server.
func WithNgrokAPIURL(url string) NgrokOption {
	return func(r *NgrokResolver) { r.apiURL = url }
}

// NewNgrokResolver creates a resolver against the local ngrok agent.
func NewNgrokResolver(opts ...NgrokOption) *NgrokResolver {
	r := &NgrokResolver{
		apiURL:     DefaultNgrokAPIURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

type ngrokTunnels struct {
	Tunnels []ngrokTunnel `json:"tunnels"`
}

type ngrokTunnel struct {
	PublicURL string `json:"public_url"`
	Proto     string `json:"proto"`
}

// PublicURL implements PublicURLResolver. HTTPS tunnels are preferred; a
// plain HTTP tunnel is used only when no HTTPS tunnel exists.
func (r *NgrokResolver) PublicURL(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.apiURL, nil)
	if err != nil {
		return "", fmt.Errorf("telephony: ngrok: build request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("telephony: ngrok: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("telephony: ngrok: unexpected status %d", resp.StatusCode)
	}

	var tunnels ngrokTunnels
	if err := json.NewDecoder(resp.Body).Decode(&tunnels); err != nil {
		return "", fmt.Errorf("telephony: ngrok: decode: %w", err)
	}

	var fallback string
	for _, t := range tunnels.Tunnels {
		if strings.HasPrefix(t.PublicURL, "https://") {
			return t.PublicURL, nil
		}
		if fallback == "" && t.PublicURL != "" {
			fallback = t.PublicURL
		}
	}
	if fallback != "" {
		return fallback, nil
	}
	return "", fmt.Errorf("telephony: ngrok: no active tunnels")
}
