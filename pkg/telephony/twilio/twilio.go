// Package twilio implements the telephony.Carrier interface against the
// Twilio REST API.
//
// Calls are originated with a form-encoded POST to the account's Calls
// resource and polled with GETs against the individual call resource. Only
// net/http is used; the full Twilio SDK is not required for this surface.
package twilio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vocalq/outbound/pkg/telephony"
)

// DefaultBaseURL is the Twilio REST API base URL.
const DefaultBaseURL = "https://api.twilio.com/2010-04-01"

// Compile-time assertion that Carrier satisfies telephony.Carrier.
var _ telephony.Carrier = (*Carrier)(nil)

// Carrier implements telephony.Carrier using the Twilio REST API.
// Safe for concurrent use.
type Carrier struct {
	accountSID string
	authToken  string
	baseURL    string
	httpClient *http.Client
}

// Option is a functional option for Carrier.
type Option func(*Carrier)

// WithBaseURL overrides the REST API base URL. Primarily used in tests to
// point at a local mock server.
func WithBaseURL(u string) Option {
	return func(c *Carrier) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Carrier) { c.httpClient = hc }
}

// New creates a Carrier for the given Twilio account credentials.
func New(accountSID, authToken string, opts ...Option) (*Carrier, error) {
	if accountSID == "" {
		return nil, fmt.Errorf("twilio: accountSID must not be empty")
	}
	if authToken == "" {
		return nil, fmt.Errorf("twilio: authToken must not be empty")
	}

	c := &Carrier{
		accountSID: accountSID,
		authToken:  authToken,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// callResource is the subset of Twilio's call resource representation that
// the carrier surface needs.
type callResource struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

// PlaceCall implements telephony.Carrier by POSTing to the Calls resource.
func (c *Carrier) PlaceCall(ctx context.Context, params telephony.PlaceCallParams) (string, error) {
	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls.json", c.baseURL, c.accountSID)

	form := url.Values{}
	form.Set("To", params.To)
	form.Set("From", params.From)
	form.Set("Url", params.TwiMLURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("twilio: place call: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.accountSID, c.authToken)

	var call callResource
	if err := c.do(req, &call); err != nil {
		return "", fmt.Errorf("twilio: place call: %w", err)
	}
	if call.SID == "" {
		return "", fmt.Errorf("twilio: place call: response missing sid")
	}
	return call.SID, nil
}

// CallStatus implements telephony.Carrier by GETting the call resource.
func (c *Carrier) CallStatus(ctx context.Context, callSID string) (string, error) {
	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls/%s.json", c.baseURL, c.accountSID, callSID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("twilio: call status: build request: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)

	var call callResource
	if err := c.do(req, &call); err != nil {
		return "", fmt.Errorf("twilio: call status: %w", err)
	}
	return call.Status, nil
}

// do executes req and decodes the JSON response into out.
func (c *Carrier) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
