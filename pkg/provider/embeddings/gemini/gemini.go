// Package gemini provides an embeddings provider backed by Google's
// Generative Language API.
//
// It calls the embedContent / batchEmbedContents REST endpoints directly with
// models such as text-embedding-004. Only net/http and encoding/json are used;
// the full Gemini SDK is not required for the embeddings surface.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/vocalq/outbound/pkg/provider/embeddings"
)

// DefaultBaseURL is the Generative Language API base URL.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// DefaultModel is the default Gemini embeddings model.
const DefaultModel = "text-embedding-004"

// Ensure Provider implements the embeddings.Provider interface at compile time.
var _ embeddings.Provider = (*Provider)(nil)

// Provider implements embeddings.Provider using the Generative Language API.
// Safe for concurrent use.
type Provider struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// config holds optional configuration collected from functional options.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the API base URL. Primarily used in tests to point at
// a local mock server.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout. A zero or negative value means
// no timeout (the default).
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new Gemini embeddings Provider.
// If model is empty, DefaultModel (text-embedding-004) is used.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini embeddings: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{baseURL: DefaultBaseURL}
	for _, o := range opts {
		o(cfg)
	}

	httpClient := &http.Client{}
	if cfg.timeout > 0 {
		httpClient.Timeout = cfg.timeout
	}

	return &Provider{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(cfg.baseURL, "/"),
		model:      model,
		httpClient: httpClient,
	}, nil
}

// contentPayload is the text container shared by embed requests.
type contentPayload struct {
	Parts []textPart `json:"parts"`
}

type textPart struct {
	Text string `json:"text"`
}

// embedRequest is the JSON body for the embedContent endpoint.
type embedRequest struct {
	Model   string         `json:"model"`
	Content contentPayload `json:"content"`
}

// embedResponse is the JSON response from the embedContent endpoint.
type embedResponse struct {
	Embedding vectorValues `json:"embedding"`
}

type vectorValues struct {
	Values []float32 `json:"values"`
}

// batchEmbedRequest is the JSON body for the batchEmbedContents endpoint.
type batchEmbedRequest struct {
	Requests []embedRequest `json:"requests"`
}

// batchEmbedResponse is the JSON response from the batchEmbedContents endpoint.
type batchEmbedResponse struct {
	Embeddings []vectorValues `json:"embeddings"`
}

// Embed implements embeddings.Provider by computing the embedding vector for a
// single text string via the embedContent endpoint.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody := embedRequest{
		Model:   "models/" + p.model,
		Content: contentPayload{Parts: []textPart{{Text: text}}},
	}

	var result embedResponse
	endpoint := fmt.Sprintf("%s/models/%s:embedContent?key=%s", p.baseURL, p.model, p.apiKey)
	if err := p.post(ctx, endpoint, reqBody, &result); err != nil {
		return nil, fmt.Errorf("gemini embeddings: embed: %w", err)
	}
	if len(result.Embedding.Values) == 0 {
		return nil, fmt.Errorf("gemini embeddings: embed: empty response")
	}
	return result.Embedding.Values, nil
}

// EmbedBatch implements embeddings.Provider by computing embedding vectors for
// a slice of texts in a single batchEmbedContents request.
//
// Passing a nil or empty texts slice returns (nil, nil) without issuing any
// network request.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	reqBody := batchEmbedRequest{Requests: make([]embedRequest, len(texts))}
	for i, t := range texts {
		reqBody.Requests[i] = embedRequest{
			Model:   "models/" + p.model,
			Content: contentPayload{Parts: []textPart{{Text: t}}},
		}
	}

	var result batchEmbedResponse
	endpoint := fmt.Sprintf("%s/models/%s:batchEmbedContents?key=%s", p.baseURL, p.model, p.apiKey)
	if err := p.post(ctx, endpoint, reqBody, &result); err != nil {
		return nil, fmt.Errorf("gemini embeddings: embed batch: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini embeddings: embed batch: expected %d embeddings, got %d", len(texts), len(result.Embeddings))
	}

	out := make([][]float32, len(texts))
	for i, e := range result.Embeddings {
		out[i] = e.Values
	}
	return out, nil
}

// Dimensions implements embeddings.Provider.
func (p *Provider) Dimensions() int {
	return modelDimensions(p.model)
}

// ModelID implements embeddings.Provider.
func (p *Provider) ModelID() string {
	return p.model
}

// post sends a JSON POST request and decodes the JSON response into out.
// It respects context cancellation via http.NewRequestWithContext.
func (p *Provider) post(ctx context.Context, endpoint string, in any, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// modelDimensions returns the embedding dimensions for known Gemini models.
func modelDimensions(model string) int {
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "text-embedding-004"):
		return 768
	case strings.Contains(lower, "embedding-001"):
		return 768
	default:
		return 768
	}
}
