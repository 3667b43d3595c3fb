package gemini_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vocalq/outbound/pkg/provider/embeddings/gemini"
)

func TestNew_RequiresAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := gemini.New("", "text-embedding-004"); err == nil {
		t.Fatal("New with empty API key should return an error")
	}
}

func TestNew_DefaultModel(t *testing.T) {
	t.Parallel()
	p, err := gemini.New("key", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.ModelID() != "text-embedding-004" {
		t.Errorf("ModelID = %q; want text-embedding-004", p.ModelID())
	}
	if p.Dimensions() != 768 {
		t.Errorf("Dimensions = %d; want 768", p.Dimensions())
	}
}

func TestEmbed_SendsRequestAndParsesVector(t *testing.T) {
	t.Parallel()

	var gotPath string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path + "?" + r.URL.RawQuery
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embedding": map[string]any{"values": []float32{0.1, 0.2, 0.3}},
		})
	}))
	defer srv.Close()

	p, err := gemini.New("secret", "text-embedding-004", gemini.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	vec, err := p.Embed(context.Background(), "refund policy")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.1 {
		t.Errorf("vec = %v; want [0.1 0.2 0.3]", vec)
	}
	if !strings.Contains(gotPath, "models/text-embedding-004:embedContent") {
		t.Errorf("path = %q; want embedContent endpoint", gotPath)
	}
	if !strings.Contains(gotPath, "key=secret") {
		t.Errorf("path = %q; want key query param", gotPath)
	}
	if gotBody["model"] != "models/text-embedding-004" {
		t.Errorf("body model = %v", gotBody["model"])
	}
}

func TestEmbedBatch_OrdersResults(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, ":batchEmbedContents") {
			http.Error(w, "wrong endpoint", http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embeddings": []map[string]any{
				{"values": []float32{1}},
				{"values": []float32{2}},
			},
		})
	}))
	defer srv.Close()

	p, err := gemini.New("key", "", gemini.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	vecs, err := p.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 2 || vecs[0][0] != 1 || vecs[1][0] != 2 {
		t.Errorf("vecs = %v", vecs)
	}
}

func TestEmbedBatch_EmptyInput_NoRequest(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("no request should be issued for empty input")
	}))
	defer srv.Close()

	p, err := gemini.New("key", "", gemini.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	vecs, err := p.EmbedBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if vecs != nil {
		t.Errorf("vecs = %v; want nil", vecs)
	}
}

func TestEmbed_NonOKStatus_ReturnsError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exhausted", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p, err := gemini.New("key", "", gemini.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := p.Embed(context.Background(), "text"); err == nil {
		t.Fatal("Embed should return an error on non-200 status")
	}
}
