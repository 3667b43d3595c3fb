// Package knowledge implements the semantic knowledge base the voice agent
// consults during calls. Documents are chunked, embedded and stored in a
// [store.ChunkStore]; the agent queries them through the query_knowledge_base
// tool.
package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/vocalq/outbound/internal/resilience"
	"github.com/vocalq/outbound/internal/store"
	"github.com/vocalq/outbound/pkg/provider/embeddings"
	"github.com/vocalq/outbound/pkg/provider/s2s"
	"github.com/vocalq/outbound/pkg/types"
)

// ToolName is the function name the voice agent calls to query the knowledge
// base.
const ToolName = "query_knowledge_base"

// NoResults is the tool output when no relevant chunks exist or retrieval
// fails. The agent's instructions tell it to admit the gap rather than guess.
const NoResults = "No information found in knowledge base."

// DefaultTopK is the number of chunks returned per query.
const DefaultTopK = 3

// maxChunkLen is the upper bound on chunk size in bytes before a paragraph is
// split further.
const maxChunkLen = 1000

// Document is a stored knowledge-base document as exposed over the API.
type Document struct {
	ID         string `json:"id"`
	Source     string `json:"source"`
	ChunkCount int    `json:"chunk_count"`
	Preview    string `json:"preview"`
}

// Searcher embeds queries and retrieves the closest knowledge-base chunks.
// A circuit breaker around the embedding backend keeps a degraded provider
// from stalling live calls.
//
// Searcher is safe for concurrent use.
type Searcher struct {
	embedder embeddings.Provider
	chunks   store.ChunkStore
	breaker  *resilience.CircuitBreaker
	topK     int
	logger   *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher)

// WithTopK sets the number of chunks returned per query.
func WithTopK(k int) Option {
	return func(s *Searcher) {
		if k > 0 {
			s.topK = k
		}
	}
}

// WithLogger sets the logger used for retrieval diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) { s.logger = logger }
}

// NewSearcher creates a Searcher over the given embedding provider and chunk
// store.
func NewSearcher(embedder embeddings.Provider, chunks store.ChunkStore, opts ...Option) *Searcher {
	s := &Searcher{
		embedder: embedder,
		chunks:   chunks,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name: "knowledge-embeddings",
		}),
		topK:   DefaultTopK,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ToolDefinition returns the function declaration advertised to the
// speech-to-speech session.
func ToolDefinition() types.ToolDefinition {
	return types.ToolDefinition{
		Name:        ToolName,
		Description: "Search the knowledge base for answer to user questions about the company, services, or policies.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The search query based on user's question.",
				},
			},
			"required": []string{"query"},
		},
	}
}

// Search embeds query and returns the contents of the closest chunks joined
// by newlines, or [NoResults] when nothing matches.
func (s *Searcher) Search(ctx context.Context, query string) (string, error) {
	var embedding []float32
	err := s.breaker.Execute(func() error {
		var embedErr error
		embedding, embedErr = s.embedder.Embed(ctx, query)
		return embedErr
	})
	if err != nil {
		return "", fmt.Errorf("knowledge: embed query: %w", err)
	}

	results, err := s.chunks.SearchChunks(ctx, embedding, s.topK)
	if err != nil {
		return "", fmt.Errorf("knowledge: search chunks: %w", err)
	}
	if len(results) == 0 {
		return NoResults, nil
	}

	contents := make([]string, len(results))
	for i, r := range results {
		contents[i] = r.Chunk.Content
	}
	s.logger.Info("knowledge base hit",
		"query", truncate(query, 50),
		"results", len(results))
	return strings.Join(contents, "\n"), nil
}

// ToolHandler adapts Search into an [s2s.ToolCallHandler]. Retrieval failures
// degrade to [NoResults] so the agent keeps talking instead of stalling
// mid-call.
func (s *Searcher) ToolHandler() s2s.ToolCallHandler {
	return func(name string, args string) (string, error) {
		if name != ToolName {
			return "", fmt.Errorf("knowledge: unknown tool %q", name)
		}
		var params struct {
			Query string `json:"query"`
		}
		if err := json.Unmarshal([]byte(args), &params); err != nil || params.Query == "" {
			s.logger.Warn("malformed knowledge base query", "args", truncate(args, 100))
			return NoResults, nil
		}
		result, err := s.Search(context.Background(), params.Query)
		if err != nil {
			s.logger.Error("knowledge base search failed", "error", err)
			return NoResults, nil
		}
		return result, nil
	}
}

// AddDocument chunks text, embeds every chunk and stores them under a fresh
// document ID. Source is a display label such as a file name.
func (s *Searcher) AddDocument(ctx context.Context, source, text string) (Document, error) {
	pieces := chunkText(text)
	if len(pieces) == 0 {
		return Document{}, fmt.Errorf("knowledge: add document: empty text")
	}

	var vectors [][]float32
	err := s.breaker.Execute(func() error {
		var embedErr error
		vectors, embedErr = s.embedder.EmbedBatch(ctx, pieces)
		return embedErr
	})
	if err != nil {
		return Document{}, fmt.Errorf("knowledge: embed document: %w", err)
	}
	if len(vectors) != len(pieces) {
		return Document{}, fmt.Errorf("knowledge: embed document: got %d vectors for %d chunks", len(vectors), len(pieces))
	}

	docID := uuid.NewString()
	for i, piece := range pieces {
		chunk := store.Chunk{
			ID:         fmt.Sprintf("%s-%d", docID, i),
			DocumentID: docID,
			Source:     source,
			Content:    piece,
			Embedding:  vectors[i],
		}
		if err := s.chunks.UpsertChunk(ctx, chunk); err != nil {
			return Document{}, fmt.Errorf("knowledge: store chunk: %w", err)
		}
	}

	s.logger.Info("document added to knowledge base",
		"document_id", docID, "source", source, "chunks", len(pieces))
	return Document{
		ID:         docID,
		Source:     source,
		ChunkCount: len(pieces),
		Preview:    truncate(pieces[0], 80),
	}, nil
}

// Documents lists stored documents, aggregating their chunks.
func (s *Searcher) Documents(ctx context.Context) ([]Document, error) {
	chunks, err := s.chunks.ListChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("knowledge: list documents: %w", err)
	}

	byDoc := make(map[string]*Document)
	var order []string
	for _, c := range chunks {
		doc, ok := byDoc[c.DocumentID]
		if !ok {
			doc = &Document{
				ID:      c.DocumentID,
				Source:  c.Source,
				Preview: truncate(c.Content, 80),
			}
			byDoc[c.DocumentID] = doc
			order = append(order, c.DocumentID)
		}
		doc.ChunkCount++
	}

	docs := make([]Document, 0, len(order))
	for _, id := range order {
		docs = append(docs, *byDoc[id])
	}
	return docs, nil
}

// DeleteDocument removes a document and all of its chunks.
func (s *Searcher) DeleteDocument(ctx context.Context, documentID string) error {
	if err := s.chunks.DeleteDocument(ctx, documentID); err != nil {
		return fmt.Errorf("knowledge: delete document: %w", err)
	}
	return nil
}

// chunkText splits text into chunks suitable for embedding. Paragraphs are
// kept together while they fit under maxChunkLen; oversized paragraphs are
// split on sentence boundaries.
func chunkText(text string) []string {
	var chunks []string
	var current strings.Builder

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if len(para) > maxChunkLen {
			flush()
			for _, sentence := range splitSentences(para) {
				if current.Len()+len(sentence) > maxChunkLen {
					flush()
				}
				current.WriteString(sentence)
			}
			flush()
			continue
		}
		if current.Len()+len(para)+2 > maxChunkLen {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()
	return chunks
}

// splitSentences splits on sentence-ending punctuation, keeping the
// terminator with its sentence.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			sentences = append(sentences, text[start:i+1])
			start = i + 1
		}
	}
	if start < len(text) {
		sentences = append(sentences, text[start:])
	}
	return sentences
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
