// Package summary generates post-call summaries from accumulated call
// transcripts using a completion LLM.
package summary

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vocalq/outbound/pkg/provider/llm"
	"github.com/vocalq/outbound/pkg/types"
)

// NoTranscript is returned for calls where nothing was transcribed.
const NoTranscript = "No transcript available."

// Failed is stored when the LLM backend could not produce a summary. The call
// record is finalized either way; summarization must never block teardown.
const Failed = "Summary generation failed."

// DefaultIntent is the intent label attached to summarized calls.
const DefaultIntent = "General Inquiry"

const systemPrompt = "You are an expert AI call analyst. Summarize the following phone conversation concisely. " +
	"Identify the main topic, the user's intent, and the outcome."

const maxSummaryTokens = 150

// Summarizer turns call transcripts into short analyst summaries.
type Summarizer struct {
	provider llm.Provider
	logger   *slog.Logger
}

// Option configures a Summarizer.
type Option func(*Summarizer)

// WithLogger sets the logger used for summarization diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Summarizer) { s.logger = logger }
}

// New creates a Summarizer backed by the given LLM provider.
func New(provider llm.Provider, opts ...Option) *Summarizer {
	s := &Summarizer{
		provider: provider,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Summarize produces a summary of the transcript. It never returns an error:
// an empty transcript yields [NoTranscript] and a backend failure yields
// [Failed], so callers can store the result unconditionally.
func (s *Summarizer) Summarize(ctx context.Context, transcript []types.TranscriptTurn) string {
	if len(transcript) == 0 {
		return NoTranscript
	}

	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages: []types.Message{
			{
				Role:    "user",
				Content: fmt.Sprintf("Here is the transcript:\n\n%s", formatTranscript(transcript)),
			},
		},
		MaxTokens: maxSummaryTokens,
	})
	if err != nil {
		s.logger.Error("summary generation failed", "error", err)
		return Failed
	}

	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		return Failed
	}
	return summary
}

// Intent returns the intent label for a summarized call.
func (s *Summarizer) Intent(transcript []types.TranscriptTurn) string {
	return DefaultIntent
}

// formatTranscript renders turns as "ROLE: content" lines for the prompt.
func formatTranscript(transcript []types.TranscriptTurn) string {
	var b strings.Builder
	for _, turn := range transcript {
		b.WriteString(strings.ToUpper(turn.Role))
		b.WriteString(": ")
		b.WriteString(turn.Content)
		b.WriteString("\n")
	}
	return b.String()
}
