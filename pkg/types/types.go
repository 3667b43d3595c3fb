// Package types defines the shared types used across all vocalq packages.
//
// These types form the lingua franca between the telephony layer, the AI
// session adapters, the summariser, and the call bridge. They are intentionally
// minimal — each package defines its own domain types, but cross-cutting data
// structures live here to avoid circular imports.
package types

import "time"

// TranscriptTurn is a single utterance in a call transcript, attributed to
// either the caller ("user") or the AI agent ("assistant"). Turns are appended
// in the order the adapter emits them; that ordering is what the summariser
// sees at finalisation.
type TranscriptTurn struct {
	// Role is "user" or "assistant".
	Role string `json:"role"`

	// Content is the text of the utterance.
	Content string `json:"content"`

	// Timestamp is when the turn was received from the adapter.
	Timestamp time.Time `json:"timestamp"`
}

// Message represents a single message in an LLM conversation.
type Message struct {
	// Role is one of "system", "user", "assistant", or "tool".
	Role string

	// Content is the text content of the message.
	Content string

	// Name is an optional participant name.
	Name string

	// ToolCalls contains any tool invocations requested by the assistant.
	ToolCalls []ToolCall

	// ToolCallID is set when Role is "tool", identifying which tool call this responds to.
	ToolCallID string
}

// ToolCall represents a tool/function invocation requested by a model.
type ToolCall struct {
	// ID is the unique identifier for this tool call (provider-assigned).
	ID string

	// Name is the tool/function name.
	Name string

	// Arguments is the JSON-encoded arguments string.
	Arguments string
}

// ToolDefinition describes a tool that can be offered to a model.
type ToolDefinition struct {
	// Name is the tool's unique identifier.
	Name string

	// Description explains what the tool does (included in model prompts).
	Description string

	// Parameters is the JSON Schema describing the tool's input parameters.
	Parameters map[string]any
}

// VoiceProfile describes a synthesised voice configuration for an AI agent.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier (e.g. "alloy", "Puck").
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which adapter variant this voice belongs to.
	Provider string
}
