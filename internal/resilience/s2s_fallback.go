package resilience

import (
	"context"

	"github.com/vocalq/outbound/pkg/provider/s2s"
)

// S2SFallback implements [s2s.Provider] with automatic failover across
// multiple speech-to-speech backends. Each backend has its own circuit
// breaker.
//
// Only session establishment is covered by failover: once Connect returns a
// live session, mid-call errors surface through the session's error handler
// and are the bridge's responsibility.
type S2SFallback struct {
	group *FallbackGroup[s2s.Provider]
}

// Compile-time interface assertion.
var _ s2s.Provider = (*S2SFallback)(nil)

// NewS2SFallback creates an [S2SFallback] with primary as the preferred backend.
func NewS2SFallback(primary s2s.Provider, primaryName string, cfg FallbackConfig) *S2SFallback {
	return &S2SFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional speech-to-speech provider as a fallback.
func (f *S2SFallback) AddFallback(name string, provider s2s.Provider) {
	f.group.AddFallback(name, provider)
}

// Connect opens a session on the first healthy provider.
func (f *S2SFallback) Connect(ctx context.Context, cfg s2s.SessionConfig) (s2s.SessionHandle, error) {
	return Call(f.group, func(p s2s.Provider) (s2s.SessionHandle, error) {
		return p.Connect(ctx, cfg)
	})
}

// Capabilities returns the capabilities of the first entry (the primary).
// This does not participate in failover because capabilities are static
// metadata, and callers size their audio pipeline from them before connecting.
func (f *S2SFallback) Capabilities() s2s.Capabilities {
	if len(f.group.entries) > 0 {
		return f.group.entries[0].value.Capabilities()
	}
	return s2s.Capabilities{}
}
