package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/vocalq/outbound/pkg/provider/s2s"
	s2smock "github.com/vocalq/outbound/pkg/provider/s2s/mock"
)

func TestS2SFallback_Connect_PrimarySuccess(t *testing.T) {
	primary := &s2smock.Provider{Session: s2smock.NewSession()}
	secondary := &s2smock.Provider{Session: s2smock.NewSession()}

	fb := NewS2SFallback(primary, "openai", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("gemini", secondary)

	handle, err := fb.Connect(context.Background(), s2s.SessionConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if handle != primary.Session {
		t.Fatal("expected the primary's session")
	}
	if len(primary.ConnectCalls) != 1 {
		t.Fatalf("primary connected %d times, want 1", len(primary.ConnectCalls))
	}
	if len(secondary.ConnectCalls) != 0 {
		t.Fatalf("secondary connected %d times, want 0", len(secondary.ConnectCalls))
	}
}

func TestS2SFallback_Connect_Failover(t *testing.T) {
	primary := &s2smock.Provider{ConnectErr: errors.New("primary down")}
	secondary := &s2smock.Provider{Session: s2smock.NewSession()}

	fb := NewS2SFallback(primary, "openai", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("gemini", secondary)

	handle, err := fb.Connect(context.Background(), s2s.SessionConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if handle != secondary.Session {
		t.Fatal("expected the fallback's session")
	}
}

func TestS2SFallback_Connect_AllFail(t *testing.T) {
	primary := &s2smock.Provider{ConnectErr: errors.New("primary down")}
	secondary := &s2smock.Provider{ConnectErr: errors.New("secondary down")}

	fb := NewS2SFallback(primary, "openai", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("gemini", secondary)

	if _, err := fb.Connect(context.Background(), s2s.SessionConfig{}); !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestS2SFallback_CapabilitiesFromPrimary(t *testing.T) {
	primary := &s2smock.Provider{
		ProviderCapabilities: s2s.Capabilities{
			InputSampleRate:       24000,
			OutputSampleRate:      24000,
			ExplicitTurnDetection: true,
		},
	}
	secondary := &s2smock.Provider{
		ProviderCapabilities: s2s.Capabilities{InputSampleRate: 16000, OutputSampleRate: 24000},
	}

	fb := NewS2SFallback(primary, "openai", FallbackConfig{})
	fb.AddFallback("gemini", secondary)

	caps := fb.Capabilities()
	if caps.InputSampleRate != 24000 || !caps.ExplicitTurnDetection {
		t.Fatalf("capabilities = %+v; want the primary's", caps)
	}
}
