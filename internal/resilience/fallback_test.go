package resilience

import (
	"errors"
	"testing"
	"time"
)

// fakeBackend stands in for a provider in failover tests. The name doubles as
// the value so assertions can see which backend served the call.
type fakeBackend string

func newGroup(primary string, fallbacks ...string) *FallbackGroup[fakeBackend] {
	fg := NewFallbackGroup(fakeBackend(primary), primary, FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	for _, name := range fallbacks {
		fg.AddFallback(name, fakeBackend(name))
	}
	return fg
}

func TestCall_PrimaryServes(t *testing.T) {
	fg := newGroup("openai", "gemini")

	served, err := Call(fg, func(b fakeBackend) (string, error) {
		return string(b), nil
	})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if served != "openai" {
		t.Fatalf("served by %q, want openai", served)
	}
}

func TestCall_FailsOverToNextBackend(t *testing.T) {
	fg := newGroup("openai", "gemini")

	served, err := Call(fg, func(b fakeBackend) (string, error) {
		if b == "openai" {
			return "", errBackendDown
		}
		return string(b), nil
	})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if served != "gemini" {
		t.Fatalf("served by %q, want gemini", served)
	}
}

func TestCall_AllBackendsFail(t *testing.T) {
	fg := newGroup("openai", "gemini")

	_, err := Call(fg, func(fakeBackend) (string, error) {
		return "", errBackendDown
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestCall_OpenBreakerSkipsBackendEntirely(t *testing.T) {
	fg := NewFallbackGroup(fakeBackend("openai"), "openai", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{
			MaxFailures:  2,
			ResetTimeout: time.Hour,
		},
	})
	fg.AddFallback("gemini", fakeBackend("gemini"))

	// Trip the primary's breaker.
	for i := 0; i < 2; i++ {
		_, _ = Call(fg, func(b fakeBackend) (string, error) {
			if b == "openai" {
				return "", errBackendDown
			}
			return string(b), nil
		})
	}

	// With the primary open, the call must go straight to the fallback
	// without touching the primary at all.
	primaryTouched := false
	served, err := Call(fg, func(b fakeBackend) (string, error) {
		if b == "openai" {
			primaryTouched = true
		}
		return string(b), nil
	})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if served != "gemini" {
		t.Fatalf("served by %q, want gemini", served)
	}
	if primaryTouched {
		t.Error("open primary was still called")
	}
}

func TestCall_SingleBackendNoFallbacks(t *testing.T) {
	fg := newGroup("openai")

	_, err := Call(fg, func(fakeBackend) (int, error) {
		return 0, errBackendDown
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}

	n, err := Call(fg, func(fakeBackend) (int, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if n != 42 {
		t.Fatalf("result = %d, want 42", n)
	}
}
