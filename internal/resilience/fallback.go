package resilience

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/vocalq/outbound/internal/observe"
)

// ErrAllFailed is returned when every backend in a [FallbackGroup] failed or
// was failing fast.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig configures the per-backend circuit breaker a [FallbackGroup]
// creates for each entry. The breaker Name is overwritten with the entry's
// registered name.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

// fallbackEntry is one backend with its dedicated breaker.
type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup holds a primary backend and its ordered fallbacks. Calls go
// through [Call]; a backend whose breaker is open is skipped without being
// touched. [LLMFallback] and [S2SFallback] wrap this for the two provider
// types the call pipeline fails over.
//
// AddFallback is not safe to call concurrently with Call; register all
// backends during wiring.
type FallbackGroup[T any] struct {
	entries []fallbackEntry[T]
	cfg     FallbackConfig
}

// NewFallbackGroup creates a group with primary as its first entry.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	g := &FallbackGroup[T]{cfg: cfg}
	g.add(primaryName, primary)
	return g
}

// AddFallback appends a backend. Fallbacks are tried in registration order,
// after the primary.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	fg.add(name, fallback)
}

func (fg *FallbackGroup[T]) add(name string, value T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	fg.entries = append(fg.entries, fallbackEntry[T]{
		name:    name,
		value:   value,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// Call tries fn against each backend in order until one succeeds. A
// package-level function because Go methods cannot carry their own type
// parameters. Returns [ErrAllFailed] wrapping the last error when every
// backend fails.
func Call[T any, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		lastErr error
		zero    R
	)
	for i := range fg.entries {
		entry := &fg.entries[i]
		var result R
		err := entry.breaker.Execute(func() error {
			var innerErr error
			result, innerErr = fn(entry.value)
			return innerErr
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping backend, circuit open", "backend", entry.name)
			continue
		}
		slog.Warn("backend failed, failing over", "backend", entry.name, "error", err)
		observe.ProviderFailure(entry.name, "failover")
	}
	return zero, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}
