package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every member of a [FallbackGroup] either
// failed or was skipped by its open circuit breaker.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig is applied to every member of a [FallbackGroup]; each gets
// its own circuit breaker built from the CircuitBreaker settings, so a dead
// primary's failures never count against the fallback behind it.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

// member is one provider in the chain together with its breaker.
type member[T any] struct {
	name     string
	provider T
	breaker  *CircuitBreaker
}

// FallbackGroup chains a primary and any number of same-kind fallback
// providers. A call walks the chain in declaration order and stops at the
// first member that answers; members with an open breaker are skipped
// outright. Safe for concurrent use once the chain is assembled; AddFallback
// must not race with Execute.
type FallbackGroup[T any] struct {
	members []member[T]
	cfg     FallbackConfig
}

// NewFallbackGroup creates a group with primary as its first member. Chain
// further providers with [FallbackGroup.AddFallback].
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	g := &FallbackGroup[T]{cfg: cfg}
	g.add(primaryName, primary)
	return g
}

// AddFallback appends a provider to the end of the chain.
func (g *FallbackGroup[T]) AddFallback(name string, provider T) {
	g.add(name, provider)
}

func (g *FallbackGroup[T]) add(name string, provider T) {
	cbCfg := g.cfg.CircuitBreaker
	cbCfg.Name = name
	g.members = append(g.members, member[T]{
		name:     name,
		provider: provider,
		breaker:  NewCircuitBreaker(cbCfg),
	})
}

// Execute walks the chain until one member runs fn successfully. When the
// whole chain is down it returns [ErrAllFailed] wrapping the last error.
func (g *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := ExecuteWithResult(g, func(p T) (struct{}, error) {
		return struct{}{}, fn(p)
	})
	return err
}

// ExecuteWithResult walks the chain until one member produces a result. It
// is a package-level function because Go methods cannot introduce the result
// type parameter.
func ExecuteWithResult[T any, R any](g *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var lastErr error
	for i := range g.members {
		m := &g.members[i]
		var result R
		err := m.breaker.Execute(func() error {
			var callErr error
			result, callErr = fn(m.provider)
			return callErr
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("provider skipped, circuit open", "provider", m.name)
		} else {
			slog.Warn("provider failed, trying next in chain",
				"provider", m.name, "error", err)
		}
	}
	var zero R
	return zero, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}
