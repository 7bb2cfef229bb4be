// SPDX-License-Identifier: MIT

package resilience

import (
	"context"

	"github.com/Muscled-clients-repo/unpuzzle-mvp-sub005/internal/remote"
	"github.com/Muscled-clients-repo/unpuzzle-mvp-sub005/internal/store"
)

// GuardedBackend decorates a remote.Backend with a circuit breaker.
// An open breaker surfaces ErrCircuitOpen, which the coordinator
// handles like any other remote failure: rollback, then propagate.
// A Success-false result counts as a backend refusal, not a transport
// failure, and does not feed the breaker.
type GuardedBackend struct {
	inner   remote.Backend
	breaker *CircuitBreaker
}

// NewGuardedBackend wraps inner with cb.
func NewGuardedBackend(inner remote.Backend, cb *CircuitBreaker) *GuardedBackend {
	return &GuardedBackend{inner: inner, breaker: cb}
}

// Mutate applies the mutation through the breaker.
func (g *GuardedBackend) Mutate(ctx context.Context, m remote.Mutation) (remote.Result, error) {
	var res remote.Result
	err := g.breaker.Execute(func() error {
		var innerErr error
		res, innerErr = g.inner.Mutate(ctx, m)
		return innerErr
	})
	return res, err
}

// FetchChildren queries through the breaker.
func (g *GuardedBackend) FetchChildren(ctx context.Context, parent string) ([]store.Entity, error) {
	var out []store.Entity
	err := g.breaker.Execute(func() error {
		var innerErr error
		out, innerErr = g.inner.FetchChildren(ctx, parent)
		return innerErr
	})
	return out, err
}

// FetchEntity queries through the breaker.
func (g *GuardedBackend) FetchEntity(ctx context.Context, id string) (store.Entity, error) {
	var e store.Entity
	err := g.breaker.Execute(func() error {
		var innerErr error
		e, innerErr = g.inner.FetchEntity(ctx, id)
		return innerErr
	})
	return e, err
}

var _ remote.Backend = (*GuardedBackend)(nil)
