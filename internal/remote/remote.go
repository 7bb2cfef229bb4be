// SPDX-License-Identifier: MIT

// Package remote defines the boundary to the hosted backend: the
// remote mutation call the coordinator commits against and the query
// call reconciliation refetches through. Backends confirm sibling
// renumbering server-side and atomically.
package remote

import (
	"context"
	"errors"

	"github.com/Muscled-clients-repo/unpuzzle-mvp-sub005/internal/store"
)

// MutationKind names the logical operation a Mutation performs.
type MutationKind string

const (
	MutationCreate  MutationKind = "create"
	MutationRename  MutationKind = "rename"
	MutationReorder MutationKind = "reorder"
	MutationDelete  MutationKind = "delete"
)

// ErrNotFound is returned by queries for unknown entities.
var ErrNotFound = errors.New("entity not found")

// Mutation is one backend write. For MutationReorder, Siblings carries
// the fully renumbered sibling set; the backend applies it in a single
// transaction so order values always resolve to a contiguous
// zero-based permutation.
type Mutation struct {
	Kind     MutationKind
	Entity   store.Entity
	Siblings []store.Entity
}

// Result mirrors the platform RPC response shape. Success false is
// treated by callers exactly like a transport error: the optimistic
// write is rolled back.
type Result struct {
	Success bool
	// Entity carries canonical fields on success, notably the
	// server-assigned id replacing a temporary client-generated one.
	Entity *store.Entity
	Err    string
}

// Backend is a remote mutation plus query endpoint.
type Backend interface {
	// Mutate applies one write. A nil error with Success false means
	// the backend refused the write.
	Mutate(ctx context.Context, m Mutation) (Result, error)
	// FetchChildren returns the entities under parent, server-ordered.
	FetchChildren(ctx context.Context, parent string) ([]store.Entity, error)
	// FetchEntity returns one entity by id.
	FetchEntity(ctx context.Context, id string) (store.Entity, error)
}
