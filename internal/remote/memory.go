// SPDX-License-Identifier: MIT

package remote

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Muscled-clients-repo/unpuzzle-mvp-sub005/internal/store"
)

// MemoryBackend is an in-process Backend for tests and local runs.
// Failure and latency are injectable so coordinator rollback paths can
// be exercised deterministically.
type MemoryBackend struct {
	mu       sync.Mutex
	entities map[string]store.Entity

	// FailNext, when set, makes the next Mutate refuse with this
	// message (Success false, nil error).
	FailNext string
	// ErrNext, when set, makes the next Mutate return this error.
	ErrNext error
	// Latency is added to every call, simulating the network.
	Latency time.Duration
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entities: make(map[string]store.Entity)}
}

// Seed loads entities without going through Mutate.
func (b *MemoryBackend) Seed(entities ...store.Entity) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range entities {
		b.entities[e.ID] = e
	}
}

func (b *MemoryBackend) sleep(ctx context.Context) error {
	if b.Latency <= 0 {
		return nil
	}
	t := time.NewTimer(b.Latency)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Mutate applies one write under the backend's own lock.
func (b *MemoryBackend) Mutate(ctx context.Context, m Mutation) (Result, error) {
	if err := b.sleep(ctx); err != nil {
		return Result{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.ErrNext; err != nil {
		b.ErrNext = nil
		return Result{}, err
	}
	if msg := b.FailNext; msg != "" {
		b.FailNext = ""
		return Result{Success: false, Err: msg}, nil
	}

	switch m.Kind {
	case MutationCreate:
		e := m.Entity
		// Temporary client ids get replaced with a canonical one.
		if e.ID == "" || strings.HasPrefix(e.ID, "tmp-") {
			e.ID = uuid.NewString()
		}
		b.entities[e.ID] = e
		return Result{Success: true, Entity: &e}, nil
	case MutationRename:
		e, ok := b.entities[m.Entity.ID]
		if !ok {
			return Result{Success: false, Err: "not found"}, nil
		}
		e.Title = m.Entity.Title
		b.entities[e.ID] = e
		return Result{Success: true, Entity: &e}, nil
	case MutationReorder:
		// The full renumbered sibling set is applied atomically.
		for _, s := range m.Siblings {
			if _, ok := b.entities[s.ID]; !ok {
				return Result{Success: false, Err: "sibling not found: " + s.ID}, nil
			}
		}
		for _, s := range m.Siblings {
			cur := b.entities[s.ID]
			cur.Order = s.Order
			b.entities[s.ID] = cur
		}
		e := b.entities[m.Entity.ID]
		return Result{Success: true, Entity: &e}, nil
	case MutationDelete:
		if _, ok := b.entities[m.Entity.ID]; !ok {
			return Result{Success: false, Err: "not found"}, nil
		}
		delete(b.entities, m.Entity.ID)
		return Result{Success: true}, nil
	default:
		return Result{Success: false, Err: "unknown mutation kind"}, nil
	}
}

// FetchChildren returns entities under parent, ordered.
func (b *MemoryBackend) FetchChildren(ctx context.Context, parent string) ([]store.Entity, error) {
	if err := b.sleep(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]store.Entity, 0, 8)
	for _, e := range b.entities {
		if e.Parent == parent {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// FetchEntity returns one entity by id.
func (b *MemoryBackend) FetchEntity(ctx context.Context, id string) (store.Entity, error) {
	if err := b.sleep(ctx); err != nil {
		return store.Entity{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entities[id]
	if !ok {
		return store.Entity{}, ErrNotFound
	}
	return e, nil
}

var _ Backend = (*MemoryBackend)(nil)
