// SPDX-License-Identifier: MIT

// Package registry tracks in-flight logical operations by type and
// resource key. It is a best-effort diagnostic structure: bounded,
// oldest-first evicted, never a correctness-critical ledger.
package registry

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Muscled-clients-repo/unpuzzle-mvp-sub005/internal/log"
	"github.com/Muscled-clients-repo/unpuzzle-mvp-sub005/internal/metrics"
)

// Defaults for the duplicate-submission and staleness windows.
const (
	DefaultDebounceWindow = 100 * time.Millisecond
	DefaultStaleAfter     = 5 * time.Second
	DefaultMaxEntries     = 50
)

// Operation is one tracked logical operation. Immutable once terminal.
type Operation struct {
	ID        string
	Type      string
	Resource  string
	StartedAt time.Time
	EndedAt   time.Time
	Completed bool
	Cancelled bool
}

// Terminal reports whether the operation has finished, one way or the other.
func (o Operation) Terminal() bool {
	return o.Completed || o.Cancelled
}

// clock abstracts time operations for testability.
type clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Registry tracks operations with a duplicate-submission guard and
// bounded memory.
type Registry struct {
	mu         sync.Mutex
	ops        map[string]*Operation
	order      []string // insertion order, oldest first
	debounce   time.Duration
	staleAfter time.Duration
	maxEntries int
	clock      clock
	logger     zerolog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock injects a clock, for tests.
func WithClock(c clock) Option {
	return func(r *Registry) { r.clock = c }
}

// WithDebounceWindow overrides the duplicate-submission window.
func WithDebounceWindow(d time.Duration) Option {
	return func(r *Registry) { r.debounce = d }
}

// WithStaleAfter overrides the staleness window used by InProgress.
func WithStaleAfter(d time.Duration) Option {
	return func(r *Registry) { r.staleAfter = d }
}

// WithMaxEntries overrides the bounded record count.
func WithMaxEntries(n int) Option {
	return func(r *Registry) { r.maxEntries = n }
}

// New creates an operation registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		ops:        make(map[string]*Operation),
		debounce:   DefaultDebounceWindow,
		staleAfter: DefaultStaleAfter,
		maxEntries: DefaultMaxEntries,
		clock:      realClock{},
		logger:     log.WithComponent("registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start registers a new operation. It returns false, with no side
// effect, when another non-terminal operation of the same type started
// within the debounce window: the double-click guard.
func (r *Registry) Start(id, typ, resource string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	for _, op := range r.ops {
		if op.Type != typ || op.Terminal() {
			continue
		}
		if now.Sub(op.StartedAt) < r.debounce {
			metrics.IncOperationRejected(typ)
			r.logger.Debug().
				Str("operation_id", id).
				Str("type", typ).
				Str("conflict", op.ID).
				Msg("duplicate submission rejected")
			return false
		}
	}

	r.ops[id] = &Operation{
		ID:        id,
		Type:      typ,
		Resource:  resource,
		StartedAt: now,
	}
	r.order = append(r.order, id)
	metrics.IncOperationStarted(typ)
	r.evictLocked()
	return true
}

// Complete marks the operation completed. Idempotent; a no-op for an
// unknown or already-terminal id.
func (r *Registry) Complete(id string) {
	r.finish(id, true)
}

// Cancel marks the operation cancelled. Advisory bookkeeping only: it
// does not abort in-flight work or revert speculative writes.
// Idempotent; a no-op for an unknown or already-terminal id.
func (r *Registry) Cancel(id string) {
	r.finish(id, false)
}

func (r *Registry) finish(id string, completed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	op, ok := r.ops[id]
	if !ok || op.Terminal() {
		return
	}
	op.EndedAt = r.clock.Now()
	outcome := "cancelled"
	if completed {
		op.Completed = true
		outcome = "completed"
	} else {
		op.Cancelled = true
	}
	metrics.IncOperationFinished(op.Type, outcome)
}

// InProgress reports whether a non-terminal operation of the given
// type exists and started within the staleness window. Older records
// are treated as abandoned and ignored, not cancelled.
func (r *Registry) InProgress(typ string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	for _, op := range r.ops {
		if op.Type != typ || op.Terminal() {
			continue
		}
		if now.Sub(op.StartedAt) < r.staleAfter {
			return true
		}
	}
	return false
}

// ActiveOn reports whether a non-terminal operation on the resource
// started within the staleness window. Background maintenance uses it
// to yield to a newer mutation on the same sibling group.
func (r *Registry) ActiveOn(resource string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	for _, op := range r.ops {
		if op.Resource != resource || op.Terminal() {
			continue
		}
		if now.Sub(op.StartedAt) < r.staleAfter {
			return true
		}
	}
	return false
}

// Get returns a copy of the operation record for id.
func (r *Registry) Get(id string) (Operation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, ok := r.ops[id]
	if !ok {
		return Operation{}, false
	}
	return *op, true
}

// Terminal reports whether id is unknown or has reached a terminal
// state. Unknown ids count as terminal so that late responses to
// evicted operations are treated the same as cancelled ones.
func (r *Registry) Terminal(id string) (completed, cancelled, known bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, ok := r.ops[id]
	if !ok {
		return false, false, false
	}
	return op.Completed, op.Cancelled, true
}

// Len returns the number of records currently held.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ops)
}

// evictLocked drops oldest records until the bound holds. Evicting a
// non-terminal record is a diagnostic inconsistency worth a warning,
// but later Complete/Cancel calls on the evicted id stay harmless
// no-ops. Caller must hold mu.
func (r *Registry) evictLocked() {
	for len(r.ops) > r.maxEntries && len(r.order) > 0 {
		oldest := r.order[0]
		r.order = r.order[1:]
		op, ok := r.ops[oldest]
		if !ok {
			continue
		}
		delete(r.ops, oldest)
		state := "terminal"
		if !op.Terminal() {
			state = "active"
			r.logger.Warn().
				Str("operation_id", op.ID).
				Str("type", op.Type).
				Str("event", "registry.evicted_active").
				Msg("evicted a non-terminal operation record")
		}
		metrics.IncOperationEvicted(state)
	}
}
