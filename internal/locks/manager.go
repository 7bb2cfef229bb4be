// SPDX-License-Identifier: MIT

// Package locks provides per-resource exclusive locks with FIFO waiter
// queues. Waiters park on a grant channel signaled directly at release
// time, so the lock is handed off to the next waiter without ever
// being observably free in between.
package locks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Muscled-clients-repo/unpuzzle-mvp-sub005/internal/log"
	"github.com/Muscled-clients-repo/unpuzzle-mvp-sub005/internal/metrics"
)

// DefaultAcquireTimeout bounds lock waits for callers that do not
// bring their own context deadline.
const DefaultAcquireTimeout = 5 * time.Second

// ErrLockTimeout is returned by WithLock when the resource lock could
// not be acquired before the caller's deadline. The manager never
// retries on the caller's behalf.
var ErrLockTimeout = errors.New("lock acquisition timed out")

type waiter struct {
	grant     chan struct{}
	granted   bool
	abandoned bool
}

type lockState struct {
	held      bool
	heldSince time.Time
	waiters   []*waiter
	queued    []func()
}

// Manager serializes critical sections per resource key. Independent
// resources never order against each other; within one resource the
// grant order is strictly FIFO.
type Manager struct {
	mu     sync.Mutex
	locks  map[string]*lockState
	logger zerolog.Logger
}

// NewManager creates an empty lock manager.
func NewManager() *Manager {
	return &Manager{
		locks:  make(map[string]*lockState),
		logger: log.WithComponent("locks"),
	}
}

func (m *Manager) state(resource string) *lockState {
	ls, ok := m.locks[resource]
	if !ok {
		ls = &lockState{}
		m.locks[resource] = ls
	}
	return ls
}

// Acquire blocks until the resource lock is granted or ctx is done.
// Returns false, without acquiring, on timeout or cancellation.
func (m *Manager) Acquire(ctx context.Context, resource string) bool {
	if ctx == nil {
		ctx = context.Background()
	}

	m.mu.Lock()
	ls := m.state(resource)
	if !ls.held && len(ls.waiters) == 0 {
		ls.held = true
		ls.heldSince = time.Now()
		m.mu.Unlock()
		metrics.IncLockAcquisition("granted")
		metrics.AddLocksHeld(1)
		return true
	}

	w := &waiter{grant: make(chan struct{})}
	ls.waiters = append(ls.waiters, w)
	m.mu.Unlock()
	metrics.AddLockWaiters(1)

	select {
	case <-w.grant:
		metrics.AddLockWaiters(-1)
		metrics.IncLockAcquisition("granted")
		return true
	case <-ctx.Done():
		m.mu.Lock()
		if w.granted {
			// The grant raced with our deadline. We own the lock for
			// an instant and must hand it straight back.
			m.releaseLocked(resource)
			m.mu.Unlock()
			metrics.AddLockWaiters(-1)
			metrics.IncLockAcquisition("timeout")
			return false
		}
		w.abandoned = true
		m.removeWaiterLocked(resource, w)
		m.mu.Unlock()
		metrics.AddLockWaiters(-1)
		metrics.IncLockAcquisition("timeout")
		return false
	}
}

// AcquireTimeout is Acquire with an explicit wait bound. A zero or
// negative timeout uses DefaultAcquireTimeout.
func (m *Manager) AcquireTimeout(resource string, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = DefaultAcquireTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return m.Acquire(ctx, resource)
}

// Release clears the lock and hands it to the next live waiter, FIFO.
// Queued thunks registered via Queue are started first; they run in
// their own goroutines and never delay the next holder.
func (m *Manager) Release(resource string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseLocked(resource)
}

// releaseLocked implements Release. Caller must hold m.mu.
func (m *Manager) releaseLocked(resource string) {
	ls, ok := m.locks[resource]
	if !ok || !ls.held {
		return
	}
	if !ls.heldSince.IsZero() {
		metrics.ObserveLockHold(time.Since(ls.heldSince).Seconds())
	}

	if queued := ls.queued; len(queued) > 0 {
		ls.queued = nil
		for _, fn := range queued {
			go fn()
		}
	}

	for len(ls.waiters) > 0 {
		w := ls.waiters[0]
		ls.waiters = ls.waiters[1:]
		if w.abandoned {
			continue
		}
		// Hand off: held stays true, ownership moves to the waiter.
		w.granted = true
		ls.heldSince = time.Now()
		close(w.grant)
		return
	}

	ls.held = false
	metrics.AddLocksHeld(-1)
	if len(ls.queued) == 0 {
		delete(m.locks, resource)
	}
}

// removeWaiterLocked drops w from the resource queue. Caller must hold m.mu.
func (m *Manager) removeWaiterLocked(resource string, w *waiter) {
	ls, ok := m.locks[resource]
	if !ok {
		return
	}
	out := ls.waiters[:0]
	for _, cand := range ls.waiters {
		if cand != w {
			out = append(out, cand)
		}
	}
	ls.waiters = out
}

// Queue registers a deferred unit of work to run after the next
// release of resource, or immediately when the lock is free. The thunk
// is fire-and-forget: it runs in its own goroutine and nothing waits
// on its result.
func (m *Manager) Queue(resource string, fn func()) {
	m.mu.Lock()
	ls := m.state(resource)
	if ls.held {
		ls.queued = append(ls.queued, fn)
		m.mu.Unlock()
		return
	}
	if len(ls.waiters) == 0 && len(ls.queued) == 0 {
		delete(m.locks, resource)
	}
	m.mu.Unlock()
	go fn()
}

// Held reports whether the resource lock is currently held. Intended
// for tests and diagnostics.
func (m *Manager) Held(resource string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	ls, ok := m.locks[resource]
	return ok && ls.held
}

// Waiters reports how many callers are queued for the resource.
// Intended for tests and diagnostics.
func (m *Manager) Waiters(resource string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	ls, ok := m.locks[resource]
	if !ok {
		return 0
	}
	n := 0
	for _, w := range ls.waiters {
		if !w.abandoned {
			n++
		}
	}
	return n
}

// WithLock runs fn while holding the resource lock, releasing on every
// exit path including panic. It returns ErrLockTimeout when the lock
// cannot be acquired before ctx is done; fn's own error is propagated
// unmodified.
func WithLock[T any](ctx context.Context, m *Manager, resource, label string, fn func() (T, error)) (T, error) {
	var zero T
	if !m.Acquire(ctx, resource) {
		m.logger.Warn().
			Str(log.FieldResource, resource).
			Str(log.FieldLabel, label).
			Msg("lock acquisition timed out")
		return zero, ErrLockTimeout
	}
	defer m.Release(resource)
	return fn()
}
