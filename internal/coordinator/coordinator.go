// SPDX-License-Identifier: MIT

// Package coordinator wraps every entity mutation with the optimistic
// cycle: snapshot, speculative apply, remote call, commit or exact
// rollback, and delayed background reconciliation.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/Muscled-clients-repo/unpuzzle-mvp-sub005/internal/locks"
	"github.com/Muscled-clients-repo/unpuzzle-mvp-sub005/internal/log"
	"github.com/Muscled-clients-repo/unpuzzle-mvp-sub005/internal/metrics"
	"github.com/Muscled-clients-repo/unpuzzle-mvp-sub005/internal/registry"
	"github.com/Muscled-clients-repo/unpuzzle-mvp-sub005/internal/remote"
	"github.com/Muscled-clients-repo/unpuzzle-mvp-sub005/internal/store"
)

// Defaults for coordinator timing.
const (
	DefaultReconcileDelay = 2 * time.Second
	DefaultLockTimeout    = 5 * time.Second
)

var (
	// ErrDuplicateOperation means the registry rejected the submission
	// as a duplicate. Callers treat it as "ignore this click", not as
	// a user-facing failure.
	ErrDuplicateOperation = errors.New("duplicate operation rejected")

	// ErrOperationCancelled means the operation was cancelled while
	// the remote call was in flight; the late response was discarded.
	ErrOperationCancelled = errors.New("operation cancelled")

	// ErrRemoteRefused wraps a Success-false remote result.
	ErrRemoteRefused = errors.New("remote mutation refused")

	// ErrUnknownEntity means the mutation referenced an id the cache
	// has never seen.
	ErrUnknownEntity = errors.New("unknown entity")
)

// Cache is the mutable shared state the coordinator operates on.
// Implemented by *store.Store and, during the array-state migration,
// *store.Mirror.
type Cache interface {
	Upsert(entities ...store.Entity)
	Delete(id string)
	Get(id string) (store.Entity, bool)
	Ordered(parent string) []store.Entity
	Snapshot(ids ...string) store.Snapshot
	Restore(snap store.Snapshot)
	ReplaceID(temp, canonical string)
	ApplyProgress(operationID string, percent float64) bool
	Progress(operationID string) (float64, bool)
	SetStatus(id string, status store.Status) bool
}

// Config carries coordinator tuning.
type Config struct {
	// ReconcileDelay is how long after a commit the background
	// refetch-and-replace runs. Immediate refetches would visibly
	// revert optimistic updates before backend read replicas catch
	// up, so the delay is deliberate.
	ReconcileDelay time.Duration
	// LockTimeout bounds per-mutation lock waits when the caller's
	// context carries no deadline.
	LockTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.ReconcileDelay <= 0 {
		c.ReconcileDelay = DefaultReconcileDelay
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = DefaultLockTimeout
	}
}

// Request describes one mutation.
type Request struct {
	// OperationID is assigned (uuid) when empty.
	OperationID string
	// Type is the duplicate-guard key; defaults to "<kind>:<resource>".
	Type string
	Kind remote.MutationKind
	// Entity carries the intended result. For reorder, Entity.Order is
	// the target position among siblings; the coordinator renumbers
	// the whole group contiguously from it.
	Entity store.Entity
	// Resource is the lock key; defaults to the entity's sibling group
	// (the parent key) for every kind.
	Resource string
}

func (r *Request) applyDefaults() {
	if r.OperationID == "" {
		r.OperationID = uuid.NewString()
	}
	if r.Type == "" {
		target := r.Entity.ID
		switch r.Kind {
		case remote.MutationCreate, remote.MutationReorder:
			target = r.Entity.Parent
		}
		r.Type = string(r.Kind) + ":" + target
	}
}

// Coordinator is the per-process mutation coordinator. Construct one
// instance and inject it everywhere a mutation is issued; nothing here
// relies on ambient global state.
type Coordinator struct {
	cache    Cache
	locks    *locks.Manager
	registry *registry.Registry
	backend  remote.Backend
	cfg      Config
	logger   zerolog.Logger

	// refetch collapses concurrent reconciliation fetches per parent.
	refetch singleflight.Group
}

// New constructs a coordinator.
func New(cache Cache, lm *locks.Manager, reg *registry.Registry, backend remote.Backend, cfg Config) *Coordinator {
	cfg.applyDefaults()
	return &Coordinator{
		cache:    cache,
		locks:    lm,
		registry: reg,
		backend:  backend,
		cfg:      cfg,
		logger:   log.WithComponent("coordinator"),
	}
}

// lockResource resolves the lock key for a request. Every kind locks
// the sibling group: a reorder snapshot spans the whole group, so a
// rename or delete running under a narrower per-entity key could commit
// mid-sequence and then be wiped by the reorder's rollback.
func (c *Coordinator) lockResource(req Request) string {
	if req.Resource != "" {
		return req.Resource
	}
	switch req.Kind {
	case remote.MutationCreate, remote.MutationReorder:
		return req.Entity.Parent
	default:
		if cur, ok := c.cache.Get(req.Entity.ID); ok {
			return cur.Parent
		}
		return req.Entity.ID
	}
}

// Mutate runs one optimistic mutation end to end. The returned entity
// reflects the committed (canonical) value. Expected-contention
// outcomes surface as sentinels: ErrDuplicateOperation,
// locks.ErrLockTimeout, ErrOperationCancelled. Remote failures are
// returned only after the rollback has been applied.
func (c *Coordinator) Mutate(ctx context.Context, req Request) (store.Entity, error) {
	req.applyDefaults()
	req.Resource = c.lockResource(req)

	if !c.registry.Start(req.OperationID, req.Type, req.Resource) {
		return store.Entity{}, ErrDuplicateOperation
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.LockTimeout)
		defer cancel()
	}
	ctx = log.ContextWithOperationID(ctx, req.OperationID)

	start := time.Now()
	entity, err := locks.WithLock(ctx, c.locks, req.Resource, string(req.Kind), func() (store.Entity, error) {
		return c.run(ctx, req)
	})
	if errors.Is(err, locks.ErrLockTimeout) {
		// The mutation never ran; close out the bookkeeping record.
		c.registry.Cancel(req.OperationID)
		return store.Entity{}, err
	}
	metrics.ObserveMutationDuration(string(req.Kind), time.Since(start).Seconds())
	return entity, err
}

// run executes the snapshot / speculative-apply / remote / resolve
// sequence. The resource lock is held for the whole sequence so no
// other mutation can take a snapshot mid-flight.
func (c *Coordinator) run(ctx context.Context, req Request) (store.Entity, error) {
	logger := log.FromContext(ctx, "coordinator")

	sp, mutation, err := c.plan(req)
	if err != nil {
		c.registry.Complete(req.OperationID)
		return store.Entity{}, err
	}

	snap := c.cache.Snapshot(sp.affectedIDs...)

	phase := PhaseIdle
	transition := func(to Phase) {
		if !CanTransition(phase, to) {
			logger.Error().
				Str(log.FieldOldState, phase.String()).
				Str(log.FieldNewState, to.String()).
				Msg("illegal mutation phase transition")
			return
		}
		logger.Debug().
			Str(log.FieldOldState, phase.String()).
			Str(log.FieldNewState, to.String()).
			Msg("mutation phase transition")
		phase = to
	}

	// Speculative apply: the caller sees the intended result with
	// zero latency, before the remote call resolves.
	sp.apply(c.cache)
	transition(PhaseSpeculative)

	res, remoteErr := c.backend.Mutate(ctx, mutation)

	// A late response to a cancelled operation is a strict no-op:
	// nothing is committed, nothing is rolled back, nothing is
	// scheduled.
	if _, cancelled, known := c.registry.Terminal(req.OperationID); cancelled || !known {
		logger.Info().
			Str(log.FieldReason, "cancelled").
			Msg("discarding late remote response")
		metrics.IncMutation(string(req.Kind), "cancelled")
		return store.Entity{}, ErrOperationCancelled
	}

	if remoteErr != nil || !res.Success {
		c.cache.Restore(snap)
		transition(PhaseRolledBack)
		c.registry.Complete(req.OperationID)
		metrics.IncMutation(string(req.Kind), "rolled_back")
		if remoteErr != nil {
			return store.Entity{}, fmt.Errorf("remote mutation: %w", remoteErr)
		}
		return store.Entity{}, fmt.Errorf("%w: %s", ErrRemoteRefused, res.Err)
	}

	committed := sp.result
	if res.Entity != nil {
		canonical := *res.Entity
		if canonical.ID != sp.result.ID {
			// Server-assigned id replaces the temporary one while
			// anything pointing at it keeps resolving.
			c.cache.ReplaceID(sp.result.ID, canonical.ID)
		}
		c.cache.Upsert(canonical)
		committed = canonical
	}
	transition(PhaseCommitted)
	c.registry.Complete(req.OperationID)
	metrics.IncMutation(string(req.Kind), "committed")

	c.scheduleReconcile(req.Resource, committed.Parent)
	return committed, nil
}

// speculativePlan is the locally computed intent of one mutation.
type speculativePlan struct {
	affectedIDs []string
	result      store.Entity
	apply       func(Cache)
}

// plan computes the speculative result and the remote mutation for a
// request. Reorder renumbers the full sibling group to a contiguous
// zero-based permutation; the same renumbered set is sent to the
// backend so the confirmed order matches the speculative one.
func (c *Coordinator) plan(req Request) (speculativePlan, remote.Mutation, error) {
	switch req.Kind {
	case remote.MutationCreate:
		e := req.Entity
		if e.ID == "" {
			e.ID = "tmp-" + uuid.NewString()
		}
		if e.Status == "" {
			e.Status = store.StatusPending
		}
		return speculativePlan{
			affectedIDs: []string{e.ID},
			result:      e,
			apply:       func(cache Cache) { cache.Upsert(e) },
		}, remote.Mutation{Kind: req.Kind, Entity: e}, nil

	case remote.MutationRename:
		cur, ok := c.cache.Get(req.Entity.ID)
		if !ok {
			return speculativePlan{}, remote.Mutation{}, fmt.Errorf("%w: %s", ErrUnknownEntity, req.Entity.ID)
		}
		cur.Title = req.Entity.Title
		return speculativePlan{
			affectedIDs: []string{cur.ID},
			result:      cur,
			apply:       func(cache Cache) { cache.Upsert(cur) },
		}, remote.Mutation{Kind: req.Kind, Entity: cur}, nil

	case remote.MutationReorder:
		siblings := c.cache.Ordered(req.Entity.Parent)
		renumbered, ok := renumber(siblings, req.Entity.ID, req.Entity.Order)
		if !ok {
			return speculativePlan{}, remote.Mutation{}, fmt.Errorf("%w: %s", ErrUnknownEntity, req.Entity.ID)
		}
		ids := make([]string, len(renumbered))
		var moved store.Entity
		for i, s := range renumbered {
			ids[i] = s.ID
			if s.ID == req.Entity.ID {
				moved = s
			}
		}
		return speculativePlan{
			affectedIDs: ids,
			result:      moved,
			apply:       func(cache Cache) { cache.Upsert(renumbered...) },
		}, remote.Mutation{Kind: req.Kind, Entity: moved, Siblings: renumbered}, nil

	case remote.MutationDelete:
		cur, ok := c.cache.Get(req.Entity.ID)
		if !ok {
			return speculativePlan{}, remote.Mutation{}, fmt.Errorf("%w: %s", ErrUnknownEntity, req.Entity.ID)
		}
		return speculativePlan{
			affectedIDs: []string{cur.ID},
			result:      cur,
			apply:       func(cache Cache) { cache.Delete(cur.ID) },
		}, remote.Mutation{Kind: req.Kind, Entity: cur}, nil

	default:
		return speculativePlan{}, remote.Mutation{}, fmt.Errorf("unknown mutation kind %q", req.Kind)
	}
}

// renumber moves id to target position within siblings and assigns
// contiguous zero-based order values. Returns false if id is not in
// the group.
func renumber(siblings []store.Entity, id string, target int) ([]store.Entity, bool) {
	idx := -1
	for i, s := range siblings {
		if s.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, false
	}

	moved := siblings[idx]
	rest := make([]store.Entity, 0, len(siblings)-1)
	rest = append(rest, siblings[:idx]...)
	rest = append(rest, siblings[idx+1:]...)

	if target < 0 {
		target = 0
	}
	if target > len(rest) {
		target = len(rest)
	}

	out := make([]store.Entity, 0, len(siblings))
	out = append(out, rest[:target]...)
	out = append(out, moved)
	out = append(out, rest[target:]...)
	for i := range out {
		out[i].Order = i
	}
	return out, true
}

// scheduleReconcile arranges a delayed refetch-and-replace for the
// committed entity's sibling group. The refetch holds the resource lock
// while it runs and yields to any mutation that started on the same
// group in the meantime, so a stale server snapshot never overwrites
// newer speculative state; concurrent refetches for the same parent
// collapse into one.
func (c *Coordinator) scheduleReconcile(resource, parent string) {
	time.AfterFunc(c.cfg.ReconcileDelay, func() {
		c.locks.Queue(resource, func() {
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.LockTimeout)
			defer cancel()
			_, err := locks.WithLock(ctx, c.locks, resource, "reconcile", func() (struct{}, error) {
				if c.registry.ActiveOn(resource) {
					metrics.IncReconciliation("skipped")
					return struct{}{}, nil
				}
				c.reconcile(ctx, parent)
				return struct{}{}, nil
			})
			if err != nil {
				metrics.IncReconciliation("skipped")
			}
		})
	})
}

func (c *Coordinator) reconcile(ctx context.Context, parent string) {
	_, err, shared := c.refetch.Do(parent, func() (any, error) {
		entities, err := c.backend.FetchChildren(ctx, parent)
		if err != nil {
			return nil, err
		}
		c.cache.Upsert(entities...)
		return nil, nil
	})
	if err != nil {
		metrics.IncReconciliation("failed")
		c.logger.Warn().
			Err(err).
			Str(log.FieldParent, parent).
			Msg("background reconciliation failed")
		return
	}
	if shared {
		metrics.IncReconciliation("skipped")
		return
	}
	metrics.IncReconciliation("applied")
}

// Cancel marks an operation cancelled. Advisory: the in-flight remote
// call is not aborted, but its late response will be discarded.
func (c *Coordinator) Cancel(operationID string) {
	c.registry.Cancel(operationID)
}
