// SPDX-License-Identifier: MIT

package store

import (
	"sort"
	"sync"

	"github.com/Muscled-clients-repo/unpuzzle-mvp-sub005/internal/metrics"
)

// Store is a flat, id-keyed entity map with per-operation upload
// progress. Reads are safe from any number of goroutines; multi-step
// write sequences (snapshot, speculative apply, commit or rollback)
// must be serialized externally per resource.
type Store struct {
	mu       sync.RWMutex
	entities map[string]Entity
	progress map[string]float64 // operation id -> percent complete
}

// New returns an empty store.
func New() *Store {
	return &Store{
		entities: make(map[string]Entity),
		progress: make(map[string]float64),
	}
}

// Upsert inserts or replaces entities by id. Sibling order fields are
// written as given; no renumbering happens as a side effect.
func (s *Store) Upsert(entities ...Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entities {
		s.entities[e.ID] = e
	}
}

// Get returns the entity with the given id.
func (s *Store) Get(id string) (Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[id]
	return e, ok
}

// Delete removes the entity with the given id, if present.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entities, id)
}

// Reorder sets the order field of exactly one entity. It does not
// renumber siblings; callers own full sibling-set consistency and must
// upsert any missing siblings first. Returns false if the id is
// unknown or the entity is not under parent.
func (s *Store) Reorder(id string, newOrder int, parent string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[id]
	if !ok || e.Parent != parent {
		return false
	}
	e.Order = newOrder
	s.entities[id] = e
	return true
}

// Ordered returns the entities under parent sorted by order ascending,
// ties broken by id for determinism.
func (s *Store) Ordered(parent string) []Entity {
	s.mu.RLock()
	out := make([]Entity, 0, 8)
	for _, e := range s.entities {
		if e.Parent == parent {
			out = append(out, e)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Len returns the number of entities held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities)
}

// ReplaceID swaps a temporary client-generated id for the canonical
// server-assigned one, repointing children whose Parent referenced the
// temporary id. A no-op if temp is unknown or the ids are equal.
func (s *Store) ReplaceID(temp, canonical string) {
	if temp == canonical {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[temp]
	if !ok {
		return
	}
	delete(s.entities, temp)
	e.ID = canonical
	s.entities[canonical] = e
	for id, child := range s.entities {
		if child.Parent == temp {
			child.Parent = canonical
			s.entities[id] = child
		}
	}
}

// ApplyProgress records percent for the operation id if it is not
// older than what is already recorded. Strictly older values are
// discarded, which makes out-of-order delivery harmless. Returns
// whether the value was applied.
func (s *Store) ApplyProgress(operationID string, percent float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.progress[operationID]; ok && percent < cur {
		metrics.IncProgressStale()
		return false
	}
	s.progress[operationID] = percent
	metrics.IncProgressApplied()
	return true
}

// Progress returns the recorded percent complete for an operation id.
func (s *Store) Progress(operationID string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.progress[operationID]
	return p, ok
}

// SetStatus updates the status of one entity. Returns false if the id
// is unknown.
func (s *Store) SetStatus(id string, status Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[id]
	if !ok {
		return false
	}
	e.Status = status
	s.entities[id] = e
	return true
}
