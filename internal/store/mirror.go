// SPDX-License-Identifier: MIT

package store

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Mirror fans every logical write out to two representations: the
// normalized store and the legacy per-parent ordered slices the old
// course editor rendered from. One flag controls which side is
// authoritative for reads. Both write paths are pure functions of the
// same input, so the representations cannot drift except through a
// bug, which CheckDivergence exists to surface.
//
// This is a transitional structure for the array-state migration; once
// all readers are on the normalized path the legacy side goes away.
type Mirror struct {
	normalized *Store

	mu     sync.RWMutex
	legacy map[string][]Entity

	authoritativeNormalized bool
	logger                  zerolog.Logger
}

// NewMirror wraps the normalized store. When authoritativeNormalized
// is false, reads come from the legacy slices.
func NewMirror(normalized *Store, authoritativeNormalized bool, logger zerolog.Logger) *Mirror {
	return &Mirror{
		normalized:              normalized,
		legacy:                  make(map[string][]Entity),
		authoritativeNormalized: authoritativeNormalized,
		logger:                  logger,
	}
}

// legacyUpsert returns siblings with e inserted or replaced, re-sorted.
// Pure function; no shared state.
func legacyUpsert(siblings []Entity, e Entity) []Entity {
	out := make([]Entity, 0, len(siblings)+1)
	for _, s := range siblings {
		if s.ID != e.ID {
			out = append(out, s)
		}
	}
	out = append(out, e)
	sortSiblings(out)
	return out
}

// legacyDelete returns siblings without id. Pure function.
func legacyDelete(siblings []Entity, id string) []Entity {
	out := make([]Entity, 0, len(siblings))
	for _, s := range siblings {
		if s.ID != id {
			out = append(out, s)
		}
	}
	return out
}

func sortSiblings(siblings []Entity) {
	sort.Slice(siblings, func(i, j int) bool {
		if siblings[i].Order != siblings[j].Order {
			return siblings[i].Order < siblings[j].Order
		}
		return siblings[i].ID < siblings[j].ID
	})
}

// Upsert writes entities to both representations.
func (m *Mirror) Upsert(entities ...Entity) {
	m.normalized.Upsert(entities...)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entities {
		m.legacy[e.Parent] = legacyUpsert(m.legacy[e.Parent], e)
	}
}

// Delete removes the entity from both representations.
func (m *Mirror) Delete(id string) {
	e, ok := m.normalized.Get(id)
	m.normalized.Delete(id)
	if !ok {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.legacy[e.Parent] = legacyDelete(m.legacy[e.Parent], id)
}

// Reorder updates the moved entity's order in both representations.
func (m *Mirror) Reorder(id string, newOrder int, parent string) bool {
	if !m.normalized.Reorder(id, newOrder, parent) {
		return false
	}
	e, _ := m.normalized.Get(id)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.legacy[parent] = legacyUpsert(m.legacy[parent], e)
	return true
}

// Ordered reads from whichever representation is authoritative.
func (m *Mirror) Ordered(parent string) []Entity {
	if m.authoritativeNormalized {
		return m.normalized.Ordered(parent)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entity, len(m.legacy[parent]))
	copy(out, m.legacy[parent])
	return out
}

// rebuildLegacyLocked resyncs one parent's legacy slice from the
// normalized store. Used after operations that cannot be expressed as
// a pure per-entity legacy write (rollback, id replacement). Caller
// must hold m.mu.
func (m *Mirror) rebuildLegacyLocked(parent string) {
	sibs := m.normalized.Ordered(parent)
	if len(sibs) == 0 {
		delete(m.legacy, parent)
		return
	}
	m.legacy[parent] = sibs
}

// Get reads from the normalized store; entity identity is shared by
// both representations.
func (m *Mirror) Get(id string) (Entity, bool) {
	return m.normalized.Get(id)
}

// Snapshot delegates to the normalized store.
func (m *Mirror) Snapshot(ids ...string) Snapshot {
	return m.normalized.Snapshot(ids...)
}

// Restore rolls the normalized store back verbatim, then resyncs the
// affected legacy slices from it.
func (m *Mirror) Restore(snap Snapshot) {
	parents := make(map[string]struct{})
	for _, id := range snap.IDs() {
		if e, ok := m.normalized.Get(id); ok {
			parents[e.Parent] = struct{}{}
		}
	}
	m.normalized.Restore(snap)
	for _, id := range snap.IDs() {
		if e, ok := m.normalized.Get(id); ok {
			parents[e.Parent] = struct{}{}
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for parent := range parents {
		m.rebuildLegacyLocked(parent)
	}
}

// ReplaceID swaps a temporary id for the canonical one in both
// representations.
func (m *Mirror) ReplaceID(temp, canonical string) {
	e, ok := m.normalized.Get(temp)
	m.normalized.ReplaceID(temp, canonical)
	if !ok {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rebuildLegacyLocked(e.Parent)
	// Children that pointed at the temporary id now live under the
	// canonical parent key.
	m.rebuildLegacyLocked(temp)
	m.rebuildLegacyLocked(canonical)
}

// ApplyProgress delegates to the normalized store; upload progress has
// no legacy representation.
func (m *Mirror) ApplyProgress(operationID string, percent float64) bool {
	return m.normalized.ApplyProgress(operationID, percent)
}

// Progress delegates to the normalized store.
func (m *Mirror) Progress(operationID string) (float64, bool) {
	return m.normalized.Progress(operationID)
}

// SetStatus updates the status in both representations.
func (m *Mirror) SetStatus(id string, status Status) bool {
	if !m.normalized.SetStatus(id, status) {
		return false
	}
	e, _ := m.normalized.Get(id)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.legacy[e.Parent] = legacyUpsert(m.legacy[e.Parent], e)
	return true
}

// CheckDivergence compares the two representations for one parent and
// logs a warning on mismatch. It never corrects either side; a
// divergence is a bug to fix, not state to paper over. Returns true
// when the sides agree.
func (m *Mirror) CheckDivergence(parent string) bool {
	norm := m.normalized.Ordered(parent)
	m.mu.RLock()
	leg := make([]Entity, len(m.legacy[parent]))
	copy(leg, m.legacy[parent])
	m.mu.RUnlock()

	if len(norm) != len(leg) {
		m.logger.Warn().
			Str("parent", parent).
			Int("normalized", len(norm)).
			Int("legacy", len(leg)).
			Str("event", "mirror.divergence").
			Msg("representations disagree on sibling count")
		return false
	}
	for i := range norm {
		if norm[i] != leg[i] {
			m.logger.Warn().
				Str("parent", parent).
				Str("entity_id", norm[i].ID).
				Int("position", i).
				Str("event", "mirror.divergence").
				Msg("representations disagree on sibling entry")
			return false
		}
	}
	return true
}
