// SPDX-License-Identifier: MIT

package store

// snapEntry records the prior value of one cache entry, including
// whether the entry existed at all. Rolling back a speculative create
// needs the absence recorded, not just a zero value.
type snapEntry struct {
	entity  Entity
	present bool
}

// Snapshot is the opaque pre-mutation value of a set of entries. It is
// owned by the single in-flight mutation that captured it: discarded on
// commit, replayed verbatim on rollback.
type Snapshot struct {
	entries map[string]snapEntry
}

// Snapshot captures the current value (or absence) of each id.
func (s *Store) Snapshot(ids ...string) Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{entries: make(map[string]snapEntry, len(ids))}
	for _, id := range ids {
		e, ok := s.entities[id]
		snap.entries[id] = snapEntry{entity: e, present: ok}
	}
	return snap
}

// Restore writes the snapshot back exactly: entries that existed are
// rewritten with their captured values, entries that did not exist are
// deleted. No merging.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, entry := range snap.entries {
		if entry.present {
			s.entities[id] = entry.entity
		} else {
			delete(s.entities, id)
		}
	}
}

// IDs returns the ids captured by the snapshot.
func (snap Snapshot) IDs() []string {
	ids := make([]string, 0, len(snap.entries))
	for id := range snap.entries {
		ids = append(ids, id)
	}
	return ids
}
