package world

import (
	"fmt"
	"sort"

	"github.com/tidesync/replica/tick"
)

// componentStore keeps current values and the tick of last mutation for one
// component type.
type componentStore struct {
	values  map[Entity]any
	changed map[Entity]tick.Tick
}

func newComponentStore() *componentStore {
	return &componentStore{
		values:  make(map[Entity]any, 256),
		changed: make(map[Entity]tick.Tick, 256),
	}
}

// Store is the reference World implementation: a map-backed entity and
// component store with per-mutation tick stamps and despawn/removal
// journals. It backs both sides: the authoritative simulation mutates it
// through Spawn/Set/Remove/Despawn, a replica through the Apply methods.
// Accessed only from the scheduling pass.
type Store struct {
	pool    *Pool
	stores  map[ComponentType]*componentStore
	spawned map[Entity]tick.Tick // live entities, stamped with spawn tick

	despawnLog []journalEntry
	removalLog []journalEntry

	current tick.Tick
}

type journalEntry struct {
	entity Entity
	ctype  ComponentType // removal log only
	at     tick.Tick
}

func NewStore() *Store {
	return &Store{
		pool:    NewPool(),
		stores:  make(map[ComponentType]*componentStore, 16),
		spawned: make(map[Entity]tick.Tick, 256),
		// Tick 0 means "before anything", the baseline of a connection that
		// has acknowledged nothing. Setup mutations before the first pass
		// stamp tick 1 so they reach every peer.
		current: 1,
	}
}

// SetTick stamps subsequent mutations with the given tick. Called by the
// scheduler before the simulate phase.
func (s *Store) SetTick(t tick.Tick) { s.current = t }

// Tick returns the current mutation stamp.
func (s *Store) Tick() tick.Tick { return s.current }

func (s *Store) store(t ComponentType) *componentStore {
	cs, ok := s.stores[t]
	if !ok {
		cs = newComponentStore()
		s.stores[t] = cs
	}
	return cs
}

// ── Authoritative mutation surface ──

// Spawn creates a live entity stamped with the current tick.
func (s *Store) Spawn() Entity {
	e := s.pool.Create()
	s.spawned[e] = s.current
	return e
}

// Set attaches or overwrites a component, stamping the change.
func (s *Store) Set(e Entity, t ComponentType, value any) {
	if !s.pool.Alive(e) {
		return
	}
	cs := s.store(t)
	cs.values[e] = value
	cs.changed[e] = s.current
}

// Get returns the current component value.
func (s *Store) Get(e Entity, t ComponentType) (any, bool) {
	cs, ok := s.stores[t]
	if !ok {
		return nil, false
	}
	v, ok := cs.values[e]
	return v, ok
}

// Has reports whether the entity carries the component.
func (s *Store) Has(e Entity, t ComponentType) bool {
	_, ok := s.Get(e, t)
	return ok
}

// Alive reports whether the entity is live.
func (s *Store) Alive(e Entity) bool { return s.pool.Alive(e) }

// Len returns the number of live entities.
func (s *Store) Len() int { return len(s.spawned) }

// Remove detaches a component and journals the removal.
func (s *Store) Remove(e Entity, t ComponentType) {
	cs, ok := s.stores[t]
	if !ok {
		return
	}
	if _, ok := cs.values[e]; !ok {
		return
	}
	delete(cs.values, e)
	delete(cs.changed, e)
	s.removalLog = append(s.removalLog, journalEntry{entity: e, ctype: t, at: s.current})
}

// Despawn destroys an entity, clears its components, and journals the
// despawn.
func (s *Store) Despawn(e Entity) {
	if !s.pool.Alive(e) {
		return
	}
	for _, cs := range s.stores {
		delete(cs.values, e)
		delete(cs.changed, e)
	}
	delete(s.spawned, e)
	s.pool.Destroy(e)
	s.despawnLog = append(s.despawnLog, journalEntry{entity: e, at: s.current})
}

// ── Change queries (sending side) ──

func (s *Store) SpawnedSince(baseline tick.Tick) []Spawned {
	var out []Spawned
	for e, at := range s.spawned {
		if !tick.Newer(at, baseline) {
			continue
		}
		out = append(out, Spawned{Entity: e, Components: s.componentsOf(e)})
	}
	// Map iteration order is random; diffs must be deterministic per tick.
	sort.Slice(out, func(i, j int) bool { return out[i].Entity < out[j].Entity })
	return out
}

func (s *Store) componentsOf(e Entity) []ComponentValue {
	var comps []ComponentValue
	for t, cs := range s.stores {
		if v, ok := cs.values[e]; ok {
			comps = append(comps, ComponentValue{Type: t, Value: v})
		}
	}
	sort.Slice(comps, func(i, j int) bool { return comps[i].Type < comps[j].Type })
	return comps
}

func (s *Store) DespawnedSince(baseline tick.Tick) []Entity {
	var out []Entity
	for _, j := range s.despawnLog {
		if tick.Newer(j.at, baseline) {
			out = append(out, j.entity)
		}
	}
	return out
}

func (s *Store) ChangedSince(baseline tick.Tick) []Change {
	var out []Change
	for t, cs := range s.stores {
		for e, at := range cs.changed {
			if !tick.Newer(at, baseline) {
				continue
			}
			// Components on freshly spawned entities travel in the spawn
			// record, not as updates.
			if spawnAt, ok := s.spawned[e]; ok && tick.Newer(spawnAt, baseline) {
				continue
			}
			out = append(out, Change{Entity: e, Type: t, Value: cs.values[e]})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Entity != out[j].Entity {
			return out[i].Entity < out[j].Entity
		}
		return out[i].Type < out[j].Type
	})
	return out
}

func (s *Store) RemovedSince(baseline tick.Tick) []Removal {
	var out []Removal
	for _, j := range s.removalLog {
		if !tick.Newer(j.at, baseline) {
			continue
		}
		if !s.pool.Alive(j.entity) {
			continue // despawn supersedes the removal
		}
		out = append(out, Removal{Entity: j.entity, Type: j.ctype})
	}
	return out
}

// Prune drops journal entries at or before the given tick. The engine calls
// it with the minimum acked tick across connections to bound memory.
func (s *Store) Prune(upTo tick.Tick) {
	s.despawnLog = pruneJournal(s.despawnLog, upTo)
	s.removalLog = pruneJournal(s.removalLog, upTo)
}

func pruneJournal(log []journalEntry, upTo tick.Tick) []journalEntry {
	kept := log[:0]
	for _, j := range log {
		if tick.Newer(j.at, upTo) {
			kept = append(kept, j)
		}
	}
	return kept
}

// ── Replica apply surface ──

func (s *Store) ApplySpawn(components []ComponentValue) (Entity, error) {
	e := s.pool.Create()
	s.spawned[e] = s.current
	for _, c := range components {
		s.Set(e, c.Type, c.Value)
	}
	return e, nil
}

func (s *Store) ApplyUpdate(e Entity, c ComponentValue) error {
	if !s.pool.Alive(e) {
		return fmt.Errorf("update on dead entity %v", e)
	}
	s.Set(e, c.Type, c.Value)
	return nil
}

func (s *Store) ApplyRemoval(e Entity, t ComponentType) error {
	if !s.pool.Alive(e) {
		return fmt.Errorf("removal on dead entity %v", e)
	}
	s.Remove(e, t)
	return nil
}

func (s *Store) ApplyDespawn(e Entity) error {
	if !s.pool.Alive(e) {
		return fmt.Errorf("despawn of dead entity %v", e)
	}
	s.Despawn(e)
	return nil
}
