package world

import "github.com/tidesync/replica/tick"

// Spawned describes one entity created since a baseline tick, with the
// current value of every replicated component attached to it.
type Spawned struct {
	Entity     Entity
	Components []ComponentValue
}

// ComponentValue is one decoded component attached to an entity.
type ComponentValue struct {
	Type  ComponentType
	Value any
}

// World is the simulation collaborator. The sending side reads changes
// through the Since queries; the receiving side mutates through the Apply
// methods during the diff apply phase. Implementations are accessed only
// from the scheduling pass, never concurrently.
type World interface {
	// SpawnedSince yields entities spawned after the baseline tick with
	// their current replicated components.
	SpawnedSince(baseline tick.Tick) []Spawned

	// DespawnedSince yields entities despawned after the baseline tick.
	DespawnedSince(baseline tick.Tick) []Entity

	// ChangedSince yields component mutations after the baseline tick,
	// excluding components on entities spawned after it (those travel in
	// the spawn records).
	ChangedSince(baseline tick.Tick) []Change

	// RemovedSince yields components removed (without despawn) after the
	// baseline tick.
	RemovedSince(baseline tick.Tick) []Removal

	// ApplySpawn creates a replica entity carrying the given components
	// and returns its local identity.
	ApplySpawn(components []ComponentValue) (Entity, error)

	// ApplyUpdate overwrites one component on a live replica entity.
	ApplyUpdate(e Entity, c ComponentValue) error

	// ApplyRemoval detaches one component from a live replica entity.
	ApplyRemoval(e Entity, t ComponentType) error

	// ApplyDespawn destroys a replica entity.
	ApplyDespawn(e Entity) error
}

// Change is one component mutation observed on the sending side.
type Change struct {
	Entity Entity
	Type   ComponentType
	Value  any
}

// Removal is one component detached from a still-live entity.
type Removal struct {
	Entity Entity
	Type   ComponentType
}
