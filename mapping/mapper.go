// Package mapping relates two independent entity identity spaces: the
// authoritative ids owned by the sending simulation and the replica-local
// ids owned by each receiving peer.
package mapping

import (
	"fmt"

	"github.com/tidesync/replica/world"
)

// MappingError reports a reference to an unmapped identity, an update or
// removal arriving before the entity's spawn. For a correctly tick-ordered
// stream this is a protocol violation and is reported, not absorbed.
type MappingError struct {
	Authoritative world.Entity
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("no replica mapping for authoritative entity %v", e.Authoritative)
}

// Mapper is the per-connection bidirectional table between authoritative
// and replica entities. It owns the relation, never the entities: insertion
// happens atomically with spawn application, removal with despawn
// application. Accessed only from the scheduling pass.
type Mapper struct {
	toReplica map[world.Entity]world.Entity
	toAuth    map[world.Entity]world.Entity
}

func NewMapper() *Mapper {
	return &Mapper{
		toReplica: make(map[world.Entity]world.Entity, 256),
		toAuth:    make(map[world.Entity]world.Entity, 256),
	}
}

// Insert records the relation created by a spawn application.
func (m *Mapper) Insert(authoritative, replica world.Entity) {
	m.toReplica[authoritative] = replica
	m.toAuth[replica] = authoritative
}

// Get resolves an authoritative id to its replica id. An unmapped id is a
// MappingError.
func (m *Mapper) Get(authoritative world.Entity) (world.Entity, error) {
	replica, ok := m.toReplica[authoritative]
	if !ok {
		return 0, &MappingError{Authoritative: authoritative}
	}
	return replica, nil
}

// Has reports whether the authoritative id is mapped.
func (m *Mapper) Has(authoritative world.Entity) bool {
	_, ok := m.toReplica[authoritative]
	return ok
}

// Authoritative resolves a replica id back to its authoritative id.
func (m *Mapper) Authoritative(replica world.Entity) (world.Entity, bool) {
	auth, ok := m.toAuth[replica]
	return auth, ok
}

// Remove drops the relation on despawn application and returns the replica
// id that was mapped. An unmapped id is a MappingError.
func (m *Mapper) Remove(authoritative world.Entity) (world.Entity, error) {
	replica, ok := m.toReplica[authoritative]
	if !ok {
		return 0, &MappingError{Authoritative: authoritative}
	}
	delete(m.toReplica, authoritative)
	delete(m.toAuth, replica)
	return replica, nil
}

// Len returns the number of live relations.
func (m *Mapper) Len() int { return len(m.toReplica) }
