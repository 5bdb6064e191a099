// Package world defines the simulation-facing surface of the replication
// engine: entity identity, the World interface the engine drives, and a
// reference in-memory Store implementing it.
package world

import "fmt"

// Entity encodes a 32-bit index in the lower bits and a 32-bit generation
// in the upper bits. Generation increments on despawn to invalidate stale
// references. The zero Entity is never allocated.
type Entity uint64

func NewEntity(index uint32, generation uint32) Entity {
	return Entity(uint64(generation)<<32 | uint64(index))
}

func (e Entity) Index() uint32      { return uint32(e) }
func (e Entity) Generation() uint32 { return uint32(e >> 32) }
func (e Entity) IsZero() bool       { return e == 0 }

func (e Entity) String() string {
	return fmt.Sprintf("%dv%d", e.Index(), e.Generation())
}

// ComponentType is the stable numeric id of a replicated component kind,
// agreed by out-of-band registration on both sides.
type ComponentType uint16

// Pool allocates entities with generational indices and a free list.
type Pool struct {
	generations []uint32
	freeList    []uint32
	nextIndex   uint32
}

func NewPool() *Pool {
	return &Pool{
		generations: make([]uint32, 1, 1024), // index 0 reserved, zero Entity invalid
		freeList:    make([]uint32, 0, 256),
		nextIndex:   1,
	}
}

func (p *Pool) Create() Entity {
	if len(p.freeList) > 0 {
		idx := p.freeList[len(p.freeList)-1]
		p.freeList = p.freeList[:len(p.freeList)-1]
		return NewEntity(idx, p.generations[idx])
	}
	idx := p.nextIndex
	p.nextIndex++
	if int(idx) >= len(p.generations) {
		p.generations = append(p.generations, 0)
	}
	return NewEntity(idx, p.generations[idx])
}

func (p *Pool) Alive(e Entity) bool {
	idx := e.Index()
	if idx == 0 || idx >= p.nextIndex {
		return false
	}
	return p.generations[idx] == e.Generation()
}

func (p *Pool) Destroy(e Entity) {
	idx := e.Index()
	if idx == 0 || idx >= p.nextIndex {
		return
	}
	if p.generations[idx] != e.Generation() {
		return // already destroyed (stale reference)
	}
	p.generations[idx]++
	p.freeList = append(p.freeList, idx)
}
