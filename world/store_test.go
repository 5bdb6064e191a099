package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	typePos    ComponentType = 1
	typeHealth ComponentType = 2
)

func TestPool_GenerationsInvalidateStaleRefs(t *testing.T) {
	p := NewPool()
	a := p.Create()
	require.True(t, p.Alive(a))

	p.Destroy(a)
	assert.False(t, p.Alive(a))

	// The index is recycled under a new generation.
	b := p.Create()
	assert.Equal(t, a.Index(), b.Index())
	assert.NotEqual(t, a.Generation(), b.Generation())
	assert.True(t, p.Alive(b))
	assert.False(t, p.Alive(a))
}

func TestStore_SpawnedSinceHonorsBaseline(t *testing.T) {
	s := NewStore()
	s.SetTick(5)
	early := s.Spawn()
	s.Set(early, typePos, "a")

	s.SetTick(8)
	late := s.Spawn()
	s.Set(late, typeHealth, "b")

	// Baseline 0: the whole live world.
	all := s.SpawnedSince(0)
	require.Len(t, all, 2)
	assert.Equal(t, early, all[0].Entity)
	assert.Equal(t, late, all[1].Entity)
	require.Len(t, all[0].Components, 1)
	assert.Equal(t, typePos, all[0].Components[0].Type)

	// Baseline 5: only the late spawn.
	since := s.SpawnedSince(5)
	require.Len(t, since, 1)
	assert.Equal(t, late, since[0].Entity)
}

func TestStore_ChangedSinceSkipsFreshSpawns(t *testing.T) {
	s := NewStore()
	s.SetTick(3)
	old := s.Spawn()
	s.Set(old, typePos, 1)

	s.SetTick(6)
	s.Set(old, typePos, 2)
	fresh := s.Spawn()
	s.Set(fresh, typePos, 3)

	changes := s.ChangedSince(3)
	require.Len(t, changes, 1)
	assert.Equal(t, old, changes[0].Entity)
	assert.Equal(t, 2, changes[0].Value)
}

func TestStore_DespawnJournalAndPrune(t *testing.T) {
	s := NewStore()
	s.SetTick(2)
	e := s.Spawn()
	s.SetTick(4)
	s.Despawn(e)

	assert.Equal(t, []Entity{e}, s.DespawnedSince(2))
	assert.Empty(t, s.DespawnedSince(4))
	assert.Empty(t, s.SpawnedSince(0), "despawned entities never appear as spawns")

	s.Prune(4)
	assert.Empty(t, s.DespawnedSince(0))
}

func TestStore_RemovalSupersededByDespawn(t *testing.T) {
	s := NewStore()
	s.SetTick(2)
	e := s.Spawn()
	s.Set(e, typePos, 1)

	s.SetTick(3)
	s.Remove(e, typePos)
	require.Len(t, s.RemovedSince(2), 1)

	s.SetTick(4)
	s.Despawn(e)
	assert.Empty(t, s.RemovedSince(2), "despawn supersedes the removal")
}

func TestStore_ApplySurface(t *testing.T) {
	s := NewStore()
	e, err := s.ApplySpawn([]ComponentValue{{Type: typeHealth, Value: uint16(10)}})
	require.NoError(t, err)

	v, ok := s.Get(e, typeHealth)
	require.True(t, ok)
	assert.Equal(t, uint16(10), v)

	require.NoError(t, s.ApplyUpdate(e, ComponentValue{Type: typeHealth, Value: uint16(20)}))
	v, _ = s.Get(e, typeHealth)
	assert.Equal(t, uint16(20), v)

	require.NoError(t, s.ApplyRemoval(e, typeHealth))
	assert.False(t, s.Has(e, typeHealth))

	require.NoError(t, s.ApplyDespawn(e))
	assert.False(t, s.Alive(e))
	assert.Error(t, s.ApplyUpdate(e, ComponentValue{Type: typeHealth, Value: uint16(1)}))
	assert.Error(t, s.ApplyDespawn(e))
}
