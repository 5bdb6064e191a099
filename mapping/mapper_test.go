package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidesync/replica/world"
)

func TestMapper_StableRelation(t *testing.T) {
	m := NewMapper()
	auth := world.NewEntity(5, 0)
	replica := world.NewEntity(1, 0)

	m.Insert(auth, replica)

	got, err := m.Get(auth)
	require.NoError(t, err)
	assert.Equal(t, replica, got)

	// A second lookup returns the same replica id.
	again, err := m.Get(auth)
	require.NoError(t, err)
	assert.Equal(t, got, again)

	back, ok := m.Authoritative(replica)
	require.True(t, ok)
	assert.Equal(t, auth, back)
	assert.Equal(t, 1, m.Len())
}

func TestMapper_UnmappedIsMappingError(t *testing.T) {
	m := NewMapper()

	_, err := m.Get(world.NewEntity(9, 0))
	require.Error(t, err)

	var merr *MappingError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, world.NewEntity(9, 0), merr.Authoritative)
}

func TestMapper_RemoveReleasesBothDirections(t *testing.T) {
	m := NewMapper()
	auth := world.NewEntity(5, 0)
	replica := world.NewEntity(1, 0)
	m.Insert(auth, replica)

	got, err := m.Remove(auth)
	require.NoError(t, err)
	assert.Equal(t, replica, got)
	assert.Equal(t, 0, m.Len())

	_, err = m.Get(auth)
	var merr *MappingError
	require.ErrorAs(t, err, &merr)

	_, ok := m.Authoritative(replica)
	assert.False(t, ok)

	// Removing twice is also a MappingError.
	_, err = m.Remove(auth)
	require.ErrorAs(t, err, &merr)
}
