package tick

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewer_Basic(t *testing.T) {
	assert.True(t, Newer(1, 0))
	assert.False(t, Newer(0, 1))
	assert.False(t, Newer(5, 5))
}

func TestNewer_WrapSafety(t *testing.T) {
	// The successor is newer for every tick, including the maximum.
	for _, v := range []Tick{0, 1, 100, math.MaxUint32 - 1, math.MaxUint32} {
		assert.True(t, Newer(v+1, v), "tick %d", v)
		assert.False(t, Newer(v, v+1), "tick %d", v)
		assert.False(t, Newer(v, v), "tick %d", v)
	}
	// Zero is newer than a tick just before the wrap point.
	assert.True(t, Newer(0, math.MaxUint32))
	assert.True(t, Newer(10, math.MaxUint32-10))
}

func TestNewer_HalfRange(t *testing.T) {
	const half = Tick(1) << 31

	// Exactly half the range apart: neither direction is newer, so a
	// cursor can never accept the same pair both ways.
	assert.False(t, Newer(half, 0))
	assert.False(t, Newer(0, half))
	assert.False(t, Newer(half+7, 7))
	assert.False(t, Newer(7, half+7))

	// One short of half is still newer, one past flips direction.
	assert.True(t, Newer(half-1, 0))
	assert.False(t, Newer(half+1, 0))
	assert.True(t, Newer(0, half+1))
}

func TestDelta(t *testing.T) {
	assert.Equal(t, uint32(3), Delta(5, 2))
	assert.Equal(t, uint32(1), Delta(0, math.MaxUint32))
}

func TestClock_EveryPass(t *testing.T) {
	c := NewClock(EveryPass())
	require.Equal(t, Tick(0), c.Current())

	for i := 1; i <= 5; i++ {
		got, emitted := c.Advance()
		assert.True(t, emitted)
		assert.Equal(t, Tick(i), got)
	}
}

func TestClock_MaxTickRate(t *testing.T) {
	c := NewClock(MaxTickRate(100 * time.Millisecond))
	now := time.Unix(0, 0)
	c.now = func() time.Time { return now }

	got, emitted := c.Advance()
	require.True(t, emitted)
	require.Equal(t, Tick(1), got)

	// Inside the window: no emission, tick unchanged.
	now = now.Add(50 * time.Millisecond)
	got, emitted = c.Advance()
	assert.False(t, emitted)
	assert.Equal(t, Tick(1), got)

	// Window elapsed.
	now = now.Add(60 * time.Millisecond)
	got, emitted = c.Advance()
	assert.True(t, emitted)
	assert.Equal(t, Tick(2), got)
}
