package scenario

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tidesync/replica/tick"
	"github.com/tidesync/replica/world"
)

const (
	typeHP   world.ComponentType = 1
	typeName world.ComponentType = 2
)

func newEngine(t *testing.T) (*Engine, *world.Store) {
	t.Helper()
	store := world.NewStore()
	eng := New(store, zap.NewNop())
	eng.Bind("hp", typeHP, Number)
	eng.Bind("name", typeName, Text)
	t.Cleanup(eng.Close)
	return eng, store
}

func TestEngine_ScriptDrivesStore(t *testing.T) {
	eng, store := newEngine(t)

	require.NoError(t, eng.LoadString(`
		local h
		function tick(n)
			if n == 1 then
				h = spawn()
				set(h, "hp", 10)
				set(h, "name", "boar")
			elseif n == 2 then
				set(h, "hp", 20)
				remove(h, "name")
			elseif n == 3 then
				assert(alive(h))
				despawn(h)
			end
		end
	`))

	store.SetTick(1)
	require.NoError(t, eng.RunTick(1))
	e, ok := eng.Entity(1)
	require.True(t, ok)
	v, ok := store.Get(e, typeHP)
	require.True(t, ok)
	assert.Equal(t, float64(10), v)
	v, _ = store.Get(e, typeName)
	assert.Equal(t, "boar", v)

	store.SetTick(2)
	require.NoError(t, eng.RunTick(2))
	v, _ = store.Get(e, typeHP)
	assert.Equal(t, float64(20), v)
	assert.False(t, store.Has(e, typeName))

	store.SetTick(3)
	require.NoError(t, eng.RunTick(3))
	assert.False(t, store.Alive(e))
}

func TestEngine_SameScriptSameMutations(t *testing.T) {
	script := `
		function tick(n)
			local h = spawn()
			set(h, "hp", n * 2)
		end
	`

	runs := make([]*world.Store, 2)
	for i := range runs {
		eng, store := newEngine(t)
		require.NoError(t, eng.LoadString(script))
		for n := 1; n <= 3; n++ {
			store.SetTick(tick.Tick(n))
			require.NoError(t, eng.RunTick(n))
		}
		runs[i] = store
	}

	assert.Equal(t, runs[0].Len(), runs[1].Len())
	assert.Equal(t, runs[0].SpawnedSince(0), runs[1].SpawnedSince(0))
}

func TestEngine_MissingTickFunction(t *testing.T) {
	eng, _ := newEngine(t)
	require.NoError(t, eng.LoadString(`x = 1`))
	assert.Error(t, eng.RunTick(1))
}

func TestEngine_UnboundComponentRaises(t *testing.T) {
	eng, _ := newEngine(t)
	require.NoError(t, eng.LoadString(`
		function tick(n)
			set(spawn(), "mana", 5)
		end
	`))
	assert.Error(t, eng.RunTick(1))
}

func TestEngine_UnknownHandleRaises(t *testing.T) {
	eng, _ := newEngine(t)
	require.NoError(t, eng.LoadString(`
		function tick(n)
			despawn(42)
		end
	`))
	assert.Error(t, eng.RunTick(1))
}

func TestEngine_LoadDir(t *testing.T) {
	eng, store := newEngine(t)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "soak.lua"), []byte(`
		function tick(n)
			set(spawn(), "hp", 1)
		end
	`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	require.NoError(t, eng.LoadDir(dir))
	require.NoError(t, eng.RunTick(1))
	assert.Equal(t, 1, store.Len())

	// A missing directory is not an error.
	assert.NoError(t, eng.LoadDir(filepath.Join(dir, "nope")))
}
