// Package scenario drives a world store from a Lua script, one tick at a
// time. It exists for deterministic soak tests and replay harnesses: the
// same script produces the same mutation sequence, so two runs of the
// replication engine can be compared tick for tick.
package scenario

import (
	"fmt"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/tidesync/replica/world"
)

// FromLua converts a script value into the Go component value the host's
// codec understands.
type FromLua func(lua.LValue) (any, error)

// Number converts a Lua number to float64.
func Number(v lua.LValue) (any, error) {
	n, ok := v.(lua.LNumber)
	if !ok {
		return nil, fmt.Errorf("expected number, got %s", v.Type())
	}
	return float64(n), nil
}

// Text converts a Lua string.
func Text(v lua.LValue) (any, error) {
	s, ok := v.(lua.LString)
	if !ok {
		return nil, fmt.Errorf("expected string, got %s", v.Type())
	}
	return string(s), nil
}

type componentBinding struct {
	ctype   world.ComponentType
	fromLua FromLua
}

// Engine wraps a single gopher-lua VM bound to one store. Single-goroutine
// access only, same as everything else in the scheduling pass.
//
// Script API:
//
//	h = spawn()                  -- returns an entity handle
//	set(h, "position", value)    -- attach or overwrite a component
//	remove(h, "position")        -- detach a component
//	despawn(h)                   -- destroy the entity
//	alive(h)                     -- liveness check
//
// A script defines `function tick(n)`; RunTick invokes it.
type Engine struct {
	vm    *lua.LState
	store *world.Store
	comps map[string]componentBinding

	handles map[int]world.Entity
	nextH   int

	log *zap.Logger
}

func New(store *world.Store, log *zap.Logger) *Engine {
	vm := lua.NewState(lua.Options{SkipOpenLibs: false})
	e := &Engine{
		vm:      vm,
		store:   store,
		comps:   make(map[string]componentBinding, 8),
		handles: make(map[int]world.Entity, 64),
		log:     log.Named("scenario"),
	}
	vm.SetGlobal("spawn", vm.NewFunction(e.luaSpawn))
	vm.SetGlobal("set", vm.NewFunction(e.luaSet))
	vm.SetGlobal("remove", vm.NewFunction(e.luaRemove))
	vm.SetGlobal("despawn", vm.NewFunction(e.luaDespawn))
	vm.SetGlobal("alive", vm.NewFunction(e.luaAlive))
	return e
}

// Bind exposes a component to scripts under the given name.
func (e *Engine) Bind(name string, t world.ComponentType, fromLua FromLua) {
	e.comps[name] = componentBinding{ctype: t, fromLua: fromLua}
}

// LoadString compiles and runs inline script source.
func (e *Engine) LoadString(src string) error {
	return e.vm.DoString(src)
}

// LoadDir loads every .lua file in a directory, skipping it if missing.
func (e *Engine) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded scenario script", zap.String("file", path))
	}
	return nil
}

// HasTick reports whether any loaded script defined a tick function.
func (e *Engine) HasTick() bool {
	return e.vm.GetGlobal("tick") != lua.LNil
}

// RunTick invokes the script's tick(n) function.
func (e *Engine) RunTick(n int) error {
	fn := e.vm.GetGlobal("tick")
	if fn == lua.LNil {
		return fmt.Errorf("scenario defines no tick function")
	}
	return e.vm.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, lua.LNumber(n))
}

// Entity resolves a script handle, for assertions in tests.
func (e *Engine) Entity(handle int) (world.Entity, bool) {
	en, ok := e.handles[handle]
	return en, ok
}

// Close releases the VM.
func (e *Engine) Close() {
	e.vm.Close()
}

func (e *Engine) luaSpawn(L *lua.LState) int {
	en := e.store.Spawn()
	e.nextH++
	e.handles[e.nextH] = en
	L.Push(lua.LNumber(e.nextH))
	return 1
}

func (e *Engine) resolve(L *lua.LState, idx int) (world.Entity, bool) {
	h := int(L.CheckNumber(idx))
	en, ok := e.handles[h]
	if !ok {
		L.RaiseError("unknown entity handle %d", h)
		return 0, false
	}
	return en, true
}

func (e *Engine) binding(L *lua.LState, idx int) (componentBinding, bool) {
	name := L.CheckString(idx)
	b, ok := e.comps[name]
	if !ok {
		L.RaiseError("component %q not bound", name)
		return componentBinding{}, false
	}
	return b, true
}

func (e *Engine) luaSet(L *lua.LState) int {
	en, ok := e.resolve(L, 1)
	if !ok {
		return 0
	}
	b, ok := e.binding(L, 2)
	if !ok {
		return 0
	}
	value, err := b.fromLua(L.Get(3))
	if err != nil {
		L.RaiseError("set: %v", err)
		return 0
	}
	e.store.Set(en, b.ctype, value)
	return 0
}

func (e *Engine) luaRemove(L *lua.LState) int {
	en, ok := e.resolve(L, 1)
	if !ok {
		return 0
	}
	b, ok := e.binding(L, 2)
	if !ok {
		return 0
	}
	e.store.Remove(en, b.ctype)
	return 0
}

func (e *Engine) luaDespawn(L *lua.LState) int {
	en, ok := e.resolve(L, 1)
	if !ok {
		return 0
	}
	e.store.Despawn(en)
	return 0
}

func (e *Engine) luaAlive(L *lua.LState) int {
	en, ok := e.resolve(L, 1)
	if !ok {
		return 0
	}
	L.Push(lua.LBool(e.store.Alive(en)))
	return 1
}
