// Package wire implements the binary replication codec: a bounds-checked
// little-endian reader/writer, the World Diff model, and per-component
// payload codecs keyed by stable type ids.
package wire

import (
	"github.com/tidesync/replica/tick"
	"github.com/tidesync/replica/world"
)

// Diff is the spawn/despawn/component-change set produced for one tick for
// one connection. Per-entity record order within a message is
// spawn → update → despawn.
type Diff struct {
	Tick     tick.Tick
	Spawns   []world.Spawned
	Despawns []world.Entity
	Updates  []world.Change
	Removals []world.Removal
}

// Empty reports whether the diff carries no records. Empty diffs still
// travel: the tick alone advances the receiver's cursor.
func (d *Diff) Empty() bool {
	return len(d.Spawns) == 0 && len(d.Despawns) == 0 &&
		len(d.Updates) == 0 && len(d.Removals) == 0
}
