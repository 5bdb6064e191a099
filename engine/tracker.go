package engine

import (
	"github.com/tidesync/replica/tick"
	"github.com/tidesync/replica/wire"
	"github.com/tidesync/replica/world"
)

// AckTracker is the per-connection tick cursor. On the receiving side it is
// the last tick fully applied and gates acceptance; on the originating side
// it is the peer's last acknowledged tick and bounds re-send scope. The
// zero cursor means nothing acknowledged yet, so the whole live world is in
// scope.
type AckTracker struct {
	cursor tick.Tick
	set    bool
}

// Observe records a cursor advance if the tick is newer than the current
// cursor, reporting whether it advanced.
func (a *AckTracker) Observe(t tick.Tick) bool {
	if a.set && !tick.Newer(t, a.cursor) {
		return false
	}
	a.cursor = t
	a.set = true
	return true
}

// Accepts reports whether a diff at the given tick may be applied.
func (a *AckTracker) Accepts(t tick.Tick) bool {
	return !a.set || tick.Newer(t, a.cursor)
}

// Baseline returns the cursor, zero before any observation.
func (a *AckTracker) Baseline() tick.Tick { return a.cursor }

// Acked reports whether any tick has been observed.
func (a *AckTracker) Acked() bool { return a.set }

// ChangeTracker derives, per connection, the minimal spawn/despawn/
// update/removal set since that connection's baseline. Connections differ
// in baseline, so a slow connection still receives changes a fast one has
// already acknowledged. Read-only over the world.
type ChangeTracker struct {
	world world.World
}

func NewChangeTracker(w world.World) *ChangeTracker {
	return &ChangeTracker{world: w}
}

// Collect produces a fresh diff for one connection. The baseline is the
// peer's last acknowledged tick; a zero baseline yields the full live
// world as spawns.
func (c *ChangeTracker) Collect(at tick.Tick, baseline tick.Tick) *wire.Diff {
	return &wire.Diff{
		Tick:     at,
		Spawns:   c.world.SpawnedSince(baseline),
		Despawns: c.world.DespawnedSince(baseline),
		Updates:  c.world.ChangedSince(baseline),
		Removals: c.world.RemovedSince(baseline),
	}
}
