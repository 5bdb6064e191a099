// Package tick provides the replication tick counter and its wrap-aware
// ordering. All arithmetic on ticks is wrapping.
package tick

import "time"

// Tick identifies one replication step. Comparison must go through Newer;
// plain < breaks at the wrap point.
type Tick uint32

// Newer reports whether a was produced after b, accounting for wraparound.
// A tick is considered newer while it is less than half the counter range
// ahead. Newer(t, t) is false, and exactly half the range apart neither
// tick is newer.
func Newer(a, b Tick) bool {
	d := uint32(a - b)
	return d != 0 && d < 1<<31
}

// Delta returns the wrapping distance from b forward to a.
func Delta(a, b Tick) uint32 {
	return uint32(a - b)
}

// Policy controls how often the clock emits a new tick.
type Policy struct {
	// MinInterval is the minimum wall time between two emissions.
	// Zero means emit on every pass.
	MinInterval time.Duration
}

// EveryPass emits a new tick on every scheduling pass.
func EveryPass() Policy { return Policy{} }

// MaxTickRate emits at most once per interval; passes inside the window
// reuse the previous tick.
func MaxTickRate(interval time.Duration) Policy {
	return Policy{MinInterval: interval}
}

// Clock produces the monotonically increasing replication tick under a
// Policy. Not safe for concurrent use; the scheduler owns it.
type Clock struct {
	policy   Policy
	current  Tick
	lastEmit time.Time
	now      func() time.Time
}

func NewClock(policy Policy) *Clock {
	return &Clock{policy: policy, now: time.Now}
}

// Current returns the tick of the most recent emission.
func (c *Clock) Current() Tick { return c.current }

// Advance emits the next tick if the policy allows it and reports whether
// an emission happened this pass.
func (c *Clock) Advance() (Tick, bool) {
	if c.policy.MinInterval > 0 {
		now := c.now()
		if !c.lastEmit.IsZero() && now.Sub(c.lastEmit) < c.policy.MinInterval {
			return c.current, false
		}
		c.lastEmit = now
	}
	c.current++
	return c.current, true
}
