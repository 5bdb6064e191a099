// Package engine orchestrates replication: it fixes the phase order of each
// scheduling pass and runs the server or client endpoint systems inside it.
package engine

import (
	"sort"
	"time"
)

// Phase defines execution ordering within a single scheduling pass. The
// order is fixed: event reception never interleaves with diff application,
// and ack bookkeeping strictly follows diff handling and strictly precedes
// the next change collection.
type Phase int

const (
	PhaseReceiveEvents Phase = iota // drain transport, deliver event payloads
	PhaseReceiveDiff                // apply diffs / record acks
	PhaseSimulate                   // host simulation update
	PhaseCollect                    // per-connection change collection
	PhaseSendDiff                   // encode + send diffs (or the ack)
	PhaseSendEvents                 // flush event channel outboxes
)

// System is the interface every scheduled system implements. Hosts hook
// their simulation logic in by registering PhaseSimulate systems.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}

// SystemFunc adapts a function to the System interface.
type SystemFunc struct {
	P Phase
	F func(dt time.Duration)
}

func (s SystemFunc) Phase() Phase             { return s.P }
func (s SystemFunc) Update(dt time.Duration) { s.F(dt) }

// Runner executes systems in phase order each pass. Registration order is
// preserved within a phase.
type Runner struct {
	systems []System
	sorted  bool
}

func NewRunner() *Runner {
	return &Runner{systems: make([]System, 0, 16)}
}

func (r *Runner) Register(s System) {
	r.systems = append(r.systems, s)
	r.sorted = false
}

func (r *Runner) Tick(dt time.Duration) {
	r.ensureSorted()
	for _, s := range r.systems {
		s.Update(dt)
	}
}

func (r *Runner) ensureSorted() {
	if !r.sorted {
		sort.SliceStable(r.systems, func(i, j int) bool {
			return r.systems[i].Phase() < r.systems[j].Phase()
		})
		r.sorted = true
	}
}
