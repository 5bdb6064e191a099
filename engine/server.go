package engine

import (
	"time"

	"go.uber.org/zap"

	"github.com/tidesync/replica/event"
	"github.com/tidesync/replica/tick"
	"github.com/tidesync/replica/transport"
	"github.com/tidesync/replica/wire"
	"github.com/tidesync/replica/world"
)

// DiffRecorder persists encoded diffs for offline replay. Implemented by
// the journal package; optional.
type DiffRecorder interface {
	Record(t tick.Tick, payload []byte) error
}

// Options configures an endpoint.
type Options struct {
	// TickPolicy controls diff emission cadence. Zero value emits every pass.
	TickPolicy tick.Policy
	// Strictness selects malformed-record handling on decode.
	Strictness wire.Strictness
	// Recorder, when set on a server, receives the canonical diff of every
	// emitted tick.
	Recorder DiffRecorder
}

// tickStamper is implemented by worlds that stamp mutations with the
// replication tick (the reference store does). Custom worlds may manage
// their own stamping.
type tickStamper interface {
	SetTick(tick.Tick)
}

type journalPruner interface {
	Prune(tick.Tick)
}

// Conn bundles the per-connection replication state on the server: the
// peer's acknowledged tick cursor. Created on a transport connect
// notification, destroyed on disconnect.
type Conn struct {
	ID  transport.ConnID
	Ack AckTracker
}

// Server is the authoritative endpoint. Each scheduling pass it receives
// client events and acks, lets the host simulation run, collects a
// per-connection diff under the tick policy, and sends diffs and queued
// events. Single-goroutine: all state is owned by the pass.
type Server struct {
	log     *zap.Logger
	tr      transport.Transport
	world   world.World
	enc     *wire.Encoder
	events  *event.Registry
	clock   *tick.Clock
	tracker *ChangeTracker
	rec     DiffRecorder

	conns       map[transport.ConnID]*Conn
	pendingAcks []transport.Incoming
	pending     map[transport.ConnID]*wire.Diff
	emitted     bool
	lastEmitted tick.Tick

	stats  Stats
	runner *Runner
}

func NewServer(log *zap.Logger, tr transport.Transport, w world.World, registry *wire.Registry, events *event.Registry, opts Options) *Server {
	s := &Server{
		log:     log.Named("server"),
		tr:      tr,
		world:   w,
		enc:     wire.NewEncoder(registry),
		events:  events,
		clock:   tick.NewClock(opts.TickPolicy),
		tracker: NewChangeTracker(w),
		rec:     opts.Recorder,
		conns:   make(map[transport.ConnID]*Conn, 16),
		runner:  NewRunner(),
	}
	s.runner.Register(SystemFunc{P: PhaseReceiveEvents, F: s.receive})
	s.runner.Register(SystemFunc{P: PhaseReceiveDiff, F: s.recordAcks})
	s.runner.Register(SystemFunc{P: PhaseCollect, F: s.collect})
	s.runner.Register(SystemFunc{P: PhaseSendDiff, F: s.sendDiffs})
	s.runner.Register(SystemFunc{P: PhaseSendEvents, F: s.sendEvents})
	return s
}

// Runner exposes the scheduler so the host registers its simulation
// systems at PhaseSimulate.
func (s *Server) Runner() *Runner { return s.runner }

// Stats returns a snapshot of the diagnostics counters.
func (s *Server) Stats() Stats { return s.stats }

// Tick runs one scheduling pass.
func (s *Server) Tick(dt time.Duration) {
	if ts, ok := s.world.(tickStamper); ok {
		// Mutations this pass belong to the next emitted tick.
		ts.SetTick(s.clock.Current() + 1)
	}
	s.runner.Tick(dt)
}

// Connections returns the ids of currently tracked connections.
func (s *Server) Connections() []transport.ConnID {
	out := make([]transport.ConnID, 0, len(s.conns))
	for id := range s.conns {
		out = append(out, id)
	}
	return out
}

// receive drains the transport once per pass: lifecycle events tear down
// or create connection state, event payloads go to their channels, and
// replication-channel messages (acks) are stashed for the next phase so
// event reception never interleaves with ack bookkeeping.
func (s *Server) receive(time.Duration) {
	for _, ev := range s.tr.PollEvents() {
		switch ev.Kind {
		case transport.Connected:
			s.conns[ev.Conn] = &Conn{ID: ev.Conn}
			s.log.Info("client connected", zap.Uint64("conn", uint64(ev.Conn)))
		case transport.Disconnected:
			delete(s.conns, ev.Conn)
			s.log.Info("client disconnected", zap.Uint64("conn", uint64(ev.Conn)))
		}
	}

	for _, msg := range s.tr.PollReceived() {
		if _, ok := s.conns[msg.Conn]; !ok {
			continue // data for a torn-down connection
		}
		if msg.Channel == transport.ReplicationChannel {
			s.pendingAcks = append(s.pendingAcks, msg)
			continue
		}
		ch, ok := s.events.Lookup(msg.Channel)
		if !ok || ch.Direction() != event.ClientToServer {
			s.stats.MisroutedMsgs++
			s.log.Warn("message on unexpected channel",
				zap.Uint64("conn", uint64(msg.Conn)),
				zap.Uint8("channel", uint8(msg.Channel)))
			continue
		}
		ch.Deliver(msg.Payload)
	}
}

// recordAcks advances each connection's acked cursor from the stashed ack
// messages. Stale acks are expected under loss and only counted.
func (s *Server) recordAcks(time.Duration) {
	for _, msg := range s.pendingAcks {
		conn, ok := s.conns[msg.Conn]
		if !ok {
			continue
		}
		r := wire.NewReader(msg.Payload)
		t := tick.Tick(r.ReadU32())
		if r.Truncated() || r.Remaining() != 0 {
			s.stats.DecodeErrors++
			s.log.Warn("malformed ack", zap.Uint64("conn", uint64(msg.Conn)), zap.Int("len", len(msg.Payload)))
			continue
		}
		if !conn.Ack.Observe(t) {
			s.stats.StaleAcks++
		}
	}
	s.pendingAcks = s.pendingAcks[:0]
}

// collect advances the clock under the tick policy and, on emission,
// derives one diff per connection against that connection's baseline.
func (s *Server) collect(time.Duration) {
	current, emitted := s.clock.Advance()
	s.emitted = emitted
	if !emitted {
		return
	}

	s.pruneJournals(current)

	s.pending = make(map[transport.ConnID]*wire.Diff, len(s.conns))
	for id, conn := range s.conns {
		s.pending[id] = s.tracker.Collect(current, conn.Ack.Baseline())
	}
}

// pruneJournals trims despawn/removal history the slowest connection no
// longer needs. Connections that have not acked yet receive the full live
// world as spawns, so they hold nothing back.
func (s *Server) pruneJournals(current tick.Tick) {
	pruner, ok := s.world.(journalPruner)
	if !ok {
		return
	}
	upTo := current
	for _, conn := range s.conns {
		if conn.Ack.Acked() && tick.Newer(upTo, conn.Ack.Baseline()) {
			upTo = conn.Ack.Baseline()
		}
	}
	pruner.Prune(upTo)
}

// sendDiffs encodes and sends this tick's diff to every connection, and
// hands the canonical diff to the recorder. Empty diffs still travel: the
// tick alone advances the receiver's cursor.
func (s *Server) sendDiffs(time.Duration) {
	if !s.emitted {
		return
	}
	current := s.clock.Current()

	if s.rec != nil {
		canonical := s.tracker.Collect(current, s.lastEmitted)
		if payload, err := s.enc.Encode(canonical); err != nil {
			s.log.Error("encode journal diff", zap.Error(err))
		} else if err := s.rec.Record(current, payload); err != nil {
			s.log.Error("record diff", zap.Uint32("tick", uint32(current)), zap.Error(err))
		}
	}
	s.lastEmitted = current

	for id, diff := range s.pending {
		payload, err := s.enc.Encode(diff)
		if err != nil {
			// Unregistered component type; a registration bug, not a peer
			// problem. Skip the connection rather than crash the pass.
			s.log.Error("encode diff", zap.Uint64("conn", uint64(id)), zap.Error(err))
			continue
		}
		s.tr.Send(id, transport.ReplicationChannel, payload, transport.Unreliable)
	}
	s.pending = nil
}

// sendEvents flushes every server-to-client channel outbox.
func (s *Server) sendEvents(time.Duration) {
	s.events.Each(func(ch *event.Channel) {
		if ch.Direction() != event.ServerToClient {
			return
		}
		for _, out := range ch.FlushOutbox() {
			if out.Target != event.Broadcast {
				if _, ok := s.conns[out.Target]; !ok {
					continue // peer went away, best-effort drop
				}
				s.tr.Send(out.Target, ch.ID(), out.Payload, ch.Mode())
				continue
			}
			for id := range s.conns {
				s.tr.Send(id, ch.ID(), out.Payload, ch.Mode())
			}
		}
	})
}
