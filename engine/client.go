package engine

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/tidesync/replica/event"
	"github.com/tidesync/replica/mapping"
	"github.com/tidesync/replica/tick"
	"github.com/tidesync/replica/transport"
	"github.com/tidesync/replica/wire"
	"github.com/tidesync/replica/world"
)

// Client is the replica endpoint. Each scheduling pass it receives server
// events and diffs, applies accepted diffs through the entity mapper in
// strict tick order, acknowledges the applied tick, and flushes queued
// client events.
type Client struct {
	log    *zap.Logger
	tr     transport.Transport
	world  world.World
	dec    *wire.Decoder
	events *event.Registry
	mapper *mapping.Mapper

	connID       transport.ConnID
	ack          AckTracker
	pendingDiffs [][]byte

	stats  Stats
	runner *Runner
}

func NewClient(log *zap.Logger, tr transport.Transport, w world.World, registry *wire.Registry, events *event.Registry, opts Options) *Client {
	c := &Client{
		log:    log.Named("client"),
		tr:     tr,
		world:  w,
		dec:    wire.NewDecoder(registry, opts.Strictness),
		events: events,
		mapper: mapping.NewMapper(),
		runner: NewRunner(),
	}
	if conns := tr.Connections(); len(conns) == 1 {
		c.connID = conns[0]
	}
	c.runner.Register(SystemFunc{P: PhaseReceiveEvents, F: c.receive})
	c.runner.Register(SystemFunc{P: PhaseReceiveDiff, F: c.applyDiffs})
	c.runner.Register(SystemFunc{P: PhaseSendDiff, F: c.sendAck})
	c.runner.Register(SystemFunc{P: PhaseSendEvents, F: c.sendEvents})
	return c
}

// Runner exposes the scheduler so the host registers its simulation
// systems at PhaseSimulate.
func (c *Client) Runner() *Runner { return c.runner }

// Stats returns a snapshot of the diagnostics counters.
func (c *Client) Stats() Stats { return c.stats }

// Mapper exposes the authoritative-to-replica identity table, read-only
// use expected.
func (c *Client) Mapper() *mapping.Mapper { return c.mapper }

// AppliedTick returns the last tick fully applied.
func (c *Client) AppliedTick() tick.Tick { return c.ack.Baseline() }

// Tick runs one scheduling pass.
func (c *Client) Tick(dt time.Duration) {
	c.runner.Tick(dt)
}

func (c *Client) receive(time.Duration) {
	for _, ev := range c.tr.PollEvents() {
		switch ev.Kind {
		case transport.Connected:
			c.connID = ev.Conn
			c.log.Info("connected", zap.Uint64("conn", uint64(ev.Conn)))
		case transport.Disconnected:
			// Mapping entries are released; replica entities stay until the
			// host decides otherwise.
			c.mapper = mapping.NewMapper()
			c.ack = AckTracker{}
			c.pendingDiffs = nil
			c.log.Info("disconnected", zap.Uint64("conn", uint64(ev.Conn)))
		}
	}

	for _, msg := range c.tr.PollReceived() {
		if msg.Channel == transport.ReplicationChannel {
			c.pendingDiffs = append(c.pendingDiffs, msg.Payload)
			continue
		}
		ch, ok := c.events.Lookup(msg.Channel)
		if !ok || ch.Direction() != event.ServerToClient {
			c.stats.MisroutedMsgs++
			c.log.Warn("message on unexpected channel", zap.Uint8("channel", uint8(msg.Channel)))
			continue
		}
		ch.Deliver(msg.Payload)
	}
}

// applyDiffs decodes and applies stashed diffs in arrival order. A diff
// not newer than the applied cursor is discarded; acceptance, application,
// and cursor advance are one step, so re-delivery of an applied tick can
// never double-apply.
func (c *Client) applyDiffs(time.Duration) {
	for _, payload := range c.pendingDiffs {
		diff, dropped, err := c.dec.Decode(payload)
		if err != nil {
			c.stats.DecodeErrors++
			c.log.Warn("diff rejected", zap.Error(err))
			continue
		}
		for _, rerr := range dropped {
			c.stats.DroppedRecords++
			c.log.Warn("diff record dropped", zap.Error(rerr))
		}
		if !c.ack.Accepts(diff.Tick) {
			c.stats.StaleDiffs++
			continue
		}
		c.apply(diff)
		c.ack.Observe(diff.Tick)
		if ts, ok := c.world.(tickStamper); ok {
			ts.SetTick(diff.Tick)
		}
	}
	c.pendingDiffs = c.pendingDiffs[:0]
}

// apply walks one accepted diff: spawns, then updates, then removals, then
// despawns. Mapper insertion is atomic with spawn application and removal
// with despawn application. A record referencing an unmapped entity is an
// ordering violation: reported and dropped, never fatal.
func (c *Client) apply(diff *wire.Diff) {
	for _, sp := range diff.Spawns {
		if c.mapper.Has(sp.Entity) {
			// Baseline raced the ack: the server resent a spawn the replica
			// already applied. Treat the components as updates.
			replica, _ := c.mapper.Get(sp.Entity)
			for _, comp := range sp.Components {
				if err := c.world.ApplyUpdate(replica, comp); err != nil {
					c.dropRecord("respawn update", sp.Entity, err)
				}
			}
			continue
		}
		replica, err := c.world.ApplySpawn(sp.Components)
		if err != nil {
			c.dropRecord("spawn", sp.Entity, err)
			continue
		}
		c.mapper.Insert(sp.Entity, replica)
	}

	for _, up := range diff.Updates {
		replica, err := c.mapper.Get(up.Entity)
		if err != nil {
			c.mappingError("update", err)
			continue
		}
		if err := c.world.ApplyUpdate(replica, world.ComponentValue{Type: up.Type, Value: up.Value}); err != nil {
			c.dropRecord("update", up.Entity, err)
		}
	}

	for _, rm := range diff.Removals {
		replica, err := c.mapper.Get(rm.Entity)
		if err != nil {
			c.mappingError("removal", err)
			continue
		}
		if err := c.world.ApplyRemoval(replica, rm.Type); err != nil {
			c.dropRecord("removal", rm.Entity, err)
		}
	}

	for _, en := range diff.Despawns {
		if !c.mapper.Has(en) {
			// Spawned and despawned entirely between this connection's
			// baselines; the replica never saw it.
			continue
		}
		replica, err := c.mapper.Remove(en)
		if err != nil {
			c.mappingError("despawn", err)
			continue
		}
		if err := c.world.ApplyDespawn(replica); err != nil {
			c.dropRecord("despawn", en, err)
		}
	}
}

func (c *Client) mappingError(kind string, err error) {
	var merr *mapping.MappingError
	if errors.As(err, &merr) {
		c.stats.MappingErrors++
	}
	c.log.Warn("protocol ordering violation", zap.String("record", kind), zap.Error(err))
}

func (c *Client) dropRecord(kind string, e world.Entity, err error) {
	c.stats.DroppedRecords++
	c.log.Warn("record dropped", zap.String("record", kind), zap.Stringer("entity", e), zap.Error(err))
}

// sendAck reports the applied cursor back to the server once per pass.
// Unreliable is fine: the next pass repeats it, and the server ignores
// anything stale.
func (c *Client) sendAck(time.Duration) {
	if !c.ack.Acked() {
		return
	}
	w := wire.NewWriter()
	w.WriteU32(uint32(c.ack.Baseline()))
	c.tr.Send(c.connID, transport.ReplicationChannel, w.Bytes(), transport.Unreliable)
}

func (c *Client) sendEvents(time.Duration) {
	c.events.Each(func(ch *event.Channel) {
		if ch.Direction() != event.ClientToServer {
			return
		}
		for _, out := range ch.FlushOutbox() {
			c.tr.Send(c.connID, ch.ID(), out.Payload, ch.Mode())
		}
	})
}
