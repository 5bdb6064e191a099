package event

import (
	"github.com/tidesync/replica/transport"
	"github.com/tidesync/replica/wire"
)

// Direction fixes which side originates messages on a channel.
type Direction int

const (
	ClientToServer Direction = iota
	ServerToClient
)

func (d Direction) String() string {
	if d == ClientToServer {
		return "client-to-server"
	}
	return "server-to-client"
}

// Broadcast as the target of SendTo addresses every connection.
const Broadcast transport.ConnID = 0

// Outgoing is one queued send awaiting the send phase.
type Outgoing struct {
	Target  transport.ConnID // Broadcast or a specific connection
	Payload []byte
}

// Channel is one directional message pipe. Send enqueues for the next send
// phase; Drain returns everything arrived since the last drain. Ordering of
// drained messages is the transport's channel guarantee: send order on
// ordered channels, arrival order otherwise.
type Channel struct {
	id    transport.ChannelID
	dir   Direction
	mode  transport.DeliveryMode
	codec *VariantCodec

	outbox []Outgoing
	inbox  [][]byte
}

func (c *Channel) ID() transport.ChannelID      { return c.id }
func (c *Channel) Direction() Direction         { return c.dir }
func (c *Channel) Mode() transport.DeliveryMode { return c.mode }

// Send encodes a value and queues it for every peer.
func (c *Channel) Send(value any) error {
	return c.SendTo(Broadcast, value)
}

// SendTo encodes a value and queues it for one connection. Only meaningful
// on the originating side of a server-to-client channel; the client side
// has a single peer and uses Send.
func (c *Channel) SendTo(target transport.ConnID, value any) error {
	w := wire.NewWriter()
	if err := c.codec.Encode(w, value); err != nil {
		return err
	}
	c.outbox = append(c.outbox, Outgoing{Target: target, Payload: w.Bytes()})
	return nil
}

// Drain decodes all received payloads since the last drain. Undecodable
// messages are dropped and returned as errors alongside the good ones; a
// bad message never aborts the channel.
func (c *Channel) Drain() ([]any, []error) {
	if len(c.inbox) == 0 {
		return nil, nil
	}
	values := make([]any, 0, len(c.inbox))
	var errs []error
	for _, payload := range c.inbox {
		v, err := c.codec.Decode(wire.NewReader(payload))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		values = append(values, v)
	}
	c.inbox = c.inbox[:0]
	return values, errs
}

// Deliver hands a raw received payload to the channel. Called by the
// engine's receive phase.
func (c *Channel) Deliver(payload []byte) {
	c.inbox = append(c.inbox, payload)
}

// FlushOutbox drains queued sends. Called by the engine's send phase.
func (c *Channel) FlushOutbox() []Outgoing {
	out := c.outbox
	c.outbox = nil
	return out
}

// Registry holds all registered channels. Registration happens once at
// startup on both sides with agreed ids.
type Registry struct {
	channels map[transport.ChannelID]*Channel
}

func NewRegistry() *Registry {
	return &Registry{channels: make(map[transport.ChannelID]*Channel, 8)}
}

// Register creates a channel. Channel 0 is reserved for replication; a
// duplicate id is a ConfigError.
func (r *Registry) Register(id transport.ChannelID, dir Direction, mode transport.DeliveryMode, codec *VariantCodec) (*Channel, error) {
	if id == transport.ReplicationChannel {
		return nil, wire.ConfigErrorf("channel %d is reserved for replication", id)
	}
	if _, ok := r.channels[id]; ok {
		return nil, wire.ConfigErrorf("channel %d already registered", id)
	}
	c := &Channel{id: id, dir: dir, mode: mode, codec: codec}
	r.channels[id] = c
	return c, nil
}

// Lookup returns a registered channel.
func (r *Registry) Lookup(id transport.ChannelID) (*Channel, bool) {
	c, ok := r.channels[id]
	return c, ok
}

// Each visits every channel.
func (r *Registry) Each(fn func(*Channel)) {
	for _, c := range r.channels {
		fn(c)
	}
}
