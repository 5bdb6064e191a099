// Package transport defines the packetized transport boundary the
// replication engine drives, plus an in-process loopback implementation.
// A transport owns connection lifecycle, framing, and channel delivery
// semantics; the engine only enqueues and drains at phase boundaries and
// never blocks on network I/O.
package transport

// ConnID identifies one peer connection within a transport.
type ConnID uint64

// ChannelID identifies one logical channel on a connection.
type ChannelID uint8

// ReplicationChannel carries world diffs one way and tick acks the other.
// Event channels are allocated above it.
const ReplicationChannel ChannelID = 0

// DeliveryMode is the delivery guarantee requested for a channel.
type DeliveryMode int

const (
	// Unreliable: no delivery or ordering guarantee.
	Unreliable DeliveryMode = iota
	// Unordered: delivered eventually, arrival order arbitrary.
	Unordered
	// Ordered: delivered eventually in send order.
	Ordered
)

func (m DeliveryMode) String() string {
	switch m {
	case Unreliable:
		return "unreliable"
	case Unordered:
		return "unordered"
	case Ordered:
		return "ordered"
	default:
		return "invalid"
	}
}

// Incoming is one received message.
type Incoming struct {
	Conn    ConnID
	Channel ChannelID
	Payload []byte
}

// ConnEventKind distinguishes connect from disconnect notifications.
type ConnEventKind int

const (
	Connected ConnEventKind = iota
	Disconnected
)

// ConnEvent is a connection lifecycle notification.
type ConnEvent struct {
	Conn ConnID
	Kind ConnEventKind
}

// Transport is the boundary the engine talks through. Send and the Poll
// methods are synchronous and non-blocking; implementations may run
// background goroutines internally but must confine delivery to Poll
// drains. Data queued for a connection that disconnects is discarded.
type Transport interface {
	// Send enqueues one message. Best effort: an unknown or torn-down
	// connection is a silent drop.
	Send(conn ConnID, ch ChannelID, payload []byte, mode DeliveryMode)

	// PollReceived drains all messages arrived since the last drain.
	PollReceived() []Incoming

	// PollEvents drains connect/disconnect notifications since the last
	// drain. A Connected event for a conn precedes any of its messages.
	PollEvents() []ConnEvent

	// Connections lists currently established connections.
	Connections() []ConnID
}
