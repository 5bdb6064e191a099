package transport

import "sort"

// Network is an in-process loopback fabric joining one listening endpoint
// to any number of peers. It backs local-only mode and tests: delivery is
// immediate and lossless, so zero remote peers behaves identically to a
// zero-latency, zero-loss network.
//
// Scramble, when set, reverses the drain order of Unreliable and Unordered
// channel queues. Ordered channels always drain in send order, which is
// exactly the guarantee a real transport provides.
type Network struct {
	Scramble bool

	listen *MemoryEndpoint
	nextID ConnID
}

func NewNetwork() *Network {
	n := &Network{}
	n.listen = &MemoryEndpoint{net: n}
	return n
}

// Listen returns the endpoint owned by the accepting side.
func (n *Network) Listen() *MemoryEndpoint {
	return n.listen
}

// Connect establishes a new peer endpoint and notifies the listening side.
func (n *Network) Connect() *MemoryEndpoint {
	n.nextID++
	id := n.nextID
	peer := &MemoryEndpoint{net: n, remote: n.listen, id: id}
	peer.events = append(peer.events, ConnEvent{Conn: id, Kind: Connected})

	n.listen.peers = append(n.listen.peers, peer)
	n.listen.events = append(n.listen.events, ConnEvent{Conn: id, Kind: Connected})
	return peer
}

// Disconnect tears down a peer endpoint. In-flight data for it is dropped
// on both sides.
func (n *Network) Disconnect(peer *MemoryEndpoint) {
	if peer.remote == nil {
		return
	}
	kept := n.listen.peers[:0]
	for _, p := range n.listen.peers {
		if p != peer {
			kept = append(kept, p)
		}
	}
	n.listen.peers = kept
	n.listen.dropQueues(peer.id)
	n.listen.events = append(n.listen.events, ConnEvent{Conn: peer.id, Kind: Disconnected})

	peer.remote = nil
	peer.inbox = nil
	peer.events = append(peer.events, ConnEvent{Conn: peer.id, Kind: Disconnected})
}

type queueKey struct {
	conn ConnID
	ch   ChannelID
}

type queuedMessage struct {
	payload []byte
	mode    DeliveryMode
}

// MemoryEndpoint is one side of a loopback link. The listening endpoint
// sees every peer's ConnID; a peer endpoint sees the single connection to
// the listener under its own id.
type MemoryEndpoint struct {
	net    *Network
	remote *MemoryEndpoint // nil on the listening side and after disconnect
	id     ConnID          // peer side only
	peers  []*MemoryEndpoint

	inbox  map[queueKey][]queuedMessage
	events []ConnEvent
}

func (e *MemoryEndpoint) Send(conn ConnID, ch ChannelID, payload []byte, mode DeliveryMode) {
	var target *MemoryEndpoint
	if e.remote != nil {
		// Peer side: the only reachable connection is the listener.
		if conn != e.id {
			return
		}
		target = e.remote
	} else {
		for _, p := range e.peers {
			if p.id == conn {
				target = p
				break
			}
		}
	}
	if target == nil {
		return // torn down, best-effort drop
	}
	if target.inbox == nil {
		target.inbox = make(map[queueKey][]queuedMessage)
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	key := queueKey{conn: conn, ch: ch}
	target.inbox[key] = append(target.inbox[key], queuedMessage{
		payload: buf,
		mode:    mode,
	})
}

func (e *MemoryEndpoint) PollReceived() []Incoming {
	if len(e.inbox) == 0 {
		return nil
	}
	keys := make([]queueKey, 0, len(e.inbox))
	for k := range e.inbox {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].conn != keys[j].conn {
			return keys[i].conn < keys[j].conn
		}
		return keys[i].ch < keys[j].ch
	})

	var out []Incoming
	for _, k := range keys {
		queue := e.inbox[k]
		if e.net.Scramble && len(queue) > 1 && queue[0].mode != Ordered {
			for i, j := 0, len(queue)-1; i < j; i, j = i+1, j-1 {
				queue[i], queue[j] = queue[j], queue[i]
			}
		}
		for _, m := range queue {
			out = append(out, Incoming{Conn: k.conn, Channel: k.ch, Payload: m.payload})
		}
		delete(e.inbox, k)
	}
	return out
}

func (e *MemoryEndpoint) PollEvents() []ConnEvent {
	out := e.events
	e.events = nil
	return out
}

func (e *MemoryEndpoint) Connections() []ConnID {
	if e.remote != nil {
		return []ConnID{e.id}
	}
	out := make([]ConnID, 0, len(e.peers))
	for _, p := range e.peers {
		out = append(out, p.id)
	}
	return out
}

func (e *MemoryEndpoint) dropQueues(conn ConnID) {
	for k := range e.inbox {
		if k.conn == conn {
			delete(e.inbox, k)
		}
	}
}

var _ Transport = (*MemoryEndpoint)(nil)
