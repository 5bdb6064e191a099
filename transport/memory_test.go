package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNetwork_ConnectLifecycle(t *testing.T) {
	net := NewNetwork()
	listen := net.Listen()

	peer := net.Connect()

	events := listen.PollEvents()
	require.Len(t, events, 1)
	assert.Equal(t, Connected, events[0].Kind)
	id := events[0].Conn

	assert.Equal(t, []ConnID{id}, listen.Connections())
	assert.Equal(t, []ConnID{id}, peer.Connections())

	peerEvents := peer.PollEvents()
	require.Len(t, peerEvents, 1)
	assert.Equal(t, Connected, peerEvents[0].Kind)

	net.Disconnect(peer)
	events = listen.PollEvents()
	require.Len(t, events, 1)
	assert.Equal(t, Disconnected, events[0].Kind)
	assert.Empty(t, listen.Connections())
}

func TestNetwork_RoundTripBothDirections(t *testing.T) {
	net := NewNetwork()
	listen := net.Listen()
	peer := net.Connect()
	id := peer.Connections()[0]

	listen.Send(id, 1, []byte("down"), Ordered)
	got := peer.PollReceived()
	require.Len(t, got, 1)
	assert.Equal(t, ChannelID(1), got[0].Channel)
	assert.Equal(t, []byte("down"), got[0].Payload)

	peer.Send(id, 2, []byte("up"), Unreliable)
	got = listen.PollReceived()
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].Conn)
	assert.Equal(t, []byte("up"), got[0].Payload)

	// Drained queues stay drained.
	assert.Empty(t, peer.PollReceived())
	assert.Empty(t, listen.PollReceived())
}

func TestNetwork_ScrambleRespectsOrderedChannels(t *testing.T) {
	net := NewNetwork()
	net.Scramble = true
	listen := net.Listen()
	peer := net.Connect()
	id := peer.Connections()[0]

	for i := byte(0); i < 4; i++ {
		peer.Send(id, 1, []byte{i}, Ordered)
		peer.Send(id, 2, []byte{i}, Unordered)
	}

	var ordered, unordered []byte
	for _, msg := range listen.PollReceived() {
		switch msg.Channel {
		case 1:
			ordered = append(ordered, msg.Payload[0])
		case 2:
			unordered = append(unordered, msg.Payload[0])
		}
	}
	assert.Equal(t, []byte{0, 1, 2, 3}, ordered, "ordered channel keeps send order")
	assert.Equal(t, []byte{3, 2, 1, 0}, unordered, "unordered channel is reordered")
}

func TestNetwork_DisconnectDropsInFlight(t *testing.T) {
	net := NewNetwork()
	listen := net.Listen()
	peer := net.Connect()
	id := peer.Connections()[0]

	peer.Send(id, 1, []byte("lost"), Ordered)
	net.Disconnect(peer)

	assert.Empty(t, listen.PollReceived())

	// Sends after teardown are silent drops.
	peer.Send(id, 1, []byte("void"), Ordered)
	listen.Send(id, 1, []byte("void"), Ordered)
	assert.Empty(t, peer.PollReceived())
}
