package ws

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tidesync/replica/config"
	"github.com/tidesync/replica/transport"
)

func testConfig(readTimeout time.Duration) config.NetworkConfig {
	return config.NetworkConfig{
		InQueueSize:  32,
		OutQueueSize: 32,
		WriteTimeout: time.Second,
		ReadTimeout:  readTimeout,
	}
}

// startPair serves a ws endpoint, dials it, and waits for the server to
// observe the connection.
func startPair(t *testing.T, cfg config.NetworkConfig) (*Server, *Client, transport.ConnID) {
	t.Helper()
	srv := NewServer(cfg, zap.NewNop())
	hs := httptest.NewServer(srv)
	t.Cleanup(hs.Close)
	t.Cleanup(srv.Shutdown)

	cli, err := Dial("ws"+strings.TrimPrefix(hs.URL, "http"), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(cli.Close)

	ev, ok := waitEvent(t, srv, transport.Connected, time.Second)
	require.True(t, ok, "server never observed the connection")
	return srv, cli, ev.Conn
}

// waitEvent polls for the next lifecycle event of the given kind.
func waitEvent(t *testing.T, tr transport.Transport, kind transport.ConnEventKind, timeout time.Duration) (transport.ConnEvent, bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for _, ev := range tr.PollEvents() {
			if ev.Kind == kind {
				return ev, true
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	return transport.ConnEvent{}, false
}

// waitReceived polls until at least one message arrives.
func waitReceived(t *testing.T, tr transport.Transport, timeout time.Duration) []transport.Incoming {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if got := tr.PollReceived(); len(got) > 0 {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
	return nil
}

func TestWS_RoundTripBothDirections(t *testing.T) {
	srv, cli, id := startPair(t, testConfig(5*time.Second))

	cli.Send(id, 2, []byte("up"), transport.Ordered)
	got := waitReceived(t, srv, time.Second)
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].Conn)
	assert.Equal(t, transport.ChannelID(2), got[0].Channel)
	assert.Equal(t, []byte("up"), got[0].Payload)

	srv.Send(id, 3, []byte("down"), transport.Unreliable)
	got = waitReceived(t, cli, time.Second)
	require.Len(t, got, 1)
	assert.Equal(t, transport.ChannelID(3), got[0].Channel)
	assert.Equal(t, []byte("down"), got[0].Payload)
}

func TestWS_ConnectionSurvivesReadTimeout(t *testing.T) {
	const readTimeout = 400 * time.Millisecond
	srv, cli, id := startPair(t, testConfig(readTimeout))

	// Sit idle for several read-deadline windows. Keepalive pings must
	// hold both directions open with no application traffic at all.
	deadline := time.Now().Add(3 * readTimeout)
	for time.Now().Before(deadline) {
		for _, ev := range srv.PollEvents() {
			require.NotEqual(t, transport.Disconnected, ev.Kind, "server dropped an idle but healthy connection")
		}
		for _, ev := range cli.PollEvents() {
			require.NotEqual(t, transport.Disconnected, ev.Kind, "client lost an idle but healthy connection")
		}
		time.Sleep(25 * time.Millisecond)
	}

	// Still live in both directions.
	cli.Send(id, 1, []byte("ack"), transport.Unreliable)
	require.Len(t, waitReceived(t, srv, time.Second), 1)
	srv.Send(id, 1, []byte("diff"), transport.Unreliable)
	require.Len(t, waitReceived(t, cli, time.Second), 1)
}

func TestWS_CloseTearsDownPeer(t *testing.T) {
	srv, cli, _ := startPair(t, testConfig(5*time.Second))

	cli.Close()
	_, ok := waitEvent(t, srv, transport.Disconnected, time.Second)
	assert.True(t, ok, "server never observed the teardown")

	_, ok = waitEvent(t, cli, transport.Disconnected, time.Second)
	assert.True(t, ok)
	assert.Empty(t, cli.Connections())
}
