package ws

import (
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tidesync/replica/config"
	"github.com/tidesync/replica/transport"
)

// localConn is the id a client endpoint uses for its single connection.
const localConn transport.ConnID = 1

// Client is the dialing side of the WebSocket transport: one connection,
// seen under a fixed local id.
type Client struct {
	sess      *session
	deadCh    chan transport.ConnID
	connected bool // Connected event pending
	closed    bool

	log *zap.Logger
}

// Dial connects to a ws:// or wss:// URL.
func Dial(url string, cfg config.NetworkConfig, log *zap.Logger) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	})

	c := &Client{
		deadCh:    make(chan transport.ConnID, 1),
		connected: true,
		log:       log.Named("ws"),
	}
	c.sess = newSession(conn, localConn, cfg.InQueueSize, cfg.OutQueueSize, cfg.WriteTimeout, cfg.ReadTimeout, func(dead transport.ConnID) {
		select {
		case c.deadCh <- dead:
		default:
		}
	}, c.log)
	c.sess.start()
	return c, nil
}

func (c *Client) Send(conn transport.ConnID, ch transport.ChannelID, payload []byte, _ transport.DeliveryMode) {
	if conn != localConn || c.closed {
		return
	}
	c.sess.send(frameMessage(ch, payload))
}

func (c *Client) PollReceived() []transport.Incoming {
	if c.closed {
		return nil
	}
	return c.sess.drain(nil)
}

func (c *Client) PollEvents() []transport.ConnEvent {
	var out []transport.ConnEvent
	if c.connected {
		c.connected = false
		out = append(out, transport.ConnEvent{Conn: localConn, Kind: transport.Connected})
	}
	select {
	case <-c.deadCh:
		if !c.closed {
			c.closed = true
			out = append(out, transport.ConnEvent{Conn: localConn, Kind: transport.Disconnected})
		}
	default:
	}
	return out
}

func (c *Client) Connections() []transport.ConnID {
	if c.closed {
		return nil
	}
	return []transport.ConnID{localConn}
}

// Close tears the connection down.
func (c *Client) Close() {
	c.sess.close()
}

var _ transport.Transport = (*Client)(nil)
