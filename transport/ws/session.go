// Package ws adapts a WebSocket connection to the transport boundary.
// WebSocket rides on TCP, so every channel is effectively reliable and
// ordered; the requested delivery mode is accepted and subsumed by the
// stronger guarantee. Wire shape per message: [channel:u8][payload].
package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tidesync/replica/transport"
)

// session owns one WebSocket connection. Network I/O runs in dedicated
// goroutines; the engine only drains the queues at phase boundaries.
type session struct {
	id   transport.ConnID
	conn *websocket.Conn

	in  chan []byte // readLoop -> engine
	out chan []byte // engine -> writeLoop

	writeTimeout time.Duration
	pingInterval time.Duration

	closeCh   chan struct{}
	closeOnce sync.Once
	onClose   func(transport.ConnID)

	log *zap.Logger
}

func newSession(conn *websocket.Conn, id transport.ConnID, inSize, outSize int, writeTimeout, readTimeout time.Duration, onClose func(transport.ConnID), log *zap.Logger) *session {
	return &session{
		id:           id,
		conn:         conn,
		in:           make(chan []byte, inSize),
		out:          make(chan []byte, outSize),
		writeTimeout: writeTimeout,
		pingInterval: pingPeriod(readTimeout),
		closeCh:      make(chan struct{}),
		onClose:      onClose,
		log:          log.With(zap.Uint64("conn", uint64(id))),
	}
}

// pingPeriod keeps pings comfortably inside the peer's read deadline so
// an idle but healthy connection is never torn down.
func pingPeriod(readTimeout time.Duration) time.Duration {
	if readTimeout <= 0 {
		return 30 * time.Second
	}
	return readTimeout * 9 / 10
}

func (s *session) start() {
	go s.readLoop()
	go s.writeLoop()
}

// send queues one framed message. Non-blocking: a full queue disconnects
// the slow peer rather than stall the scheduling pass.
func (s *session) send(frame []byte) {
	select {
	case s.out <- frame:
	case <-s.closeCh:
	default:
		s.log.Warn("output queue full, dropping slow connection")
		s.close()
	}
}

// drain moves everything received since the last call into out.
func (s *session) drain(out []transport.Incoming) []transport.Incoming {
	for {
		select {
		case frame := <-s.in:
			if len(frame) == 0 {
				continue
			}
			out = append(out, transport.Incoming{
				Conn:    s.id,
				Channel: transport.ChannelID(frame[0]),
				Payload: frame[1:],
			})
		default:
			return out
		}
	}
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.closeCh)
		s.conn.Close()
		if s.onClose != nil {
			s.onClose(s.id)
		}
	})
}

func (s *session) readLoop() {
	defer s.close()
	for {
		kind, payload, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		select {
		case s.in <- payload:
		case <-s.closeCh:
			return
		}
	}
}

func (s *session) writeLoop() {
	defer s.close()
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case frame := <-s.out:
			s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := s.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			// The peer's pong handler pushes its read deadline forward.
			s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.closeCh:
			return
		}
	}
}

func frameMessage(ch transport.ChannelID, payload []byte) []byte {
	frame := make([]byte, 1+len(payload))
	frame[0] = byte(ch)
	copy(frame[1:], payload)
	return frame
}
