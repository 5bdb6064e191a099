package ws

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tidesync/replica/config"
	"github.com/tidesync/replica/transport"
)

// Server accepts WebSocket connections and exposes them as one listening
// transport endpoint. New and dead sessions cross from the network
// goroutines to the scheduling pass over channels; the sessions map is
// touched only inside PollEvents, so the engine pass owns all state.
type Server struct {
	upgrader websocket.Upgrader
	cfg      config.NetworkConfig

	nextID   atomic.Uint64
	newCh    chan *session
	deadCh   chan transport.ConnID
	sessions map[transport.ConnID]*session

	log *zap.Logger
}

func NewServer(cfg config.NetworkConfig, log *zap.Logger) *Server {
	return &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		cfg:      cfg,
		newCh:    make(chan *session, 64),
		deadCh:   make(chan transport.ConnID, 64),
		sessions: make(map[transport.ConnID]*session, 64),
		log:      log.Named("ws"),
	}
}

// ServeHTTP upgrades an incoming request and starts the session loops.
// Mount it on the host's mux and run http.ListenAndServe alongside the
// scheduling pass.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("upgrade failed", zap.Error(err))
		return
	}
	conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	})

	id := transport.ConnID(s.nextID.Add(1))
	sess := newSession(conn, id, s.cfg.InQueueSize, s.cfg.OutQueueSize, s.cfg.WriteTimeout, s.cfg.ReadTimeout, func(dead transport.ConnID) {
		select {
		case s.deadCh <- dead:
		default:
		}
	}, s.log)
	sess.start()

	s.log.Info("peer connected", zap.Uint64("conn", uint64(id)), zap.String("addr", conn.RemoteAddr().String()))

	select {
	case s.newCh <- sess:
	default:
		s.log.Warn("accept queue full, rejecting connection")
		sess.close()
	}
}

func (s *Server) Send(conn transport.ConnID, ch transport.ChannelID, payload []byte, _ transport.DeliveryMode) {
	sess, ok := s.sessions[conn]
	if !ok {
		return
	}
	sess.send(frameMessage(ch, payload))
}

func (s *Server) PollReceived() []transport.Incoming {
	var out []transport.Incoming
	for _, sess := range s.sessions {
		out = sess.drain(out)
	}
	return out
}

func (s *Server) PollEvents() []transport.ConnEvent {
	var out []transport.ConnEvent
	for {
		select {
		case sess := <-s.newCh:
			s.sessions[sess.id] = sess
			out = append(out, transport.ConnEvent{Conn: sess.id, Kind: transport.Connected})
		case dead := <-s.deadCh:
			if _, ok := s.sessions[dead]; ok {
				delete(s.sessions, dead)
				out = append(out, transport.ConnEvent{Conn: dead, Kind: transport.Disconnected})
			}
		default:
			return out
		}
	}
}

func (s *Server) Connections() []transport.ConnID {
	out := make([]transport.ConnID, 0, len(s.sessions))
	for id := range s.sessions {
		out = append(out, id)
	}
	return out
}

// Shutdown closes every live session.
func (s *Server) Shutdown() {
	for _, sess := range s.sessions {
		sess.close()
	}
}

var _ transport.Transport = (*Server)(nil)
