// Package relay implements the rendezvous server: it hosts the room
// registry, pairs clients into sessions, and forwards control frames and
// audio datagrams between session halves that cannot reach each other
// directly.
package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/matthannam-fart/office-hours/internal/config"
	"github.com/matthannam-fart/office-hours/internal/metrics"
	"github.com/matthannam-fart/office-hours/internal/protocol"
	"github.com/matthannam-fart/office-hours/internal/rooms"
)

const writeWait = 10 * time.Second

// Server is the multi-tenant relay process. Sessions are independent: a
// misbehaving connection only ever takes down its own session.
type Server struct {
	cfg      *config.Relay
	log      zerolog.Logger
	metrics  *metrics.Collector
	registry *rooms.Registry
	presence *presenceRegistry
	udp      *udpForwarder

	ln       net.Listener
	httpSrv  *http.Server
	httpLn   net.Listener
	streamID atomic.Uint32

	closed chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// New builds a relay server. Nothing is bound until Start.
func New(cfg *config.Relay, log zerolog.Logger, collector *metrics.Collector) *Server {
	s := &Server{
		cfg:      cfg,
		log:      log.With().Str("component", "relay").Logger(),
		metrics:  collector,
		registry: rooms.NewRegistry(),
		closed:   make(chan struct{}),
	}
	s.presence = newPresenceRegistry(s)
	return s
}

// Start binds the control listener (TCP), the audio socket (UDP, same port)
// and the HTTP sidecar, then begins accepting. A bind failure is fatal;
// nothing else is.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.BindAddr())
	if err != nil {
		return fmt.Errorf("bind control listener: %w", err)
	}
	s.ln = ln

	udpAddr := &net.UDPAddr{
		IP:   net.ParseIP(s.cfg.Bind.Address),
		Port: ln.Addr().(*net.TCPAddr).Port,
	}
	udpConn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		ln.Close()
		return fmt.Errorf("bind audio socket: %w", err)
	}
	s.udp = newUDPForwarder(udpConn, s.log, s.metrics)

	httpLn, err := net.Listen("tcp", s.cfg.HTTP.Address)
	if err != nil {
		ln.Close()
		udpConn.Close()
		return fmt.Errorf("bind http listener: %w", err)
	}
	s.httpLn = httpLn
	s.httpSrv = &http.Server{
		Handler:      s.httpHandler(),
		ReadTimeout:  s.cfg.HTTP.ReadTimeout,
		WriteTimeout: s.cfg.HTTP.WriteTimeout,
	}

	s.wg.Add(3)
	go func() {
		defer s.wg.Done()
		s.udp.loop()
	}()
	go func() {
		defer s.wg.Done()
		if err := s.httpSrv.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("http server stopped")
		}
	}()
	go func() {
		defer s.wg.Done()
		s.sweepLoop()
	}()
	go s.acceptLoop()

	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str("http", httpLn.Addr().String()).
		Msg("relay listening")
	return nil
}

// Run starts the server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	return s.Close()
}

// Close stops accepting and releases every live connection.
func (s *Server) Close() error {
	s.once.Do(func() {
		close(s.closed)
		s.ln.Close()
		s.udp.close()

		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.log.Error().Err(err).Msg("http shutdown")
		}
	})
	s.wg.Wait()
	return nil
}

// ControlAddr is the bound control address, available after Start. Tests
// bind port 0 and dial this.
func (s *Server) ControlAddr() net.Addr { return s.ln.Addr() }

// HTTPAddr is the bound HTTP sidecar address, available after Start.
func (s *Server) HTTPAddr() net.Addr { return s.httpLn.Addr() }

func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
				s.log.Warn().Err(err).Msg("accept failed")
				continue
			}
		}
		go s.handleControl(newTCPConn(conn))
	}
}

// handleControl owns one control connection from first frame to close. The
// same loop serves the room handshake, the waiting state, and the paired
// session: once a session appears on the peer, frames are forwarded
// instead of interpreted.
func (s *Server) handleControl(cc controlConn) {
	p := &peer{conn: cc}
	log := s.log.With().Str("remote", cc.RemoteAddr()).Logger()
	log.Debug().Msg("control connection opened")

	var roomCode string
	defer func() {
		cc.Close()
		if sess := p.sess.Load(); sess != nil {
			sess.teardown("connection closed")
		} else if roomCode != "" {
			s.registry.Remove(roomCode)
			s.metrics.RoomClosed()
		}
		log.Debug().Msg("control connection closed")
	}()

	for {
		cc.SetReadDeadline(time.Now().Add(s.cfg.PeerDeadline()))
		msg, raw, err := cc.ReadMessage()
		if err != nil {
			if errors.Is(err, protocol.ErrProtocol) {
				s.metrics.ProtocolError()
				log.Warn().Err(err).Msg("dropping connection after malformed frame")
			}
			return
		}

		if sess := p.sess.Load(); sess != nil {
			if err := sess.forward(p, msg, raw); err != nil {
				return
			}
			if msg.Type == protocol.TypeDisconnect {
				return
			}
			continue
		}

		switch msg.Type {
		case protocol.TypeCreateRoom:
			if roomCode != "" {
				// Duplicate create: repeat the standing assignment so
				// the client is not left waiting for a reply.
				reply, _ := protocol.NewMessage(protocol.TypeRoomCreated, protocol.RoomCreatedPayload{Code: roomCode})
				if err := cc.WriteMessage(reply); err != nil {
					return
				}
				continue
			}
			room, err := s.registry.Create(p)
			if err != nil {
				log.Error().Err(err).Msg("room creation failed")
				s.writeError(cc, protocol.TypeError, "could not create room")
				return
			}
			roomCode = room.Code
			s.metrics.RoomCreated()
			log.Info().Str("room", room.Code).Msg("room created")
			reply, _ := protocol.NewMessage(protocol.TypeRoomCreated, protocol.RoomCreatedPayload{Code: room.Code})
			if err := cc.WriteMessage(reply); err != nil {
				return
			}

		case protocol.TypeJoinRoom:
			var join protocol.JoinRoomPayload
			if err := msg.DecodePayload(&join); err != nil {
				s.metrics.ProtocolError()
				return
			}
			code, idx, err := s.join(p, join.Code, log)
			if err != nil {
				// Lookup failures keep the connection open so the
				// client can retry with another code.
				continue
			}
			roomCode = code
			if idx == 1 {
				// Promotion happened inside join; the session owns
				// the code now and releases it at teardown.
				roomCode = ""
			}

		case protocol.TypeRegister:
			var reg protocol.RegisterPayload
			if err := msg.DecodePayload(&reg); err != nil {
				s.metrics.ProtocolError()
				return
			}
			// The presence handler owns the connection from here on.
			s.presence.handle(cc, reg)
			return

		case protocol.TypeUDPRegister:
			var reg protocol.UDPRegisterPayload
			if err := msg.DecodePayload(&reg); err == nil {
				s.udp.declare(p, reg.Port)
			}

		case protocol.TypePing:
			pong, _ := protocol.NewMessage(protocol.TypePong, nil)
			if err := cc.WriteMessage(pong); err != nil {
				return
			}

		case protocol.TypeDisconnect:
			return

		default:
			// Forward compatibility: unknown types are ignored.
			log.Debug().Str("type", msg.Type).Msg("ignoring message outside session")
		}
	}
}

// join admits p into the room named by code. When p completes the pair the
// room is promoted and both sides are notified atomically with the
// admission (the registry's per-room lock decided the winner).
func (s *Server) join(p *peer, code string, log zerolog.Logger) (string, int, error) {
	room, idx, err := s.registry.Join(code, p)
	switch {
	case errors.Is(err, rooms.ErrNotFound):
		s.metrics.JoinFailed("not_found")
		log.Info().Str("room", rooms.Normalize(code)).Msg("join failed: room not found")
		s.writeError(p.conn, protocol.TypeRoomNotFound, "room not found")
		return "", 0, err
	case errors.Is(err, rooms.ErrFull):
		s.metrics.JoinFailed("full")
		log.Info().Str("room", rooms.Normalize(code)).Msg("join failed: room full")
		s.writeError(p.conn, protocol.TypeRoomFull, "room is full")
		return "", 0, err
	case err != nil:
		return "", 0, err
	}

	if idx == 0 {
		// First occupant of a reserved (presence-brokered) room: wait
		// like a creator would.
		s.metrics.RoomCreated()
		return room.Code, idx, nil
	}

	creator, _ := room.Occupants()
	sess := s.promote(room.Code, creator.(*peer), p)
	s.metrics.RoomClosed()
	if err := sess.notifyJoined(); err != nil {
		log.Warn().Err(err).Str("room", room.Code).Msg("pairing notification failed")
	}
	return room.Code, idx, nil
}

func (s *Server) writeError(cc controlConn, msgType, reason string) {
	msg, err := protocol.NewMessage(msgType, protocol.ErrorPayload{Message: reason})
	if err != nil {
		return
	}
	cc.WriteMessage(msg)
}

// sweepLoop reaps rooms that never paired, independent of per-session
// traffic.
func (s *Server) sweepLoop() {
	ticker := time.NewTicker(s.cfg.Rooms.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.closed:
			return
		case <-ticker.C:
			for _, room := range s.registry.Reap(s.cfg.Rooms.IdleTimeout) {
				occ, _ := room.Occupants()
				s.log.Info().Str("room", room.Code).Msg("reaping idle room")
				// The occupant's read loop accounts for the closed
				// room when its connection dies.
				if p, ok := occ.(*peer); ok && p != nil {
					s.writeError(p.conn, protocol.TypeRoomTimeout, "no peer joined")
					p.conn.Close()
				}
			}
		}
	}
}

func (s *Server) nextStreamID() uint32 {
	// Stream ids only need to be unique among live sessions; a counter
	// starting above zero keeps zero free as an invalid id.
	return s.streamID.Add(1)
}

func storeNanos(dst *int64, t time.Time) {
	atomic.StoreInt64(dst, t.UnixNano())
}
