package session

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/matthannam-fart/office-hours/internal/audio"
	"github.com/matthannam-fart/office-hours/internal/mode"
	"github.com/matthannam-fart/office-hours/internal/protocol"
)

// DialRelay opens the control connection to a relay. The returned session is
// CONNECTING; pair it with CreateRoom/AwaitPeer or JoinRoom.
func DialRelay(ctx context.Context, addr string, opts Options) (*Session, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, opErr("dial relay", err)
	}
	s := newSession(opts)
	s.conn = conn
	s.br = bufio.NewReader(conn)
	return s, nil
}

// CreateRoom asks the relay for a fresh room and returns its code. The
// session stays CONNECTING until AwaitPeer sees the second participant.
func (s *Session) CreateRoom(ctx context.Context) (string, error) {
	msg, _ := protocol.NewMessage(protocol.TypeCreateRoom, nil)
	if err := s.send(msg); err != nil {
		return "", opErr("create room", err)
	}
	reply, err := s.await(ctx, protocol.TypeRoomCreated)
	if err != nil {
		return "", opErr("create room", err)
	}
	var rc protocol.RoomCreatedPayload
	if err := reply.DecodePayload(&rc); err != nil {
		return "", opErr("create room", err)
	}
	s.roomCode = rc.Code
	return rc.Code, nil
}

// AwaitPeer blocks until a second participant joins the created room,
// keeping the relay connection alive with pings. On success the session is
// ESTABLISHED.
func (s *Session) AwaitPeer(ctx context.Context) error {
	stopPings := s.pingWhileWaiting()
	defer stopPings()
	reply, err := s.await(ctx, protocol.TypeRoomJoined)
	if err != nil {
		return opErr("await peer", err)
	}
	return s.establishRelay(reply)
}

// JoinRoom joins an existing room by code. On success the session is
// ESTABLISHED; ErrRoomNotFound and ErrRoomFull report the two relay
// rejections, leaving the connection usable for another attempt.
func (s *Session) JoinRoom(ctx context.Context, code string) error {
	msg, err := protocol.NewMessage(protocol.TypeJoinRoom, protocol.JoinRoomPayload{Code: code})
	if err != nil {
		return opErr("join room", err)
	}
	if err := s.send(msg); err != nil {
		return opErr("join room", err)
	}
	// A brokered call can land the first participant here with nobody in the
	// room yet, so keep the relay connection alive while waiting.
	stopPings := s.pingWhileWaiting()
	defer stopPings()
	reply, err := s.await(ctx, protocol.TypeRoomJoined)
	if err != nil {
		return opErr("join room", err)
	}
	return s.establishRelay(reply)
}

// await reads control messages until one of wantType arrives, answering
// pings and surfacing error-class replies as errors. Cancelling ctx aborts
// the read by expiring the connection deadline.
func (s *Session) await(ctx context.Context, wantType string) (protocol.Message, error) {
	stop := context.AfterFunc(ctx, func() {
		s.conn.SetReadDeadline(time.Now())
	})
	defer stop()
	defer s.conn.SetReadDeadline(time.Time{})

	for {
		msg, err := protocol.ReadMessage(s.br)
		if err != nil {
			if ctx.Err() != nil {
				return protocol.Message{}, ctx.Err()
			}
			s.close(err)
			return protocol.Message{}, err
		}
		s.touch()
		switch msg.Type {
		case wantType:
			return msg, nil
		case protocol.TypePing:
			pong, _ := protocol.NewMessage(protocol.TypePong, nil)
			s.send(pong)
		case protocol.TypePong:
		case protocol.TypeRoomNotFound:
			return protocol.Message{}, ErrRoomNotFound
		case protocol.TypeRoomFull:
			return protocol.Message{}, ErrRoomFull
		case protocol.TypeRoomTimeout:
			s.close(ErrRoomTimeout)
			return protocol.Message{}, ErrRoomTimeout
		case protocol.TypeError:
			var ep protocol.ErrorPayload
			if msg.DecodePayload(&ep) == nil && ep.Message != "" {
				return protocol.Message{}, fmt.Errorf("relay error: %s", ep.Message)
			}
			return protocol.Message{}, fmt.Errorf("relay error")
		}
	}
}

// pingWhileWaiting keeps the relay connection alive before the session has
// its keepalive pump. The returned func stops it.
func (s *Session) pingWhileWaiting() func() {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(s.opts.KeepaliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-s.done:
				return
			case <-ticker.C:
				ping, _ := protocol.NewMessage(protocol.TypePing, nil)
				s.send(ping)
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(stop) }) }
}

// establishRelay wires the audio channel toward the relay and starts the
// pumps.
func (s *Session) establishRelay(joined protocol.Message) error {
	var rj protocol.RoomJoinedPayload
	if err := joined.DecodePayload(&rj); err != nil {
		return opErr("establish", err)
	}
	s.roomCode = rj.Code
	s.sessionID = rj.SessionID
	s.framer = audio.NewFramer(rj.StreamID)
	s.peerStreamID = rj.PeerStreamID

	relayHost, _, err := net.SplitHostPort(s.conn.RemoteAddr().String())
	if err != nil {
		return opErr("establish", err)
	}
	relayPort := s.conn.RemoteAddr().(*net.TCPAddr).Port
	udp, err := net.ListenUDP("udp", nil)
	if err != nil {
		return opErr("establish", err)
	}
	s.udp = udp
	s.udpDst.Store(&net.UDPAddr{IP: net.ParseIP(relayHost), Port: relayPort})

	localPort := udp.LocalAddr().(*net.UDPAddr).Port
	reg, _ := protocol.NewMessage(protocol.TypeUDPRegister, protocol.UDPRegisterPayload{Port: localPort})
	if err := s.send(reg); err != nil {
		udp.Close()
		return opErr("establish", err)
	}
	// The punch datagram teaches the relay our observed source address.
	s.udp.WriteToUDP(s.framer.Punch().MarshalBinary(), s.udpDst.Load())

	s.log.Info().
		Str("room", rj.Code).
		Str("session", rj.SessionID).
		Uint32("stream", rj.StreamID).
		Msg("session established via relay")
	s.establish()
	return nil
}

// DialDirect connects straight to a peer on the LAN and performs the hello
// exchange. audioPort selects the local UDP port, 0 for ephemeral.
func DialDirect(ctx context.Context, addr string, audioPort int, opts Options) (*Session, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, opErr("dial peer", err)
	}
	s := newSession(opts)
	if err := s.attach(conn, audioPort); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// attach runs the symmetric hello exchange over an already open control
// connection. Both the dialing and the accepting side use it.
func (s *Session) attach(conn net.Conn, audioPort int) error {
	s.conn = conn
	s.br = bufio.NewReader(conn)
	s.framer = audio.NewFramer(randomStreamID())

	udp, err := net.ListenUDP("udp", &net.UDPAddr{Port: audioPort})
	if err != nil {
		return opErr("attach", err)
	}
	s.udp = udp

	hello, err := protocol.NewMessage(protocol.TypeHello, protocol.HelloPayload{
		Name:     s.opts.Name,
		UserID:   s.opts.UserID,
		StreamID: s.framer.StreamID(),
		UDPPort:  udp.LocalAddr().(*net.UDPAddr).Port,
		Mode:     s.Mode().String(),
	})
	if err != nil {
		udp.Close()
		return opErr("attach", err)
	}
	if err := s.send(hello); err != nil {
		udp.Close()
		return opErr("attach", err)
	}

	conn.SetReadDeadline(time.Now().Add(writeWait))
	reply, err := protocol.ReadMessage(s.br)
	conn.SetReadDeadline(time.Time{})
	if err != nil {
		udp.Close()
		return opErr("attach", err)
	}
	if reply.Type != protocol.TypeHello {
		udp.Close()
		return opErr("attach", ErrHandshake)
	}
	var peer protocol.HelloPayload
	if err := reply.DecodePayload(&peer); err != nil {
		udp.Close()
		return opErr("attach", err)
	}

	s.peerStreamID = peer.StreamID
	s.modeMu.Lock()
	s.peerName = peer.Name
	if m, err := mode.Parse(peer.Mode); err == nil {
		s.peerMode = m
	}
	s.modeMu.Unlock()

	peerHost, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		udp.Close()
		return opErr("attach", err)
	}
	s.udpDst.Store(&net.UDPAddr{IP: net.ParseIP(peerHost), Port: peer.UDPPort})
	s.udp.WriteToUDP(s.framer.Punch().MarshalBinary(), s.udpDst.Load())

	s.log.Info().
		Str("peer", peer.Name).
		Str("addr", conn.RemoteAddr().String()).
		Msg("session established directly")
	s.establish()
	return nil
}

// Listener accepts inbound direct sessions on the LAN control port.
type Listener struct {
	ln        net.Listener
	audioPort int
	opts      Options
}

// Listen binds the direct control port. audioPort is handed to each
// accepted session.
func Listen(addr string, audioPort int, opts Options) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, opErr("listen", err)
	}
	return &Listener{ln: ln, audioPort: audioPort, opts: opts}, nil
}

// Accept waits for one inbound connection and completes the hello exchange.
func (l *Listener) Accept() (*Session, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	s := newSession(l.opts)
	if err := s.attach(conn, l.audioPort); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

func (l *Listener) Close() error { return l.ln.Close() }
