package relay

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/matthannam-fart/office-hours/internal/protocol"
)

// relaySession is a paired room: two peers whose control frames and audio
// datagrams the relay forwards verbatim. The relay never interprets audio
// and never buffers beyond the frame in flight.
type relaySession struct {
	id   uuid.UUID
	code string
	a, b *peer

	srv *Server
	log zerolog.Logger

	lastActivity int64 // unix nanos, atomically updated by both pumps
	closeOnce    sync.Once

	mu sync.Mutex
}

func (s *Server) promote(code string, a, b *peer) *relaySession {
	sess := &relaySession{
		id:   uuid.New(),
		code: code,
		a:    a,
		b:    b,
		srv:  s,
	}
	sess.log = s.log.With().
		Str("session", sess.id.String()).
		Str("room", code).
		Logger()
	sess.touch()

	a.streamID = s.nextStreamID()
	b.streamID = s.nextStreamID()
	a.sess.Store(sess)
	b.sess.Store(sess)
	s.udp.register(sess)

	s.metrics.SessionStarted()
	sess.log.Info().
		Str("a", a.conn.RemoteAddr()).
		Str("b", b.conn.RemoteAddr()).
		Msg("room promoted to session")
	return sess
}

// notifyJoined tells both occupants the session exists, each with its own
// stream assignment. Both sides transition out of the room state together.
func (sess *relaySession) notifyJoined() error {
	if err := sess.sendJoined(sess.a, sess.b); err != nil {
		sess.teardown("creator unreachable")
		return err
	}
	if err := sess.sendJoined(sess.b, sess.a); err != nil {
		sess.teardown("joiner unreachable")
		return err
	}
	return nil
}

func (sess *relaySession) sendJoined(to, other *peer) error {
	msg, err := protocol.NewMessage(protocol.TypeRoomJoined, protocol.RoomJoinedPayload{
		Code:         sess.code,
		SessionID:    sess.id.String(),
		StreamID:     to.streamID,
		PeerStreamID: other.streamID,
	})
	if err != nil {
		return err
	}
	return to.conn.WriteMessage(msg)
}

func (sess *relaySession) other(p *peer) *peer {
	if p == sess.a {
		return sess.b
	}
	return sess.a
}

func (sess *relaySession) touch() {
	storeNanos(&sess.lastActivity, time.Now())
}

// forward relays one control message from p to its peer. UDP_REGISTER is
// consumed here (it addresses the relay, not the peer); everything else,
// recognized or not, passes through untouched.
func (sess *relaySession) forward(p *peer, msg protocol.Message, raw []byte) error {
	sess.touch()

	if msg.Type == protocol.TypeUDPRegister {
		var reg protocol.UDPRegisterPayload
		if err := msg.DecodePayload(&reg); err == nil {
			sess.srv.udp.declare(p, reg.Port)
		}
		return nil
	}

	if err := sess.other(p).conn.WriteRaw(raw); err != nil {
		sess.teardown("peer write failed")
		return err
	}
	sess.srv.metrics.ControlForwarded(msg.Type)

	if msg.Type == protocol.TypeDisconnect {
		sess.teardown("explicit disconnect")
	}
	return nil
}

// teardown releases both halves exactly once. Closing the connections
// unblocks both read pumps; the audio routes go with them.
func (sess *relaySession) teardown(reason string) {
	sess.closeOnce.Do(func() {
		sess.log.Info().Str("reason", reason).Msg("session torn down")
		sess.srv.registry.Remove(sess.code)
		sess.srv.udp.unregister(sess.a.streamID, sess.b.streamID)
		sess.a.conn.Close()
		sess.b.conn.Close()
		sess.srv.metrics.SessionEnded()
	})
}
