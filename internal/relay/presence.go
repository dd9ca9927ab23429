package relay

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/matthannam-fart/office-hours/internal/protocol"
)

// presenceReadTimeout bounds how long a registered client may stay totally
// silent. Clients ping on their keepalive interval, so a hit means the
// connection is gone.
const presenceReadTimeout = 5 * time.Minute

// presenceRegistry tracks who is online, broadcasts the user list on every
// change, and brokers call requests into reserved rooms.
type presenceRegistry struct {
	srv *Server
	log zerolog.Logger

	mu      sync.Mutex
	entries map[string]*presenceEntry
}

type presenceEntry struct {
	userID string
	name   string
	mode   string
	conn   controlConn
}

func newPresenceRegistry(srv *Server) *presenceRegistry {
	return &presenceRegistry{
		srv:     srv,
		log:     srv.log.With().Str("component", "presence").Logger(),
		entries: make(map[string]*presenceEntry),
	}
}

// handle owns a control connection that opened with REGISTER. It returns
// when the client disconnects.
func (pr *presenceRegistry) handle(cc controlConn, reg protocol.RegisterPayload) {
	if reg.UserID == "" {
		pr.srv.writeError(cc, protocol.TypeError, "missing user id")
		return
	}

	entry := &presenceEntry{
		userID: reg.UserID,
		name:   reg.Name,
		mode:   reg.Mode,
		conn:   cc,
	}
	pr.mu.Lock()
	pr.entries[reg.UserID] = entry
	pr.mu.Unlock()
	pr.srv.metrics.PresenceRegistered()

	log := pr.log.With().Str("user", reg.UserID).Str("name", reg.Name).Logger()
	log.Info().Msg("presence registered")

	ack, _ := protocol.NewMessage(protocol.TypeRegistered, nil)
	if err := cc.WriteMessage(ack); err != nil {
		pr.drop(reg.UserID)
		return
	}
	pr.broadcast()

	defer func() {
		pr.drop(reg.UserID)
		pr.broadcast()
		log.Info().Msg("presence disconnected")
	}()

	for {
		cc.SetReadDeadline(time.Now().Add(presenceReadTimeout))
		msg, _, err := cc.ReadMessage()
		if err != nil {
			return
		}

		switch msg.Type {
		case protocol.TypeModeUpdate:
			var pm protocol.PeerModePayload
			if err := msg.DecodePayload(&pm); err != nil {
				continue
			}
			pr.setMode(reg.UserID, pm.Mode)
			log.Debug().Str("mode", pm.Mode).Msg("presence mode updated")
			pr.broadcast()

		case protocol.TypeConnectTo:
			var req protocol.ConnectToPayload
			if err := msg.DecodePayload(&req); err != nil {
				continue
			}
			pr.brokerCall(entry, req, log)

		case protocol.TypeAcceptConnection:
			var acc protocol.AcceptConnectionPayload
			if err := msg.DecodePayload(&acc); err != nil {
				continue
			}
			reply, _ := protocol.NewMessage(protocol.TypeConnectRoom, protocol.ConnectRoomPayload{
				Code: acc.Code,
				Role: "joiner",
			})
			if cc.WriteMessage(reply) != nil {
				return
			}

		case protocol.TypeRejectConnection:
			var rej protocol.RejectConnectionPayload
			if err := msg.DecodePayload(&rej); err != nil {
				continue
			}
			pr.notify(rej.FromID, protocol.TypeConnectionRejected, protocol.ErrorPayload{
				Message: "connection declined",
			})

		case protocol.TypeCancelConnection:
			var can protocol.ConnectToPayload
			if err := msg.DecodePayload(&can); err != nil {
				continue
			}
			pr.notify(can.TargetID, protocol.TypeCancelConnection, nil)

		case protocol.TypePing:
			pong, _ := protocol.NewMessage(protocol.TypePong, nil)
			if cc.WriteMessage(pong) != nil {
				return
			}

		case protocol.TypeDisconnect:
			return

		default:
			// Ignore unknown types for forward compatibility.
		}
	}
}

// brokerCall reserves a room for a caller/callee pair and points both
// presence clients at it. The callee only learns the code; joining is its
// decision.
func (pr *presenceRegistry) brokerCall(from *presenceEntry, req protocol.ConnectToPayload, log zerolog.Logger) {
	pr.mu.Lock()
	target, ok := pr.entries[req.TargetID]
	pr.mu.Unlock()
	if !ok {
		pr.srv.writeError(from.conn, protocol.TypeError, "user not found or offline")
		return
	}

	room, err := pr.srv.registry.Reserve()
	if err != nil {
		pr.srv.writeError(from.conn, protocol.TypeError, "could not reserve room")
		return
	}
	log.Info().Str("target", req.TargetID).Str("room", room.Code).Msg("brokering call")

	toCaller, _ := protocol.NewMessage(protocol.TypeConnectRoom, protocol.ConnectRoomPayload{
		Code: room.Code,
		Role: "creator",
	})
	if err := from.conn.WriteMessage(toCaller); err != nil {
		pr.srv.registry.Remove(room.Code)
		return
	}

	name := req.Name
	if name == "" {
		name = from.name
	}
	toTarget, _ := protocol.NewMessage(protocol.TypeConnectionRequest, protocol.ConnectionRequestPayload{
		Code:     room.Code,
		FromID:   from.userID,
		FromName: name,
	})
	if err := target.conn.WriteMessage(toTarget); err != nil {
		pr.srv.registry.Remove(room.Code)
		pr.srv.writeError(from.conn, protocol.TypeError, "target user disconnected")
	}
}

func (pr *presenceRegistry) setMode(userID, m string) {
	pr.mu.Lock()
	if e, ok := pr.entries[userID]; ok {
		e.mode = m
	}
	pr.mu.Unlock()
}

func (pr *presenceRegistry) drop(userID string) {
	pr.mu.Lock()
	_, ok := pr.entries[userID]
	delete(pr.entries, userID)
	pr.mu.Unlock()
	if ok {
		pr.srv.metrics.PresenceGone()
	}
}

func (pr *presenceRegistry) notify(userID, msgType string, payload any) {
	pr.mu.Lock()
	target, ok := pr.entries[userID]
	pr.mu.Unlock()
	if !ok {
		return
	}
	msg, err := protocol.NewMessage(msgType, payload)
	if err != nil {
		return
	}
	target.conn.WriteMessage(msg)
}

// broadcast sends the current user list to every registered client,
// pruning the ones whose connections turn out to be dead.
func (pr *presenceRegistry) broadcast() {
	pr.mu.Lock()
	users := make([]protocol.PresenceUser, 0, len(pr.entries))
	targets := make([]*presenceEntry, 0, len(pr.entries))
	for _, e := range pr.entries {
		users = append(users, protocol.PresenceUser{
			UserID: e.userID,
			Name:   e.name,
			Mode:   e.mode,
		})
		targets = append(targets, e)
	}
	pr.mu.Unlock()

	msg, err := protocol.NewMessage(protocol.TypePresenceUpdate, protocol.PresenceUpdatePayload{Users: users})
	if err != nil {
		return
	}

	var dead []string
	for _, e := range targets {
		if err := e.conn.WriteMessage(msg); err != nil {
			dead = append(dead, e.userID)
		}
	}
	if len(dead) > 0 {
		for _, id := range dead {
			pr.log.Info().Str("user", id).Msg("pruning stale presence entry")
			pr.drop(id)
		}
		pr.broadcast()
	}
}
