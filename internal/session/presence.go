package session

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/matthannam-fart/office-hours/internal/mode"
	"github.com/matthannam-fart/office-hours/internal/protocol"
)

// PresenceEventKind classifies presence-channel events.
type PresenceEventKind int

const (
	// PresenceUsers carries a fresh online-user list.
	PresenceUsers PresenceEventKind = iota
	// PresenceIncoming is an incoming call request.
	PresenceIncoming
	// PresenceProceed tells this client which room to use for a call it is
	// party to, with the role to take.
	PresenceProceed
	// PresenceRejected reports that the callee declined.
	PresenceRejected
	// PresenceCancelled reports that the caller withdrew the request.
	PresenceCancelled
	// PresenceError carries a relay-side error message.
	PresenceError
	// PresenceClosed is the terminal event.
	PresenceClosed
)

// PresenceEvent is one occurrence on the presence channel.
type PresenceEvent struct {
	Kind     PresenceEventKind
	Users    []protocol.PresenceUser
	Code     string
	Role     string
	FromID   string
	FromName string
	Message  string
}

// PresenceClient maintains the long-lived registration connection to the
// relay: it receives user-list broadcasts and brokers call setup.
type PresenceClient struct {
	log zerolog.Logger

	conn    net.Conn
	br      *bufio.Reader
	writeMu sync.Mutex

	keepalive time.Duration
	events    chan PresenceEvent
	done      chan struct{}
	closeOnce sync.Once
}

// DialPresence connects to the relay and registers the local user. It
// returns once the relay acknowledges the registration.
func DialPresence(ctx context.Context, addr string, opts Options) (*PresenceClient, error) {
	opts.fill()
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, opErr("dial presence", err)
	}
	c := &PresenceClient{
		log:       opts.Logger.With().Str("component", "presence").Logger(),
		conn:      conn,
		br:        bufio.NewReader(conn),
		keepalive: opts.KeepaliveInterval,
		events:    make(chan PresenceEvent, eventBuffer),
		done:      make(chan struct{}),
	}

	reg, err := protocol.NewMessage(protocol.TypeRegister, protocol.RegisterPayload{
		UserID: opts.UserID,
		Name:   opts.Name,
		Mode:   opts.Mode.String(),
	})
	if err != nil {
		conn.Close()
		return nil, opErr("register", err)
	}
	if err := c.send(reg); err != nil {
		conn.Close()
		return nil, opErr("register", err)
	}

	conn.SetReadDeadline(time.Now().Add(writeWait))
	ack, err := protocol.ReadMessage(c.br)
	conn.SetReadDeadline(time.Time{})
	if err != nil {
		conn.Close()
		return nil, opErr("register", err)
	}
	switch ack.Type {
	case protocol.TypeRegistered:
	case protocol.TypeError:
		var ep protocol.ErrorPayload
		ack.DecodePayload(&ep)
		conn.Close()
		return nil, opErr("register", fmt.Errorf("relay rejected registration: %s", ep.Message))
	default:
		conn.Close()
		return nil, opErr("register", ErrHandshake)
	}

	go c.readLoop()
	go c.pingLoop()
	return c, nil
}

// Events returns the presence event stream. Never closed; PresenceClosed is
// the terminal entry.
func (c *PresenceClient) Events() <-chan PresenceEvent {
	return c.events
}

// UpdateMode announces the local mode so other users see availability.
func (c *PresenceClient) UpdateMode(m mode.Mode) error {
	msg, err := protocol.NewMessage(protocol.TypeModeUpdate, protocol.PeerModePayload{Mode: m.String()})
	if err != nil {
		return opErr("update mode", err)
	}
	return c.send(msg)
}

// ConnectTo asks the relay to broker a call to another user. The room code
// arrives later as a PresenceProceed event.
func (c *PresenceClient) ConnectTo(targetID, fromName string) error {
	msg, err := protocol.NewMessage(protocol.TypeConnectTo, protocol.ConnectToPayload{
		TargetID: targetID,
		Name:     fromName,
	})
	if err != nil {
		return opErr("connect to", err)
	}
	return c.send(msg)
}

// Accept accepts an incoming call request for the given room code.
func (c *PresenceClient) Accept(code string) error {
	msg, err := protocol.NewMessage(protocol.TypeAcceptConnection, protocol.AcceptConnectionPayload{Code: code})
	if err != nil {
		return opErr("accept", err)
	}
	return c.send(msg)
}

// Reject declines an incoming call request from the given user.
func (c *PresenceClient) Reject(fromID string) error {
	msg, err := protocol.NewMessage(protocol.TypeRejectConnection, protocol.RejectConnectionPayload{FromID: fromID})
	if err != nil {
		return opErr("reject", err)
	}
	return c.send(msg)
}

// Cancel withdraws an outstanding call request to the given user.
func (c *PresenceClient) Cancel(targetID string) error {
	msg, err := protocol.NewMessage(protocol.TypeCancelConnection, protocol.ConnectToPayload{TargetID: targetID})
	if err != nil {
		return opErr("cancel", err)
	}
	return c.send(msg)
}

// Close drops the registration. The relay prunes the entry and re-broadcasts.
func (c *PresenceClient) Close() error {
	c.closeOnce.Do(func() {
		msg, _ := protocol.NewMessage(protocol.TypeDisconnect, nil)
		c.send(msg)
		close(c.done)
		c.conn.Close()
		c.emit(PresenceEvent{Kind: PresenceClosed})
	})
	return nil
}

func (c *PresenceClient) readLoop() {
	defer c.Close()
	for {
		msg, err := protocol.ReadMessage(c.br)
		if err != nil {
			return
		}
		switch msg.Type {
		case protocol.TypePresenceUpdate:
			var up protocol.PresenceUpdatePayload
			if msg.DecodePayload(&up) != nil {
				continue
			}
			c.emit(PresenceEvent{Kind: PresenceUsers, Users: up.Users})

		case protocol.TypeConnectionRequest:
			var req protocol.ConnectionRequestPayload
			if msg.DecodePayload(&req) != nil {
				continue
			}
			c.emit(PresenceEvent{
				Kind:     PresenceIncoming,
				Code:     req.Code,
				FromID:   req.FromID,
				FromName: req.FromName,
			})

		case protocol.TypeConnectRoom:
			var cr protocol.ConnectRoomPayload
			if msg.DecodePayload(&cr) != nil {
				continue
			}
			c.emit(PresenceEvent{Kind: PresenceProceed, Code: cr.Code, Role: cr.Role})

		case protocol.TypeConnectionRejected:
			c.emit(PresenceEvent{Kind: PresenceRejected})

		case protocol.TypeCancelConnection:
			c.emit(PresenceEvent{Kind: PresenceCancelled})

		case protocol.TypeError:
			var ep protocol.ErrorPayload
			if msg.DecodePayload(&ep) == nil {
				c.emit(PresenceEvent{Kind: PresenceError, Message: ep.Message})
			}

		case protocol.TypePing:
			pong, _ := protocol.NewMessage(protocol.TypePong, nil)
			c.send(pong)
		}
	}
}

func (c *PresenceClient) pingLoop() {
	ticker := time.NewTicker(c.keepalive)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			ping, _ := protocol.NewMessage(protocol.TypePing, nil)
			if c.send(ping) != nil {
				return
			}
		}
	}
}

func (c *PresenceClient) send(msg protocol.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return protocol.WriteMessage(c.conn, msg)
}

func (c *PresenceClient) emit(ev PresenceEvent) {
	select {
	case c.events <- ev:
	default:
	}
}
