package relay

import (
	"bufio"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/matthannam-fart/office-hours/internal/protocol"
)

// controlConn abstracts one client's control stream. TCP clients use the
// length-prefixed framing; websocket bridge clients carry one encoded
// message per binary websocket frame. The relay forwards raw encoded
// messages so a session can pair a TCP half with a websocket half.
type controlConn interface {
	// ReadMessage returns the next decoded message along with its raw
	// encoding, which forwarding re-sends verbatim.
	ReadMessage() (protocol.Message, []byte, error)
	WriteMessage(m protocol.Message) error
	WriteRaw(raw []byte) error
	SetReadDeadline(t time.Time) error
	RemoteIP() net.IP
	RemoteAddr() string
	Close() error
}

type tcpConn struct {
	conn net.Conn
	br   *bufio.Reader

	writeMu sync.Mutex
}

func newTCPConn(conn net.Conn) *tcpConn {
	return &tcpConn{conn: conn, br: bufio.NewReader(conn)}
}

func (c *tcpConn) ReadMessage() (protocol.Message, []byte, error) {
	raw, err := protocol.ReadFrame(c.br)
	if err != nil {
		return protocol.Message{}, nil, err
	}
	msg, err := protocol.DecodeMessage(raw)
	if err != nil {
		return protocol.Message{}, nil, err
	}
	return msg, raw, nil
}

func (c *tcpConn) WriteMessage(m protocol.Message) error {
	raw, err := protocol.EncodeMessage(m)
	if err != nil {
		return err
	}
	return c.WriteRaw(raw)
}

func (c *tcpConn) WriteRaw(raw []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return protocol.WriteFrame(c.conn, raw)
}

func (c *tcpConn) SetReadDeadline(t time.Time) error { return c.conn.SetReadDeadline(t) }

func (c *tcpConn) RemoteIP() net.IP {
	if addr, ok := c.conn.RemoteAddr().(*net.TCPAddr); ok {
		return addr.IP
	}
	return nil
}

func (c *tcpConn) RemoteAddr() string { return c.conn.RemoteAddr().String() }

func (c *tcpConn) Close() error { return c.conn.Close() }

type wsConn struct {
	conn *websocket.Conn

	writeMu sync.Mutex
}

func newWSConn(conn *websocket.Conn) *wsConn {
	conn.SetReadLimit(protocol.MaxFrameSize)
	return &wsConn{conn: conn}
}

func (c *wsConn) ReadMessage() (protocol.Message, []byte, error) {
	for {
		kind, raw, err := c.conn.ReadMessage()
		if err != nil {
			return protocol.Message{}, nil, err
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		msg, err := protocol.DecodeMessage(raw)
		if err != nil {
			return protocol.Message{}, nil, err
		}
		return msg, raw, nil
	}
}

func (c *wsConn) WriteMessage(m protocol.Message) error {
	raw, err := protocol.EncodeMessage(m)
	if err != nil {
		return err
	}
	return c.WriteRaw(raw)
}

func (c *wsConn) WriteRaw(raw []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.BinaryMessage, raw)
}

func (c *wsConn) SetReadDeadline(t time.Time) error { return c.conn.SetReadDeadline(t) }

func (c *wsConn) RemoteIP() net.IP {
	host, _, err := net.SplitHostPort(c.conn.RemoteAddr().String())
	if err != nil {
		return nil
	}
	return net.ParseIP(host)
}

func (c *wsConn) RemoteAddr() string { return c.conn.RemoteAddr().String() }

func (c *wsConn) Close() error { return c.conn.Close() }

// peer is one session half as the relay sees it: a control connection plus
// the audio endpoint learned for it. It is the occupant handle stored in
// the room registry.
type peer struct {
	conn     controlConn
	streamID uint32

	// udpAddr is the most recent audio source address for this side,
	// seeded by UDP_REGISTER and updated whenever a datagram arrives
	// from somewhere new (NAT rebinding).
	udpAddr atomic.Pointer[net.UDPAddr]

	// sess is set when the peer's room is promoted. The peer's read loop
	// switches from handshake handling to forwarding when it sees it.
	sess atomic.Pointer[relaySession]
}
