package relay

import (
	"encoding/binary"
	"net"
	"sync"

	"github.com/rs/zerolog"

	"github.com/matthannam-fart/office-hours/internal/metrics"
	"github.com/matthannam-fart/office-hours/internal/protocol"
)

// udpForwarder owns the relay's audio socket. Datagrams carry the sending
// side's stream id; the forwarder learns each side's latest source address
// from the datagrams themselves and forwards to the opposite side. It
// never reorders, buffers, or inspects payloads.
type udpForwarder struct {
	conn    *net.UDPConn
	log     zerolog.Logger
	metrics *metrics.Collector

	mu     sync.RWMutex
	routes map[uint32]*audioRoute
}

// audioRoute maps one stream id to its owning side and the side to forward
// to. Address updates are per side and atomic; there is one writer per
// session half (the forwarder loop).
type audioRoute struct {
	owner *peer
	other *peer
}

func newUDPForwarder(conn *net.UDPConn, log zerolog.Logger, collector *metrics.Collector) *udpForwarder {
	return &udpForwarder{
		conn:    conn,
		log:     log.With().Str("component", "udp").Logger(),
		metrics: collector,
		routes:  make(map[uint32]*audioRoute),
	}
}

func (f *udpForwarder) register(sess *relaySession) {
	f.mu.Lock()
	f.routes[sess.a.streamID] = &audioRoute{owner: sess.a, other: sess.b}
	f.routes[sess.b.streamID] = &audioRoute{owner: sess.b, other: sess.a}
	f.mu.Unlock()
}

func (f *udpForwarder) unregister(streamIDs ...uint32) {
	f.mu.Lock()
	for _, id := range streamIDs {
		delete(f.routes, id)
	}
	f.mu.Unlock()
}

// declare seeds a side's audio endpoint from a UDP_REGISTER control
// message: the declared port combined with the control connection's source
// IP. Arriving datagrams overwrite it.
func (f *udpForwarder) declare(p *peer, port int) {
	ip := p.conn.RemoteIP()
	if ip == nil || port <= 0 || port > 65535 {
		return
	}
	p.udpAddr.Store(&net.UDPAddr{IP: ip, Port: port})
	f.log.Debug().Str("peer", p.conn.RemoteAddr()).Int("port", port).Msg("audio endpoint declared")
}

func (f *udpForwarder) loop() {
	buf := make([]byte, 64*1024)
	for {
		n, src, err := f.conn.ReadFromUDP(buf)
		if err != nil {
			// Socket closed on shutdown.
			return
		}
		if n < protocol.AudioHeaderSize {
			continue
		}
		streamID := binary.BigEndian.Uint32(buf[:4])

		f.mu.RLock()
		route, ok := f.routes[streamID]
		f.mu.RUnlock()
		if !ok {
			f.metrics.AudioUnroutable()
			continue
		}

		// Learn-source: the latest origin of this side's datagrams is
		// where its replies must go, whatever NAT did in between.
		route.owner.udpAddr.Store(src)

		if sess := route.owner.sess.Load(); sess != nil {
			sess.touch()
		}

		if n == protocol.AudioHeaderSize {
			// Punch/keepalive datagram: learned, not forwarded.
			continue
		}

		dst := route.other.udpAddr.Load()
		if dst == nil {
			f.metrics.AudioUnroutable()
			continue
		}
		if _, err := f.conn.WriteToUDP(buf[:n], dst); err != nil {
			f.log.Debug().Err(err).Msg("audio forward failed")
			continue
		}
		f.metrics.AudioForwarded(n - protocol.AudioHeaderSize)
	}
}

func (f *udpForwarder) close() {
	f.conn.Close()
}

// Addr is the bound audio address.
func (f *udpForwarder) Addr() net.Addr { return f.conn.LocalAddr() }
