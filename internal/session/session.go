// Package session implements the client side of an intercom session: the
// length-prefixed control stream, the audio datagram channel, the keepalive
// discipline, and the local mode policy applied to inbound talk.
package session

import (
	"bufio"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/matthannam-fart/office-hours/internal/audio"
	"github.com/matthannam-fart/office-hours/internal/mode"
	"github.com/matthannam-fart/office-hours/internal/protocol"
)

// State is the session lifecycle position. Transitions are one-way:
// CONNECTING to ESTABLISHED to CLOSED, or CONNECTING straight to CLOSED.
type State int32

const (
	StateConnecting State = iota
	StateEstablished
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateEstablished:
		return "ESTABLISHED"
	default:
		return "CLOSED"
	}
}

const (
	writeWait        = 10 * time.Second
	defaultKeepalive = 5 * time.Second
	defaultMisses    = 3
	eventBuffer      = 32
	framePacing      = 20 * time.Millisecond
)

// Options configures a session before it connects.
type Options struct {
	Name   string
	UserID string
	Mode   mode.Mode

	// Playback receives inbound audio in LIVE mode. Defaults to Discard.
	Playback audio.Playback

	KeepaliveInterval time.Duration
	KeepaliveMisses   int

	Logger zerolog.Logger
}

func (o *Options) fill() {
	if o.Playback == nil {
		o.Playback = audio.Discard{}
	}
	if o.KeepaliveInterval <= 0 {
		o.KeepaliveInterval = defaultKeepalive
	}
	if o.KeepaliveMisses <= 0 {
		o.KeepaliveMisses = defaultMisses
	}
	if !o.Mode.Valid() {
		o.Mode = mode.Live
	}
}

// Session is one two-party intercom session, direct or relayed. All methods
// are safe for concurrent use.
type Session struct {
	opts Options
	log  zerolog.Logger

	conn    net.Conn
	br      *bufio.Reader
	writeMu sync.Mutex

	udp    *net.UDPConn
	udpDst atomic.Pointer[net.UDPAddr]

	framer       *audio.Framer
	peerStreamID uint32
	trackMu      sync.Mutex
	tracker      audio.Tracker

	modeMu   sync.Mutex
	mode     mode.Mode
	peerMode mode.Mode
	peerName string

	recMu    sync.Mutex
	recorder *audio.Recorder

	roomCode  string
	sessionID string

	state     atomic.Int32
	lastSeen  atomic.Int64
	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
	wg        sync.WaitGroup
}

func newSession(opts Options) *Session {
	opts.fill()
	s := &Session{
		opts:   opts,
		log:    opts.Logger.With().Str("component", "session").Logger(),
		mode:   opts.Mode,
		events: make(chan Event, eventBuffer),
		done:   make(chan struct{}),
	}
	s.state.Store(int32(StateConnecting))
	s.touch()
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Events returns the event stream for the UI layer. The channel is never
// closed; EventClosed is the terminal entry.
func (s *Session) Events() <-chan Event {
	return s.events
}

// RoomCode returns the room code the session was paired through, empty on
// direct sessions.
func (s *Session) RoomCode() string { return s.roomCode }

// PeerName returns the peer's display name, known only on direct sessions.
func (s *Session) PeerName() string {
	s.modeMu.Lock()
	defer s.modeMu.Unlock()
	return s.peerName
}

// Mode returns the local mode.
func (s *Session) Mode() mode.Mode {
	s.modeMu.Lock()
	defer s.modeMu.Unlock()
	return s.mode
}

// PeerMode returns the last mode the peer announced.
func (s *Session) PeerMode() mode.Mode {
	s.modeMu.Lock()
	defer s.modeMu.Unlock()
	return s.peerMode
}

// SetMode switches the local mode and announces it to the peer.
func (s *Session) SetMode(m mode.Mode) error {
	if !m.Valid() {
		return opErr("set mode", fmt.Errorf("unknown mode %q", m))
	}
	s.modeMu.Lock()
	s.mode = m
	s.modeMu.Unlock()
	if s.State() != StateEstablished {
		return nil
	}
	msg, err := protocol.NewMessage(protocol.TypePeerMode, protocol.PeerModePayload{Mode: m.String()})
	if err != nil {
		return opErr("set mode", err)
	}
	return s.send(msg)
}

// CycleMode advances the local mode one step and returns the new mode.
func (s *Session) CycleMode() (mode.Mode, error) {
	next := s.Mode().Next()
	return next, s.SetMode(next)
}

// StartTalk opens an outbound talk burst.
func (s *Session) StartTalk() error {
	if s.State() != StateEstablished {
		return opErr("start talk", ErrNotEstablished)
	}
	msg, _ := protocol.NewMessage(protocol.TypeTalkStart, nil)
	return s.send(msg)
}

// EndTalk closes the outbound talk burst.
func (s *Session) EndTalk() error {
	if s.State() != StateEstablished {
		return opErr("end talk", ErrNotEstablished)
	}
	msg, _ := protocol.NewMessage(protocol.TypeTalkEnd, nil)
	return s.send(msg)
}

// SendAudio packetizes one encoded chunk and sends it on the datagram
// channel. Delivery is best effort.
func (s *Session) SendAudio(payload []byte) error {
	if s.State() != StateEstablished {
		return opErr("send audio", ErrNotEstablished)
	}
	dst := s.udpDst.Load()
	if dst == nil {
		return opErr("send audio", ErrNotEstablished)
	}
	f := s.framer.Next(payload)
	_, err := s.udp.WriteToUDP(f.MarshalBinary(), dst)
	if err != nil {
		return opErr("send audio", err)
	}
	return nil
}

// Talk streams chunks from a capture source as one talk burst, returning
// when the source closes or the session dies.
func (s *Session) Talk(src audio.Capture) error {
	if err := s.StartTalk(); err != nil {
		return err
	}
	for {
		select {
		case chunk, ok := <-src.Chunks():
			if !ok {
				return s.EndTalk()
			}
			if err := s.SendAudio(chunk); err != nil {
				return err
			}
		case <-s.done:
			return ErrClosed
		}
	}
}

// SendRecorded replays a stored recorded message to the peer as one talk
// burst, pacing frames at the capture cadence.
func (s *Session) SendRecorded(rec *audio.RecordedMessage) error {
	if rec == nil || len(rec.Frames) == 0 {
		return nil
	}
	if err := s.StartTalk(); err != nil {
		return err
	}
	ticker := time.NewTicker(framePacing)
	defer ticker.Stop()
	for _, f := range rec.Frames {
		select {
		case <-ticker.C:
			if err := s.SendAudio(f.Payload); err != nil {
				return err
			}
		case <-s.done:
			return ErrClosed
		}
	}
	return s.EndTalk()
}

// Disconnect tells the peer the session is over and closes it.
func (s *Session) Disconnect() error {
	if s.State() == StateEstablished {
		msg, _ := protocol.NewMessage(protocol.TypeDisconnect, nil)
		s.send(msg)
	}
	s.close(nil)
	return nil
}

// Close tears the session down without notifying the peer.
func (s *Session) Close() error {
	s.close(nil)
	return nil
}

// Err returns the cause of closure, nil before closure or after a local
// disconnect.
func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.closeErr
	default:
		return nil
	}
}

// establish flips the session to ESTABLISHED and starts the pumps. The
// control connection and UDP socket must be wired before calling.
func (s *Session) establish() {
	s.state.Store(int32(StateEstablished))
	s.touch()
	s.emit(Event{Kind: EventEstablished})
	s.wg.Add(3)
	go s.readLoop()
	go s.udpLoop()
	go s.keepaliveLoop()
}

func (s *Session) readLoop() {
	defer s.wg.Done()
	for {
		msg, err := protocol.ReadMessage(s.br)
		if err != nil {
			s.close(err)
			return
		}
		s.touch()
		if s.handleControl(msg) {
			return
		}
	}
}

// handleControl processes one inbound control message, returning true when
// the read loop should stop.
func (s *Session) handleControl(msg protocol.Message) bool {
	switch msg.Type {
	case protocol.TypePing:
		pong, _ := protocol.NewMessage(protocol.TypePong, nil)
		s.send(pong)

	case protocol.TypePong:

	case protocol.TypePeerMode:
		var pm protocol.PeerModePayload
		if msg.DecodePayload(&pm) != nil {
			return false
		}
		m, err := mode.Parse(pm.Mode)
		if err != nil {
			return false
		}
		s.modeMu.Lock()
		s.peerMode = m
		s.modeMu.Unlock()
		s.emit(Event{Kind: EventPeerMode, Mode: m})

	case protocol.TypeTalkStart:
		d := mode.Decide(s.Mode(), mode.EventTalkStart)
		switch d.Action {
		case mode.ActionStartRecording:
			s.recMu.Lock()
			s.recorder = audio.NewRecorder()
			s.recMu.Unlock()
			s.emit(Event{Kind: EventPeerTalkStart})
		case mode.ActionDrop:
			if d.Notify != "" {
				notice, _ := protocol.NewMessage(d.Notify, nil)
				s.send(notice)
			}
		default:
			s.emit(Event{Kind: EventPeerTalkStart})
		}

	case protocol.TypeTalkEnd:
		d := mode.Decide(s.Mode(), mode.EventTalkEnd)
		if d.Action == mode.ActionFinishRecording {
			s.recMu.Lock()
			rec := s.recorder
			s.recorder = nil
			s.recMu.Unlock()
			if rec != nil {
				if done := rec.Finalize(); done != nil {
					s.emit(Event{Kind: EventRecorded, Recording: done})
				}
			}
		}
		if d.Action != mode.ActionDrop {
			s.emit(Event{Kind: EventPeerTalkEnd})
		}

	case protocol.TypeUnavailable:
		s.emit(Event{Kind: EventPeerUnavailable})

	case protocol.TypeError:
		var ep protocol.ErrorPayload
		if msg.DecodePayload(&ep) == nil {
			s.emit(Event{Kind: EventError, Message: ep.Message})
		}

	case protocol.TypeRoomTimeout:
		s.close(ErrRoomTimeout)
		return true

	case protocol.TypeDisconnect:
		s.close(ErrPeerDisconnected)
		return true
	}
	return false
}

func (s *Session) udpLoop() {
	defer s.wg.Done()
	buf := make([]byte, 64*1024)
	for {
		n, _, err := s.udp.ReadFromUDP(buf)
		if err != nil {
			return
		}
		f, err := protocol.ParseAudioFrame(buf[:n])
		if err != nil || f.StreamID != s.peerStreamID {
			continue
		}
		s.touch()
		if f.Punch() {
			continue
		}
		s.trackMu.Lock()
		s.tracker.Observe(f)
		s.trackMu.Unlock()

		d := mode.Decide(s.Mode(), mode.EventFrame)
		switch d.Action {
		case mode.ActionPlay:
			s.opts.Playback.Play(f.Payload)
		case mode.ActionRecord:
			s.recMu.Lock()
			if s.recorder == nil {
				// Frames beat the TALK_START on rare reorderings.
				s.recorder = audio.NewRecorder()
			}
			s.recorder.Append(f)
			s.recMu.Unlock()
		}
	}
}

func (s *Session) keepaliveLoop() {
	defer s.wg.Done()
	deadline := s.opts.KeepaliveInterval * time.Duration(s.opts.KeepaliveMisses)
	ticker := time.NewTicker(s.opts.KeepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			last := time.Unix(0, s.lastSeen.Load())
			if time.Since(last) > deadline {
				s.close(ErrPeerTimeout)
				return
			}
			ping, _ := protocol.NewMessage(protocol.TypePing, nil)
			if err := s.send(ping); err != nil {
				s.close(err)
				return
			}
			if dst := s.udpDst.Load(); dst != nil {
				// Keeps the NAT mapping warm between talk bursts.
				s.udp.WriteToUDP(s.framer.Punch().MarshalBinary(), dst)
			}
		}
	}
}

// LossStats reports received and out-of-order inbound frame counts.
func (s *Session) LossStats() (received, late uint64) {
	s.trackMu.Lock()
	defer s.trackMu.Unlock()
	received, late, _ = s.tracker.Stats()
	return received, late
}

func (s *Session) send(msg protocol.Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return protocol.WriteMessage(s.conn, msg)
}

func (s *Session) touch() {
	s.lastSeen.Store(time.Now().UnixNano())
}

// emit delivers an event without blocking the pumps; a full buffer drops
// the event. Recordings are the exception: the event carries the only
// reference to the finished message, so the send waits until the consumer
// drains or the session closes.
func (s *Session) emit(ev Event) {
	if ev.Kind == EventRecorded {
		select {
		case s.events <- ev:
		case <-s.done:
		}
		return
	}
	select {
	case s.events <- ev:
	default:
	}
}

func (s *Session) close(cause error) {
	s.closeOnce.Do(func() {
		s.closeErr = cause
		s.state.Store(int32(StateClosed))
		close(s.done)
		if s.conn != nil {
			s.conn.Close()
		}
		if s.udp != nil {
			s.udp.Close()
		}
		if cause != nil {
			s.log.Warn().Err(cause).Msg("session closed")
		} else {
			s.log.Info().Msg("session closed")
		}
		s.emit(Event{Kind: EventClosed, Err: cause})
	})
}

func randomStreamID() uint32 {
	var b [4]byte
	rand.Read(b[:])
	id := binary.BigEndian.Uint32(b[:])
	if id == 0 {
		id = 1
	}
	return id
}
