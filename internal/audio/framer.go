// Package audio packetizes captured audio onto the datagram channel and
// collects inbound frames. Device capture and playback are external
// collaborators behind the Capture and Playback interfaces.
package audio

import (
	"sync/atomic"
	"time"

	"github.com/matthannam-fart/office-hours/internal/protocol"
)

// Framer turns fixed-duration audio chunks into sequenced frames for one
// outbound stream. Safe for a single producer; the sequence counter is
// atomic so punch frames can be emitted from another goroutine.
type Framer struct {
	streamID uint32
	seq      atomic.Uint32
}

func NewFramer(streamID uint32) *Framer {
	return &Framer{streamID: streamID}
}

func (f *Framer) StreamID() uint32 { return f.streamID }

// Next wraps one encoded chunk into the next frame of the stream.
func (f *Framer) Next(payload []byte) protocol.AudioFrame {
	return protocol.AudioFrame{
		StreamID:  f.streamID,
		Seq:       f.seq.Add(1),
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// Punch returns an empty frame used to open and keep alive the NAT mapping
// toward the relay. It consumes no sequence number.
func (f *Framer) Punch() protocol.AudioFrame {
	return protocol.AudioFrame{StreamID: f.streamID, Timestamp: time.Now()}
}

// Tracker observes inbound sequence numbers for loss/reorder accounting.
// Frames are delivered regardless of order; the tracker only keeps
// statistics, it never holds a frame back.
type Tracker struct {
	highest  uint32
	received uint64
	late     uint64
}

// Observe records one arrived frame and reports whether it is late
// (sequenced before the highest frame already seen).
func (t *Tracker) Observe(f protocol.AudioFrame) bool {
	t.received++
	if f.Seq > t.highest {
		t.highest = f.Seq
		return false
	}
	t.late++
	return true
}

// Stats returns frames received, frames that arrived out of order, and the
// highest sequence number seen.
func (t *Tracker) Stats() (received, late uint64, highest uint32) {
	return t.received, t.late, t.highest
}
