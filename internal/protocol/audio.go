package protocol

import (
	"encoding/binary"
	"fmt"
	"time"
)

const (
	// AudioHeaderSize is the fixed datagram header: stream id + sequence.
	AudioHeaderSize = 8

	// MaxDatagramSize bounds one audio datagram, header included.
	MaxDatagramSize = 4096
)

// AudioFrame is one fixed-duration chunk of encoded audio. Frames ride an
// unreliable datagram channel: they are never retransmitted, and receivers
// accept them in whatever order they arrive. A frame with an empty payload
// is a NAT punch / keepalive and carries no audio.
type AudioFrame struct {
	StreamID uint32
	Seq      uint32
	Payload  []byte

	// Timestamp is local bookkeeping (capture time on the sender, arrival
	// time on the receiver); it is not part of the wire format.
	Timestamp time.Time
}

// Punch reports whether the frame is a punch/keepalive datagram.
func (f AudioFrame) Punch() bool { return len(f.Payload) == 0 }

// MarshalBinary encodes the frame into the wire layout.
func (f AudioFrame) MarshalBinary() []byte {
	buf := make([]byte, AudioHeaderSize+len(f.Payload))
	binary.BigEndian.PutUint32(buf[0:4], f.StreamID)
	binary.BigEndian.PutUint32(buf[4:8], f.Seq)
	copy(buf[AudioHeaderSize:], f.Payload)
	return buf
}

// ParseAudioFrame decodes one datagram. The payload is copied out of the
// receive buffer so callers may reuse it.
func ParseAudioFrame(data []byte) (AudioFrame, error) {
	if len(data) < AudioHeaderSize {
		return AudioFrame{}, fmt.Errorf("%w: datagram of %d bytes", ErrProtocol, len(data))
	}
	payload := make([]byte, len(data)-AudioHeaderSize)
	copy(payload, data[AudioHeaderSize:])
	return AudioFrame{
		StreamID:  binary.BigEndian.Uint32(data[0:4]),
		Seq:       binary.BigEndian.Uint32(data[4:8]),
		Payload:   payload,
		Timestamp: time.Now(),
	}, nil
}
