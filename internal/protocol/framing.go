package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// MaxFrameSize bounds a single control frame. Control messages are small;
// anything bigger is a corrupted or hostile length prefix.
const MaxFrameSize = 1 << 20

// ErrProtocol reports a malformed frame. The connection that produced it
// must be dropped; there is no way to resynchronize a length-prefixed
// stream after a bad prefix.
var ErrProtocol = errors.New("protocol: malformed frame")

// WriteFrame writes data as a 4-byte big-endian length prefix followed by
// the data itself. Callers serialize concurrent writers themselves.
func WriteFrame(w io.Writer, data []byte) error {
	if len(data) > MaxFrameSize {
		return fmt.Errorf("%w: frame of %d bytes exceeds limit", ErrProtocol, len(data))
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(data)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

// ReadFrame reads one length-prefixed frame. It returns ErrProtocol when the
// prefix is out of range, and the underlying read error (io.EOF on a clean
// close) otherwise.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > MaxFrameSize {
		return nil, fmt.Errorf("%w: length prefix %d exceeds limit", ErrProtocol, n)
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: truncated frame", ErrProtocol)
		}
		return nil, err
	}
	return data, nil
}

// WriteMessage encodes m and writes it as one frame.
func WriteMessage(w io.Writer, m Message) error {
	data, err := msgpack.Marshal(m)
	if err != nil {
		return err
	}
	return WriteFrame(w, data)
}

// ReadMessage reads one frame and decodes it as a Message.
func ReadMessage(r io.Reader) (Message, error) {
	data, err := ReadFrame(r)
	if err != nil {
		return Message{}, err
	}
	return DecodeMessage(data)
}

// DecodeMessage decodes a single already-unframed control message, as
// received from transports that carry their own message boundaries.
func DecodeMessage(data []byte) (Message, error) {
	var m Message
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if m.Type == "" {
		return Message{}, fmt.Errorf("%w: missing message type", ErrProtocol)
	}
	return m, nil
}

// EncodeMessage encodes m without framing, for transports that carry their
// own message boundaries.
func EncodeMessage(m Message) ([]byte, error) {
	return msgpack.Marshal(m)
}
