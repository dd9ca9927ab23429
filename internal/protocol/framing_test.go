package protocol

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageRoundTrip(t *testing.T) {
	var buf bytes.Buffer

	msg, err := NewMessage(TypeJoinRoom, JoinRoomPayload{Code: "OH-7KQ2"})
	require.NoError(t, err)
	require.NoError(t, WriteMessage(&buf, msg))

	got, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, TypeJoinRoom, got.Type)

	var p JoinRoomPayload
	require.NoError(t, got.DecodePayload(&p))
	assert.Equal(t, "OH-7KQ2", p.Code)
}

func TestMessageWithoutPayload(t *testing.T) {
	var buf bytes.Buffer
	msg, err := NewMessage(TypePing, nil)
	require.NoError(t, err)
	require.NoError(t, WriteMessage(&buf, msg))

	got, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, TypePing, got.Type)
	assert.Empty(t, got.Payload)
}

func TestReadFrameOversizedPrefix(t *testing.T) {
	var buf bytes.Buffer
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], MaxFrameSize+1)
	buf.Write(hdr[:])

	_, err := ReadFrame(&buf)
	require.ErrorIs(t, err, ErrProtocol)
}

func TestReadFrameTruncated(t *testing.T) {
	var buf bytes.Buffer
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], 100)
	buf.Write(hdr[:])
	buf.WriteString("short")

	_, err := ReadFrame(&buf)
	require.ErrorIs(t, err, ErrProtocol)
}

func TestWriteFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFrame(&buf, make([]byte, MaxFrameSize+1))
	require.ErrorIs(t, err, ErrProtocol)
	assert.Zero(t, buf.Len(), "nothing should hit the wire on a rejected frame")
}

func TestDecodeMessageMissingType(t *testing.T) {
	data, err := EncodeMessage(Message{})
	require.NoError(t, err)
	_, err = DecodeMessage(data)
	require.ErrorIs(t, err, ErrProtocol)
}

func TestDecodeMessageGarbage(t *testing.T) {
	_, err := DecodeMessage([]byte{0xff, 0x00, 0x13, 0x37})
	require.ErrorIs(t, err, ErrProtocol)
}

func TestSequentialFramesShareStream(t *testing.T) {
	var buf bytes.Buffer
	first, _ := NewMessage(TypeTalkStart, nil)
	second, _ := NewMessage(TypeTalkEnd, nil)
	require.NoError(t, WriteMessage(&buf, first))
	require.NoError(t, WriteMessage(&buf, second))

	got, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, TypeTalkStart, got.Type)
	got, err = ReadMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, TypeTalkEnd, got.Type)
}
