package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthannam-fart/office-hours/internal/protocol"
)

func TestFramerSequencing(t *testing.T) {
	f := NewFramer(7)
	first := f.Next([]byte("a"))
	second := f.Next([]byte("b"))

	assert.Equal(t, uint32(7), first.StreamID)
	assert.Equal(t, uint32(1), first.Seq)
	assert.Equal(t, uint32(2), second.Seq)
}

func TestPunchConsumesNoSequence(t *testing.T) {
	f := NewFramer(3)
	p := f.Punch()
	assert.True(t, p.Punch())
	assert.Zero(t, p.Seq)

	next := f.Next([]byte("x"))
	assert.Equal(t, uint32(1), next.Seq)
}

func TestTrackerCountsLateFrames(t *testing.T) {
	var tr Tracker
	mk := func(seq uint32) protocol.AudioFrame {
		return protocol.AudioFrame{StreamID: 1, Seq: seq, Payload: []byte{0}}
	}

	assert.False(t, tr.Observe(mk(1)))
	assert.False(t, tr.Observe(mk(2)))
	assert.False(t, tr.Observe(mk(5)))
	assert.True(t, tr.Observe(mk(3)), "frame behind the high-water mark is late")
	assert.True(t, tr.Observe(mk(4)))

	received, late, highest := tr.Stats()
	assert.Equal(t, uint64(5), received)
	assert.Equal(t, uint64(2), late)
	assert.Equal(t, uint32(5), highest)
}

func TestRecorderKeepsArrivalOrder(t *testing.T) {
	r := NewRecorder()
	r.Append(protocol.AudioFrame{Seq: 3, Payload: []byte("c")})
	r.Append(protocol.AudioFrame{Seq: 1, Payload: []byte("a")})
	r.Append(protocol.AudioFrame{Seq: 2, Payload: []byte("b")})

	msg := r.Finalize()
	require.NotNil(t, msg)
	require.Len(t, msg.Frames, 3)
	assert.Equal(t, uint32(3), msg.Frames[0].Seq)
	assert.Equal(t, uint32(1), msg.Frames[1].Seq)
	assert.NotZero(t, msg.ID)
	assert.False(t, msg.Finished.Before(msg.Started))
}

func TestRecorderEmptyYieldsNil(t *testing.T) {
	r := NewRecorder()
	assert.Nil(t, r.Finalize())
}

func TestChunkSource(t *testing.T) {
	src := NewChunkSource(2)
	src.C <- []byte("one")
	require.NoError(t, src.Close())

	got, ok := <-src.Chunks()
	assert.True(t, ok)
	assert.Equal(t, []byte("one"), got)
	_, ok = <-src.Chunks()
	assert.False(t, ok)
}
