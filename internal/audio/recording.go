package audio

import (
	"time"

	"github.com/google/uuid"

	"github.com/matthannam-fart/office-hours/internal/protocol"
)

// RecordedMessage is an answering-machine recording: the inbound frames of
// one talk burst, kept in arrival order. It lives in memory only; call
// history is not persisted.
type RecordedMessage struct {
	ID       uuid.UUID
	Started  time.Time
	Finished time.Time
	Frames   []protocol.AudioFrame
}

// Duration is wall-clock capture time, not decoded audio length.
func (m *RecordedMessage) Duration() time.Duration {
	return m.Finished.Sub(m.Started)
}

// Recorder accumulates frames between a talk start and talk end while the
// local mode is RECORD.
type Recorder struct {
	msg *RecordedMessage
}

func NewRecorder() *Recorder {
	return &Recorder{msg: &RecordedMessage{
		ID:      uuid.New(),
		Started: time.Now(),
	}}
}

// Append stores one inbound frame. Arrival order is preserved even when
// sequence numbers are out of order; recency is not a concern for stored
// messages.
func (r *Recorder) Append(f protocol.AudioFrame) {
	r.msg.Frames = append(r.msg.Frames, f)
}

// Finalize closes the recording and returns it, or nil when nothing was
// captured.
func (r *Recorder) Finalize() *RecordedMessage {
	r.msg.Finished = time.Now()
	if len(r.msg.Frames) == 0 {
		return nil
	}
	return r.msg
}
