// Package mode implements the client's availability state and the local
// policy it dictates for inbound talk traffic. The policy is a pure function
// over (current mode, inbound event) so it behaves identically on direct and
// relayed sessions.
package mode

import (
	"fmt"
	"strings"

	"github.com/matthannam-fart/office-hours/internal/protocol"
)

// Mode is a client's locally declared availability. It is mutated only by
// the local cycle command, but every transition is announced to the current
// session peer so the remote UI can reflect it.
type Mode string

const (
	// Live plays inbound audio as it arrives.
	Live Mode = "LIVE"
	// Record captures inbound audio to a recorded message instead of
	// playing it.
	Record Mode = "RECORD"
	// Unavailable rejects inbound talk with a peer-unavailable notice.
	Unavailable Mode = "UNAVAILABLE"
)

// Next returns the successor in the fixed cycle LIVE → RECORD → UNAVAILABLE.
func (m Mode) Next() Mode {
	switch m {
	case Live:
		return Record
	case Record:
		return Unavailable
	default:
		return Live
	}
}

func (m Mode) Valid() bool {
	return m == Live || m == Record || m == Unavailable
}

func (m Mode) String() string { return string(m) }

// Parse accepts a mode name case-insensitively.
func Parse(s string) (Mode, error) {
	m := Mode(strings.ToUpper(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("unknown mode %q", s)
	}
	return m, nil
}

// Event is an inbound session-layer occurrence the policy reacts to.
type Event int

const (
	// EventTalkStart is the peer's TALK_START control message.
	EventTalkStart Event = iota
	// EventFrame is one inbound audio frame.
	EventFrame
	// EventTalkEnd is the peer's TALK_END control message.
	EventTalkEnd
)

// Action is what the session layer should do locally.
type Action int

const (
	ActionNone Action = iota
	// ActionPlay hands the frame to the playback path.
	ActionPlay
	// ActionStartRecording opens a new recorded message.
	ActionStartRecording
	// ActionRecord appends the frame to the open recorded message.
	ActionRecord
	// ActionFinishRecording finalizes the open recorded message.
	ActionFinishRecording
	// ActionDrop discards the frame or event.
	ActionDrop
)

// Decision pairs the local action with an optional control message type to
// send back to the peer. The wire protocol itself is mode-agnostic; Notify
// is the one exception, the synthetic peer-unavailable notice.
type Decision struct {
	Action Action
	Notify string
}

// Decide maps an inbound event to local handling under mode m.
func Decide(m Mode, ev Event) Decision {
	switch m {
	case Record:
		switch ev {
		case EventTalkStart:
			return Decision{Action: ActionStartRecording}
		case EventFrame:
			return Decision{Action: ActionRecord}
		case EventTalkEnd:
			return Decision{Action: ActionFinishRecording}
		}
	case Unavailable:
		if ev == EventTalkStart {
			return Decision{Action: ActionDrop, Notify: protocol.TypeUnavailable}
		}
		return Decision{Action: ActionDrop}
	default: // Live
		if ev == EventFrame {
			return Decision{Action: ActionPlay}
		}
	}
	return Decision{Action: ActionNone}
}
