package session

import (
	"github.com/matthannam-fart/office-hours/internal/audio"
	"github.com/matthannam-fart/office-hours/internal/mode"
)

// EventKind classifies session events delivered to the UI layer.
type EventKind int

const (
	// EventEstablished fires once when the session reaches ESTABLISHED.
	EventEstablished EventKind = iota
	// EventPeerMode carries the peer's announced mode change.
	EventPeerMode
	// EventPeerTalkStart announces an inbound talk burst beginning.
	EventPeerTalkStart
	// EventPeerTalkEnd announces an inbound talk burst ending.
	EventPeerTalkEnd
	// EventRecorded delivers a finalized recorded message.
	EventRecorded
	// EventPeerUnavailable reports that the peer declined inbound talk.
	EventPeerUnavailable
	// EventError reports a non-fatal error message from the peer or relay.
	EventError
	// EventClosed fires once when the session reaches CLOSED. Err carries
	// the cause, nil on a locally requested disconnect.
	EventClosed
)

// Event is one session-layer occurrence. Fields beyond Kind are populated
// only where they apply.
type Event struct {
	Kind      EventKind
	Mode      mode.Mode
	Message   string
	Recording *audio.RecordedMessage
	Err       error
}
