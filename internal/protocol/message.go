package protocol

import "github.com/vmihailenco/msgpack/v5"

// Control message types exchanged over the reliable stream. Both directions
// of a session use the same vocabulary; unrecognized types are ignored by
// receivers so new types can be added without breaking old clients.
const (
	TypeHello        = "HELLO"
	TypeCreateRoom   = "CREATE_ROOM"
	TypeJoinRoom     = "JOIN_ROOM"
	TypeRoomCreated  = "ROOM_CREATED"
	TypeRoomJoined   = "ROOM_JOINED"
	TypeRoomFull     = "ROOM_FULL_ERROR"
	TypeRoomNotFound = "ROOM_NOT_FOUND_ERROR"
	TypeRoomTimeout  = "ROOM_TIMEOUT"
	TypePeerMode     = "PEER_MODE"
	TypeTalkStart    = "TALK_START"
	TypeTalkEnd      = "TALK_END"
	TypeUnavailable  = "PEER_UNAVAILABLE"
	TypeUDPRegister  = "UDP_REGISTER"
	TypeDisconnect   = "DISCONNECT"
	TypePing         = "PING"
	TypePong         = "PONG"
)

// Presence channel message types (second control connection to the relay).
const (
	TypeRegister           = "REGISTER"
	TypeRegistered         = "REGISTERED"
	TypeModeUpdate         = "MODE_UPDATE"
	TypePresenceUpdate     = "PRESENCE_UPDATE"
	TypeConnectTo          = "CONNECT_TO"
	TypeConnectRoom        = "CONNECT_ROOM"
	TypeConnectionRequest  = "CONNECTION_REQUEST"
	TypeAcceptConnection   = "ACCEPT_CONNECTION"
	TypeRejectConnection   = "REJECT_CONNECTION"
	TypeConnectionRejected = "CONNECTION_REJECTED"
	TypeCancelConnection   = "CANCEL_CONNECTION"
	TypeError              = "ERROR"
)

// Message is a single control-channel message. It travels inside a
// length-prefixed frame; the payload is a nested msgpack document whose
// shape depends on Type.
type Message struct {
	Type    string             `msgpack:"type"`
	Payload msgpack.RawMessage `msgpack:"payload,omitempty"`
}

// NewMessage builds a Message with an encoded payload.
func NewMessage(t string, payload any) (Message, error) {
	if payload == nil {
		return Message{Type: t}, nil
	}
	b, err := msgpack.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: t, Payload: b}, nil
}

// DecodePayload decodes the message payload into the provided struct.
func (m Message) DecodePayload(v any) error {
	return msgpack.Unmarshal(m.Payload, v)
}

// HelloPayload is exchanged on direct connections before the session is
// considered established.
type HelloPayload struct {
	Name     string `msgpack:"name"`
	UserID   string `msgpack:"userId"`
	StreamID uint32 `msgpack:"streamId"`
	UDPPort  int    `msgpack:"udpPort"`
	Mode     string `msgpack:"mode"`
}

// JoinRoomPayload carries the room code a client wants to join.
type JoinRoomPayload struct {
	Code string `msgpack:"code"`
}

// RoomCreatedPayload is the relay's reply to CREATE_ROOM.
type RoomCreatedPayload struct {
	Code string `msgpack:"code"`
}

// RoomJoinedPayload is sent to both occupants when a room is promoted to a
// session. StreamID identifies this side's audio datagrams; PeerStreamID
// identifies the remote side's.
type RoomJoinedPayload struct {
	Code         string `msgpack:"code"`
	SessionID    string `msgpack:"sessionId"`
	StreamID     uint32 `msgpack:"streamId"`
	PeerStreamID uint32 `msgpack:"peerStreamId"`
}

// PeerModePayload announces a mode transition to the session peer.
type PeerModePayload struct {
	Mode string `msgpack:"mode"`
}

// UDPRegisterPayload declares the local UDP port a relayed client will send
// audio from. The relay combines it with the control connection's source IP
// for the initial forwarding target.
type UDPRegisterPayload struct {
	Port int `msgpack:"port"`
}

// ErrorPayload carries a human-readable reason on error-class messages.
type ErrorPayload struct {
	Message string `msgpack:"message"`
}

// RegisterPayload registers a client on the presence channel.
type RegisterPayload struct {
	UserID string `msgpack:"userId"`
	Name   string `msgpack:"name"`
	Mode   string `msgpack:"mode"`
}

// PresenceUser is one entry of a presence broadcast.
type PresenceUser struct {
	UserID string `msgpack:"userId"`
	Name   string `msgpack:"name"`
	Mode   string `msgpack:"mode"`
}

// PresenceUpdatePayload is broadcast to all registered clients whenever the
// online-user set or any user's mode changes.
type PresenceUpdatePayload struct {
	Users []PresenceUser `msgpack:"users"`
}

// ConnectToPayload asks the relay to broker a call to another online user.
type ConnectToPayload struct {
	TargetID string `msgpack:"targetId"`
	Name     string `msgpack:"name"`
}

// ConnectRoomPayload tells a presence client which room to join for a
// brokered call.
type ConnectRoomPayload struct {
	Code string `msgpack:"code"`
	Role string `msgpack:"role"`
}

// ConnectionRequestPayload notifies the callee of an incoming call request.
type ConnectionRequestPayload struct {
	Code     string `msgpack:"code"`
	FromID   string `msgpack:"fromId"`
	FromName string `msgpack:"fromName"`
}

// AcceptConnectionPayload accepts an incoming call request.
type AcceptConnectionPayload struct {
	Code string `msgpack:"code"`
}

// RejectConnectionPayload declines an incoming call request.
type RejectConnectionPayload struct {
	FromID string `msgpack:"fromId"`
}
