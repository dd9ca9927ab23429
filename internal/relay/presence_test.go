package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthannam-fart/office-hours/internal/protocol"
)

func register(t *testing.T, srv *Server, id, name, mode string) *testClient {
	t.Helper()
	c := dialControl(t, srv)
	c.send(protocol.TypeRegister, protocol.RegisterPayload{UserID: id, Name: name, Mode: mode})
	c.expect(protocol.TypeRegistered)
	return c
}

// nextPresenceUpdate skips interleaved messages until a user-list broadcast
// arrives.
func nextPresenceUpdate(t *testing.T, c *testClient) protocol.PresenceUpdatePayload {
	t.Helper()
	for {
		msg := c.read()
		if msg.Type != protocol.TypePresenceUpdate {
			continue
		}
		var up protocol.PresenceUpdatePayload
		require.NoError(t, msg.DecodePayload(&up))
		return up
	}
}

func userIDs(up protocol.PresenceUpdatePayload) []string {
	ids := make([]string, len(up.Users))
	for i, u := range up.Users {
		ids[i] = u.UserID
	}
	return ids
}

func TestRegisterBroadcastsUserList(t *testing.T) {
	srv := startServer(t, testConfig(t))

	alice := register(t, srv, "alice-1", "Alice", "LIVE")
	up := nextPresenceUpdate(t, alice)
	assert.ElementsMatch(t, []string{"alice-1"}, userIDs(up))

	bob := register(t, srv, "bob-1", "Bob", "RECORD")
	up = nextPresenceUpdate(t, bob)
	assert.ElementsMatch(t, []string{"alice-1", "bob-1"}, userIDs(up))

	// Alice sees the same expanded list.
	up = nextPresenceUpdate(t, alice)
	assert.ElementsMatch(t, []string{"alice-1", "bob-1"}, userIDs(up))
}

func TestModeUpdateRebroadcasts(t *testing.T) {
	srv := startServer(t, testConfig(t))
	alice := register(t, srv, "alice-1", "Alice", "LIVE")
	nextPresenceUpdate(t, alice)

	alice.send(protocol.TypeModeUpdate, protocol.PeerModePayload{Mode: "UNAVAILABLE"})
	up := nextPresenceUpdate(t, alice)
	require.Len(t, up.Users, 1)
	assert.Equal(t, "UNAVAILABLE", up.Users[0].Mode)
}

func TestDisconnectPrunesAndRebroadcasts(t *testing.T) {
	srv := startServer(t, testConfig(t))
	alice := register(t, srv, "alice-1", "Alice", "LIVE")
	bob := register(t, srv, "bob-1", "Bob", "LIVE")
	nextPresenceUpdate(t, alice)

	bob.send(protocol.TypeDisconnect, nil)

	for {
		up := nextPresenceUpdate(t, alice)
		if len(up.Users) == 1 {
			assert.Equal(t, "alice-1", up.Users[0].UserID)
			return
		}
	}
}

func TestBrokeredCallHandshake(t *testing.T) {
	srv := startServer(t, testConfig(t))
	caller := register(t, srv, "caller-1", "Caller", "LIVE")
	callee := register(t, srv, "callee-1", "Callee", "LIVE")

	caller.send(protocol.TypeConnectTo, protocol.ConnectToPayload{TargetID: "callee-1", Name: "Caller"})

	// Caller is pointed at the reserved room as creator.
	var callerRoom protocol.ConnectRoomPayload
	for {
		msg := caller.read()
		if msg.Type != protocol.TypeConnectRoom {
			continue
		}
		require.NoError(t, msg.DecodePayload(&callerRoom))
		break
	}
	assert.Equal(t, "creator", callerRoom.Role)
	assert.NotEmpty(t, callerRoom.Code)

	// Callee gets the ring with the same code.
	var req protocol.ConnectionRequestPayload
	for {
		msg := callee.read()
		if msg.Type != protocol.TypeConnectionRequest {
			continue
		}
		require.NoError(t, msg.DecodePayload(&req))
		break
	}
	assert.Equal(t, callerRoom.Code, req.Code)
	assert.Equal(t, "caller-1", req.FromID)
	assert.Equal(t, "Caller", req.FromName)

	// Accepting routes the callee to the same room as joiner.
	callee.send(protocol.TypeAcceptConnection, protocol.AcceptConnectionPayload{Code: req.Code})
	var calleeRoom protocol.ConnectRoomPayload
	for {
		msg := callee.read()
		if msg.Type != protocol.TypeConnectRoom {
			continue
		}
		require.NoError(t, msg.DecodePayload(&calleeRoom))
		break
	}
	assert.Equal(t, "joiner", calleeRoom.Role)
	assert.Equal(t, callerRoom.Code, calleeRoom.Code)
}

func TestRejectReachesCaller(t *testing.T) {
	srv := startServer(t, testConfig(t))
	caller := register(t, srv, "caller-1", "Caller", "LIVE")
	callee := register(t, srv, "callee-1", "Callee", "UNAVAILABLE")

	caller.send(protocol.TypeConnectTo, protocol.ConnectToPayload{TargetID: "callee-1"})
	for {
		if caller.read().Type == protocol.TypeConnectRoom {
			break
		}
	}
	var req protocol.ConnectionRequestPayload
	for {
		msg := callee.read()
		if msg.Type == protocol.TypeConnectionRequest {
			require.NoError(t, msg.DecodePayload(&req))
			break
		}
	}

	callee.send(protocol.TypeRejectConnection, protocol.RejectConnectionPayload{FromID: req.FromID})
	for {
		if caller.read().Type == protocol.TypeConnectionRejected {
			return
		}
	}
}

func TestConnectToUnknownUser(t *testing.T) {
	srv := startServer(t, testConfig(t))
	caller := register(t, srv, "caller-1", "Caller", "LIVE")

	caller.send(protocol.TypeConnectTo, protocol.ConnectToPayload{TargetID: "ghost"})
	for {
		msg := caller.read()
		if msg.Type != protocol.TypeError {
			continue
		}
		var ep protocol.ErrorPayload
		require.NoError(t, msg.DecodePayload(&ep))
		assert.Contains(t, ep.Message, "not found")
		return
	}
}
