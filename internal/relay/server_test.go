package relay

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthannam-fart/office-hours/internal/config"
	"github.com/matthannam-fart/office-hours/internal/metrics"
	"github.com/matthannam-fart/office-hours/internal/protocol"
)

const testTimeout = 5 * time.Second

func testConfig(t *testing.T) *config.Relay {
	t.Helper()
	cfg, err := config.LoadRelay("")
	require.NoError(t, err)
	cfg.Bind.Address = "127.0.0.1"
	cfg.Bind.Port = 0
	cfg.HTTP.Address = "127.0.0.1:0"
	return cfg
}

func startServer(t *testing.T, cfg *config.Relay) *Server {
	t.Helper()
	srv := New(cfg, zerolog.Nop(), metrics.NewCollector())
	require.NoError(t, srv.Start())
	t.Cleanup(func() { srv.Close() })
	return srv
}

// testClient is a raw control-protocol client against a live server.
type testClient struct {
	t    *testing.T
	conn net.Conn
	br   *bufio.Reader
}

func dialControl(t *testing.T, srv *Server) *testClient {
	t.Helper()
	conn, err := net.Dial("tcp", srv.ControlAddr().String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &testClient{t: t, conn: conn, br: bufio.NewReader(conn)}
}

func (c *testClient) send(msgType string, payload any) {
	c.t.Helper()
	msg, err := protocol.NewMessage(msgType, payload)
	require.NoError(c.t, err)
	require.NoError(c.t, protocol.WriteMessage(c.conn, msg))
}

func (c *testClient) read() protocol.Message {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(testTimeout))
	msg, err := protocol.ReadMessage(c.br)
	require.NoError(c.t, err)
	return msg
}

func (c *testClient) expect(msgType string) protocol.Message {
	c.t.Helper()
	msg := c.read()
	require.Equal(c.t, msgType, msg.Type)
	return msg
}

// pairSession creates a room with one client and joins with another,
// returning both joined payloads.
func pairSession(t *testing.T, srv *Server) (*testClient, *testClient, protocol.RoomJoinedPayload, protocol.RoomJoinedPayload) {
	t.Helper()
	creator := dialControl(t, srv)
	creator.send(protocol.TypeCreateRoom, nil)
	var created protocol.RoomCreatedPayload
	require.NoError(t, creator.expect(protocol.TypeRoomCreated).DecodePayload(&created))

	joiner := dialControl(t, srv)
	joiner.send(protocol.TypeJoinRoom, protocol.JoinRoomPayload{Code: created.Code})

	var creatorJoined, joinerJoined protocol.RoomJoinedPayload
	require.NoError(t, creator.expect(protocol.TypeRoomJoined).DecodePayload(&creatorJoined))
	require.NoError(t, joiner.expect(protocol.TypeRoomJoined).DecodePayload(&joinerJoined))
	return creator, joiner, creatorJoined, joinerJoined
}

func TestCreateAndJoinPairsSession(t *testing.T) {
	srv := startServer(t, testConfig(t))
	_, _, a, b := pairSession(t, srv)

	assert.Equal(t, a.Code, b.Code)
	assert.Equal(t, a.SessionID, b.SessionID)
	assert.Equal(t, a.StreamID, b.PeerStreamID)
	assert.Equal(t, b.StreamID, a.PeerStreamID)
	assert.NotEqual(t, a.StreamID, b.StreamID)
	assert.NotZero(t, a.StreamID)
}

func TestJoinUnknownRoomKeepsConnectionOpen(t *testing.T) {
	srv := startServer(t, testConfig(t))
	c := dialControl(t, srv)

	c.send(protocol.TypeJoinRoom, protocol.JoinRoomPayload{Code: "OH-ZZZZ"})
	c.expect(protocol.TypeRoomNotFound)

	// Still usable for a retry.
	c.send(protocol.TypePing, nil)
	c.expect(protocol.TypePong)
}

func TestThirdJoinOnPairedRoomReportsFull(t *testing.T) {
	srv := startServer(t, testConfig(t))
	a, b, joined, _ := pairSession(t, srv)

	late := dialControl(t, srv)
	late.send(protocol.TypeJoinRoom, protocol.JoinRoomPayload{Code: joined.Code})
	late.expect(protocol.TypeRoomFull)

	// The running session is unaffected.
	a.send(protocol.TypeTalkStart, nil)
	b.expect(protocol.TypeTalkStart)
}

func TestDuplicateCreateRepeatsAssignment(t *testing.T) {
	srv := startServer(t, testConfig(t))
	c := dialControl(t, srv)

	c.send(protocol.TypeCreateRoom, nil)
	var first protocol.RoomCreatedPayload
	require.NoError(t, c.expect(protocol.TypeRoomCreated).DecodePayload(&first))

	c.send(protocol.TypeCreateRoom, nil)
	var second protocol.RoomCreatedPayload
	require.NoError(t, c.expect(protocol.TypeRoomCreated).DecodePayload(&second))
	assert.Equal(t, first.Code, second.Code)
}

func TestControlForwardedVerbatim(t *testing.T) {
	srv := startServer(t, testConfig(t))
	a, b, _, _ := pairSession(t, srv)

	a.send(protocol.TypeTalkStart, nil)
	b.expect(protocol.TypeTalkStart)

	b.send(protocol.TypePeerMode, protocol.PeerModePayload{Mode: "RECORD"})
	var pm protocol.PeerModePayload
	require.NoError(t, a.expect(protocol.TypePeerMode).DecodePayload(&pm))
	assert.Equal(t, "RECORD", pm.Mode)

	// Unknown types pass through untouched too.
	a.send("FUTURE_EXTENSION", nil)
	b.expect("FUTURE_EXTENSION")
}

func TestDisconnectTearsDownBothSides(t *testing.T) {
	srv := startServer(t, testConfig(t))
	a, b, joined, _ := pairSession(t, srv)

	a.send(protocol.TypeDisconnect, nil)
	b.expect(protocol.TypeDisconnect)

	// Both connections die with the session.
	b.conn.SetReadDeadline(time.Now().Add(testTimeout))
	_, err := protocol.ReadMessage(b.br)
	assert.Error(t, err)
	a.conn.SetReadDeadline(time.Now().Add(testTimeout))
	_, err = protocol.ReadMessage(a.br)
	assert.Error(t, err)

	// Teardown released the code.
	late := dialControl(t, srv)
	late.send(protocol.TypeJoinRoom, protocol.JoinRoomPayload{Code: joined.Code})
	late.expect(protocol.TypeRoomNotFound)
}

func TestMalformedFrameDropsConnection(t *testing.T) {
	srv := startServer(t, testConfig(t))
	c := dialControl(t, srv)

	// Length prefix far beyond the frame limit.
	_, err := c.conn.Write([]byte{0xff, 0xff, 0xff, 0xff})
	require.NoError(t, err)

	c.conn.SetReadDeadline(time.Now().Add(testTimeout))
	_, err = io.ReadAll(c.conn)
	assert.NoError(t, err, "server should close the connection cleanly")
}

func TestUDPAudioForwarding(t *testing.T) {
	srv := startServer(t, testConfig(t))
	_, _, aJoined, bJoined := pairSession(t, srv)

	relayAddr := &net.UDPAddr{
		IP:   net.ParseIP("127.0.0.1"),
		Port: srv.ControlAddr().(*net.TCPAddr).Port,
	}

	aSock, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	defer aSock.Close()
	bSock, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	defer bSock.Close()

	// Punch datagrams teach the relay each side's source address.
	punchA := protocol.AudioFrame{StreamID: aJoined.StreamID}
	punchB := protocol.AudioFrame{StreamID: bJoined.StreamID}
	_, err = aSock.WriteToUDP(punchA.MarshalBinary(), relayAddr)
	require.NoError(t, err)
	_, err = bSock.WriteToUDP(punchB.MarshalBinary(), relayAddr)
	require.NoError(t, err)

	// Give the forwarder a moment to learn both endpoints, then stream.
	time.Sleep(100 * time.Millisecond)

	want := protocol.AudioFrame{StreamID: aJoined.StreamID, Seq: 1, Payload: []byte("chunk-1")}
	deadline := time.Now().Add(testTimeout)
	buf := make([]byte, protocol.MaxDatagramSize)
	for {
		require.True(t, time.Now().Before(deadline), "audio frame never arrived")
		aSock.WriteToUDP(want.MarshalBinary(), relayAddr)

		bSock.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, _, err := bSock.ReadFromUDP(buf)
		if err != nil {
			continue
		}
		got, err := protocol.ParseAudioFrame(buf[:n])
		require.NoError(t, err)
		assert.Equal(t, want.StreamID, got.StreamID)
		assert.Equal(t, want.Seq, got.Seq)
		assert.Equal(t, want.Payload, got.Payload)
		return
	}
}

func TestIdleRoomIsSweptWithTimeout(t *testing.T) {
	cfg := testConfig(t)
	cfg.Rooms.IdleTimeout = 100 * time.Millisecond
	cfg.Rooms.SweepInterval = 50 * time.Millisecond
	srv := startServer(t, cfg)

	c := dialControl(t, srv)
	c.send(protocol.TypeCreateRoom, nil)
	var created protocol.RoomCreatedPayload
	require.NoError(t, c.expect(protocol.TypeRoomCreated).DecodePayload(&created))

	c.expect(protocol.TypeRoomTimeout)

	// The code is gone afterwards.
	late := dialControl(t, srv)
	late.send(protocol.TypeJoinRoom, protocol.JoinRoomPayload{Code: created.Code})
	late.expect(protocol.TypeRoomNotFound)
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	srv := startServer(t, testConfig(t))
	base := fmt.Sprintf("http://%s", srv.HTTPAddr())

	resp, err := http.Get(base + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "OK")

	resp2, err := http.Get(base + "/metrics")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)
	metricsBody, _ := io.ReadAll(resp2.Body)
	assert.Contains(t, string(metricsBody), "relay_rooms_created_total")
}
