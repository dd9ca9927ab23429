package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrackerFoldsEvents(t *testing.T) {
	tr := NewTracker()
	tr.Apply(Event{Kind: PeerFound, Name: "desk", Addr: "192.168.1.20:50000"})
	tr.Apply(Event{Kind: PeerFound, Name: "lab", Addr: "192.168.1.30:50000"})

	addr, ok := tr.Resolve("desk")
	assert.True(t, ok)
	assert.Equal(t, "192.168.1.20:50000", addr)

	tr.Apply(Event{Kind: PeerLost, Name: "desk"})
	_, ok = tr.Resolve("desk")
	assert.False(t, ok)
}

func TestTrackerRunDrainsStaticSource(t *testing.T) {
	src := NewStaticSource(
		Event{Kind: PeerFound, Name: "desk", Addr: "10.0.0.1:50000"},
		Event{Kind: PeerFound, Name: "lab", Addr: "10.0.0.2:50000"},
		Event{Kind: PeerLost, Name: "desk"},
	)
	tr := NewTracker()
	tr.Run(src)

	peers := tr.Peers()
	assert.Equal(t, []Peer{{Name: "lab", Addr: "10.0.0.2:50000"}}, peers)
}

func TestPeersSortedByName(t *testing.T) {
	tr := NewTracker()
	tr.Apply(Event{Kind: PeerFound, Name: "zeta", Addr: "a"})
	tr.Apply(Event{Kind: PeerFound, Name: "alpha", Addr: "b"})

	peers := tr.Peers()
	assert.Equal(t, "alpha", peers[0].Name)
	assert.Equal(t, "zeta", peers[1].Name)
}

func TestPeerFoundUpdatesAddress(t *testing.T) {
	tr := NewTracker()
	tr.Apply(Event{Kind: PeerFound, Name: "desk", Addr: "10.0.0.1:50000"})
	tr.Apply(Event{Kind: PeerFound, Name: "desk", Addr: "10.0.0.9:50000"})

	addr, _ := tr.Resolve("desk")
	assert.Equal(t, "10.0.0.9:50000", addr)
}

func TestParseList(t *testing.T) {
	events := ParseList("desk=10.0.0.1:50000, lab=10.0.0.2:50000")
	assert.Len(t, events, 2)
	assert.Equal(t, Event{Kind: PeerFound, Name: "desk", Addr: "10.0.0.1:50000"}, events[0])
	assert.Equal(t, Event{Kind: PeerFound, Name: "lab", Addr: "10.0.0.2:50000"}, events[1])
}

func TestParseListSkipsMalformed(t *testing.T) {
	events := ParseList("desk=10.0.0.1:50000,,justaname,=noname,")
	assert.Len(t, events, 1)
	assert.Equal(t, "desk", events[0].Name)
}

func TestParseListEmpty(t *testing.T) {
	assert.Empty(t, ParseList(""))
}
