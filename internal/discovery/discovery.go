// Package discovery consumes local-network peer announcements. The session
// layer never browses the network itself; an external collaborator (mDNS,
// broadcast, anything) feeds PeerFound/PeerLost events and this package
// keeps the resolved address book.
package discovery

import (
	"sort"
	"strings"
	"sync"
)

// EventKind distinguishes peer arrival from departure.
type EventKind int

const (
	PeerFound EventKind = iota
	PeerLost
)

// Event is one discovery observation. Addr is only set on PeerFound.
type Event struct {
	Kind EventKind
	Name string
	Addr string
}

// Peer is a currently-known LAN peer.
type Peer struct {
	Name string
	Addr string
}

// Source is the discovery collaborator: anything that can emit a stream of
// events. Close stops the stream.
type Source interface {
	Events() <-chan Event
	Close() error
}

// Tracker folds discovery events into the current peer set.
type Tracker struct {
	mu    sync.RWMutex
	peers map[string]string
}

func NewTracker() *Tracker {
	return &Tracker{peers: make(map[string]string)}
}

// Apply folds one event into the set.
func (t *Tracker) Apply(ev Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch ev.Kind {
	case PeerFound:
		t.peers[ev.Name] = ev.Addr
	case PeerLost:
		delete(t.peers, ev.Name)
	}
}

// Run drains a source until its event channel closes.
func (t *Tracker) Run(src Source) {
	for ev := range src.Events() {
		t.Apply(ev)
	}
}

// Resolve returns the address a named peer was last seen at.
func (t *Tracker) Resolve(name string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	addr, ok := t.peers[name]
	return addr, ok
}

// Peers lists known peers sorted by name.
func (t *Tracker) Peers() []Peer {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Peer, 0, len(t.peers))
	for name, addr := range t.peers {
		out = append(out, Peer{Name: name, Addr: addr})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// StaticSource replays a fixed set of events, for tests and manual peer
// lists given on the command line.
type StaticSource struct {
	ch chan Event
}

func NewStaticSource(events ...Event) *StaticSource {
	ch := make(chan Event, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return &StaticSource{ch: ch}
}

func (s *StaticSource) Events() <-chan Event { return s.ch }
func (s *StaticSource) Close() error         { return nil }

// ParseList parses a manual peer list of the form
// "name=host:port,name=host:port" into PeerFound events. Malformed entries
// are skipped.
func ParseList(s string) []Event {
	var events []Event
	for _, entry := range strings.Split(s, ",") {
		name, addr, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok || name == "" || addr == "" {
			continue
		}
		events = append(events, Event{Kind: PeerFound, Name: name, Addr: addr})
	}
	return events
}
