// Package rooms matches pairs of clients by short shared room codes. The
// registry is the rendezvous point of the relay: the first occupant opens a
// room, the second promotes it to a session. The code stays claimed until
// the relay removes it at session teardown.
package rooms

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrNotFound reports a join against a code with no open room.
	ErrNotFound = errors.New("rooms: room not found")
	// ErrFull reports a join against a room that already has two occupants.
	ErrFull = errors.New("rooms: room is full")
	// ErrExhausted reports that no unused code could be generated.
	ErrExhausted = errors.New("rooms: code space exhausted")
)

const createAttempts = 64

// Room holds at most two occupant handles. Occupant handles are opaque to
// the registry; the relay stores its connection wrappers in them.
type Room struct {
	Code      string
	CreatedAt time.Time

	mu        sync.Mutex
	occupants [2]any
	count     int
	closed    bool
	paired    chan struct{}
}

func newRoom(code string) *Room {
	return &Room{
		Code:      code,
		CreatedAt: time.Now(),
		paired:    make(chan struct{}),
	}
}

// add admits one occupant. The per-room lock makes concurrent joins on the
// same code linearizable: exactly one caller becomes the second occupant.
func (r *Room) add(occ any) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, ErrNotFound
	}
	if r.count >= 2 {
		return 0, ErrFull
	}
	idx := r.count
	r.occupants[idx] = occ
	r.count++
	if r.count == 2 {
		close(r.paired)
	}
	return idx, nil
}

// Paired is closed when the second occupant arrives. Waiters select on it
// together with their own timeouts.
func (r *Room) Paired() <-chan struct{} { return r.paired }

// Occupants returns both occupant handles; the second is nil until the room
// is paired.
func (r *Room) Occupants() (any, any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.occupants[0], r.occupants[1]
}

func (r *Room) isPaired() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count == 2
}

func (r *Room) close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

// Registry tracks all open rooms by code. The map lock only guards lookups
// and insertion; admission control are the per-room locks, so unrelated
// codes never contend.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*Room)}
}

// Create opens a room with occ as sole occupant and returns it with a fresh
// code. Fails only when the code space is effectively exhausted.
func (reg *Registry) Create(occ any) (*Room, error) {
	room, err := reg.Reserve()
	if err != nil {
		return nil, err
	}
	if _, err := room.add(occ); err != nil {
		return nil, err
	}
	return room, nil
}

// Reserve opens an empty room, used when the relay brokers a call through
// the presence channel and both parties will join by code.
func (reg *Registry) Reserve() (*Room, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	for i := 0; i < createAttempts; i++ {
		code := NewCode()
		if _, taken := reg.rooms[code]; taken {
			continue
		}
		room := newRoom(code)
		reg.rooms[code] = room
		return room, nil
	}
	return nil, ErrExhausted
}

// Join adds occ to the room with the given code. The room stays indexed
// after it pairs, so a late join against a running session is told the room
// is full rather than unknown; the caller releases the code at teardown.
// The returned index tells the caller which slot it occupies.
func (reg *Registry) Join(code string, occ any) (*Room, int, error) {
	code = Normalize(code)
	reg.mu.RLock()
	room, ok := reg.rooms[code]
	reg.mu.RUnlock()
	if !ok {
		return nil, 0, ErrNotFound
	}
	idx, err := room.add(occ)
	if err != nil {
		return nil, 0, err
	}
	return room, idx, nil
}

// Remove releases a code. Safe to call for codes already released.
func (reg *Registry) Remove(code string) {
	reg.mu.Lock()
	delete(reg.rooms, Normalize(code))
	reg.mu.Unlock()
}

// Reap closes and releases rooms that have waited for a second occupant
// longer than maxIdle, returning them so the caller can notify waiters.
// Paired rooms belong to live sessions and are never reaped here.
func (reg *Registry) Reap(maxIdle time.Duration) []*Room {
	cutoff := time.Now().Add(-maxIdle)

	reg.mu.Lock()
	var stale []*Room
	for code, room := range reg.rooms {
		if room.CreatedAt.Before(cutoff) && !room.isPaired() {
			stale = append(stale, room)
			delete(reg.rooms, code)
		}
	}
	reg.mu.Unlock()

	for _, room := range stale {
		room.close()
	}
	return stale
}

// Len reports the number of open rooms.
func (reg *Registry) Len() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms)
}
