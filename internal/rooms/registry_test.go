package rooms

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndJoin(t *testing.T) {
	reg := NewRegistry()

	room, err := reg.Create("alice")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(room.Code, CodePrefix))
	assert.Equal(t, 1, reg.Len())

	joined, idx, err := reg.Join(room.Code, "bob")
	require.NoError(t, err)
	assert.Same(t, room, joined)
	assert.Equal(t, 1, idx)

	a, b := room.Occupants()
	assert.Equal(t, "alice", a)
	assert.Equal(t, "bob", b)

	select {
	case <-room.Paired():
	default:
		t.Fatal("room should be paired after second join")
	}

	// The code stays claimed while the session runs, so a late join is
	// told the room is full.
	assert.Equal(t, 1, reg.Len())
	_, _, err = reg.Join(room.Code, "carol")
	assert.ErrorIs(t, err, ErrFull)

	// Teardown releases the code.
	reg.Remove(room.Code)
	_, _, err = reg.Join(room.Code, "dave")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestJoinUnknownCodeNeverCreates(t *testing.T) {
	reg := NewRegistry()
	_, _, err := reg.Join("OH-ZZZZ", "alice")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, reg.Len())
}

func TestJoinIsCaseInsensitive(t *testing.T) {
	reg := NewRegistry()
	room, err := reg.Create("alice")
	require.NoError(t, err)

	_, idx, err := reg.Join(strings.ToLower(room.Code), "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
}

func TestThirdOccupantRejected(t *testing.T) {
	reg := NewRegistry()
	room, err := reg.Create("alice")
	require.NoError(t, err)

	_, err = room.add("bob")
	require.NoError(t, err)
	_, err = room.add("carol")
	assert.ErrorIs(t, err, ErrFull)
}

func TestConcurrentJoinsExactlyOneWinner(t *testing.T) {
	reg := NewRegistry()
	room, err := reg.Create("creator")
	require.NoError(t, err)

	const contenders = 32
	var wg sync.WaitGroup
	errs := make([]error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = reg.Join(room.Code, i)
		}(i)
	}
	wg.Wait()

	var wins int
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ErrFull)
		}
	}
	assert.Equal(t, 1, wins)
}

func TestReserveIsEmpty(t *testing.T) {
	reg := NewRegistry()
	room, err := reg.Reserve()
	require.NoError(t, err)

	a, b := room.Occupants()
	assert.Nil(t, a)
	assert.Nil(t, b)

	_, idx, err := reg.Join(room.Code, "caller")
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	_, idx, err = reg.Join(room.Code, "callee")
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
}

func TestReapClosesStaleRooms(t *testing.T) {
	reg := NewRegistry()
	room, err := reg.Create("alice")
	require.NoError(t, err)
	room.CreatedAt = time.Now().Add(-time.Hour)
	fresh, err := reg.Create("bob")
	require.NoError(t, err)

	stale := reg.Reap(10 * time.Minute)
	require.Len(t, stale, 1)
	assert.Same(t, room, stale[0])
	assert.Equal(t, 1, reg.Len())

	// A reaped room refuses late joins.
	_, err = room.add("late")
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, err = reg.Join(fresh.Code, "carol")
	assert.NoError(t, err)
}

func TestReapSkipsPairedRooms(t *testing.T) {
	reg := NewRegistry()
	room, err := reg.Create("alice")
	require.NoError(t, err)
	_, _, err = reg.Join(room.Code, "bob")
	require.NoError(t, err)
	room.CreatedAt = time.Now().Add(-time.Hour)

	assert.Empty(t, reg.Reap(10*time.Minute))
	assert.Equal(t, 1, reg.Len())
}

func TestRemoveIsIdempotent(t *testing.T) {
	reg := NewRegistry()
	room, err := reg.Create("alice")
	require.NoError(t, err)
	reg.Remove(room.Code)
	reg.Remove(room.Code)
	assert.Equal(t, 0, reg.Len())
}
