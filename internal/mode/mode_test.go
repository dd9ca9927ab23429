package mode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthannam-fart/office-hours/internal/protocol"
)

func TestCycleOrder(t *testing.T) {
	assert.Equal(t, Record, Live.Next())
	assert.Equal(t, Unavailable, Record.Next())
	assert.Equal(t, Live, Unavailable.Next())
}

func TestThreeCyclesReturnHome(t *testing.T) {
	for _, start := range []Mode{Live, Record, Unavailable} {
		assert.Equal(t, start, start.Next().Next().Next())
	}
}

func TestParse(t *testing.T) {
	m, err := Parse("record")
	require.NoError(t, err)
	assert.Equal(t, Record, m)

	m, err = Parse("  LIVE ")
	require.NoError(t, err)
	assert.Equal(t, Live, m)

	_, err = Parse("busy")
	assert.Error(t, err)
}

func TestDecideLive(t *testing.T) {
	assert.Equal(t, ActionNone, Decide(Live, EventTalkStart).Action)
	assert.Equal(t, ActionPlay, Decide(Live, EventFrame).Action)
	assert.Equal(t, ActionNone, Decide(Live, EventTalkEnd).Action)
}

func TestDecideRecord(t *testing.T) {
	assert.Equal(t, ActionStartRecording, Decide(Record, EventTalkStart).Action)
	assert.Equal(t, ActionRecord, Decide(Record, EventFrame).Action)
	assert.Equal(t, ActionFinishRecording, Decide(Record, EventTalkEnd).Action)
}

func TestDecideUnavailable(t *testing.T) {
	d := Decide(Unavailable, EventTalkStart)
	assert.Equal(t, ActionDrop, d.Action)
	assert.Equal(t, protocol.TypeUnavailable, d.Notify)

	assert.Equal(t, ActionDrop, Decide(Unavailable, EventFrame).Action)
	assert.Empty(t, Decide(Unavailable, EventFrame).Notify)
}

func TestDecideNeverNotifiesOutsideUnavailable(t *testing.T) {
	for _, m := range []Mode{Live, Record} {
		for _, ev := range []Event{EventTalkStart, EventFrame, EventTalkEnd} {
			assert.Empty(t, Decide(m, ev).Notify)
		}
	}
}
