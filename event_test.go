package dsim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventQueueOrdersByTimestamp(t *testing.T) {
	q := newEventQueue()
	q.addEvent(Event{Ts: 30})
	q.addEvent(Event{Ts: 10})
	q.addEvent(Event{Ts: 20})

	var order []Time
	for {
		e, ok := q.nextEvent()
		if !ok {
			break
		}
		order = append(order, e.Ts)
	}
	assert.Equal(t, []Time{10, 20, 30}, order)
}

func TestEventQueueTieBreaksByInsertionOrder(t *testing.T) {
	q := newEventQueue()
	q.addEvent(Event{Ts: 5, Target: 1})
	q.addEvent(Event{Ts: 5, Target: 2})
	q.addEvent(Event{Ts: 5, Target: 3})

	var order []ProcessID
	for {
		e, ok := q.nextEvent()
		if !ok {
			break
		}
		order = append(order, e.Target)
	}
	assert.Equal(t, []ProcessID{1, 2, 3}, order)
}

func TestEventQueueOrdersEndLastAtSameTimestamp(t *testing.T) {
	q := newEventQueue()
	q.addEvent(Event{Ts: 5, Kind: EventChurn, ChurnAction: ChurnEnd})
	q.addEvent(Event{Ts: 5, Kind: EventMessage, Target: 1})
	q.addEvent(Event{Ts: 5, Kind: EventMessage, Target: 2})

	first, ok := q.nextEvent()
	require.True(t, ok)
	assert.False(t, first.isEnd())
	assert.Equal(t, ProcessID(1), first.Target)

	second, ok := q.nextEvent()
	require.True(t, ok)
	assert.False(t, second.isEnd())
	assert.Equal(t, ProcessID(2), second.Target)

	third, ok := q.nextEvent()
	require.True(t, ok)
	assert.True(t, third.isEnd())
}

func TestEventQueueEmpty(t *testing.T) {
	q := newEventQueue()
	_, ok := q.nextEvent()
	assert.False(t, ok)
}
