package meeting

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChannelObserverDropsWhenFull(t *testing.T) {
	o := NewChannelObserver(2)
	for range 5 {
		o.Notify(Event{Type: EventProgress})
	}
	assert.Equal(t, int64(3), o.Dropped())
	assert.Len(t, o.Events(), 2)
}

func TestChannelObserverClose(t *testing.T) {
	o := NewChannelObserver(1)
	o.Notify(Event{Type: EventPhaseChanged})
	o.Close()
	o.Close()
	o.Notify(Event{Type: EventError})

	var got []EventType
	for ev := range o.Events() {
		got = append(got, ev.Type)
	}
	assert.Equal(t, []EventType{EventPhaseChanged}, got)
	assert.Zero(t, o.Dropped())
}

func TestObserverFunc(t *testing.T) {
	var seen Event
	var o Observer = ObserverFunc(func(e Event) { seen = e })
	o.Notify(Event{Type: EventError, Message: "boom"})
	assert.Equal(t, "boom", seen.Message)
}
