package meeting

import (
	"sync"
	"sync/atomic"
	"time"

	"llm-meeting/internal/transcript"
)

// EventType names what an Event reports.
type EventType string

const (
	EventPhaseChanged   EventType = "phase_changed"
	EventStatementAdded EventType = "statement_added"
	EventError          EventType = "error"
	EventProgress       EventType = "progress"
)

// Progress details carried by EventProgress.
const (
	ProgressRound     = "discussing_round"
	ProgressStatement = "discussing_statement"
	ProgressRecap     = "moderator_summary"
)

// Event is one engine notification.
type Event struct {
	Type      EventType         `json:"type"`
	MeetingID string            `json:"meeting_id"`
	Phase     Phase             `json:"phase,omitempty"`
	Entry     *transcript.Entry `json:"entry,omitempty"`
	Message   string            `json:"message,omitempty"`
	Detail    string            `json:"detail,omitempty"`
	Current   int               `json:"current,omitempty"`
	Total     int               `json:"total,omitempty"`
	Time      time.Time         `json:"time"`
}

// Observer receives engine events. Notify is called synchronously from the
// meeting goroutine and must not block; a panic in Notify is logged and
// otherwise ignored.
type Observer interface {
	Notify(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Notify calls f.
func (f ObserverFunc) Notify(e Event) { f(e) }

// ChannelObserver forwards events to a buffered channel. When the buffer is
// full the event is dropped rather than stalling the meeting.
type ChannelObserver struct {
	mu      sync.Mutex
	ch      chan Event
	closed  bool
	dropped atomic.Int64
}

// NewChannelObserver returns an observer with the given buffer size.
func NewChannelObserver(buffer int) *ChannelObserver {
	return &ChannelObserver{ch: make(chan Event, buffer)}
}

// Events returns the receive side. It is closed by Close.
func (o *ChannelObserver) Events() <-chan Event {
	return o.ch
}

// Notify enqueues e without blocking.
func (o *ChannelObserver) Notify(e Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	select {
	case o.ch <- e:
	default:
		o.dropped.Add(1)
	}
}

// Close closes the channel. Later events are discarded.
func (o *ChannelObserver) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.closed = true
		close(o.ch)
	}
}

// Dropped returns how many events were discarded because the buffer was full.
func (o *ChannelObserver) Dropped() int64 {
	return o.dropped.Load()
}
