package events

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// sendTimeout bounds how long Emit waits for a full channel to drain.
const sendTimeout = 100 * time.Millisecond

// Emitter delivers events to registered sinks and, once something has
// called Events, to a buffered channel. A full channel is given sendTimeout
// to drain before the event is dropped.
type Emitter struct {
	mu     sync.RWMutex
	closed bool
	events chan Event
	sinks  []Sink
	onDrop func(Event)

	subscribed   atomic.Bool
	droppedCount atomic.Uint64
}

// EmitterOption configures an Emitter.
type EmitterOption func(*Emitter)

// WithSink adds a synchronous sink.
func WithSink(s Sink) EmitterOption {
	return func(e *Emitter) { e.sinks = append(e.sinks, s) }
}

// WithDropHook registers a callback invoked for every dropped event.
func WithDropHook(fn func(Event)) EmitterOption {
	return func(e *Emitter) { e.onDrop = fn }
}

// NewEmitter creates a new Emitter with the given buffer size.
func NewEmitter(bufferSize int, opts ...EmitterOption) *Emitter {
	if bufferSize < 0 {
		bufferSize = 0
	}
	e := &Emitter{events: make(chan Event, bufferSize)}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Emit stamps the event with an ID and timestamp when missing, hands it to
// every sink, then sends it on the channel if it has a subscriber. Emit
// after Close is a no-op.
func (e *Emitter) Emit(event Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}

	for _, s := range e.sinks {
		s.Publish(event)
	}
	if !e.subscribed.Load() {
		return
	}

	select {
	case e.events <- event:
		return
	default:
	}

	select {
	case e.events <- event:
	case <-time.After(sendTimeout):
		count := e.droppedCount.Add(1)
		if count%10 == 1 {
			log.Printf("[events] WARNING: event channel full, dropped event (total dropped: %d): type=%s", count, event.Type)
		}
		if e.onDrop != nil {
			e.onDrop(event)
		}
	}
}

// DroppedCount returns the total number of events that have been dropped.
func (e *Emitter) DroppedCount() uint64 {
	return e.droppedCount.Load()
}

// Events subscribes to the event channel and returns it. Events emitted
// before the first call are only seen by sinks.
func (e *Emitter) Events() <-chan Event {
	e.subscribed.Store(true)
	return e.events
}

// Close closes the events channel. It is safe to call more than once.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	close(e.events)
}

var _ Publisher = (*Emitter)(nil)
