package events

import (
	"sync"
	"testing"
	"time"
)

func TestEmitter_StampsIDAndTimestamp(t *testing.T) {
	e := NewEmitter(4)
	ch := e.Events()
	e.Emit(Event{Type: EventPlanProposed, PlanID: "p1"})

	got := <-ch
	if got.ID == "" {
		t.Error("event ID not set")
	}
	if got.Timestamp.IsZero() {
		t.Error("event timestamp not set")
	}
	if got.PlanID != "p1" {
		t.Errorf("PlanID = %q, want %q", got.PlanID, "p1")
	}
}

func TestEmitter_KeepsCallerID(t *testing.T) {
	e := NewEmitter(1)
	ch := e.Events()
	e.Emit(Event{ID: "fixed", Type: EventTaskStarted})
	if got := <-ch; got.ID != "fixed" {
		t.Errorf("ID = %q, want %q", got.ID, "fixed")
	}
}

func TestEmitter_DropsWhenFull(t *testing.T) {
	var mu sync.Mutex
	var dropped []EventType
	e := NewEmitter(1, WithDropHook(func(ev Event) {
		mu.Lock()
		dropped = append(dropped, ev.Type)
		mu.Unlock()
	}))
	_ = e.Events()

	e.Emit(Event{Type: EventTaskStarted})
	e.Emit(Event{Type: EventTaskCompleted})

	if e.DroppedCount() != 1 {
		t.Errorf("DroppedCount() = %d, want 1", e.DroppedCount())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(dropped) != 1 || dropped[0] != EventTaskCompleted {
		t.Errorf("dropped = %v, want [task_completed]", dropped)
	}
}

func TestEmitter_SinksSeeEveryEvent(t *testing.T) {
	var seen []EventType
	e := NewEmitter(0, WithSink(SinkFunc(func(ev Event) {
		seen = append(seen, ev.Type)
	})))
	_ = e.Events()

	// Unbuffered with no reader: the channel send drops, the sink still sees it.
	e.Emit(Event{Type: EventSubagentOpened})
	e.Emit(Event{Type: EventSubagentEnded})

	if len(seen) != 2 {
		t.Fatalf("sink saw %d events, want 2", len(seen))
	}
	if seen[0] != EventSubagentOpened || seen[1] != EventSubagentEnded {
		t.Errorf("sink order = %v", seen)
	}
}

func TestEmitter_EmitAfterCloseIsNoop(t *testing.T) {
	e := NewEmitter(1)
	e.Close()
	e.Close()
	e.Emit(Event{Type: EventRunCompleted})

	if _, ok := <-e.Events(); ok {
		t.Error("received event after Close")
	}
}

func TestEmitter_NoSubscriberNeverBlocks(t *testing.T) {
	var seen int
	e := NewEmitter(1, WithSink(SinkFunc(func(Event) { seen++ })))

	start := time.Now()
	for i := 0; i < 20; i++ {
		e.Emit(Event{Type: EventTaskCompleted})
	}
	if elapsed := time.Since(start); elapsed >= sendTimeout {
		t.Errorf("Emit without a subscriber took %v", elapsed)
	}
	if e.DroppedCount() != 0 {
		t.Errorf("DroppedCount() = %d, want 0", e.DroppedCount())
	}
	if seen != 20 {
		t.Errorf("sink saw %d events, want 20", seen)
	}
}
