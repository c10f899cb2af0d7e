package agentloop

import (
	"sync"
	"time"
)

// EventKind identifies the type of loop event.
type EventKind string

const (
	EventRunStart       EventKind = "run_start"
	EventRunEnd         EventKind = "run_end"
	EventIterationStart EventKind = "iteration_start"
	EventModelResponse  EventKind = "model_response"
	EventToolCallStart  EventKind = "tool_call_start"
	EventToolCallEnd    EventKind = "tool_call_end"
	EventUnknownTool    EventKind = "unknown_tool"
	EventRepetition     EventKind = "repetition_detected"
	EventWarning        EventKind = "warning"
	EventError          EventKind = "error"
)

// LoopEvent is a typed event emitted while a run progresses.
type LoopEvent struct {
	Kind      EventKind      `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	RunID     string         `json:"run_id"`
	Iteration int            `json:"iteration"`
	Data      map[string]any `json:"data,omitempty"`
}

// EventEmitter delivers events to an observer through a buffered channel.
// Emit never blocks: when the buffer is full the event is dropped.
type EventEmitter struct {
	ch     chan LoopEvent
	closed bool
	mu     sync.Mutex
}

// NewEventEmitter creates an emitter with the given buffer size.
func NewEventEmitter(bufferSize int) *EventEmitter {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &EventEmitter{ch: make(chan LoopEvent, bufferSize)}
}

// Emit sends an event. Events after Close are dropped.
func (e *EventEmitter) Emit(ev LoopEvent) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	select {
	case e.ch <- ev:
	default:
	}
}

// Events returns the read-only event channel.
func (e *EventEmitter) Events() <-chan LoopEvent {
	return e.ch
}

// Close closes the event channel. Safe to call multiple times.
func (e *EventEmitter) Close() {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
}
