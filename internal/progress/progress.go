// Package progress implements the structured progress-event bus described
// in spec.md §9 ("Progress reporter"): an event bus with a typed
// ProgressEvent record and one or more sinks. Modeled on the teacher's SSE
// subscriber/event-channel shape (cmd/server/handlers/sse_subscriber.go),
// generalized from a single HTTP connection's event channel to an
// in-process fan-out over a small, fixed set of sinks (there is no remote
// subscriber here — just the operator's terminal and the durable log).
package progress

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is one step of an orchestrator command.
type Event struct {
	ID        string    `json:"id"`
	Operation string    `json:"operation"`
	Component string    `json:"component"`
	Step      string    `json:"step"`
	Status    string    `json:"status"` // "started", "ok", "failed"
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink receives every emitted Event. Sinks must not block for long; the
// reporter calls them synchronously on the emitting goroutine.
type Sink interface {
	Handle(Event)
}

// Reporter emits events to every registered sink in the order they were
// added.
type Reporter struct {
	operation string

	mu    sync.Mutex
	sinks []Sink
}

// New returns a Reporter for one command invocation.
func New(operation string, sinks ...Sink) *Reporter {
	return &Reporter{operation: operation, sinks: sinks}
}

// AddSink registers an additional sink.
func (r *Reporter) AddSink(s Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks = append(r.sinks, s)
}

// Step emits a "started" event for component/step, then a terminal event
// once fn returns: "ok" on success, "failed" (with fn's error message) on
// failure. It returns fn's error unchanged.
func (r *Reporter) Step(component, step, message string, fn func() error) error {
	r.emit(component, step, "started", message)

	if err := fn(); err != nil {
		r.emit(component, step, "failed", err.Error())
		return err
	}

	r.emit(component, step, "ok", message)
	return nil
}

// Emit records a standalone event not wrapping a Step call (e.g. a
// one-line advisory during health probing).
func (r *Reporter) Emit(component, step, status, message string) {
	r.emit(component, step, status, message)
}

func (r *Reporter) emit(component, step, status, message string) {
	event := Event{
		ID:        uuid.New().String(),
		Operation: r.operation,
		Component: component,
		Step:      step,
		Status:    status,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}

	r.mu.Lock()
	sinks := make([]Sink, len(r.sinks))
	copy(sinks, r.sinks)
	r.mu.Unlock()

	for _, s := range sinks {
		s.Handle(event)
	}
}

// SlogSink forwards every event to a structured logger, giving operators
// the same event stream inside whatever log aggregation pkg/logger is
// configured to write to.
type SlogSink struct {
	Logger *slog.Logger
}

// Handle implements Sink.
func (s SlogSink) Handle(e Event) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	if e.Status == "failed" {
		level = slog.LevelError
	}
	logger.Log(context.Background(), level, fmt.Sprintf("%s/%s %s", e.Component, e.Step, e.Status),
		"operation", e.Operation, "event_id", e.ID, "message", e.Message)
}
