package service

import (
	"context"
	"log/slog"
	"sync"
)

// ─────────────────────────────────────────────────────────────
// EventEmitter: pipeline service events for observers
// ─────────────────────────────────────────────────────────────

// Events emitted by PipelineService.
const (
	EventRunStarted   = "etl:run-started"
	EventRunCompleted = "etl:run-completed"
	EventRunSkipped   = "etl:run-skipped"
	EventRunFailed    = "etl:run-failed"
)

// EventEmitter receives pipeline lifecycle events.
// The CLI logs them; tests record them with MockEmitter.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// LogEmitter writes every event to a structured logger.
type LogEmitter struct {
	Log *slog.Logger
}

func (e *LogEmitter) Emit(ctx context.Context, event string, data any) {
	e.Log.InfoContext(ctx, "service/event", "event", event, "data", data)
}

// MockEmitter is a test-friendly EventEmitter that records all calls.
type MockEmitter struct {
	mu     sync.Mutex
	Events []EmittedEvent
}

// EmittedEvent holds a single recorded emission for test assertions.
type EmittedEvent struct {
	Event string
	Data  any
}

func (m *MockEmitter) Emit(_ context.Context, event string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, EmittedEvent{Event: event, Data: data})
}

// Names returns the recorded event names in order.
func (m *MockEmitter) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, len(m.Events))
	for i, e := range m.Events {
		names[i] = e.Event
	}
	return names
}
