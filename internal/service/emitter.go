package service

import (
	"context"
	"slices"
	"sync"
)

// Events emitted by DocumentService.
const (
	EventDocumentChanged      = "document:changed"      // data: *domain.Change
	EventDocumentCheckpointed = "document:checkpointed" // data: CheckpointResult
	EventDocumentDeleted      = "document:deleted"      // data: doc id
)

// ─────────────────────────────────────────────────────────────
// EventEmitter: decouples services from the replication relay
// ─────────────────────────────────────────────────────────────

// EventEmitter is an interface for pushing events to connected clients.
// The relay hub implements it; services receive the interface, which keeps
// them testable with a mock emitter.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// NopEmitter drops every event.
type NopEmitter struct{}

func (NopEmitter) Emit(context.Context, string, any) {}

// MockEmitter is a test-friendly EventEmitter that records all calls.
type MockEmitter struct {
	mu     sync.Mutex
	events []EmittedEvent
}

// EmittedEvent holds a single recorded emission for test assertions.
type EmittedEvent struct {
	Event string
	Data  any
}

func (m *MockEmitter) Emit(_ context.Context, event string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, EmittedEvent{Event: event, Data: data})
}

// Events returns a copy of the recorded emissions, optionally filtered by name.
func (m *MockEmitter) Events(names ...string) []EmittedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []EmittedEvent
	for _, e := range m.events {
		if len(names) == 0 || slices.Contains(names, e.Event) {
			out = append(out, e)
		}
	}
	return out
}
