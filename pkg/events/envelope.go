// Package events provides the generic event infrastructure for domain event
// emission: an Envelope wrapping event payloads with routing and idempotency
// metadata, and the EventSink interface events are appended to.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Envelope wraps a domain event with the metadata consumers need for
// routing, deduplication, and correlation. Payload schemas vary by Type and
// Version; the envelope itself is stable.
type Envelope struct {
	// ID uniquely identifies this event instance.
	ID string `json:"id"`

	// Type identifies the event for routing, e.g. "provisioning.run_ready"
	// or "grading.verdict_recorded".
	Type string `json:"type"`

	// Source names the component that emitted the event.
	Source string `json:"source"`

	// Version enables payload schema evolution, starting at "1.0.0".
	Version string `json:"version"`

	// Timestamp records wall-clock emission time.
	Timestamp time.Time `json:"timestamp"`

	// IdempotencyKey makes retried emissions deduplicable downstream.
	IdempotencyKey string `json:"idempotency_key"`

	// AccountID and RunID correlate the event with pipeline state.
	AccountID string `json:"account_id,omitempty"`
	RunID     string `json:"run_id"`

	// Payload is the domain-specific event body.
	Payload json.RawMessage `json:"payload"`
}

// EventSink receives emitted events. Implementations must treat duplicate
// idempotency keys as no-ops and should return quickly; events matter for
// observability, not correctness, so callers never fail their primary
// operation on sink errors.
type EventSink interface {
	Append(ctx context.Context, envelope Envelope) error
}

// NoOpEventSink discards all events. Used in tests and when event emission
// is disabled.
type NoOpEventSink struct{}

// Append implements EventSink with no side effects.
func (n *NoOpEventSink) Append(_ context.Context, _ Envelope) error { return nil }

// NewNoOpEventSink creates a discarding sink.
func NewNoOpEventSink() EventSink { return &NoOpEventSink{} }

// MemorySink collects events in memory, deduplicating by idempotency key.
// Intended for tests and local development.
type MemorySink struct {
	mu   sync.Mutex
	seen map[string]struct{}
	all  []Envelope
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{seen: make(map[string]struct{})}
}

// Append implements EventSink, dropping envelopes whose idempotency key was
// already recorded.
func (m *MemorySink) Append(_ context.Context, envelope Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if envelope.IdempotencyKey != "" {
		if _, dup := m.seen[envelope.IdempotencyKey]; dup {
			return nil
		}
		m.seen[envelope.IdempotencyKey] = struct{}{}
	}
	m.all = append(m.all, envelope)
	return nil
}

// Events returns a copy of the recorded envelopes in emission order.
func (m *MemorySink) Events() []Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Envelope, len(m.all))
	copy(out, m.all)
	return out
}
