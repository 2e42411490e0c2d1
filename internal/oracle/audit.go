package oracle

import (
	"context"
	"sync"
)

// MemoryAuditLog is an in-memory AuditLog for tests and local development.
type MemoryAuditLog struct {
	mu      sync.Mutex
	records []AuditRecord
}

var _ AuditLog = (*MemoryAuditLog)(nil)

// NewMemoryAuditLog creates an empty in-memory audit log.
func NewMemoryAuditLog() *MemoryAuditLog {
	return &MemoryAuditLog{}
}

// Append implements AuditLog.
func (m *MemoryAuditLog) Append(_ context.Context, rec AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

// Records returns a copy of the appended records in order.
func (m *MemoryAuditLog) Records() []AuditRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]AuditRecord, len(m.records))
	copy(out, m.records)
	return out
}
