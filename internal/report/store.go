// Package report persists finished aggregate reports, at most once per run.
package report

import (
	"context"
	"sync"

	"github.com/mockmate/mockmate/internal/domain"
)

// Store is the durable report contract. Save must be idempotent per run:
// a second save for the same run ID returns the already-persisted report
// without writing anything.
type Store interface {
	Save(ctx context.Context, rep domain.PersistedReport) (domain.PersistedReport, error)
	GetByRunID(ctx context.Context, runID string) (domain.PersistedReport, error)
	GetByID(ctx context.Context, reportID string) (domain.PersistedReport, error)
	ListByAccount(ctx context.Context, accountID string) ([]domain.PersistedReport, error)
}

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu      sync.Mutex
	byRun   map[string]domain.PersistedReport
	byOrder []string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory report store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byRun: make(map[string]domain.PersistedReport)}
}

// Save implements Store.Save with first-write-wins semantics per run ID.
func (s *MemoryStore) Save(
	_ context.Context, rep domain.PersistedReport,
) (domain.PersistedReport, error) {
	if err := rep.Validate(); err != nil {
		return domain.PersistedReport{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byRun[rep.RunID]; ok {
		return existing, nil
	}
	s.byRun[rep.RunID] = rep
	s.byOrder = append(s.byOrder, rep.RunID)
	return rep, nil
}

// GetByRunID returns the persisted report for the run, if any.
func (s *MemoryStore) GetByRunID(
	_ context.Context, runID string,
) (domain.PersistedReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rep, ok := s.byRun[runID]
	if !ok {
		return domain.PersistedReport{}, domain.ErrReportNotFound
	}
	return rep, nil
}

// GetByID returns the persisted report with the given report ID, if any.
func (s *MemoryStore) GetByID(
	_ context.Context, reportID string,
) (domain.PersistedReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rep := range s.byRun {
		if rep.ReportID == reportID {
			return rep, nil
		}
	}
	return domain.PersistedReport{}, domain.ErrReportNotFound
}

// ListByAccount returns the account's reports in insertion order.
func (s *MemoryStore) ListByAccount(
	_ context.Context, accountID string,
) ([]domain.PersistedReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.PersistedReport
	for _, runID := range s.byOrder {
		if rep := s.byRun[runID]; rep.AccountID == accountID {
			out = append(out, rep)
		}
	}
	return out, nil
}
