// Package runstore provides the per-run shared state read by the aggregation
// waiter and written by the grading coordinator: verdict slots, completion
// markers, and run records. It is the single shared mutable resource in the
// pipeline core, so its writers store whole values per slot and its readers
// get copies, never aliases.
package runstore

import (
	"errors"
	"sync"

	"github.com/mockmate/mockmate/internal/domain"
)

// Store-specific errors.
var (
	// ErrNilVerdict indicates an attempt to store a nil verdict.
	ErrNilVerdict = errors.New("cannot store nil verdict")

	// ErrNegativeIndex indicates a verdict write with a negative index.
	ErrNegativeIndex = errors.New("verdict index must be non-negative")
)

// Store is an in-memory shared run store. All state is keyed by runID; no
// state leaks across runs. Safe for concurrent use: many readers may poll
// while writers store terminal verdicts.
type Store struct {
	mu sync.RWMutex

	runs     map[string]domain.ProvisioningRun
	verdicts map[string]map[int]domain.GradingVerdict
	markers  map[string]map[string]struct{}
	claims   map[string]string
}

// New creates an empty store.
func New() *Store {
	return &Store{
		runs:     make(map[string]domain.ProvisioningRun),
		verdicts: make(map[string]map[int]domain.GradingVerdict),
		markers:  make(map[string]map[string]struct{}),
		claims:   make(map[string]string),
	}
}

// PutRun stores or replaces the run record.
func (s *Store) PutRun(run domain.ProvisioningRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.RunID] = run
}

// GetRun returns a copy of the run record.
func (s *Store) GetRun(runID string) (domain.ProvisioningRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok {
		return domain.ProvisioningRun{}, domain.ErrRunNotFound
	}
	return run, nil
}

// SetRunStatus updates the status (and optional error text) of a run record.
func (s *Store) SetRunStatus(runID string, status domain.RunStatus, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return domain.ErrRunNotFound
	}
	run.Status = status
	if errText != "" {
		run.Error = errText
	}
	s.runs[runID] = run
	return nil
}

// PutVerdict stores a verdict at (runID, index) as a single whole-value
// write. Last write wins per index; readers can never observe a partially
// merged verdict. Only the grading coordinator's terminal path should call
// this for a given index.
func (s *Store) PutVerdict(runID string, index int, v *domain.GradingVerdict) error {
	if v == nil {
		return ErrNilVerdict
	}
	if index < 0 {
		return ErrNegativeIndex
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	slots, ok := s.verdicts[runID]
	if !ok {
		slots = make(map[int]domain.GradingVerdict)
		s.verdicts[runID] = slots
	}
	slots[index] = *v
	return nil
}

// Verdict returns a copy of the verdict at (runID, index), if present.
func (s *Store) Verdict(runID string, index int) (domain.GradingVerdict, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.verdicts[runID][index]
	return v, ok
}

// Verdicts returns a copy of all stored verdicts for the run, keyed by index.
func (s *Store) Verdicts(runID string) map[int]domain.GradingVerdict {
	s.mu.RLock()
	defer s.mu.RUnlock()

	slots := s.verdicts[runID]
	out := make(map[int]domain.GradingVerdict, len(slots))
	for i, v := range slots {
		out[i] = v
	}
	return out
}

// VerdictCount returns the number of stored verdicts for the run.
func (s *Store) VerdictCount(runID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.verdicts[runID])
}

// Complete reports whether every index 0..expectedCount-1 holds a verdict.
// A non-positive expectedCount never completes.
func (s *Store) Complete(runID string, expectedCount int) bool {
	if expectedCount <= 0 {
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	slots := s.verdicts[runID]
	if len(slots) < expectedCount {
		return false
	}
	for i := 0; i < expectedCount; i++ {
		if _, ok := slots[i]; !ok {
			return false
		}
	}
	return true
}

// SetMarker records a named completion marker for the run (e.g. the report
// persister's saved marker). Idempotent.
func (s *Store) SetMarker(runID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markers[runID]
	if !ok {
		m = make(map[string]struct{})
		s.markers[runID] = m
	}
	m[name] = struct{}{}
}

// HasMarker reports whether the named marker is set for the run.
func (s *Store) HasMarker(runID, name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.markers[runID][name]
	return ok
}

// TryClaim atomically claims ownership of a run for the named actor.
// Returns true if the claim was inserted, false if another actor already
// holds it. This replaces the check-then-set pattern so two actors can never
// both believe they own the run.
func (s *Store) TryClaim(runID, owner string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, claimed := s.claims[runID]; claimed {
		return false
	}
	s.claims[runID] = owner
	return true
}

// ClaimOwner returns the current claim holder for the run, if any.
func (s *Store) ClaimOwner(runID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owner, ok := s.claims[runID]
	return owner, ok
}

// DropRun removes all state for a run. Used when a session ends and its
// results have been durably persisted.
func (s *Store) DropRun(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.runs, runID)
	delete(s.verdicts, runID)
	delete(s.markers, runID)
	delete(s.claims, runID)
}
