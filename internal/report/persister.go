package report

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mockmate/mockmate/internal/domain"
	"github.com/mockmate/mockmate/internal/runstore"
)

// SavedMarker is the run store marker recording a completed persist, so a
// retried persist for the same run is a cheap no-op even before hitting the
// store's own idempotency guard. Callers can check it to tell whether a run
// still needs a persistence attempt.
const SavedMarker = "report_saved"

// Persister writes finished aggregate reports to durable storage exactly
// once per run. Persistence is best effort from the session's point of view:
// a failed save is logged and the in-memory report is still returned to the
// client.
type Persister struct {
	store  Store
	runs   *runstore.Store
	logger *slog.Logger
}

// NewPersister creates a persister over the given store and run store.
func NewPersister(store Store, runs *runstore.Store) *Persister {
	return &Persister{
		store:  store,
		runs:   runs,
		logger: slog.Default().With("component", "report_persister"),
	}
}

// Persist saves the aggregate report for an account's run. Idempotent per
// run ID: repeat calls return the originally persisted report. Anonymous
// runs (empty accountID) are never persisted and return ErrReportNotFound
// semantics via a nil result.
func (p *Persister) Persist(
	ctx context.Context,
	accountID string,
	rep *domain.AggregateReport,
) (*domain.PersistedReport, error) {
	if err := rep.Validate(); err != nil {
		return nil, err
	}
	if accountID == "" {
		p.logger.Info("skipping persist for anonymous run", "run_id", rep.RunID)
		return nil, nil
	}

	if p.runs.HasMarker(rep.RunID, SavedMarker) {
		existing, err := p.store.GetByRunID(ctx, rep.RunID)
		if err == nil {
			return &existing, nil
		}
		// Marker without a stored row means a previous partial failure;
		// fall through and save again.
	}

	saved, err := p.store.Save(ctx, domain.PersistedReport{
		ReportID:  uuid.NewString(),
		RunID:     rep.RunID,
		AccountID: accountID,
		Grade:     rep.OverallGrade,
		Details:   *rep,
		CreatedAt: time.Now(),
	})
	if err != nil {
		p.logger.Error("failed to persist report",
			"run_id", rep.RunID,
			"account_id", accountID,
			"error", err)
		return nil, err
	}

	p.runs.SetMarker(rep.RunID, SavedMarker)
	p.logger.Info("report persisted",
		"run_id", rep.RunID,
		"report_id", saved.ReportID,
		"grade", string(saved.Grade),
		"fallback_count", rep.FallbackCount())
	return &saved, nil
}
