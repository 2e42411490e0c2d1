// Package aggregation turns a run's per-question verdicts into a single
// report. The waiter polls the shared run store until every expected verdict
// is present or a bounded wait expires; at expiry it synthesizes fallback
// verdicts for the missing slots so report construction never blocks
// indefinitely and never fails for lack of a verdict.
package aggregation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mockmate/mockmate/internal/domain"
	"github.com/mockmate/mockmate/internal/runstore"
)

const (
	// defaultWaitTimeout bounds the total wait for grading to finish.
	defaultWaitTimeout = 60 * time.Second

	// defaultPollInterval is the gap between completion checks.
	defaultPollInterval = 400 * time.Millisecond
)

// Config tunes the waiter. Zero values select the defaults above.
type Config struct {
	WaitTimeout  time.Duration
	PollInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = defaultWaitTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	return c
}

// Waiter builds aggregate reports from run store state.
type Waiter struct {
	runs   *runstore.Store
	cfg    Config
	logger *slog.Logger
}

// NewWaiter creates a waiter over the shared run store.
func NewWaiter(runs *runstore.Store, cfg Config) *Waiter {
	return &Waiter{
		runs:   runs,
		cfg:    cfg.withDefaults(),
		logger: slog.Default().With("component", "aggregation_waiter"),
	}
}

// AwaitReport waits for the run's verdicts and builds the aggregate report.
// It returns once all expectedCount verdicts are present, or after the
// bounded wait with fallback verdicts synthesized for whatever is missing.
// The caller's context can end the wait early; expiry is handled the same
// way as timeout.
func (w *Waiter) AwaitReport(
	ctx context.Context,
	runID string,
	expectedCount int,
) (*domain.AggregateReport, error) {
	if expectedCount <= 0 {
		return nil, fmt.Errorf("run %s: %w", runID, domain.ErrEmptyReport)
	}

	log := w.logger.With("run_id", runID, "expected", expectedCount)

	deadline := time.NewTimer(w.cfg.WaitTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(w.cfg.PollInterval)
	defer tick.Stop()

	for !w.runs.Complete(runID, expectedCount) {
		select {
		case <-tick.C:
		case <-deadline.C:
			log.Warn("aggregation wait expired, synthesizing missing verdicts",
				"have", w.runs.VerdictCount(runID))
			return w.build(runID, expectedCount)
		case <-ctx.Done():
			log.Warn("aggregation wait cancelled, synthesizing missing verdicts",
				"have", w.runs.VerdictCount(runID))
			return w.build(runID, expectedCount)
		}
	}

	log.Info("all verdicts present")
	return w.build(runID, expectedCount)
}

// build assembles the report from whatever verdicts exist right now,
// filling empty slots with deterministic fallbacks.
func (w *Waiter) build(runID string, expectedCount int) (*domain.AggregateReport, error) {
	stored := w.runs.Verdicts(runID)

	run, runErr := w.runs.GetRun(runID)

	perQuestion := make([]domain.GradingVerdict, expectedCount)
	grades := make([]domain.Grade, expectedCount)
	for i := 0; i < expectedCount; i++ {
		v, ok := stored[i]
		if !ok {
			question := fmt.Sprintf("Question %d", i+1)
			if runErr == nil && i < len(run.Questions) {
				question = run.Questions[i].Text
			}
			v = *domain.FallbackVerdict(question, "")
		}
		perQuestion[i] = v
		grades[i] = v.Grade
	}

	overall, err := domain.OverallGrade(grades)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}

	return &domain.AggregateReport{
		RunID:        runID,
		OverallGrade: overall,
		PerQuestion:  perQuestion,
		ComputedAt:   time.Now(),
	}, nil
}
