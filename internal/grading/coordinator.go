// Package grading coordinates per-question grading: it deduplicates tasks,
// calls the grading oracle with a bounded retry budget, tolerates malformed
// oracle output, and guarantees every dispatched task reaches a terminal
// verdict in the shared run store, falling back to a deterministic grade
// when the oracle cannot deliver.
package grading

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mockmate/mockmate/internal/domain"
	"github.com/mockmate/mockmate/internal/oracle"
	"github.com/mockmate/mockmate/internal/runstore"
)

const (
	// defaultMaxAttempts is the per-task oracle attempt budget. Malformed
	// payloads consume attempts the same as transport failures.
	defaultMaxAttempts = 3

	// defaultBackoffStep scales the linear inter-attempt delay: the wait
	// before attempt n+1 is n * step.
	defaultBackoffStep = 200 * time.Millisecond
)

// Config tunes the coordinator. Zero values select the defaults above.
type Config struct {
	MaxAttempts   int
	BackoffStep   time.Duration
	CacheCapacity int
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.BackoffStep <= 0 {
		c.BackoffStep = defaultBackoffStep
	}
	if c.CacheCapacity <= 0 {
		c.CacheCapacity = defaultCacheCapacity
	}
	return c
}

// Coordinator grades answered questions. Duplicate submissions with the
// same dedup key share one oracle call while in flight and one cached
// verdict afterwards.
type Coordinator struct {
	oracle oracle.GradingOracle
	runs   *runstore.Store
	cfg    Config
	logger *slog.Logger

	cache  *verdictCache
	flight singleflight.Group

	wg sync.WaitGroup
}

// NewCoordinator creates a grading coordinator writing terminal verdicts to
// the given run store.
func NewCoordinator(gradingOracle oracle.GradingOracle, runs *runstore.Store, cfg Config) *Coordinator {
	cfg = cfg.withDefaults()
	return &Coordinator{
		oracle: gradingOracle,
		runs:   runs,
		cfg:    cfg,
		logger: slog.Default().With("component", "grading_coordinator"),
		cache:  newVerdictCache(cfg.CacheCapacity),
	}
}

// Dispatch starts grading a task in the background and returns immediately.
// The task is detached from the caller's context: it always runs to a
// terminal verdict, even if the submitting request is long gone.
func (c *Coordinator) Dispatch(ctx context.Context, task domain.GradingTask) error {
	if err := task.Validate(); err != nil {
		return err
	}

	detached := context.WithoutCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.GradeOne(detached, task)
	}()
	return nil
}

// Wait blocks until all dispatched tasks have reached their terminal
// verdicts. Intended for shutdown and tests.
func (c *Coordinator) Wait() { c.wg.Wait() }

// GradeOne grades a single task to a terminal verdict and records it in the
// run store at the task's question index. The returned verdict is always
// non-nil: when the attempt budget is exhausted the deterministic fallback
// (grade C, fixed feedback) is recorded instead.
func (c *Coordinator) GradeOne(ctx context.Context, task domain.GradingTask) *domain.GradingVerdict {
	key := task.DedupKey()

	if cached, ok := c.cache.get(key); ok {
		c.record(task, &cached)
		return &cached
	}

	// Concurrent duplicates share one oracle call.
	result, _, _ := c.flight.Do(key, func() (any, error) {
		return c.gradeWithRetries(ctx, task), nil
	})
	verdict := result.(*domain.GradingVerdict)

	c.cache.put(key, *verdict)
	c.record(task, verdict)
	return verdict
}

// gradeWithRetries runs the bounded attempt loop. Transport errors and
// malformed payloads both consume attempts; the loop backs off linearly
// between attempts and honors context cancellation during the wait.
func (c *Coordinator) gradeWithRetries(
	ctx context.Context,
	task domain.GradingTask,
) *domain.GradingVerdict {
	log := c.logger.With(
		"run_id", task.RunID,
		"question_index", task.QuestionIndex,
	)

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			wait := time.Duration(attempt-1) * c.cfg.BackoffStep
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				log.Warn("grading cancelled during backoff, using fallback",
					"attempt", attempt)
				return domain.FallbackVerdict(task.Question, task.Response)
			}
		}

		payload, err := c.oracle.Grade(ctx, task.Question, task.Response, task.Background)
		if err != nil {
			log.Warn("grading oracle call failed",
				"attempt", attempt, "error", err)
			continue
		}

		verdict, err := decodeVerdict(payload)
		if err != nil {
			log.Warn("grading payload malformed",
				"attempt", attempt, "error", err)
			continue
		}

		log.Info("grading succeeded",
			"attempt", attempt, "grade", string(verdict.Grade))
		return verdict
	}

	log.Error("grading attempts exhausted, recording fallback verdict",
		"max_attempts", c.cfg.MaxAttempts)
	return domain.FallbackVerdict(task.Question, task.Response)
}

// record writes the terminal verdict into the run store slot for the task.
// Whole-value write per index; the aggregation waiter never observes a
// partially merged verdict.
func (c *Coordinator) record(task domain.GradingTask, verdict *domain.GradingVerdict) {
	if err := c.runs.PutVerdict(task.RunID, task.QuestionIndex, verdict); err != nil {
		c.logger.Error("failed to record verdict",
			"run_id", task.RunID,
			"question_index", task.QuestionIndex,
			"error", err)
	}
}

// decodeVerdict parses raw oracle output into a shape-valid verdict. The
// grade letter is normalized (case, whitespace) before shape validation so
// a cosmetically sloppy oracle does not burn retry attempts.
func decodeVerdict(payload json.RawMessage) (*domain.GradingVerdict, error) {
	var v domain.GradingVerdict
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, err
	}

	if g, err := domain.ParseGrade(string(v.Grade)); err == nil {
		v.Grade = g
	}
	if err := v.ValidateShape(); err != nil {
		return nil, err
	}
	return &v, nil
}
