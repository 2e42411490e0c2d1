// Package session exposes the user-facing operations of the interview
// pipeline: start a provisioned run, poll its status, submit answers for
// grading, and fetch the final graded report. It composes the provisioning
// workflow, the grading coordinator, the aggregation waiter, and the report
// persister behind one service surface.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"

	"github.com/mockmate/mockmate/internal/aggregation"
	"github.com/mockmate/mockmate/internal/domain"
	"github.com/mockmate/mockmate/internal/grading"
	"github.com/mockmate/mockmate/internal/provisioning"
	"github.com/mockmate/mockmate/internal/report"
	"github.com/mockmate/mockmate/internal/runstore"
)

// Session-specific errors.
var (
	// ErrRunNotReady indicates an operation that requires a fully
	// provisioned run (answer submission, report retrieval).
	ErrRunNotReady = errors.New("run is not ready")

	// ErrQuestionIndexOutOfRange indicates an answer for a question index
	// the run does not have.
	ErrQuestionIndexOutOfRange = errors.New("question index out of range")
)

// aggregatorClaim names the run store claim the first report requester
// takes, so concurrent requesters never both persist.
const aggregatorClaim = "aggregator"

// WorkflowStarter is the narrow slice of the Temporal client the service
// needs. Satisfied by client.Client.
type WorkflowStarter interface {
	ExecuteWorkflow(
		ctx context.Context,
		options client.StartWorkflowOptions,
		workflow any,
		args ...any,
	) (client.WorkflowRun, error)
}

// Service is the session-facing API over the pipeline.
type Service struct {
	temporal  WorkflowStarter
	taskQueue string
	runs      *runstore.Store
	grader    *grading.Coordinator
	waiter    *aggregation.Waiter
	persister *report.Persister
	reports   report.Store
	logger    *slog.Logger
}

// NewService wires the session service.
func NewService(
	temporal WorkflowStarter,
	taskQueue string,
	runs *runstore.Store,
	grader *grading.Coordinator,
	waiter *aggregation.Waiter,
	persister *report.Persister,
	reports report.Store,
) *Service {
	return &Service{
		temporal:  temporal,
		taskQueue: taskQueue,
		runs:      runs,
		grader:    grader,
		waiter:    waiter,
		persister: persister,
		reports:   reports,
		logger:    slog.Default().With("component", "session_service"),
	}
}

// StartProvisioning spends one credit to provision a new interview run. It
// starts the provisioning saga and returns the fresh run ID immediately;
// clients follow progress through GetRunStatus. A failed run is never
// resumed; retrying means starting a new run with a new ID.
func (s *Service) StartProvisioning(
	ctx context.Context,
	accountID string,
	materials domain.BackgroundMaterials,
) (string, error) {
	if accountID == "" {
		return "", errors.New("account id is required")
	}
	if err := materials.Validate(); err != nil {
		return "", err
	}

	runID := uuid.NewString()
	_, err := s.temporal.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        "provision-" + runID,
		TaskQueue: s.taskQueue,
	}, provisioning.WorkflowName, provisioning.ProvisionRequest{
		RunID:     runID,
		AccountID: accountID,
		Materials: materials,
	})
	if err != nil {
		return "", fmt.Errorf("start provisioning workflow: %w", err)
	}

	s.logger.Info("provisioning started",
		"run_id", runID, "account_id", accountID)
	return runID, nil
}

// GetRunStatus returns the current run record. Questions appear only once
// the run is ready.
func (s *Service) GetRunStatus(_ context.Context, runID string) (domain.ProvisioningRun, error) {
	return s.runs.GetRun(runID)
}

// SubmitAnswer accepts the user's answer for one question and dispatches
// grading in the background. Submission never blocks on the grading oracle;
// duplicate submissions for the same question and answer share one verdict.
func (s *Service) SubmitAnswer(
	ctx context.Context,
	runID string,
	questionIndex int,
	response string,
) error {
	run, err := s.runs.GetRun(runID)
	if err != nil {
		return err
	}
	if run.Status != domain.RunStatusReady {
		return fmt.Errorf("run %s: %w", runID, ErrRunNotReady)
	}
	if questionIndex < 0 || questionIndex >= run.QuestionCount() {
		return fmt.Errorf("index %d of %d questions: %w",
			questionIndex, run.QuestionCount(), ErrQuestionIndexOutOfRange)
	}

	task := domain.GradingTask{
		RunID:         runID,
		QuestionIndex: questionIndex,
		Question:      run.Questions[questionIndex].Text,
		Response:      response,
		Background:    run.Materials,
		Status:        domain.TaskStatusPending,
	}
	if err := s.grader.Dispatch(ctx, task); err != nil {
		return fmt.Errorf("dispatch grading: %w", err)
	}

	s.logger.Info("answer submitted",
		"run_id", runID, "question_index", questionIndex)
	return nil
}

// GetReport waits for grading to finish (bounded) and returns the graded
// report. The first caller for a run claims aggregation and persists the
// result; concurrent callers wait on the same verdicts but leave
// persistence to the claim holder. If the claim holder's persist failed,
// later callers retry until the saved marker lands. Persistence failures are
// logged and do not block the response; the report is served from memory
// regardless.
func (s *Service) GetReport(
	ctx context.Context,
	runID string,
) (*domain.AggregateReport, error) {
	if rep, err := s.reports.GetByRunID(ctx, runID); err == nil {
		return &rep.Details, nil
	} else if !errors.Is(err, domain.ErrReportNotFound) {
		s.logger.Error("report lookup failed", "run_id", runID, "error", err)
	}

	run, err := s.runs.GetRun(runID)
	if err != nil {
		return nil, err
	}
	if run.Status != domain.RunStatusReady {
		return nil, fmt.Errorf("run %s: %w", runID, ErrRunNotReady)
	}

	claimed := s.runs.TryClaim(runID, aggregatorClaim)

	aggregate, err := s.waiter.AwaitReport(ctx, runID, run.QuestionCount())
	if err != nil {
		return nil, err
	}

	if claimed || !s.runs.HasMarker(runID, report.SavedMarker) {
		if _, err := s.persister.Persist(ctx, run.AccountID, aggregate); err != nil {
			s.logger.Error("report persistence failed, serving in-memory report",
				"run_id", runID, "error", err)
		}
	}
	return aggregate, nil
}

// ListReports returns the account's persisted reports.
func (s *Service) ListReports(
	ctx context.Context,
	accountID string,
) ([]domain.PersistedReport, error) {
	return s.reports.ListByAccount(ctx, accountID)
}
