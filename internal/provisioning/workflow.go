package provisioning

import (
	"errors"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/mockmate/mockmate/internal/domain"
)

// WorkflowName is the registered name of the provisioning saga workflow.
const WorkflowName = "ProvisionInterviewWorkflow"

// creditCost is the number of credits one provisioned interview consumes.
const creditCost = 1

// ProvisionRequest starts one provisioning saga.
type ProvisionRequest struct {
	RunID     string                     `json:"run_id"`
	AccountID string                     `json:"account_id"`
	Materials domain.BackgroundMaterials `json:"materials"`
}

// Validate checks the request before any saga step spends anything.
func (r *ProvisionRequest) Validate() error {
	if r.RunID == "" {
		return errors.New("run_id is required")
	}
	if r.AccountID == "" {
		return errors.New("account_id is required")
	}
	return r.Materials.Validate()
}

// ProvisionResult reports a completed saga.
type ProvisionResult struct {
	RunID         string `json:"run_id"`
	QuestionCount int    `json:"question_count"`
}

// ProvisionInterviewWorkflow orchestrates the provisioning saga:
// verify account -> reserve credit -> generate questions -> synthesize
// narration -> append audit record -> mark ready. Once the credit is
// reserved, every downstream failure compensates by releasing it before the
// run is marked failed, so a failed run never costs the account anything.
// All workflow code uses workflow-safe APIs only.
func ProvisionInterviewWorkflow(
	ctx workflow.Context,
	req ProvisionRequest,
) (*ProvisionResult, error) {
	const currentVersion = 1
	_ = workflow.GetVersion(ctx, "provisioning.v", workflow.DefaultVersion, currentVersion)

	if err := req.Validate(); err != nil {
		return nil, temporal.NewNonRetryableApplicationError(
			"invalid provisioning request",
			"Validation",
			err,
		)
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		HeartbeatTimeout:    30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    3,
			NonRetryableErrorTypes: []string{
				domain.ErrTypeInsufficientCredits,
			},
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var a *Activities

	if err := workflow.ExecuteActivity(ctx, a.RegisterRun, RegisterRunInput{
		RunID:     req.RunID,
		AccountID: req.AccountID,
		Materials: req.Materials,
	}).Get(ctx, nil); err != nil {
		return nil, err
	}

	var verified VerifyAccountOutput
	if err := workflow.ExecuteActivity(ctx, a.VerifyAccount, VerifyAccountInput{
		AccountID: req.AccountID,
		Materials: req.Materials,
	}).Get(ctx, &verified); err != nil {
		failRun(ctx, a, req.RunID, err)
		return nil, err
	}

	var reserved ReserveCreditOutput
	if err := workflow.ExecuteActivity(ctx, a.ReserveCredit, ReserveCreditInput{
		AccountID: req.AccountID,
		RunID:     req.RunID,
		Amount:    creditCost,
	}).Get(ctx, &reserved); err != nil {
		failRun(ctx, a, req.RunID, err)
		return nil, err
	}

	// Every failure past this point must refund the reserved credit.
	compensate := func(cause error) {
		dctx, cancel := workflow.NewDisconnectedContext(ctx)
		defer cancel()
		dctx = workflow.WithActivityOptions(dctx, ao)

		if err := workflow.ExecuteActivity(dctx, a.ReleaseCredit, ReleaseCreditInput{
			AccountID: req.AccountID,
			RunID:     req.RunID,
			Amount:    creditCost,
			Token:     reserved.Token,
			Reason:    cause.Error(),
		}).Get(dctx, nil); err != nil {
			workflow.GetLogger(dctx).Error("compensation failed, credit not refunded",
				"run_id", req.RunID, "error", err)
		} else {
			_ = workflow.ExecuteActivity(dctx, a.UpdateRunStatus, UpdateRunStatusInput{
				RunID:  req.RunID,
				Status: domain.RunStatusRolledBack,
				Error:  cause.Error(),
			}).Get(dctx, nil)
		}
		failRun(dctx, a, req.RunID, cause)
	}

	if err := setStatus(ctx, a, req.RunID, domain.RunStatusGeneratingQuestions); err != nil {
		compensate(err)
		return nil, err
	}

	var generated GenerateQuestionsOutput
	if err := workflow.ExecuteActivity(ctx, a.GenerateQuestions, GenerateQuestionsInput{
		RunID:     req.RunID,
		Materials: req.Materials,
	}).Get(ctx, &generated); err != nil {
		compensate(err)
		return nil, err
	}

	if err := setStatus(ctx, a, req.RunID, domain.RunStatusGeneratingAudio); err != nil {
		compensate(err)
		return nil, err
	}

	var narrated SynthesizeNarrationOutput
	if err := workflow.ExecuteActivity(ctx, a.SynthesizeNarration, SynthesizeNarrationInput{
		RunID:     req.RunID,
		Questions: generated.Questions,
	}).Get(ctx, &narrated); err != nil {
		compensate(err)
		return nil, err
	}

	if err := setStatus(ctx, a, req.RunID, domain.RunStatusLogging); err != nil {
		compensate(err)
		return nil, err
	}

	var firstQuestion string
	if len(narrated.Items) > 0 {
		firstQuestion = narrated.Items[0].Text
	}
	if err := workflow.ExecuteActivity(ctx, a.AppendAuditRecord, AppendAuditRecordInput{
		AccountID:        req.AccountID,
		RunID:            req.RunID,
		QuestionCount:    len(narrated.Items),
		MaterialsSummary: req.Materials.JobDescription,
		QuestionPreview:  firstQuestion,
	}).Get(ctx, nil); err != nil {
		compensate(err)
		return nil, err
	}

	if err := workflow.ExecuteActivity(ctx, a.CompleteRun, CompleteRunInput{
		AccountID: req.AccountID,
		RunID:     req.RunID,
		Items:     narrated.Items,
	}).Get(ctx, nil); err != nil {
		compensate(err)
		return nil, err
	}

	return &ProvisionResult{
		RunID:         req.RunID,
		QuestionCount: len(narrated.Items),
	}, nil
}

// setStatus runs the UpdateRunStatus activity for an intermediate saga state.
func setStatus(
	ctx workflow.Context,
	a *Activities,
	runID string,
	status domain.RunStatus,
) error {
	return workflow.ExecuteActivity(ctx, a.UpdateRunStatus, UpdateRunStatusInput{
		RunID:  runID,
		Status: status,
	}).Get(ctx, nil)
}

// failRun records the terminal failed state with the causing error. Best
// effort: the workflow error is the source of truth if the write fails.
func failRun(ctx workflow.Context, a *Activities, runID string, cause error) {
	dctx, cancel := workflow.NewDisconnectedContext(ctx)
	defer cancel()
	dctx = workflow.WithActivityOptions(dctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 2},
	})

	if err := workflow.ExecuteActivity(dctx, a.UpdateRunStatus, UpdateRunStatusInput{
		RunID:  runID,
		Status: domain.RunStatusFailed,
		Error:  cause.Error(),
	}).Get(dctx, nil); err != nil {
		workflow.GetLogger(dctx).Error("failed to record terminal run status",
			"run_id", runID, "error", err)
	}
}
