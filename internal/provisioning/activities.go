package provisioning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mockmate/mockmate/internal/domain"
	"github.com/mockmate/mockmate/internal/ledger"
	"github.com/mockmate/mockmate/internal/oracle"
	"github.com/mockmate/mockmate/internal/runstore"
	"github.com/mockmate/mockmate/pkg/activity"
)

// narrationConcurrency bounds parallel narration synthesis per activity so a
// large question set cannot flood the narration provider.
const narrationConcurrency = 3

// Activities handles provisioning-specific Temporal activities. It
// encapsulates the dependencies the saga steps need: the credit ledger,
// account storage, the external collaborators, the shared run store, and
// event emission.
type Activities struct {
	activity.BaseActivities
	creditLedger ledger.Ledger
	accounts     ledger.AccountStore
	generator    oracle.QuestionGenerator
	narrator     oracle.NarrationService
	audit        oracle.AuditLog
	runs         *runstore.Store
	events       *EventEmitter
}

// NewActivities creates provisioning activities with the provided
// dependencies.
func NewActivities(
	base activity.BaseActivities,
	creditLedger ledger.Ledger,
	accounts ledger.AccountStore,
	generator oracle.QuestionGenerator,
	narrator oracle.NarrationService,
	audit oracle.AuditLog,
	runs *runstore.Store,
) *Activities {
	return &Activities{
		BaseActivities: base,
		creditLedger:   creditLedger,
		accounts:       accounts,
		generator:      generator,
		narrator:       narrator,
		audit:          audit,
		runs:           runs,
		events:         NewEventEmitter(base),
	}
}

// RegisterRunInput seeds the shared run record before any saga step runs.
type RegisterRunInput struct {
	RunID     string                     `json:"run_id"`
	AccountID string                     `json:"account_id"`
	Materials domain.BackgroundMaterials `json:"materials"`
}

// RegisterRun creates the run record in its initial reserving state so
// status polling works from the first moment of the saga.
func (a *Activities) RegisterRun(ctx context.Context, input RegisterRunInput) error {
	run := domain.ProvisioningRun{
		RunID:     input.RunID,
		AccountID: input.AccountID,
		Status:    domain.RunStatusReserving,
		Materials: input.Materials,
	}
	if err := run.Validate(); err != nil {
		return nonRetryable("RegisterRun", err, "invalid run record")
	}

	a.runs.PutRun(run)
	activity.SafeLog(ctx, "run registered",
		"run_id", input.RunID, "account_id", input.AccountID)
	return nil
}

// UpdateRunStatusInput moves a run to a new status, optionally recording an
// error message for terminal failure states.
type UpdateRunStatusInput struct {
	RunID  string           `json:"run_id"`
	Status domain.RunStatus `json:"status"`
	Error  string           `json:"error,omitempty"`
}

// UpdateRunStatus transitions the shared run record. Idempotent: replaying
// the same transition writes the same value.
func (a *Activities) UpdateRunStatus(ctx context.Context, input UpdateRunStatusInput) error {
	if !domain.IsValidRunStatus(input.Status) {
		return nonRetryable("UpdateRunStatus", domain.ErrInvalidRunStatus,
			fmt.Sprintf("unknown status %q", input.Status))
	}
	if err := a.runs.SetRunStatus(input.RunID, input.Status, input.Error); err != nil {
		return nonRetryable("UpdateRunStatus", err, "run not found")
	}

	activity.SafeLog(ctx, "run status updated",
		"run_id", input.RunID, "status", string(input.Status))
	return nil
}

// VerifyAccountInput identifies the account whose materials and balance the
// saga checks before spending anything.
type VerifyAccountInput struct {
	AccountID string                     `json:"account_id"`
	Materials domain.BackgroundMaterials `json:"materials"`
}

// VerifyAccountOutput reports the balance observed at verification time.
// The balance is advisory only; the reservation step re-checks atomically.
type VerifyAccountOutput struct {
	CreditsRemaining int `json:"credits_remaining"`
}

// VerifyAccount confirms the account exists, the submitted materials are
// well formed, and at least one credit appears available. Insufficient
// credits and missing accounts are non-retryable: more attempts cannot
// produce a balance.
func (a *Activities) VerifyAccount(
	ctx context.Context,
	input VerifyAccountInput,
) (*VerifyAccountOutput, error) {
	if err := input.Materials.Validate(); err != nil {
		return nil, nonRetryable("VerifyAccount", err, "invalid background materials")
	}

	acct, err := a.accounts.GetAccount(ctx, input.AccountID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, nonRetryable(domain.ErrTypeInsufficientCredits, err, "account not found")
		}
		return nil, retryable("VerifyAccount", err, "account lookup failed")
	}

	if acct.CreditsRemaining < 1 {
		return nil, nonRetryable(domain.ErrTypeInsufficientCredits,
			domain.ErrInsufficientCredits, "no interview credits remaining")
	}

	if err := a.accounts.SaveMaterials(ctx, input.AccountID, input.Materials); err != nil {
		return nil, retryable("VerifyAccount", err, "failed to save materials")
	}

	return &VerifyAccountOutput{CreditsRemaining: acct.CreditsRemaining}, nil
}

// ReserveCreditInput requests an atomic credit reservation for one run.
type ReserveCreditInput struct {
	AccountID string `json:"account_id"`
	RunID     string `json:"run_id"`
	Amount    int    `json:"amount"`
}

// ReserveCreditOutput carries the reservation token the compensation path
// needs for an idempotent release.
type ReserveCreditOutput struct {
	Token ledger.ReservationToken `json:"token"`
}

// ReserveCredit atomically decrements the account balance. A concurrent
// reservation may have drained the balance since verification, so
// insufficient credits remains a possible, non-retryable outcome here.
func (a *Activities) ReserveCredit(
	ctx context.Context,
	input ReserveCreditInput,
) (*ReserveCreditOutput, error) {
	token, err := a.creditLedger.Reserve(ctx, input.AccountID, input.Amount)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientCredits) || errors.Is(err, domain.ErrAccountNotFound) {
			return nil, nonRetryable(domain.ErrTypeInsufficientCredits, err,
				"credit reservation failed")
		}
		return nil, retryable("ReserveCredit", err, "ledger unavailable")
	}

	activity.SafeLog(ctx, "credit reserved",
		"account_id", input.AccountID,
		"run_id", input.RunID,
		"amount", input.Amount)
	a.events.EmitCreditReserved(ctx, input.AccountID, input.RunID, string(token), input.Amount)

	return &ReserveCreditOutput{Token: token}, nil
}

// ReleaseCreditInput is the compensation request for a prior reservation.
type ReleaseCreditInput struct {
	AccountID string                  `json:"account_id"`
	RunID     string                  `json:"run_id"`
	Amount    int                     `json:"amount"`
	Token     ledger.ReservationToken `json:"token"`
	Reason    string                  `json:"reason"`
}

// ReleaseCredit refunds a reserved credit after a failed saga. Safe to
// retry: the ledger treats an already-released token as a no-op, so the
// refund lands exactly once no matter how many times compensation runs.
func (a *Activities) ReleaseCredit(ctx context.Context, input ReleaseCreditInput) error {
	if err := a.creditLedger.Release(ctx, input.AccountID, input.Amount, input.Token); err != nil {
		return retryable("ReleaseCredit", err, "credit release failed")
	}

	activity.SafeLog(ctx, "credit released",
		"account_id", input.AccountID,
		"run_id", input.RunID,
		"reason", input.Reason)
	a.events.EmitCreditReleased(ctx, input.AccountID, input.RunID, input.Reason, input.Amount)
	return nil
}

// GenerateQuestionsInput asks the generator for the run's question set.
type GenerateQuestionsInput struct {
	RunID     string                     `json:"run_id"`
	Materials domain.BackgroundMaterials `json:"materials"`
}

// GenerateQuestionsOutput carries the ordered question texts.
type GenerateQuestionsOutput struct {
	Questions []string `json:"questions"`
}

// GenerateQuestions produces the interview questions. An empty or partially
// empty set is non-retryable malformed output; a transport failure is
// retryable.
func (a *Activities) GenerateQuestions(
	ctx context.Context,
	input GenerateQuestionsInput,
) (*GenerateQuestionsOutput, error) {
	questions, err := a.generator.Generate(ctx, input.Materials)
	if err != nil {
		if errors.Is(err, oracle.ErrGenerationUnavailable) {
			return nil, retryable(domain.ErrTypeGenerationFailed, err, "generator unavailable")
		}
		return nil, nonRetryable(domain.ErrTypeGenerationFailed, err, "question generation failed")
	}
	if len(questions) == 0 {
		return nil, nonRetryable(domain.ErrTypeGenerationFailed,
			domain.ErrEmptyQuestionSet, "generator returned no questions")
	}
	for i, q := range questions {
		if q == "" {
			return nil, nonRetryable(domain.ErrTypeGenerationFailed, ErrEmptyQuestionText,
				fmt.Sprintf("question %d is empty", i))
		}
	}

	activity.SafeLog(ctx, "questions generated",
		"run_id", input.RunID, "count", len(questions))
	return &GenerateQuestionsOutput{Questions: questions}, nil
}

// SynthesizeNarrationInput asks for narration audio for every question.
type SynthesizeNarrationInput struct {
	RunID     string   `json:"run_id"`
	Questions []string `json:"questions"`
}

// SynthesizeNarrationOutput carries the narrated question items in their
// original order.
type SynthesizeNarrationOutput struct {
	Items []domain.QuestionItem `json:"items"`
}

// SynthesizeNarration produces narration for each question with bounded
// parallelism, preserving question order in the output. Any single failure
// fails the whole activity; partial narration never reaches the run record.
func (a *Activities) SynthesizeNarration(
	ctx context.Context,
	input SynthesizeNarrationInput,
) (*SynthesizeNarrationOutput, error) {
	if len(input.Questions) == 0 {
		return nil, nonRetryable(domain.ErrTypeAudioFailed,
			domain.ErrEmptyQuestionSet, "no questions to narrate")
	}

	items := make([]domain.QuestionItem, len(input.Questions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(narrationConcurrency)
	for i, text := range input.Questions {
		i, text := i, text
		g.Go(func() error {
			ref, err := a.narrator.Synthesize(gctx, text)
			if err != nil {
				return fmt.Errorf("question %d: %w", i, err)
			}
			items[i] = domain.QuestionItem{Index: i, Text: text, AudioRef: ref}
			a.RecordHeartbeat(ctx, i)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, retryable(domain.ErrTypeAudioFailed, err, "narration synthesis failed")
	}

	for i := range items {
		if items[i].AudioRef == "" {
			return nil, nonRetryable(domain.ErrTypeAudioFailed, ErrNarrationIncomplete,
				fmt.Sprintf("no audio for question %d", i))
		}
	}

	activity.SafeLog(ctx, "narration synthesized",
		"run_id", input.RunID, "count", len(items))
	return &SynthesizeNarrationOutput{Items: items}, nil
}

// AppendAuditRecordInput describes the audit entry written once the run's
// content exists.
type AppendAuditRecordInput struct {
	AccountID        string `json:"account_id"`
	RunID            string `json:"run_id"`
	QuestionCount    int    `json:"question_count"`
	MaterialsSummary string `json:"materials_summary"`
	QuestionPreview  string `json:"question_preview"`
}

// AppendAuditRecord writes the interview-started audit entry. Failures here
// still trigger compensation: a run the audit trail cannot account for must
// not consume a credit.
func (a *Activities) AppendAuditRecord(ctx context.Context, input AppendAuditRecordInput) error {
	details, err := json.Marshal(map[string]any{
		"question_count":    input.QuestionCount,
		"materials_summary": domain.Snippet(input.MaterialsSummary),
		"question_preview":  domain.Snippet(input.QuestionPreview),
	})
	if err != nil {
		return nonRetryable(domain.ErrTypeLoggingFailed, err, "failed to encode audit details")
	}

	rec := oracle.AuditRecord{
		AccountID: input.AccountID,
		RunID:     input.RunID,
		Type:      "interview_started",
		Details:   details,
		CreatedAt: time.Now(),
	}
	if err := a.audit.Append(ctx, rec); err != nil {
		return retryable(domain.ErrTypeLoggingFailed, err, "audit append failed")
	}

	activity.SafeLog(ctx, "audit record appended",
		"run_id", input.RunID, "type", rec.Type)
	return nil
}

// CompleteRunInput finalizes the run record with its narrated questions.
type CompleteRunInput struct {
	AccountID string                `json:"account_id"`
	RunID     string                `json:"run_id"`
	Items     []domain.QuestionItem `json:"items"`
}

// CompleteRun attaches the question set to the run record and marks it
// ready. This is the only write that exposes questions to clients, so a
// polling client can never observe questions on a non-ready run.
func (a *Activities) CompleteRun(ctx context.Context, input CompleteRunInput) error {
	run, err := a.runs.GetRun(input.RunID)
	if err != nil {
		return nonRetryable("CompleteRun", err, "run not found")
	}

	run.Questions = input.Items
	run.Status = domain.RunStatusReady
	run.Error = ""
	a.runs.PutRun(run)

	activity.SafeLog(ctx, "run ready",
		"run_id", input.RunID, "question_count", len(input.Items))
	a.events.EmitRunReady(ctx, input.AccountID, input.RunID, len(input.Items))
	return nil
}
