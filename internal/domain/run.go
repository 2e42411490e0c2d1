package domain

import "errors"

// Run-specific errors.
var (
	// ErrEmptyQuestionSet indicates the generator returned no questions.
	ErrEmptyQuestionSet = errors.New("generated question set is empty")

	// ErrInvalidRunStatus indicates an unrecognized run status value.
	ErrInvalidRunStatus = errors.New("invalid run status")
)

// RunStatus tracks a provisioning run through the saga. Transitions are
// linear: Reserving -> GeneratingQuestions -> GeneratingAudio -> Logging ->
// Ready, with any post-reservation failure compensated and recorded as
// RolledBack before the terminal Failed.
type RunStatus string

const (
	// RunStatusReserving covers account verification, materials persistence,
	// and the credit reservation itself.
	RunStatusReserving RunStatus = "reserving"

	// RunStatusGeneratingQuestions covers the question-generation call.
	RunStatusGeneratingQuestions RunStatus = "generating_questions"

	// RunStatusGeneratingAudio covers per-question narration synthesis.
	RunStatusGeneratingAudio RunStatus = "generating_audio"

	// RunStatusLogging covers the audit-record append.
	RunStatusLogging RunStatus = "logging"

	// RunStatusReady is terminal; the run is usable and the credit stays spent.
	RunStatusReady RunStatus = "ready"

	// RunStatusRolledBack indicates the reserved credit was released after a
	// downstream failure. Followed immediately by RunStatusFailed.
	RunStatusRolledBack RunStatus = "rolled_back"

	// RunStatusFailed is terminal; Error carries the typed failure.
	RunStatusFailed RunStatus = "failed"
)

// IsValidRunStatus reports whether s is a recognized run status.
func IsValidRunStatus(s RunStatus) bool {
	switch s {
	case RunStatusReserving, RunStatusGeneratingQuestions, RunStatusGeneratingAudio,
		RunStatusLogging, RunStatusReady, RunStatusRolledBack, RunStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status is an end state of the saga.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusReady || s == RunStatusFailed
}

// QuestionItem is one generated interview question with its narration
// reference. Immutable once produced.
type QuestionItem struct {
	// Index is the zero-based position within the run's question set.
	Index int `json:"index" validate:"min=0"`

	// Text is the question wording as produced by the generator.
	Text string `json:"text" validate:"required,min=1"`

	// AudioRef points at the synthesized narration for Text.
	AudioRef string `json:"audio_ref,omitempty"`
}

// ProvisioningRun is one complete attempt to provision a graded session.
// Created at session start and exclusively owned by the provisioning saga;
// other components observe it through the run store.
type ProvisioningRun struct {
	// RunID uniquely identifies this attempt. A failed run is never resumed;
	// a new attempt gets a fresh RunID.
	RunID string `json:"run_id" validate:"required,uuid"`

	// AccountID links the run to the paying account. May be empty for
	// anonymous runs, which are gradable but never durably persisted.
	AccountID string `json:"account_id,omitempty"`

	Status RunStatus `json:"status" validate:"required"`

	// Materials are the inputs the run was provisioned from.
	Materials BackgroundMaterials `json:"materials"`

	// Questions is the ordered question set, populated once generation and
	// narration complete.
	Questions []QuestionItem `json:"questions,omitempty"`

	// Error carries the typed saga failure for terminal Failed runs.
	Error string `json:"error,omitempty"`
}

// Validate checks structural integrity and status validity.
func (r *ProvisioningRun) Validate() error {
	if err := validate.Struct(r); err != nil {
		return err
	}
	if !IsValidRunStatus(r.Status) {
		return ErrInvalidRunStatus
	}
	return nil
}

// QuestionCount returns the number of questions provisioned for the run.
func (r *ProvisioningRun) QuestionCount() int { return len(r.Questions) }
