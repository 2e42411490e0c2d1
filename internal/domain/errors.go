package domain

import "errors"

// Saga-level failures. These surface to the caller as typed errors so the UI
// can offer an explicit retry or a credits-purchase path; they are never
// swallowed by the pipeline.
var (
	// ErrInsufficientCredits indicates the account balance could not cover the
	// reservation. Terminal for the run; nothing was reserved, so no
	// compensation is required.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrGenerationFailed indicates the question-generation collaborator
	// failed or returned an empty set. Triggers credit-release compensation.
	ErrGenerationFailed = errors.New("question generation failed")

	// ErrAudioFailed indicates narration synthesis failed for at least one
	// question. Triggers credit-release compensation.
	ErrAudioFailed = errors.New("narration synthesis failed")

	// ErrLoggingFailed indicates the audit record could not be appended.
	// Triggers credit-release compensation.
	ErrLoggingFailed = errors.New("audit logging failed")

	// ErrAccountNotFound indicates the account referenced by a run or a
	// ledger operation does not exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrRunNotFound indicates the referenced run is unknown to the store.
	ErrRunNotFound = errors.New("run not found")
)

// SagaErrorType names used when wrapping saga failures as Temporal
// application errors. Callers branch on these instead of message text.
const (
	ErrTypeInsufficientCredits = "InsufficientCredits"
	ErrTypeGenerationFailed    = "GenerationFailed"
	ErrTypeAudioFailed         = "AudioFailed"
	ErrTypeLoggingFailed       = "LoggingFailed"
)
