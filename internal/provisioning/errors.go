// Package provisioning implements the interview provisioning saga as a
// Temporal workflow plus its activities: verifying the account, reserving a
// credit, generating questions, synthesizing narration, and appending the
// audit record, with credit compensation on any post-reservation failure.
package provisioning

import (
	"errors"

	"go.temporal.io/sdk/temporal"
)

// Standard errors returned by provisioning activities.
var (
	// ErrEmptyQuestionText indicates a generated question with no content,
	// which would produce an unanswerable interview slot.
	ErrEmptyQuestionText = errors.New("generated question has empty text")

	// ErrNarrationIncomplete indicates narration synthesis finished without
	// producing audio for every question.
	ErrNarrationIncomplete = errors.New("narration incomplete")
)

// retryable wraps an error as a Temporal application error that the activity
// retry policy may retry. The tag categorizes the error type for the
// workflow's NonRetryableErrorTypes matching and for monitoring.
func retryable(tag string, cause error, msg string) error {
	return temporal.NewApplicationError(msg, tag, cause)
}

// nonRetryable wraps an error as a Temporal non-retryable application error.
// Used for validation failures, insufficient credits, and other conditions
// that more attempts cannot fix.
func nonRetryable(tag string, cause error, msg string) error {
	return temporal.NewNonRetryableApplicationError(msg, tag, cause)
}
