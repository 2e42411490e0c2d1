// Package oracle defines the contracts for the external collaborators the
// pipeline depends on: question generation, narration synthesis, answer
// grading, and audit logging. Only the structural contracts here are
// load-bearing; concrete implementations are thin integrations.
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/mockmate/mockmate/internal/domain"
)

// Collaborator transport errors. Payloads that arrive but decode badly are
// NOT transport errors; the grading coordinator tolerates those as malformed
// output.
var (
	// ErrGenerationUnavailable indicates the question generator could not be
	// reached or returned a failure status.
	ErrGenerationUnavailable = errors.New("question generator unavailable")

	// ErrNarrationUnavailable indicates narration synthesis failed.
	ErrNarrationUnavailable = errors.New("narration service unavailable")

	// ErrGradingUnavailable indicates the grading oracle could not be
	// reached. Retryable by the coordinator.
	ErrGradingUnavailable = errors.New("grading oracle unavailable")

	// ErrEmptyCompletion indicates the collaborator answered with no content.
	ErrEmptyCompletion = errors.New("collaborator returned empty completion")
)

// QuestionGenerator produces an ordered, non-empty list of interview
// questions from the submitted background materials.
type QuestionGenerator interface {
	Generate(ctx context.Context, materials domain.BackgroundMaterials) ([]string, error)
}

// NarrationService synthesizes narration audio for one question and returns
// an opaque reference to the produced asset.
type NarrationService interface {
	Synthesize(ctx context.Context, text string) (string, error)
}

// GradingOracle grades a single question/response pair. The returned payload
// is raw collaborator output: it may be valid JSON, JSON wrapped in prose or
// code fences, or garbage. Callers must tolerate malformed payloads rather
// than treating them as transport failures.
type GradingOracle interface {
	Grade(ctx context.Context, question, response string, background domain.BackgroundMaterials) (json.RawMessage, error)
}

// AuditRecord is one append-only audit entry, keyed by account and run.
type AuditRecord struct {
	AccountID string          `json:"account_id"`
	RunID     string          `json:"run_id"`
	Type      string          `json:"type"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// AuditLog is an append-only sink for audit records.
type AuditLog interface {
	Append(ctx context.Context, rec AuditRecord) error
}
