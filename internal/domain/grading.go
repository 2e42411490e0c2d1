package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Grading-specific errors.
var (
	// ErrVerdictShape indicates a grading payload that decoded but does not
	// satisfy the structural contract (question echo, response echo, letter
	// grade). Shape failures are tolerated collaborator output, not transport
	// errors; they consume a retry attempt.
	ErrVerdictShape = errors.New("grading payload has invalid shape")

	// ErrInvalidGrade indicates a grade outside {A,B,C,D,F}.
	ErrInvalidGrade = errors.New("invalid letter grade")
)

// Grade is a single-letter verdict grade.
type Grade string

// Recognized letter grades, best to worst.
const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

// ParseGrade normalizes a raw grade string to a recognized Grade.
// Lowercase input and surrounding whitespace are accepted; anything beyond
// the first letter is rejected rather than truncated so "A+" style grades
// from a drifting oracle surface as shape failures.
func ParseGrade(raw string) (Grade, error) {
	g := Grade(strings.ToUpper(strings.TrimSpace(raw)))
	switch g {
	case GradeA, GradeB, GradeC, GradeD, GradeF:
		return g, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidGrade, raw)
	}
}

// TaskStatus tracks a grading task to its guaranteed terminal state.
type TaskStatus string

const (
	// TaskStatusPending is the initial state of a dispatched task.
	TaskStatusPending TaskStatus = "pending"

	// TaskStatusRetrying indicates at least one attempt failed and the
	// coordinator is backing off before the next one.
	TaskStatusRetrying TaskStatus = "retrying"

	// TaskStatusSucceeded is terminal; Result came from the oracle.
	TaskStatusSucceeded TaskStatus = "succeeded"

	// TaskStatusFailedFallback is terminal; all attempts failed and Result is
	// the deterministic fallback verdict.
	TaskStatusFailedFallback TaskStatus = "failed_fallback"
)

// IsTerminal reports whether the task reached an end state. A grading task
// must always terminate; it never remains pending indefinitely.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusSucceeded || s == TaskStatusFailedFallback
}

// GradingTask is one answered question awaiting a verdict. Created when an
// answer arrives and mutated only by the grading coordinator.
type GradingTask struct {
	RunID string `json:"run_id" validate:"required"`

	// QuestionIndex is the zero-based position within the run.
	QuestionIndex int `json:"question_index" validate:"min=0"`

	Question string `json:"question" validate:"required,min=1"`
	Response string `json:"response"`

	// Background gives the oracle grading context (job description, resume).
	// Optional: tasks without it still grade, the oracle prompt substitutes
	// placeholders, so nested fields are not checked here.
	Background BackgroundMaterials `json:"background,omitempty" validate:"structonly"`

	// IdempotencyKey, when set by the caller, overrides the derived dedup key.
	IdempotencyKey string `json:"idempotency_key,omitempty"`

	Status  TaskStatus      `json:"status"`
	Attempt int             `json:"attempt" validate:"min=0"`
	Result  *GradingVerdict `json:"result,omitempty"`
}

// Validate checks the task meets the coordinator's input contract.
func (t *GradingTask) Validate() error { return validate.Struct(t) }

// DedupKey returns the task's deduplication key: the caller-supplied
// idempotency key when present, otherwise the run ID combined with bounded
// snippets of the question and response so key size never depends on
// payload size.
func (t *GradingTask) DedupKey() string {
	if t.IdempotencyKey != "" {
		return t.IdempotencyKey
	}
	return fmt.Sprintf("run:%s::q:%s::a:%s", t.RunID, Snippet(t.Question), Snippet(t.Response))
}

// GradingVerdict is the structured grade plus qualitative feedback for one
// question/response pair. Immutable once written to the run store.
type GradingVerdict struct {
	Question string   `json:"question" validate:"required,min=1"`
	Response string   `json:"response"`
	Grade    Grade    `json:"grade" validate:"required"`
	Summary  string   `json:"summary"`
	Pros     []string `json:"pros"`
	Cons     []string `json:"cons"`

	// Fallback marks a verdict synthesized without the oracle, either by the
	// coordinator after exhausting its retry budget or by the aggregation
	// waiter at timeout. A fallback grade is indistinguishable from a genuine
	// C in the rendered report; the marker exists for diagnostics only.
	Fallback bool `json:"fallback,omitempty"`
}

// ValidateShape checks the structural contract for oracle output: a
// non-empty question echo, a non-empty response echo, and a recognized
// letter grade. Anything else is malformed and must be tolerated by the
// caller, not treated as a transport error.
func (v *GradingVerdict) ValidateShape() error {
	if strings.TrimSpace(v.Question) == "" {
		return fmt.Errorf("%w: empty question", ErrVerdictShape)
	}
	if strings.TrimSpace(v.Response) == "" {
		return fmt.Errorf("%w: empty response echo", ErrVerdictShape)
	}
	if _, err := ParseGrade(string(v.Grade)); err != nil {
		return fmt.Errorf("%w: %v", ErrVerdictShape, err)
	}
	return nil
}

// Fixed fallback content. Wording is part of the deterministic fallback
// contract and mirrors what the report renderer expects.
const (
	fallbackSummary = "Analysis not available (grading failed)."
	fallbackPro     = "Attempted to answer the question"
	fallbackCon     = "Analysis could not be completed"
)

// FallbackVerdict builds the deterministic verdict used when grading cannot
// succeed within the retry budget: grade C, a fixed explanatory summary, one
// generic strength, and one generic caveat. The original question and
// response text are preserved when available.
func FallbackVerdict(question, response string) *GradingVerdict {
	return &GradingVerdict{
		Question: question,
		Response: response,
		Grade:    GradeC,
		Summary:  fallbackSummary,
		Pros:     []string{fallbackPro},
		Cons:     []string{fallbackCon},
		Fallback: true,
	}
}
