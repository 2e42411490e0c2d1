package domain

import (
	"errors"
	"time"
)

// Report-specific errors.
var (
	// ErrEmptyReport indicates an aggregate report with no per-question
	// verdicts, which the grade mapping cannot meaningfully summarize.
	ErrEmptyReport = errors.New("aggregate report has no verdicts")

	// ErrReportNotFound indicates no persisted report matches the query.
	ErrReportNotFound = errors.New("report not found")
)

// Grade point values used for overall-grade computation. This mapping and
// the letter thresholds below are load-bearing for comparability across
// historical reports and must not change.
var gradePoints = map[Grade]float64{
	GradeA: 4,
	GradeB: 3,
	GradeC: 2,
	GradeD: 1,
	GradeF: 0,
}

// Points returns the numeric score for the grade (A=4 .. F=0).
// Unrecognized grades score 0, the same as F.
func (g Grade) Points() float64 { return gradePoints[g] }

// OverallGrade maps the arithmetic mean of the per-question grades back to a
// letter: >=3.5 A, >=2.5 B, >=1.5 C, >=0.5 D, else F.
func OverallGrade(grades []Grade) (Grade, error) {
	if len(grades) == 0 {
		return "", ErrEmptyReport
	}

	var sum float64
	for _, g := range grades {
		sum += g.Points()
	}
	return letterFromMean(sum / float64(len(grades))), nil
}

func letterFromMean(mean float64) Grade {
	switch {
	case mean >= 3.5:
		return GradeA
	case mean >= 2.5:
		return GradeB
	case mean >= 1.5:
		return GradeC
	case mean >= 0.5:
		return GradeD
	default:
		return GradeF
	}
}

// AggregateReport is the run-level result: every per-question verdict plus
// one overall grade. Built exactly once per run by the aggregation waiter,
// either when the completion predicate holds or when the bounded wait
// expires (with missing verdicts synthesized as fallbacks).
type AggregateReport struct {
	RunID string `json:"run_id" validate:"required"`

	OverallGrade Grade `json:"overall_grade" validate:"required"`

	// PerQuestion holds one verdict per question index, 0..expectedCount-1.
	PerQuestion []GradingVerdict `json:"per_question" validate:"required,min=1,dive"`

	ComputedAt time.Time `json:"computed_at" validate:"required"`
}

// Validate checks structural integrity of the report.
func (r *AggregateReport) Validate() error {
	if err := validate.Struct(r); err != nil {
		return err
	}
	if len(r.PerQuestion) == 0 {
		return ErrEmptyReport
	}
	return nil
}

// FallbackCount reports how many verdicts were synthesized rather than
// produced by the oracle.
func (r *AggregateReport) FallbackCount() int {
	n := 0
	for i := range r.PerQuestion {
		if r.PerQuestion[i].Fallback {
			n++
		}
	}
	return n
}

// PersistedReport is the durable form of an aggregate report, written at
// most once per run (idempotency key = RunID).
type PersistedReport struct {
	ReportID  string          `json:"report_id" validate:"required,uuid"`
	RunID     string          `json:"run_id" validate:"required"`
	AccountID string          `json:"account_id" validate:"required"`
	Grade     Grade           `json:"grade" validate:"required"`
	Details   AggregateReport `json:"details"`
	CreatedAt time.Time       `json:"created_at" validate:"required"`
}

// Validate checks structural integrity of the persisted report.
func (p *PersistedReport) Validate() error { return validate.Struct(p) }
