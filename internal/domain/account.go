package domain

// Account holds the metered credit balance for one user. The balance is
// mutated only by the credit ledger's reserve/release operations; all other
// components treat it as read-only.
//
// Invariant: CreditsRemaining >= 0 at all times. The ledger enforces this
// with a conditional, read-guarded decrement so concurrent reservations on
// the same account can never oversell.
type Account struct {
	// ID is the stable account identifier supplied by the identity resolver.
	ID string `json:"id" validate:"required"`

	// CreditsRemaining is the spendable balance.
	CreditsRemaining int `json:"credits_remaining" validate:"min=0"`

	// CreditsUsed counts credits consumed over the account lifetime.
	// Released reservations do not decrement this counter.
	CreditsUsed int `json:"credits_used" validate:"min=0"`

	// Materials records the most recently submitted background materials.
	// Persisted at saga start so a returning user can re-run with one click.
	// Optional: fresh accounts carry none, so nested fields are not checked
	// here. Submission paths validate materials before a run starts.
	Materials BackgroundMaterials `json:"materials,omitempty" validate:"structonly"`
}

// Validate checks structural integrity of the account record.
func (a *Account) Validate() error { return validate.Struct(a) }

// BackgroundMaterials is the user-provided context the generation pipeline
// works from: a job description, resume text, and the requested question
// count. Immutable once a run starts.
type BackgroundMaterials struct {
	JobDescription string `json:"job_description" validate:"required,min=1"`
	Resume         string `json:"resume" validate:"required,min=1"`

	// NumQuestions is how many questions the generator should produce.
	NumQuestions int `json:"num_questions" validate:"min=1,max=20"`
}

// Validate checks the materials meet the generation contract.
func (m *BackgroundMaterials) Validate() error { return validate.Struct(m) }
