// Package ledger owns account credit balances and the atomic
// reserve/release operations the provisioning saga spends and refunds
// credits through. Reservations use a conditional, read-guarded decrement so
// concurrent reservations on one account can never push the balance below
// zero; releases are idempotent per reservation token.
package ledger

import (
	"context"
	"errors"

	"github.com/mockmate/mockmate/internal/domain"
)

// Ledger-specific errors.
var (
	// ErrUnknownToken indicates a release with a token the ledger never
	// issued. Distinct from an already-released token, which is a no-op.
	ErrUnknownToken = errors.New("unknown reservation token")

	// ErrTokenAccountMismatch indicates a release whose token was issued for
	// a different account.
	ErrTokenAccountMismatch = errors.New("reservation token belongs to a different account")

	// ErrInvalidAmount indicates a non-positive reserve/release amount.
	ErrInvalidAmount = errors.New("amount must be positive")
)

// ReservationToken identifies one successful reservation. Releasing the same
// token twice must not double-credit the account.
type ReservationToken string

// Ledger is the atomic credit reserve/release contract.
type Ledger interface {
	// Reserve atomically checks creditsRemaining >= amount and decrements the
	// balance, returning a token for later compensation. On insufficient
	// balance it returns domain.ErrInsufficientCredits and leaves the balance
	// unchanged.
	Reserve(ctx context.Context, accountID string, amount int) (ReservationToken, error)

	// Release is the compensating increment for a prior reservation.
	// Idempotent per token: a second release of the same token is a no-op.
	Release(ctx context.Context, accountID string, amount int, token ReservationToken) error
}

// AccountStore reads and writes account records, including the background
// materials persisted at saga start.
type AccountStore interface {
	GetAccount(ctx context.Context, accountID string) (domain.Account, error)
	PutAccount(ctx context.Context, account domain.Account) error
	SaveMaterials(ctx context.Context, accountID string, materials domain.BackgroundMaterials) error
}
