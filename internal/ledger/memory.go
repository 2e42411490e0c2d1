package ledger

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/mockmate/mockmate/internal/domain"
)

// reservation records one issued token so releases can be made idempotent.
type reservation struct {
	accountID string
	amount    int
	released  bool
}

// MemoryLedger is an in-memory Ledger and AccountStore. The mutex makes the
// read-guarded decrement atomic under real parallelism; the reservations map
// makes release idempotent per token.
type MemoryLedger struct {
	mu           sync.Mutex
	accounts     map[string]domain.Account
	reservations map[ReservationToken]*reservation
}

var (
	_ Ledger       = (*MemoryLedger)(nil)
	_ AccountStore = (*MemoryLedger)(nil)
)

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		accounts:     make(map[string]domain.Account),
		reservations: make(map[ReservationToken]*reservation),
	}
}

// Reserve implements Ledger.Reserve with a conditional decrement under the
// ledger lock. On insufficient balance the account is left untouched.
func (l *MemoryLedger) Reserve(
	_ context.Context, accountID string, amount int,
) (ReservationToken, error) {
	if amount <= 0 {
		return "", ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	acct, ok := l.accounts[accountID]
	if !ok {
		return "", domain.ErrAccountNotFound
	}
	if acct.CreditsRemaining < amount {
		return "", domain.ErrInsufficientCredits
	}

	acct.CreditsRemaining -= amount
	acct.CreditsUsed += amount
	l.accounts[accountID] = acct

	token := ReservationToken(uuid.NewString())
	l.reservations[token] = &reservation{accountID: accountID, amount: amount}
	return token, nil
}

// Release implements Ledger.Release. A token that was already released is a
// no-op, so retried compensation never double-credits the account.
func (l *MemoryLedger) Release(
	_ context.Context, accountID string, amount int, token ReservationToken,
) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	res, ok := l.reservations[token]
	if !ok {
		return ErrUnknownToken
	}
	if res.accountID != accountID {
		return ErrTokenAccountMismatch
	}
	if res.released {
		return nil
	}

	acct, ok := l.accounts[accountID]
	if !ok {
		return domain.ErrAccountNotFound
	}

	acct.CreditsRemaining += res.amount
	l.accounts[accountID] = acct
	res.released = true
	return nil
}

// GetAccount returns a copy of the account record.
func (l *MemoryLedger) GetAccount(_ context.Context, accountID string) (domain.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acct, ok := l.accounts[accountID]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return acct, nil
}

// PutAccount stores or replaces the account record.
func (l *MemoryLedger) PutAccount(_ context.Context, account domain.Account) error {
	if err := account.Validate(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts[account.ID] = account
	return nil
}

// SaveMaterials persists the most recently submitted background materials on
// the account record.
func (l *MemoryLedger) SaveMaterials(
	_ context.Context, accountID string, materials domain.BackgroundMaterials,
) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	acct, ok := l.accounts[accountID]
	if !ok {
		return domain.ErrAccountNotFound
	}
	acct.Materials = materials
	l.accounts[accountID] = acct
	return nil
}
