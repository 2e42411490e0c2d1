package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mockmate/mockmate/internal/domain"
)

func newTestLedger(t *testing.T, credits int) *MemoryLedger {
	t.Helper()
	l := NewMemoryLedger()
	require.NoError(t, l.PutAccount(context.Background(), domain.Account{
		ID:               "acct-1",
		CreditsRemaining: credits,
	}))
	return l
}

func TestMemoryLedger_Reserve(t *testing.T) {
	ctx := context.Background()

	t.Run("reserve decrements balance and counts usage", func(t *testing.T) {
		l := newTestLedger(t, 3)

		token, err := l.Reserve(ctx, "acct-1", 1)
		require.NoError(t, err)
		assert.NotEmpty(t, token)

		acct, err := l.GetAccount(ctx, "acct-1")
		require.NoError(t, err)
		assert.Equal(t, 2, acct.CreditsRemaining)
		assert.Equal(t, 1, acct.CreditsUsed)
	})

	t.Run("insufficient balance leaves account untouched", func(t *testing.T) {
		l := newTestLedger(t, 0)

		_, err := l.Reserve(ctx, "acct-1", 1)
		assert.ErrorIs(t, err, domain.ErrInsufficientCredits)

		acct, err := l.GetAccount(ctx, "acct-1")
		require.NoError(t, err)
		assert.Equal(t, 0, acct.CreditsRemaining)
		assert.Equal(t, 0, acct.CreditsUsed)
	})

	t.Run("unknown account", func(t *testing.T) {
		l := NewMemoryLedger()
		_, err := l.Reserve(ctx, "missing", 1)
		assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	})

	t.Run("non-positive amount rejected", func(t *testing.T) {
		l := newTestLedger(t, 1)
		_, err := l.Reserve(ctx, "acct-1", 0)
		assert.ErrorIs(t, err, ErrInvalidAmount)
		_, err = l.Reserve(ctx, "acct-1", -1)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("concurrent reservations never oversell", func(t *testing.T) {
		const credits = 5
		const attempts = 50
		l := newTestLedger(t, credits)

		var wg sync.WaitGroup
		results := make([]error, attempts)
		for i := 0; i < attempts; i++ {
			i := i
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, results[i] = l.Reserve(ctx, "acct-1", 1)
			}()
		}
		wg.Wait()

		succeeded := 0
		for _, err := range results {
			if err == nil {
				succeeded++
			} else {
				assert.ErrorIs(t, err, domain.ErrInsufficientCredits)
			}
		}
		assert.Equal(t, credits, succeeded)

		acct, err := l.GetAccount(ctx, "acct-1")
		require.NoError(t, err)
		assert.Equal(t, 0, acct.CreditsRemaining)
		assert.Equal(t, credits, acct.CreditsUsed)
	})
}

func TestMemoryLedger_Release(t *testing.T) {
	ctx := context.Background()

	t.Run("release restores the balance", func(t *testing.T) {
		l := newTestLedger(t, 1)

		token, err := l.Reserve(ctx, "acct-1", 1)
		require.NoError(t, err)

		require.NoError(t, l.Release(ctx, "acct-1", 1, token))

		acct, err := l.GetAccount(ctx, "acct-1")
		require.NoError(t, err)
		assert.Equal(t, 1, acct.CreditsRemaining)
	})

	t.Run("double release is a no-op", func(t *testing.T) {
		l := newTestLedger(t, 1)

		token, err := l.Reserve(ctx, "acct-1", 1)
		require.NoError(t, err)

		require.NoError(t, l.Release(ctx, "acct-1", 1, token))
		require.NoError(t, l.Release(ctx, "acct-1", 1, token))

		acct, err := l.GetAccount(ctx, "acct-1")
		require.NoError(t, err)
		assert.Equal(t, 1, acct.CreditsRemaining, "second release must not double-credit")
	})

	t.Run("unknown token", func(t *testing.T) {
		l := newTestLedger(t, 1)
		err := l.Release(ctx, "acct-1", 1, ReservationToken("made-up"))
		assert.ErrorIs(t, err, ErrUnknownToken)
	})

	t.Run("token issued for another account", func(t *testing.T) {
		l := newTestLedger(t, 1)
		require.NoError(t, l.PutAccount(ctx, domain.Account{ID: "acct-2", CreditsRemaining: 1}))

		token, err := l.Reserve(ctx, "acct-1", 1)
		require.NoError(t, err)

		err = l.Release(ctx, "acct-2", 1, token)
		assert.ErrorIs(t, err, ErrTokenAccountMismatch)
	})
}

func TestMemoryLedger_SaveMaterials(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, 1)

	materials := domain.BackgroundMaterials{
		JobDescription: "Backend engineer",
		Resume:         "Five years of Go",
		NumQuestions:   3,
	}
	require.NoError(t, l.SaveMaterials(ctx, "acct-1", materials))

	acct, err := l.GetAccount(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, materials, acct.Materials)

	assert.ErrorIs(t, l.SaveMaterials(ctx, "missing", materials), domain.ErrAccountNotFound)
}
