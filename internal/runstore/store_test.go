package runstore

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mockmate/mockmate/internal/domain"
)

func testRun(runID string) domain.ProvisioningRun {
	return domain.ProvisioningRun{
		RunID:     runID,
		AccountID: "acct-1",
		Status:    domain.RunStatusReserving,
		Materials: domain.BackgroundMaterials{
			JobDescription: "Backend engineer",
			Resume:         "Go experience",
			NumQuestions:   3,
		},
	}
}

func TestStore_Runs(t *testing.T) {
	s := New()
	runID := "9f1c3a50-0000-4000-8000-000000000001"

	_, err := s.GetRun(runID)
	assert.ErrorIs(t, err, domain.ErrRunNotFound)

	s.PutRun(testRun(runID))

	run, err := s.GetRun(runID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusReserving, run.Status)

	require.NoError(t, s.SetRunStatus(runID, domain.RunStatusReady, ""))
	run, err = s.GetRun(runID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusReady, run.Status)
	assert.Empty(t, run.Error)

	require.NoError(t, s.SetRunStatus(runID, domain.RunStatusFailed, "boom"))
	run, err = s.GetRun(runID)
	require.NoError(t, err)
	assert.Equal(t, "boom", run.Error)

	assert.ErrorIs(t, s.SetRunStatus("missing", domain.RunStatusReady, ""), domain.ErrRunNotFound)
}

func TestStore_Verdicts(t *testing.T) {
	s := New()
	runID := "run-1"

	t.Run("nil verdict rejected", func(t *testing.T) {
		assert.ErrorIs(t, s.PutVerdict(runID, 0, nil), ErrNilVerdict)
	})

	t.Run("negative index rejected", func(t *testing.T) {
		v := domain.FallbackVerdict("q", "r")
		assert.ErrorIs(t, s.PutVerdict(runID, -1, v), ErrNegativeIndex)
	})

	t.Run("whole value write and read back", func(t *testing.T) {
		v := &domain.GradingVerdict{Question: "q0", Response: "r0", Grade: domain.GradeA}
		require.NoError(t, s.PutVerdict(runID, 0, v))

		got, ok := s.Verdict(runID, 0)
		require.True(t, ok)
		assert.Equal(t, *v, got)

		// Mutating the original after the write must not affect the store.
		v.Grade = domain.GradeF
		got, _ = s.Verdict(runID, 0)
		assert.Equal(t, domain.GradeA, got.Grade)
	})

	t.Run("last write wins per index", func(t *testing.T) {
		first := &domain.GradingVerdict{Question: "q1", Response: "r1", Grade: domain.GradeB}
		second := &domain.GradingVerdict{Question: "q1", Response: "r1", Grade: domain.GradeD}
		require.NoError(t, s.PutVerdict(runID, 1, first))
		require.NoError(t, s.PutVerdict(runID, 1, second))

		got, ok := s.Verdict(runID, 1)
		require.True(t, ok)
		assert.Equal(t, domain.GradeD, got.Grade)
	})

	t.Run("runs are isolated", func(t *testing.T) {
		_, ok := s.Verdict("other-run", 0)
		assert.False(t, ok)
		assert.Equal(t, 0, s.VerdictCount("other-run"))
	})
}

func TestStore_Complete(t *testing.T) {
	s := New()
	runID := "run-1"

	assert.False(t, s.Complete(runID, 0), "non-positive expected count never completes")
	assert.False(t, s.Complete(runID, -1))
	assert.False(t, s.Complete(runID, 2), "no verdicts yet")

	require.NoError(t, s.PutVerdict(runID, 0, domain.FallbackVerdict("q0", "r")))
	assert.False(t, s.Complete(runID, 2), "one of two")

	// A verdict beyond the expected range does not complete the set.
	require.NoError(t, s.PutVerdict(runID, 5, domain.FallbackVerdict("q5", "r")))
	assert.False(t, s.Complete(runID, 2))

	require.NoError(t, s.PutVerdict(runID, 1, domain.FallbackVerdict("q1", "r")))
	assert.True(t, s.Complete(runID, 2))
}

func TestStore_TryClaim(t *testing.T) {
	s := New()

	t.Run("first claim wins", func(t *testing.T) {
		assert.True(t, s.TryClaim("run-1", "waiter-a"))
		assert.False(t, s.TryClaim("run-1", "waiter-b"))

		owner, ok := s.ClaimOwner("run-1")
		require.True(t, ok)
		assert.Equal(t, "waiter-a", owner)
	})

	t.Run("exactly one concurrent winner", func(t *testing.T) {
		const contenders = 20
		var wg sync.WaitGroup
		wins := make([]bool, contenders)
		for i := 0; i < contenders; i++ {
			i := i
			wg.Add(1)
			go func() {
				defer wg.Done()
				wins[i] = s.TryClaim("run-2", "waiter")
			}()
		}
		wg.Wait()

		winners := 0
		for _, won := range wins {
			if won {
				winners++
			}
		}
		assert.Equal(t, 1, winners)
	})
}

func TestStore_Markers(t *testing.T) {
	s := New()

	assert.False(t, s.HasMarker("run-1", "report_saved"))
	s.SetMarker("run-1", "report_saved")
	assert.True(t, s.HasMarker("run-1", "report_saved"))
	s.SetMarker("run-1", "report_saved") // idempotent
	assert.True(t, s.HasMarker("run-1", "report_saved"))
	assert.False(t, s.HasMarker("run-2", "report_saved"))
}

func TestStore_DropRun(t *testing.T) {
	s := New()
	runID := "9f1c3a50-0000-4000-8000-000000000002"

	s.PutRun(testRun(runID))
	require.NoError(t, s.PutVerdict(runID, 0, domain.FallbackVerdict("q", "r")))
	s.SetMarker(runID, "report_saved")
	s.TryClaim(runID, "waiter")

	s.DropRun(runID)

	_, err := s.GetRun(runID)
	assert.ErrorIs(t, err, domain.ErrRunNotFound)
	assert.Equal(t, 0, s.VerdictCount(runID))
	assert.False(t, s.HasMarker(runID, "report_saved"))
	_, claimed := s.ClaimOwner(runID)
	assert.False(t, claimed)
}
