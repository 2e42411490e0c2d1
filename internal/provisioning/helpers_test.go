package provisioning

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mockmate/mockmate/internal/domain"
	"github.com/mockmate/mockmate/internal/ledger"
	"github.com/mockmate/mockmate/internal/oracle"
	"github.com/mockmate/mockmate/internal/runstore"
	"github.com/mockmate/mockmate/pkg/activity"
)

const (
	testRunID     = "9f1c3a50-0000-4000-8000-000000000010"
	testAccountID = "acct-1"
)

func testMaterials() domain.BackgroundMaterials {
	return domain.BackgroundMaterials{
		JobDescription: "Backend engineer building payment systems",
		Resume:         "Five years of Go, two of distributed systems",
		NumQuestions:   3,
	}
}

// fakeGenerator returns a fixed question list or a scripted error.
type fakeGenerator struct {
	questions []string
	err       error
}

func (g *fakeGenerator) Generate(_ context.Context, _ domain.BackgroundMaterials) ([]string, error) {
	return g.questions, g.err
}

// fakeNarrator synthesizes deterministic refs, optionally failing on one
// exact question text.
type fakeNarrator struct {
	mu       sync.Mutex
	calls    int
	failText string
}

func (n *fakeNarrator) Synthesize(_ context.Context, text string) (string, error) {
	n.mu.Lock()
	n.calls++
	n.mu.Unlock()

	if n.failText != "" && text == n.failText {
		return "", fmt.Errorf("%w: synth rejected", oracle.ErrNarrationUnavailable)
	}
	return "data:audio/mp3;base64,ref-" + text, nil
}

// fakeAudit wraps the in-memory audit log with error injection.
type fakeAudit struct {
	*oracle.MemoryAuditLog
	err error
}

func (a *fakeAudit) Append(ctx context.Context, rec oracle.AuditRecord) error {
	if a.err != nil {
		return a.err
	}
	return a.MemoryAuditLog.Append(ctx, rec)
}

func (a *fakeAudit) count() int { return len(a.Records()) }

// testHarness bundles the fakes and stores behind one Activities instance.
type testHarness struct {
	activities *Activities
	ledger     *ledger.MemoryLedger
	runs       *runstore.Store
	generator  *fakeGenerator
	narrator   *fakeNarrator
	audit      *fakeAudit
}

func newTestHarness(t *testing.T, credits int) *testHarness {
	t.Helper()

	l := ledger.NewMemoryLedger()
	require.NoError(t, l.PutAccount(context.Background(), domain.Account{
		ID:               testAccountID,
		CreditsRemaining: credits,
	}))

	h := &testHarness{
		ledger: l,
		runs:   runstore.New(),
		generator: &fakeGenerator{questions: []string{
			"Tell me about a production incident you handled.",
			"How do you design for idempotency?",
			"Walk me through a schema migration you led.",
		}},
		narrator: &fakeNarrator{},
		audit:    &fakeAudit{MemoryAuditLog: oracle.NewMemoryAuditLog()},
	}
	h.activities = NewActivities(
		activity.NewBaseActivities(nil),
		h.ledger,
		h.ledger,
		h.generator,
		h.narrator,
		h.audit,
		h.runs,
	)
	return h
}

func (h *testHarness) balance(t *testing.T) int {
	t.Helper()
	acct, err := h.ledger.GetAccount(context.Background(), testAccountID)
	require.NoError(t, err)
	return acct.CreditsRemaining
}

func mustMarshal(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
