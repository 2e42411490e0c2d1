// Package worker exposes helpers to register the provisioning workflow and
// its activities with a Temporal worker.
package worker

import (
	sdkworker "go.temporal.io/sdk/worker"

	"github.com/mockmate/mockmate/internal/ledger"
	"github.com/mockmate/mockmate/internal/oracle"
	"github.com/mockmate/mockmate/internal/provisioning"
	"github.com/mockmate/mockmate/internal/runstore"
	"github.com/mockmate/mockmate/pkg/activity"
	"github.com/mockmate/mockmate/pkg/events"
)

// Deps bundles the infrastructure the provisioning activities need.
type Deps struct {
	Ledger    ledger.Ledger
	Accounts  ledger.AccountStore
	Generator oracle.QuestionGenerator
	Narrator  oracle.NarrationService
	Audit     oracle.AuditLog
	Runs      *runstore.Store
	EventSink events.EventSink
}

// RegisterAll registers the provisioning workflow and its activities with
// the Temporal worker. Call once during worker initialization, before
// starting the worker; registration is not thread-safe.
func RegisterAll(w sdkworker.Worker, deps Deps) {
	sink := deps.EventSink
	if sink == nil {
		sink = events.NewNoOpEventSink()
	}
	base := activity.NewBaseActivities(sink)

	a := provisioning.NewActivities(
		base,
		deps.Ledger,
		deps.Accounts,
		deps.Generator,
		deps.Narrator,
		deps.Audit,
		deps.Runs,
	)

	w.RegisterWorkflow(provisioning.ProvisionInterviewWorkflow)

	w.RegisterActivity(a.RegisterRun)
	w.RegisterActivity(a.UpdateRunStatus)
	w.RegisterActivity(a.VerifyAccount)
	w.RegisterActivity(a.ReserveCredit)
	w.RegisterActivity(a.ReleaseCredit)
	w.RegisterActivity(a.GenerateQuestions)
	w.RegisterActivity(a.SynthesizeNarration)
	w.RegisterActivity(a.AppendAuditRecord)
	w.RegisterActivity(a.CompleteRun)
}
