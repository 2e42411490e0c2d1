// Package activity provides shared infrastructure for Temporal activity
// implementations: workflow-context extraction, panic-safe logging, and
// best-effort event emission, usable both inside real activity contexts and
// in plain test contexts.
package activity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"

	"github.com/mockmate/mockmate/pkg/events"
)

// WorkflowContext carries the execution metadata activities stamp onto
// events and idempotency keys. In test contexts, where no Temporal activity
// environment exists, synthetic identifiers are generated instead.
type WorkflowContext struct {
	WorkflowID string
	RunID      string
	ActivityID string
}

// BaseActivities bundles the cross-cutting concerns every activity struct
// embeds: an event sink and the helpers below.
type BaseActivities struct {
	eventSink events.EventSink
}

// NewBaseActivities creates shared activity infrastructure. A nil sink
// disables event emission (testing scenario).
func NewBaseActivities(sink events.EventSink) BaseActivities {
	return BaseActivities{eventSink: sink}
}

// GetWorkflowContext extracts workflow execution details from the activity
// context. Outside a Temporal activity (where activity.GetInfo panics) it
// falls back to generated test identifiers so activities behave the same
// under the test suite.
func (b *BaseActivities) GetWorkflowContext(ctx context.Context) WorkflowContext {
	var wfCtx WorkflowContext

	func() {
		defer func() {
			if recover() != nil {
				wfCtx.WorkflowID = "test-workflow"
				wfCtx.RunID = "test-run-" + uuid.NewString()[:8]
				wfCtx.ActivityID = "test-activity"
			}
		}()

		info := activity.GetInfo(ctx)
		wfCtx.WorkflowID = info.WorkflowExecution.ID
		wfCtx.RunID = info.WorkflowExecution.RunID
		wfCtx.ActivityID = info.ActivityID
	}()

	return wfCtx
}

// EmitEventSafe appends an event with best-effort delivery: up to two
// attempts with a short delay, logging the outcome either way. Sink failures
// never propagate to the primary operation.
func (b *BaseActivities) EmitEventSafe(
	ctx context.Context,
	envelope events.Envelope,
	description string,
) {
	if b.eventSink == nil {
		return
	}

	const maxAttempts = 2
	const retryDelay = 200 * time.Millisecond

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				SafeLogError(ctx, "event emission cancelled: "+description,
					"event_type", envelope.Type)
				return
			}
		}

		if err := b.eventSink.Append(ctx, envelope); err != nil {
			lastErr = err
			continue
		}

		SafeLog(ctx, "event emitted: "+description,
			"event_type", envelope.Type,
			"idempotency_key", envelope.IdempotencyKey)
		return
	}

	SafeLogError(ctx, "event emission failed: "+description,
		"event_type", envelope.Type,
		"error", lastErr)
}

// RecordHeartbeat reports activity progress. Safe to call outside an
// activity context, where it is ignored.
func (b *BaseActivities) RecordHeartbeat(ctx context.Context, details ...any) {
	RecordHeartbeat(ctx, details...)
}

// SafeLog logs at INFO via the activity logger, silently ignoring the call
// when no activity context is present.
func SafeLog(ctx context.Context, msg string, keyvals ...any) {
	defer func() {
		_ = recover() // not an activity context
	}()
	activity.GetLogger(ctx).Info(msg, keyvals...)
}

// SafeLogError logs at ERROR via the activity logger, silently ignoring the
// call when no activity context is present.
func SafeLogError(ctx context.Context, msg string, keyvals ...any) {
	defer func() {
		_ = recover() // not an activity context
	}()
	activity.GetLogger(ctx).Error(msg, keyvals...)
}

// RecordHeartbeat reports progress for long-running activities, ignoring the
// call outside an activity context.
func RecordHeartbeat(ctx context.Context, details ...any) {
	defer func() {
		_ = recover() // not an activity context
	}()
	activity.RecordHeartbeat(ctx, details...)
}
