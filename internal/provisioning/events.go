package provisioning

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mockmate/mockmate/pkg/activity"
	"github.com/mockmate/mockmate/pkg/events"
)

// creditReservedEvent records a successful credit reservation, the point
// after which every failure must be compensated.
type creditReservedEvent struct {
	AccountID  string    `json:"account_id"`
	RunID      string    `json:"run_id"`
	Amount     int       `json:"amount"`
	Token      string    `json:"token"`
	ReservedAt time.Time `json:"reserved_at"`
}

// creditReleasedEvent records a compensating refund after a failed saga.
type creditReleasedEvent struct {
	AccountID  string    `json:"account_id"`
	RunID      string    `json:"run_id"`
	Amount     int       `json:"amount"`
	Reason     string    `json:"reason"`
	ReleasedAt time.Time `json:"released_at"`
}

// runReadyEvent records a fully provisioned run with narrated questions.
type runReadyEvent struct {
	AccountID     string    `json:"account_id"`
	RunID         string    `json:"run_id"`
	QuestionCount int       `json:"question_count"`
	ReadyAt       time.Time `json:"ready_at"`
}

// EventEmitter handles event emission for the provisioning domain.
type EventEmitter struct {
	base activity.BaseActivities
}

// NewEventEmitter creates a new EventEmitter with the provided base activities.
func NewEventEmitter(base activity.BaseActivities) *EventEmitter {
	return &EventEmitter{base: base}
}

// EmitCreditReserved emits an event after a credit reservation succeeds.
// Idempotent per (runID, token) so retried activities do not double-count.
func (e *EventEmitter) EmitCreditReserved(
	ctx context.Context,
	accountID, runID, token string,
	amount int,
) {
	payload, err := json.Marshal(creditReservedEvent{
		AccountID:  accountID,
		RunID:      runID,
		Amount:     amount,
		Token:      token,
		ReservedAt: time.Now(),
	})
	if err != nil {
		activity.SafeLogError(ctx, "failed to marshal credit reserved event",
			"run_id", runID, "error", err)
		return
	}

	e.base.EmitEventSafe(ctx, events.Envelope{
		ID:             uuid.NewString(),
		Type:           "provisioning.credit_reserved",
		Source:         "provisioning-activity",
		Version:        "1.0.0",
		Timestamp:      time.Now(),
		IdempotencyKey: fmt.Sprintf("credit-reserved-%s-%s", runID, token),
		AccountID:      accountID,
		RunID:          runID,
		Payload:        payload,
	}, "CreditReserved")
}

// EmitCreditReleased emits an event after a compensating refund. Idempotent
// per run: compensation runs at most once to completion per saga.
func (e *EventEmitter) EmitCreditReleased(
	ctx context.Context,
	accountID, runID, reason string,
	amount int,
) {
	payload, err := json.Marshal(creditReleasedEvent{
		AccountID:  accountID,
		RunID:      runID,
		Amount:     amount,
		Reason:     reason,
		ReleasedAt: time.Now(),
	})
	if err != nil {
		activity.SafeLogError(ctx, "failed to marshal credit released event",
			"run_id", runID, "error", err)
		return
	}

	e.base.EmitEventSafe(ctx, events.Envelope{
		ID:             uuid.NewString(),
		Type:           "provisioning.credit_released",
		Source:         "provisioning-activity",
		Version:        "1.0.0",
		Timestamp:      time.Now(),
		IdempotencyKey: fmt.Sprintf("credit-released-%s", runID),
		AccountID:      accountID,
		RunID:          runID,
		Payload:        payload,
	}, "CreditReleased")
}

// EmitRunReady emits an event when the run reaches its ready state.
func (e *EventEmitter) EmitRunReady(
	ctx context.Context,
	accountID, runID string,
	questionCount int,
) {
	payload, err := json.Marshal(runReadyEvent{
		AccountID:     accountID,
		RunID:         runID,
		QuestionCount: questionCount,
		ReadyAt:       time.Now(),
	})
	if err != nil {
		activity.SafeLogError(ctx, "failed to marshal run ready event",
			"run_id", runID, "error", err)
		return
	}

	e.base.EmitEventSafe(ctx, events.Envelope{
		ID:             uuid.NewString(),
		Type:           "provisioning.run_ready",
		Source:         "provisioning-activity",
		Version:        "1.0.0",
		Timestamp:      time.Now(),
		IdempotencyKey: fmt.Sprintf("run-ready-%s", runID),
		AccountID:      accountID,
		RunID:          runID,
		Payload:        payload,
	}, "RunReady")
}
