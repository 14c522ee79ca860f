package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"feeledger/internal/core"
)

// Event types carried in the "type" field of every message.
const (
	EventBalanceChanged          = "balance.changed"
	EventStudentRemoved          = "student.removed"
	EventReconciliationCompleted = "reconciliation.completed"
)

// ErrMalformedMessage marks a delivery that can never be processed and must not be requeued.
var ErrMalformedMessage = errors.New("malformed ledger message")

// BalanceChangedMessage carries a student's balance after a payment, removal or rollover.
// The consumer reloads the student so only the identifying fields matter for correctness.
type BalanceChangedMessage struct {
	Type                string    `json:"type"`
	StudentID           string    `json:"student_id"`
	CurrentBalanceCents int64     `json:"current_balance_cents"`
	Status              string    `json:"status"`
	Version             int64     `json:"version"`
	Timestamp           time.Time `json:"timestamp"`
}

func NewBalanceChangedMessage(b core.Balance) *BalanceChangedMessage {
	return &BalanceChangedMessage{
		Type:                EventBalanceChanged,
		StudentID:           b.StudentID,
		CurrentBalanceCents: b.Current.Cents,
		Status:              string(b.View().Status),
		Version:             b.Version,
		Timestamp:           time.Now(),
	}
}

type StudentRemovedMessage struct {
	Type      string    `json:"type"`
	StudentID string    `json:"student_id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewStudentRemovedMessage(studentID string) *StudentRemovedMessage {
	return &StudentRemovedMessage{
		Type:      EventStudentRemoved,
		StudentID: studentID,
		Timestamp: time.Now(),
	}
}

type ReconciliationCompletedMessage struct {
	Type        string    `json:"type"`
	RunID       string    `json:"run_id"`
	PeriodStart string    `json:"period_start"`
	PeriodEnd   string    `json:"period_end"`
	Reconciled  int       `json:"reconciled"`
	Failed      int       `json:"failed"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewReconciliationCompletedMessage(runID string, p core.Period, reconciled, failed int) *ReconciliationCompletedMessage {
	return &ReconciliationCompletedMessage{
		Type:        EventReconciliationCompleted,
		RunID:       runID,
		PeriodStart: p.Start.String(),
		PeriodEnd:   p.End.String(),
		Reconciled:  reconciled,
		Failed:      failed,
		Timestamp:   time.Now(),
	}
}

// Handler processes decoded ledger events.
type Handler interface {
	HandleBalanceChanged(ctx context.Context, msg *BalanceChangedMessage) error
	HandleStudentRemoved(ctx context.Context, msg *StudentRemovedMessage) error
	HandleReconciliationCompleted(ctx context.Context, msg *ReconciliationCompletedMessage) error
}

// Dispatch decodes body by its type field and calls the matching handler method.
// Undecodable bodies and unknown types return an error wrapping ErrMalformedMessage.
func Dispatch(ctx context.Context, h Handler, body []byte) error {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	switch envelope.Type {
	case EventBalanceChanged:
		var msg BalanceChangedMessage
		if err := json.Unmarshal(body, &msg); err != nil || msg.StudentID == "" {
			return fmt.Errorf("%w: balance.changed without student_id", ErrMalformedMessage)
		}
		return h.HandleBalanceChanged(ctx, &msg)
	case EventStudentRemoved:
		var msg StudentRemovedMessage
		if err := json.Unmarshal(body, &msg); err != nil || msg.StudentID == "" {
			return fmt.Errorf("%w: student.removed without student_id", ErrMalformedMessage)
		}
		return h.HandleStudentRemoved(ctx, &msg)
	case EventReconciliationCompleted:
		var msg ReconciliationCompletedMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		return h.HandleReconciliationCompleted(ctx, &msg)
	default:
		return fmt.Errorf("%w: unknown type %q", ErrMalformedMessage, envelope.Type)
	}
}
