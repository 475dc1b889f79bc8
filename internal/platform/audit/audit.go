// Package audit records business transitions: payments, refunds, dispensing,
// returns, stock adjustments and reviews.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/his/his/internal/platform/auth"
)

const (
	ActionPaymentProcessed   = "payment.processed"
	ActionPaymentReplayed    = "payment.replayed"
	ActionRefundProcessed    = "refund.processed"
	ActionChargeCreated      = "charge.created"
	ActionPrescriptionCreate = "prescription.created"
	ActionPrescriptionReview = "prescription.reviewed"
	ActionPrescriptionCancel = "prescription.cancelled"
	ActionDispensed          = "prescription.dispensed"
	ActionReturned           = "prescription.returned"
	ActionStockAdjusted      = "medicine.stock_adjusted"
	ActionRegistrationCancel = "registration.cancelled"
	ActionRecordDeleted      = "medical_record.deleted"
)

type Event struct {
	ID         uuid.UUID
	Action     string
	EntityType string
	EntityID   uuid.UUID
	ActorID    uuid.UUID
	ActorRole  string
	Detail     map[string]interface{}
	RequestID  string
	At         time.Time
}

// Recorder persists audit events. Implementations write through the
// transaction on ctx, if any, so an event commits with its transition.
type Recorder interface {
	Record(ctx context.Context, e Event) error
}

// NewEvent fills the actor fields from caller.
func NewEvent(caller auth.Caller, action, entityType string, entityID uuid.UUID, detail map[string]interface{}) Event {
	return Event{
		ID:         uuid.New(),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		ActorID:    caller.UserID,
		ActorRole:  caller.Role(),
		Detail:     detail,
		At:         time.Now().UTC(),
	}
}

type logRecorder struct{ logger zerolog.Logger }

// NewLogRecorder writes events to a zerolog logger only.
func NewLogRecorder(logger zerolog.Logger) Recorder {
	return &logRecorder{logger: logger}
}

func (r *logRecorder) Record(_ context.Context, e Event) error {
	r.logger.Info().
		Str("type", "audit").
		Str("action", e.Action).
		Str("entity_type", e.EntityType).
		Str("entity_id", e.EntityID.String()).
		Str("actor_id", e.ActorID.String()).
		Str("actor_role", e.ActorRole).
		Interface("detail", e.Detail).
		Msg("audit_event")
	return nil
}

type multiRecorder []Recorder

// Multi fans an event out to every recorder and returns the first error.
func Multi(recorders ...Recorder) Recorder {
	return multiRecorder(recorders)
}

func (m multiRecorder) Record(ctx context.Context, e Event) error {
	var first error
	for _, r := range m {
		if err := r.Record(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Nop discards events.
var Nop Recorder = nopRecorder{}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, Event) error { return nil }
