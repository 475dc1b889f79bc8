package charge

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	// Create inserts the charge and its charge_prescription links.
	Create(ctx context.Context, c *Charge) error
	GetByID(ctx context.Context, id uuid.UUID) (*Charge, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Charge, error)
	GetByTransactionNo(ctx context.Context, transactionNo string) (*Charge, error)
	// Update writes status, payment and refund columns.
	Update(ctx context.Context, c *Charge) error
	ListByRegistration(ctx context.Context, registrationID uuid.UUID) ([]*Charge, error)
	ListByStatus(ctx context.Context, status Status, limit, offset int) ([]*Charge, int, error)
	// OpenPrescriptionCharges maps each of ids that sits on an UNPAID or PAID
	// charge to that charge's number.
	OpenPrescriptionCharges(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error)
	// HasFeeCharge reports whether the registration has a charge covering
	// its fee in one of statuses.
	HasFeeCharge(ctx context.Context, registrationID uuid.UUID, statuses ...Status) (bool, error)
	// Settlement aggregates payments and refunds booked in [from, to).
	Settlement(ctx context.Context, from, to time.Time) (*DailySettlement, error)
}
