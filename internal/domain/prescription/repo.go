package prescription

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	// Create inserts the prescription and its details.
	Create(ctx context.Context, p *Prescription) error
	GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error)
	// GetForUpdate locks the prescription row until the transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Prescription, error)
	// Update writes status and workflow columns. Details are immutable.
	Update(ctx context.Context, p *Prescription) error
	ListByRecord(ctx context.Context, recordID uuid.UUID) ([]*Prescription, error)
	ListByRegistration(ctx context.Context, registrationID uuid.UUID) ([]*Prescription, error)
	ListByStatus(ctx context.Context, status Status, limit, offset int) ([]*Prescription, int, error)
	CountActiveByRecord(ctx context.Context, recordID uuid.UUID) (int, error)
	DispenseStats(ctx context.Context, pharmacistID uuid.UUID, from, to time.Time) (*PharmacistStats, error)
}
