package medicalrecord

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, r *MedicalRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*MedicalRecord, error)
	// GetByRegistration returns the non-deleted record of a registration.
	GetByRegistration(ctx context.Context, registrationID uuid.UUID) (*MedicalRecord, error)
	Update(ctx context.Context, r *MedicalRecord) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
}
