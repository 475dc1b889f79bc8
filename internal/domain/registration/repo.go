package registration

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, r *Registration) error
	GetByID(ctx context.Context, id uuid.UUID) (*Registration, error)
	GetByRegNo(ctx context.Context, regNo string) (*Registration, error)
	// GetForUpdate locks the row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Registration, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status, cancelReason *string) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Registration, int, error)
	HasActive(ctx context.Context, patientID, doctorID uuid.UUID, day time.Time) (bool, error)
	DoctorQueue(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]*QueueEntry, error)
	DepartmentQueue(ctx context.Context, departmentID uuid.UUID, day time.Time) ([]*QueueEntry, error)
}
