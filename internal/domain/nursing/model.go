package nursing

import (
	"github.com/google/uuid"

	"github.com/his/his/internal/domain/patient"
	"github.com/his/his/internal/domain/registration"
)

// CheckInRequest identifies the patient either by id or by the details of
// a walk-in. A walk-in whose id card is already on file is matched to the
// existing patient.
type CheckInRequest struct {
	PatientID uuid.UUID        `json:"patient_id"`
	Patient   *patient.Patient `json:"patient"`
	DoctorID  uuid.UUID        `json:"doctor_id"`
	VisitDate string           `json:"visit_date"`
}

type CheckInResult struct {
	Patient      *patient.Patient           `json:"patient"`
	Registration *registration.Registration `json:"registration"`
	NewPatient   bool                       `json:"new_patient"`
}

// DoctorQueue is one doctor's part of a department queue.
type DoctorQueue struct {
	DoctorID   uuid.UUID                  `json:"doctor_id"`
	DoctorName string                     `json:"doctor_name"`
	Waiting    int                        `json:"waiting"`
	Entries    []*registration.QueueEntry `json:"entries"`
}
