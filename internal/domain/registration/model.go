package registration

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the registration lifecycle state. Values match the status
// column.
type Status int

const (
	StatusWaiting          Status = 0
	StatusCompleted        Status = 1
	StatusCancelled        Status = 2
	StatusRefunded         Status = 3
	StatusPaidRegistration Status = 4
)

var statusNames = map[Status]string{
	StatusWaiting:          "WAITING",
	StatusCompleted:        "COMPLETED",
	StatusCancelled:        "CANCELLED",
	StatusRefunded:         "REFUNDED",
	StatusPaidRegistration: "PAID_REGISTRATION",
}

var transitions = map[Status][]Status{
	StatusWaiting:          {StatusPaidRegistration, StatusCompleted, StatusCancelled},
	StatusPaidRegistration: {StatusCompleted, StatusRefunded},
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "UNKNOWN"
}

func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Closed reports whether no further transition is possible.
func (s Status) Closed() bool {
	return len(transitions[s]) == 0
}

// Active reports whether the patient is still expected at the clinic.
func (s Status) Active() bool {
	return s == StatusWaiting || s == StatusPaidRegistration
}

// Registration maps to the registration table.
type Registration struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	RegNo           string          `db:"reg_no" json:"reg_no"`
	PatientID       uuid.UUID       `db:"patient_id" json:"patient_id"`
	DoctorID        uuid.UUID       `db:"doctor_id" json:"doctor_id"`
	DepartmentID    uuid.UUID       `db:"department_id" json:"department_id"`
	VisitDate       time.Time       `db:"visit_date" json:"visit_date"`
	QueueNo         int             `db:"queue_no" json:"queue_no"`
	RegistrationFee decimal.Decimal `db:"registration_fee" json:"registration_fee"`
	Status          Status          `db:"status" json:"status"`
	CancelReason    *string         `db:"cancel_reason" json:"cancel_reason,omitempty"`
	CreatedBy       *uuid.UUID      `db:"created_by" json:"created_by,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// QueueEntry is a registration with the names a workstation displays.
type QueueEntry struct {
	Registration
	PatientName string `json:"patient_name"`
	PatientNo   string `json:"patient_no"`
	DoctorName  string `json:"doctor_name"`
}

type RegisterRequest struct {
	PatientID uuid.UUID `json:"patient_id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	// VisitDate is YYYY-MM-DD; empty means today.
	VisitDate string `json:"visit_date"`
}
