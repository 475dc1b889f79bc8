package prescription

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the prescription lifecycle state. Values match the status
// column.
type Status int

const (
	StatusDraft     Status = 0
	StatusOpen      Status = 1
	StatusReviewed  Status = 2
	StatusDispensed Status = 3
	StatusReturned  Status = 4
	StatusPaid      Status = 5
	StatusCancelled Status = 6
	StatusRefunded  Status = 7
)

var statusNames = map[Status]string{
	StatusDraft:     "DRAFT",
	StatusOpen:      "OPEN",
	StatusReviewed:  "REVIEWED",
	StatusDispensed: "DISPENSED",
	StatusReturned:  "RETURNED",
	StatusPaid:      "PAID",
	StatusCancelled: "CANCELLED",
	StatusRefunded:  "REFUNDED",
}

// Forward path is OPEN -> REVIEWED -> PAID -> DISPENSED -> RETURNED. Refunds
// reach REFUNDED from any paid state; cancellation is only possible before
// payment.
var transitions = map[Status][]Status{
	StatusDraft:     {StatusReviewed, StatusCancelled},
	StatusOpen:      {StatusReviewed, StatusCancelled},
	StatusReviewed:  {StatusPaid, StatusCancelled},
	StatusPaid:      {StatusDispensed, StatusRefunded},
	StatusDispensed: {StatusReturned, StatusRefunded},
	StatusReturned:  {StatusRefunded},
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

func (s Status) Closed() bool {
	return len(transitions[s]) == 0
}

type Type int

const (
	TypeWestern       Type = 1
	TypeChinesePatent Type = 2
	TypeHerbal        Type = 3
)

func (t Type) Valid() bool {
	return t >= TypeWestern && t <= TypeHerbal
}

// Prescription maps to the prescription table. TotalAmount and ItemCount are
// derived from the details and never taken from a request.
type Prescription struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	PrescriptionNo string          `db:"prescription_no" json:"prescription_no"`
	RecordID       uuid.UUID       `db:"record_id" json:"record_id"`
	RegistrationID uuid.UUID       `db:"registration_id" json:"registration_id"`
	PatientID      uuid.UUID       `db:"patient_id" json:"patient_id"`
	DoctorID       uuid.UUID       `db:"doctor_id" json:"doctor_id"`
	Type           Type            `db:"prescription_type" json:"type"`
	TotalAmount    decimal.Decimal `db:"total_amount" json:"total_amount"`
	ItemCount      int             `db:"item_count" json:"item_count"`
	Status         Status          `db:"status" json:"status"`
	ValidityDays   int             `db:"validity_days" json:"validity_days"`
	ReviewDoctorID *uuid.UUID      `db:"review_doctor_id" json:"review_doctor_id,omitempty"`
	ReviewTime     *time.Time      `db:"review_time" json:"review_time,omitempty"`
	ReviewRemark   *string         `db:"review_remark" json:"review_remark,omitempty"`
	DispenseTime   *time.Time      `db:"dispense_time" json:"dispense_time,omitempty"`
	DispenseBy     *uuid.UUID      `db:"dispense_by" json:"dispense_by,omitempty"`
	ReturnReason   *string         `db:"return_reason" json:"return_reason,omitempty"`
	ReturnTime     *time.Time      `db:"return_time" json:"return_time,omitempty"`
	CancelReason   *string         `db:"cancel_reason" json:"cancel_reason,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
	Details        []*Detail       `json:"details,omitempty"`
}

// ExpiresAt is the end of the prescription's validity window.
func (p *Prescription) ExpiresAt() time.Time {
	return p.CreatedAt.AddDate(0, 0, p.ValidityDays)
}

// Detail maps to the prescription_detail table. Name, specification, unit
// and unit price are snapshots of the medicine at creation time.
type Detail struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	PrescriptionID uuid.UUID       `db:"prescription_id" json:"prescription_id"`
	MedicineID     uuid.UUID       `db:"medicine_id" json:"medicine_id"`
	MedicineName   string          `db:"medicine_name" json:"medicine_name"`
	Specification  *string         `db:"specification" json:"specification,omitempty"`
	Unit           *string         `db:"unit" json:"unit,omitempty"`
	UnitPrice      decimal.Decimal `db:"unit_price" json:"unit_price"`
	Quantity       int             `db:"quantity" json:"quantity"`
	Subtotal       decimal.Decimal `db:"subtotal" json:"subtotal"`
	Usage          *string         `db:"usage" json:"usage,omitempty"`
	Frequency      *string         `db:"frequency" json:"frequency,omitempty"`
	Dosage         *string         `db:"dosage" json:"dosage,omitempty"`
	Days           *int            `db:"days" json:"days,omitempty"`
	SortOrder      int             `db:"sort_order" json:"sort_order"`
}

// Item is one requested line. There is deliberately no price field.
type Item struct {
	MedicineID uuid.UUID `json:"medicine_id"`
	Quantity   int       `json:"quantity"`
	Usage      *string   `json:"usage"`
	Frequency  *string   `json:"frequency"`
	Dosage     *string   `json:"dosage"`
	Days       *int      `json:"days"`
}

type CreateRequest struct {
	RegistrationID uuid.UUID `json:"registration_id"`
	Type           Type      `json:"type"`
	ValidityDays   int       `json:"validity_days"`
	Items          []Item    `json:"items"`
}

type PharmacistStats struct {
	PharmacistID   uuid.UUID       `json:"pharmacist_id"`
	Date           string          `json:"date"`
	DispensedCount int             `json:"dispensed_count"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	TotalItems     int             `json:"total_items"`
}
