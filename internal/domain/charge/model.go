package charge

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status int

const (
	StatusUnpaid   Status = 0
	StatusPaid     Status = 1
	StatusRefunded Status = 2
)

var statusNames = map[Status]string{
	StatusUnpaid:   "UNPAID",
	StatusPaid:     "PAID",
	StatusRefunded: "REFUNDED",
}

var transitions = map[Status][]Status{
	StatusUnpaid: {StatusPaid},
	StatusPaid:   {StatusRefunded},
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

type PaymentMethod string

const (
	MethodCash             PaymentMethod = "CASH"
	MethodWeChat           PaymentMethod = "WECHAT"
	MethodAlipay           PaymentMethod = "ALIPAY"
	MethodBankCard         PaymentMethod = "BANK_CARD"
	MethodMedicalInsurance PaymentMethod = "MEDICAL_INSURANCE"
)

var validMethods = map[PaymentMethod]bool{
	MethodCash:             true,
	MethodWeChat:           true,
	MethodAlipay:           true,
	MethodBankCard:         true,
	MethodMedicalInsurance: true,
}

func (m PaymentMethod) Valid() bool { return validMethods[m] }

// RequiresTransactionNo reports whether the method settles through an
// external channel that issues a transaction number.
func (m PaymentMethod) RequiresTransactionNo() bool { return m != MethodCash }

// Kind classifies a charge by the fees it covers.
type Kind string

const (
	KindRegistration Kind = "REGISTRATION"
	KindPrescription Kind = "PRESCRIPTION"
	KindCombined     Kind = "COMBINED"
)

// Charge maps to the charge table. PrescriptionIDs come from
// charge_prescription.
type Charge struct {
	ID                      uuid.UUID        `db:"id" json:"id"`
	ChargeNo                string           `db:"charge_no" json:"charge_no"`
	PatientID               uuid.UUID        `db:"patient_id" json:"patient_id"`
	RegistrationID          uuid.UUID        `db:"registration_id" json:"registration_id"`
	IncludesRegistrationFee bool             `db:"includes_registration_fee" json:"includes_registration_fee"`
	RegistrationFee         decimal.Decimal  `db:"registration_fee" json:"registration_fee"`
	TotalAmount             decimal.Decimal  `db:"total_amount" json:"total_amount"`
	Status                  Status           `db:"status" json:"status"`
	PaymentMethod           *PaymentMethod   `db:"payment_method" json:"payment_method,omitempty"`
	TransactionNo           *string          `db:"transaction_no" json:"transaction_no,omitempty"`
	PaidAmount              *decimal.Decimal `db:"paid_amount" json:"paid_amount,omitempty"`
	PaidAt                  *time.Time       `db:"paid_at" json:"paid_at,omitempty"`
	PaidBy                  *uuid.UUID       `db:"paid_by" json:"paid_by,omitempty"`
	RefundReason            *string          `db:"refund_reason" json:"refund_reason,omitempty"`
	RefundedAt              *time.Time       `db:"refunded_at" json:"refunded_at,omitempty"`
	RefundedBy              *uuid.UUID       `db:"refunded_by" json:"refunded_by,omitempty"`
	CreatedBy               *uuid.UUID       `db:"created_by" json:"created_by,omitempty"`
	CreatedAt               time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt               time.Time        `db:"updated_at" json:"updated_at"`
	PrescriptionIDs         []uuid.UUID      `json:"prescription_ids"`

	// Replayed is set when a payment call matched an earlier payment with
	// the same transaction number and nothing was applied.
	Replayed bool `json:"replayed,omitempty"`
}

func (c *Charge) Kind() Kind {
	switch {
	case c.IncludesRegistrationFee && len(c.PrescriptionIDs) > 0:
		return KindCombined
	case c.IncludesRegistrationFee:
		return KindRegistration
	default:
		return KindPrescription
	}
}

type CreateRequest struct {
	RegistrationID  uuid.UUID   `json:"registration_id"`
	PrescriptionIDs []uuid.UUID `json:"prescription_ids"`
}

type PaymentRequest struct {
	PaymentMethod PaymentMethod   `json:"payment_method"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	TransactionNo string          `json:"transaction_no"`
}

type ChargesByType struct {
	Registration []*Charge `json:"registration"`
	Prescription []*Charge `json:"prescription"`
	Combined     []*Charge `json:"combined"`
}

type MethodTotal struct {
	Method PaymentMethod   `json:"payment_method"`
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// DailySettlement is the cashier's end-of-day report. Paid figures cover
// charges paid that day, refund figures charges refunded that day.
type DailySettlement struct {
	Date         string          `json:"date"`
	ByMethod     []MethodTotal   `json:"by_method"`
	PaidCount    int             `json:"paid_count"`
	PaidAmount   decimal.Decimal `json:"paid_amount"`
	RefundCount  int             `json:"refund_count"`
	RefundAmount decimal.Decimal `json:"refund_amount"`
	NetAmount    decimal.Decimal `json:"net_amount"`
}
