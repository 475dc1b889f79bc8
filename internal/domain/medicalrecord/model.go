package medicalrecord

import (
	"time"

	"github.com/google/uuid"
)

type Status int

const (
	StatusDraft     Status = 0
	StatusSubmitted Status = 1
)

func (s Status) String() string {
	switch s {
	case StatusDraft:
		return "DRAFT"
	case StatusSubmitted:
		return "SUBMITTED"
	default:
		return "UNKNOWN"
	}
}

// MedicalRecord maps to the medical_record table. There is at most one
// non-deleted record per registration.
type MedicalRecord struct {
	ID             uuid.UUID `db:"id" json:"id"`
	RecordNo       string    `db:"record_no" json:"record_no"`
	RegistrationID uuid.UUID `db:"registration_id" json:"registration_id"`
	PatientID      uuid.UUID `db:"patient_id" json:"patient_id"`
	DoctorID       uuid.UUID `db:"doctor_id" json:"doctor_id"`
	ChiefComplaint *string   `db:"chief_complaint" json:"chief_complaint,omitempty"`
	PresentIllness *string   `db:"present_illness" json:"present_illness,omitempty"`
	PastHistory    *string   `db:"past_history" json:"past_history,omitempty"`
	AllergyHistory *string   `db:"allergy_history" json:"allergy_history,omitempty"`
	PhysicalExam   *string   `db:"physical_exam" json:"physical_exam,omitempty"`
	Diagnosis      *string   `db:"diagnosis" json:"diagnosis,omitempty"`
	TreatmentPlan  *string   `db:"treatment_plan" json:"treatment_plan,omitempty"`
	DoctorAdvice   *string   `db:"doctor_advice" json:"doctor_advice,omitempty"`
	Status         Status    `db:"status" json:"status"`
	IsDeleted      bool      `db:"is_deleted" json:"-"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// SaveRequest carries the clinical fields a doctor edits.
type SaveRequest struct {
	RegistrationID uuid.UUID `json:"registration_id"`
	ChiefComplaint *string   `json:"chief_complaint"`
	PresentIllness *string   `json:"present_illness"`
	PastHistory    *string   `json:"past_history"`
	AllergyHistory *string   `json:"allergy_history"`
	PhysicalExam   *string   `json:"physical_exam"`
	Diagnosis      *string   `json:"diagnosis"`
	TreatmentPlan  *string   `json:"treatment_plan"`
	DoctorAdvice   *string   `json:"doctor_advice"`
}

func (req *SaveRequest) applyTo(r *MedicalRecord) {
	r.ChiefComplaint = req.ChiefComplaint
	r.PresentIllness = req.PresentIllness
	r.PastHistory = req.PastHistory
	r.AllergyHistory = req.AllergyHistory
	r.PhysicalExam = req.PhysicalExam
	r.Diagnosis = req.Diagnosis
	r.TreatmentPlan = req.TreatmentPlan
	r.DoctorAdvice = req.DoctorAdvice
}
