package medicalrecord

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/his/his/internal/platform/apperr"
	"github.com/his/his/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type recordRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &recordRepoPG{pool: pool}
}

func (r *recordRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const recordCols = `id, record_no, registration_id, patient_id, doctor_id, chief_complaint, present_illness,
	past_history, allergy_history, physical_exam, diagnosis, treatment_plan, doctor_advice, status, is_deleted,
	created_at, updated_at`

func (r *recordRepoPG) scanRecord(row pgx.Row) (*MedicalRecord, error) {
	var m MedicalRecord
	err := row.Scan(&m.ID, &m.RecordNo, &m.RegistrationID, &m.PatientID, &m.DoctorID, &m.ChiefComplaint,
		&m.PresentIllness, &m.PastHistory, &m.AllergyHistory, &m.PhysicalExam, &m.Diagnosis, &m.TreatmentPlan,
		&m.DoctorAdvice, &m.Status, &m.IsDeleted, &m.CreatedAt, &m.UpdatedAt)
	return &m, err
}

func (r *recordRepoPG) Create(ctx context.Context, m *MedicalRecord) error {
	m.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO medical_record (id, record_no, registration_id, patient_id, doctor_id, chief_complaint,
			present_illness, past_history, allergy_history, physical_exam, diagnosis, treatment_plan,
			doctor_advice, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING created_at, updated_at`,
		m.ID, m.RecordNo, m.RegistrationID, m.PatientID, m.DoctorID, m.ChiefComplaint, m.PresentIllness,
		m.PastHistory, m.AllergyHistory, m.PhysicalExam, m.Diagnosis, m.TreatmentPlan, m.DoctorAdvice, m.Status,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if apperr.IsUniqueViolation(err, "uq_medical_record_registration") {
		return apperr.Validation("registration already has a medical record")
	}
	return apperr.FromDB(err, "medical record", m.RecordNo)
}

func (r *recordRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*MedicalRecord, error) {
	m, err := r.scanRecord(r.conn(ctx).QueryRow(ctx, `
		SELECT `+recordCols+` FROM medical_record WHERE id = $1 AND NOT is_deleted`, id))
	if err != nil {
		return nil, apperr.FromDB(err, "medical record", id)
	}
	return m, nil
}

func (r *recordRepoPG) GetByRegistration(ctx context.Context, registrationID uuid.UUID) (*MedicalRecord, error) {
	m, err := r.scanRecord(r.conn(ctx).QueryRow(ctx, `
		SELECT `+recordCols+` FROM medical_record WHERE registration_id = $1 AND NOT is_deleted`, registrationID))
	if err != nil {
		return nil, apperr.FromDB(err, "medical record", registrationID)
	}
	return m, nil
}

func (r *recordRepoPG) Update(ctx context.Context, m *MedicalRecord) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE medical_record SET chief_complaint=$2, present_illness=$3, past_history=$4, allergy_history=$5,
			physical_exam=$6, diagnosis=$7, treatment_plan=$8, doctor_advice=$9, status=$10, updated_at=NOW()
		WHERE id = $1 AND NOT is_deleted
		RETURNING updated_at`,
		m.ID, m.ChiefComplaint, m.PresentIllness, m.PastHistory, m.AllergyHistory, m.PhysicalExam,
		m.Diagnosis, m.TreatmentPlan, m.DoctorAdvice, m.Status).Scan(&m.UpdatedAt)
	return apperr.FromDB(err, "medical record", m.ID)
}

func (r *recordRepoPG) SoftDelete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE medical_record SET is_deleted = TRUE, updated_at = NOW() WHERE id = $1 AND NOT is_deleted`, id)
	if err != nil {
		return apperr.FromDB(err, "medical record", id)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("medical record", id)
	}
	return nil
}
