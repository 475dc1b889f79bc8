package prescription

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/his/his/internal/platform/apperr"
	"github.com/his/his/internal/platform/clock"
	"github.com/his/his/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type prescriptionRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &prescriptionRepoPG{pool: pool}
}

func (r *prescriptionRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const prescriptionCols = `id, prescription_no, record_id, registration_id, patient_id, doctor_id,
	prescription_type, total_amount, item_count, status, validity_days, review_doctor_id, review_time,
	review_remark, dispense_time, dispense_by, return_reason, return_time, cancel_reason,
	created_at, updated_at`

const detailCols = `id, prescription_id, medicine_id, medicine_name, specification, unit, unit_price,
	quantity, subtotal, usage, frequency, dosage, days, sort_order`

func (r *prescriptionRepoPG) scanPrescription(row pgx.Row) (*Prescription, error) {
	var p Prescription
	err := row.Scan(&p.ID, &p.PrescriptionNo, &p.RecordID, &p.RegistrationID, &p.PatientID, &p.DoctorID,
		&p.Type, &p.TotalAmount, &p.ItemCount, &p.Status, &p.ValidityDays, &p.ReviewDoctorID, &p.ReviewTime,
		&p.ReviewRemark, &p.DispenseTime, &p.DispenseBy, &p.ReturnReason, &p.ReturnTime, &p.CancelReason,
		&p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *prescriptionRepoPG) Create(ctx context.Context, p *Prescription) error {
	p.ID = uuid.New()
	q := r.conn(ctx)
	err := q.QueryRow(ctx, `
		INSERT INTO prescription (id, prescription_no, record_id, registration_id, patient_id, doctor_id,
			prescription_type, total_amount, item_count, status, validity_days)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at, updated_at`,
		p.ID, p.PrescriptionNo, p.RecordID, p.RegistrationID, p.PatientID, p.DoctorID,
		p.Type, p.TotalAmount, p.ItemCount, p.Status, p.ValidityDays).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return apperr.FromDB(err, "prescription", p.PrescriptionNo)
	}

	for _, d := range p.Details {
		d.ID = uuid.New()
		d.PrescriptionID = p.ID
		_, err := q.Exec(ctx, `
			INSERT INTO prescription_detail (`+detailCols+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
			d.ID, d.PrescriptionID, d.MedicineID, d.MedicineName, d.Specification, d.Unit, d.UnitPrice,
			d.Quantity, d.Subtotal, d.Usage, d.Frequency, d.Dosage, d.Days, d.SortOrder)
		if err != nil {
			return apperr.FromDB(err, "prescription detail", d.MedicineID)
		}
	}
	return nil
}

func (r *prescriptionRepoPG) loadDetails(ctx context.Context, p *Prescription) error {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+detailCols+` FROM prescription_detail
		WHERE prescription_id = $1 ORDER BY sort_order`, p.ID)
	if err != nil {
		return apperr.FromDB(err, "prescription detail", p.ID)
	}
	defer rows.Close()
	p.Details = nil
	for rows.Next() {
		var d Detail
		if err := rows.Scan(&d.ID, &d.PrescriptionID, &d.MedicineID, &d.MedicineName, &d.Specification,
			&d.Unit, &d.UnitPrice, &d.Quantity, &d.Subtotal, &d.Usage, &d.Frequency, &d.Dosage, &d.Days,
			&d.SortOrder); err != nil {
			return err
		}
		p.Details = append(p.Details, &d)
	}
	return rows.Err()
}

func (r *prescriptionRepoPG) get(ctx context.Context, id uuid.UUID, lock bool) (*Prescription, error) {
	query := `SELECT ` + prescriptionCols + ` FROM prescription WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	p, err := r.scanPrescription(r.conn(ctx).QueryRow(ctx, query, id))
	if err != nil {
		return nil, apperr.FromDB(err, "prescription", id)
	}
	if err := r.loadDetails(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *prescriptionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return r.get(ctx, id, false)
}

func (r *prescriptionRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return r.get(ctx, id, true)
}

func (r *prescriptionRepoPG) Update(ctx context.Context, p *Prescription) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE prescription SET status=$2, review_doctor_id=$3, review_time=$4, review_remark=$5,
			dispense_time=$6, dispense_by=$7, return_reason=$8, return_time=$9, cancel_reason=$10,
			updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.Status, p.ReviewDoctorID, p.ReviewTime, p.ReviewRemark, p.DispenseTime, p.DispenseBy,
		p.ReturnReason, p.ReturnTime, p.CancelReason)
	if err != nil {
		return apperr.FromDB(err, "prescription", p.ID)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("prescription", p.ID)
	}
	return nil
}

func (r *prescriptionRepoPG) list(ctx context.Context, where string, args ...interface{}) ([]*Prescription, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+prescriptionCols+` FROM prescription WHERE `+where+`
		ORDER BY created_at`, args...)
	if err != nil {
		return nil, apperr.FromDB(err, "prescription", nil)
	}
	var items []*Prescription
	for rows.Next() {
		p, err := r.scanPrescription(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		items = append(items, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Details are loaded after the list cursor is closed; a pgx connection
	// runs one query at a time.
	for _, p := range items {
		if err := r.loadDetails(ctx, p); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func (r *prescriptionRepoPG) ListByRecord(ctx context.Context, recordID uuid.UUID) ([]*Prescription, error) {
	return r.list(ctx, `record_id = $1`, recordID)
}

func (r *prescriptionRepoPG) ListByRegistration(ctx context.Context, registrationID uuid.UUID) ([]*Prescription, error) {
	return r.list(ctx, `registration_id = $1`, registrationID)
}

func (r *prescriptionRepoPG) ListByStatus(ctx context.Context, status Status, limit, offset int) ([]*Prescription, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM prescription WHERE status = $1`, status).Scan(&total); err != nil {
		return nil, 0, apperr.FromDB(err, "prescription", nil)
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+prescriptionCols+` FROM prescription WHERE status = $1
		ORDER BY updated_at LIMIT $2 OFFSET $3`, status, limit, offset)
	if err != nil {
		return nil, 0, apperr.FromDB(err, "prescription", nil)
	}
	defer rows.Close()
	var items []*Prescription
	for rows.Next() {
		p, err := r.scanPrescription(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *prescriptionRepoPG) CountActiveByRecord(ctx context.Context, recordID uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM prescription WHERE record_id = $1 AND status <> $2`,
		recordID, StatusCancelled).Scan(&n)
	if err != nil {
		return 0, apperr.FromDB(err, "prescription", recordID)
	}
	return n, nil
}

// DispenseStats counts prescriptions a pharmacist dispensed in [from, to)
// that are still DISPENSED.
func (r *prescriptionRepoPG) DispenseStats(ctx context.Context, pharmacistID uuid.UUID, from, to time.Time) (*PharmacistStats, error) {
	st := &PharmacistStats{PharmacistID: pharmacistID, Date: from.In(clock.Location()).Format(clock.DayLayout)}
	var amount decimal.Decimal
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total_amount), 0), COALESCE(SUM(item_count), 0)
		FROM prescription
		WHERE dispense_by = $1 AND dispense_time >= $2 AND dispense_time < $3 AND status = $4`,
		pharmacistID, from, to, StatusDispensed).Scan(&st.DispensedCount, &amount, &st.TotalItems)
	if err != nil {
		return nil, apperr.FromDB(err, "prescription", pharmacistID)
	}
	st.TotalAmount = amount
	return st, nil
}
