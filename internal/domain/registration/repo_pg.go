package registration

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/his/his/internal/platform/apperr"
	"github.com/his/his/internal/platform/clock"
	"github.com/his/his/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type registrationRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &registrationRepoPG{pool: pool}
}

func (r *registrationRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const registrationCols = `id, reg_no, patient_id, doctor_id, department_id, visit_date, queue_no,
	registration_fee, status, cancel_reason, created_by, created_at, updated_at`

func (r *registrationRepoPG) scanRegistration(row pgx.Row) (*Registration, error) {
	var reg Registration
	err := row.Scan(&reg.ID, &reg.RegNo, &reg.PatientID, &reg.DoctorID, &reg.DepartmentID, &reg.VisitDate,
		&reg.QueueNo, &reg.RegistrationFee, &reg.Status, &reg.CancelReason, &reg.CreatedBy,
		&reg.CreatedAt, &reg.UpdatedAt)
	return &reg, err
}

func (r *registrationRepoPG) Create(ctx context.Context, reg *Registration) error {
	reg.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO registration (id, reg_no, patient_id, doctor_id, department_id, visit_date, queue_no,
			registration_fee, status, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at, updated_at`,
		reg.ID, reg.RegNo, reg.PatientID, reg.DoctorID, reg.DepartmentID, reg.VisitDate.Format(clock.DayLayout),
		reg.QueueNo, reg.RegistrationFee, reg.Status, reg.CreatedBy).Scan(&reg.CreatedAt, &reg.UpdatedAt)
	return apperr.FromDB(err, "registration", reg.RegNo)
}

func (r *registrationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Registration, error) {
	reg, err := r.scanRegistration(r.conn(ctx).QueryRow(ctx, `SELECT `+registrationCols+` FROM registration WHERE id = $1`, id))
	if err != nil {
		return nil, apperr.FromDB(err, "registration", id)
	}
	return reg, nil
}

func (r *registrationRepoPG) GetByRegNo(ctx context.Context, regNo string) (*Registration, error) {
	reg, err := r.scanRegistration(r.conn(ctx).QueryRow(ctx, `SELECT `+registrationCols+` FROM registration WHERE reg_no = $1`, regNo))
	if err != nil {
		return nil, apperr.FromDB(err, "registration", regNo)
	}
	return reg, nil
}

func (r *registrationRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Registration, error) {
	reg, err := r.scanRegistration(r.conn(ctx).QueryRow(ctx, `SELECT `+registrationCols+` FROM registration WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, apperr.FromDB(err, "registration", id)
	}
	return reg, nil
}

func (r *registrationRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, cancelReason *string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE registration SET status = $2, cancel_reason = COALESCE($3, cancel_reason), updated_at = NOW()
		WHERE id = $1`, id, status, cancelReason)
	if err != nil {
		return apperr.FromDB(err, "registration", id)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("registration", id)
	}
	return nil
}

func (r *registrationRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Registration, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM registration WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, apperr.FromDB(err, "registration", nil)
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+registrationCols+` FROM registration WHERE patient_id = $1
		ORDER BY visit_date DESC, created_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, apperr.FromDB(err, "registration", nil)
	}
	defer rows.Close()
	var items []*Registration
	for rows.Next() {
		reg, err := r.scanRegistration(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, reg)
	}
	return items, total, rows.Err()
}

func (r *registrationRepoPG) HasActive(ctx context.Context, patientID, doctorID uuid.UUID, day time.Time) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM registration
			WHERE patient_id = $1 AND doctor_id = $2 AND visit_date = $3 AND status IN ($4, $5)
		)`, patientID, doctorID, day.Format(clock.DayLayout), StatusWaiting, StatusPaidRegistration).Scan(&exists)
	if err != nil {
		return false, apperr.FromDB(err, "registration", nil)
	}
	return exists, nil
}

const queueSelect = `
	SELECT r.id, r.reg_no, r.patient_id, r.doctor_id, r.department_id, r.visit_date, r.queue_no,
		r.registration_fee, r.status, r.cancel_reason, r.created_by, r.created_at, r.updated_at,
		p.name, p.patient_no, d.name
	FROM registration r
	JOIN patient p ON p.id = r.patient_id
	JOIN doctor d ON d.id = r.doctor_id`

func (r *registrationRepoPG) queue(ctx context.Context, where string, id uuid.UUID, day time.Time) ([]*QueueEntry, error) {
	rows, err := r.conn(ctx).Query(ctx, queueSelect+`
		WHERE `+where+` = $1 AND r.visit_date = $2 AND r.status IN ($3, $4)
		ORDER BY r.doctor_id, r.queue_no`,
		id, day.Format(clock.DayLayout), StatusWaiting, StatusPaidRegistration)
	if err != nil {
		return nil, apperr.FromDB(err, "registration", nil)
	}
	defer rows.Close()
	var items []*QueueEntry
	for rows.Next() {
		var e QueueEntry
		if err := rows.Scan(&e.ID, &e.RegNo, &e.PatientID, &e.DoctorID, &e.DepartmentID, &e.VisitDate,
			&e.QueueNo, &e.RegistrationFee, &e.Status, &e.CancelReason, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt,
			&e.PatientName, &e.PatientNo, &e.DoctorName); err != nil {
			return nil, err
		}
		items = append(items, &e)
	}
	return items, rows.Err()
}

func (r *registrationRepoPG) DoctorQueue(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]*QueueEntry, error) {
	return r.queue(ctx, "r.doctor_id", doctorID, day)
}

func (r *registrationRepoPG) DepartmentQueue(ctx context.Context, departmentID uuid.UUID, day time.Time) ([]*QueueEntry, error) {
	return r.queue(ctx, "r.department_id", departmentID, day)
}
