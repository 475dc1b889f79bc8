package staff

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

func connFor(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return pool
}

// =========== Department Repository ===========

type departmentRepoPG struct{ pool *pgxpool.Pool }

func NewDepartmentRepoPG(pool *pgxpool.Pool) DepartmentRepository {
	return &departmentRepoPG{pool: pool}
}

const departmentCols = `id, code, name, location, is_active, created_at, updated_at`

func (r *departmentRepoPG) scanDepartment(row pgx.Row) (*Department, error) {
	var d Department
	err := row.Scan(&d.ID, &d.Code, &d.Name, &d.Location, &d.IsActive, &d.CreatedAt, &d.UpdatedAt)
	return &d, err
}

func (r *departmentRepoPG) Create(ctx context.Context, d *Department) error {
	d.ID = uuid.New()
	err := connFor(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO department (id, code, name, location, is_active)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at, updated_at`,
		d.ID, d.Code, d.Name, d.Location, d.IsActive).Scan(&d.CreatedAt, &d.UpdatedAt)
	return apperr.FromDB(err, "department", d.Code)
}

func (r *departmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Department, error) {
	d, err := r.scanDepartment(connFor(ctx, r.pool).QueryRow(ctx, `SELECT `+departmentCols+` FROM department WHERE id = $1`, id))
	if err != nil {
		return nil, apperr.FromDB(err, "department", id)
	}
	return d, nil
}

func (r *departmentRepoPG) List(ctx context.Context, activeOnly bool) ([]*Department, error) {
	rows, err := connFor(ctx, r.pool).Query(ctx, `
		SELECT `+departmentCols+` FROM department
		WHERE ($1 = FALSE OR is_active) ORDER BY code`, activeOnly)
	if err != nil {
		return nil, apperr.FromDB(err, "department", nil)
	}
	defer rows.Close()
	var items []*Department
	for rows.Next() {
		d, err := r.scanDepartment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

// =========== Doctor Repository ===========

type doctorRepoPG struct{ pool *pgxpool.Pool }

func NewDoctorRepoPG(pool *pgxpool.Pool) DoctorRepository {
	return &doctorRepoPG{pool: pool}
}

const doctorCols = `id, user_id, name, department_id, title, registration_fee, is_active, created_at, updated_at`

func (r *doctorRepoPG) scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.UserID, &d.Name, &d.DepartmentID, &d.Title, &d.RegistrationFee,
		&d.IsActive, &d.CreatedAt, &d.UpdatedAt)
	return &d, err
}

func (r *doctorRepoPG) Create(ctx context.Context, d *Doctor) error {
	d.ID = uuid.New()
	err := connFor(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO doctor (id, user_id, name, department_id, title, registration_fee, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at`,
		d.ID, d.UserID, d.Name, d.DepartmentID, d.Title, d.RegistrationFee, d.IsActive).Scan(&d.CreatedAt, &d.UpdatedAt)
	return apperr.FromDB(err, "doctor", d.Name)
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, err := r.scanDoctor(connFor(ctx, r.pool).QueryRow(ctx, `SELECT `+doctorCols+` FROM doctor WHERE id = $1`, id))
	if err != nil {
		return nil, apperr.FromDB(err, "doctor", id)
	}
	return d, nil
}

func (r *doctorRepoPG) GetByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error) {
	d, err := r.scanDoctor(connFor(ctx, r.pool).QueryRow(ctx, `SELECT `+doctorCols+` FROM doctor WHERE user_id = $1`, userID))
	if err != nil {
		return nil, apperr.FromDB(err, "doctor", userID)
	}
	return d, nil
}

func (r *doctorRepoPG) ListByDepartment(ctx context.Context, departmentID uuid.UUID, activeOnly bool) ([]*Doctor, error) {
	rows, err := connFor(ctx, r.pool).Query(ctx, `
		SELECT `+doctorCols+` FROM doctor
		WHERE department_id = $1 AND ($2 = FALSE OR is_active) ORDER BY name`, departmentID, activeOnly)
	if err != nil {
		return nil, apperr.FromDB(err, "doctor", nil)
	}
	defer rows.Close()
	var items []*Doctor
	for rows.Next() {
		d, err := r.scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}
