package charge

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/his/his/internal/platform/apperr"
	"github.com/his/his/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

const transactionNoIndex = "uq_charge_transaction_no"

type chargeRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &chargeRepoPG{pool: pool}
}

func (r *chargeRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const chargeCols = `id, charge_no, patient_id, registration_id, includes_registration_fee, registration_fee,
	total_amount, status, payment_method, transaction_no, paid_amount, paid_at, paid_by, refund_reason,
	refunded_at, refunded_by, created_by, created_at, updated_at`

func (r *chargeRepoPG) scanCharge(row pgx.Row) (*Charge, error) {
	var c Charge
	err := row.Scan(&c.ID, &c.ChargeNo, &c.PatientID, &c.RegistrationID, &c.IncludesRegistrationFee,
		&c.RegistrationFee, &c.TotalAmount, &c.Status, &c.PaymentMethod, &c.TransactionNo, &c.PaidAmount,
		&c.PaidAt, &c.PaidBy, &c.RefundReason, &c.RefundedAt, &c.RefundedBy, &c.CreatedBy,
		&c.CreatedAt, &c.UpdatedAt)
	return &c, err
}

func (r *chargeRepoPG) Create(ctx context.Context, c *Charge) error {
	c.ID = uuid.New()
	q := r.conn(ctx)
	err := q.QueryRow(ctx, `
		INSERT INTO charge (id, charge_no, patient_id, registration_id, includes_registration_fee,
			registration_fee, total_amount, status, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		c.ID, c.ChargeNo, c.PatientID, c.RegistrationID, c.IncludesRegistrationFee, c.RegistrationFee,
		c.TotalAmount, c.Status, c.CreatedBy).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return apperr.FromDB(err, "charge", c.ChargeNo)
	}
	for _, id := range c.PrescriptionIDs {
		if _, err := q.Exec(ctx, `INSERT INTO charge_prescription (charge_id, prescription_id) VALUES ($1, $2)`,
			c.ID, id); err != nil {
			return apperr.FromDB(err, "charge prescription", id)
		}
	}
	return nil
}

func (r *chargeRepoPG) loadPrescriptionIDs(ctx context.Context, c *Charge) error {
	rows, err := r.conn(ctx).Query(ctx, `SELECT prescription_id FROM charge_prescription WHERE charge_id = $1
		ORDER BY prescription_id`, c.ID)
	if err != nil {
		return apperr.FromDB(err, "charge prescription", c.ID)
	}
	defer rows.Close()
	c.PrescriptionIDs = []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return err
		}
		c.PrescriptionIDs = append(c.PrescriptionIDs, id)
	}
	return rows.Err()
}

func (r *chargeRepoPG) getOne(ctx context.Context, query string, key interface{}) (*Charge, error) {
	c, err := r.scanCharge(r.conn(ctx).QueryRow(ctx, query, key))
	if err != nil {
		return nil, apperr.FromDB(err, "charge", key)
	}
	if err := r.loadPrescriptionIDs(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *chargeRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Charge, error) {
	return r.getOne(ctx, `SELECT `+chargeCols+` FROM charge WHERE id = $1`, id)
}

func (r *chargeRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Charge, error) {
	return r.getOne(ctx, `SELECT `+chargeCols+` FROM charge WHERE id = $1 FOR UPDATE`, id)
}

func (r *chargeRepoPG) GetByTransactionNo(ctx context.Context, transactionNo string) (*Charge, error) {
	return r.getOne(ctx, `SELECT `+chargeCols+` FROM charge WHERE transaction_no = $1`, transactionNo)
}

func (r *chargeRepoPG) Update(ctx context.Context, c *Charge) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE charge SET status=$2, payment_method=$3, transaction_no=$4, paid_amount=$5, paid_at=$6,
			paid_by=$7, refund_reason=$8, refunded_at=$9, refunded_by=$10, updated_at=NOW()
		WHERE id = $1`,
		c.ID, c.Status, c.PaymentMethod, c.TransactionNo, c.PaidAmount, c.PaidAt, c.PaidBy,
		c.RefundReason, c.RefundedAt, c.RefundedBy)
	if apperr.IsUniqueViolation(err, transactionNoIndex) {
		return apperr.Validation("transaction number %s has already been used", *c.TransactionNo)
	}
	if err != nil {
		return apperr.FromDB(err, "charge", c.ID)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("charge", c.ID)
	}
	return nil
}

func (r *chargeRepoPG) collect(ctx context.Context, rows pgx.Rows) ([]*Charge, error) {
	var items []*Charge
	for rows.Next() {
		c, err := r.scanCharge(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		items = append(items, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, c := range items {
		if err := r.loadPrescriptionIDs(ctx, c); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func (r *chargeRepoPG) ListByRegistration(ctx context.Context, registrationID uuid.UUID) ([]*Charge, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+chargeCols+` FROM charge WHERE registration_id = $1
		ORDER BY created_at`, registrationID)
	if err != nil {
		return nil, apperr.FromDB(err, "charge", registrationID)
	}
	return r.collect(ctx, rows)
}

func (r *chargeRepoPG) ListByStatus(ctx context.Context, status Status, limit, offset int) ([]*Charge, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM charge WHERE status = $1`, status).Scan(&total); err != nil {
		return nil, 0, apperr.FromDB(err, "charge", nil)
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+chargeCols+` FROM charge WHERE status = $1
		ORDER BY created_at LIMIT $2 OFFSET $3`, status, limit, offset)
	if err != nil {
		return nil, 0, apperr.FromDB(err, "charge", nil)
	}
	items, err := r.collect(ctx, rows)
	return items, total, err
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func statusInts(statuses []Status) []int32 {
	out := make([]int32, len(statuses))
	for i, s := range statuses {
		out[i] = int32(s)
	}
	return out
}

func (r *chargeRepoPG) OpenPrescriptionCharges(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	found := make(map[uuid.UUID]string)
	if len(ids) == 0 {
		return found, nil
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT cp.prescription_id, c.charge_no
		FROM charge_prescription cp
		JOIN charge c ON c.id = cp.charge_id
		WHERE cp.prescription_id = ANY($1::uuid[]) AND c.status = ANY($2::smallint[])`,
		uuidStrings(ids), statusInts([]Status{StatusUnpaid, StatusPaid}))
	if err != nil {
		return nil, apperr.FromDB(err, "charge", nil)
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		var no string
		if err := rows.Scan(&id, &no); err != nil {
			return nil, err
		}
		found[id] = no
	}
	return found, rows.Err()
}

func (r *chargeRepoPG) HasFeeCharge(ctx context.Context, registrationID uuid.UUID, statuses ...Status) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM charge
			WHERE registration_id = $1 AND includes_registration_fee AND status = ANY($2::smallint[])
		)`, registrationID, statusInts(statuses)).Scan(&exists)
	if err != nil {
		return false, apperr.FromDB(err, "charge", registrationID)
	}
	return exists, nil
}

// Settlement reads without locks; it is a report, and read committed is
// enough.
func (r *chargeRepoPG) Settlement(ctx context.Context, from, to time.Time) (*DailySettlement, error) {
	st := &DailySettlement{ByMethod: []MethodTotal{}, PaidAmount: decimal.Zero, RefundAmount: decimal.Zero}
	q := r.conn(ctx)

	rows, err := q.Query(ctx, `
		SELECT payment_method, COUNT(*), COALESCE(SUM(paid_amount), 0)
		FROM charge
		WHERE paid_at >= $1 AND paid_at < $2
		GROUP BY payment_method
		ORDER BY payment_method`, from, to)
	if err != nil {
		return nil, apperr.FromDB(err, "charge", nil)
	}
	for rows.Next() {
		var mt MethodTotal
		if err := rows.Scan(&mt.Method, &mt.Count, &mt.Amount); err != nil {
			rows.Close()
			return nil, err
		}
		st.ByMethod = append(st.ByMethod, mt)
		st.PaidCount += mt.Count
		st.PaidAmount = st.PaidAmount.Add(mt.Amount)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = q.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(paid_amount), 0)
		FROM charge
		WHERE status = $1 AND refunded_at >= $2 AND refunded_at < $3`,
		StatusRefunded, from, to).Scan(&st.RefundCount, &st.RefundAmount)
	if err != nil {
		return nil, apperr.FromDB(err, "charge", nil)
	}
	return st, nil
}
