package medicine

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/his/his/internal/platform/apperr"
	"github.com/his/his/internal/platform/db"
	"github.com/his/his/internal/platform/search"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type medicineRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &medicineRepoPG{pool: pool}
}

func (r *medicineRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const medicineCols = `id, code, name, generic_name, specification, dosage_form, unit, manufacturer, category,
	retail_price, purchase_price, stock_quantity, min_stock, max_stock, is_prescription, is_active,
	created_at, updated_at`

func (r *medicineRepoPG) scanMedicine(row pgx.Row) (*Medicine, error) {
	var m Medicine
	err := row.Scan(&m.ID, &m.Code, &m.Name, &m.GenericName, &m.Specification, &m.DosageForm, &m.Unit,
		&m.Manufacturer, &m.Category, &m.RetailPrice, &m.PurchasePrice, &m.StockQuantity, &m.MinStock,
		&m.MaxStock, &m.IsPrescription, &m.IsActive, &m.CreatedAt, &m.UpdatedAt)
	return &m, err
}

func (r *medicineRepoPG) Create(ctx context.Context, m *Medicine) error {
	m.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO medicine (id, code, name, generic_name, specification, dosage_form, unit, manufacturer,
			category, retail_price, purchase_price, stock_quantity, min_stock, max_stock, is_prescription, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		RETURNING created_at, updated_at`,
		m.ID, m.Code, m.Name, m.GenericName, m.Specification, m.DosageForm, m.Unit, m.Manufacturer,
		m.Category, m.RetailPrice, m.PurchasePrice, m.StockQuantity, m.MinStock, m.MaxStock,
		m.IsPrescription, m.IsActive).Scan(&m.CreatedAt, &m.UpdatedAt)
	return apperr.FromDB(err, "medicine", m.Code)
}

func (r *medicineRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Medicine, error) {
	m, err := r.scanMedicine(r.conn(ctx).QueryRow(ctx, `SELECT `+medicineCols+` FROM medicine WHERE id = $1`, id))
	if err != nil {
		return nil, apperr.FromDB(err, "medicine", id)
	}
	return m, nil
}

// Update writes catalog fields only. stock_quantity changes go through
// AdjustStock.
func (r *medicineRepoPG) Update(ctx context.Context, m *Medicine) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE medicine SET name=$2, generic_name=$3, specification=$4, dosage_form=$5, unit=$6,
			manufacturer=$7, category=$8, retail_price=$9, purchase_price=$10, min_stock=$11, max_stock=$12,
			is_prescription=$13, is_active=$14, updated_at=NOW()
		WHERE id = $1
		RETURNING stock_quantity, updated_at`,
		m.ID, m.Name, m.GenericName, m.Specification, m.DosageForm, m.Unit, m.Manufacturer, m.Category,
		m.RetailPrice, m.PurchasePrice, m.MinStock, m.MaxStock, m.IsPrescription, m.IsActive,
	).Scan(&m.StockQuantity, &m.UpdatedAt)
	return apperr.FromDB(err, "medicine", m.ID)
}

func (r *medicineRepoPG) AdjustStock(ctx context.Context, id uuid.UUID, delta int) (int, error) {
	var after int
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE medicine SET stock_quantity = stock_quantity + $2, updated_at = NOW()
		WHERE id = $1 AND stock_quantity + $2 >= 0
		RETURNING stock_quantity`, id, delta).Scan(&after)
	if err == nil {
		return after, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, apperr.FromDB(err, "medicine", id)
	}
	var exists bool
	if err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM medicine WHERE id = $1)`, id).Scan(&exists); err != nil {
		return 0, apperr.FromDB(err, "medicine", id)
	}
	if !exists {
		return 0, apperr.NotFound("medicine", id)
	}
	return 0, ErrInsufficientStock
}

func (r *medicineRepoPG) AddMovement(ctx context.Context, mv *StockMovement) error {
	mv.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO stock_movement (id, medicine_id, change, quantity_after, kind, reason, reference_id, operator_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at`,
		mv.ID, mv.MedicineID, mv.Change, mv.QuantityAfter, mv.Kind, mv.Reason, mv.ReferenceID, mv.OperatorID,
	).Scan(&mv.CreatedAt)
	return apperr.FromDB(err, "stock movement", mv.MedicineID)
}

func (r *medicineRepoPG) ListMovements(ctx context.Context, medicineID uuid.UUID, limit, offset int) ([]*StockMovement, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM stock_movement WHERE medicine_id = $1`, medicineID).Scan(&total); err != nil {
		return nil, 0, apperr.FromDB(err, "stock movement", medicineID)
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, medicine_id, change, quantity_after, kind, reason, reference_id, operator_id, created_at
		FROM stock_movement WHERE medicine_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, medicineID, limit, offset)
	if err != nil {
		return nil, 0, apperr.FromDB(err, "stock movement", medicineID)
	}
	defer rows.Close()
	var items []*StockMovement
	for rows.Next() {
		var mv StockMovement
		if err := rows.Scan(&mv.ID, &mv.MedicineID, &mv.Change, &mv.QuantityAfter, &mv.Kind, &mv.Reason,
			&mv.ReferenceID, &mv.OperatorID, &mv.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &mv)
	}
	return items, total, rows.Err()
}

var stockStatusClauses = map[StockStatus]string{
	StockIn:  "stock_quantity > 0 AND stock_quantity > min_stock",
	StockLow: "stock_quantity > 0 AND stock_quantity <= min_stock",
	StockOut: "stock_quantity = 0",
}

func (r *medicineRepoPG) Search(ctx context.Context, f SearchFilter) ([]*Medicine, int, error) {
	q := search.NewQuery("medicine", medicineCols).
		Contains(f.Keyword, "code", "name", "generic_name").
		Equal("category", f.Category).
		OrderBy("name, code")
	if !f.IncludeInactive {
		q.Where("is_active")
	}
	if f.Manufacturer != "" {
		q.Contains(f.Manufacturer, "manufacturer")
	}
	if f.MinPrice != nil {
		q.Where("retail_price >= ?", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		q.Where("retail_price <= ?", *f.MaxPrice)
	}
	if clause, ok := stockStatusClauses[f.StockStatus]; ok {
		q.Where(clause)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, apperr.FromDB(err, "medicine", nil)
	}
	rows, err := r.conn(ctx).Query(ctx, q.DataSQL(), q.DataArgs(f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, apperr.FromDB(err, "medicine", nil)
	}
	defer rows.Close()
	var items []*Medicine
	for rows.Next() {
		m, err := r.scanMedicine(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, m)
	}
	return items, total, rows.Err()
}

func (r *medicineRepoPG) Stats(ctx context.Context) (*InventoryStats, error) {
	var s InventoryStats
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE stock_quantity > 0 AND stock_quantity > min_stock),
			COUNT(*) FILTER (WHERE stock_quantity > 0 AND stock_quantity <= min_stock),
			COUNT(*) FILTER (WHERE stock_quantity = 0)
		FROM medicine WHERE is_active`).Scan(&s.Total, &s.InStock, &s.LowStock, &s.OutOfStock)
	if err != nil {
		return nil, apperr.FromDB(err, "medicine", nil)
	}
	return &s, nil
}
