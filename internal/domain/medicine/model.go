package medicine

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Medicine maps to the medicine table. PurchasePrice is only exposed through
// the pharmacist projection.
type Medicine struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	Code           string          `db:"code" json:"code"`
	Name           string          `db:"name" json:"name"`
	GenericName    *string         `db:"generic_name" json:"generic_name,omitempty"`
	Specification  *string         `db:"specification" json:"specification,omitempty"`
	DosageForm     *string         `db:"dosage_form" json:"dosage_form,omitempty"`
	Unit           string          `db:"unit" json:"unit"`
	Manufacturer   *string         `db:"manufacturer" json:"manufacturer,omitempty"`
	Category       *string         `db:"category" json:"category,omitempty"`
	RetailPrice    decimal.Decimal `db:"retail_price" json:"retail_price"`
	PurchasePrice  decimal.Decimal `db:"purchase_price" json:"purchase_price"`
	StockQuantity  int             `db:"stock_quantity" json:"stock_quantity"`
	MinStock       int             `db:"min_stock" json:"min_stock"`
	MaxStock       int             `db:"max_stock" json:"max_stock"`
	IsPrescription bool            `db:"is_prescription" json:"is_prescription"`
	IsActive       bool            `db:"is_active" json:"is_active"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

type StockStatus string

const (
	StockIn  StockStatus = "IN_STOCK"
	StockLow StockStatus = "LOW"
	StockOut StockStatus = "OUT"
)

var validStockStatuses = map[StockStatus]bool{
	StockIn:  true,
	StockLow: true,
	StockOut: true,
}

// StockStatusOf classifies stock against the medicine's minimum: OUT at
// zero, LOW up to and including min_stock, IN_STOCK above it.
func StockStatusOf(m *Medicine) StockStatus {
	switch {
	case m.StockQuantity <= 0:
		return StockOut
	case m.StockQuantity <= m.MinStock:
		return StockLow
	default:
		return StockIn
	}
}

type MovementKind string

const (
	MovementAdjust   MovementKind = "ADJUST"
	MovementDispense MovementKind = "DISPENSE"
	MovementReturn   MovementKind = "RETURN"
)

// StockMovement maps to the stock_movement table. One row is written for
// every change to stock_quantity.
type StockMovement struct {
	ID            uuid.UUID    `db:"id" json:"id"`
	MedicineID    uuid.UUID    `db:"medicine_id" json:"medicine_id"`
	Change        int          `db:"change" json:"change"`
	QuantityAfter int          `db:"quantity_after" json:"quantity_after"`
	Kind          MovementKind `db:"kind" json:"kind"`
	Reason        *string      `db:"reason" json:"reason,omitempty"`
	ReferenceID   *uuid.UUID   `db:"reference_id" json:"reference_id,omitempty"`
	OperatorID    *uuid.UUID   `db:"operator_id" json:"operator_id,omitempty"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
}

type InventoryStats struct {
	Total      int `json:"total"`
	InStock    int `json:"in_stock"`
	LowStock   int `json:"low_stock"`
	OutOfStock int `json:"out_of_stock"`
}

// SearchFilter narrows catalog searches. Manufacturer, price range, stock
// status and IncludeInactive are only honoured for pharmacists.
type SearchFilter struct {
	Keyword         string
	Category        string
	Manufacturer    string
	MinPrice        *decimal.Decimal
	MaxPrice        *decimal.Decimal
	StockStatus     StockStatus
	IncludeInactive bool
	Limit           int
	Offset          int
}
