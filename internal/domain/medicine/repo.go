package medicine

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrInsufficientStock is returned by AdjustStock when the change would take
// stock below zero. Stock is left untouched.
var ErrInsufficientStock = errors.New("insufficient stock")

type Repository interface {
	Create(ctx context.Context, m *Medicine) error
	GetByID(ctx context.Context, id uuid.UUID) (*Medicine, error)
	Update(ctx context.Context, m *Medicine) error
	// AdjustStock adds delta to stock_quantity atomically and returns the new
	// quantity.
	AdjustStock(ctx context.Context, id uuid.UUID, delta int) (int, error)
	AddMovement(ctx context.Context, mv *StockMovement) error
	ListMovements(ctx context.Context, medicineID uuid.UUID, limit, offset int) ([]*StockMovement, int, error)
	Search(ctx context.Context, f SearchFilter) ([]*Medicine, int, error)
	Stats(ctx context.Context) (*InventoryStats, error)
}
