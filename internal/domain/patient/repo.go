package patient

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByIDCard(ctx context.Context, idCard string) (*Patient, error)
	Search(ctx context.Context, keyword string, limit, offset int) ([]*Patient, int, error)
}
