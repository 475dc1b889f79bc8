package medicine

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/his/his/internal/platform/apperr"
	"github.com/his/his/internal/platform/audit"
	"github.com/his/his/internal/platform/auth"
	"github.com/his/his/internal/platform/db"
)

type Service struct {
	medicines Repository
	tx        db.Transactor
	audit     audit.Recorder
	logger    zerolog.Logger
}

func NewService(medicines Repository, tx db.Transactor) *Service {
	return &Service{medicines: medicines, tx: tx, audit: audit.Nop, logger: zerolog.Nop()}
}

func (s *Service) SetAuditRecorder(r audit.Recorder) { s.audit = r }

func (s *Service) SetLogger(l zerolog.Logger) { s.logger = l }

func validateCatalog(m *Medicine) error {
	m.Code = strings.TrimSpace(m.Code)
	m.Name = strings.TrimSpace(m.Name)
	m.Unit = strings.TrimSpace(m.Unit)
	if m.Code == "" {
		return apperr.Validation("medicine code is required")
	}
	if m.Name == "" {
		return apperr.Validation("medicine name is required")
	}
	if m.Unit == "" {
		return apperr.Validation("unit is required")
	}
	if m.RetailPrice.IsNegative() || m.PurchasePrice.IsNegative() {
		return apperr.Validation("prices must not be negative")
	}
	if m.MinStock < 0 || m.MaxStock < 0 {
		return apperr.Validation("stock bounds must not be negative")
	}
	if m.MaxStock > 0 && m.MaxStock < m.MinStock {
		return apperr.Validation("max_stock must not be below min_stock")
	}
	m.RetailPrice = m.RetailPrice.Round(2)
	m.PurchasePrice = m.PurchasePrice.Round(2)
	return nil
}

// Create adds a catalog entry with zero stock. Inbound stock is booked with
// UpdateStock so every unit has a movement row.
func (s *Service) Create(ctx context.Context, m *Medicine) error {
	if err := validateCatalog(m); err != nil {
		return err
	}
	m.StockQuantity = 0
	m.IsActive = true
	return s.medicines.Create(ctx, m)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Medicine, error) {
	return s.medicines.GetByID(ctx, id)
}

// Update replaces catalog fields and prices. Stock is never set here.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in *Medicine) (*Medicine, error) {
	existing, err := s.medicines.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	in.ID = existing.ID
	in.Code = existing.Code
	if err := validateCatalog(in); err != nil {
		return nil, err
	}
	in.StockQuantity = existing.StockQuantity
	in.IsActive = existing.IsActive
	if err := s.medicines.Update(ctx, in); err != nil {
		return nil, err
	}
	return in, nil
}

func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) error {
	m, err := s.medicines.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !m.IsActive {
		return nil
	}
	m.IsActive = false
	return s.medicines.Update(ctx, m)
}

// UpdateStock books a manual adjustment. A positive quantity is inbound, a
// negative one outbound; the result may not go below zero.
func (s *Service) UpdateStock(ctx context.Context, caller auth.Caller, id uuid.UUID, quantity int, reason string) (*Medicine, error) {
	reason = strings.TrimSpace(reason)
	if quantity == 0 {
		return nil, apperr.Validation("quantity must not be zero")
	}
	if reason == "" {
		return nil, apperr.Validation("reason is required for stock adjustment")
	}

	var m *Medicine
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		after, err := s.AdjustStock(ctx, id, quantity, MovementAdjust, nil, caller.UserID, reason)
		if err != nil {
			return err
		}
		if m, err = s.medicines.GetByID(ctx, id); err != nil {
			return err
		}
		return s.audit.Record(ctx, audit.NewEvent(caller, audit.ActionStockAdjusted, "medicine", id, map[string]interface{}{
			"change":         quantity,
			"quantity_after": after,
			"reason":         reason,
		}))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("medicine_id", id.String()).
		Int("change", quantity).
		Int("quantity_after", m.StockQuantity).
		Str("operator", caller.UserID.String()).
		Msg("stock adjusted")
	return m, nil
}

// AdjustStock is the single primitive behind adjustments, dispensing and
// returns. It changes stock with one conditional update and records the
// movement. Callers provide the transaction.
func (s *Service) AdjustStock(ctx context.Context, id uuid.UUID, delta int, kind MovementKind, refID *uuid.UUID, operator uuid.UUID, reason string) (int, error) {
	after, err := s.medicines.AdjustStock(ctx, id, delta)
	if errors.Is(err, ErrInsufficientStock) {
		name := id.String()
		if m, gerr := s.medicines.GetByID(ctx, id); gerr == nil {
			name = m.Name
		}
		return 0, apperr.Validation("insufficient stock for %s", name)
	}
	if err != nil {
		return 0, err
	}

	mv := &StockMovement{
		MedicineID:    id,
		Change:        delta,
		QuantityAfter: after,
		Kind:          kind,
		ReferenceID:   refID,
		OperatorID:    &operator,
	}
	if reason != "" {
		mv.Reason = &reason
	}
	if err := s.medicines.AddMovement(ctx, mv); err != nil {
		return 0, err
	}
	return after, nil
}

func (s *Service) GetInventoryStats(ctx context.Context) (*InventoryStats, error) {
	return s.medicines.Stats(ctx)
}

// SearchForDoctor searches active medicines by keyword and category.
func (s *Service) SearchForDoctor(ctx context.Context, f SearchFilter) ([]DoctorView, int, error) {
	f = SearchFilter{Keyword: strings.TrimSpace(f.Keyword), Category: f.Category, Limit: f.Limit, Offset: f.Offset}
	items, total, err := s.medicines.Search(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	views := make([]DoctorView, 0, len(items))
	for _, m := range items {
		views = append(views, NewDoctorView(m))
	}
	return views, total, nil
}

// SearchForPharmacist accepts the full filter set.
func (s *Service) SearchForPharmacist(ctx context.Context, f SearchFilter) ([]PharmacistView, int, error) {
	f.Keyword = strings.TrimSpace(f.Keyword)
	if f.StockStatus != "" && !validStockStatuses[f.StockStatus] {
		return nil, 0, apperr.Validation("invalid stock status: %s", f.StockStatus)
	}
	if f.MinPrice != nil && f.MaxPrice != nil && f.MinPrice.GreaterThan(*f.MaxPrice) {
		return nil, 0, apperr.Validation("min_price must not exceed max_price")
	}
	items, total, err := s.medicines.Search(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	views := make([]PharmacistView, 0, len(items))
	for _, m := range items {
		views = append(views, NewPharmacistView(m))
	}
	return views, total, nil
}

func (s *Service) ListMovements(ctx context.Context, medicineID uuid.UUID, limit, offset int) ([]*StockMovement, int, error) {
	if _, err := s.medicines.GetByID(ctx, medicineID); err != nil {
		return nil, 0, err
	}
	return s.medicines.ListMovements(ctx, medicineID, limit, offset)
}
