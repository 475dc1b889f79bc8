package prescription

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/his/his/internal/domain/medicalrecord"
	"github.com/his/his/internal/domain/medicine"
	"github.com/his/his/internal/platform/apperr"
	"github.com/his/his/internal/platform/audit"
	"github.com/his/his/internal/platform/auth"
	"github.com/his/his/internal/platform/clock"
	"github.com/his/his/internal/platform/db"
	"github.com/his/his/internal/platform/serial"
)

const DefaultValidityDays = 3

// RecordLookup finds the medical record a prescription hangs off.
type RecordLookup interface {
	GetByRegistration(ctx context.Context, registrationID uuid.UUID) (*medicalrecord.MedicalRecord, error)
}

// StockKeeper is the part of the medicine service prescriptions depend on.
type StockKeeper interface {
	Get(ctx context.Context, id uuid.UUID) (*medicine.Medicine, error)
	AdjustStock(ctx context.Context, id uuid.UUID, delta int, kind medicine.MovementKind, refID *uuid.UUID, operator uuid.UUID, reason string) (int, error)
}

type Service struct {
	prescriptions Repository
	records       RecordLookup
	stock         StockKeeper
	serials       serial.Generator
	tx            db.Transactor
	audit         audit.Recorder
	logger        zerolog.Logger
	validityDays  int
	now           func() time.Time
}

func NewService(prescriptions Repository, records RecordLookup, stock StockKeeper, serials serial.Generator, tx db.Transactor) *Service {
	return &Service{
		prescriptions: prescriptions,
		records:       records,
		stock:         stock,
		serials:       serials,
		tx:            tx,
		audit:         audit.Nop,
		logger:        zerolog.Nop(),
		validityDays:  DefaultValidityDays,
		now:           time.Now,
	}
}

func (s *Service) SetAuditRecorder(r audit.Recorder) { s.audit = r }

func (s *Service) SetLogger(l zerolog.Logger) { s.logger = l }

// SetDefaultValidityDays sets the validity used when a request leaves it
// unset. Non-positive values are ignored.
func (s *Service) SetDefaultValidityDays(days int) {
	if days > 0 {
		s.validityDays = days
	}
}

// mergeItems validates request lines and folds repeated medicines into one
// line. The first line's usage fields win.
func mergeItems(items []Item) ([]Item, error) {
	if len(items) == 0 {
		return nil, apperr.Validation("prescription must contain at least one item")
	}
	merged := make([]Item, 0, len(items))
	index := make(map[uuid.UUID]int, len(items))
	for _, it := range items {
		if it.MedicineID == uuid.Nil {
			return nil, apperr.Validation("medicine_id is required")
		}
		if it.Quantity <= 0 {
			return nil, apperr.Validation("quantity must be positive")
		}
		if i, ok := index[it.MedicineID]; ok {
			merged[i].Quantity += it.Quantity
			continue
		}
		index[it.MedicineID] = len(merged)
		merged = append(merged, it)
	}
	return merged, nil
}

func ensurePrescriber(caller auth.Caller, doctorID uuid.UUID) error {
	if caller.IsAdmin() {
		return nil
	}
	if caller.DoctorID == nil || *caller.DoctorID != doctorID {
		return apperr.Forbidden("only the attending doctor can manage this prescription")
	}
	return nil
}

// Create prices every line from the catalog and stores the prescription
// as OPEN. Stock is checked but not reserved; it is taken at dispensing.
func (s *Service) Create(ctx context.Context, caller auth.Caller, req CreateRequest) (*Prescription, error) {
	if req.RegistrationID == uuid.Nil {
		return nil, apperr.Validation("registration_id is required")
	}
	if req.Type == 0 {
		req.Type = TypeWestern
	}
	if !req.Type.Valid() {
		return nil, apperr.Validation("invalid prescription type: %d", req.Type)
	}
	if req.ValidityDays < 0 {
		return nil, apperr.Validation("validity_days must not be negative")
	}
	if req.ValidityDays == 0 {
		req.ValidityDays = s.validityDays
	}
	items, err := mergeItems(req.Items)
	if err != nil {
		return nil, err
	}

	var p *Prescription
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		rec, err := s.records.GetByRegistration(ctx, req.RegistrationID)
		if apperr.Is(err, apperr.KindNotFound) {
			return apperr.Validation("create a medical record for this registration first")
		}
		if err != nil {
			return err
		}
		if err := ensurePrescriber(caller, rec.DoctorID); err != nil {
			return err
		}

		total := decimal.Zero
		count := 0
		details := make([]*Detail, 0, len(items))
		for i, it := range items {
			m, err := s.stock.Get(ctx, it.MedicineID)
			if apperr.Is(err, apperr.KindNotFound) {
				return apperr.Validation("medicine %s does not exist", it.MedicineID)
			}
			if err != nil {
				return err
			}
			if !m.IsActive {
				return apperr.Validation("medicine %s is no longer available", m.Name)
			}
			if it.Quantity > m.StockQuantity {
				return apperr.Validation("insufficient stock for %s: requested %d, available %d",
					m.Name, it.Quantity, m.StockQuantity)
			}
			subtotal := m.RetailPrice.Mul(decimal.NewFromInt(int64(it.Quantity))).Round(2)
			total = total.Add(subtotal)
			count += it.Quantity
			unit := m.Unit
			details = append(details, &Detail{
				MedicineID:    m.ID,
				MedicineName:  m.Name,
				Specification: m.Specification,
				Unit:          &unit,
				UnitPrice:     m.RetailPrice,
				Quantity:      it.Quantity,
				Subtotal:      subtotal,
				Usage:         it.Usage,
				Frequency:     it.Frequency,
				Dosage:        it.Dosage,
				Days:          it.Days,
				SortOrder:     i,
			})
		}

		no, err := serial.NextNumber(ctx, s.serials, serial.Prescription, s.now())
		if err != nil {
			return apperr.System(err, "allocate prescription number")
		}
		p = &Prescription{
			PrescriptionNo: no,
			RecordID:       rec.ID,
			RegistrationID: rec.RegistrationID,
			PatientID:      rec.PatientID,
			DoctorID:       rec.DoctorID,
			Type:           req.Type,
			TotalAmount:    total,
			ItemCount:      count,
			Status:         StatusOpen,
			ValidityDays:   req.ValidityDays,
			Details:        details,
		}
		if err := s.prescriptions.Create(ctx, p); err != nil {
			return err
		}
		return s.audit.Record(ctx, audit.NewEvent(caller, audit.ActionPrescriptionCreate, "prescription", p.ID,
			map[string]interface{}{"prescription_no": p.PrescriptionNo, "total_amount": p.TotalAmount.StringFixed(2)}))
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Review approves an OPEN or DRAFT prescription that is still within its
// validity window.
func (s *Service) Review(ctx context.Context, caller auth.Caller, id uuid.UUID, remark string) (*Prescription, error) {
	var p *Prescription
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if p, err = s.prescriptions.GetForUpdate(ctx, id); err != nil {
			return err
		}
		switch {
		case p.Status == StatusReviewed:
			return apperr.State("prescription %s is already reviewed", p.PrescriptionNo)
		case !p.Status.CanTransitionTo(StatusReviewed):
			return apperr.State("prescription %s is %s and cannot be reviewed", p.PrescriptionNo, p.Status)
		}
		now := s.now()
		if now.After(p.ExpiresAt()) {
			return apperr.State("prescription %s expired on %s", p.PrescriptionNo,
				p.ExpiresAt().In(clock.Location()).Format(clock.DayLayout))
		}

		p.Status = StatusReviewed
		p.ReviewDoctorID = &caller.UserID
		p.ReviewTime = &now
		if remark = strings.TrimSpace(remark); remark != "" {
			p.ReviewRemark = &remark
		}
		if err := s.prescriptions.Update(ctx, p); err != nil {
			return err
		}
		return s.audit.Record(ctx, audit.NewEvent(caller, audit.ActionPrescriptionReview, "prescription", p.ID,
			map[string]interface{}{"prescription_no": p.PrescriptionNo}))
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Dispense hands out a paid prescription in full and takes its stock.
func (s *Service) Dispense(ctx context.Context, caller auth.Caller, id uuid.UUID) (*Prescription, error) {
	var p *Prescription
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if p, err = s.prescriptions.GetForUpdate(ctx, id); err != nil {
			return err
		}
		if p.Status != StatusPaid {
			return apperr.State("only paid prescriptions can be dispensed; %s is %s", p.PrescriptionNo, p.Status)
		}

		// Check every line before touching stock so a shortage leaves
		// nothing half-dispensed.
		for _, d := range p.Details {
			m, err := s.stock.Get(ctx, d.MedicineID)
			if err != nil {
				return err
			}
			if m.StockQuantity < d.Quantity {
				return apperr.Validation("insufficient stock for %s: required %d, available %d",
					m.Name, d.Quantity, m.StockQuantity)
			}
		}
		for _, d := range p.Details {
			if _, err := s.stock.AdjustStock(ctx, d.MedicineID, -d.Quantity, medicine.MovementDispense,
				&p.ID, caller.UserID, p.PrescriptionNo); err != nil {
				return err
			}
		}

		now := s.now()
		p.Status = StatusDispensed
		p.DispenseTime = &now
		p.DispenseBy = &caller.UserID
		if err := s.prescriptions.Update(ctx, p); err != nil {
			return err
		}
		return s.audit.Record(ctx, audit.NewEvent(caller, audit.ActionDispensed, "prescription", p.ID,
			map[string]interface{}{"prescription_no": p.PrescriptionNo, "items": p.ItemCount}))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("prescription_no", p.PrescriptionNo).
		Int("items", p.ItemCount).
		Str("pharmacist", caller.UserID.String()).
		Msg("prescription dispensed")
	return p, nil
}

// ReturnMedicine takes a dispensed prescription back into stock. The
// payment is untouched; refunding it is a separate cashier operation.
func (s *Service) ReturnMedicine(ctx context.Context, caller auth.Caller, id uuid.UUID, reason string) (*Prescription, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.Validation("return reason is required")
	}

	var p *Prescription
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if p, err = s.prescriptions.GetForUpdate(ctx, id); err != nil {
			return err
		}
		if p.Status != StatusDispensed {
			return apperr.State("only dispensed prescriptions can be returned; %s is %s", p.PrescriptionNo, p.Status)
		}
		for _, d := range p.Details {
			if _, err := s.stock.AdjustStock(ctx, d.MedicineID, d.Quantity, medicine.MovementReturn,
				&p.ID, caller.UserID, reason); err != nil {
				return err
			}
		}

		now := s.now()
		p.Status = StatusReturned
		p.ReturnReason = &reason
		p.ReturnTime = &now
		if err := s.prescriptions.Update(ctx, p); err != nil {
			return err
		}
		return s.audit.Record(ctx, audit.NewEvent(caller, audit.ActionReturned, "prescription", p.ID,
			map[string]interface{}{"prescription_no": p.PrescriptionNo, "reason": reason}))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("prescription_no", p.PrescriptionNo).
		Str("reason", reason).
		Msg("prescription returned")
	return p, nil
}

// Cancel withdraws a prescription that has not been paid.
func (s *Service) Cancel(ctx context.Context, caller auth.Caller, id uuid.UUID, reason string) (*Prescription, error) {
	reason = strings.TrimSpace(reason)

	var p *Prescription
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if p, err = s.prescriptions.GetForUpdate(ctx, id); err != nil {
			return err
		}
		if err := ensurePrescriber(caller, p.DoctorID); err != nil {
			return err
		}
		if !p.Status.CanTransitionTo(StatusCancelled) {
			return apperr.State("prescription %s is %s and cannot be cancelled", p.PrescriptionNo, p.Status)
		}
		p.Status = StatusCancelled
		if reason != "" {
			p.CancelReason = &reason
		}
		if err := s.prescriptions.Update(ctx, p); err != nil {
			return err
		}
		return s.audit.Record(ctx, audit.NewEvent(caller, audit.ActionPrescriptionCancel, "prescription", p.ID,
			map[string]interface{}{"prescription_no": p.PrescriptionNo, "reason": reason}))
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// MarkPaid moves reviewed prescriptions to PAID on behalf of a payment.
// All of them are checked before any is written. Callers provide the
// transaction.
func (s *Service) MarkPaid(ctx context.Context, ids []uuid.UUID) error {
	return s.transitionAll(ctx, ids, StatusPaid, "paid")
}

// MarkRefunded moves paid, dispensed or returned prescriptions to REFUNDED.
// Stock is not touched; returned goods were restocked by ReturnMedicine.
func (s *Service) MarkRefunded(ctx context.Context, ids []uuid.UUID) error {
	return s.transitionAll(ctx, ids, StatusRefunded, "refunded")
}

func (s *Service) transitionAll(ctx context.Context, ids []uuid.UUID, next Status, verb string) error {
	locked := make([]*Prescription, 0, len(ids))
	for _, id := range ids {
		p, err := s.prescriptions.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !p.Status.CanTransitionTo(next) {
			return apperr.State("prescription %s is %s and cannot be %s", p.PrescriptionNo, p.Status, verb)
		}
		locked = append(locked, p)
	}
	for _, p := range locked {
		p.Status = next
		if err := s.prescriptions.Update(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return s.prescriptions.GetByID(ctx, id)
}

// GetForUpdate locks the prescription row. Callers provide the transaction.
func (s *Service) GetForUpdate(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return s.prescriptions.GetForUpdate(ctx, id)
}

func (s *Service) ListByRecord(ctx context.Context, recordID uuid.UUID) ([]*Prescription, error) {
	return s.prescriptions.ListByRecord(ctx, recordID)
}

func (s *Service) ListByRegistration(ctx context.Context, registrationID uuid.UUID) ([]*Prescription, error) {
	return s.prescriptions.ListByRegistration(ctx, registrationID)
}

// PendingDispense lists paid prescriptions waiting at the pharmacy window,
// oldest payment first.
func (s *Service) PendingDispense(ctx context.Context, limit, offset int) ([]*Prescription, int, error) {
	return s.prescriptions.ListByStatus(ctx, StatusPaid, limit, offset)
}

// PharmacistStatistics summarises one pharmacist's dispensing for a day.
// An empty day means today.
func (s *Service) PharmacistStatistics(ctx context.Context, pharmacistID uuid.UUID, day string) (*PharmacistStats, error) {
	d, err := clock.ParseDay(day, s.now())
	if err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}
	from, to := clock.DayBounds(d)
	return s.prescriptions.DispenseStats(ctx, pharmacistID, from, to)
}
