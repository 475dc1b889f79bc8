package charge

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/his/his/internal/domain/prescription"
	"github.com/his/his/internal/domain/registration"
	"github.com/his/his/internal/platform/apperr"
	"github.com/his/his/internal/platform/audit"
	"github.com/his/his/internal/platform/auth"
	"github.com/his/his/internal/platform/clock"
	"github.com/his/his/internal/platform/db"
	"github.com/his/his/internal/platform/serial"
)

// Registrations is the part of the registration service billing drives.
type Registrations interface {
	Get(ctx context.Context, id uuid.UUID) (*registration.Registration, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*registration.Registration, error)
	MarkFeePaid(ctx context.Context, id uuid.UUID) error
	MarkRefunded(ctx context.Context, id uuid.UUID) error
}

// Prescriptions is the part of the prescription service billing drives.
type Prescriptions interface {
	GetForUpdate(ctx context.Context, id uuid.UUID) (*prescription.Prescription, error)
	MarkPaid(ctx context.Context, ids []uuid.UUID) error
	MarkRefunded(ctx context.Context, ids []uuid.UUID) error
}

type Service struct {
	charges       Repository
	registrations Registrations
	prescriptions Prescriptions
	serials       serial.Generator
	tx            db.Transactor
	audit         audit.Recorder
	logger        zerolog.Logger
	now           func() time.Time
}

func NewService(charges Repository, registrations Registrations, prescriptions Prescriptions, serials serial.Generator, tx db.Transactor) *Service {
	return &Service{
		charges:       charges,
		registrations: registrations,
		prescriptions: prescriptions,
		serials:       serials,
		tx:            tx,
		audit:         audit.Nop,
		logger:        zerolog.Nop(),
		now:           time.Now,
	}
}

func (s *Service) SetAuditRecorder(r audit.Recorder) { s.audit = r }

func (s *Service) SetLogger(l zerolog.Logger) { s.logger = l }

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// CreateCharge bills a registration. Without prescriptions it is a
// registration fee charge; with them the fee is added when it is still
// outstanding.
func (s *Service) CreateCharge(ctx context.Context, caller auth.Caller, req CreateRequest) (*Charge, error) {
	if len(req.PrescriptionIDs) == 0 {
		return s.CreateRegistrationCharge(ctx, caller, req.RegistrationID)
	}
	return s.createPrescriptionCharge(ctx, caller, req, true)
}

// CreateRegistrationCharge bills only the registration fee.
func (s *Service) CreateRegistrationCharge(ctx context.Context, caller auth.Caller, registrationID uuid.UUID) (*Charge, error) {
	if registrationID == uuid.Nil {
		return nil, apperr.Validation("registration_id is required")
	}

	var c *Charge
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		reg, err := s.registrations.GetForUpdate(ctx, registrationID)
		if err != nil {
			return err
		}
		if reg.Status != registration.StatusWaiting && reg.Status != registration.StatusPaidRegistration {
			return apperr.State("registration %s is %s; only waiting registrations can be charged a fee", reg.RegNo, reg.Status)
		}
		outstanding, err := s.feeOutstanding(ctx, reg)
		if err != nil {
			return err
		}
		if !outstanding {
			return apperr.Validation("registration fee for %s is already paid or billed", reg.RegNo)
		}
		if !reg.RegistrationFee.IsPositive() {
			return apperr.Validation("registration %s has no fee to charge", reg.RegNo)
		}

		c = &Charge{
			PatientID:               reg.PatientID,
			RegistrationID:          reg.ID,
			IncludesRegistrationFee: true,
			RegistrationFee:         reg.RegistrationFee,
			TotalAmount:             reg.RegistrationFee,
			PrescriptionIDs:         []uuid.UUID{},
		}
		return s.create(ctx, caller, c)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// CreatePrescriptionCharge bills reviewed prescriptions of a completed
// visit. The registration fee is never included.
func (s *Service) CreatePrescriptionCharge(ctx context.Context, caller auth.Caller, registrationID uuid.UUID, prescriptionIDs []uuid.UUID) (*Charge, error) {
	if len(prescriptionIDs) == 0 {
		return nil, apperr.Validation("prescription_ids is required")
	}
	return s.createPrescriptionCharge(ctx, caller, CreateRequest{RegistrationID: registrationID, PrescriptionIDs: prescriptionIDs}, false)
}

func (s *Service) createPrescriptionCharge(ctx context.Context, caller auth.Caller, req CreateRequest, withFee bool) (*Charge, error) {
	if req.RegistrationID == uuid.Nil {
		return nil, apperr.Validation("registration_id is required")
	}
	ids := dedupe(req.PrescriptionIDs)

	var c *Charge
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		reg, err := s.registrations.GetForUpdate(ctx, req.RegistrationID)
		if err != nil {
			return err
		}
		if reg.Status != registration.StatusCompleted {
			return apperr.State("registration %s is %s; prescriptions are billed after the visit is completed", reg.RegNo, reg.Status)
		}

		total := decimal.Zero
		for _, id := range ids {
			p, err := s.prescriptions.GetForUpdate(ctx, id)
			if apperr.Is(err, apperr.KindNotFound) {
				return apperr.Validation("prescription %s does not exist", id)
			}
			if err != nil {
				return err
			}
			if p.RegistrationID != reg.ID {
				return apperr.Validation("prescription %s does not belong to registration %s", p.PrescriptionNo, reg.RegNo)
			}
			if p.Status != prescription.StatusReviewed {
				return apperr.State("prescription %s is %s; only reviewed prescriptions can be charged", p.PrescriptionNo, p.Status)
			}
			total = total.Add(p.TotalAmount)
		}

		billed, err := s.charges.OpenPrescriptionCharges(ctx, ids)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if no, ok := billed[id]; ok {
				return apperr.Validation("prescription %s is already billed on charge %s", id, no)
			}
		}

		c = &Charge{
			PatientID:       reg.PatientID,
			RegistrationID:  reg.ID,
			RegistrationFee: decimal.Zero,
			PrescriptionIDs: ids,
		}
		if withFee && reg.RegistrationFee.IsPositive() {
			outstanding, err := s.feeOutstanding(ctx, reg)
			if err != nil {
				return err
			}
			if outstanding {
				c.IncludesRegistrationFee = true
				c.RegistrationFee = reg.RegistrationFee
				total = total.Add(reg.RegistrationFee)
			}
		}
		c.TotalAmount = total
		return s.create(ctx, caller, c)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// feeOutstanding reports whether the fee is neither paid nor sitting on an
// unpaid charge.
func (s *Service) feeOutstanding(ctx context.Context, reg *registration.Registration) (bool, error) {
	if reg.Status == registration.StatusPaidRegistration {
		return false, nil
	}
	billed, err := s.charges.HasFeeCharge(ctx, reg.ID, StatusUnpaid, StatusPaid)
	if err != nil {
		return false, err
	}
	return !billed, nil
}

func (s *Service) create(ctx context.Context, caller auth.Caller, c *Charge) error {
	no, err := serial.NextNumber(ctx, s.serials, serial.Charge, s.now())
	if err != nil {
		return apperr.System(err, "allocate charge number")
	}
	c.ChargeNo = no
	c.Status = StatusUnpaid
	c.CreatedBy = &caller.UserID
	if err := s.charges.Create(ctx, c); err != nil {
		return err
	}
	return s.audit.Record(ctx, audit.NewEvent(caller, audit.ActionChargeCreated, "charge", c.ID, map[string]interface{}{
		"charge_no":     c.ChargeNo,
		"kind":          string(c.Kind()),
		"total_amount":  c.TotalAmount.StringFixed(2),
		"prescriptions": len(c.PrescriptionIDs),
	}))
}

func validatePayment(req *PaymentRequest) error {
	req.TransactionNo = strings.TrimSpace(req.TransactionNo)
	if !req.PaymentMethod.Valid() {
		return apperr.Validation("invalid payment method: %q", req.PaymentMethod)
	}
	if req.PaymentMethod.RequiresTransactionNo() && req.TransactionNo == "" {
		return apperr.Validation("transaction_no is required for %s payments", req.PaymentMethod)
	}
	if req.PaidAmount.IsNegative() {
		return apperr.Validation("paid amount must not be negative")
	}
	return nil
}

// ProcessPayment settles an unpaid charge in full and marks what it covers
// as paid.
//
// A repeated call carrying the transaction number the charge was already
// paid with returns the stored charge with Replayed set and applies
// nothing. A transaction number recorded on any other charge is rejected.
func (s *Service) ProcessPayment(ctx context.Context, caller auth.Caller, id uuid.UUID, req PaymentRequest) (*Charge, error) {
	if err := validatePayment(&req); err != nil {
		return nil, err
	}

	var c *Charge
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if c, err = s.charges.GetForUpdate(ctx, id); err != nil {
			return err
		}

		if req.TransactionNo != "" && c.Status == StatusPaid && c.TransactionNo != nil && *c.TransactionNo == req.TransactionNo {
			c.Replayed = true
			return s.audit.Record(ctx, audit.NewEvent(caller, audit.ActionPaymentReplayed, "charge", c.ID,
				map[string]interface{}{"charge_no": c.ChargeNo, "transaction_no": req.TransactionNo}))
		}

		switch c.Status {
		case StatusPaid:
			return apperr.State("charge %s is already paid", c.ChargeNo)
		case StatusRefunded:
			return apperr.State("charge %s is already refunded", c.ChargeNo)
		}
		if !req.PaidAmount.Equal(c.TotalAmount) {
			return apperr.Validation("paid amount %s does not match charge total %s",
				req.PaidAmount.StringFixed(2), c.TotalAmount.StringFixed(2))
		}
		if req.TransactionNo != "" {
			other, err := s.charges.GetByTransactionNo(ctx, req.TransactionNo)
			switch {
			case err == nil && other.ID != c.ID:
				return apperr.Validation("transaction number %s has already been used", req.TransactionNo)
			case err != nil && !apperr.Is(err, apperr.KindNotFound):
				return err
			}
		}
		if err := s.checkPayable(ctx, c); err != nil {
			return err
		}

		now := s.now()
		method := req.PaymentMethod
		amount := req.PaidAmount
		c.Status = StatusPaid
		c.PaymentMethod = &method
		c.PaidAmount = &amount
		c.PaidAt = &now
		c.PaidBy = &caller.UserID
		if req.TransactionNo != "" {
			txNo := req.TransactionNo
			c.TransactionNo = &txNo
		}
		if err := s.charges.Update(ctx, c); err != nil {
			return err
		}
		if c.IncludesRegistrationFee {
			if err := s.registrations.MarkFeePaid(ctx, c.RegistrationID); err != nil {
				return err
			}
		}
		if len(c.PrescriptionIDs) > 0 {
			if err := s.prescriptions.MarkPaid(ctx, c.PrescriptionIDs); err != nil {
				return err
			}
		}
		return s.audit.Record(ctx, audit.NewEvent(caller, audit.ActionPaymentProcessed, "charge", c.ID, map[string]interface{}{
			"charge_no":      c.ChargeNo,
			"amount":         amount.StringFixed(2),
			"payment_method": string(method),
			"transaction_no": req.TransactionNo,
		}))
	})
	if err != nil {
		return nil, err
	}

	if c.Replayed {
		s.logger.Warn().Str("charge_no", c.ChargeNo).Str("transaction_no", req.TransactionNo).
			Msg("duplicate payment submission replayed")
		return c, nil
	}
	s.logger.Info().
		Str("charge_no", c.ChargeNo).
		Str("amount", c.TotalAmount.StringFixed(2)).
		Str("payment_method", string(req.PaymentMethod)).
		Str("cashier", caller.UserID.String()).
		Msg("payment processed")
	return c, nil
}

// checkPayable verifies every cascade target before the first write.
func (s *Service) checkPayable(ctx context.Context, c *Charge) error {
	if c.IncludesRegistrationFee {
		reg, err := s.registrations.GetForUpdate(ctx, c.RegistrationID)
		if err != nil {
			return err
		}
		switch reg.Status {
		case registration.StatusWaiting, registration.StatusPaidRegistration, registration.StatusCompleted:
		default:
			return apperr.State("registration %s is %s and its fee can no longer be paid", reg.RegNo, reg.Status)
		}
	}
	for _, id := range c.PrescriptionIDs {
		p, err := s.prescriptions.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !p.Status.CanTransitionTo(prescription.StatusPaid) {
			return apperr.State("prescription %s is %s and cannot be paid", p.PrescriptionNo, p.Status)
		}
	}
	return nil
}

// ProcessRefund reverses a paid charge. Prescriptions become REFUNDED
// without stock changes: stock only leaves at dispensing, and goods that
// came back were restocked by the return.
func (s *Service) ProcessRefund(ctx context.Context, caller auth.Caller, id uuid.UUID, reason string) (*Charge, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.Validation("refund reason is required")
	}

	var c *Charge
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if c, err = s.charges.GetForUpdate(ctx, id); err != nil {
			return err
		}
		if !c.Status.CanTransitionTo(StatusRefunded) {
			return apperr.State("charge %s is %s; only paid charges can be refunded", c.ChargeNo, c.Status)
		}
		for _, pid := range c.PrescriptionIDs {
			p, err := s.prescriptions.GetForUpdate(ctx, pid)
			if err != nil {
				return err
			}
			if !p.Status.CanTransitionTo(prescription.StatusRefunded) {
				return apperr.State("prescription %s is %s and cannot be refunded", p.PrescriptionNo, p.Status)
			}
		}

		now := s.now()
		c.Status = StatusRefunded
		c.RefundReason = &reason
		c.RefundedAt = &now
		c.RefundedBy = &caller.UserID
		if err := s.charges.Update(ctx, c); err != nil {
			return err
		}
		if len(c.PrescriptionIDs) > 0 {
			if err := s.prescriptions.MarkRefunded(ctx, c.PrescriptionIDs); err != nil {
				return err
			}
		}
		if c.IncludesRegistrationFee {
			if err := s.registrations.MarkRefunded(ctx, c.RegistrationID); err != nil {
				return err
			}
		}
		return s.audit.Record(ctx, audit.NewEvent(caller, audit.ActionRefundProcessed, "charge", c.ID, map[string]interface{}{
			"charge_no": c.ChargeNo,
			"amount":    c.TotalAmount.StringFixed(2),
			"reason":    reason,
		}))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("charge_no", c.ChargeNo).
		Str("amount", c.TotalAmount.StringFixed(2)).
		Str("reason", reason).
		Msg("refund processed")
	return c, nil
}

// IsRegistrationFeePaid reports whether the fee is settled, either on the
// registration itself or through a paid charge.
func (s *Service) IsRegistrationFeePaid(ctx context.Context, registrationID uuid.UUID) (bool, error) {
	reg, err := s.registrations.Get(ctx, registrationID)
	if err != nil {
		return false, err
	}
	if reg.Status == registration.StatusPaidRegistration {
		return true, nil
	}
	return s.charges.HasFeeCharge(ctx, registrationID, StatusPaid)
}

func (s *Service) GetChargesByType(ctx context.Context, registrationID uuid.UUID) (*ChargesByType, error) {
	items, err := s.charges.ListByRegistration(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	out := &ChargesByType{Registration: []*Charge{}, Prescription: []*Charge{}, Combined: []*Charge{}}
	for _, c := range items {
		switch c.Kind() {
		case KindRegistration:
			out.Registration = append(out.Registration, c)
		case KindPrescription:
			out.Prescription = append(out.Prescription, c)
		default:
			out.Combined = append(out.Combined, c)
		}
	}
	return out, nil
}

// GetDailySettlement reports one business day. An empty day means today.
func (s *Service) GetDailySettlement(ctx context.Context, day string) (*DailySettlement, error) {
	d, err := clock.ParseDay(day, s.now())
	if err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}
	from, to := clock.DayBounds(d)
	st, err := s.charges.Settlement(ctx, from, to)
	if err != nil {
		return nil, err
	}
	st.Date = from.Format(clock.DayLayout)
	st.NetAmount = st.PaidAmount.Sub(st.RefundAmount)
	return st, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Charge, error) {
	return s.charges.GetByID(ctx, id)
}

func (s *Service) ListByRegistration(ctx context.Context, registrationID uuid.UUID) ([]*Charge, error) {
	return s.charges.ListByRegistration(ctx, registrationID)
}

func (s *Service) ListUnpaid(ctx context.Context, limit, offset int) ([]*Charge, int, error) {
	return s.charges.ListByStatus(ctx, StatusUnpaid, limit, offset)
}
