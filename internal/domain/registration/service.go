package registration

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/his/his/internal/domain/patient"
	"github.com/his/his/internal/domain/staff"
	"github.com/his/his/internal/platform/apperr"
	"github.com/his/his/internal/platform/audit"
	"github.com/his/his/internal/platform/auth"
	"github.com/his/his/internal/platform/clock"
	"github.com/his/his/internal/platform/db"
	"github.com/his/his/internal/platform/serial"
)

type DoctorLookup interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*staff.Doctor, error)
}

type PatientLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
}

type Service struct {
	regs     Repository
	doctors  DoctorLookup
	patients PatientLookup
	serials  serial.Generator
	tx       db.Transactor
	audit    audit.Recorder
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(regs Repository, doctors DoctorLookup, patients PatientLookup, serials serial.Generator, tx db.Transactor) *Service {
	return &Service{
		regs:     regs,
		doctors:  doctors,
		patients: patients,
		serials:  serials,
		tx:       tx,
		audit:    audit.Nop,
		logger:   zerolog.Nop(),
		now:      time.Now,
	}
}

func (s *Service) SetAuditRecorder(r audit.Recorder) { s.audit = r }

func (s *Service) SetLogger(l zerolog.Logger) { s.logger = l }

func ensureTransition(r *Registration, next Status) error {
	if !r.Status.CanTransitionTo(next) {
		return apperr.State("registration %s is %s and cannot become %s", r.RegNo, r.Status, next)
	}
	return nil
}

// Register books a visit. The fee is taken from the doctor, never from the
// request, and the queue number restarts at 1 per doctor per day.
func (s *Service) Register(ctx context.Context, caller auth.Caller, req RegisterRequest) (*Registration, error) {
	now := s.now()
	day, err := clock.ParseDay(req.VisitDate, now)
	if err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}
	if day.Before(clock.StartOfDay(now)) {
		return nil, apperr.Validation("visit date is in the past")
	}
	if req.PatientID == uuid.Nil || req.DoctorID == uuid.Nil {
		return nil, apperr.Validation("patient_id and doctor_id are required")
	}

	var reg *Registration
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.patients.Get(ctx, req.PatientID); err != nil {
			if apperr.Is(err, apperr.KindNotFound) {
				return apperr.Validation("patient does not exist")
			}
			return err
		}
		doc, err := s.doctors.GetDoctor(ctx, req.DoctorID)
		if err != nil {
			if apperr.Is(err, apperr.KindNotFound) {
				return apperr.Validation("doctor does not exist")
			}
			return err
		}
		if !doc.IsActive {
			return apperr.Validation("doctor %s is not taking patients", doc.Name)
		}

		dup, err := s.regs.HasActive(ctx, req.PatientID, req.DoctorID, day)
		if err != nil {
			return err
		}
		if dup {
			return apperr.Validation("patient is already registered with this doctor on %s", day.Format(clock.DayLayout))
		}

		regNo, err := serial.NextNumber(ctx, s.serials, serial.Registration, now)
		if err != nil {
			return apperr.System(err, "allocate registration number")
		}
		queueNo, err := s.serials.Next(ctx, serial.QueueKey(doc.ID), day)
		if err != nil {
			return apperr.System(err, "allocate queue number")
		}

		createdBy := caller.UserID
		reg = &Registration{
			RegNo:           regNo,
			PatientID:       req.PatientID,
			DoctorID:        doc.ID,
			DepartmentID:    doc.DepartmentID,
			VisitDate:       day,
			QueueNo:         queueNo,
			RegistrationFee: doc.RegistrationFee,
			Status:          StatusWaiting,
			CreatedBy:       &createdBy,
		}
		return s.regs.Create(ctx, reg)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("registration_id", reg.ID.String()).
		Str("reg_no", reg.RegNo).
		Int("queue_no", reg.QueueNo).
		Msg("patient registered")
	return reg, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Registration, error) {
	return s.regs.GetByID(ctx, id)
}

// GetForUpdate locks the registration row. Callers provide the transaction.
func (s *Service) GetForUpdate(ctx context.Context, id uuid.UUID) (*Registration, error) {
	return s.regs.GetForUpdate(ctx, id)
}

func (s *Service) GetByRegNo(ctx context.Context, regNo string) (*Registration, error) {
	return s.regs.GetByRegNo(ctx, strings.TrimSpace(regNo))
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Registration, int, error) {
	return s.regs.ListByPatient(ctx, patientID, limit, offset)
}

// Complete closes the visit. Only the registration's doctor or an admin may
// do so.
func (s *Service) Complete(ctx context.Context, caller auth.Caller, id uuid.UUID) (*Registration, error) {
	var reg *Registration
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if reg, err = s.regs.GetForUpdate(ctx, id); err != nil {
			return err
		}
		if !caller.IsAdmin() && (caller.DoctorID == nil || *caller.DoctorID != reg.DoctorID) {
			return apperr.Forbidden("only the attending doctor can complete this visit")
		}
		if err := ensureTransition(reg, StatusCompleted); err != nil {
			return err
		}
		if err := s.regs.UpdateStatus(ctx, id, StatusCompleted, nil); err != nil {
			return err
		}
		reg.Status = StatusCompleted
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reg, nil
}

// Cancel withdraws a waiting registration. Once the fee is paid the visit
// can only be unwound by refunding its charge.
func (s *Service) Cancel(ctx context.Context, caller auth.Caller, id uuid.UUID, reason string) (*Registration, error) {
	reason = strings.TrimSpace(reason)
	var reg *Registration
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if reg, err = s.regs.GetForUpdate(ctx, id); err != nil {
			return err
		}
		if reg.Status == StatusPaidRegistration {
			return apperr.State("registration %s has a paid fee; refund the charge instead", reg.RegNo)
		}
		if err := ensureTransition(reg, StatusCancelled); err != nil {
			return err
		}
		var rp *string
		if reason != "" {
			rp = &reason
		}
		if err := s.regs.UpdateStatus(ctx, id, StatusCancelled, rp); err != nil {
			return err
		}
		reg.Status = StatusCancelled
		reg.CancelReason = rp
		return s.audit.Record(ctx, audit.NewEvent(caller, audit.ActionRegistrationCancel, "registration", id,
			map[string]interface{}{"reg_no": reg.RegNo, "reason": reason}))
	})
	if err != nil {
		return nil, err
	}
	return reg, nil
}

// MarkFeePaid moves a waiting registration to PAID_REGISTRATION. It runs
// inside the caller's transaction. Visits already completed or marked paid
// are left as they are; closed visits cannot take a payment.
func (s *Service) MarkFeePaid(ctx context.Context, id uuid.UUID) error {
	reg, err := s.regs.GetForUpdate(ctx, id)
	if err != nil {
		return err
	}
	switch reg.Status {
	case StatusWaiting:
		return s.regs.UpdateStatus(ctx, id, StatusPaidRegistration, nil)
	case StatusPaidRegistration, StatusCompleted:
		return nil
	default:
		return apperr.State("registration %s is %s", reg.RegNo, reg.Status)
	}
}

// MarkRefunded moves a PAID_REGISTRATION visit to REFUNDED. A completed
// visit keeps its status.
func (s *Service) MarkRefunded(ctx context.Context, id uuid.UUID) error {
	reg, err := s.regs.GetForUpdate(ctx, id)
	if err != nil {
		return err
	}
	if reg.Status != StatusPaidRegistration {
		s.logger.Debug().Str("registration_id", id.String()).Stringer("status", reg.Status).
			Msg("registration status kept on fee refund")
		return nil
	}
	return s.regs.UpdateStatus(ctx, id, StatusRefunded, nil)
}

// DoctorQueue lists the calling doctor's waiting patients for a day.
func (s *Service) DoctorQueue(ctx context.Context, caller auth.Caller, day string) ([]*QueueEntry, error) {
	if caller.DoctorID == nil {
		return nil, apperr.Forbidden("caller is not linked to a doctor")
	}
	d, err := clock.ParseDay(day, s.now())
	if err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}
	return s.regs.DoctorQueue(ctx, *caller.DoctorID, d)
}

func (s *Service) DepartmentQueue(ctx context.Context, departmentID uuid.UUID, day time.Time) ([]*QueueEntry, error) {
	return s.regs.DepartmentQueue(ctx, departmentID, day)
}
