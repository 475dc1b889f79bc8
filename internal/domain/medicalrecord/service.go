package medicalrecord

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/his/his/internal/domain/registration"
	"github.com/his/his/internal/platform/apperr"
	"github.com/his/his/internal/platform/audit"
	"github.com/his/his/internal/platform/auth"
	"github.com/his/his/internal/platform/db"
	"github.com/his/his/internal/platform/serial"
)

type RegistrationLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*registration.Registration, error)
}

// PrescriptionCounter reports how many prescriptions that are not cancelled
// hang off a record.
type PrescriptionCounter interface {
	CountActiveByRecord(ctx context.Context, recordID uuid.UUID) (int, error)
}

type Service struct {
	records       Repository
	registrations RegistrationLookup
	prescriptions PrescriptionCounter
	serials       serial.Generator
	tx            db.Transactor
	audit         audit.Recorder
	now           func() time.Time
}

func NewService(records Repository, registrations RegistrationLookup, prescriptions PrescriptionCounter, serials serial.Generator, tx db.Transactor) *Service {
	return &Service{
		records:       records,
		registrations: registrations,
		prescriptions: prescriptions,
		serials:       serials,
		tx:            tx,
		audit:         audit.Nop,
		now:           time.Now,
	}
}

func (s *Service) SetAuditRecorder(r audit.Recorder) { s.audit = r }

func ensureAttending(caller auth.Caller, doctorID uuid.UUID) error {
	if caller.IsAdmin() {
		return nil
	}
	if caller.DoctorID == nil || *caller.DoctorID != doctorID {
		return apperr.Forbidden("only the attending doctor can edit this medical record")
	}
	return nil
}

// Save creates the record for a registration or updates its draft.
func (s *Service) Save(ctx context.Context, caller auth.Caller, req SaveRequest) (*MedicalRecord, error) {
	if req.RegistrationID == uuid.Nil {
		return nil, apperr.Validation("registration_id is required")
	}

	var rec *MedicalRecord
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		reg, err := s.registrations.Get(ctx, req.RegistrationID)
		if err != nil {
			return err
		}
		if reg.Status == registration.StatusCancelled || reg.Status == registration.StatusRefunded {
			return apperr.State("registration %s is %s", reg.RegNo, reg.Status)
		}
		if err := ensureAttending(caller, reg.DoctorID); err != nil {
			return err
		}

		existing, err := s.records.GetByRegistration(ctx, req.RegistrationID)
		switch {
		case err == nil:
			if existing.Status == StatusSubmitted {
				return apperr.State("medical record %s is submitted and can no longer be edited", existing.RecordNo)
			}
			req.applyTo(existing)
			rec = existing
			return s.records.Update(ctx, rec)
		case apperr.Is(err, apperr.KindNotFound):
			no, err := serial.NextNumber(ctx, s.serials, serial.MedicalRecord, s.now())
			if err != nil {
				return apperr.System(err, "allocate record number")
			}
			rec = &MedicalRecord{
				RecordNo:       no,
				RegistrationID: reg.ID,
				PatientID:      reg.PatientID,
				DoctorID:       reg.DoctorID,
				Status:         StatusDraft,
			}
			req.applyTo(rec)
			return s.records.Create(ctx, rec)
		default:
			return err
		}
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Submit finalises a draft. A diagnosis is required.
func (s *Service) Submit(ctx context.Context, caller auth.Caller, id uuid.UUID) (*MedicalRecord, error) {
	var rec *MedicalRecord
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if rec, err = s.records.GetByID(ctx, id); err != nil {
			return err
		}
		if err := ensureAttending(caller, rec.DoctorID); err != nil {
			return err
		}
		if rec.Status != StatusDraft {
			return apperr.State("medical record %s is already submitted", rec.RecordNo)
		}
		if rec.Diagnosis == nil || strings.TrimSpace(*rec.Diagnosis) == "" {
			return apperr.Validation("diagnosis is required before submitting")
		}
		rec.Status = StatusSubmitted
		return s.records.Update(ctx, rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*MedicalRecord, error) {
	return s.records.GetByID(ctx, id)
}

func (s *Service) GetByRegistration(ctx context.Context, registrationID uuid.UUID) (*MedicalRecord, error) {
	return s.records.GetByRegistration(ctx, registrationID)
}

// Delete soft-deletes a record that has no live prescriptions.
func (s *Service) Delete(ctx context.Context, caller auth.Caller, id uuid.UUID) error {
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		rec, err := s.records.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := ensureAttending(caller, rec.DoctorID); err != nil {
			return err
		}
		n, err := s.prescriptions.CountActiveByRecord(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return apperr.State("medical record %s has %d prescription(s); cancel them first", rec.RecordNo, n)
		}
		if err := s.records.SoftDelete(ctx, id); err != nil {
			return err
		}
		return s.audit.Record(ctx, audit.NewEvent(caller, audit.ActionRecordDeleted, "medical_record", id,
			map[string]interface{}{"record_no": rec.RecordNo}))
	})
}
